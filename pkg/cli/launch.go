package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vimeodl/pkg/cli/config"
	"github.com/m-mizutani/vimeodl/pkg/domain/interfaces"
	"github.com/m-mizutani/vimeodl/pkg/domain/model"
	"github.com/m-mizutani/vimeodl/pkg/domain/types"
	"github.com/m-mizutani/vimeodl/pkg/infra/console"
	"github.com/m-mizutani/vimeodl/pkg/infra/process"
	"github.com/m-mizutani/vimeodl/pkg/usecase"
	"github.com/urfave/cli/v3"
)

const banner = "📥 Vimeo Embed Downloader (Optimized with aria2c)"

func launchAction(downloadCfg *config.Download) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if err := downloadCfg.Load(c.IsSet); err != nil {
			return goerr.Wrap(err, "invalid download configuration")
		}

		// Interrupts cancel ctx; the prompt returns and the child is stopped
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		return launch(ctx, downloadCfg, os.Stdin, os.Stdout, process.New())
	}
}

// launch runs one download session with the given terminal streams and
// process runner. An interrupt during the prompts is not an error.
func launch(ctx context.Context, downloadCfg *config.Download, stdin io.Reader, stdout io.Writer, runner interfaces.ProcessRunner) error {
	logger := ctxlog.From(ctx).With("run_id", uuid.NewString())
	ctx = ctxlog.With(ctx, logger)

	prompter := console.New(stdin, stdout)
	prompter.Banner(banner)

	uc := newLauncher(runner, prompter, downloadCfg)
	if err := uc.Run(ctx); err != nil {
		if errors.Is(err, types.ErrAborted) {
			prompter.Info("Aborted.")
			return nil
		}
		return err
	}

	return nil
}

func newLauncher(runner interfaces.ProcessRunner, prompter interfaces.Prompter, cfg *config.Download) interfaces.LauncherUseCase {
	return usecase.NewLauncher(runner, prompter,
		usecase.WithMediaTool(cfg.YtDlp),
		usecase.WithAccelerator(cfg.Aria2c),
		usecase.WithDownloadDir(cfg.Dir),
		usecase.WithOutputTemplate(cfg.OutputTemplate),
		usecase.WithMergeFormat(cfg.MergeFormat),
		usecase.WithConnections(cfg.Connections),
		usecase.WithBrowsers(cfg.Browsers, cfg.DefaultBrowser),
		usecase.WithPlayerHosts(cfg.PlayerHosts),
		usecase.WithPreset(model.SessionInput{
			PlayerURL:  cfg.URL,
			RefererURL: cfg.Referer,
			Browser:    cfg.Browser,
		}),
	)
}
