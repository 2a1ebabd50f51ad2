package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/vimeodl/pkg/cli/config"
	"github.com/m-mizutani/vimeodl/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// Run runs the CLI application
func Run(ctx context.Context, args []string) error {
	var (
		loggerCfg   config.Logger
		downloadCfg config.Download
		sentryCfg   config.Sentry
		logger      *slog.Logger
	)

	flags := append(loggerCfg.Flags(), downloadCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)

	app := &cli.Command{
		Name:    types.AppName,
		Usage:   "Download referer-locked Vimeo embeds with yt-dlp and aria2c",
		Version: types.Version,
		Flags:   flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			var err error
			logger, err = loggerCfg.Configure()
			if err != nil {
				return nil, err
			}

			if _, err := sentryCfg.Configure(); err != nil {
				return nil, err
			}

			slog.SetDefault(logger)
			ctx = ctxlog.With(ctx, logger)
			return ctx, nil
		},
		Action: launchAction(&downloadCfg),
		Commands: []*cli.Command{
			cmdBrowsers(&downloadCfg),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("CLI execution failed", slog.Any("error", err))
		if !errors.Is(err, types.ErrAborted) {
			sentryCfg.Report(err)
		}
		return err
	}

	return nil
}
