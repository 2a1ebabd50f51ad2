package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vimeodl/pkg/domain/interfaces"
	"github.com/m-mizutani/vimeodl/pkg/domain/model"
	"github.com/m-mizutani/vimeodl/pkg/domain/types"
)

const (
	defaultMediaTool      = "yt-dlp"
	defaultAccelerator    = "aria2c"
	defaultConnections    = 16
	defaultMergeFormat    = "mp4"
	defaultOutputTemplate = "%(title)s [%(id)s].%(ext)s"
	defaultPlayerHost     = "player.vimeo.com"

	// stderrTailLines limits how much of the tool's error output is repeated
	// after a failure
	stderrTailLines = 20
)

type launcherUseCase struct {
	runner   interfaces.ProcessRunner
	prompter interfaces.Prompter

	mediaTool      model.Dependency
	accelerator    model.Dependency
	downloadDir    string
	outputTemplate string
	mergeFormat    string
	connections    int
	browsers       []string
	defaultBrowser string
	playerHosts    []string
	preset         model.SessionInput
}

// LauncherOption configures the launcher
type LauncherOption func(*launcherUseCase)

// WithMediaTool sets the yt-dlp executable name or path
func WithMediaTool(path string) LauncherOption {
	return func(uc *launcherUseCase) {
		if path != "" {
			uc.mediaTool.Path = path
		}
	}
}

// WithAccelerator sets the aria2c executable name or path
func WithAccelerator(path string) LauncherOption {
	return func(uc *launcherUseCase) {
		if path != "" {
			uc.accelerator.Path = path
		}
	}
}

// WithDownloadDir sets the directory the merged file is written to
func WithDownloadDir(dir string) LauncherOption {
	return func(uc *launcherUseCase) {
		uc.downloadDir = dir
	}
}

// WithOutputTemplate sets the yt-dlp output template relative to the download directory
func WithOutputTemplate(tmpl string) LauncherOption {
	return func(uc *launcherUseCase) {
		if tmpl != "" {
			uc.outputTemplate = tmpl
		}
	}
}

// WithMergeFormat sets the container format of the merged output
func WithMergeFormat(format string) LauncherOption {
	return func(uc *launcherUseCase) {
		if format != "" {
			uc.mergeFormat = format
		}
	}
}

// WithConnections sets the accelerator's connections per server
func WithConnections(n int) LauncherOption {
	return func(uc *launcherUseCase) {
		if n > 0 {
			uc.connections = n
		}
	}
}

// WithBrowsers sets the cookie-source allow-list and its fallback
func WithBrowsers(browsers []string, defaultBrowser string) LauncherOption {
	return func(uc *launcherUseCase) {
		if len(browsers) > 0 {
			uc.browsers = browsers
		}
		if defaultBrowser != "" {
			uc.defaultBrowser = defaultBrowser
		}
	}
}

// WithPlayerHosts sets the hosts accepted for the player URL. An empty list
// accepts any host.
func WithPlayerHosts(hosts []string) LauncherOption {
	return func(uc *launcherUseCase) {
		uc.playerHosts = hosts
	}
}

// WithPreset supplies answers up front; non-empty fields skip their prompt
func WithPreset(input model.SessionInput) LauncherOption {
	return func(uc *launcherUseCase) {
		uc.preset = input
	}
}

// NewLauncher creates a new instance of LauncherUseCase
func NewLauncher(runner interfaces.ProcessRunner, prompter interfaces.Prompter, opts ...LauncherOption) interfaces.LauncherUseCase {
	uc := &launcherUseCase{
		runner:   runner,
		prompter: prompter,
		mediaTool: model.Dependency{
			Name: "yt-dlp",
			Path: defaultMediaTool,
			Hint: "Install yt-dlp: `pip install -U yt-dlp` or `brew install yt-dlp` (https://github.com/yt-dlp/yt-dlp#installation)",
		},
		accelerator: model.Dependency{
			Name: "aria2c",
			Path: defaultAccelerator,
			Hint: "Install aria2: `brew install aria2`, `sudo apt install aria2` or `winget install aria2.aria2`",
		},
		downloadDir:    ".",
		outputTemplate: defaultOutputTemplate,
		mergeFormat:    defaultMergeFormat,
		connections:    defaultConnections,
		browsers:       model.KnownBrowsers,
		defaultBrowser: model.DefaultBrowser,
		playerHosts:    []string{defaultPlayerHost},
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// CollectInput prompts for player URL, referer URL and browser in that order.
// Each URL is validated right after it is entered.
func (uc *launcherUseCase) CollectInput(ctx context.Context) (*model.SessionInput, error) {
	logger := ctxlog.From(ctx)
	input := &model.SessionInput{}

	playerURL, err := uc.answer(ctx, uc.preset.PlayerURL,
		"Enter Vimeo player URL (e.g., https://player.vimeo.com/video/123456789):")
	if err != nil {
		return nil, err
	}
	input.PlayerURL = playerURL
	if err := input.ValidatePlayerURL(uc.playerHosts); err != nil {
		return nil, err
	}

	refererURL, err := uc.answer(ctx, uc.preset.RefererURL,
		"Enter the page URL where the video is embedded (the page you watch it on):")
	if err != nil {
		return nil, err
	}
	input.RefererURL = refererURL
	if err := input.ValidateRefererURL(); err != nil {
		return nil, err
	}

	rawBrowser := strings.TrimSpace(uc.preset.Browser)
	if rawBrowser == "" {
		rawBrowser, err = uc.prompter.Choose(ctx, "Browser to extract cookies from", uc.browsers, uc.defaultBrowser)
		if err != nil {
			return nil, err
		}
	}

	browser, fellBack := model.ResolveBrowser(rawBrowser, uc.browsers, uc.defaultBrowser)
	if fellBack {
		logger.Warn("Unknown browser, falling back to default",
			"browser", rawBrowser,
			"default", uc.defaultBrowser,
		)
	}
	input.Browser = browser

	logger.Debug("Collected session input", "input", input.Redacted())
	return input, nil
}

func (uc *launcherUseCase) answer(ctx context.Context, preset, prompt string) (string, error) {
	if v := strings.TrimSpace(preset); v != "" {
		return v, nil
	}
	return uc.prompter.Ask(ctx, prompt)
}

// CheckDependencies confirms the media tool and then the accelerator resolve
// to executables
func (uc *launcherUseCase) CheckDependencies(ctx context.Context) error {
	logger := ctxlog.From(ctx)

	for _, dep := range []model.Dependency{uc.mediaTool, uc.accelerator} {
		path, err := uc.runner.LookPath(dep.Path)
		if err != nil {
			return goerr.Wrap(types.ErrMissingDependency, dep.Name+" is not installed or not on PATH",
				goerr.V("tool", dep.Name),
				goerr.V("path", dep.Path),
				goerr.V("hint", dep.Hint),
				goerr.V("lookup_error", err.Error()),
			)
		}
		logger.Debug("Resolved dependency", "tool", dep.Name, "path", path)
	}

	return nil
}

// BuildInvocation composes the media tool command for input. It has no side
// effects.
func (uc *launcherUseCase) BuildInvocation(input *model.SessionInput) *model.InvocationSpec {
	return model.NewInvocationSpec(*input, model.InvocationOptions{
		Tool:           uc.mediaTool.Path,
		Accelerator:    uc.accelerator.Path,
		OutputDir:      uc.downloadDir,
		OutputTemplate: uc.outputTemplate,
		MergeFormat:    uc.mergeFormat,
		Connections:    uc.connections,
	})
}

// Execute runs spec in the foreground. A non-zero exit is returned as
// ErrChildProcess together with the outcome.
func (uc *launcherUseCase) Execute(ctx context.Context, spec *model.InvocationSpec) (*model.ExitOutcome, error) {
	logger := ctxlog.From(ctx)

	logger.Info("Starting media tool",
		"tool", spec.Tool,
		"target", model.RedactPlayerURL(spec.TargetURL()),
		"output_dir", spec.OutputDir,
	)

	outcome, err := uc.runner.Run(ctx, spec.Tool, spec.Args())
	if err != nil {
		return outcome, goerr.Wrap(err, "failed to run media tool", goerr.V("tool", spec.Tool))
	}

	if !outcome.Success() {
		return outcome, goerr.Wrap(types.ErrChildProcess, "media tool exited with non-zero status",
			goerr.V("tool", spec.Tool),
			goerr.V("exit_code", outcome.ExitCode),
			goerr.V("stderr", outcome.Stderr),
		)
	}

	logger.Info("Media tool finished", "tool", spec.Tool)
	return outcome, nil
}

// Cleanup removes temporary artifacts in dir that were not listed in before.
// A nil before means the directory could not be inspected ahead of the run, so
// nothing can be attributed to this run and nothing is removed.
func (uc *launcherUseCase) Cleanup(ctx context.Context, dir string, before map[string]struct{}) *model.CleanupReport {
	logger := ctxlog.From(ctx)
	report := &model.CleanupReport{}

	if before == nil {
		logger.Debug("Skipping cleanup without a pre-run snapshot", "dir", dir)
		return report
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("Cleanup warning: failed to read download directory", "dir", dir, "error", err)
		return report
	}

	siblings := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		siblings[entry.Name()] = struct{}{}
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isTemporaryArtifact(name, siblings) {
			continue
		}
		if _, existed := before[name]; existed {
			continue
		}

		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			logger.Warn("Cleanup warning: failed to remove temporary file", "path", path, "error", err)
			report.Failed = append(report.Failed, path)
			continue
		}
		logger.Debug("Removed temporary file", "path", path)
		report.Removed = append(report.Removed, path)
	}

	return report
}

// Run executes the whole pipeline: input, dependency check, invocation,
// cleanup. Failures are reported to the user before they are returned.
func (uc *launcherUseCase) Run(ctx context.Context) error {
	logger := ctxlog.From(ctx)

	input, err := uc.CollectInput(ctx)
	if err != nil {
		uc.report(err)
		return err
	}

	if err := uc.CheckDependencies(ctx); err != nil {
		uc.report(err)
		return err
	}

	spec := uc.BuildInvocation(input)

	uc.prompter.Summary("Download Settings", [][2]string{
		{"Vimeo URL", input.PlayerURL},
		{"Embed Referer", input.RefererURL},
		{"Browser", input.Browser},
		{"Output", spec.OutputDir},
	})

	if err := os.MkdirAll(spec.OutputDir, 0755); err != nil {
		err = goerr.Wrap(err, "failed to create download directory", goerr.V("dir", spec.OutputDir))
		uc.report(err)
		return err
	}

	before, err := snapshotDir(spec.OutputDir)
	if err != nil {
		logger.Warn("Failed to snapshot download directory, cleanup disabled", "dir", spec.OutputDir, "error", err)
	}

	if _, err := uc.Execute(ctx, spec); err != nil {
		uc.report(err)
		return err
	}

	report := uc.Cleanup(ctx, spec.OutputDir, before)
	logger.Info("Cleanup finished",
		"removed", len(report.Removed),
		"failed", len(report.Failed),
	)

	uc.prompter.Success("Download + merge completed successfully!")
	return nil
}

// report prints a user-facing explanation of err with remediation text
func (uc *launcherUseCase) report(err error) {
	values := goerr.Values(err)

	switch {
	case errors.Is(err, types.ErrAborted):
		// The caller prints the abort notice.

	case errors.Is(err, types.ErrInvalidInput):
		field, _ := values["field"].(string)
		switch field {
		case "player_url":
			uc.prompter.Failure("This doesn't look like a Vimeo player URL.")
			uc.prompter.Info("Use the address from the embed iframe, e.g. https://player.vimeo.com/video/123456789")
		default:
			uc.prompter.Failure("The embed page URL is missing or malformed.")
			uc.prompter.Info("Enter the full address (https://...) of the page that shows the video.")
		}

	case errors.Is(err, types.ErrMissingDependency):
		tool, _ := values["tool"].(string)
		hint, _ := values["hint"].(string)
		uc.prompter.Failure("Required tool %q was not found on PATH.", tool)
		if hint != "" {
			uc.prompter.Info("%s", hint)
		}

	case errors.Is(err, types.ErrChildProcess):
		code, _ := values["exit_code"].(int)
		stderr, _ := values["stderr"].(string)
		uc.prompter.Failure("Download failed (exit status %d). Make sure you are logged into Vimeo in your browser.", code)
		if tail := lastLines(stderr, stderrTailLines); tail != "" {
			uc.prompter.Info("Media tool error output:\n%s", tail)
		}

	default:
		uc.prompter.Failure("Download failed: %s", err.Error())
	}
}

func snapshotDir(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read directory", goerr.V("dir", dir))
	}

	names := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = struct{}{}
	}
	return names, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
