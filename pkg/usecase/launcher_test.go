package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/vimeodl/pkg/cli/config"
	"github.com/m-mizutani/vimeodl/pkg/domain/model"
	"github.com/m-mizutani/vimeodl/pkg/domain/types"
	"github.com/m-mizutani/vimeodl/pkg/usecase"
)

// MockRunner is a mock implementation of ProcessRunner
type MockRunner struct {
	missing  map[string]bool
	runFunc  func(ctx context.Context, name string, args []string) (*model.ExitOutcome, error)
	lookups  []string
	runCalls []RunCall
}

type RunCall struct {
	Name string
	Args []string
}

func (m *MockRunner) LookPath(name string) (string, error) {
	m.lookups = append(m.lookups, name)
	if m.missing[name] {
		return "", errors.New("executable file not found in $PATH")
	}
	return "/usr/local/bin/" + name, nil
}

func (m *MockRunner) Run(ctx context.Context, name string, args []string) (*model.ExitOutcome, error) {
	m.runCalls = append(m.runCalls, RunCall{Name: name, Args: args})
	if m.runFunc != nil {
		return m.runFunc(ctx, name, args)
	}
	return &model.ExitOutcome{}, nil
}

// MockPrompter is a mock implementation of Prompter returning canned answers
type MockPrompter struct {
	answers  []string
	asked    []string
	askErr   error
	output   strings.Builder
	summary  [][2]string
	failures []string
}

func (m *MockPrompter) next(prompt string) (string, error) {
	m.asked = append(m.asked, prompt)
	if m.askErr != nil {
		return "", m.askErr
	}
	if len(m.answers) == 0 {
		return "", nil
	}
	a := m.answers[0]
	m.answers = m.answers[1:]
	return a, nil
}

func (m *MockPrompter) Ask(ctx context.Context, prompt string) (string, error) {
	return m.next(prompt)
}

func (m *MockPrompter) Choose(ctx context.Context, prompt string, options []string, defaultValue string) (string, error) {
	return m.next(prompt)
}

func (m *MockPrompter) Info(format string, args ...any) {
	fmt.Fprintf(&m.output, format+"\n", args...)
}

func (m *MockPrompter) Success(format string, args ...any) {
	fmt.Fprintf(&m.output, "OK "+format+"\n", args...)
}

func (m *MockPrompter) Failure(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	m.failures = append(m.failures, msg)
	fmt.Fprintf(&m.output, "NG %s\n", msg)
}

func (m *MockPrompter) Summary(title string, rows [][2]string) {
	m.summary = rows
}

const (
	testPlayerURL  = "https://player.vimeo.com/video/123456789"
	testRefererURL = "https://example.com/video-page"
)

func TestLauncher_CollectInput(t *testing.T) {
	tests := []struct {
		name        string
		answers     []string
		wantErr     error
		wantBrowser string
		wantAsked   int
	}{
		{
			name:        "Blank browser falls back to chrome",
			answers:     []string{testPlayerURL, testRefererURL, ""},
			wantBrowser: "chrome",
			wantAsked:   3,
		},
		{
			name:        "Known browser is kept",
			answers:     []string{testPlayerURL, testRefererURL, "Firefox"},
			wantBrowser: "firefox",
			wantAsked:   3,
		},
		{
			name:        "Unknown browser falls back to chrome",
			answers:     []string{testPlayerURL, testRefererURL, "netscape"},
			wantBrowser: "chrome",
			wantAsked:   3,
		},
		{
			name:      "Empty player URL fails before further prompts",
			answers:   []string{""},
			wantErr:   types.ErrInvalidInput,
			wantAsked: 1,
		},
		{
			name:      "Non-player host is rejected",
			answers:   []string{"https://vimeo.com/123456789"},
			wantErr:   types.ErrInvalidInput,
			wantAsked: 1,
		},
		{
			name:      "Malformed player URL",
			answers:   []string{"player.vimeo.com/video/123"},
			wantErr:   types.ErrInvalidInput,
			wantAsked: 1,
		},
		{
			name:      "Empty referer URL",
			answers:   []string{testPlayerURL, ""},
			wantErr:   types.ErrInvalidInput,
			wantAsked: 2,
		},
		{
			name:      "Referer without scheme",
			answers:   []string{testPlayerURL, "example.com/page"},
			wantErr:   types.ErrInvalidInput,
			wantAsked: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompter := &MockPrompter{answers: tt.answers}
			uc := usecase.NewLauncher(&MockRunner{}, prompter)

			input, err := uc.CollectInput(context.Background())
			gt.Equal(t, len(prompter.asked), tt.wantAsked)

			if tt.wantErr != nil {
				gt.Error(t, err)
				gt.True(t, errors.Is(err, tt.wantErr))
				gt.Value(t, input).Nil()
				return
			}

			gt.NoError(t, err)
			gt.Equal(t, input.PlayerURL, testPlayerURL)
			gt.Equal(t, input.RefererURL, testRefererURL)
			gt.Equal(t, input.Browser, tt.wantBrowser)
		})
	}
}

func TestLauncher_CollectInput_Preset(t *testing.T) {
	prompter := &MockPrompter{}
	uc := usecase.NewLauncher(&MockRunner{}, prompter, usecase.WithPreset(model.SessionInput{
		PlayerURL:  testPlayerURL,
		RefererURL: testRefererURL,
		Browser:    "edge",
	}))

	input, err := uc.CollectInput(context.Background())
	gt.NoError(t, err)
	gt.Number(t, len(prompter.asked)).Equal(0)
	gt.Equal(t, input.Browser, "edge")
}

func TestLauncher_CollectInput_Aborted(t *testing.T) {
	prompter := &MockPrompter{askErr: types.ErrAborted}
	uc := usecase.NewLauncher(&MockRunner{}, prompter)

	_, err := uc.CollectInput(context.Background())
	gt.True(t, errors.Is(err, types.ErrAborted))
}

func TestLauncher_PrivacyHashNotLogged(t *testing.T) {
	const hash = "5ecre7ha5h"
	playerURL := testPlayerURL + "?h=" + hash

	var buf bytes.Buffer
	loggerCfg := config.Logger{Level: "debug", JSON: true, Writer: &buf}
	logger, err := loggerCfg.Configure()
	gt.NoError(t, err)
	ctx := ctxlog.With(context.Background(), logger)

	prompter := &MockPrompter{answers: []string{playerURL, testRefererURL, "firefox"}}
	runner := &MockRunner{}
	uc := usecase.NewLauncher(runner, prompter)

	input, err := uc.CollectInput(ctx)
	gt.NoError(t, err)
	gt.Equal(t, input.PrivacyHash, hash)

	_, err = uc.Execute(ctx, uc.BuildInvocation(input))
	gt.NoError(t, err)

	// The tool still gets the real URL
	gt.Equal(t, runner.runCalls[0].Args[len(runner.runCalls[0].Args)-1], playerURL)

	gt.String(t, buf.String()).Contains("Collected session input")
	gt.String(t, buf.String()).Contains("Starting media tool")
	gt.String(t, buf.String()).NotContains(hash)
}

func TestLauncher_CheckDependencies(t *testing.T) {
	tests := []struct {
		name     string
		missing  map[string]bool
		wantTool string
	}{
		{
			name: "Both present",
		},
		{
			name:     "Media tool missing",
			missing:  map[string]bool{"yt-dlp": true},
			wantTool: "yt-dlp",
		},
		{
			name:     "Accelerator missing",
			missing:  map[string]bool{"aria2c": true},
			wantTool: "aria2c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockRunner{missing: tt.missing}
			uc := usecase.NewLauncher(runner, &MockPrompter{})

			err := uc.CheckDependencies(context.Background())
			if tt.wantTool == "" {
				gt.NoError(t, err)
				return
			}

			gt.Error(t, err)
			gt.True(t, errors.Is(err, types.ErrMissingDependency))
			gt.String(t, err.Error()).Contains(tt.wantTool)
		})
	}
}

func TestLauncher_BuildInvocation(t *testing.T) {
	downloadDir := filepath.Join("home", "user", "Downloads")
	uc := usecase.NewLauncher(&MockRunner{}, &MockPrompter{}, usecase.WithDownloadDir(downloadDir))

	input := &model.SessionInput{
		PlayerURL:  testPlayerURL,
		RefererURL: testRefererURL,
		Browser:    "chrome",
	}

	spec := uc.BuildInvocation(input)
	want := []string{
		"--cookies-from-browser", "chrome",
		"--referer", testRefererURL,
		"-f", "bestvideo+bestaudio/best",
		"--merge-output-format", "mp4",
		"--downloader", "aria2c",
		"--downloader-args", "aria2c:-x16 -s16 -k1M",
		"-o", filepath.Join(downloadDir, "%(title)s [%(id)s].%(ext)s"),
		testPlayerURL,
	}
	gt.V(t, spec.Args()).Equal(want)
	gt.Equal(t, spec.Tool, "yt-dlp")
	gt.Equal(t, spec.OutputDir, downloadDir)

	t.Run("deterministic", func(t *testing.T) {
		for range 10 {
			gt.V(t, uc.BuildInvocation(input).Args()).Equal(want)
		}
	})

	t.Run("args are a copy", func(t *testing.T) {
		args := spec.Args()
		args[1] = "firefox"
		gt.V(t, spec.Args()).Equal(want)
	})

	t.Run("configured options", func(t *testing.T) {
		uc := usecase.NewLauncher(&MockRunner{}, &MockPrompter{},
			usecase.WithDownloadDir(downloadDir),
			usecase.WithConnections(8),
			usecase.WithMergeFormat("mkv"),
			usecase.WithOutputTemplate("%(id)s.%(ext)s"),
			usecase.WithMediaTool("/opt/bin/yt-dlp"),
		)
		spec := uc.BuildInvocation(input)

		accel, ok := spec.Flag("--downloader-args")
		gt.True(t, ok)
		gt.Equal(t, accel, "aria2c:-x8 -s8 -k1M")

		format, _ := spec.Flag("--merge-output-format")
		gt.Equal(t, format, "mkv")

		output, _ := spec.Flag("-o")
		gt.Equal(t, output, filepath.Join(downloadDir, "%(id)s.%(ext)s"))
		gt.Equal(t, spec.Tool, "/opt/bin/yt-dlp")
	})
}

func TestLauncher_Execute(t *testing.T) {
	input := &model.SessionInput{PlayerURL: testPlayerURL, RefererURL: testRefererURL, Browser: "chrome"}

	t.Run("success", func(t *testing.T) {
		runner := &MockRunner{}
		uc := usecase.NewLauncher(runner, &MockPrompter{})
		spec := uc.BuildInvocation(input)

		outcome, err := uc.Execute(context.Background(), spec)
		gt.NoError(t, err)
		gt.True(t, outcome.Success())
		gt.Number(t, len(runner.runCalls)).Equal(1)
		gt.Equal(t, runner.runCalls[0].Name, "yt-dlp")
		gt.V(t, runner.runCalls[0].Args).Equal(spec.Args())
	})

	t.Run("non-zero exit", func(t *testing.T) {
		runner := &MockRunner{
			runFunc: func(ctx context.Context, name string, args []string) (*model.ExitOutcome, error) {
				return &model.ExitOutcome{ExitCode: 1, Stderr: "ERROR: [vimeo] 123456789: Unable to download JSON metadata"}, nil
			},
		}
		uc := usecase.NewLauncher(runner, &MockPrompter{})

		outcome, err := uc.Execute(context.Background(), uc.BuildInvocation(input))
		gt.Error(t, err)
		gt.True(t, errors.Is(err, types.ErrChildProcess))
		gt.Equal(t, outcome.ExitCode, 1)

		// Not retried
		gt.Number(t, len(runner.runCalls)).Equal(1)
	})

	t.Run("runner error", func(t *testing.T) {
		runner := &MockRunner{
			runFunc: func(ctx context.Context, name string, args []string) (*model.ExitOutcome, error) {
				return nil, errors.New("fork failed")
			},
		}
		uc := usecase.NewLauncher(runner, &MockPrompter{})

		_, err := uc.Execute(context.Background(), uc.BuildInvocation(input))
		gt.Error(t, err)
		gt.False(t, errors.Is(err, types.ErrChildProcess))
		gt.String(t, err.Error()).Contains("fork failed")
	})
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		gt.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600))
	}
}

func exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

func TestLauncher_Cleanup(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "old.mp4.part", "keep.mp4")
	before := map[string]struct{}{"old.mp4.part": {}, "keep.mp4": {}}

	touch(t, dir,
		"Title [123].mp4",
		"Title [123].f137.mp4",
		"Title [123].f140.m4a",
		"Title [123].mp4.part",
		"Title [123].mp4.aria2",
		"Title [123].mp4.ytdl",
		"Title [123].temp.mp4.part-Frag3",
	)
	gt.NoError(t, os.Mkdir(filepath.Join(dir, "sub.part"), 0755))

	uc := usecase.NewLauncher(&MockRunner{}, &MockPrompter{})
	report := uc.Cleanup(context.Background(), dir, before)

	gt.Number(t, len(report.Removed)).Equal(6)
	gt.Number(t, len(report.Failed)).Equal(0)

	// Final output and files from earlier runs survive
	gt.True(t, exists(dir, "Title [123].mp4"))
	gt.True(t, exists(dir, "old.mp4.part"))
	gt.True(t, exists(dir, "keep.mp4"))
	gt.True(t, exists(dir, "sub.part"))

	gt.False(t, exists(dir, "Title [123].f137.mp4"))
	gt.False(t, exists(dir, "Title [123].mp4.aria2"))
	gt.False(t, exists(dir, "Title [123].temp.mp4.part-Frag3"))
}

func TestLauncher_Cleanup_CustomTemplate(t *testing.T) {
	dir := t.TempDir()

	// "%(title)s.%(ext)s" with a title ending in ".f2"
	touch(t, dir, "Episode.f2.mp4", "Episode.f2.mp4.part")

	uc := usecase.NewLauncher(&MockRunner{}, &MockPrompter{},
		usecase.WithOutputTemplate("%(title)s.%(ext)s"),
	)
	report := uc.Cleanup(context.Background(), dir, map[string]struct{}{})

	gt.Number(t, len(report.Removed)).Equal(1)
	gt.True(t, exists(dir, "Episode.f2.mp4"))
	gt.False(t, exists(dir, "Episode.f2.mp4.part"))
}

func TestLauncher_Cleanup_NoSnapshot(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "video.mp4.part")

	uc := usecase.NewLauncher(&MockRunner{}, &MockPrompter{})
	report := uc.Cleanup(context.Background(), dir, nil)

	gt.Number(t, len(report.Removed)).Equal(0)
	gt.True(t, exists(dir, "video.mp4.part"))
}

func TestLauncher_Cleanup_UnreadableDir(t *testing.T) {
	uc := usecase.NewLauncher(&MockRunner{}, &MockPrompter{})
	report := uc.Cleanup(context.Background(), filepath.Join(t.TempDir(), "missing"), map[string]struct{}{})

	gt.Number(t, len(report.Removed)).Equal(0)
	gt.Number(t, len(report.Failed)).Equal(0)
}

func TestLauncher_Run_Success(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Downloads")

	runner := &MockRunner{
		runFunc: func(ctx context.Context, name string, args []string) (*model.ExitOutcome, error) {
			// Simulate the media tool leaving its output and an intermediate
			touch(t, dir, "Title [123456789].mp4", "Title [123456789].f137.mp4")
			return &model.ExitOutcome{}, nil
		},
	}
	prompter := &MockPrompter{answers: []string{testPlayerURL, testRefererURL, ""}}
	uc := usecase.NewLauncher(runner, prompter, usecase.WithDownloadDir(dir))

	err := uc.Run(context.Background())
	gt.NoError(t, err)

	gt.Number(t, len(runner.runCalls)).Equal(1)
	args := runner.runCalls[0].Args

	spec := model.NewInvocationSpec(model.SessionInput{
		PlayerURL:  testPlayerURL,
		RefererURL: testRefererURL,
		Browser:    "chrome",
	}, model.InvocationOptions{
		Tool:           "yt-dlp",
		OutputDir:      dir,
		OutputTemplate: "%(title)s [%(id)s].%(ext)s",
		MergeFormat:    "mp4",
		Connections:    16,
	})
	gt.V(t, args).Equal(spec.Args())

	referer, _ := spec.Flag("--referer")
	gt.Equal(t, referer, testRefererURL)
	browser, _ := spec.Flag("--cookies-from-browser")
	gt.Equal(t, browser, "chrome")
	output, _ := spec.Flag("-o")
	gt.True(t, strings.HasPrefix(output, dir))

	// The download directory is created and the intermediate removed
	gt.True(t, exists(dir, "Title [123456789].mp4"))
	gt.False(t, exists(dir, "Title [123456789].f137.mp4"))

	gt.Number(t, len(prompter.summary)).Greater(0)
	gt.String(t, prompter.output.String()).Contains("Download + merge completed successfully!")
}

func TestLauncher_Run_ChildFailure(t *testing.T) {
	dir := t.TempDir()
	runner := &MockRunner{
		runFunc: func(ctx context.Context, name string, args []string) (*model.ExitOutcome, error) {
			touch(t, dir, "Title [123456789].f137.mp4")
			return &model.ExitOutcome{
				ExitCode: 1,
				Stderr:   "ERROR: [vimeo] 123456789: This video is private\n",
			}, nil
		},
	}
	prompter := &MockPrompter{answers: []string{testPlayerURL, testRefererURL, ""}}
	uc := usecase.NewLauncher(runner, prompter, usecase.WithDownloadDir(dir))

	err := uc.Run(context.Background())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, types.ErrChildProcess))

	// The tool's stderr is shown to the user
	gt.String(t, prompter.output.String()).Contains("This video is private")
	gt.String(t, prompter.output.String()).Contains("logged into Vimeo")

	// No cleanup after a failure
	gt.True(t, exists(dir, "Title [123456789].f137.mp4"))
}

func TestLauncher_Run_MissingAccelerator(t *testing.T) {
	runner := &MockRunner{missing: map[string]bool{"aria2c": true}}
	prompter := &MockPrompter{answers: []string{testPlayerURL, testRefererURL, ""}}
	uc := usecase.NewLauncher(runner, prompter, usecase.WithDownloadDir(t.TempDir()))

	err := uc.Run(context.Background())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, types.ErrMissingDependency))

	// Nothing is executed when a dependency is missing
	gt.Number(t, len(runner.runCalls)).Equal(0)

	gt.Number(t, len(prompter.failures)).Equal(1)
	gt.String(t, prompter.failures[0]).Contains("aria2c")
	gt.String(t, prompter.output.String()).Contains("Install aria2")
}

func TestLauncher_Run_MissingMediaTool(t *testing.T) {
	runner := &MockRunner{missing: map[string]bool{"yt-dlp": true}}
	prompter := &MockPrompter{answers: []string{testPlayerURL, testRefererURL, ""}}
	uc := usecase.NewLauncher(runner, prompter, usecase.WithDownloadDir(t.TempDir()))

	err := uc.Run(context.Background())
	gt.True(t, errors.Is(err, types.ErrMissingDependency))
	gt.Number(t, len(runner.runCalls)).Equal(0)
	gt.String(t, prompter.failures[0]).Contains("yt-dlp")
}

func TestLauncher_Run_InvalidInput(t *testing.T) {
	runner := &MockRunner{}
	prompter := &MockPrompter{answers: []string{""}}
	uc := usecase.NewLauncher(runner, prompter, usecase.WithDownloadDir(t.TempDir()))

	err := uc.Run(context.Background())
	gt.True(t, errors.Is(err, types.ErrInvalidInput))

	// Validation fails before the dependency check
	gt.Number(t, len(runner.lookups)).Equal(0)
	gt.Number(t, len(runner.runCalls)).Equal(0)
	gt.String(t, prompter.failures[0]).Contains("Vimeo player URL")
}

func TestLauncher_Run_AnyPlayerHost(t *testing.T) {
	runner := &MockRunner{}
	prompter := &MockPrompter{answers: []string{"https://vimeo.com/123456789", testRefererURL, "safari"}}
	uc := usecase.NewLauncher(runner, prompter,
		usecase.WithDownloadDir(t.TempDir()),
		usecase.WithPlayerHosts(nil),
	)

	gt.NoError(t, uc.Run(context.Background()))
	gt.Number(t, len(runner.runCalls)).Equal(1)
}
