package interfaces

import (
	"context"

	"github.com/m-mizutani/vimeodl/pkg/domain/model"
)

// LauncherUseCase defines the download launcher pipeline
type LauncherUseCase interface {
	// CollectInput prompts for player URL, referer URL and browser
	CollectInput(ctx context.Context) (*model.SessionInput, error)

	// CheckDependencies confirms the media tool and accelerator are on PATH
	CheckDependencies(ctx context.Context) error

	// BuildInvocation composes the media tool command for input
	BuildInvocation(input *model.SessionInput) *model.InvocationSpec

	// Execute runs spec and maps its exit status
	Execute(ctx context.Context, spec *model.InvocationSpec) (*model.ExitOutcome, error)

	// Cleanup removes temporary artifacts that were not present in before
	Cleanup(ctx context.Context, dir string, before map[string]struct{}) *model.CleanupReport

	// Run executes the whole pipeline once
	Run(ctx context.Context) error
}
