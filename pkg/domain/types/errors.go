package types

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors used to classify a failed run. Wrap them with goerr.Wrap and
// test with errors.Is.
var (
	// ErrInvalidInput indicates an empty or malformed URL from the user
	ErrInvalidInput = goerr.New("invalid input")

	// ErrMissingDependency indicates a required executable is not on PATH
	ErrMissingDependency = goerr.New("missing dependency")

	// ErrChildProcess indicates the media tool exited with a non-zero status
	ErrChildProcess = goerr.New("media tool failed")

	// ErrAborted indicates the user interrupted the interactive prompts
	ErrAborted = goerr.New("aborted by user")
)
