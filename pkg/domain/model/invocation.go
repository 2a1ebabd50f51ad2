package model

import (
	"fmt"
	"path/filepath"
	"slices"
)

// Fixed yt-dlp directives
const (
	FormatSelector   = "bestvideo+bestaudio/best"
	AcceleratorName  = "aria2c"
	AcceleratorChunk = "1M"
)

// InvocationSpec is the assembled media tool command. It is built once per
// run and must not be modified afterward.
type InvocationSpec struct {
	Tool           string
	OutputDir      string
	OutputTemplate string
	args           []string
}

// InvocationOptions carries the configurable parts of the command line
type InvocationOptions struct {
	Tool           string
	Accelerator    string // aria2c name or path; AcceleratorName when empty
	OutputDir      string
	OutputTemplate string
	MergeFormat    string
	Connections    int
}

// NewInvocationSpec composes the yt-dlp argument list in a fixed order
func NewInvocationSpec(input SessionInput, opts InvocationOptions) *InvocationSpec {
	output := filepath.Join(opts.OutputDir, opts.OutputTemplate)
	accel := opts.Accelerator
	if accel == "" {
		accel = AcceleratorName
	}
	accelArgs := fmt.Sprintf("%s:-x%d -s%d -k%s",
		AcceleratorName, opts.Connections, opts.Connections, AcceleratorChunk)

	return &InvocationSpec{
		Tool:           opts.Tool,
		OutputDir:      opts.OutputDir,
		OutputTemplate: opts.OutputTemplate,
		args: []string{
			"--cookies-from-browser", input.Browser,
			"--referer", input.RefererURL,
			"-f", FormatSelector,
			"--merge-output-format", opts.MergeFormat,
			"--downloader", accel,
			"--downloader-args", accelArgs,
			"-o", output,
			input.PlayerURL,
		},
	}
}

// Args returns a copy of the argument list
func (x *InvocationSpec) Args() []string {
	return slices.Clone(x.args)
}

// Flag returns the value following name in the argument list
func (x *InvocationSpec) Flag(name string) (string, bool) {
	for i := 0; i < len(x.args)-1; i++ {
		if x.args[i] == name {
			return x.args[i+1], true
		}
	}
	return "", false
}

// TargetURL returns the URL handed to the media tool
func (x *InvocationSpec) TargetURL() string {
	if len(x.args) == 0 {
		return ""
	}
	return x.args[len(x.args)-1]
}
