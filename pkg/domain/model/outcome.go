package model

// ExitOutcome is the result of one media tool run
type ExitOutcome struct {
	ExitCode int
	Stderr   string // Tail of the child's stderr
}

// Success reports whether the child exited with status zero
func (x *ExitOutcome) Success() bool {
	return x.ExitCode == 0
}

// CleanupReport lists what Cleanup removed and what it could not remove
type CleanupReport struct {
	Removed []string
	Failed  []string
}

// Dependency is an external executable the launcher needs on PATH
type Dependency struct {
	Name string // Display name
	Path string // Executable name or path handed to LookPath
	Hint string // Remediation text shown when missing
}
