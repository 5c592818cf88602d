// Package preflight validates that required artifacts exist before any
// mutating deployment step runs. Checks never fail fast: every missing
// path is collected so the operator gets the complete remediation list
// in a single pass.
package preflight

import (
	"fmt"
	"os"
	"strings"

	"guardctl/pkg/logging"
)

// Requirement names a path that must exist before orchestration, with a
// remediation hint shown when it does not.
type Requirement struct {
	Path string
	Hint string
}

// MissingFilesError reports every requirement that failed in one pass.
type MissingFilesError struct {
	Missing []Requirement
}

// Error implements the error interface.
func (e *MissingFilesError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d required file(s) missing:", len(e.Missing))
	for _, req := range e.Missing {
		fmt.Fprintf(&b, "\n  %s", req.Path)
		if req.Hint != "" {
			fmt.Fprintf(&b, " (%s)", req.Hint)
		}
	}
	return b.String()
}

// Paths returns the missing paths in check order.
func (e *MissingFilesError) Paths() []string {
	paths := make([]string, len(e.Missing))
	for i, req := range e.Missing {
		paths[i] = req.Path
	}
	return paths
}

// For mocking in tests
var osStat = os.Stat

// Validate checks every requirement independently and returns a
// *MissingFilesError listing all missing paths, or nil when all exist.
// It only reads the filesystem; nothing is created or modified.
func Validate(requirements []Requirement) error {
	var missing []Requirement
	for _, req := range requirements {
		if _, err := osStat(req.Path); err != nil {
			logging.Debug("Preflight", "Requirement not satisfied: %s (%v)", req.Path, err)
			missing = append(missing, req)
			continue
		}
		logging.Debug("Preflight", "Requirement satisfied: %s", req.Path)
	}

	if len(missing) > 0 {
		return &MissingFilesError{Missing: missing}
	}
	return nil
}

// DefaultRequirements returns the artifacts a guard deployment needs
// before images can be built.
func DefaultRequirements() []Requirement {
	return []Requirement{
		{Path: "Dockerfile", Hint: "run guardctl from the repository root"},
		{Path: "docker/xvfb/Dockerfile", Hint: "restore the xvfb build context"},
		{Path: "requirements.txt", Hint: "restore the application dependency list"},
		{Path: "main.py", Hint: "restore the application entry point"},
	}
}
