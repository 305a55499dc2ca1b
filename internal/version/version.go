// Package version provides build-time version information.
package version

import "fmt"

// These variables are set at build time using
// -ldflags "-X mistie-solver/internal/version.Version=..."
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the version for display.
func String() string {
	return fmt.Sprintf("mistie %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
