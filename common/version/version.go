// Package version carries build information injected with -ldflags.
package version

import "fmt"

var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String formats the build information on one line.
func String() string {
	return fmt.Sprintf("shiori %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
