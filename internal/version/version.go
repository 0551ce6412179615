// Package version carries build metadata injected with -ldflags.
package version

import "fmt"

var (
	// Version is the release tag of the flow-report binary
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the build metadata on a single line.
func String() string {
	return fmt.Sprintf("flow-report %s (%s, built %s)", Version, GitSHA, BuildTime)
}
