// Package version carries build metadata stamped in with -ldflags, e.g.
// -X github.com/RoboFinSystems/robosystems-sub012/pkg/version.Version=v1.2.0.
package version

import (
	"fmt"
	"runtime"
)

// Version is the semantic version.
var Version = "dev"

// GitCommit is the git commit hash.
var GitCommit = "unknown"

// BuildTime is the build timestamp.
var BuildTime = "unknown"

// String returns a one-line version banner.
func String() string {
	return fmt.Sprintf("graphapi %s (commit: %s, built: %s, %s %s/%s)",
		Version, GitCommit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Info returns the build metadata as a map, for JSON output.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"platform":   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
