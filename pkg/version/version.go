// Package version provides build and version information for repoindex.
package version

import (
	"fmt"
	"runtime"
)

// Program is the binary name used in version strings.
const Program = "repoindex"

// IndexFormat identifies the stored document layout. Indexes written with a
// different format must be rebuilt.
const IndexFormat = 1

// Version is set via ldflags at build time:
// -X github.com/Aman-CERP/repoindex/pkg/version.Version=$(VERSION)
var Version = "dev"

var (
	// Commit is the git commit hash, set via ldflags.
	Commit = "unknown"

	// Date is the build date in RFC3339 format, set via ldflags.
	Date = "unknown"

	// GoVersion is the Go version used to build the binary.
	GoVersion = runtime.Version()
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	Date        string `json:"date"`
	GoVersion   string `json:"go_version"`
	OS          string `json:"os"`
	Arch        string `json:"arch"`
	IndexFormat int    `json:"index_format"`
}

// String returns a one-line version string with all build info.
func String() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s, index format: %d)",
		Program, Version, Commit, Date, GoVersion, IndexFormat)
}

// Short returns just the version.
func Short() string {
	return Version
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:     Version,
		Commit:      Commit,
		Date:        Date,
		GoVersion:   GoVersion,
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		IndexFormat: IndexFormat,
	}
}
