// Package version reports build information for storefront binaries.
// Release builds inject the variables below via -ldflags; other builds fall
// back to what the Go toolchain recorded in the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags "-X github.com/HerbHall/storefront/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// commit returns GitCommit or, when it was not injected, the VCS revision
// stamped by the toolchain. Dirty trees get a "-dirty" suffix.
func commit() string {
	if GitCommit != "unknown" {
		return GitCommit
	}
	info, ok := readBuildInfo()
	if !ok {
		return GitCommit
	}
	var rev, dirty string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "-dirty"
			}
		}
	}
	if rev == "" {
		return GitCommit
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return rev + dirty
}

// Info is the one-line banner printed by `storefront version`.
func Info() string {
	return fmt.Sprintf("Storefront %s (commit: %s, built: %s, go: %s)",
		Version, commit(), BuildDate, runtime.Version())
}

// Short returns just the version, e.g. "1.2.0" or "dev".
func Short() string {
	return Version
}

// UserAgent identifies storefront in image probes and remote dataset loads.
func UserAgent() string {
	return "storefront/" + Version
}

// Map is the version block of /api/v1/health and `version --format json`.
func Map() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": commit(),
		"build_date": BuildDate,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}
