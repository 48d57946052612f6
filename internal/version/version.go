// Package version exposes the build information served on /version.
package version

import "runtime"

// Set with -ldflags "-X github.com/ethpandaops/resultgrid/internal/version.Release=...".
var (
	Release = "dev"
	Commit  = "unknown"
	Built   = "unknown"
)

// Info is the /version response body.
type Info struct {
	Release   string `json:"release"`
	Commit    string `json:"commit"`
	Built     string `json:"built"`
	GoVersion string `json:"goVersion"`
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		Release:   Release,
		Commit:    Commit,
		Built:     Built,
		GoVersion: runtime.Version(),
	}
}
