// Package buildinfo carries version metadata for `sheetrelay --version`,
// stamped at link time:
//
//	go build -ldflags "-X github.com/remitlab/sheetrelay/internal/buildinfo.Version=v0.3.0 \
//	  -X github.com/remitlab/sheetrelay/internal/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the version line shown by the root command.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + Date + ")"
}
