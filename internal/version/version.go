// Package version provides build-time version information.
// Version, Commit and BuildTime are populated via ldflags:
//
//	go build -ldflags "-X github.com/doughall/recurd/internal/version.Version=1.0.0 \
//	                   -X github.com/doughall/recurd/internal/version.Commit=abc123 \
//	                   -X github.com/doughall/recurd/internal/version.BuildTime=2025-01-29T12:00:00Z"
package version

var (
	// Version is the semantic version (e.g., "1.0.0", "dev").
	Version = "dev"

	// Commit is the git commit hash from which the binary was built.
	Commit = "unknown"

	// BuildTime is the timestamp when the binary was built (RFC3339 format).
	BuildTime = "unknown"
)

// Info returns a one-line version string for the named program.
func Info(program string) string {
	return program + " " + Version + " (commit: " + Commit + ", built: " + BuildTime + ")"
}
