// Package buildinfo holds version metadata stamped in at build time by
// govvv. cmd/indexer tags every log line with GitCommit as its "version"
// field; no status or query output carries it.
package buildinfo

var (
	// GitCommit is set by govvv at build time.
	GitCommit = "n/a"
	// GitBranch  is set by govvv at build time.
	GitBranch = "n/a"
	// GitState  is set by govvv at build time.
	GitState = "n/a"
	// GitSummary is set by govvv at build time.
	GitSummary = "n/a"
	// BuildDate  is set by govvv at build time.
	BuildDate = "n/a"
	// Version  is set by govvv at build time.
	Version = "n/a"
)

// Summary is a snapshot of the binary's build-time git metadata.
type Summary struct {
	GitCommit     string
	GitBranch     string
	GitState      string
	GitSummary    string
	BuildDate     string
	BinaryVersion string
}

// GetSummary returns a summary of git information.
func GetSummary() Summary {
	return Summary{
		GitCommit:     GitCommit,
		GitBranch:     GitBranch,
		GitState:      GitState,
		GitSummary:    GitSummary,
		BuildDate:     BuildDate,
		BinaryVersion: Version,
	}
}
