// Package version holds the release identifiers a node reports to peers
// through get_versions and prints from the version command.
package version

// Application names this software in version strings.
const Application = "gridnode"

// Flag marks development builds. Release branches keep it empty.
const Flag = ""

// OldestSupported is the oldest peer protocol version this node interoperates
// with.
const OldestSupported = "0.1.0"

var (
	// Version is the protocol version, suffixed with Flag and the commit
	// when set.
	Version = "0.1.0"

	// GitCommit is injected at build time:
	// -ldflags "-X github.com/storagegrid/gridnode/src/version.GitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	if Flag != "" {
		Version += "-" + Flag
	}
	if len(GitCommit) >= 8 {
		Version += "-" + GitCommit[:8]
	}
}

// Full returns Version prefixed with Application, as in "gridnode/0.1.0".
func Full() string {
	return Application + "/" + Version
}
