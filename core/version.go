package core

import "runtime/debug"

// Build metadata, set at link time:
//
//	go build -ldflags "-X stylizer/core.Version=v1.2.0 -X stylizer/core.GitCommit=$(git rev-parse --short HEAD)"
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the application version string.
func GetVersion() string {
	return Version
}

// GetVersionInfo returns "<version> (built <time>, commit <hash>)". A commit
// missing from the ldflags is taken from the VCS stamp of the binary.
func GetVersionInfo() string {
	return versionInfo(Version, BuildTime, GitCommit, vcsRevision())
}

func versionInfo(version, built, commit, vcs string) string {
	if (commit == "" || commit == "unknown") && vcs != "" {
		commit = vcs
	}
	return version + " (built " + built + ", commit " + commit + ")"
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 7 {
				return s.Value[:7]
			}
			return s.Value
		}
	}
	return ""
}
