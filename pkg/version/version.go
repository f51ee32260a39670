// Package version reports build information, set at link time with
// -ldflags "-X github.com/openshift/culprit/pkg/version.commitFromGit=...".
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	commitFromGit = ""
	buildDate     = ""
)

type Info struct {
	GitCommit string `json:"gitCommit" yaml:"gitCommit"`
	BuildDate string `json:"buildDate,omitempty" yaml:"buildDate,omitempty"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
}

// Get falls back to the VCS stamp of the binary when no commit was linked in.
func Get() Info {
	commit := commitFromGit
	if commit == "" {
		commit = "unknown"
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
				}
			}
		}
	}
	return Info{
		GitCommit: commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
	}
}
