// Package version reports the build version of the lobby binaries.
package version

import (
	"runtime/debug"
	"sync"
)

// Set with -ldflags "-X github.com/memohai/lobby/internal/version.Version=..." at build time.
var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = ""
)

// Info is the resolved build information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

var (
	once     sync.Once
	resolved Info
)

// Get returns the build information, falling back to the VCS stamp embedded
// by the Go toolchain when ldflags did not set it.
func Get() Info {
	once.Do(func() {
		resolved = Info{Version: Version, Commit: CommitHash, BuildTime: BuildTime}
		if resolved.Commit != "" {
			return
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				resolved.Commit = setting.Value
			case "vcs.time":
				if resolved.BuildTime == "" {
					resolved.BuildTime = setting.Value
				}
			}
		}
	})
	return resolved
}

// String formats the version with a short commit, e.g. "v0.3.0 (1a2b3c4)".
func (i Info) String() string {
	if i.Commit == "" {
		return i.Version
	}
	short := i.Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return i.Version + " (" + short + ")"
}
