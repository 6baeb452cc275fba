// Package version reports the progan build version.
package version

import "runtime/debug"

// Version is set at build time:
// go build -ldflags "-X git.home.luguber.info/inful/progan/internal/version.Version=v0.3.0".
var Version = "unknown"

var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String returns the version with the commit it was built from, falling back to the
// module build info when ldflags were not set.
func String() string {
	v, commit := Version, GitCommit
	if info, ok := debug.ReadBuildInfo(); ok {
		if v == "unknown" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		if commit == "unknown" {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 8 {
					commit = s.Value[:8]
				}
			}
		}
	}
	if commit == "unknown" {
		return v
	}
	return v + " (" + commit + ")"
}
