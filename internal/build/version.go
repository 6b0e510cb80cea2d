// Package build exposes version information embedded at build time.
package build

import "runtime/debug"

// Set at build time via ldflags.
var (
	version = ""
	commit  = ""
)

// Version returns the release version.
// Priority: ldflags > debug.ReadBuildInfo > "(devel)"
func Version() string {
	if version != "" {
		return version
	}
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		if buildInfo.Main.Version != "" {
			return buildInfo.Main.Version
		}
	}
	return "(devel)"
}

// Commit returns the short VCS revision the binary was built from.
// Priority: ldflags > debug.ReadBuildInfo > "unknown"
func Commit() string {
	if commit != "" {
		return commit
	}
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range buildInfo.Settings {
			if setting.Key == "vcs.revision" {
				if len(setting.Value) > 7 {
					return setting.Value[:7]
				}
				return setting.Value
			}
		}
	}
	return "unknown"
}
