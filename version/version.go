package version

import (
	"runtime"
	"runtime/debug"
)

// BuildVersion is intended to be set at build time via -ldflags, with
// a fallback to VCS build info when unset.
var BuildVersion = "1.0.0"

type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get assembles build information for the named service.
func Get(service string) Info {
	gitSHA := ""
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				gitSHA = s.Value
			}
		}
	}
	return Info{
		Service:   service,
		Version:   BuildVersion,
		GitSHA:    gitSHA,
		GoVersion: runtime.Version(),
	}
}
