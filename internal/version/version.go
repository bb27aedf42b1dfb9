// Package version reports the build of the lifx binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/muurk/lifxlan/internal/protocol"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/lifxlan/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/lifxlan/internal/version.Commit=abc1234"
var (
	Version = ""
	Commit  = ""
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `yaml:"version"`
	Commit    string `yaml:"commit"`
	Modified  bool   `yaml:"modified,omitempty"`
	GoVersion string `yaml:"go"`
	Protocol  string `yaml:"protocol"` // Header protocol field written on every frame
}

var (
	once sync.Once
	info BuildInfo
)

// Get returns the build info, filling gaps from the VCS stamp the Go
// toolchain embeds.
func Get() BuildInfo {
	once.Do(func() {
		info = resolve(Version, Commit, readSettings())
	})
	return info
}

func readSettings() map[string]string {
	settings := map[string]string{}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return settings
	}
	for _, s := range bi.Settings {
		settings[s.Key] = s.Value
	}
	return settings
}

func resolve(version, commit string, settings map[string]string) BuildInfo {
	bi := BuildInfo{
		Version:   version,
		Commit:    commit,
		Modified:  settings["vcs.modified"] == "true",
		GoVersion: runtime.Version(),
		Protocol:  fmt.Sprintf("0x%04X", protocol.DefaultProtocol),
	}

	if bi.Commit == "" {
		bi.Commit = settings["vcs.revision"]
		if len(bi.Commit) > 7 {
			bi.Commit = bi.Commit[:7]
		}
	}
	if bi.Commit == "" {
		bi.Commit = "unknown"
	}

	if bi.Version == "" {
		// No tags in build info; use the commit date.
		if t := settings["vcs.time"]; len(t) >= 10 {
			bi.Version = "dev-" + t[:4] + t[5:7] + t[8:10]
		} else {
			bi.Version = "dev"
		}
	}
	return bi
}

// Full returns the version string including commit
func Full() string {
	bi := Get()
	commit := bi.Commit
	if bi.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (commit: %s)", bi.Version, commit)
}
