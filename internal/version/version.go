// Package version reports the build version of the binary.
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	// Version is overridden with -ldflags at build time.
	Version = "dev"
	// CommitHash is overridden with -ldflags, or read from VCS build info.
	CommitHash = ""
	// BuildTime is overridden with -ldflags, or read from VCS build info.
	BuildTime = ""
)

var loadVCS sync.Once

// Info is the machine-readable build description.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// Get returns the build description, filling commit data from the Go build info when
// ldflags did not set it.
func Get() Info {
	loadVCS.Do(func() {
		if CommitHash != "" {
			return
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				CommitHash = setting.Value
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	})
	return Info{Version: Version, Commit: CommitHash, BuildTime: BuildTime}
}

// GetInfo returns "version (short-hash)".
func GetInfo() string {
	info := Get()
	res := info.Version
	if info.Commit != "" {
		shortHash := info.Commit
		if len(shortHash) > 7 {
			shortHash = shortHash[:7]
		}
		res += fmt.Sprintf(" (%s)", shortHash)
	}
	return res
}
