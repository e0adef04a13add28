// Package buildinfo carries the version stamp of MVRP binaries. Values are
// injected at link time with -ldflags "-X".
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Injected at link time.
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)

// Info is the structured build stamp printed by `mvrp version`.
type Info struct {
	Version    string `json:"version" yaml:"version"`
	CommitHash string `json:"commit_hash" yaml:"commit_hash"`
	BuildTime  string `json:"build_time" yaml:"build_time"`
	GoVersion  string `json:"go_version" yaml:"go_version"`
	Platform   string `json:"platform" yaml:"platform"`
}

// Get returns the build stamp. A binary installed with `go install` has no
// injected version, so the module version and VCS revision recorded by the
// toolchain fill the gaps.
func Get() Info {
	info := Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.CommitHash == "unknown" {
				info.CommitHash = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("mvrp %s (commit %s, built %s, %s %s)",
		i.Version, i.CommitHash, i.BuildTime, i.GoVersion, i.Platform)
}
