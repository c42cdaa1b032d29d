// Package buildinfo reports the version of the running binary.
//
// Version, commit and build time are injected with ldflags:
//
//	go build -ldflags "-X github.com/brightkeycloud-chad/lifecycle/buildinfo.version=v0.3.0 \
//	    -X github.com/brightkeycloud-chad/lifecycle/buildinfo.gitCommit=$(git rev-parse --short HEAD)"
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Properties describes the running binary.
type Properties struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
}

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Get returns the build properties. When no commit was injected, the VCS revision
// recorded by the Go toolchain is used if available.
func Get() Properties {
	p := Properties{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
		GoVersion: runtime.Version(),
	}
	if p.GitCommit != "unknown" {
		return p
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				p.GitCommit = s.Value
			case "vcs.time":
				if p.BuildTime == "unknown" {
					p.BuildTime = s.Value
				}
			}
		}
	}
	return p
}

// String formats the properties for a --version flag.
func (p Properties) String() string {
	return fmt.Sprintf("lifecycle %s (commit %s, built %s, %s)", p.Version, p.GitCommit, p.BuildTime, p.GoVersion)
}
