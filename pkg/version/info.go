// Package version carries build metadata for the dynalock binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const (
	// Unknown is used when build metadata is not provided.
	Unknown = "unknown"
	// DevelopmentVersion is the default version in local builds.
	DevelopmentVersion = "dev"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/nimburion/dynalock/pkg/version.AppVersion=v1.2.3"
var (
	AppVersion = DevelopmentVersion
	GitCommit  = Unknown
	BuildTime  = Unknown
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info contains version metadata for an application.
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Current returns the build metadata. Values not injected through ldflags
// fall back to what the Go toolchain embedded in the binary.
func Current(serviceName string) Info {
	info := Info{
		Service:   normalizeOrDefault(serviceName, Unknown),
		Version:   normalizeOrDefault(AppVersion, DevelopmentVersion),
		Commit:    normalizeOrDefault(GitCommit, Unknown),
		BuildTime: normalizeOrDefault(BuildTime, Unknown),
		GoVersion: runtime.Version(),
	}

	build, ok := readBuildInfo()
	if !ok || build == nil {
		return info
	}
	if info.Version == DevelopmentVersion {
		if v := build.Main.Version; v != "" && v != "(devel)" {
			info.Version = v
		}
	}
	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == Unknown && setting.Value != "" {
				info.Commit = setting.Value
			}
		case "vcs.time":
			if info.BuildTime == Unknown && setting.Value != "" {
				info.BuildTime = setting.Value
			}
		}
	}
	return info
}

// String returns a log-friendly representation.
func (i Info) String() string {
	return fmt.Sprintf("%s@%s (commit=%s, build_time=%s, go=%s)", i.Service, i.Version, i.Commit, i.BuildTime, i.GoVersion)
}

func normalizeOrDefault(v, fallback string) string {
	norm := strings.TrimSpace(v)
	if norm == "" {
		return fallback
	}
	return norm
}
