package main

import (
	"runtime"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/pkg/constants"
)

// Set with -ldflags "-X main.gitCommit=... -X main.buildDate=..."
var (
	gitCommit string
	buildDate string
)

// BuildInfo describes the running server binary
type BuildInfo struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// GetBuildInfo prefers the linker-provided commit and date and falls back to
// the VCS stamp embedded by the toolchain
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:    constants.AppVersion,
		APIVersion: constants.APIVersion,
		GitCommit:  gitCommit,
		BuildDate:  buildDate,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.GitCommit == "":
				info.GitCommit = s.Value
			case s.Key == "vcs.time" && info.BuildDate == "":
				info.BuildDate = s.Value
			}
		}
	}
	if info.GitCommit == "" {
		info.GitCommit = "unknown"
	}
	if info.BuildDate == "" {
		info.BuildDate = "unknown"
	}
	return info
}

func (b BuildInfo) fields() logrus.Fields {
	return logrus.Fields{
		"version":     b.Version,
		"api_version": b.APIVersion,
		"commit":      b.GitCommit,
		"build_date":  b.BuildDate,
	}
}
