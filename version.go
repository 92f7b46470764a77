package mailmerge

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"
)

// Build information, injected with -ldflags "-X github.com/lattiq/mailmerge.Version=...".
var (
	// Version is the semantic version of the binary.
	Version = "dev"

	// GitCommit is the git commit hash when the binary was built.
	GitCommit = "unknown"

	// BuildDate is the date when the binary was built.
	BuildDate = "unknown"
)

// VersionInfo contains detailed version information.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Module    string `json:"module,omitempty"`
}

// GetVersionInfo returns version information, filling unset values from the
// binary's embedded VCS data when available.
func GetVersionInfo() *VersionInfo {
	info := &VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	if buildInfo.Main.Path != "" {
		info.Module = buildInfo.Main.Path
	}

	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = setting.Value
				if len(info.GitCommit) > 12 {
					info.GitCommit = info.GitCommit[:12]
				}
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = setting.Value
			}
		case "vcs.modified":
			if setting.Value == "true" && !strings.HasSuffix(info.GitCommit, "-dirty") {
				info.GitCommit += "-dirty"
			}
		}
	}

	return info
}

// String returns a human-readable version string.
func (v *VersionInfo) String() string {
	parts := []string{fmt.Sprintf("Version: %s", v.Version)}

	if v.GitCommit != "unknown" && v.GitCommit != "" {
		parts = append(parts, fmt.Sprintf("Commit: %s", v.GitCommit))
	}
	if v.BuildDate != "unknown" && v.BuildDate != "" {
		parts = append(parts, fmt.Sprintf("Built: %s", v.BuildDate))
	}
	parts = append(parts, fmt.Sprintf("Go: %s", v.GoVersion), fmt.Sprintf("Platform: %s", v.Platform))

	return strings.Join(parts, ", ")
}

// UserAgent returns the user agent sent with API requests.
func (v *VersionInfo) UserAgent() string {
	return fmt.Sprintf("mailmerge/%s (%s)", v.Version, v.Platform)
}

// IsDevBuild returns true if this is a development build.
func (v *VersionInfo) IsDevBuild() bool {
	return strings.Contains(v.Version, "dev") ||
		strings.HasSuffix(v.GitCommit, "-dirty") ||
		v.GitCommit == "unknown"
}

// UserAgent returns the user agent of the running binary.
func UserAgent() string {
	return GetVersionInfo().UserAgent()
}

// PrintVersion writes version information to w.
func PrintVersion(w io.Writer) {
	info := GetVersionInfo()
	fmt.Fprintln(w, "mailmerge")
	fmt.Fprintln(w, info.String())
	if info.Module != "" {
		fmt.Fprintf(w, "Module: %s\n", info.Module)
	}
}
