package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
)

var (
	// Set by -ldflags; empty or the placeholder means "ask the build info".
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info contains version information
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Package   string `json:"package"`
}

func buildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	if key == "" {
		if v := info.Main.Version; v != "(devel)" {
			return v
		}
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func pick(injected, placeholder, setting, fallback string) string {
	if injected != "" && injected != placeholder {
		return injected
	}
	if v := buildSetting(setting); v != "" {
		return v
	}
	return fallback
}

// GetVersion returns the release version, or "development".
func GetVersion() string { return pick(Version, "dev", "", "development") }

// GetCommit returns the VCS revision the binary was built from.
func GetCommit() string { return pick(Commit, "unknown", "vcs.revision", "unknown") }

// GetBuildDate returns the build or commit time.
func GetBuildDate() string { return pick(Date, "unknown", "vcs.time", "unknown") }

// GetInfo returns complete version information
func GetInfo() Info {
	return Info{
		Version:   GetVersion(),
		Commit:    GetCommit(),
		Date:      GetBuildDate(),
		GoVersion: runtime.Version(),
		Package:   "parzip",
	}
}

// String formats i the way --version prints it.
func (i Info) String() string {
	if i.Commit == "unknown" || len(i.Commit) <= 7 {
		return i.Version
	}
	short := i.Commit[:7]
	if i.Date != "unknown" {
		return fmt.Sprintf("%s (%s, built %s)", i.Version, short, i.Date)
	}
	return fmt.Sprintf("%s (%s)", i.Version, short)
}

// GetFullVersion returns a formatted version string with commit and date
func GetFullVersion() string {
	return GetInfo().String()
}

// Fprint writes a multi-line version report to w.
func Fprint(w io.Writer, appName string) {
	info := GetInfo()
	fmt.Fprintf(w, "%s version %s\n", appName, info)
	fmt.Fprintf(w, "Package: %s\n", info.Package)
	fmt.Fprintf(w, "Commit: %s\n", info.Commit)
	fmt.Fprintf(w, "Build Date: %s\n", info.Date)
	fmt.Fprintf(w, "Go: %s\n", info.GoVersion)
}
