package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Set at build time, for example:
//
//	-X github.com/tis24dev/savesync/internal/version.Version=v0.3.0
//	-X github.com/tis24dev/savesync/internal/version.Commit=abcdef123
var (
	// Version is empty in development builds.
	Version = ""

	Commit = ""

	Date = ""
)

var readBuildInfo = debug.ReadBuildInfo

// String returns the version without a leading "v". The injected Version wins,
// then the main module version, then "0.0.0-dev".
func String() string {
	v := strings.TrimSpace(Version)

	if v == "" {
		if info, ok := readBuildInfo(); ok && info != nil {
			if mv := strings.TrimSpace(info.Main.Version); mv != "" && mv != "(devel)" {
				v = mv
			}
		}
	}

	if v == "" {
		v = "0.0.0-dev"
	}
	return strings.TrimPrefix(v, "v")
}

// Full appends commit and build date when known.
func Full() string {
	v := String()
	var extra []string
	if c := strings.TrimSpace(Commit); c != "" {
		if len(c) > 12 {
			c = c[:12]
		}
		extra = append(extra, "commit "+c)
	}
	if d := strings.TrimSpace(Date); d != "" {
		extra = append(extra, "built "+d)
	}
	if len(extra) == 0 {
		return v
	}
	return fmt.Sprintf("%s (%s)", v, strings.Join(extra, ", "))
}
