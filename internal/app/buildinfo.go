package app

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/hyperifyio/webcorpus/internal/app.BuildVersion=...".
var (
	BuildVersion = "0.0.0-dev"
	BuildCommit  = ""
	BuildDate    = ""
)

// VersionString is the one-line version shown by --version. Commit and date
// fall back to the VCS stamp embedded by the go command.
func VersionString() string {
	commit, date := BuildCommit, BuildDate
	if commit == "" || date == "" {
		vcsCommit, vcsTime := vcsStamp()
		if commit == "" {
			commit = vcsCommit
		}
		if date == "" {
			date = vcsTime
		}
	}
	return fmt.Sprintf("%s (commit %s, built %s)", BuildVersion, orUnknown(commit), orUnknown(date))
}

func vcsStamp() (revision, at string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
			if len(revision) > 12 {
				revision = revision[:12]
			}
		case "vcs.time":
			at = s.Value
		}
	}
	return revision, at
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
