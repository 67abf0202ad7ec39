package app

import (
	"strings"
	"testing"
)

func TestVersionString_PrefersLinkerValues(t *testing.T) {
	oldCommit, oldDate := BuildCommit, BuildDate
	t.Cleanup(func() { BuildCommit, BuildDate = oldCommit, oldDate })

	BuildCommit, BuildDate = "abc1234", "2026-01-02T03:04:05Z"
	if got, want := VersionString(), BuildVersion+" (commit abc1234, built 2026-01-02T03:04:05Z)"; got != want {
		t.Fatalf("VersionString() = %q, want %q", got, want)
	}

	BuildCommit, BuildDate = "", ""
	got := VersionString()
	if !strings.HasPrefix(got, BuildVersion+" (commit ") || strings.Contains(got, "commit ,") {
		t.Fatalf("fallback version string malformed: %q", got)
	}
}
