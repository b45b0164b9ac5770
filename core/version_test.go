package core

import (
	"strings"
	"testing"
)

func TestVersionInfo(t *testing.T) {
	tests := []struct {
		name                   string
		version, built, commit string
		vcs                    string
		want                   string
	}{
		{"ldflags win", "v1.2.0", "2026-03-01T12:00:00Z", "abc1234", "fffffff", "v1.2.0 (built 2026-03-01T12:00:00Z, commit abc1234)"},
		{"vcs fallback", "dev", "unknown", "unknown", "0d4c2e1", "dev (built unknown, commit 0d4c2e1)"},
		{"empty commit uses vcs", "dev", "unknown", "", "0d4c2e1", "dev (built unknown, commit 0d4c2e1)"},
		{"nothing known", "dev", "unknown", "unknown", "", "dev (built unknown, commit unknown)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := versionInfo(tt.version, tt.built, tt.commit, tt.vcs); got != tt.want {
				t.Errorf("versionInfo() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetVersionInfo_UsesLinkedVersion(t *testing.T) {
	saved := Version
	t.Cleanup(func() { Version = saved })

	Version = "v9.9.9"
	if GetVersion() != "v9.9.9" {
		t.Errorf("GetVersion() = %q", GetVersion())
	}
	if info := GetVersionInfo(); !strings.HasPrefix(info, "v9.9.9 (built ") {
		t.Errorf("GetVersionInfo() = %q", info)
	}
}
