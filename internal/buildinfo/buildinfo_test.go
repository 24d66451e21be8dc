package buildinfo

import (
	"strings"
	"testing"
)

func TestUserAgent(t *testing.T) {
	orig := Version
	Version = "1.2.3"
	defer func() { Version = orig }()

	ua := UserAgent()
	if !strings.HasPrefix(ua, "Moltbot/1.2.3") {
		t.Errorf("UserAgent() = %q, want Moltbot/1.2.3 prefix", ua)
	}
}

func TestBuildInfo_OmitsUptime(t *testing.T) {
	info := BuildInfo()
	if _, ok := info["uptime"]; ok {
		t.Error("BuildInfo() should not include uptime")
	}
	for _, k := range []string{"version", "git_commit", "go_version", "os", "arch"} {
		if info[k] == "" {
			t.Errorf("BuildInfo()[%q] is empty", k)
		}
	}
}
