package discovery

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseContainers(t *testing.T) {
	tests := []struct {
		Name   string
		Output string
		Want   []string
	}{
		{"typical", "nginx\npostgres\nredis\n", []string{"nginx", "postgres", "redis"}},
		{"blank-lines", "\nnginx\n\n\npostgres\n", []string{"nginx", "postgres"}},
		{"duplicates", "nginx\nnginx\n", []string{"nginx"}},
		{"empty", "", nil},
		{"whitespace", "  nginx  \n", []string{"nginx"}},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			if diff := cmp.Diff(tt.Want, parseContainers(tt.Output)); diff != "" {
				t.Errorf("unexpected containers:\n%s", diff)
			}
		})
	}
}

func TestParseUnits(t *testing.T) {
	output := "" +
		"nginx.service     loaded active running A high performance web server\n" +
		"sshd.service      loaded active running OpenSSH server daemon\n" +
		"session-1.scope   loaded active running Session 1 of User root\n" +
		"cron.service      loaded active running Regular background program processing daemon\n" +
		"\n"

	want := []string{"nginx.service", "sshd.service", "cron.service"}
	if diff := cmp.Diff(want, parseUnits(output)); diff != "" {
		t.Errorf("unexpected units:\n%s", diff)
	}
}

func TestParseUnits_empty(t *testing.T) {
	if got := parseUnits(""); got != nil {
		t.Errorf("expected no units but got %v", got)
	}
}
