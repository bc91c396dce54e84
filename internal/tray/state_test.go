package tray

import (
	"errors"
	"strings"
	"testing"
	"time"

	"quill/internal/checker"
	"quill/internal/events"
	"quill/internal/server"
)

func TestServerLabel(t *testing.T) {
	cases := []struct {
		name  string
		state State
		want  string
	}{
		{"stopped", State{}, "HTTP server: stopped"},
		{"running", State{Server: server.Status{Running: true, Port: 8081, Host: "127.0.0.1"}}, "HTTP server: running on 127.0.0.1:8081"},
		{"running default host", State{Server: server.Status{Running: true, Port: 9000}}, "HTTP server: running on 127.0.0.1:9000"},
		{"bind failure", State{ServerError: "address in use"}, "HTTP server: stopped (address in use)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ServerLabel(tc.state); got != tc.want {
				t.Fatalf("ServerLabel = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormatTooltip(t *testing.T) {
	got := FormatTooltip(State{Language: "de", Server: server.Status{Running: true, Port: 8081}, LastMatches: 3})
	if got != "Quill | German | server on port 8081 | 3 issues" {
		t.Fatalf("unexpected tooltip %q", got)
	}
	got = FormatTooltip(State{Checking: true})
	if got != "Quill | server off | checking" {
		t.Fatalf("unexpected tooltip %q", got)
	}
	if got := FormatTooltip(State{LastMatches: 1}); !strings.HasSuffix(got, "| 1 issue") {
		t.Fatalf("unexpected singular tooltip %q", got)
	}
	if got := FormatTooltip(State{LastCheckFailed: true, LastMatches: 2}); !strings.HasSuffix(got, "last check failed") {
		t.Fatalf("expected failure to win over match count, got %q", got)
	}
}

func TestReduce(t *testing.T) {
	var s State
	s = Reduce(s, events.CheckStarted{Caller: "editor", Sequence: 1, At: time.Now()})
	if !s.Checking {
		t.Fatal("expected checking after CheckStarted")
	}
	s = Reduce(s, events.CheckFinished{Caller: "editor", Sequence: 1, Result: checker.Result{Matches: []checker.Match{{}, {}}}})
	if s.Checking || s.LastMatches != 2 || s.LastCheckFailed {
		t.Fatalf("unexpected state after finish %+v", s)
	}
	s = Reduce(s, events.LanguageChanged{Language: "fr"})
	if s.Language != "fr" {
		t.Fatalf("expected language fr, got %q", s.Language)
	}

	s = Reduce(s, events.ServerStatusChanged{Err: errors.New("address in use")})
	if s.Server.Running || s.ServerError != "address in use" {
		t.Fatalf("unexpected state after failed start %+v", s)
	}
	s = Reduce(s, events.ServerStatusChanged{Status: events.ServerState{Running: true, Port: 8081, Host: "127.0.0.1"}})
	if !s.Server.Running || s.Server.Port != 8081 || s.ServerError != "" {
		t.Fatalf("unexpected state after start %+v", s)
	}
}
