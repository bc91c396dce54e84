// Package tray implements the system tray icon and menu.
//
// The tray is an observer: it subscribes to the event bus, pulls the server
// status when it changes and forwards clicks to the app. Rendering decisions
// live in pure helpers so they can be tested without a desktop session.
package tray

import (
	"fmt"
	"strings"

	"quill/internal/events"
	"quill/internal/language"
	"quill/internal/server"
)

// State is everything the tray renders.
type State struct {
	Server          server.Status
	ServerError     string
	Language        string
	BackgroundCheck bool
	Checking        bool
	LastMatches     int
	LastCheckFailed bool
}

// Reduce folds one event into state. The server status carried by the event
// is used as-is; the live tray replaces it with a pulled status.
func Reduce(state State, e events.Event) State {
	switch ev := e.(type) {
	case events.CheckStarted:
		state.Checking = true
	case events.CheckFinished:
		state.Checking = false
		state.LastMatches = len(ev.Result.Matches)
		state.LastCheckFailed = ev.Result.Failed()
	case events.LanguageChanged:
		state.Language = ev.Language
		state.Checking = false
	case events.ServerStatusChanged:
		state.Server = server.Status{Running: ev.Status.Running, Port: ev.Status.Port, Host: ev.Status.Host}
		state.ServerError = ""
		if ev.Err != nil {
			state.ServerError = ev.Err.Error()
		}
	}
	return state
}

// ServerLabel is the status line shown under the header.
func ServerLabel(state State) string {
	if state.Server.Running {
		host := state.Server.Host
		if host == "" {
			host = "127.0.0.1"
		}
		return fmt.Sprintf("HTTP server: running on %s:%d", host, state.Server.Port)
	}
	if state.ServerError != "" {
		return "HTTP server: stopped (" + state.ServerError + ")"
	}
	return "HTTP server: stopped"
}

// FormatTooltip renders the tray tooltip.
func FormatTooltip(state State) string {
	parts := []string{"Quill"}
	if state.Language != "" {
		parts = append(parts, language.DisplayName(state.Language))
	}
	if state.Server.Running {
		parts = append(parts, fmt.Sprintf("server on port %d", state.Server.Port))
	} else {
		parts = append(parts, "server off")
	}
	switch {
	case state.Checking:
		parts = append(parts, "checking")
	case state.LastCheckFailed:
		parts = append(parts, "last check failed")
	case state.LastMatches == 1:
		parts = append(parts, "1 issue")
	case state.LastMatches > 1:
		parts = append(parts, fmt.Sprintf("%d issues", state.LastMatches))
	}
	return strings.Join(parts, " | ")
}
