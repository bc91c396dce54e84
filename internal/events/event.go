package events

import (
	"time"

	"quill/internal/checker"
)

// Kind tags for the event variants.
const (
	KindCheckStarted    = "check_started"
	KindCheckFinished   = "check_finished"
	KindLanguageChanged = "language_changed"
	KindServerStatus    = "server_status"
)

// Event is one of CheckStarted, CheckFinished, LanguageChanged or
// ServerStatusChanged.
type Event interface {
	Kind() string
}

// CheckStarted is published when a check request has been accepted.
type CheckStarted struct {
	Caller   string
	Sequence uint64
	At       time.Time
}

func (CheckStarted) Kind() string { return KindCheckStarted }

// CheckFinished carries the outcome of the latest request for Caller.
// Result.Error is set when the checker failed.
type CheckFinished struct {
	Caller   string
	Sequence uint64
	Duration time.Duration
	Result   checker.Result
}

func (CheckFinished) Kind() string { return KindCheckFinished }

// DurationMs reports the check duration in whole milliseconds.
func (e CheckFinished) DurationMs() int64 { return e.Duration.Milliseconds() }

// LanguageChanged is published after the checker language changed.
type LanguageChanged struct {
	Language string
}

func (LanguageChanged) Kind() string { return KindLanguageChanged }

// ServerState mirrors the embedded server status at publish time.
type ServerState struct {
	Running bool
	Port    int
	Host    string
}

// ServerStatusChanged is published after every server lifecycle transition,
// including failed starts (Err set, Status.Running false).
type ServerStatusChanged struct {
	Status ServerState
	Err    error
}

func (ServerStatusChanged) Kind() string { return KindServerStatus }
