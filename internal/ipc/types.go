package ipc

import (
	"time"

	"quill/internal/checker"
	"quill/internal/history"
)

// ServiceName is the net/rpc service the server registers.
const ServiceName = "Quill"

// CallerPrefix marks caller ids generated for IPC clients.
const CallerPrefix = "ipc-"

// Stale reasons reported by Check.
const (
	StaleLanguageChanged = "language_changed"
	StaleSuperseded      = "superseded"
	StaleTimeout         = "timeout"
	StaleClosed          = "closed"
)

// ServerInfo mirrors the embedded server state.
type ServerInfo struct {
	Running      bool   `json:"running" yaml:"running"`
	Port         int    `json:"port,omitempty" yaml:"port,omitempty"`
	Host         string `json:"host,omitempty" yaml:"host,omitempty"`
	URL          string `json:"url,omitempty" yaml:"url,omitempty"`
	RunOnStartup bool   `json:"run_on_startup" yaml:"run_on_startup"`
}

// StatusRequest is empty.
type StatusRequest struct{}

// StatusResponse describes the running process.
type StatusResponse struct {
	PID             int        `json:"pid" yaml:"pid"`
	RunID           string     `json:"run_id" yaml:"run_id"`
	StartedAt       time.Time  `json:"started_at" yaml:"started_at"`
	ConfigPath      string     `json:"config_path,omitempty" yaml:"config_path,omitempty"`
	LogPath         string     `json:"log_path,omitempty" yaml:"log_path,omitempty"`
	HistoryPath     string     `json:"history_path,omitempty" yaml:"history_path,omitempty"`
	Language        string     `json:"language" yaml:"language"`
	AutoDetect      bool       `json:"auto_detect" yaml:"auto_detect"`
	BackgroundCheck bool       `json:"background_check" yaml:"background_check"`
	LastSequence    uint64     `json:"last_sequence" yaml:"last_sequence"`
	CheckRunning    bool       `json:"check_running" yaml:"check_running"`
	CheckPending    bool       `json:"check_pending" yaml:"check_pending"`
	Server          ServerInfo `json:"server" yaml:"server"`
}

// CheckRequest asks for a check. An empty Caller gets a fresh ipc-<uuid> id.
// When Language is set the text is checked directly in that language without
// touching the active language or sequencing.
type CheckRequest struct {
	Text      string `json:"text"`
	Caller    string `json:"caller,omitempty"`
	Language  string `json:"language,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// CheckResponse carries the delivered result, or the reason none was.
type CheckResponse struct {
	Caller      string         `json:"caller" yaml:"caller"`
	Sequence    uint64         `json:"sequence" yaml:"sequence"`
	Stale       bool           `json:"stale" yaml:"stale"`
	StaleReason string         `json:"stale_reason,omitempty" yaml:"stale_reason,omitempty"`
	DurationMs  int64          `json:"duration_ms" yaml:"duration_ms"`
	Result      checker.Result `json:"result" yaml:"result"`
}

// EditRequest reports an edit for background checking.
type EditRequest struct {
	Text   string `json:"text"`
	Caller string `json:"caller"`
}

// EditResponse reports whether background checking accepted the edit.
type EditResponse struct {
	Accepted bool `json:"accepted"`
}

// TagRequest asks for per-sentence token analysis.
type TagRequest struct {
	Text string `json:"text"`
}

// TagResponse holds one entry per sentence.
type TagResponse struct {
	Sentences []checker.TaggedSentence `json:"sentences" yaml:"sentences"`
}

// SetLanguageRequest changes the active language.
type SetLanguageRequest struct {
	Language string `json:"language"`
}

// SetLanguageResponse returns the canonical tag.
type SetLanguageResponse struct {
	Language string `json:"language" yaml:"language"`
}

// ToggleRequest carries an on/off switch.
type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// ToggleResponse echoes the resulting switch value.
type ToggleResponse struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// ServerStartRequest starts the embedded server. A nil Port uses the
// configured port.
type ServerStartRequest struct {
	Port *int `json:"port,omitempty"`
}

// ServerResponse reports the server state after a transition. Error carries
// a bind failure message; the call itself succeeds so the state is visible.
type ServerResponse struct {
	Server ServerInfo `json:"server" yaml:"server"`
	Error  string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// ServerStopRequest is empty.
type ServerStopRequest struct{}

// HistoryRequest lists or clears stored checks.
type HistoryRequest struct {
	Limit int  `json:"limit,omitempty"`
	Clear bool `json:"clear,omitempty"`
}

// HistoryResponse contains entries newest first plus aggregate stats.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries" yaml:"entries"`
	Stats   history.Stats   `json:"stats" yaml:"stats"`
	Removed int64           `json:"removed,omitempty" yaml:"removed,omitempty"`
}

// QuitRequest is empty.
type QuitRequest struct{}

// QuitResponse acknowledges a shutdown request.
type QuitResponse struct {
	Stopping bool `json:"stopping"`
}
