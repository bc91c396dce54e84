// Package logging assembles structured slog loggers and formatting helpers used
// across quill services.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes attribute helpers so the coordinator, the server manager, and the IPC
// layer tag their log lines with the same keys (component, caller, sequence,
// event_type). A no-op logger is provided for tests and wiring code that cannot
// fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// records with the same shape as the rest of the process.
package logging
