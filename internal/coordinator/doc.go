// Package coordinator runs grammar checks off the caller's goroutine and
// reports their outcome on the event bus.
//
// Every TriggerCheck gets a fresh sequence number that becomes the latest
// one for its caller. A single worker runs one check at a time. Each caller
// has at most one request waiting; a newer request from the same caller
// replaces it, and waiting callers are served in arrival order. When a
// check completes, CheckFinished is published only if the request is still
// the latest for its caller and the language has not changed since it was
// issued. Everything else is dropped with a debug log line.
//
// Bus publishes happen while the coordinator holds its lock, which is what
// keeps a stale CheckFinished from ever following a newer CheckStarted.
// Event handlers therefore must not call back into the Coordinator on the
// publishing goroutine.
package coordinator
