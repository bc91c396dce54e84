package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"quill/internal/events"
	"quill/internal/logging"
)

const recorderBuffer = 64

// Recorder writes every CheckFinished on the bus to a Store.
type Recorder struct {
	store  *Store
	logger *slog.Logger
	sub    events.Subscription

	mu      sync.Mutex
	closed  bool
	entries chan Entry
	done    chan struct{}
}

// NewRecorder subscribes to bus and starts the writer goroutine.
func NewRecorder(store *Store, bus *events.Bus, logger *slog.Logger) *Recorder {
	r := &Recorder{
		store:   store,
		logger:  logging.NewComponentLogger(logger, "history"),
		entries: make(chan Entry, recorderBuffer),
		done:    make(chan struct{}),
	}
	go r.run()
	r.sub = bus.Subscribe(r.observe)
	return r
}

func (r *Recorder) observe(e events.Event) {
	finished, ok := e.(events.CheckFinished)
	if !ok {
		return
	}
	entry := Entry{
		Caller:     finished.Caller,
		Sequence:   finished.Sequence,
		Language:   finished.Result.Language,
		DurationMs: finished.DurationMs(),
		MatchCount: len(finished.Result.Matches),
		Error:      finished.Result.Error,
		CreatedAt:  time.Now().UTC(),
	}
	for _, m := range finished.Result.Matches {
		entry.RuleIDs = append(entry.RuleIDs, m.RuleID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.entries <- entry:
	default:
		logging.WarnWithContext(r.logger, "history buffer full; entry dropped", "history_dropped",
			logging.String(logging.FieldCaller, entry.Caller),
			logging.Uint64(logging.FieldSequence, entry.Sequence),
			logging.String(logging.FieldErrorHint, "check disk performance of the state directory"),
			logging.String(logging.FieldImpact, "check missing from history"),
		)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for entry := range r.entries {
		if _, err := r.store.Add(context.Background(), entry); err != nil {
			logging.WarnWithContext(r.logger, "history write failed", "history_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions of the history database"),
				logging.String(logging.FieldImpact, "check missing from history"),
			)
		}
	}
}

// Close unsubscribes and waits until queued entries are written.
func (r *Recorder) Close() {
	r.sub.Unsubscribe()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.entries)
	r.mu.Unlock()
	<-r.done
}
