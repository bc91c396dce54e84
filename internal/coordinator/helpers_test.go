package coordinator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quill/internal/checker"
	"quill/internal/coordinator"
	"quill/internal/events"
)

// gateChecker wraps the rule checker and optionally blocks each call until
// released so tests can control which request is in flight.
type gateChecker struct {
	inner checker.Checker

	mu       sync.Mutex
	calls    []string
	entered  chan string
	release  chan struct{}
	fail     error
	panicMsg string
}

func newGateChecker(blocking bool) *gateChecker {
	g := &gateChecker{
		inner:   checker.NewRuleChecker(),
		entered: make(chan string, 16),
	}
	if blocking {
		g.release = make(chan struct{})
	}
	return g
}

func (g *gateChecker) Analyze(ctx context.Context, text, lang string) (checker.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, text)
	fail, panicMsg, release := g.fail, g.panicMsg, g.release
	g.mu.Unlock()

	select {
	case g.entered <- text:
	default:
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return checker.Result{}, ctx.Err()
		}
	}
	if panicMsg != "" {
		panic(panicMsg)
	}
	if fail != nil {
		return checker.Result{}, fail
	}
	return g.inner.Analyze(ctx, text, lang)
}

func (g *gateChecker) TokenizeSentences(text string) []string {
	return g.inner.TokenizeSentences(text)
}

func (g *gateChecker) open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.release != nil {
		close(g.release)
		g.release = nil
	}
}

func (g *gateChecker) setFailure(err error, panicMsg string) {
	g.mu.Lock()
	g.fail, g.panicMsg = err, panicMsg
	g.mu.Unlock()
}

func (g *gateChecker) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// recorder collects every event published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func record(bus *events.Bus) *recorder {
	r := &recorder{}
	bus.Subscribe(func(e events.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) finished() []events.CheckFinished {
	var out []events.CheckFinished
	for _, e := range r.snapshot() {
		if f, ok := e.(events.CheckFinished); ok {
			out = append(out, f)
		}
	}
	return out
}

func (r *recorder) started() []events.CheckStarted {
	var out []events.CheckStarted
	for _, e := range r.snapshot() {
		if s, ok := e.(events.CheckStarted); ok {
			out = append(out, s)
		}
	}
	return out
}

func newCoordinator(t *testing.T, c checker.Checker, mutate func(*coordinator.Options)) (*coordinator.Coordinator, *recorder) {
	t.Helper()
	bus := events.NewBus()
	rec := record(bus)
	opts := coordinator.Options{Checker: c, Bus: bus, Language: "en-US"}
	if mutate != nil {
		mutate(&opts)
	}
	coord, err := coordinator.New(opts)
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	t.Cleanup(coord.Close)
	return coord, rec
}

func waitIdle(t *testing.T, coord *coordinator.Coordinator) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		state := coord.State()
		if !state.Running && !state.Pending {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("coordinator did not become idle: %+v", coord.State())
}

func waitEntered(t *testing.T, g *gateChecker) string {
	t.Helper()
	select {
	case text := <-g.entered:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("checker was not invoked")
	}
	return ""
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errCheckerDown = errors.New("checker backend unavailable")

// panicTagger panics from TagSentence.
type panicTagger struct {
	*gateChecker
}

func (panicTagger) TagSentence(string) []checker.Token {
	panic("tagger exploded")
}
