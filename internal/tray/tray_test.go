package tray

import (
	"sync"
	"testing"
	"time"

	"quill/internal/app"
	"quill/internal/events"
	"quill/internal/logging"
	"quill/internal/server"
)

// lockingController takes mu in Options, standing in for the app and
// coordinator locks that are held while events are published.
type lockingController struct {
	mu         sync.Mutex
	background bool
	entered    chan struct{}
	once       sync.Once
}

func (c *lockingController) SetServerEnabled(enabled bool) (server.Status, error) {
	return server.Status{Running: enabled}, nil
}

func (c *lockingController) SetBackgroundCheck(enabled bool) error {
	c.background = enabled
	return nil
}

func (c *lockingController) Options() app.Options {
	if c.entered != nil {
		c.once.Do(func() { close(c.entered) })
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return app.Options{Language: "en-US", BackgroundCheck: c.background}
}

type fixedStatus struct{ status server.Status }

func (f fixedStatus) Status() server.Status { return f.status }

func newTestTray(ctrl Controller) *Tray {
	return New(Params{
		Controller: ctrl,
		Server:     fixedStatus{status: server.Status{Running: true, Port: 8081, Host: "127.0.0.1"}},
		Logger:     logging.NewNop(),
	})
}

func TestBackgroundToggleDoesNotHoldTrayLockWhileReadingOptions(t *testing.T) {
	ctrl := &lockingController{background: true}
	tr := newTestTray(ctrl)
	ctrl.entered = make(chan struct{})

	held := make(chan struct{})
	published := make(chan struct{})
	go func() {
		ctrl.mu.Lock()
		close(held)
		<-ctrl.entered
		tr.observe(events.CheckStarted{Caller: "editor", Sequence: 1, At: time.Now()})
		ctrl.mu.Unlock()
		close(published)
	}()

	<-held
	toggled := make(chan struct{})
	go func() {
		tr.toggleBackground(false)
		close(toggled)
	}()

	for _, ch := range []chan struct{}{published, toggled} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("tray toggle and event delivery deadlocked")
		}
	}

	state := tr.snapshot()
	if state.BackgroundCheck {
		t.Fatal("expected background check off after toggle")
	}
	if !state.Checking {
		t.Fatal("expected the published event to be applied")
	}
}

func TestObservePullsServerStatus(t *testing.T) {
	tr := newTestTray(&lockingController{})
	tr.observe(events.ServerStatusChanged{Status: events.ServerState{Running: false}})

	state := tr.snapshot()
	if !state.Server.Running || state.Server.Port != 8081 {
		t.Fatalf("expected pulled status, got %+v", state.Server)
	}
}
