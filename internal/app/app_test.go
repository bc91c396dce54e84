package app_test

import (
	"errors"
	"net"
	"testing"

	"quill/internal/app"
	"quill/internal/checker"
	"quill/internal/config"
	"quill/internal/coordinator"
	"quill/internal/events"
	"quill/internal/server"
	"quill/internal/testsupport"
)

type harness struct {
	app    *app.App
	coord  *coordinator.Coordinator
	server *server.Manager
	bus    *events.Bus
	path   string
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	var path string
	opts = append(opts, testsupport.WithConfigFile(&path))
	cfg := testsupport.NewConfig(t, opts...)

	bus := events.NewBus()
	coord, err := coordinator.New(coordinator.Options{
		Checker:  checker.NewRuleChecker(),
		Bus:      bus,
		Language: cfg.Checking.Language,
	})
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	t.Cleanup(coord.Close)

	mgr := server.NewManager(server.Options{Host: "127.0.0.1", Backend: coord, Bus: bus})
	t.Cleanup(func() { _ = mgr.Stop() })

	a, err := app.New(app.Params{Config: cfg, ConfigPath: path, Checks: coord, Server: mgr})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return &harness{app: a, coord: coord, server: mgr, bus: bus, path: path}
}

func (h *harness) persisted(t *testing.T) *config.Config {
	t.Helper()
	cfg, _, exists, err := config.Load(h.path)
	if err != nil || !exists {
		t.Fatalf("load persisted config: exists=%v err=%v", exists, err)
	}
	return cfg
}

func occupyPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().(*net.TCPAddr).Port
}

func TestSetServerEnabledStartsAndPersists(t *testing.T) {
	h := newHarness(t)

	status, err := h.app.SetServerEnabled(true)
	if err != nil {
		t.Fatalf("SetServerEnabled(true): %v", err)
	}
	if !status.Running || !h.server.IsRunning() {
		t.Fatal("expected server running")
	}
	if !h.app.Options().RunServer {
		t.Fatal("expected options view to show the server enabled")
	}
	if !h.persisted(t).Server.RunOnStartup {
		t.Fatal("expected run_on_startup persisted as true")
	}

	if _, err := h.app.SetServerEnabled(false); err != nil {
		t.Fatalf("SetServerEnabled(false): %v", err)
	}
	if h.server.IsRunning() {
		t.Fatal("expected server stopped")
	}
	if h.app.Options().RunServer || h.persisted(t).Server.RunOnStartup {
		t.Fatal("expected the server disabled in options and config")
	}
}

func TestSetServerEnabledBindFailureWritesBackFalse(t *testing.T) {
	port := occupyPort(t)
	h := newHarness(t)
	if _, err := h.app.ApplyOptions(app.Options{Port: port, Language: "en-US"}); err != nil {
		t.Fatalf("ApplyOptions: %v", err)
	}

	var statuses []events.ServerStatusChanged
	h.bus.Subscribe(func(e events.Event) {
		if s, ok := e.(events.ServerStatusChanged); ok {
			statuses = append(statuses, s)
		}
	})

	status, err := h.app.SetServerEnabled(true)
	if !errors.Is(err, server.ErrBindFailed) {
		t.Fatalf("expected bind failure, got %v", err)
	}
	var bindErr *server.BindError
	if !errors.As(err, &bindErr) || bindErr.Port != port {
		t.Fatalf("expected BindError for port %d, got %v", port, err)
	}
	if status.Running || h.server.IsRunning() {
		t.Fatal("server must stay stopped after a bind failure")
	}
	if h.app.Options().RunServer {
		t.Fatal("options view must not show the server enabled")
	}
	if h.persisted(t).Server.RunOnStartup {
		t.Fatal("persisted config must not show the server enabled")
	}
	if len(statuses) != 1 || statuses[0].Status.Running || statuses[0].Err == nil {
		t.Fatalf("expected one failed status event, got %+v", statuses)
	}
}

func TestApplyOptionsRestartsOnNewPort(t *testing.T) {
	h := newHarness(t)
	if _, err := h.app.SetServerEnabled(true); err != nil {
		t.Fatalf("SetServerEnabled: %v", err)
	}
	first, _ := h.server.CurrentPort()

	// Grab a free port and release it so the restart can bind it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	next := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	status, err := h.app.ApplyOptions(app.Options{RunServer: true, Port: next, Language: "de", BackgroundCheck: true})
	if err != nil {
		t.Fatalf("ApplyOptions: %v", err)
	}
	if !status.Running || status.Port != next || next == first {
		t.Fatalf("expected running on %d (was %d), got %+v", next, first, status)
	}
	if h.coord.Language() != "de" {
		t.Fatalf("expected language de, got %q", h.coord.Language())
	}
	persisted := h.persisted(t)
	if persisted.Server.Port != next || persisted.Checking.Language != "de" || !persisted.Checking.BackgroundCheck {
		t.Fatalf("unexpected persisted config %+v", persisted)
	}
}

func TestApplyOptionsRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	if _, err := h.app.ApplyOptions(app.Options{Port: 70000}); err == nil {
		t.Fatal("expected port range error")
	}
	if _, err := h.app.ApplyOptions(app.Options{Language: "!!"}); err == nil {
		t.Fatal("expected language error")
	}
}

func TestStartupBindFailureKeepsRunning(t *testing.T) {
	port := occupyPort(t)
	h := newHarness(t, testsupport.WithServerOnStartup(port))

	err := h.app.Startup()
	if !errors.Is(err, server.ErrBindFailed) {
		t.Fatalf("expected bind failure, got %v", err)
	}
	if h.server.IsRunning() {
		t.Fatal("server must stay stopped")
	}
	if h.coord.TriggerCheck("Hello there.", "editor") == 0 {
		t.Fatal("coordinator must keep accepting checks")
	}
}

func TestStartupDisabledDoesNothing(t *testing.T) {
	h := newHarness(t)
	if err := h.app.Startup(); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	if h.server.IsRunning() {
		t.Fatal("server should not run when disabled")
	}
}

func TestQuitPersistsLanguageAndStops(t *testing.T) {
	h := newHarness(t)
	if _, err := h.app.SetServerEnabled(true); err != nil {
		t.Fatalf("SetServerEnabled: %v", err)
	}
	if err := h.coord.SetLanguage("fr"); err != nil {
		t.Fatalf("SetLanguage: %v", err)
	}
	if err := h.app.Quit(); err != nil {
		t.Fatalf("Quit: %v", err)
	}
	if h.server.IsRunning() {
		t.Fatal("expected server stopped after Quit")
	}
	persisted := h.persisted(t)
	if persisted.Checking.Language != "fr" {
		t.Fatalf("expected language fr persisted, got %q", persisted.Checking.Language)
	}
	if !persisted.Server.RunOnStartup {
		t.Fatal("Quit must not change run_on_startup")
	}
}

func TestReloadConfigAppliesChanges(t *testing.T) {
	h := newHarness(t)

	cfg := h.app.Config()
	cfg.Checking.Language = "nl"
	cfg.Checking.AutoDetectLanguage = true
	cfg.Server.RunOnStartup = true
	if _, err := h.app.ReloadConfig(&cfg); err != nil {
		t.Fatalf("ReloadConfig: %v", err)
	}
	if h.coord.Language() != "nl" {
		t.Fatalf("expected language nl, got %q", h.coord.Language())
	}
	if !h.coord.State().AutoDetect {
		t.Fatal("expected auto-detect enabled")
	}
	if !h.server.IsRunning() {
		t.Fatal("expected server started by reload")
	}

	cfg.Server.RunOnStartup = false
	if _, err := h.app.ReloadConfig(&cfg); err != nil {
		t.Fatalf("ReloadConfig: %v", err)
	}
	if h.server.IsRunning() {
		t.Fatal("expected server stopped by reload")
	}
}

func TestReloadConfigIgnoresOwnWrite(t *testing.T) {
	h := newHarness(t)
	if _, err := h.app.SetServerEnabled(true); err != nil {
		t.Fatalf("SetServerEnabled: %v", err)
	}
	port, _ := h.server.CurrentPort()

	var published int
	h.bus.Subscribe(func(events.Event) { published++ })

	if _, err := h.app.ReloadConfig(h.persisted(t)); err != nil {
		t.Fatalf("ReloadConfig: %v", err)
	}
	if got, _ := h.server.CurrentPort(); got != port || !h.server.IsRunning() {
		t.Fatal("own write must not restart the server")
	}
	if published != 0 {
		t.Fatalf("expected no events, got %d", published)
	}
}

func TestTogglesPersist(t *testing.T) {
	h := newHarness(t)

	tag, err := h.app.SetLanguage("german")
	if err != nil {
		t.Fatalf("SetLanguage: %v", err)
	}
	if tag != "de" || h.coord.Language() != "de" {
		t.Fatalf("expected de, got %q / %q", tag, h.coord.Language())
	}
	if err := h.app.SetBackgroundCheck(false); err != nil {
		t.Fatalf("SetBackgroundCheck: %v", err)
	}
	if err := h.app.SetAutoDetect(true); err != nil {
		t.Fatalf("SetAutoDetect: %v", err)
	}

	state := h.coord.State()
	if state.BackgroundCheck || !state.AutoDetect {
		t.Fatalf("unexpected coordinator state %+v", state)
	}
	persisted := h.persisted(t)
	if persisted.Checking.Language != "de" || persisted.Checking.BackgroundCheck || !persisted.Checking.AutoDetectLanguage {
		t.Fatalf("unexpected persisted checking section %+v", persisted.Checking)
	}
	if _, err := h.app.SetLanguage("xx-invalid-!!"); err == nil {
		t.Fatal("expected invalid language error")
	}
}
