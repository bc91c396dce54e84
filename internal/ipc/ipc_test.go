package ipc_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"quill/internal/app"
	"quill/internal/checker"
	"quill/internal/coordinator"
	"quill/internal/events"
	"quill/internal/history"
	"quill/internal/ipc"
	"quill/internal/logging"
	"quill/internal/server"
	"quill/internal/testsupport"
)

type fixture struct {
	client *ipc.Client
	coord  *coordinator.Coordinator
	server *server.Manager
	quit   chan struct{}
}

func newFixture(t *testing.T, chk checker.Checker) *fixture {
	t.Helper()
	var cfgPath string
	cfg := testsupport.NewConfig(t, testsupport.WithConfigFile(&cfgPath))
	store := testsupport.MustOpenHistory(t, cfg)
	logger := logging.NewNop()

	if chk == nil {
		chk = checker.NewRuleChecker()
	}
	bus := events.NewBus()
	coord, err := coordinator.New(coordinator.Options{
		Checker:         chk,
		Bus:             bus,
		Logger:          logger,
		Language:        cfg.Checking.Language,
		BackgroundCheck: true,
	})
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	t.Cleanup(coord.Close)

	rec := history.NewRecorder(store, bus, logger)
	t.Cleanup(rec.Close)

	mgr := server.NewManager(server.Options{Host: cfg.Server.BindHost, Backend: coord, Bus: bus, Logger: logger})
	t.Cleanup(func() { _ = mgr.Stop() })

	a, err := app.New(app.Params{Config: cfg, ConfigPath: cfgPath, Checks: coord, Server: mgr, Logger: logger})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	quit := make(chan struct{})
	var once sync.Once
	srv, err := ipc.NewServer(context.Background(), ipc.Params{
		Path:        cfg.SocketPath(),
		Coordinator: coord,
		Server:      mgr,
		App:         a,
		History:     store,
		Quit:        func() { once.Do(func() { close(quit) }) },
		Info:        ipc.Info{PID: 4242, RunID: "run-test", StartedAt: time.Now(), ConfigPath: cfgPath},
		Logger:      logger,
	})
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return &fixture{client: client, coord: coord, server: mgr, quit: quit}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	status, err := f.client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.PID != 4242 || status.RunID != "run-test" {
		t.Fatalf("unexpected process info %+v", status)
	}
	if status.Language != "en-US" || !status.BackgroundCheck {
		t.Fatalf("unexpected checking state %+v", status)
	}
	if status.Server.Running {
		t.Fatal("expected server stopped")
	}
	if status.HistoryPath == "" {
		t.Fatal("expected history path")
	}
}

func TestCheckReturnsMatches(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := f.client.Check(context.Background(), ipc.CheckRequest{Text: "Ths is is a test."})
	if err != nil {
		t.Fatalf("Check RPC failed: %v", err)
	}
	if resp.Stale {
		t.Fatalf("unexpected stale result: %s", resp.StaleReason)
	}
	if !strings.HasPrefix(resp.Caller, ipc.CallerPrefix) {
		t.Fatalf("expected generated caller id, got %q", resp.Caller)
	}
	if resp.Sequence == 0 {
		t.Fatal("expected a sequence number")
	}
	rules := map[string]bool{}
	for _, m := range resp.Result.Matches {
		rules[m.RuleID] = true
	}
	if !rules[checker.RuleSpelling] || !rules[checker.RuleWordRepeat] {
		t.Fatalf("expected spelling and repeat matches, got %+v", resp.Result.Matches)
	}

	hist, err := f.client.History(context.Background(), ipc.HistoryRequest{Limit: 10})
	if err != nil {
		t.Fatalf("History RPC failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(hist.Entries) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
		hist, err = f.client.History(context.Background(), ipc.HistoryRequest{Limit: 10})
		if err != nil {
			t.Fatalf("History RPC failed: %v", err)
		}
	}
	if len(hist.Entries) != 1 || hist.Entries[0].Caller != resp.Caller {
		t.Fatalf("expected the check recorded, got %+v", hist.Entries)
	}

	cleared, err := f.client.History(context.Background(), ipc.HistoryRequest{Clear: true})
	if err != nil {
		t.Fatalf("History clear failed: %v", err)
	}
	if cleared.Removed != 1 || len(cleared.Entries) != 0 {
		t.Fatalf("unexpected clear response %+v", cleared)
	}
}

func TestCheckWithExplicitLanguageIsDirect(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := f.client.Check(context.Background(), ipc.CheckRequest{Text: "Das ist ist gut.", Language: "de"})
	if err != nil {
		t.Fatalf("Check RPC failed: %v", err)
	}
	if resp.Sequence != 0 || resp.Result.Language != "de" {
		t.Fatalf("expected direct check in de, got %+v", resp)
	}
	if f.coord.Language() != "en-US" {
		t.Fatal("direct check must not change the active language")
	}
}

// blockingChecker holds every Analyze call until release is closed.
type blockingChecker struct {
	*checker.RuleChecker
	entered chan struct{}
	release chan struct{}
}

func (b *blockingChecker) Analyze(ctx context.Context, text, lang string) (checker.Result, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return b.RuleChecker.Analyze(ctx, text, lang)
}

func TestCheckReportsLanguageChangeAsStale(t *testing.T) {
	chk := &blockingChecker{
		RuleChecker: checker.NewRuleChecker(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	f := newFixture(t, chk)

	type outcome struct {
		resp *ipc.CheckResponse
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := f.client.Check(context.Background(), ipc.CheckRequest{Text: "Hello there."})
		done <- outcome{resp, err}
	}()

	select {
	case <-chk.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("check never reached the checker")
	}
	if err := f.coord.SetLanguage("fr"); err != nil {
		t.Fatalf("SetLanguage: %v", err)
	}
	close(chk.release)

	select {
	case out := <-done:
		if out.err != nil {
			t.Fatalf("Check RPC failed: %v", out.err)
		}
		if !out.resp.Stale || out.resp.StaleReason != ipc.StaleLanguageChanged {
			t.Fatalf("expected language_changed stale result, got %+v", out.resp)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("check did not return")
	}
}

func TestCheckTimeout(t *testing.T) {
	chk := &blockingChecker{
		RuleChecker: checker.NewRuleChecker(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	f := newFixture(t, chk)
	t.Cleanup(func() { close(chk.release) })

	resp, err := f.client.Check(context.Background(), ipc.CheckRequest{Text: "Hello.", TimeoutMs: 100})
	if err != nil {
		t.Fatalf("Check RPC failed: %v", err)
	}
	if !resp.Stale || resp.StaleReason != ipc.StaleTimeout {
		t.Fatalf("expected timeout, got %+v", resp)
	}
}

func TestCheckRequiresText(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.client.Check(context.Background(), ipc.CheckRequest{Text: "  "}); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestLanguageAndToggles(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	lang, err := f.client.SetLanguage(ctx, "deu")
	if err != nil {
		t.Fatalf("SetLanguage RPC failed: %v", err)
	}
	if lang.Language != "de" || f.coord.Language() != "de" {
		t.Fatalf("expected de, got %+v", lang)
	}
	if _, err := f.client.SetLanguage(ctx, "not a language!"); err == nil {
		t.Fatal("expected invalid language error")
	}

	bg, err := f.client.SetBackground(ctx, false)
	if err != nil {
		t.Fatalf("SetBackground RPC failed: %v", err)
	}
	if bg.Enabled || f.coord.BackgroundCheckEnabled() {
		t.Fatal("expected background checking disabled")
	}
	edit, err := f.client.Edit(ctx, "Some text.", "editor")
	if err != nil {
		t.Fatalf("Edit RPC failed: %v", err)
	}
	if edit.Accepted {
		t.Fatal("edits must not be accepted while background checking is off")
	}

	ad, err := f.client.SetAutoDetect(ctx, true)
	if err != nil {
		t.Fatalf("SetAutoDetect RPC failed: %v", err)
	}
	if !ad.Enabled {
		t.Fatal("expected auto-detect enabled")
	}
}

func TestTag(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := f.client.Tag(context.Background(), "One sentence. Two sentences.")
	if err != nil {
		t.Fatalf("Tag RPC failed: %v", err)
	}
	if len(resp.Sentences) != 2 {
		t.Fatalf("expected 2 sentences, got %+v", resp.Sentences)
	}
}

func TestServerControl(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	zero := 0
	started, err := f.client.ServerStart(ctx, &zero)
	if err != nil {
		t.Fatalf("ServerStart RPC failed: %v", err)
	}
	if !started.Server.Running || started.Server.Port == 0 || started.Error != "" {
		t.Fatalf("unexpected start response %+v", started)
	}
	if started.Server.RunOnStartup {
		t.Fatal("ServerStart must not change the persisted setting")
	}

	stopped, err := f.client.ServerStop(ctx)
	if err != nil {
		t.Fatalf("ServerStop RPC failed: %v", err)
	}
	if stopped.Server.Running {
		t.Fatal("expected server stopped")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	busy := ln.Addr().(*net.TCPAddr).Port
	failed, err := f.client.ServerStart(ctx, &busy)
	if err != nil {
		t.Fatalf("ServerStart RPC failed: %v", err)
	}
	if failed.Server.Running || failed.Error == "" {
		t.Fatalf("expected bind failure reported, got %+v", failed)
	}

	enabled, err := f.client.ServerEnable(ctx, true)
	if err != nil {
		t.Fatalf("ServerEnable RPC failed: %v", err)
	}
	if !enabled.Server.Running || !enabled.Server.RunOnStartup {
		t.Fatalf("unexpected enable response %+v", enabled)
	}
}

func TestQuit(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := f.client.Quit(context.Background())
	if err != nil {
		t.Fatalf("Quit RPC failed: %v", err)
	}
	if !resp.Stopping {
		t.Fatal("expected Stopping=true")
	}
	select {
	case <-f.quit:
	case <-time.After(2 * time.Second):
		t.Fatal("quit callback not invoked")
	}
}

func TestDialMissingSocket(t *testing.T) {
	_, err := ipc.Dial("/nonexistent/quill.sock")
	if err == nil {
		t.Fatal("expected dial error")
	}
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected *net.OpError, got %T", err)
	}
}
