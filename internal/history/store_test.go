package history_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quill/internal/checker"
	"quill/internal/events"
	"quill/internal/history"
	"quill/internal/testsupport"
)

func TestAddAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		entry, err := store.Add(ctx, history.Entry{
			Caller:     "editor",
			Sequence:   uint64(i),
			Language:   "en-US",
			DurationMs: int64(i * 10),
			MatchCount: i,
			RuleIDs:    []string{"SPELLING", "WORD_REPEAT"},
		})
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if entry.ID == 0 {
			t.Fatal("expected entry ID to be assigned")
		}
		if entry.CreatedAt.IsZero() {
			t.Fatal("expected CreatedAt to be assigned")
		}
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Sequence != 3 {
		t.Fatalf("expected newest first, got sequence %d", all[0].Sequence)
	}
	if len(all[0].RuleIDs) != 2 || all[0].RuleIDs[1] != "WORD_REPEAT" {
		t.Fatalf("unexpected rule ids %v", all[0].RuleIDs)
	}

	limited, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(limited))
	}
}

func TestStatsAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	entries := []history.Entry{
		{Caller: "a", Sequence: 1, Language: "en-US", DurationMs: 10, MatchCount: 2},
		{Caller: "a", Sequence: 2, Language: "de", DurationMs: 30, MatchCount: 1},
		{Caller: "b", Sequence: 3, Language: "en-US", DurationMs: 20, Error: "boom"},
	}
	for _, e := range entries {
		if _, err := store.Add(ctx, e); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Failed != 1 || stats.Matches != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.AvgDurationMs != 20 {
		t.Fatalf("expected avg 20ms, got %v", stats.AvgDurationMs)
	}
	if stats.ByLanguage["en-US"] != 2 || stats.ByLanguage["de"] != 1 {
		t.Fatalf("unexpected language breakdown %v", stats.ByLanguage)
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	stats, err = store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats after clear failed: %v", err)
	}
	if stats.Total != 0 || stats.AvgDurationMs != 0 {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
}

func TestPrune(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	if _, err := store.Add(ctx, history.Entry{Caller: "a", Sequence: 1, CreatedAt: old}); err != nil {
		t.Fatalf("Add old failed: %v", err)
	}
	if _, err := store.Add(ctx, history.Entry{Caller: "a", Sequence: 2}); err != nil {
		t.Fatalf("Add new failed: %v", err)
	}

	removed, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned, got %d", removed)
	}
	left, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(left) != 1 || left[0].Sequence != 2 {
		t.Fatalf("unexpected remaining entries %+v", left)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := store.Add(context.Background(), history.Entry{Caller: "a", Sequence: 7}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	entries, err := reopened.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Sequence != 7 {
		t.Fatalf("unexpected entries after reopen %+v", entries)
	}
}

func TestRecorderWritesFinishedChecks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	bus := events.NewBus()
	rec := history.NewRecorder(store, bus, nil)

	bus.Publish(events.CheckStarted{Caller: "editor", Sequence: 1})
	bus.Publish(events.CheckFinished{
		Caller:   "editor",
		Sequence: 1,
		Duration: 15 * time.Millisecond,
		Result: checker.Result{
			Language: "en-US",
			Matches:  []checker.Match{{RuleID: "SPELLING", Offset: 0, Length: 3}},
		},
	})
	bus.Publish(events.CheckFinished{
		Caller:   "editor",
		Sequence: 2,
		Result:   checker.Result{Language: "en-US", Error: "checker failed"},
	})
	rec.Close()

	if bus.Len() != 0 {
		t.Fatalf("expected recorder to unsubscribe, %d handlers left", bus.Len())
	}

	entries, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 recorded entries, got %d", len(entries))
	}
	if entries[1].DurationMs != 15 || entries[1].MatchCount != 1 || entries[1].RuleIDs[0] != "SPELLING" {
		t.Fatalf("unexpected first entry %+v", entries[1])
	}
	if entries[0].Error != "checker failed" {
		t.Fatalf("expected error recorded, got %+v", entries[0])
	}

	// Events after Close are ignored.
	bus.Publish(events.CheckFinished{Caller: "editor", Sequence: 3})
	rec.Close()
}

func TestSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	if err := store.SetSchemaVersionForTest(99); err != nil {
		t.Fatalf("set version: %v", err)
	}
	_ = store.Close()

	_, err := history.Open(cfg.HistoryPath())
	if !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
