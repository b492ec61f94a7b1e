package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(db)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s, db
}

func testEvent(ts time.Time, session, messageID string, input, output int64) UsageEvent {
	return UsageEvent{
		Timestamp:    ts,
		SessionID:    session,
		Model:        "claude-sonnet-4",
		Project:      "my-app",
		InputTokens:  input,
		OutputTokens: output,
		CostUSD:      0.0123,
		DedupeKey:    BuildDedupeKey(messageID, "", ts, session, input, output),
	}
}

func TestInit_CreatesTables(t *testing.T) {
	_, db := openTestStore(t)

	for _, table := range []string{"usage_events", "ingest_sources"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestInsertBatch_IdempotentByDedupeKey(t *testing.T) {
	s, db := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC)
	events := []UsageEvent{
		testEvent(base, "sess-1", "msg-1", 1000, 500),
		testEvent(base.Add(5*time.Minute), "sess-1", "msg-2", 1000, 500),
		testEvent(base.Add(10*time.Minute), "sess-1", "msg-3", 1000, 500),
	}

	first, err := s.InsertBatch(ctx, events)
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if first.Inserted != 3 || first.Deduped != 0 {
		t.Fatalf("first batch = %+v, want 3 inserted", first)
	}

	second, err := s.InsertBatch(ctx, events)
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if second.Inserted != 0 || second.Deduped != 3 {
		t.Fatalf("second batch = %+v, want 3 deduped", second)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM usage_events`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 3 {
		t.Fatalf("row count = %d, want 3", count)
	}
}

func TestListEvents_OrderedByTimestamp(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC)
	events := []UsageEvent{
		testEvent(base.Add(10*time.Minute), "sess-1", "msg-3", 10, 5),
		testEvent(base, "sess-1", "msg-1", 10, 5),
		testEvent(base.Add(5*time.Minute), "sess-2", "msg-2", 10, 5),
	}
	if _, err := s.InsertBatch(ctx, events); err != nil {
		t.Fatalf("insert: %v", err)
	}

	listed, err := s.ListEvents(ctx)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("listed %d events, want 3", len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i].Timestamp.Before(listed[i-1].Timestamp) {
			t.Fatalf("events out of order at index %d", i)
		}
	}
	if !listed[0].Timestamp.Equal(base) {
		t.Fatalf("first event at %v, want %v", listed[0].Timestamp, base)
	}
}

func TestSourceCutoff_RoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	path := "/logs/project/conv.jsonl"
	empty, err := s.SourceCutoff(ctx, path)
	if err != nil {
		t.Fatalf("SourceCutoff (missing): %v", err)
	}
	if !empty.LastEventAt.IsZero() {
		t.Fatalf("expected zero cutoff for unknown path, got %v", empty.LastEventAt)
	}

	lastEvent := time.Date(2025, time.March, 10, 10, 10, 0, 0, time.UTC)
	mtime := time.Date(2025, time.March, 10, 10, 11, 0, 0, time.UTC)
	if err := s.RecordSource(ctx, SourceState{Path: path, LastEventAt: lastEvent, FileModTime: mtime}); err != nil {
		t.Fatalf("RecordSource: %v", err)
	}

	state, err := s.SourceCutoff(ctx, path)
	if err != nil {
		t.Fatalf("SourceCutoff: %v", err)
	}
	if !state.LastEventAt.Equal(lastEvent) {
		t.Fatalf("LastEventAt = %v, want %v", state.LastEventAt, lastEvent)
	}
	if !state.FileModTime.Equal(mtime) {
		t.Fatalf("FileModTime = %v, want %v", state.FileModTime, mtime)
	}
	if state.ScannedAt.IsZero() {
		t.Fatal("ScannedAt not recorded")
	}
}

func TestReset_ClearsEverything(t *testing.T) {
	s, db := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC)
	if _, err := s.InsertBatch(ctx, []UsageEvent{testEvent(base, "sess-1", "msg-1", 10, 5)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.RecordSource(ctx, SourceState{Path: "/logs/a.jsonl", LastEventAt: base}); err != nil {
		t.Fatalf("RecordSource: %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	for _, table := range []string{"usage_events", "ingest_sources"} {
		var count int
		if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if count != 0 {
			t.Fatalf("%s has %d rows after reset, want 0", table, count)
		}
	}
}

func TestStats_CountsDistinctIdentifiers(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC)
	events := []UsageEvent{
		testEvent(base, "sess-1", "msg-1", 10, 5),
		testEvent(base.Add(time.Minute), "sess-1", "msg-2", 10, 5),
		testEvent(base.Add(2*time.Minute), "sess-2", "msg-3", 10, 5),
	}
	if _, err := s.InsertBatch(ctx, events); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.EventCount != 3 {
		t.Fatalf("EventCount = %d, want 3", stats.EventCount)
	}
	if stats.SessionCount != 2 {
		t.Fatalf("SessionCount = %d, want 2", stats.SessionCount)
	}
	if !stats.FirstEventAt.Equal(base) {
		t.Fatalf("FirstEventAt = %v, want %v", stats.FirstEventAt, base)
	}
	if !stats.LastEventAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("LastEventAt = %v, want %v", stats.LastEventAt, base.Add(2*time.Minute))
	}
}

func TestStaleSince_DetectsExternalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")

	reader, err := Open(path)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()

	if reader.StaleSince() {
		t.Fatal("fresh store should not be stale")
	}

	// Another process writes through its own handle; the reader notices
	// via the file mtime.
	writer, err := Open(path)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	defer writer.Close()

	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if !reader.StaleSince() {
		t.Fatal("reader should see the advanced mtime as stale")
	}
}
