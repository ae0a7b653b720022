package meeting

import (
	"context"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoad(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := New("planning")
	m.AppendSegment(5*time.Second, "hello world", "spk-1", "Alice", true)
	m.AddParticipant("spk-1")
	m.Duration = 20 * time.Second

	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 meeting, got %d", len(loaded))
	}

	got := loaded[0]
	if got.ID != m.ID || got.Title != "planning" {
		t.Errorf("identity mismatch: %+v", got)
	}
	if got.Duration != 20*time.Second {
		t.Errorf("duration = %v", got.Duration)
	}
	if len(got.Segments) != 1 || got.Segments[0].Text != "hello world" {
		t.Errorf("segments = %+v", got.Segments)
	}
	if got.Segments[0].SpeakerName != "Alice" || !got.Segments[0].Final {
		t.Errorf("segment attribution lost: %+v", got.Segments[0])
	}
	if len(got.Participants) != 1 || got.Participants[0] != "spk-1" {
		t.Errorf("participants = %v", got.Participants)
	}
}

func TestSaveIsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := New("m")
	m.AppendSegment(0, "first", "s1", "Alice", true)
	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Continuation merge mutates the existing segment, then a second speaker
	// appends a new one. Re-save must reflect both without duplicating rows.
	m.LastSegment().Text += " more"
	m.AppendSegment(10*time.Second, "reply", "s2", "Bob", true)
	m.Status = StatusCompleted
	m.Summary = "done"
	m.ActionItems = []string{"ship it"}
	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	loaded, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("upsert should not duplicate meetings, got %d", len(loaded))
	}
	got := loaded[0]
	if got.Status != StatusCompleted || got.Summary != "done" {
		t.Errorf("status/summary = %s/%q", got.Status, got.Summary)
	}
	if len(got.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got.Segments))
	}
	if got.Segments[0].Text != "first more" {
		t.Errorf("merged text = %q", got.Segments[0].Text)
	}
	if len(got.ActionItems) != 1 || got.ActionItems[0] != "ship it" {
		t.Errorf("action items = %v", got.ActionItems)
	}
}

func TestLoadAllOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := New("older")
	older.StartedAt = time.Now().Add(-time.Hour)
	newer := New("newer")

	if err := s.Save(ctx, newer); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, older); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 || loaded[0].Title != "older" {
		t.Errorf("meetings should come back in start order: %v, %v", loaded[0].Title, loaded[1].Title)
	}
}
