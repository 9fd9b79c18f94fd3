package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bdobrica/shiori/internal/shiori/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "shiori-test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shiori.db")
	for i := 0; i < 2; i++ {
		s, err := store.New(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		s.Close()
	}
}

func TestRecordExchange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if n, _ := s.ExchangeCount(ctx); n != 0 {
		t.Fatalf("expected empty table, got %d", n)
	}

	entries := []store.Exchange{
		{TraceID: "t_1", SenderID: "@alice:example.org", Distribution: "!r:example.org", Action: "name.agent.get", Outcome: store.OutcomeReplied},
		{TraceID: "t_2", SenderID: "@bob:example.org", Distribution: "!r:example.org", Outcome: store.OutcomeNLUFailed, ErrorMessage: "nlu down"},
	}
	for _, e := range entries {
		if err := s.RecordExchange(ctx, e); err != nil {
			t.Fatalf("RecordExchange: %v", err)
		}
	}

	n, err := s.ExchangeCount(ctx)
	if err != nil || n != 2 {
		t.Fatalf("ExchangeCount = %d, %v", n, err)
	}

	recent, err := s.RecentExchanges(ctx, 10)
	if err != nil {
		t.Fatalf("RecentExchanges: %v", err)
	}
	if len(recent) != 2 || recent[0].TraceID != "t_2" || recent[1].Action != "name.agent.get" {
		t.Errorf("unexpected exchanges: %+v", recent)
	}
	if recent[0].ErrorMessage != "nlu down" || recent[0].CreatedAt.IsZero() {
		t.Errorf("fields not round-tripped: %+v", recent[0])
	}
}

func TestSyncValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if v, err := s.SyncValue(ctx, "@shiori:example.org", "next_batch"); err != nil || v != "" {
		t.Fatalf("empty SyncValue = %q, %v", v, err)
	}
	for _, v := range []string{"s1", "s2"} {
		if err := s.SetSyncValue(ctx, "@shiori:example.org", "next_batch", v); err != nil {
			t.Fatalf("SetSyncValue: %v", err)
		}
	}
	if v, _ := s.SyncValue(ctx, "@shiori:example.org", "next_batch"); v != "s2" {
		t.Errorf("SyncValue = %q, want s2", v)
	}
	if v, _ := s.SyncValue(ctx, "@other:example.org", "next_batch"); v != "" {
		t.Errorf("values leak across users: %q", v)
	}
}
