package trace_test

import (
	"context"
	"strings"
	"testing"

	"github.com/bdobrica/shiori/common/trace"
)

func TestGenerateID(t *testing.T) {
	a, b := trace.GenerateID(), trace.GenerateID()
	if a == b {
		t.Fatalf("expected distinct IDs, got %q twice", a)
	}
	if !strings.HasPrefix(a, "t_") || len(a) != 34 {
		t.Errorf("unexpected ID shape: %q", a)
	}
}

func TestEnsure(t *testing.T) {
	ctx, id := trace.Ensure(context.Background())
	if id == "" || trace.FromContext(ctx) != id {
		t.Fatalf("Ensure did not store a trace ID")
	}
	ctx2, id2 := trace.Ensure(ctx)
	if id2 != id || ctx2 != ctx {
		t.Errorf("Ensure replaced an existing trace ID: %q -> %q", id, id2)
	}
}

func TestFromContext_Empty(t *testing.T) {
	if got := trace.FromContext(context.Background()); got != "" {
		t.Errorf("expected empty trace ID, got %q", got)
	}
}
