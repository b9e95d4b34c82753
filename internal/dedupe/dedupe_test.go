package dedupe

import (
	"context"
	"testing"
	"time"
)

func TestMemorySeen(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)

	seen, err := m.Seen(ctx, 1, 100)
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Fatalf("first delivery reported as seen")
	}

	seen, _ = m.Seen(ctx, 1, 100)
	if !seen {
		t.Fatalf("redelivery not detected")
	}

	// same message id from another user is a different message
	seen, _ = m.Seen(ctx, 2, 100)
	if seen {
		t.Fatalf("message ids must be scoped per user")
	}
}

func TestMemoryForget(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)

	_, _ = m.Seen(ctx, 1, 7)
	if err := m.Forget(ctx, 1, 7); err != nil {
		t.Fatalf("forget: %v", err)
	}
	seen, _ := m.Seen(ctx, 1, 7)
	if seen {
		t.Fatalf("forgotten message still seen")
	}
}

func TestKeyFormat(t *testing.T) {
	if got := key(42, 9); got != "diary:msg:42:9" {
		t.Fatalf("key = %q", got)
	}
}
