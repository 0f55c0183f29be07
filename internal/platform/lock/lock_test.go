package lock

import (
	"context"
	"errors"
	"testing"
)

func TestLocalGuard_ExcludesNestedHolder(t *testing.T) {
	g := NewLocalGuard()
	ran := false
	err := g.WithLock(context.Background(), func(ctx context.Context) error {
		ran = true
		if err := g.WithLock(ctx, func(context.Context) error { return nil }); !errors.Is(err, ErrNotAcquired) {
			t.Errorf("expected ErrNotAcquired while held, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("expected fn to run")
	}
}

func TestLocalGuard_ReleasedAfterError(t *testing.T) {
	g := NewLocalGuard()
	boom := errors.New("boom")
	if err := g.WithLock(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}
	if err := g.WithLock(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Errorf("expected lock to be free again, got %v", err)
	}
}

func TestNewRedisClient_BadURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "not-a-url"); err == nil {
		t.Error("expected parse error")
	}
}
