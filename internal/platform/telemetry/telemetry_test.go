package telemetry

import (
	"context"
	"testing"
)

func TestNew_WithoutExporter(t *testing.T) {
	ctx := context.Background()
	tel, err := New(ctx, Config{ServiceName: "slotfinder-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	counter, err := tel.Meter("test").Int64Counter("test.counter")
	if err != nil {
		t.Fatalf("create counter: %v", err)
	}
	counter.Add(ctx, 1)

	_, span := tel.Tracer("test").Start(ctx, "op")
	span.End()

	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
