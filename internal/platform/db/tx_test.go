package db

import (
	"context"
	"testing"
)

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil tx, got %v", tx)
	}
}

func TestConn_FallsBackToPool(t *testing.T) {
	if q := Conn(context.Background(), nil); q == nil {
		t.Error("expected a queryable even without a transaction")
	}
}
