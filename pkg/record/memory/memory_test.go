package memory

import (
	"context"
	"testing"
	"time"

	"clubshop/pkg/record"
)

func TestRepository(t *testing.T) {
	ctx := context.Background()
	repo := New()

	rec := record.OrderRecord{
		OrderID:        "ord-1",
		Status:         record.StatusConfirmed,
		AmountTotal:    10000,
		Currency:       "CHF",
		TransactionRef: "sess-1",
		Timestamp:      time.Now().UTC(),
	}
	if err := repo.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := repo.Get(ctx, "ord-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AmountTotal != 10000 || got.Status != record.StatusConfirmed {
		t.Fatalf("unexpected record: %+v", got)
	}

	// overwrite is the idempotent re-finalization path
	rec.AmountTotal = 12000
	if err := repo.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err = repo.Get(ctx, "ord-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AmountTotal != 12000 {
		t.Fatalf("expected overwrite, got %+v", got)
	}

	if _, err := repo.Get(ctx, "missing"); err != record.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
