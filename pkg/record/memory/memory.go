// Package memory implements an in-memory order-record repository.
package memory

import (
	"context"
	"sync"

	"clubshop/pkg/record"
)

// Repository provides an in-memory implementation of record.Repository.
type Repository struct {
	mu   sync.RWMutex
	recs map[string]record.OrderRecord
}

// New creates a new in-memory repository.
func New() *Repository {
	return &Repository{recs: make(map[string]record.OrderRecord)}
}

// Put stores the record, overwriting any previous one for the same order.
func (r *Repository) Put(ctx context.Context, rec record.OrderRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[rec.OrderID] = rec
	return nil
}

// Get retrieves a record by order id.
func (r *Repository) Get(ctx context.Context, orderID string) (record.OrderRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.recs[orderID]
	if !ok {
		return record.OrderRecord{}, record.ErrNotFound
	}
	return rec, nil
}
