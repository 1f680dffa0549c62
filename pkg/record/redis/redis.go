// Package redis implements the order-record repository on a redis
// key/value store with the retention window enforced as a key TTL.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"clubshop/pkg/record"
)

// Repository persists order records under "order:<orderId>".
type Repository struct {
	rdb *goredis.Client
}

// New creates a redis-backed repository.
func New(rdb *goredis.Client) *Repository {
	return &Repository{rdb: rdb}
}

func key(orderID string) string {
	return "order:" + orderID
}

// Put writes the record with the retention TTL. Overwrites reset the TTL,
// which is what a re-finalized order should do.
func (r *Repository) Put(ctx context.Context, rec record.OrderRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal order record: %w", err)
	}
	return r.rdb.Set(ctx, key(rec.OrderID), b, record.Retention).Err()
}

// Get retrieves a record by order id.
func (r *Repository) Get(ctx context.Context, orderID string) (record.OrderRecord, error) {
	b, err := r.rdb.Get(ctx, key(orderID)).Bytes()
	if err == goredis.Nil {
		return record.OrderRecord{}, record.ErrNotFound
	}
	if err != nil {
		return record.OrderRecord{}, err
	}
	var rec record.OrderRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return record.OrderRecord{}, fmt.Errorf("unmarshal order record: %w", err)
	}
	return rec, nil
}
