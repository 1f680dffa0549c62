// Package record persists the outcome of finalized orders for client-side
// status polling.
package record

import (
	"context"
	"errors"
	"time"
)

// Order statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

// Retention is how long a record stays queryable after finalization.
const Retention = 30 * 24 * time.Hour

// OrderRecord is the read-side row written after a successful stock
// commit. It is a polling convenience, never a source of truth; losing a
// write degrades nothing but the thank-you page.
type OrderRecord struct {
	OrderID        string    `json:"orderId"`
	Status         string    `json:"status"`
	AmountTotal    int64     `json:"amountTotal"`
	Currency       string    `json:"currency"`
	TransactionRef string    `json:"transactionRef"`
	Timestamp      time.Time `json:"timestamp"`
	BuyerEmail     string    `json:"buyerEmail,omitempty"`
}

// Repository defines behavior for persisting order records. Put overwrites;
// re-finalizing an order simply rewrites equivalent data.
type Repository interface {
	Put(ctx context.Context, rec OrderRecord) error
	Get(ctx context.Context, orderID string) (OrderRecord, error)
}

// ErrNotFound indicates the requested order record does not exist (or has
// expired).
var ErrNotFound = errors.New("order record not found")
