// Package postgres implements the order-record repository on PostgreSQL.
// SQL has no native TTL, so rows carry expires_at and reads skip expired
// rows.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"clubshop/pkg/record"
)

// Schema creates the backing table.
const Schema = `CREATE TABLE IF NOT EXISTS order_records (
	order_id        TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	amount_total    BIGINT NOT NULL,
	currency        TEXT NOT NULL,
	transaction_ref TEXT NOT NULL,
	ts              TIMESTAMPTZ NOT NULL,
	buyer_email     TEXT NOT NULL DEFAULT '',
	expires_at      TIMESTAMPTZ NOT NULL
)`

// Repository persists order records in PostgreSQL.
type Repository struct {
	db *sql.DB
}

// New creates a PostgreSQL repository.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Put upserts the record and refreshes its expiry.
func (r *Repository) Put(ctx context.Context, rec record.OrderRecord) error {
	expires := rec.Timestamp.Add(record.Retention)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO order_records (order_id, status, amount_total, currency, transaction_ref, ts, buyer_email, expires_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (order_id) DO UPDATE SET
			status = EXCLUDED.status,
			amount_total = EXCLUDED.amount_total,
			currency = EXCLUDED.currency,
			transaction_ref = EXCLUDED.transaction_ref,
			ts = EXCLUDED.ts,
			buyer_email = EXCLUDED.buyer_email,
			expires_at = EXCLUDED.expires_at`,
		rec.OrderID, rec.Status, rec.AmountTotal, rec.Currency, rec.TransactionRef, rec.Timestamp, rec.BuyerEmail, expires)
	return err
}

// Get retrieves an unexpired record by order id.
func (r *Repository) Get(ctx context.Context, orderID string) (record.OrderRecord, error) {
	var rec record.OrderRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT order_id, status, amount_total, currency, transaction_ref, ts, buyer_email
		 FROM order_records WHERE order_id = $1 AND expires_at > $2`,
		orderID, time.Now()).
		Scan(&rec.OrderID, &rec.Status, &rec.AmountTotal, &rec.Currency, &rec.TransactionRef, &rec.Timestamp, &rec.BuyerEmail)
	if err == sql.ErrNoRows {
		return record.OrderRecord{}, record.ErrNotFound
	}
	return rec, err
}
