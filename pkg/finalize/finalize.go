// Package finalize drives the order-finalization pipeline triggered by a
// payment provider's webhook: authenticate, reconcile the cart, commit the
// stock decrement, then best-effort persistence and notification.
//
// The failure-isolation contract: everything before the stock commit
// aborts the pipeline; the stock commit is the only step whose failure is
// reported as retryable; everything after it is logged and swallowed, so a
// broken record store or mail provider can never undo or mask a committed
// decrement.
package finalize

import (
	"context"
	"net/http"
	"time"

	"clubshop/pkg/gateway"
	"clubshop/pkg/inventory"
	"clubshop/pkg/logger"
	"clubshop/pkg/notify"
	"clubshop/pkg/record"
	"clubshop/pkg/shop"
)

// StockCommitter is the slice of the inventory client the pipeline needs.
type StockCommitter interface {
	StockDelta(ctx context.Context, items []inventory.DeltaItem, idempotencyKey string) ([]byte, error)
}

// Outcome tells the transport layer how to answer the provider. Err is set
// for reportable conditions only; swallowed best-effort failures never
// appear here.
type Outcome struct {
	Code    int
	OrderID string
	Err     error
}

// Finalizer orchestrates one webhook delivery end to end.
type Finalizer struct {
	gw       gateway.Gateway
	stock    StockCommitter
	records  record.Repository
	notifier notify.Notifier
	log      *logger.Logger
	now      func() time.Time
}

// New builds a finalizer. records and notifier may be nil; both steps are
// best effort and a missing collaborator simply skips the step.
func New(gw gateway.Gateway, stock StockCommitter, records record.Repository, notifier notify.Notifier, log *logger.Logger) *Finalizer {
	return &Finalizer{
		gw:       gw,
		stock:    stock,
		records:  records,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Run executes the pipeline for one delivery. Re-delivering the same
// notification re-runs everything; there is no local short-circuit. The
// repeated stock commit is a no-op because it carries the same idempotency
// key, and persistence and notification are idempotent by overwrite and
// re-send.
func (f *Finalizer) Run(ctx context.Context, r *http.Request, raw []byte) Outcome {
	if err := f.gw.VerifyNotification(r, raw); err != nil {
		return Outcome{Code: http.StatusUnauthorized, Err: shop.ErrUnauthorized}
	}

	n, err := f.gw.ParseNotification(raw)
	if err != nil {
		// authenticated but unreadable: acknowledge so the provider stops
		// retrying a payload that will never parse differently
		f.log.Error(ctx, "webhook: dropping unreadable notification", "gateway", f.gw.Name(), "error", err)
		return Outcome{Code: http.StatusOK, Err: shop.ErrInvalidCart}
	}
	if !n.Confirmed {
		return Outcome{Code: http.StatusOK}
	}

	lines, err := gateway.Reconcile(ctx, f.gw, n)
	if err != nil {
		f.log.Error(ctx, "webhook: dropping notification without cart", "order_id", n.OrderID, "error", err)
		return Outcome{Code: http.StatusOK, OrderID: n.OrderID, Err: shop.ErrInvalidCart}
	}

	items := make([]inventory.DeltaItem, 0, len(lines))
	for _, l := range lines {
		qty := l.Qty
		if qty < 0 {
			qty = -qty
		}
		items = append(items, inventory.DeltaItem{Sku: l.Sku, Size: l.Size, Color: l.Color, Qty: -qty})
	}
	if _, err := f.stock.StockDelta(ctx, items, n.OrderID); err != nil {
		f.log.Error(ctx, "webhook: stock commit failed", "order_id", n.OrderID, "error", err)
		return Outcome{Code: http.StatusBadGateway, OrderID: n.OrderID, Err: err}
	}

	// Stock is committed. Nothing below may change the reported outcome.
	if err := f.persist(ctx, n); err != nil {
		f.log.Error(ctx, "webhook: order record write failed", "order_id", n.OrderID, "error", err)
	}
	if err := f.notifyBuyer(ctx, n, lines); err != nil {
		f.log.Error(ctx, "webhook: confirmation failed", "order_id", n.OrderID, "error", err)
	}

	return Outcome{Code: http.StatusOK, OrderID: n.OrderID}
}

func (f *Finalizer) persist(ctx context.Context, n gateway.Notification) error {
	if f.records == nil {
		return nil
	}
	return f.records.Put(ctx, record.OrderRecord{
		OrderID:        n.OrderID,
		Status:         record.StatusConfirmed,
		AmountTotal:    n.AmountTotal,
		Currency:       n.Currency,
		TransactionRef: n.SessionID,
		Timestamp:      f.now().UTC(),
		BuyerEmail:     n.Customer.Email,
	})
}

func (f *Finalizer) notifyBuyer(ctx context.Context, n gateway.Notification, lines []shop.CartLine) error {
	if f.notifier == nil {
		return nil
	}
	// Display pricing prefers the provider's own line items; stock already
	// went out from the reconciled cart.
	display := lines
	if provider, err := f.gw.LineItems(ctx, n.SessionID); err == nil && len(provider) > 0 {
		display = gateway.MergePricing(lines, provider)
	}
	return f.notifier.OrderConfirmed(ctx, notify.Confirmation{
		OrderID:     n.OrderID,
		Name:        n.Customer.FullName(),
		Email:       n.Customer.Email,
		Currency:    n.Currency,
		AmountTotal: n.AmountTotal,
		Lines:       display,
	})
}
