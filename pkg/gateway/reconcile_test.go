package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"clubshop/pkg/shop"
)

// stubGateway satisfies Gateway for reconciliation tests; only LineItems
// matters here.
type stubGateway struct {
	lines []shop.CartLine
	err   error
}

func (s *stubGateway) Name() string { return "stub" }
func (s *stubGateway) CreateCheckout(ctx context.Context, o shop.Order, urls ReturnURLs) (Checkout, error) {
	return Checkout{}, nil
}
func (s *stubGateway) VerifyNotification(r *http.Request, raw []byte) error { return nil }
func (s *stubGateway) ParseNotification(raw []byte) (Notification, error) {
	return Notification{}, nil
}
func (s *stubGateway) LineItems(ctx context.Context, sessionID string) ([]shop.CartLine, error) {
	return s.lines, s.err
}

func TestReconcilePrefersCompactCart(t *testing.T) {
	gw := &stubGateway{lines: []shop.CartLine{{Sku: "PROVIDER", Qty: 1, UnitAmount: 1}}}
	cart, err := shop.EncodeCart([]shop.CartLine{{Sku: "A", Size: "M", Qty: 2, UnitAmount: 5000}})
	require.NoError(t, err)

	lines, err := Reconcile(context.Background(), gw, Notification{CartJSON: cart, SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, "A", lines[0].Sku)
}

func TestReconcileFallsBackToProviderLines(t *testing.T) {
	gw := &stubGateway{lines: []shop.CartLine{
		{Sku: "A", Qty: 2, UnitAmount: 5000},
		{Sku: "B", Qty: 0, UnitAmount: 100},
	}}
	lines, err := Reconcile(context.Background(), gw, Notification{CartJSON: "broken", SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, "A", lines[0].Sku)
}

func TestReconcileTerminalWhenNoSource(t *testing.T) {
	_, err := Reconcile(context.Background(), &stubGateway{err: ErrNoLineItems}, Notification{SessionID: "s1"})
	require.ErrorIs(t, err, shop.ErrInvalidCart)

	_, err = Reconcile(context.Background(), &stubGateway{}, Notification{})
	require.ErrorIs(t, err, shop.ErrInvalidCart)

	// a failing provider fetch is still terminal, not retryable
	_, err = Reconcile(context.Background(), &stubGateway{err: context.DeadlineExceeded}, Notification{SessionID: "s1"})
	require.ErrorIs(t, err, shop.ErrInvalidCart)
}

func TestMergePricing(t *testing.T) {
	lines := []shop.CartLine{
		{Sku: "A", Name: "Jersey", Qty: 2, UnitAmount: 100},
		{Sku: "", Name: "Cap", Qty: 1, UnitAmount: 200},
		{Sku: "C", Name: "Socks", Qty: 1, UnitAmount: 300},
	}
	provider := []shop.CartLine{
		{Sku: "A", Name: "Club Jersey", Qty: 2, UnitAmount: 8900},
		{Sku: "", Name: "Cap", Qty: 1, UnitAmount: 2500},
	}
	got := MergePricing(lines, provider)

	// matched by sku: price and title replaced, quantity untouched
	require.Equal(t, int64(8900), got[0].UnitAmount)
	require.Equal(t, "Club Jersey", got[0].Name)
	require.Equal(t, 2, got[0].Qty)
	// matched by name
	require.Equal(t, int64(2500), got[1].UnitAmount)
	// unmatched lines keep the submitted price
	require.Equal(t, int64(300), got[2].UnitAmount)
}
