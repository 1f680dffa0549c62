package finalize

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clubshop/pkg/gateway"
	"clubshop/pkg/inventory"
	"clubshop/pkg/logger"
	"clubshop/pkg/notify"
	"clubshop/pkg/record"
	"clubshop/pkg/record/memory"
	"clubshop/pkg/shop"
)

type fakeGateway struct {
	verifyErr error
	parseErr  error
	notif     gateway.Notification
	lines     []shop.CartLine
	linesErr  error
}

func (g *fakeGateway) Name() string { return "fake" }
func (g *fakeGateway) CreateCheckout(ctx context.Context, o shop.Order, urls gateway.ReturnURLs) (gateway.Checkout, error) {
	return gateway.Checkout{}, nil
}
func (g *fakeGateway) VerifyNotification(r *http.Request, raw []byte) error { return g.verifyErr }
func (g *fakeGateway) ParseNotification(raw []byte) (gateway.Notification, error) {
	return g.notif, g.parseErr
}
func (g *fakeGateway) LineItems(ctx context.Context, sessionID string) ([]shop.CartLine, error) {
	return g.lines, g.linesErr
}

type stockCall struct {
	items []inventory.DeltaItem
	key   string
}

type fakeStock struct {
	calls []stockCall
	err   error
}

func (s *fakeStock) StockDelta(ctx context.Context, items []inventory.DeltaItem, idempotencyKey string) ([]byte, error) {
	s.calls = append(s.calls, stockCall{items: items, key: idempotencyKey})
	if s.err != nil {
		return nil, s.err
	}
	return []byte(`{"ok":true}`), nil
}

type failingRepo struct{}

func (failingRepo) Put(ctx context.Context, rec record.OrderRecord) error { return errors.New("down") }
func (failingRepo) Get(ctx context.Context, orderID string) (record.OrderRecord, error) {
	return record.OrderRecord{}, record.ErrNotFound
}

type fakeNotifier struct {
	sent []notify.Confirmation
	err  error
}

func (n *fakeNotifier) OrderConfirmed(ctx context.Context, c notify.Confirmation) error {
	n.sent = append(n.sent, c)
	return n.err
}

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func webhookReq() *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/webhook", nil)
}

func confirmedNotif() gateway.Notification {
	cart, _ := shop.EncodeCart([]shop.CartLine{
		{Sku: "A", Size: "M", Color: "blue", Qty: 2, UnitAmount: 5000},
	})
	return gateway.Notification{
		Confirmed:   true,
		OrderID:     "ord-1",
		SessionID:   "sess-1",
		CartJSON:    cart,
		Customer:    shop.Customer{Name: "Anna", LastName: "Keller", Email: "anna@example.com"},
		AmountTotal: 10000,
		Currency:    "CHF",
	}
}

func TestRunSuccess(t *testing.T) {
	gw := &fakeGateway{notif: confirmedNotif(), linesErr: gateway.ErrNoLineItems}
	stock := &fakeStock{}
	repo := memory.New()
	mail := &fakeNotifier{}
	f := New(gw, stock, repo, mail, testLogger())
	f.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }

	out := f.Run(context.Background(), webhookReq(), nil)
	require.Equal(t, http.StatusOK, out.Code)
	require.NoError(t, out.Err)
	require.Equal(t, "ord-1", out.OrderID)

	// stock went out as negative deltas under the order id
	require.Len(t, stock.calls, 1)
	require.Equal(t, "ord-1", stock.calls[0].key)
	require.Equal(t, []inventory.DeltaItem{{Sku: "A", Size: "M", Color: "blue", Qty: -2}}, stock.calls[0].items)

	rec, err := repo.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, record.StatusConfirmed, rec.Status)
	require.Equal(t, int64(10000), rec.AmountTotal)
	require.Equal(t, "sess-1", rec.TransactionRef)
	require.Equal(t, "anna@example.com", rec.BuyerEmail)

	require.Len(t, mail.sent, 1)
	require.Equal(t, "Anna Keller", mail.sent[0].Name)
	require.Equal(t, int64(10000), mail.sent[0].AmountTotal)
}

func TestRunUnauthorizedHasNoEffects(t *testing.T) {
	gw := &fakeGateway{verifyErr: shop.ErrUnauthorized, notif: confirmedNotif()}
	stock := &fakeStock{}
	repo := memory.New()
	mail := &fakeNotifier{}
	f := New(gw, stock, repo, mail, testLogger())

	out := f.Run(context.Background(), webhookReq(), nil)
	require.Equal(t, http.StatusUnauthorized, out.Code)
	require.ErrorIs(t, out.Err, shop.ErrUnauthorized)
	require.Empty(t, stock.calls)
	require.Empty(t, mail.sent)
	_, err := repo.Get(context.Background(), "ord-1")
	require.ErrorIs(t, err, record.ErrNotFound)
}

func TestRunMissingCartIsTerminalNotRetryable(t *testing.T) {
	n := confirmedNotif()
	n.CartJSON = ""
	gw := &fakeGateway{notif: n, linesErr: gateway.ErrNoLineItems}
	stock := &fakeStock{}
	f := New(gw, stock, memory.New(), &fakeNotifier{}, testLogger())

	out := f.Run(context.Background(), webhookReq(), nil)
	require.Equal(t, http.StatusOK, out.Code)
	require.ErrorIs(t, out.Err, shop.ErrInvalidCart)
	require.Empty(t, stock.calls)
}

func TestRunUnparsableNotificationIsAccepted(t *testing.T) {
	gw := &fakeGateway{parseErr: errors.New("garbage payload")}
	stock := &fakeStock{}
	f := New(gw, stock, memory.New(), &fakeNotifier{}, testLogger())

	out := f.Run(context.Background(), webhookReq(), nil)
	require.Equal(t, http.StatusOK, out.Code)
	require.ErrorIs(t, out.Err, shop.ErrInvalidCart)
	require.Empty(t, stock.calls)
}

func TestRunIgnoresUnconfirmedNotifications(t *testing.T) {
	gw := &fakeGateway{notif: gateway.Notification{Confirmed: false}}
	stock := &fakeStock{}
	f := New(gw, stock, memory.New(), &fakeNotifier{}, testLogger())

	out := f.Run(context.Background(), webhookReq(), nil)
	require.Equal(t, http.StatusOK, out.Code)
	require.NoError(t, out.Err)
	require.Empty(t, stock.calls)
}

func TestRunStockFailureIsRetryable(t *testing.T) {
	gw := &fakeGateway{notif: confirmedNotif()}
	stock := &fakeStock{err: shop.ErrStockCommitFailed}
	repo := memory.New()
	mail := &fakeNotifier{}
	f := New(gw, stock, repo, mail, testLogger())

	out := f.Run(context.Background(), webhookReq(), nil)
	require.Equal(t, http.StatusBadGateway, out.Code)
	require.ErrorIs(t, out.Err, shop.ErrStockCommitFailed)

	// nothing after the failed commit may run
	_, err := repo.Get(context.Background(), "ord-1")
	require.ErrorIs(t, err, record.ErrNotFound)
	require.Empty(t, mail.sent)
}

func TestRunPersistFailureIsSwallowed(t *testing.T) {
	gw := &fakeGateway{notif: confirmedNotif(), linesErr: gateway.ErrNoLineItems}
	stock := &fakeStock{}
	mail := &fakeNotifier{}
	f := New(gw, stock, failingRepo{}, mail, testLogger())

	out := f.Run(context.Background(), webhookReq(), nil)
	require.Equal(t, http.StatusOK, out.Code)
	require.NoError(t, out.Err)
	// the notification step still runs after a failed record write
	require.Len(t, mail.sent, 1)
}

func TestRunNotifyFailureIsSwallowed(t *testing.T) {
	gw := &fakeGateway{notif: confirmedNotif(), linesErr: gateway.ErrNoLineItems}
	stock := &fakeStock{}
	f := New(gw, stock, memory.New(), &fakeNotifier{err: errors.New("smtp down")}, testLogger())

	out := f.Run(context.Background(), webhookReq(), nil)
	require.Equal(t, http.StatusOK, out.Code)
	require.NoError(t, out.Err)
}

func TestRunIsIdempotentAcrossRedeliveries(t *testing.T) {
	gw := &fakeGateway{notif: confirmedNotif(), linesErr: gateway.ErrNoLineItems}
	stock := &fakeStock{}
	repo := memory.New()
	f := New(gw, stock, repo, &fakeNotifier{}, testLogger())
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return fixed }

	out1 := f.Run(context.Background(), webhookReq(), nil)
	rec1, err := repo.Get(context.Background(), "ord-1")
	require.NoError(t, err)

	out2 := f.Run(context.Background(), webhookReq(), nil)
	rec2, err := repo.Get(context.Background(), "ord-1")
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, out1.Code)
	require.Equal(t, http.StatusOK, out2.Code)

	// both deliveries commit under the same idempotency key; dedup is the
	// inventory service's job
	require.Len(t, stock.calls, 2)
	require.Equal(t, stock.calls[0], stock.calls[1])
	require.Equal(t, rec1, rec2)
}

func TestRunPrefersProviderPricingForNotification(t *testing.T) {
	gw := &fakeGateway{
		notif: confirmedNotif(),
		lines: []shop.CartLine{{Sku: "A", Name: "Club Jersey", Qty: 2, UnitAmount: 8900}},
	}
	stock := &fakeStock{}
	mail := &fakeNotifier{}
	f := New(gw, stock, memory.New(), mail, testLogger())

	out := f.Run(context.Background(), webhookReq(), nil)
	require.Equal(t, http.StatusOK, out.Code)

	// stock authority stays with the reconciled cart
	require.Equal(t, -2, stock.calls[0].items[0].Qty)
	// pricing authority moves to the provider line
	require.Len(t, mail.sent, 1)
	require.Equal(t, int64(8900), mail.sent[0].Lines[0].UnitAmount)
	require.Equal(t, "Club Jersey", mail.sent[0].Lines[0].Name)
}
