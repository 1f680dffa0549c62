// Package gateway abstracts the payment providers behind one capability
// set: build a checkout, verify an inbound notification, parse it into a
// provider-independent shape, and (where supported) read back line items.
package gateway

import (
	"context"
	"errors"
	"net/http"

	"clubshop/pkg/shop"
)

// Checkout is the provider's answer to a checkout request.
type Checkout struct {
	URL       string
	SessionID string
}

// ReturnURLs are the redirect targets handed to the provider.
type ReturnURLs struct {
	Success string
	Cancel  string
}

// Notification is the provider-independent view of a payment webhook.
// CartJSON holds the compact cart encoding the checkout attached, when the
// provider echoed it back; SessionID identifies the transaction for
// itemized read-back.
type Notification struct {
	Confirmed   bool
	OrderID     string
	SessionID   string
	CartJSON    string
	Customer    shop.Customer
	AmountTotal int64
	Currency    string
}

// ErrNoLineItems is returned by providers without an itemized read-back API.
var ErrNoLineItems = errors.New("gateway: line items not available")

// Gateway is the capability set a payment provider must offer. Exactly one
// implementation is selected by configuration at startup.
type Gateway interface {
	Name() string

	// CreateCheckout builds the outbound request for the order and returns
	// the redirect URL plus the provider's session identifier. Nothing is
	// persisted locally at this stage.
	CreateCheckout(ctx context.Context, o shop.Order, urls ReturnURLs) (Checkout, error)

	// VerifyNotification authenticates an inbound webhook delivery against
	// the raw body and request credentials. Failure means the delivery must
	// be rejected before anything else runs.
	VerifyNotification(r *http.Request, raw []byte) error

	// ParseNotification extracts the provider-independent notification from
	// an already verified payload.
	ParseNotification(raw []byte) (Notification, error)

	// LineItems fetches the itemized purchase from the provider by session
	// id. Providers without such an API return ErrNoLineItems.
	LineItems(ctx context.Context, sessionID string) ([]shop.CartLine, error)
}
