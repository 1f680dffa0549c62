// Package shop holds the domain types shared by checkout, webhook and
// inventory code.
package shop

import (
	"errors"
	"strings"
)

// CartLine is one purchasable position in a cart. Monetary amounts are
// integers in the currency's minor unit (Rappen for CHF).
type CartLine struct {
	Sku            string `json:"sku"`
	Size           string `json:"size"`
	Color          string `json:"color"`
	Qty            int    `json:"qty"`
	Name           string `json:"name,omitempty"`
	Image          string `json:"image,omitempty"`
	UnitAmount     int64  `json:"unit_amount"`
	IsReturn       bool   `json:"isReturn,omitempty"`
	ReturnDiscount int64  `json:"returnDiscount,omitempty"`
}

// DisplayName returns the customer-facing title for the line.
func (l CartLine) DisplayName() string {
	if n := strings.TrimSpace(l.Name); n != "" {
		return n
	}
	return "Item"
}

// Customer is the buyer contact collected at checkout.
type Customer struct {
	Name       string `json:"name,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Email      string `json:"email,omitempty"`
	Street     string `json:"street,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
}

// FullName joins first and last name, defaulting to "Customer".
func (c Customer) FullName() string {
	n := strings.TrimSpace(strings.TrimSpace(c.Name) + " " + strings.TrimSpace(c.LastName))
	if n == "" {
		return "Customer"
	}
	return n
}

// Order is one checkout attempt. OrderID is the idempotency key for every
// side effect derived from the order and must stay stable across webhook
// retries for the same payment.
type Order struct {
	OrderID  string
	Currency string
	Lines    []CartLine
	Customer Customer
}

// Normalize drops zero- and negative-quantity lines. It runs before any
// downstream effect so that such lines never reach a basket, a stock
// request or the cart encoding.
func Normalize(lines []CartLine) []CartLine {
	out := make([]CartLine, 0, len(lines))
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		out = append(out, l)
	}
	return out
}

var (
	// ErrUnauthorized marks a webhook whose credential failed verification.
	// Nothing downstream of verification may run.
	ErrUnauthorized = errors.New("unauthorized notification")

	// ErrInvalidCart marks an authenticated notification whose cart could
	// not be recovered from any source. Terminal: retrying the identical
	// delivery cannot produce a different cart.
	ErrInvalidCart = errors.New("missing cart")

	// ErrInvalidTotal marks a checkout whose computed total is not positive.
	// Rejected before any outbound call.
	ErrInvalidTotal = errors.New("invalid amount")

	// ErrStockCommitFailed is the only retryable finalization failure.
	ErrStockCommitFailed = errors.New("stock commit failed")
)
