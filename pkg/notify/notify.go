// Package notify sends the best-effort order confirmation to the buyer.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"clubshop/pkg/shop"
)

// Confirmation carries everything the confirmation message needs. Amounts
// are in minor units.
type Confirmation struct {
	OrderID     string
	Name        string
	Email       string
	Currency    string
	AmountTotal int64
	Lines       []shop.CartLine
}

// A Notifier delivers the customer-facing confirmation for a finalized
// order. Implementations do not retry; the caller decides whether a
// failure matters.
type Notifier interface {
	OrderConfirmed(ctx context.Context, c Confirmation) error
}

// Email sends confirmations through sendgrid.
type Email struct {
	apiKey   string
	from     string
	fromName string
}

// NewEmail builds the sendgrid notifier.
func NewEmail(apiKey, from, fromName string) *Email {
	return &Email{apiKey: apiKey, from: from, fromName: fromName}
}

// OrderConfirmed sends the confirmation email.
func (e *Email) OrderConfirmed(ctx context.Context, c Confirmation) error {
	if e.apiKey == "" {
		return errors.New("sendgrid api key is empty")
	}
	if c.Email == "" {
		return errors.New("buyer email is empty")
	}

	subject := fmt.Sprintf("Order %s confirmed", c.OrderID)
	body := renderBody(c)

	msg := mail.NewSingleEmail(
		mail.NewEmail(e.fromName, e.from),
		subject,
		mail.NewEmail(c.Name, c.Email),
		body,
		"<pre>"+html.EscapeString(body)+"</pre>",
	)

	client := sendgrid.NewSendClient(e.apiKey)
	resp, err := client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send failed: status=%d body=%s", resp.StatusCode, resp.Body)
	}
	return nil
}

func renderBody(c Confirmation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nThank you for your order %s.\n\n", c.Name, c.OrderID)
	for _, l := range c.Lines {
		if l.Qty <= 0 {
			continue
		}
		fmt.Fprintf(&b, "  %dx %s", l.Qty, l.DisplayName())
		if l.Size != "" {
			fmt.Fprintf(&b, " (%s)", l.Size)
		}
		fmt.Fprintf(&b, " - %s\n", FormatAmount(c.Currency, l.UnitAmount))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", FormatAmount(c.Currency, c.AmountTotal))
	b.WriteString("\nWe will let you know once your order ships.\n")
	return b.String()
}

// FormatAmount renders a minor-unit amount as "CHF 50.00".
func FormatAmount(currency string, minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s %s%d.%02d", currency, sign, minor/100, minor%100)
}
