package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"clubshop/pkg/shop"
)

// StripeConfig carries the Stripe credentials. BaseURL and HTTPClient are
// overridable for tests.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	HTTPClient    *http.Client
}

// Stripe drives the checkout-sessions integration: hosted checkout, signed
// webhook, itemized line-item read-back.
type Stripe struct {
	secretKey     string
	webhookSecret string
	base          string
	hc            *http.Client
}

// NewStripe builds the Stripe gateway.
func NewStripe(cfg StripeConfig) *Stripe {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.stripe.com"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Stripe{secretKey: cfg.SecretKey, webhookSecret: cfg.WebhookSecret, base: base, hc: hc}
}

// Name identifies the provider in config and logs.
func (s *Stripe) Name() string { return "stripe" }

// CreateCheckout creates a checkout session. The total is always the sum
// of the emitted basket rows, never a client-supplied figure; the compact
// cart, the order id and the customer ride along as session metadata.
func (s *Stripe) CreateCheckout(ctx context.Context, o shop.Order, urls ReturnURLs) (Checkout, error) {
	lines := shop.Normalize(o.Lines)
	basket, total := BuildBasket(lines, false)
	if total <= 0 {
		return Checkout{}, shop.ErrInvalidTotal
	}

	cartJSON, err := shop.EncodeCart(lines)
	if err != nil {
		return Checkout{}, err
	}
	customerJSON, err := json.Marshal(o.Customer)
	if err != nil {
		return Checkout{}, fmt.Errorf("encode customer: %w", err)
	}

	params := url.Values{}
	params.Set("mode", "payment")
	params.Set("success_url", urls.Success)
	params.Set("cancel_url", urls.Cancel)
	params.Set("metadata[orderId]", o.OrderID)
	params.Set("metadata[cart]", cartJSON)
	params.Set("metadata[customer]", string(customerJSON))
	if o.Customer.Email != "" {
		params.Set("customer_email", o.Customer.Email)
	}
	for i, b := range basket {
		p := fmt.Sprintf("line_items[%d]", i)
		params.Set(p+"[quantity]", strconv.Itoa(b.Quantity))
		params.Set(p+"[price_data][currency]", strings.ToLower(o.Currency))
		params.Set(p+"[price_data][unit_amount]", strconv.FormatInt(b.Amount, 10))
		params.Set(p+"[price_data][product_data][name]", b.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/v1/checkout/sessions", strings.NewReader(params.Encode()))
	if err != nil {
		return Checkout{}, err
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.hc.Do(req)
	if err != nil {
		return Checkout{}, fmt.Errorf("stripe: create session: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return Checkout{}, fmt.Errorf("stripe: create session: status %d: %s", resp.StatusCode, body)
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &session); err != nil {
		return Checkout{}, fmt.Errorf("stripe: decode session: %w", err)
	}
	if session.URL == "" {
		return Checkout{}, fmt.Errorf("stripe: session without redirect url")
	}
	return Checkout{URL: session.URL, SessionID: session.ID}, nil
}

// VerifyNotification checks the Stripe-Signature header: HMAC-SHA256 over
// "<t>.<raw body>" compared constant-time against the v1 value.
func (s *Stripe) VerifyNotification(r *http.Request, raw []byte) error {
	if s.webhookSecret == "" {
		return shop.ErrUnauthorized
	}
	header := r.Header.Get("Stripe-Signature")
	if header == "" {
		return shop.ErrUnauthorized
	}
	var ts, v1 string
	for _, kv := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return shop.ErrUnauthorized
	}
	want, err := hex.DecodeString(v1)
	if err != nil {
		return shop.ErrUnauthorized
	}
	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(raw)
	if !hmac.Equal(mac.Sum(nil), want) {
		return shop.ErrUnauthorized
	}
	return nil
}

type stripeSession struct {
	ID              string            `json:"id"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"customer_details"`
}

// ParseNotification reads the event envelope. Only completed checkout
// sessions come back confirmed; every other event type is ignored.
func (s *Stripe) ParseNotification(raw []byte) (Notification, error) {
	var event struct {
		Type string `json:"type"`
		Data struct {
			Object stripeSession `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		return Notification{}, fmt.Errorf("stripe: parse event: %w", err)
	}
	if event.Type != "checkout.session.completed" {
		return Notification{}, nil
	}
	sess := event.Data.Object

	orderID := sess.Metadata["orderId"]
	if orderID == "" {
		orderID = sess.ID
	}

	var cust shop.Customer
	if c := sess.Metadata["customer"]; c != "" {
		// best effort; a broken customer blob only degrades the email
		_ = json.Unmarshal([]byte(c), &cust)
	}
	if cust.Email == "" {
		cust.Email = sess.CustomerDetails.Email
	}
	if cust.Name == "" {
		cust.Name = sess.CustomerDetails.Name
	}

	return Notification{
		Confirmed:   true,
		OrderID:     orderID,
		SessionID:   sess.ID,
		CartJSON:    sess.Metadata["cart"],
		Customer:    cust,
		AmountTotal: sess.AmountTotal,
		Currency:    strings.ToUpper(sess.Currency),
	}, nil
}

// LineItems fetches the session's itemized purchase with the product
// expanded, mapping sku/size/color from the product metadata. Zero-quantity
// rows are filtered here.
func (s *Stripe) LineItems(ctx context.Context, sessionID string) ([]shop.CartLine, error) {
	u := s.base + "/v1/checkout/sessions/" + url.PathEscape(sessionID) + "/line_items?limit=100&expand[]=data.price.product"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripe: line items: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stripe: line items: status %d: %s", resp.StatusCode, body)
	}

	var list struct {
		Data []struct {
			Quantity    int    `json:"quantity"`
			AmountTotal int64  `json:"amount_total"`
			Description string `json:"description"`
			Price       struct {
				UnitAmount int64 `json:"unit_amount"`
				Product    struct {
					Name     string            `json:"name"`
					Images   []string          `json:"images"`
					Metadata map[string]string `json:"metadata"`
				} `json:"product"`
			} `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("stripe: decode line items: %w", err)
	}

	var lines []shop.CartLine
	for _, it := range list.Data {
		if it.Quantity == 0 {
			continue
		}
		unit := it.Price.UnitAmount
		if it.AmountTotal != 0 && it.Quantity != 0 {
			unit = it.AmountTotal / int64(it.Quantity)
		}
		name := it.Price.Product.Name
		if name == "" {
			name = it.Description
		}
		var image string
		if len(it.Price.Product.Images) > 0 {
			image = it.Price.Product.Images[0]
		}
		lines = append(lines, shop.CartLine{
			Sku:        it.Price.Product.Metadata["sku"],
			Size:       it.Price.Product.Metadata["size"],
			Color:      it.Price.Product.Metadata["color"],
			Qty:        it.Quantity,
			Name:       name,
			Image:      image,
			UnitAmount: unit,
		})
	}
	return lines, nil
}
