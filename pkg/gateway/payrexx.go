package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"clubshop/pkg/shop"
)

// PayrexxConfig carries the zahls.ch (Payrexx) credentials. WebhookToken
// is the static secret the provider appends to its webhook calls.
type PayrexxConfig struct {
	Instance     string
	APISecret    string
	WebhookToken string
	BaseURL      string
	HTTPClient   *http.Client
}

// Payrexx drives the zahls.ch gateway used for TWINT payments. Checkout
// requests are form-encoded and signed with an ApiSignature; the webhook
// authenticates with a static token. The provider has no itemized
// read-back, so the compact cart encoding is mandatory for this gateway.
type Payrexx struct {
	instance     string
	apiSecret    string
	webhookToken string
	base         string
	hc           *http.Client
}

// NewPayrexx builds the Payrexx gateway.
func NewPayrexx(cfg PayrexxConfig) *Payrexx {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.payrexx.com"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Payrexx{
		instance:     cfg.Instance,
		apiSecret:    cfg.APISecret,
		webhookToken: cfg.WebhookToken,
		base:         base,
		hc:           hc,
	}
}

// Name identifies the provider in config and logs.
func (p *Payrexx) Name() string { return "payrexx" }

// Sign computes the ApiSignature for an unsigned query string: base64 of
// the HMAC-SHA256 over the URL-encoded parameters.
func (p *Payrexx) Sign(unsigned string) string {
	mac := hmac.New(sha256.New, []byte(p.apiSecret))
	mac.Write([]byte(unsigned))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// CreateCheckout creates a Gateway resource and returns its payment link.
// The compact cart travels in a passthrough field so the webhook can
// reconstruct the purchase without a provider read-back.
func (p *Payrexx) CreateCheckout(ctx context.Context, o shop.Order, urls ReturnURLs) (Checkout, error) {
	lines := shop.Normalize(o.Lines)
	basket, total := BuildBasket(lines, true)
	if total <= 0 {
		return Checkout{}, shop.ErrInvalidTotal
	}

	cartJSON, err := shop.EncodeCart(lines)
	if err != nil {
		return Checkout{}, err
	}

	params := url.Values{}
	params.Set("amount", strconv.FormatInt(total, 10))
	params.Set("currency", o.Currency)
	params.Set("referenceId", o.OrderID)
	params.Set("pm[0]", "twint")
	params.Set("successRedirectUrl", urls.Success)
	params.Set("failedRedirectUrl", urls.Cancel)
	params.Set("cancelRedirectUrl", urls.Cancel)
	if o.Customer.Name != "" {
		params.Set("fields[forename][value]", o.Customer.Name)
	}
	if o.Customer.LastName != "" {
		params.Set("fields[surname][value]", o.Customer.LastName)
	}
	if o.Customer.Email != "" {
		params.Set("fields[email][value]", o.Customer.Email)
	}
	params.Set("fields[custom_field_1][value]", cartJSON)
	for i, b := range basket {
		prefix := fmt.Sprintf("basket[%d]", i)
		params.Set(prefix+"[name]", b.Name)
		params.Set(prefix+"[amount]", strconv.FormatInt(b.Amount, 10))
		params.Set(prefix+"[quantity]", strconv.Itoa(b.Quantity))
	}

	// signature over the URL-encoded query, without ApiSignature
	unsigned := params.Encode()
	params.Set("ApiSignature", p.Sign(unsigned))

	endpoint := p.base + "/v1.0/Gateway/?instance=" + url.QueryEscape(p.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return Checkout{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.hc.Do(req)
	if err != nil {
		return Checkout{}, fmt.Errorf("payrexx: create gateway: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var reply struct {
		Status string `json:"status"`
		Data   []struct {
			ID   int    `json:"id"`
			Link string `json:"link"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &reply); err != nil || resp.StatusCode >= 300 || reply.Status != "success" {
		return Checkout{}, fmt.Errorf("payrexx: create gateway: status %d: %s", resp.StatusCode, body)
	}
	if len(reply.Data) == 0 || reply.Data[0].Link == "" {
		return Checkout{}, fmt.Errorf("payrexx: missing payment link: %s", body)
	}
	return Checkout{URL: reply.Data[0].Link, SessionID: strconv.Itoa(reply.Data[0].ID)}, nil
}

// VerifyNotification compares the webhook's token parameter against the
// configured secret, constant-time.
func (p *Payrexx) VerifyNotification(r *http.Request, raw []byte) error {
	if p.webhookToken == "" {
		return shop.ErrUnauthorized
	}
	token := r.URL.Query().Get("token")
	if token == "" || !hmac.Equal([]byte(token), []byte(p.webhookToken)) {
		return shop.ErrUnauthorized
	}
	return nil
}

// ParseNotification reads the transaction envelope the provider posts on
// every status change. Only "confirmed" transactions finalize an order.
func (p *Payrexx) ParseNotification(raw []byte) (Notification, error) {
	var body struct {
		Transaction struct {
			ID          int    `json:"id"`
			Status      string `json:"status"`
			ReferenceID string `json:"referenceId"`
			Amount      int64  `json:"amount"`
			Invoice     struct {
				CurrencyAlpha3 string `json:"currencyAlpha3"`
				CustomFields   map[string]struct {
					Name  string `json:"name"`
					Value string `json:"value"`
				} `json:"custom_fields"`
			} `json:"invoice"`
			Contact struct {
				Firstname string `json:"firstname"`
				Lastname  string `json:"lastname"`
				Email     string `json:"email"`
			} `json:"contact"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Notification{}, fmt.Errorf("payrexx: parse transaction: %w", err)
	}
	tx := body.Transaction
	if tx.ID == 0 && tx.ReferenceID == "" {
		return Notification{}, fmt.Errorf("payrexx: notification without transaction")
	}

	orderID := tx.ReferenceID
	if orderID == "" {
		orderID = strconv.Itoa(tx.ID)
	}
	currency := tx.Invoice.CurrencyAlpha3
	if currency == "" {
		currency = "CHF"
	}

	return Notification{
		Confirmed: tx.Status == "confirmed",
		OrderID:   orderID,
		SessionID: strconv.Itoa(tx.ID),
		CartJSON:  tx.Invoice.CustomFields["custom_field_1"].Value,
		Customer: shop.Customer{
			Name:     tx.Contact.Firstname,
			LastName: tx.Contact.Lastname,
			Email:    tx.Contact.Email,
		},
		AmountTotal: tx.Amount,
		Currency:    currency,
	}, nil
}

// LineItems is unsupported: the provider keeps basket rows as display
// strings only, without sku/size metadata to map back.
func (p *Payrexx) LineItems(ctx context.Context, sessionID string) ([]shop.CartLine, error) {
	return nil, ErrNoLineItems
}
