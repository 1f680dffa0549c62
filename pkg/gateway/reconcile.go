package gateway

import (
	"context"
	"errors"
	"fmt"

	"clubshop/pkg/shop"
)

// Reconcile recovers the purchased cart lines from a parsed notification.
// The compact side-channel encoding wins; the provider's itemized API is
// the fallback. When neither yields a line the notification is terminally
// invalid: retrying the identical delivery cannot produce a different cart.
func Reconcile(ctx context.Context, gw Gateway, n Notification) ([]shop.CartLine, error) {
	if n.CartJSON != "" {
		if lines, err := shop.DecodeCart(n.CartJSON); err == nil {
			return lines, nil
		}
	}
	if n.SessionID != "" {
		lines, err := gw.LineItems(ctx, n.SessionID)
		if err != nil {
			if errors.Is(err, ErrNoLineItems) {
				return nil, shop.ErrInvalidCart
			}
			return nil, fmt.Errorf("%w: line items: %v", shop.ErrInvalidCart, err)
		}
		lines = shop.Normalize(lines)
		if len(lines) > 0 {
			return lines, nil
		}
	}
	return nil, shop.ErrInvalidCart
}

// MergePricing overlays the provider's authoritative unit prices onto the
// reconciled lines for display purposes. Stock quantities always come from
// the reconciled cart; only price and title are taken from the provider,
// matched by sku first and by display name second.
func MergePricing(lines, provider []shop.CartLine) []shop.CartLine {
	out := make([]shop.CartLine, len(lines))
	copy(out, lines)
	for i, l := range out {
		p, ok := matchLine(provider, l)
		if !ok {
			continue
		}
		out[i].UnitAmount = p.UnitAmount
		if p.Name != "" {
			out[i].Name = p.Name
		}
		if p.Image != "" && out[i].Image == "" {
			out[i].Image = p.Image
		}
	}
	return out
}

func matchLine(provider []shop.CartLine, l shop.CartLine) (shop.CartLine, bool) {
	for _, p := range provider {
		if p.Sku != "" && p.Sku == l.Sku {
			return p, true
		}
	}
	for _, p := range provider {
		if p.Name != "" && p.Name == l.Name {
			return p, true
		}
	}
	return shop.CartLine{}, false
}
