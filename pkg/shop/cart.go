package shop

import (
	"encoding/json"
	"fmt"
)

// wireLine is the compact cart encoding travelling through gateway
// metadata. Single-letter keys keep the payload inside provider metadata
// size limits; it must carry enough to rebuild the cart without a catalog
// lookup.
type wireLine struct {
	Sku            string `json:"s"`
	Size           string `json:"z"`
	Color          string `json:"c"`
	Qty            int    `json:"q"`
	UnitAmount     int64  `json:"u"`
	IsReturn       bool   `json:"r,omitempty"`
	ReturnDiscount int64  `json:"d,omitempty"`
}

// EncodeCart serializes cart lines into the compact side-channel encoding
// attached to outbound checkout requests. Zero-quantity lines are dropped;
// presentation fields (title, image) are not carried.
func EncodeCart(lines []CartLine) (string, error) {
	wire := make([]wireLine, 0, len(lines))
	for _, l := range Normalize(lines) {
		wire = append(wire, wireLine{
			Sku:            l.Sku,
			Size:           l.Size,
			Color:          l.Color,
			Qty:            l.Qty,
			UnitAmount:     l.UnitAmount,
			IsReturn:       l.IsReturn,
			ReturnDiscount: l.ReturnDiscount,
		})
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("encode cart: %w", err)
	}
	return string(b), nil
}

// DecodeCart parses the compact encoding back into cart lines. An empty or
// malformed payload, or one without a single positive-quantity line, is an
// error; callers treat that as an absent cart source, never as a reason to
// retry.
func DecodeCart(s string) ([]CartLine, error) {
	if s == "" {
		return nil, fmt.Errorf("decode cart: empty payload")
	}
	var wire []wireLine
	if err := json.Unmarshal([]byte(s), &wire); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	lines := make([]CartLine, 0, len(wire))
	for _, w := range wire {
		lines = append(lines, CartLine{
			Sku:            w.Sku,
			Size:           w.Size,
			Color:          w.Color,
			Qty:            w.Qty,
			UnitAmount:     w.UnitAmount,
			IsReturn:       w.IsReturn,
			ReturnDiscount: w.ReturnDiscount,
		})
	}
	lines = Normalize(lines)
	if len(lines) == 0 {
		return nil, fmt.Errorf("decode cart: no lines")
	}
	return lines, nil
}
