package gateway

import "clubshop/pkg/shop"

// BasketLine is one priced row sent to a provider. Amount is per unit, in
// minor units.
type BasketLine struct {
	Name     string
	Amount   int64
	Quantity int
}

// BuildBasket flattens cart lines into priced basket rows and returns the
// total the provider will be asked to charge.
//
// A return-exchange line with a discount splits in two: one unit at the
// discounted price and, when the quantity exceeds one, the remaining units
// at full price. allowZero controls whether a fully discounted unit appears
// as a zero-amount row; gateways that reject zero-amount rows leave that
// unit to the side-channel cart encoding, which carries the full line
// either way.
func BuildBasket(lines []shop.CartLine, allowZero bool) ([]BasketLine, int64) {
	var basket []BasketLine
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		name := l.DisplayName()
		if l.IsReturn && l.ReturnDiscount > 0 {
			discounted := l.UnitAmount - l.ReturnDiscount
			if discounted < 0 {
				discounted = 0
			}
			switch {
			case discounted > 0:
				basket = append(basket, BasketLine{Name: name + " (Return - Discounted)", Amount: discounted, Quantity: 1})
			case allowZero:
				basket = append(basket, BasketLine{Name: name + " (Return - Free)", Amount: 0, Quantity: 1})
			}
			if l.Qty > 1 {
				basket = append(basket, BasketLine{Name: name, Amount: l.UnitAmount, Quantity: l.Qty - 1})
			}
		} else {
			basket = append(basket, BasketLine{Name: name, Amount: l.UnitAmount, Quantity: l.Qty})
		}
	}

	var total int64
	for _, b := range basket {
		total += b.Amount * int64(b.Quantity)
	}
	return basket, total
}
