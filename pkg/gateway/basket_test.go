package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"

	"clubshop/pkg/shop"
)

func TestBuildBasketPlainLines(t *testing.T) {
	basket, total := BuildBasket([]shop.CartLine{
		{Sku: "A", Name: "Jersey", Qty: 2, UnitAmount: 8900},
		{Sku: "B", Name: "Cap", Qty: 1, UnitAmount: 2500},
	}, true)
	require.Len(t, basket, 2)
	require.Equal(t, int64(2*8900+2500), total)
}

func TestBuildBasketDropsZeroQty(t *testing.T) {
	basket, total := BuildBasket([]shop.CartLine{
		{Sku: "A", Qty: 0, UnitAmount: 8900},
	}, true)
	require.Empty(t, basket)
	require.Zero(t, total)
}

func TestBuildBasketReturnSplit(t *testing.T) {
	basket, total := BuildBasket([]shop.CartLine{
		{Sku: "A", Name: "Jersey", Qty: 3, UnitAmount: 8000, IsReturn: true, ReturnDiscount: 3000},
	}, true)
	require.Len(t, basket, 2)
	require.Equal(t, BasketLine{Name: "Jersey (Return - Discounted)", Amount: 5000, Quantity: 1}, basket[0])
	require.Equal(t, BasketLine{Name: "Jersey", Amount: 8000, Quantity: 2}, basket[1])
	require.Equal(t, int64(5000+2*8000), total)
}

func TestBuildBasketFullyDiscountedReturn(t *testing.T) {
	lines := []shop.CartLine{
		{Sku: "A", Name: "Jersey", Qty: 3, UnitAmount: 5000, IsReturn: true, ReturnDiscount: 5000},
	}

	// gateways accepting zero-amount rows keep the free unit visible
	basket, total := BuildBasket(lines, true)
	require.Len(t, basket, 2)
	require.Equal(t, BasketLine{Name: "Jersey (Return - Free)", Amount: 0, Quantity: 1}, basket[0])
	require.Equal(t, BasketLine{Name: "Jersey", Amount: 5000, Quantity: 2}, basket[1])
	require.Equal(t, int64(10000), total)

	// gateways rejecting zero-amount rows omit it; the total is unchanged
	basket, total = BuildBasket(lines, false)
	require.Len(t, basket, 1)
	require.Equal(t, BasketLine{Name: "Jersey", Amount: 5000, Quantity: 2}, basket[0])
	require.Equal(t, int64(10000), total)
}

func TestBuildBasketDiscountLargerThanUnit(t *testing.T) {
	basket, total := BuildBasket([]shop.CartLine{
		{Sku: "A", Name: "Jersey", Qty: 1, UnitAmount: 2000, IsReturn: true, ReturnDiscount: 9000},
	}, true)
	require.Len(t, basket, 1)
	require.Equal(t, int64(0), basket[0].Amount)
	require.Zero(t, total)
}

func TestBuildBasketReturnFlagWithoutDiscount(t *testing.T) {
	basket, total := BuildBasket([]shop.CartLine{
		{Sku: "A", Name: "Jersey", Qty: 2, UnitAmount: 4000, IsReturn: true},
	}, true)
	require.Len(t, basket, 1)
	require.Equal(t, BasketLine{Name: "Jersey", Amount: 4000, Quantity: 2}, basket[0])
	require.Equal(t, int64(8000), total)
}
