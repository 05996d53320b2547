package strategy

import "github.com/shopspring/decimal"

// reserve keeps a sliver of the balance back for fees and rounding.
var reserve = decimal.RequireFromString("0.999")

// BuyAmount splits the spendable balance across the free holding slots.
// It returns zero when no slot is free or the share falls under the order floor.
func BuyAmount(holdingCount int, balance decimal.Decimal, p Params) decimal.Decimal {
	remaining := p.MaxHoldings - holdingCount
	if remaining <= 0 || !balance.IsPositive() {
		return decimal.Zero
	}
	amount := decimal.Min(balance.Mul(reserve).Div(decimal.NewFromInt(int64(remaining))), p.MaxBuyAmount)
	if amount.LessThan(p.MinOrderAmount) {
		return decimal.Zero
	}
	return amount
}
