package strategy

import "github.com/shopspring/decimal"

// Holding is a position discovered from account balances.
type Holding struct {
	Ticker      string
	AvgBuyPrice decimal.Decimal
	Quantity    decimal.Decimal
}

// CostBasis is quantity times average buy price.
func (h Holding) CostBasis() decimal.Decimal {
	return h.Quantity.Mul(h.AvgBuyPrice)
}

// ExitSignal asks for the whole position to be sold.
type ExitSignal struct {
	Ticker   string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Rate     decimal.Decimal
	Reason   Reason
}

// Rate is (price - avg) / avg. avg must be positive.
func Rate(avg, price decimal.Decimal) decimal.Decimal {
	return price.Sub(avg).Div(avg)
}

// EvaluateExit checks a single holding. Take profit is tested before stop loss,
// so at most one of them fires.
func EvaluateExit(h Holding, price decimal.Decimal, p Params) (ExitSignal, bool) {
	if !h.AvgBuyPrice.IsPositive() || !price.IsPositive() || !h.Quantity.IsPositive() {
		return ExitSignal{}, false
	}
	if h.CostBasis().LessThan(p.MinOrderAmount) {
		return ExitSignal{}, false
	}

	rate := Rate(h.AvgBuyPrice, price)
	sig := ExitSignal{Ticker: h.Ticker, Quantity: h.Quantity, Price: price, Rate: rate}
	switch {
	case p.TakeProfitMode == TakeProfitThreshold && rate.GreaterThanOrEqual(p.TakeProfit):
		sig.Reason = ReasonTakeProfit
	case rate.LessThanOrEqual(p.StopLoss.Neg()):
		sig.Reason = ReasonStopLoss
	default:
		return ExitSignal{}, false
	}
	return sig, true
}

// EvaluateExits runs EvaluateExit over every holding that has a price and is
// not cooling down. Signals keep the order of holdings.
func EvaluateExits(holdings []Holding, prices map[string]decimal.Decimal, inCooldown func(string) bool, p Params) []ExitSignal {
	var out []ExitSignal
	for _, h := range holdings {
		if inCooldown != nil && inCooldown(h.Ticker) {
			continue
		}
		price, ok := prices[h.Ticker]
		if !ok {
			continue
		}
		if sig, ok := EvaluateExit(h, price, p); ok {
			out = append(out, sig)
		}
	}
	return out
}
