package strategy

import "github.com/shopspring/decimal"

// EntrySignal asks for a market buy of Amount in the home currency.
type EntrySignal struct {
	Ticker string
	Amount decimal.Decimal
	Price  decimal.Decimal
	Target decimal.Decimal
}

// EntryInput is everything SelectEntry looks at for one tick.
type EntryInput struct {
	Candidates []string
	Targets    map[string]decimal.Decimal
	Prices     map[string]decimal.Decimal
	Held       map[string]bool
	InCooldown func(string) bool
	Balance    decimal.Decimal
}

// SelectEntry scans candidates in rank order and returns the first one that
// is not held, not cooling down, has a target and trades at or above it.
// At most one entry is returned per call.
func SelectEntry(in EntryInput, p Params) (EntrySignal, bool) {
	if len(in.Held) >= p.MaxHoldings {
		return EntrySignal{}, false
	}
	amount := BuyAmount(len(in.Held), in.Balance, p)
	if amount.IsZero() {
		return EntrySignal{}, false
	}

	for _, ticker := range in.Candidates {
		if in.Held[ticker] {
			continue
		}
		if in.InCooldown != nil && in.InCooldown(ticker) {
			continue
		}
		target, ok := in.Targets[ticker]
		if !ok {
			continue
		}
		price, ok := in.Prices[ticker]
		if !ok || !price.IsPositive() {
			continue
		}
		if price.GreaterThanOrEqual(target) {
			return EntrySignal{Ticker: ticker, Amount: amount, Price: price, Target: target}, true
		}
	}
	return EntrySignal{}, false
}
