package trading

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
)

// fetchPrices reads tickers in one batch. When the exchange rejects the batch
// (one unknown or delisted market is enough on Upbit) each ticker is read on
// its own and only the failing ones stay unpriced. Failing tickers are kept out
// of later batches and retried singly until they price again or the day resets.
// The error is non-nil only when no ticker could be priced at all.
func (e *Engine) fetchPrices(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(tickers))
	if len(tickers) == 0 {
		return prices, nil
	}

	var batch, single []string
	for _, t := range tickers {
		if e.unpriced[t] {
			single = append(single, t)
		} else {
			batch = append(batch, t)
		}
	}

	var errs []error
	if len(batch) > 0 {
		got, err := e.ex.Prices(ctx, batch)
		if err != nil {
			errs = append(errs, err)
			single = append(batch, single...)
		}
		for t, p := range got {
			prices[t] = p
		}
	}

	for _, t := range single {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, ok := prices[t]; ok {
			continue
		}
		got, err := e.ex.Prices(ctx, []string{t})
		p, ok := got[t]
		if err != nil || !ok {
			if !e.unpriced[t] {
				log.Printf("⚠️ no price for %s, skipping it until it quotes again: %v", t, err)
			}
			e.unpriced[t] = true
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", t, err))
			}
			continue
		}
		if e.unpriced[t] {
			log.Printf("✅ %s is quoted again", t)
			delete(e.unpriced, t)
		}
		prices[t] = p
	}

	if len(prices) == 0 && len(errs) > 0 {
		return prices, errors.Join(errs...)
	}
	return prices, nil
}
