// Package yahoo provides exchange.MarketData backed by Yahoo Finance crypto
// pairs. It is read-only and is used as a feed for paper trading.
package yahoo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/exchange"
)

// Feed maps exchange-style tickers ("KRW-BTC") onto Yahoo symbols ("BTC-KRW").
// Yahoo cannot enumerate pairs by quote currency, so the universe is configured.
type Feed struct {
	universe []string
	retry    *exchange.RetryConfig
	now      func() time.Time
}

func New(universe []string) *Feed {
	normalized := make([]string, 0, len(universe))
	for _, t := range universe {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			normalized = append(normalized, t)
		}
	}
	return &Feed{
		universe: normalized,
		retry:    exchange.DefaultRetryConfig(),
		now:      time.Now,
	}
}

// Symbol converts "KRW-BTC" to "BTC-KRW".
func Symbol(ticker string) (string, error) {
	q, base, err := exchange.SplitTicker(ticker)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(base) + "-" + strings.ToUpper(q), nil
}

func (f *Feed) Tickers(ctx context.Context, q string) ([]string, error) {
	prefix := strings.ToUpper(q) + "-"
	out := make([]string, 0, len(f.universe))
	for _, t := range f.universe {
		if strings.HasPrefix(t, prefix) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Snapshots approximates 24h traded value as regular-market volume × price.
func (f *Feed) Snapshots(ctx context.Context, tickers []string) ([]exchange.Snapshot, error) {
	out := make([]exchange.Snapshot, 0, len(tickers))
	for _, t := range tickers {
		price, volume, err := f.quote(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, exchange.Snapshot{
			Ticker:           t,
			Price:            price,
			AccTradePrice24h: price.Mul(volume),
		})
	}
	return out, nil
}

func (f *Feed) Prices(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(tickers))
	for _, t := range tickers {
		price, _, err := f.quote(ctx, t)
		if err != nil {
			return nil, err
		}
		out[t] = price
	}
	return out, nil
}

func (f *Feed) Candles(ctx context.Context, ticker string, interval exchange.Interval, count int) ([]exchange.Candle, error) {
	symbol, err := Symbol(ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrFetch, err)
	}
	if count <= 0 {
		return nil, nil
	}

	yInterval := datetime.OneDay
	if interval == exchange.IntervalHour {
		yInterval = datetime.Interval("60m")
	}
	end := f.now()
	// Request a few extra bars; weekends and gaps do not apply to crypto but
	// Yahoo occasionally drops the forming bar.
	start := end.Add(-time.Duration(count+3) * interval.Duration())

	var candles []exchange.Candle
	err = exchange.WithRetry(ctx, f.retry, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		params := &chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: yInterval,
		}

		iter := chart.Get(params)
		candles = candles[:0]
		for iter.Next() {
			bar := iter.Bar()
			candles = append(candles, exchange.Candle{
				Time:   time.Unix(int64(bar.Timestamp), 0).UTC(),
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: decimal.NewFromInt(int64(bar.Volume)),
			})
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to get chart for %s: %w", symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", exchange.ErrFetch, err)
	}

	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return candles, nil
}

func (f *Feed) quote(ctx context.Context, ticker string) (price, volume decimal.Decimal, err error) {
	symbol, err := Symbol(ticker)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %v", exchange.ErrFetch, err)
	}

	err = exchange.WithRetry(ctx, f.retry, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		q, err := quote.Get(symbol)
		if err != nil {
			return fmt.Errorf("failed to get quote for %s: %w", symbol, err)
		}
		if q == nil {
			return fmt.Errorf("no quote for %s", symbol)
		}
		price = decimal.NewFromFloat(q.RegularMarketPrice)
		volume = decimal.NewFromInt(int64(q.RegularMarketVolume))
		return nil
	})
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %w", exchange.ErrFetch, err)
	}
	return price, volume, nil
}
