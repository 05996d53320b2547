package trading

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/exchange"
	"github.com/dyike/BreakoutGo/internal/strategy"
)

// Watchlist is the ranked candidate list together with the breakout targets
// computed for it. The two are always replaced as one value.
type Watchlist struct {
	Tickers []string
	Targets map[string]decimal.Decimal
	BuiltAt time.Time
}

func (w Watchlist) Empty() bool { return len(w.Tickers) == 0 }

// Target returns the breakout level for ticker. Tickers without a target are
// not eligible for entry.
func (w Watchlist) Target(ticker string) (decimal.Decimal, bool) {
	t, ok := w.Targets[ticker]
	return t, ok
}

// RankCandidates returns the top size tickers of the quote market by 24h
// traded value, highest first.
func RankCandidates(ctx context.Context, md exchange.MarketData, quote string, size int) ([]string, error) {
	tickers, err := md.Tickers(ctx, quote)
	if err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: no %s markets listed", exchange.ErrFetch, quote)
	}
	snaps, err := md.Snapshots(ctx, tickers)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].AccTradePrice24h.GreaterThan(snaps[j].AccTradePrice24h)
	})
	if size > 0 && len(snaps) > size {
		snaps = snaps[:size]
	}
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.Ticker
	}
	return out, nil
}

// ComputeTargets fetches two bars per ticker and derives its breakout target.
// Tickers whose bars cannot be fetched are left out of the map.
func ComputeTargets(ctx context.Context, md exchange.MarketData, tickers []string, interval exchange.Interval, k decimal.Decimal) map[string]decimal.Decimal {
	targets := make(map[string]decimal.Decimal, len(tickers))
	for _, ticker := range tickers {
		if ctx.Err() != nil {
			break
		}
		candles, err := md.Candles(ctx, ticker, interval, 2)
		if err != nil {
			log.Printf("⚠️ target for %s skipped: %v", ticker, err)
			continue
		}
		target, err := strategy.TargetPrice(candles, k)
		if err != nil {
			log.Printf("⚠️ target for %s skipped: %v", ticker, err)
			continue
		}
		targets[ticker] = target
	}
	return targets
}

// BuildWatchlist ranks candidates and computes their targets. When ranking
// fails it returns prev unchanged, or the fallback tickers with fresh targets
// when there is no previous list, together with the error.
func BuildWatchlist(ctx context.Context, md exchange.MarketData, s Settings, prev Watchlist, now time.Time) (Watchlist, error) {
	tickers, err := RankCandidates(ctx, md, s.Quote, s.CandidateSize)
	if err != nil {
		err = fmt.Errorf("rank candidates: %w", err)
		if !prev.Empty() {
			return prev, err
		}
		tickers = append([]string(nil), s.FallbackTickers...)
	}

	wl := Watchlist{
		Tickers: tickers,
		Targets: ComputeTargets(ctx, md, tickers, s.CandleInterval, s.Params.K),
		BuiltAt: now,
	}
	if len(wl.Targets) == 0 && len(tickers) > 0 {
		err = errors.Join(err, fmt.Errorf("%w: no breakout targets for %d candidates", exchange.ErrInsufficientData, len(tickers)))
	}
	return wl, err
}
