package trading

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/exchange"
	"github.com/dyike/BreakoutGo/internal/strategy"
)

const dateLayout = "2006-01-02"

// InResetWindow reports whether now falls in [ResetHour:00, ResetHour:00+ResetWindow)
// of its own day. now must already be in the settings' location.
func InResetWindow(now time.Time, s Settings) bool {
	start := time.Date(now.Year(), now.Month(), now.Day(), s.ResetHour, 0, 0, 0, now.Location())
	return !now.Before(start) && now.Before(start.Add(s.ResetWindow))
}

// maybeReset runs the daily reset at most once per calendar date. The marker is
// written before any work so a failing reset is not retried inside the window.
func (e *Engine) maybeReset(ctx context.Context, now time.Time, s Settings) bool {
	if !InResetWindow(now, s) {
		return false
	}
	date := now.Format(dateLayout)
	if e.lastResetDate == date {
		return false
	}
	e.lastResetDate = date

	log.Printf("🌅 daily reset for %s", date)
	var errs []error
	if err := e.liquidateAll(ctx, s); err != nil {
		errs = append(errs, fmt.Errorf("liquidate: %w", err))
	}
	if e.onReset != nil {
		e.onReset()
	}
	if err := e.rebuildWatchlist(ctx, s, now); err != nil {
		errs = append(errs, fmt.Errorf("rebuild watch-list: %w", err))
	}
	e.cooldown.Clear()
	clear(e.unpriced)

	if err := errors.Join(errs...); err != nil {
		log.Printf("❌ daily reset incomplete: %v", err)
		e.notify(ctx, fmt.Sprintf("⚠️ daily reset error: %v", err))
		return true
	}
	e.notify(ctx, fmt.Sprintf("🌅 %02d:00 liquidation and reset complete, watching %d tickers", s.ResetHour, len(e.Watchlist().Tickers)))
	return true
}

// liquidateAll sells every non-home balance worth more than the order floor
// at the current price.
func (e *Engine) liquidateAll(ctx context.Context, s Settings) error {
	balances, err := e.ex.Balances(ctx)
	if err != nil {
		return err
	}

	var (
		tickers []string
		volumes = make(map[string]decimal.Decimal)
	)
	for _, b := range balances {
		if b.Currency == s.Quote || !b.Balance.IsPositive() {
			continue
		}
		if b.UnitCurrency != "" && b.UnitCurrency != s.Quote {
			continue
		}
		ticker := exchange.Ticker(s.Quote, b.Currency)
		tickers = append(tickers, ticker)
		volumes[ticker] = b.Balance
	}
	if len(tickers) == 0 {
		return nil
	}

	prices, err := e.fetchPrices(ctx, tickers)
	if err != nil {
		return err
	}

	var errs []error
	for _, ticker := range tickers {
		price, ok := prices[ticker]
		if !ok {
			continue
		}
		volume := volumes[ticker]
		if !price.Mul(volume).GreaterThan(s.Params.MinOrderAmount) {
			continue
		}
		sig := strategy.ExitSignal{Ticker: ticker, Quantity: volume, Price: price, Reason: strategy.ReasonDailyReset}
		if err := e.sell(ctx, s, sig); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
