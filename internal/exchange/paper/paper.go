// Package paper simulates order execution against live market data so the
// trading loop can run without touching a real account.
package paper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/exchange"
)

type Config struct {
	Quote   string
	Balance decimal.Decimal
	FeeRate decimal.Decimal
}

type position struct {
	volume decimal.Decimal
	avg    decimal.Decimal
}

// Exchange fills every market order at the last price reported by the wrapped feed.
type Exchange struct {
	exchange.MarketData

	quote   string
	feeRate decimal.Decimal
	now     func() time.Time

	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]*position
}

func New(feed exchange.MarketData, cfg Config) *Exchange {
	quote := strings.ToUpper(cfg.Quote)
	if quote == "" {
		quote = "KRW"
	}
	return &Exchange{
		MarketData: feed,
		quote:      quote,
		feeRate:    cfg.FeeRate,
		now:        time.Now,
		cash:       cfg.Balance,
		positions:  make(map[string]*position),
	}
}

func (p *Exchange) Name() string { return "paper" }

func (p *Exchange) Balances(ctx context.Context) ([]exchange.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	balances := []exchange.Balance{{
		Currency:     p.quote,
		Balance:      p.cash,
		UnitCurrency: p.quote,
	}}

	currencies := make([]string, 0, len(p.positions))
	for c := range p.positions {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	for _, c := range currencies {
		pos := p.positions[c]
		balances = append(balances, exchange.Balance{
			Currency:     c,
			Balance:      pos.volume,
			AvgBuyPrice:  pos.avg,
			UnitCurrency: p.quote,
		})
	}
	return balances, nil
}

func (p *Exchange) BuyMarket(ctx context.Context, ticker string, amount decimal.Decimal) (*exchange.Order, error) {
	base, price, err := p.quoteFor(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: buy %s: %w", exchange.ErrOrder, ticker, err)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: buy %s: non-positive amount %s", exchange.ErrOrder, ticker, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cost := amount.Add(amount.Mul(p.feeRate))
	if cost.GreaterThan(p.cash) {
		return nil, fmt.Errorf("%w: buy %s: insufficient %s balance %s < %s", exchange.ErrOrder, ticker, p.quote, p.cash, cost)
	}
	volume := amount.Div(price)

	pos, ok := p.positions[base]
	if !ok {
		pos = &position{}
		p.positions[base] = pos
	}
	total := pos.volume.Add(volume)
	pos.avg = pos.avg.Mul(pos.volume).Add(amount).Div(total)
	pos.volume = total
	p.cash = p.cash.Sub(cost)

	return &exchange.Order{
		ID:        uuid.NewString(),
		Ticker:    ticker,
		Side:      exchange.SideBuy,
		Amount:    amount,
		Volume:    volume,
		State:     "done",
		CreatedAt: p.now(),
	}, nil
}

func (p *Exchange) SellMarket(ctx context.Context, ticker string, volume decimal.Decimal) (*exchange.Order, error) {
	base, price, err := p.quoteFor(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: sell %s: %w", exchange.ErrOrder, ticker, err)
	}
	if !volume.IsPositive() {
		return nil, fmt.Errorf("%w: sell %s: non-positive volume %s", exchange.ErrOrder, ticker, volume)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[base]
	if !ok || volume.GreaterThan(pos.volume) {
		return nil, fmt.Errorf("%w: sell %s: volume %s exceeds holding", exchange.ErrOrder, ticker, volume)
	}

	proceeds := volume.Mul(price)
	p.cash = p.cash.Add(proceeds.Sub(proceeds.Mul(p.feeRate)))
	pos.volume = pos.volume.Sub(volume)
	if pos.volume.IsZero() {
		delete(p.positions, base)
	}

	return &exchange.Order{
		ID:        uuid.NewString(),
		Ticker:    ticker,
		Side:      exchange.SideSell,
		Amount:    proceeds,
		Volume:    volume,
		State:     "done",
		CreatedAt: p.now(),
	}, nil
}

func (p *Exchange) quoteFor(ctx context.Context, ticker string) (string, decimal.Decimal, error) {
	quote, base, err := exchange.SplitTicker(ticker)
	if err != nil {
		return "", decimal.Zero, err
	}
	if !strings.EqualFold(quote, p.quote) {
		return "", decimal.Zero, fmt.Errorf("ticker %s is not quoted in %s", ticker, p.quote)
	}

	prices, err := p.Prices(ctx, []string{ticker})
	if err != nil {
		return "", decimal.Zero, err
	}
	price, ok := prices[ticker]
	if !ok || !price.IsPositive() {
		return "", decimal.Zero, fmt.Errorf("no price for %s", ticker)
	}
	return strings.ToUpper(base), price, nil
}
