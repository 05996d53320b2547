package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/exchange"
)

// fakeExchange is an in-memory exchange whose market data is set by the test.
type fakeExchange struct {
	mu sync.Mutex

	tickers   []string
	snapshots []exchange.Snapshot
	candles   map[string][]exchange.Candle
	prices    map[string]decimal.Decimal
	balances  []exchange.Balance

	// unknown markets make any Prices call that includes them fail, the way
	// Upbit rejects a whole /ticker batch.
	unknown     map[string]bool
	priceCalls  int
	tickerCalls int

	tickersErr  error
	balancesErr error
	sellErr     error

	buys  []fakeOrder
	sells []fakeOrder
}

type fakeOrder struct {
	Ticker string
	Value  decimal.Decimal
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		candles: make(map[string][]exchange.Candle),
		prices:  make(map[string]decimal.Decimal),
	}
}

func (f *fakeExchange) Name() string { return "fake" }

func (f *fakeExchange) Tickers(_ context.Context, quote string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickerCalls++
	if f.tickersErr != nil {
		return nil, f.tickersErr
	}
	return append([]string(nil), f.tickers...), nil
}

func (f *fakeExchange) Snapshots(_ context.Context, tickers []string) ([]exchange.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]exchange.Snapshot(nil), f.snapshots...), nil
}

func (f *fakeExchange) Candles(_ context.Context, ticker string, _ exchange.Interval, count int) ([]exchange.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.candles[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: no candles for %s", exchange.ErrFetch, ticker)
	}
	if len(c) > count {
		c = c[len(c)-count:]
	}
	return c, nil
}

func (f *fakeExchange) Prices(_ context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls++
	for _, t := range tickers {
		if f.unknown[t] {
			return nil, fmt.Errorf("%w: API error 404: Code not found", exchange.ErrFetch)
		}
	}
	out := make(map[string]decimal.Decimal)
	for _, t := range tickers {
		if p, ok := f.prices[t]; ok {
			out[t] = p
		}
	}
	return out, nil
}

func (f *fakeExchange) Balances(context.Context) ([]exchange.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balancesErr != nil {
		return nil, f.balancesErr
	}
	return append([]exchange.Balance(nil), f.balances...), nil
}

func (f *fakeExchange) BuyMarket(_ context.Context, ticker string, amount decimal.Decimal) (*exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buys = append(f.buys, fakeOrder{Ticker: ticker, Value: amount})
	return &exchange.Order{ID: fmt.Sprintf("buy-%d", len(f.buys)), Ticker: ticker, Side: exchange.SideBuy, Amount: amount}, nil
}

func (f *fakeExchange) SellMarket(_ context.Context, ticker string, volume decimal.Decimal) (*exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sells = append(f.sells, fakeOrder{Ticker: ticker, Value: volume})
	if f.sellErr != nil {
		return nil, f.sellErr
	}
	return &exchange.Order{ID: fmt.Sprintf("sell-%d", len(f.sells)), Ticker: ticker, Side: exchange.SideSell, Volume: volume}, nil
}

// setMarket lists tickers ranked in the given order and gives each a
// two-bar history with a breakout target of 100.
func (f *fakeExchange) setMarket(tickers ...string) {
	f.tickers = tickers
	f.snapshots = nil
	for i, t := range tickers {
		f.snapshots = append(f.snapshots, exchange.Snapshot{
			Ticker:           t,
			AccTradePrice24h: decimal.NewFromInt(int64(1000 - i)),
		})
		f.candles[t] = []exchange.Candle{
			{Open: d("90"), High: d("100"), Low: d("80")},
			{Open: d("90"), High: d("95"), Low: d("89")},
		}
	}
}

var errNetwork = errors.New("connection reset")

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingNotifier) Notify(_ context.Context, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(by time.Duration) { c.t = c.t.Add(by) }

func noSleep(context.Context, time.Duration) error { return nil }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }
