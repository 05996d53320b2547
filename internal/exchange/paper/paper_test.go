package paper

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/exchange"
)

type staticFeed struct {
	prices map[string]decimal.Decimal
}

func (f *staticFeed) Tickers(context.Context, string) ([]string, error) { return nil, nil }

func (f *staticFeed) Snapshots(context.Context, []string) ([]exchange.Snapshot, error) {
	return nil, nil
}

func (f *staticFeed) Candles(context.Context, string, exchange.Interval, int) ([]exchange.Candle, error) {
	return nil, nil
}

func (f *staticFeed) Prices(_ context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, t := range tickers {
		if p, ok := f.prices[t]; ok {
			out[t] = p
		}
	}
	return out, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newPaper(feed *staticFeed) *Exchange {
	return New(feed, Config{Quote: "KRW", Balance: dec("100000"), FeeRate: dec("0.0005")})
}

func TestBuyThenSellRoundTrip(t *testing.T) {
	feed := &staticFeed{prices: map[string]decimal.Decimal{"KRW-BTC": dec("1000")}}
	p := newPaper(feed)
	ctx := context.Background()

	order, err := p.BuyMarket(ctx, "KRW-BTC", dec("10000"))
	if err != nil {
		t.Fatalf("BuyMarket: %v", err)
	}
	if !order.Volume.Equal(dec("10")) {
		t.Fatalf("volume = %s, want 10", order.Volume)
	}

	balances, _ := p.Balances(ctx)
	if len(balances) != 2 {
		t.Fatalf("expected cash + BTC, got %+v", balances)
	}
	if !balances[0].Balance.Equal(dec("89995")) {
		t.Fatalf("cash = %s, want 89995", balances[0].Balance)
	}
	if balances[1].Currency != "BTC" || !balances[1].AvgBuyPrice.Equal(dec("1000")) {
		t.Fatalf("unexpected position: %+v", balances[1])
	}

	feed.prices["KRW-BTC"] = dec("1100")
	if _, err := p.SellMarket(ctx, "KRW-BTC", dec("10")); err != nil {
		t.Fatalf("SellMarket: %v", err)
	}
	balances, _ = p.Balances(ctx)
	if len(balances) != 1 {
		t.Fatalf("position should be closed: %+v", balances)
	}
	// 89995 + 11000 - 5.5
	if !balances[0].Balance.Equal(dec("100989.5")) {
		t.Fatalf("cash = %s", balances[0].Balance)
	}
}

func TestAveragePriceAcrossBuys(t *testing.T) {
	feed := &staticFeed{prices: map[string]decimal.Decimal{"KRW-ETH": dec("100")}}
	p := newPaper(feed)
	ctx := context.Background()

	if _, err := p.BuyMarket(ctx, "KRW-ETH", dec("1000")); err != nil {
		t.Fatal(err)
	}
	feed.prices["KRW-ETH"] = dec("200")
	if _, err := p.BuyMarket(ctx, "KRW-ETH", dec("1000")); err != nil {
		t.Fatal(err)
	}

	balances, _ := p.Balances(ctx)
	// 15 units for 2000
	want := dec("2000").Div(dec("15"))
	if !balances[1].Balance.Equal(dec("15")) || !balances[1].AvgBuyPrice.Equal(want) {
		t.Fatalf("unexpected position: %+v", balances[1])
	}
}

func TestRejectedOrders(t *testing.T) {
	feed := &staticFeed{prices: map[string]decimal.Decimal{"KRW-BTC": dec("1000")}}
	p := newPaper(feed)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{"insufficient cash", func() error { _, err := p.BuyMarket(ctx, "KRW-BTC", dec("100000")); return err }},
		{"oversell", func() error { _, err := p.SellMarket(ctx, "KRW-BTC", dec("1")); return err }},
		{"unknown price", func() error { _, err := p.BuyMarket(ctx, "KRW-DOGE", dec("5000")); return err }},
		{"foreign quote", func() error { _, err := p.BuyMarket(ctx, "BTC-ETH", dec("1")); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, exchange.ErrOrder) {
				t.Fatalf("expected ErrOrder, got %v", err)
			}
		})
	}
}
