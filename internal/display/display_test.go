package display

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/journal"
	"github.com/dyike/BreakoutGo/internal/strategy"
	"github.com/dyike/BreakoutGo/internal/trading"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"95000000", "95000000"},
		{"1234.56", "1235"},
		{"0.00012345678", "0.00012346"},
		{"12.5", "12.5"},
	}
	for _, tt := range tests {
		if got := FormatPrice(d(tt.in)); got != tt.want {
			t.Errorf("FormatPrice(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(d("0.021")); got != "+2.10%" {
		t.Fatalf("got %s", got)
	}
	if got := FormatPercent(d("-0.03")); got != "-3.00%" {
		t.Fatalf("got %s", got)
	}
}

func TestWatchlistTableListsTargets(t *testing.T) {
	wl := trading.Watchlist{
		Tickers: []string{"KRW-BTC", "KRW-ETH"},
		Targets: map[string]decimal.Decimal{"KRW-BTC": d("95000000")},
		BuiltAt: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
	}
	out := WatchlistTable(wl, map[string]decimal.Decimal{"KRW-BTC": d("96900000")})
	for _, want := range []string{"KRW-BTC", "KRW-ETH", "95000000", "+2.00%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(WatchlistTable(trading.Watchlist{}, nil), "empty") {
		t.Fatal("empty watch-list should say so")
	}
}

func TestHoldingsAndTradesTables(t *testing.T) {
	st := trading.State{
		Cash:     d("50000"),
		Holdings: []strategy.Holding{{Ticker: "KRW-XRP", AvgBuyPrice: d("700"), Quantity: d("20")}},
		Prices:   map[string]decimal.Decimal{"KRW-XRP": d("679")},
	}
	out := HoldingsTable(st, "KRW")
	if !strings.Contains(out, "KRW-XRP") || !strings.Contains(out, "-3.00%") || !strings.Contains(out, "50000 KRW") {
		t.Fatalf("unexpected holdings table:\n%s", out)
	}

	recs := []journal.TradeRecord{{
		Time: time.Date(2024, 1, 15, 0, 1, 0, 0, time.UTC), Side: journal.SideSell, Ticker: "KRW-XRP",
		Price: d("679"), Amount: d("13580"), Reason: "stop loss", Mode: "paper",
	}}
	out = TradesTable(recs, time.FixedZone("KST", 9*60*60))
	if !strings.Contains(out, "01-15 09:01:00") || !strings.Contains(out, "stop loss") {
		t.Fatalf("unexpected trades table:\n%s", out)
	}
}
