package trading

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/exchange"
	"github.com/dyike/BreakoutGo/internal/journal"
	"github.com/dyike/BreakoutGo/internal/strategy"
)

var kst = time.FixedZone("KST", 9*60*60)

func testSettings() Settings {
	s := DefaultSettings()
	s.Mode = "test"
	s.Location = kst
	return s
}

func newTestEngine(t *testing.T, ex *fakeExchange, c *clock) (*Engine, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	s := testSettings()
	e := New(ex,
		WithSettings(func() Settings { return s }),
		WithNotifier(n),
		WithClock(c.now),
		WithSleep(noSleep),
	)
	return e, n
}

func krw(amount string) exchange.Balance {
	return exchange.Balance{Currency: "KRW", Balance: d(amount), UnitCurrency: "KRW"}
}

func coin(currency, qty, avg string) exchange.Balance {
	return exchange.Balance{Currency: currency, Balance: d(qty), AvgBuyPrice: d(avg), UnitCurrency: "KRW"}
}

func TestTickBuysOnlyFirstRankedBreakout(t *testing.T) {
	ex := newFakeExchange()
	ex.setMarket("KRW-A", "KRW-B", "KRW-C")
	ex.prices = map[string]decimal.Decimal{"KRW-A": d("101"), "KRW-B": d("99"), "KRW-C": d("120")}
	ex.balances = []exchange.Balance{krw("1000000")}
	c := &clock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, kst)}
	e, n := newTestEngine(t, ex, c)
	ctx := context.Background()

	if err := e.rebuildWatchlist(ctx, e.currentSettings(), c.now()); err != nil {
		t.Fatalf("rebuildWatchlist: %v", err)
	}
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(ex.buys) != 1 || ex.buys[0].Ticker != "KRW-A" {
		t.Fatalf("expected a single buy of KRW-A, got %+v", ex.buys)
	}
	if !ex.buys[0].Value.Equal(d("19000")) {
		t.Fatalf("buy amount = %s, want 19000", ex.buys[0].Value)
	}
	recs := e.Journal().All()
	if len(recs) != 1 || recs[0].Side != journal.SideBuy || recs[0].Reason != string(strategy.ReasonBreakout) {
		t.Fatalf("unexpected journal: %+v", recs)
	}
	if len(n.msgs) == 0 || !strings.Contains(n.msgs[len(n.msgs)-1], "KRW-A") {
		t.Fatalf("buy not notified: %v", n.msgs)
	}

	// The next tick still sees no holding (fake balances are static) but KRW-A
	// is cooling down, so KRW-C is next in line.
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(ex.buys) != 2 || ex.buys[1].Ticker != "KRW-C" {
		t.Fatalf("expected KRW-C on second tick, got %+v", ex.buys)
	}
}

func TestExitIsIdempotentUnderCooldown(t *testing.T) {
	ex := newFakeExchange()
	ex.balances = []exchange.Balance{krw("0"), coin("BTC", "1", "100000")}
	ex.prices = map[string]decimal.Decimal{"KRW-BTC": d("90000")}
	c := &clock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, kst)}
	e, _ := newTestEngine(t, ex, c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := e.Tick(ctx); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		c.advance(2 * time.Second)
	}
	if len(ex.sells) != 1 {
		t.Fatalf("expected one sell inside the cooldown window, got %d", len(ex.sells))
	}
	if got := e.Journal().All()[0].Reason; got != string(strategy.ReasonStopLoss) {
		t.Fatalf("reason = %q, want stop loss", got)
	}

	c.advance(3 * time.Minute)
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(ex.sells) != 2 {
		t.Fatalf("expected a second sell after cooldown, got %d", len(ex.sells))
	}
}

func TestFailedSellStillCoolsDown(t *testing.T) {
	ex := newFakeExchange()
	ex.balances = []exchange.Balance{krw("0"), coin("ETH", "1", "100000")}
	ex.prices = map[string]decimal.Decimal{"KRW-ETH": d("110000")}
	ex.sellErr = exchange.ErrOrder
	c := &clock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, kst)}
	e, n := newTestEngine(t, ex, c)

	for i := 0; i < 2; i++ {
		if err := e.Tick(context.Background()); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if len(ex.sells) != 1 {
		t.Fatalf("expected one attempt, got %d", len(ex.sells))
	}
	if len(e.Journal().All()) != 0 {
		t.Fatal("failed order must not be journaled")
	}
	if len(n.msgs) != 1 || !strings.Contains(n.msgs[0], "failed") {
		t.Fatalf("failure not notified: %v", n.msgs)
	}
}

func TestFetchFailureKeepsWatchlist(t *testing.T) {
	ex := newFakeExchange()
	ex.setMarket("KRW-A", "KRW-B")
	c := &clock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, kst)}
	e, _ := newTestEngine(t, ex, c)
	ctx := context.Background()
	s := e.currentSettings()

	if err := e.rebuildWatchlist(ctx, s, c.now()); err != nil {
		t.Fatalf("rebuildWatchlist: %v", err)
	}
	before := e.Watchlist()

	ex.tickersErr = errNetwork
	c.advance(time.Hour)
	err := e.rebuildWatchlist(ctx, s, c.now())
	if !errors.Is(err, errNetwork) {
		t.Fatalf("expected fetch error to be reported, got %v", err)
	}
	after := e.Watchlist()
	if !after.BuiltAt.Equal(before.BuiltAt) || strings.Join(after.Tickers, ",") != "KRW-A,KRW-B" || len(after.Targets) != 2 {
		t.Fatalf("watch-list changed on failure: %+v", after)
	}
}

func TestFirstBuildFallsBackToDefaults(t *testing.T) {
	ex := newFakeExchange()
	ex.tickersErr = errNetwork
	ex.candles["KRW-BTC"] = []exchange.Candle{
		{Open: d("100"), High: d("120"), Low: d("100")},
		{Open: d("110"), High: d("111"), Low: d("109")},
	}
	s := testSettings()

	wl, err := BuildWatchlist(context.Background(), ex, s, Watchlist{}, time.Now())
	if err == nil {
		t.Fatal("expected error alongside fallback")
	}
	if strings.Join(wl.Tickers, ",") != "KRW-BTC,KRW-ETH" {
		t.Fatalf("fallback tickers = %v", wl.Tickers)
	}
	if target, ok := wl.Target("KRW-BTC"); !ok || !target.Equal(d("120")) {
		t.Fatalf("KRW-BTC target = %s (%v), want 120", target, ok)
	}
	if _, ok := wl.Target("KRW-ETH"); ok {
		t.Fatal("KRW-ETH has no candles and must be omitted")
	}
}

func TestRankCandidatesOrdersByTradedValue(t *testing.T) {
	ex := newFakeExchange()
	ex.tickers = []string{"KRW-A", "KRW-B", "KRW-C"}
	ex.snapshots = []exchange.Snapshot{
		{Ticker: "KRW-A", AccTradePrice24h: d("10")},
		{Ticker: "KRW-B", AccTradePrice24h: d("30")},
		{Ticker: "KRW-C", AccTradePrice24h: d("20")},
	}
	got, err := RankCandidates(context.Background(), ex, "KRW", 2)
	if err != nil {
		t.Fatalf("RankCandidates: %v", err)
	}
	if strings.Join(got, ",") != "KRW-B,KRW-C" {
		t.Fatalf("ranked = %v", got)
	}
}

func TestDailyResetOncePerDate(t *testing.T) {
	ex := newFakeExchange()
	ex.setMarket("KRW-A")
	ex.balances = []exchange.Balance{krw("0"), coin("XRP", "10000", "1")}
	ex.prices = map[string]decimal.Decimal{"KRW-XRP": d("1"), "KRW-A": d("50")}
	c := &clock{t: time.Date(2024, 1, 15, 8, 59, 58, 0, kst)}
	e, n := newTestEngine(t, ex, c)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := e.Tick(ctx); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		c.advance(2 * time.Second)
	}
	// 08:59:58 to 09:03:18: every tick after 09:00 is inside the window.
	resets := 0
	for _, rec := range e.Journal().All() {
		if rec.Reason == string(strategy.ReasonDailyReset) {
			resets++
		}
	}
	if resets != 1 {
		t.Fatalf("expected one reset liquidation, got %d", resets)
	}
	if e.State().LastResetDate != "2024-01-15" {
		t.Fatalf("reset marker = %q", e.State().LastResetDate)
	}
	if e.Watchlist().Empty() {
		t.Fatal("reset should rebuild the watch-list")
	}
	var sawReset bool
	for _, m := range n.msgs {
		if strings.Contains(m, "reset complete") {
			sawReset = true
		}
	}
	if !sawReset {
		t.Fatalf("reset not notified: %v", n.msgs)
	}

	c.t = time.Date(2024, 1, 16, 9, 1, 0, 0, kst)
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if e.State().LastResetDate != "2024-01-16" {
		t.Fatalf("next day did not reset, marker %q", e.State().LastResetDate)
	}
}

func TestResetClearsCooldown(t *testing.T) {
	ex := newFakeExchange()
	ex.setMarket("KRW-A")
	ex.balances = []exchange.Balance{krw("0")}
	c := &clock{t: time.Date(2024, 1, 15, 9, 0, 30, 0, kst)}
	e, _ := newTestEngine(t, ex, c)
	var resets int
	OnReset(func() { resets++ })(e)
	e.cooldown.Set("KRW-A", c.now())

	if !e.maybeReset(context.Background(), c.now(), e.currentSettings()) {
		t.Fatal("reset should fire inside the window")
	}
	if len(e.cooldown.snapshot()) != 0 {
		t.Fatal("cooldown not cleared")
	}
	if resets != 1 {
		t.Fatalf("reset hook ran %d times", resets)
	}
	if e.maybeReset(context.Background(), c.now(), e.currentSettings()) || resets != 1 {
		t.Fatal("reset ran twice on one date")
	}
}

func TestInResetWindow(t *testing.T) {
	s := testSettings()
	tests := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2024, 1, 15, 8, 59, 59, 0, kst), false},
		{time.Date(2024, 1, 15, 9, 0, 0, 0, kst), true},
		{time.Date(2024, 1, 15, 9, 4, 59, 0, kst), true},
		{time.Date(2024, 1, 15, 9, 5, 0, 0, kst), false},
		{time.Date(2024, 1, 15, 21, 0, 0, 0, kst), false},
	}
	for _, tt := range tests {
		if got := InResetWindow(tt.at, s); got != tt.want {
			t.Errorf("InResetWindow(%s) = %v, want %v", tt.at.Format(time.TimeOnly), got, tt.want)
		}
	}
}

func TestStartupExitLiquidatesStalePositions(t *testing.T) {
	ex := newFakeExchange()
	ex.balances = []exchange.Balance{
		krw("100000"),
		coin("BTC", "0.1", "100000"),
		coin("ETH", "1", "10000"),
		coin("DOGE", "100", "10"),
	}
	ex.prices = map[string]decimal.Decimal{
		"KRW-BTC":  d("103000"),
		"KRW-ETH":  d("10050"),
		"KRW-DOGE": d("1"),
	}
	c := &clock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, kst)}
	e, _ := newTestEngine(t, ex, c)

	if err := e.StartupExit(context.Background()); err != nil {
		t.Fatalf("StartupExit: %v", err)
	}
	// DOGE's cost basis (1000) is under the order floor and is left alone.
	if len(ex.sells) != 1 || ex.sells[0].Ticker != "KRW-BTC" {
		t.Fatalf("unexpected sells: %+v", ex.sells)
	}
	if got := e.Journal().All()[0].Reason; got != string(strategy.ReasonTakeProfit) {
		t.Fatalf("reason = %q, want take profit", got)
	}
}

func TestTickReportsBalanceFailure(t *testing.T) {
	ex := newFakeExchange()
	ex.balancesErr = exchange.ErrFetch
	c := &clock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, kst)}
	e, _ := newTestEngine(t, ex, c)

	if err := e.Tick(context.Background()); !errors.Is(err, exchange.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}

func TestRunStopsOnCancelAndBacksOff(t *testing.T) {
	ex := newFakeExchange()
	ex.setMarket("KRW-A")
	ex.balancesErr = errNetwork
	c := &clock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, kst)}
	s := testSettings()
	s.StartupExit = false

	ctx, cancel := context.WithCancel(context.Background())
	var waits []time.Duration
	e := New(ex,
		WithSettings(func() Settings { return s }),
		WithNotifier(&recordingNotifier{}),
		WithClock(c.now),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			if len(waits) == 3 {
				cancel()
				return ctx.Err()
			}
			return nil
		}),
	)

	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run returned %v after cancel", err)
	}
	if len(waits) != 3 {
		t.Fatalf("expected 3 waits, got %d", len(waits))
	}
	for _, w := range waits {
		if w != s.ErrorBackoff {
			t.Fatalf("wait = %s, want error backoff %s", w, s.ErrorBackoff)
		}
	}
}

func TestTickWithRecoveryCatchesPanic(t *testing.T) {
	err := tickWithRecovery(func() error { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected panic error, got %v", err)
	}
}

func TestUnknownMarketDoesNotBlockStopLoss(t *testing.T) {
	ex := newFakeExchange()
	ex.balances = []exchange.Balance{krw("0"), coin("BTC", "1", "100000"), coin("DELISTED", "100", "1000")}
	ex.prices = map[string]decimal.Decimal{"KRW-BTC": d("50000")}
	ex.unknown = map[string]bool{"KRW-DELISTED": true}
	c := &clock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, kst)}
	e, _ := newTestEngine(t, ex, c)
	ctx := context.Background()

	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(ex.sells) != 1 || ex.sells[0].Ticker != "KRW-BTC" {
		t.Fatalf("stop loss blocked by unknown market, sells = %+v", ex.sells)
	}
	if _, ok := e.State().Prices["KRW-DELISTED"]; ok {
		t.Fatal("unknown market should stay unpriced")
	}

	// Known-bad markets are read on their own: one batch plus one single read.
	ex.priceCalls = 0
	c.advance(2 * time.Second)
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if ex.priceCalls != 2 {
		t.Fatalf("price calls = %d, want 2", ex.priceCalls)
	}

	// Once the market quotes again it rejoins the batch.
	ex.unknown = nil
	ex.prices["KRW-DELISTED"] = d("1000")
	c.advance(2 * time.Second)
	e.Tick(ctx)
	ex.priceCalls = 0
	c.advance(2 * time.Second)
	e.Tick(ctx)
	if ex.priceCalls != 1 {
		t.Fatalf("recovered market still read alone, calls = %d", ex.priceCalls)
	}
}

func TestTickFailsWhenNothingPrices(t *testing.T) {
	ex := newFakeExchange()
	ex.balances = []exchange.Balance{krw("0"), coin("DELISTED", "100", "1000")}
	ex.unknown = map[string]bool{"KRW-DELISTED": true}
	c := &clock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, kst)}
	e, _ := newTestEngine(t, ex, c)

	if err := e.Tick(context.Background()); !errors.Is(err, exchange.ErrFetch) {
		t.Fatalf("expected ErrFetch when no ticker prices, got %v", err)
	}
}

func TestResetLiquidatesAroundUnknownMarket(t *testing.T) {
	ex := newFakeExchange()
	ex.setMarket("KRW-A")
	ex.balances = []exchange.Balance{krw("0"), coin("XRP", "10000", "1"), coin("DELISTED", "100", "1000")}
	ex.prices = map[string]decimal.Decimal{"KRW-XRP": d("1"), "KRW-A": d("50")}
	ex.unknown = map[string]bool{"KRW-DELISTED": true}
	c := &clock{t: time.Date(2024, 1, 15, 9, 0, 30, 0, kst)}
	e, _ := newTestEngine(t, ex, c)

	e.maybeReset(context.Background(), c.now(), e.currentSettings())
	if len(ex.sells) != 1 || ex.sells[0].Ticker != "KRW-XRP" {
		t.Fatalf("reset liquidation = %+v, want KRW-XRP only", ex.sells)
	}
}

func TestRunInsideResetWindowBuildsWatchlistOnce(t *testing.T) {
	ex := newFakeExchange()
	ex.setMarket("KRW-A")
	ex.balances = []exchange.Balance{krw("0")}
	ex.prices = map[string]decimal.Decimal{"KRW-A": d("50")}
	c := &clock{t: time.Date(2024, 1, 15, 9, 1, 0, 0, kst)}
	s := testSettings()
	s.StartupExit = false

	ctx, cancel := context.WithCancel(context.Background())
	e := New(ex,
		WithSettings(func() Settings { return s }),
		WithNotifier(&recordingNotifier{}),
		WithClock(c.now),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ex.tickerCalls != 1 {
		t.Fatalf("watch-list built %d times, want 1", ex.tickerCalls)
	}
	if e.Watchlist().Empty() || e.State().LastResetDate != "2024-01-15" {
		t.Fatalf("first tick should reset and build, state %+v", e.State())
	}
}
