package trading

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/exchange"
	"github.com/dyike/BreakoutGo/internal/journal"
	"github.com/dyike/BreakoutGo/internal/notify"
	"github.com/dyike/BreakoutGo/internal/strategy"
)

type Option func(*Engine)

// WithSettings makes the engine read its tuning from fn on every tick.
func WithSettings(fn func() Settings) Option {
	return func(e *Engine) {
		if fn != nil {
			e.settings = fn
		}
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithJournal(j *journal.Journal) Option {
	return func(e *Engine) {
		if j != nil {
			e.journal = j
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleep replaces the context-aware sleep used between ticks and after orders.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// OnWatchlist is called every time a new watch-list is installed.
func OnWatchlist(fn func(Watchlist)) Option {
	return func(e *Engine) { e.onWatchlist = fn }
}

// OnReset runs after the daily liquidation and before the new watch-list is built.
func OnReset(fn func()) Option {
	return func(e *Engine) { e.onReset = fn }
}

// Engine is the single trading session. Tick and Run must be called from one
// goroutine; State may be called from any.
type Engine struct {
	ex          exchange.Exchange
	settings    func() Settings
	notifier    notify.Notifier
	journal     *journal.Journal
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	onWatchlist func(Watchlist)
	onReset     func()

	cooldown      *Cooldown
	unpriced      map[string]bool
	lastResetDate string
	ticks         int64

	mu        sync.RWMutex
	watchlist Watchlist
	last      State
}

func New(ex exchange.Exchange, opts ...Option) *Engine {
	defaults := DefaultSettings()
	e := &Engine{
		ex:       ex,
		settings: func() Settings { return defaults },
		notifier: notify.Log{},
		journal:  journal.New(),
		now:      time.Now,
		sleep:    sleepContext,
		unpriced: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cooldown = NewCooldown(e.settings().Cooldown)
	return e
}

func (e *Engine) Journal() *journal.Journal { return e.journal }

func (e *Engine) Watchlist() Watchlist {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.watchlist
}

// State returns what the last tick observed plus the current watch-list.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := e.last
	st.Watchlist = e.watchlist
	return st
}

// Run notifies start, builds the first watch-list, applies the startup exit
// and then ticks until ctx is cancelled. Tick errors are reported and followed
// by the longer error backoff; they never stop the loop.
func (e *Engine) Run(ctx context.Context) error {
	s := e.currentSettings()
	log.Printf("🤖 breakout loop starting on %s (%s mode)", e.ex.Name(), s.Mode)
	e.notify(ctx, fmt.Sprintf("🤖 breakout bot started on %s (%s mode)", e.ex.Name(), s.Mode))

	// Inside the reset window the first tick rebuilds the watch-list anyway.
	if now := e.now().In(s.Location); InResetWindow(now, s) && e.lastResetDate != now.Format(dateLayout) {
		log.Printf("🌅 starting inside the reset window, first tick builds the watch-list")
	} else if err := e.rebuildWatchlist(ctx, s, now); err != nil {
		log.Printf("⚠️ initial watch-list degraded: %v", err)
	}
	if s.StartupExit {
		if err := e.StartupExit(ctx); err != nil && ctx.Err() == nil {
			log.Printf("⚠️ startup exit: %v", err)
			e.notify(ctx, fmt.Sprintf("⚠️ startup exit error: %v", err))
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		wait := s.PollInterval
		if err := tickWithRecovery(func() error { return e.Tick(ctx) }); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("❌ tick failed: %v", err)
			e.notify(ctx, fmt.Sprintf("⚠️ loop error: %v", err))
			wait = s.ErrorBackoff
		}
		if err := e.sleep(ctx, wait); err != nil {
			return nil
		}
		s = e.currentSettings()
	}
}

// Tick runs one pass: daily reset, balances, exits and then at most one entry.
// Order failures are reported and do not abort the tick; a failed balance or
// price read does.
func (e *Engine) Tick(ctx context.Context) error {
	s := e.currentSettings()
	e.cooldown.SetWindow(s.Cooldown)
	now := e.now().In(s.Location)

	e.maybeReset(ctx, now, s)

	balances, err := e.ex.Balances(ctx)
	if err != nil {
		return fmt.Errorf("read balances: %w", err)
	}
	cash, holdings := splitBalances(balances, s)

	wl := e.Watchlist()
	held := make(map[string]bool, len(holdings))
	tickers := make([]string, 0, len(holdings)+len(wl.Tickers))
	for _, h := range holdings {
		held[h.Ticker] = true
		tickers = append(tickers, h.Ticker)
	}
	for _, t := range wl.Tickers {
		if !held[t] {
			tickers = append(tickers, t)
		}
	}

	prices, err := e.fetchPrices(ctx, tickers)
	if err != nil {
		return fmt.Errorf("read prices: %w", err)
	}

	inCooldown := func(ticker string) bool { return e.cooldown.Active(ticker, now) }

	for _, sig := range strategy.EvaluateExits(holdings, prices, inCooldown, s.Params) {
		_ = e.sell(ctx, s, sig)
	}

	// Entry sizing uses the holdings and cash seen at the start of the tick.
	entry, ok := strategy.SelectEntry(strategy.EntryInput{
		Candidates: wl.Tickers,
		Targets:    wl.Targets,
		Prices:     prices,
		Held:       held,
		InCooldown: inCooldown,
		Balance:    cash,
	}, s.Params)
	if ok {
		_ = e.buy(ctx, s, entry)
	}

	e.ticks++
	e.mu.Lock()
	e.last = State{
		Cooldowns:     e.cooldown.snapshot(),
		LastResetDate: e.lastResetDate,
		Cash:          cash,
		Holdings:      holdings,
		Prices:        prices,
		Ticks:         e.ticks,
	}
	e.mu.Unlock()
	return nil
}

// StartupExit applies the exit thresholds to whatever is held right now,
// without waiting for the first tick.
func (e *Engine) StartupExit(ctx context.Context) error {
	s := e.currentSettings()
	balances, err := e.ex.Balances(ctx)
	if err != nil {
		return fmt.Errorf("read balances: %w", err)
	}
	_, holdings := splitBalances(balances, s)
	if len(holdings) == 0 {
		return nil
	}
	tickers := make([]string, len(holdings))
	for i, h := range holdings {
		tickers[i] = h.Ticker
	}
	prices, err := e.fetchPrices(ctx, tickers)
	if err != nil {
		return fmt.Errorf("read prices: %w", err)
	}

	var errs []error
	for _, sig := range strategy.EvaluateExits(holdings, prices, nil, s.Params) {
		if err := e.sell(ctx, s, sig); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) currentSettings() Settings {
	s := e.settings()
	if s.Location == nil {
		s.Location = time.Local
	}
	return s
}

func (e *Engine) rebuildWatchlist(ctx context.Context, s Settings, now time.Time) error {
	wl, err := BuildWatchlist(ctx, e.ex, s, e.Watchlist(), now)
	e.mu.Lock()
	e.watchlist = wl
	e.mu.Unlock()
	log.Printf("📋 watching %d tickers, %d with targets", len(wl.Tickers), len(wl.Targets))
	if e.onWatchlist != nil {
		e.onWatchlist(wl)
	}
	return err
}

// splitBalances returns the home-currency cash and every position whose cost
// basis is above the order floor.
func splitBalances(balances []exchange.Balance, s Settings) (decimal.Decimal, []strategy.Holding) {
	cash := decimal.Zero
	var holdings []strategy.Holding
	for _, b := range balances {
		if b.Currency == s.Quote {
			cash = b.Balance
			continue
		}
		if b.UnitCurrency != "" && b.UnitCurrency != s.Quote {
			continue
		}
		h := strategy.Holding{
			Ticker:      exchange.Ticker(s.Quote, b.Currency),
			AvgBuyPrice: b.AvgBuyPrice,
			Quantity:    b.Balance,
		}
		if h.CostBasis().GreaterThan(s.Params.MinOrderAmount) {
			holdings = append(holdings, h)
		}
	}
	return cash, holdings
}

func (e *Engine) sell(ctx context.Context, s Settings, sig strategy.ExitSignal) error {
	e.cooldown.Set(sig.Ticker, e.now())
	order, err := e.ex.SellMarket(ctx, sig.Ticker, sig.Quantity)
	if err != nil {
		log.Printf("❌ %s sell (%s) failed: %v", sig.Ticker, sig.Reason, err)
		e.notify(ctx, fmt.Sprintf("⚠️ %s %s sell failed: %v", sig.Ticker, sig.Reason, err))
		return err
	}

	rec := journal.TradeRecord{
		Side:    journal.SideSell,
		Ticker:  sig.Ticker,
		Price:   sig.Price,
		Amount:  sig.Price.Mul(sig.Quantity),
		Volume:  sig.Quantity,
		Reason:  string(sig.Reason),
		Mode:    s.Mode,
		OrderID: order.ID,
	}
	e.record(ctx, rec)

	icon := "⛔"
	if sig.Reason == strategy.ReasonTakeProfit {
		icon = "💰"
	}
	msg := fmt.Sprintf("%s %s %s sold at %s", icon, sig.Ticker, sig.Reason, sig.Price.String())
	if sig.Reason != strategy.ReasonDailyReset {
		msg += fmt.Sprintf(" (%s%%)", sig.Rate.Mul(decimal.NewFromInt(100)).StringFixed(2))
	}
	log.Print(msg)
	e.notify(ctx, msg)
	return e.sleep(ctx, s.OrderSettle)
}

func (e *Engine) buy(ctx context.Context, s Settings, sig strategy.EntrySignal) error {
	e.cooldown.Set(sig.Ticker, e.now())
	order, err := e.ex.BuyMarket(ctx, sig.Ticker, sig.Amount)
	if err != nil {
		log.Printf("❌ %s breakout buy failed: %v", sig.Ticker, err)
		e.notify(ctx, fmt.Sprintf("⚠️ %s breakout buy failed: %v", sig.Ticker, err))
		return err
	}

	volume := order.Volume
	if volume.IsZero() && sig.Price.IsPositive() {
		volume = sig.Amount.Div(sig.Price)
	}
	e.record(ctx, journal.TradeRecord{
		Side:    journal.SideBuy,
		Ticker:  sig.Ticker,
		Price:   sig.Price,
		Amount:  sig.Amount,
		Volume:  volume,
		Reason:  string(strategy.ReasonBreakout),
		Mode:    s.Mode,
		OrderID: order.ID,
	})

	msg := fmt.Sprintf("🚀 %s breakout buy %s %s (price %s ≥ target %s)",
		sig.Ticker, sig.Amount.StringFixed(0), s.Quote, sig.Price.String(), sig.Target.String())
	log.Print(msg)
	e.notify(ctx, msg)
	return e.sleep(ctx, s.OrderSettle)
}

func (e *Engine) record(ctx context.Context, rec journal.TradeRecord) {
	rec.Time = e.now()
	if _, err := e.journal.Append(ctx, rec); err != nil {
		log.Printf("⚠️ journal: %v", err)
	}
}

// notify is best effort; delivery failures are only logged.
func (e *Engine) notify(ctx context.Context, msg string) {
	if err := e.notifier.Notify(ctx, msg); err != nil {
		log.Printf("⚠️ notification failed: %v", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
