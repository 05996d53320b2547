package cli

import (
	"fmt"
	"time"

	"github.com/dyike/BreakoutGo/config"
	"github.com/dyike/BreakoutGo/internal/exchange"
	"github.com/dyike/BreakoutGo/internal/journal"
	"github.com/dyike/BreakoutGo/internal/trading"
)

// runOptions are the `run` flags. They override the config file for this
// process only and are re-applied on every hot reload.
type runOptions struct {
	Paper  bool
	Yes    bool
	Source string
	Since  time.Duration
}

func (o runOptions) apply(cfg *config.Config) {
	if o.Paper {
		cfg.Mode = config.ModePaper
	}
	if o.Source != "" {
		cfg.MarketSource = o.Source
	}
}

// recentTrades selects the records summarized when the loop stops. A
// non-positive window keeps the whole journal.
func recentTrades(j *journal.Journal, window time.Duration, now time.Time) (trades, buys []journal.TradeRecord) {
	if window <= 0 {
		return j.All(), j.Buys(time.Time{})
	}
	cutoff := now.Add(-window)
	return j.Since(cutoff), j.Buys(cutoff)
}

// settingsFromConfig converts a validated config into the engine's settings.
func settingsFromConfig(cfg config.Config) (trading.Settings, error) {
	loc, err := cfg.Location()
	if err != nil {
		return trading.Settings{}, fmt.Errorf("load timezone: %w", err)
	}
	interval, err := exchange.ParseInterval(cfg.Strategy.CandleInterval)
	if err != nil {
		return trading.Settings{}, err
	}
	sc := cfg.Schedule
	return trading.Settings{
		Mode:            cfg.Mode,
		Quote:           cfg.QuoteCurrency,
		Params:          cfg.StrategyParams(),
		CandidateSize:   cfg.Strategy.CandidateSize,
		CandleInterval:  interval,
		FallbackTickers: append([]string(nil), cfg.Strategy.FallbackTickers...),
		StartupExit:     cfg.Strategy.StartupExit,
		Location:        loc,
		ResetHour:       sc.ResetHour,
		ResetWindow:     time.Duration(sc.ResetWindowMinutes) * time.Minute,
		PollInterval:    time.Duration(sc.PollIntervalMS) * time.Millisecond,
		OrderSettle:     time.Duration(sc.OrderSettleMS) * time.Millisecond,
		ErrorBackoff:    time.Duration(sc.ErrorBackoffMS) * time.Millisecond,
		Cooldown:        time.Duration(sc.CooldownSeconds) * time.Second,
	}, nil
}
