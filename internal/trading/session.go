// Package trading runs the breakout decision loop: it owns the watch-list,
// cooldowns and reset marker, and turns strategy signals into orders.
package trading

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/exchange"
	"github.com/dyike/BreakoutGo/internal/strategy"
)

// Settings is one consistent snapshot of everything the loop is tuned by.
// The engine asks for a fresh snapshot at the start of every tick.
type Settings struct {
	Mode            string
	Quote           string
	Params          strategy.Params
	CandidateSize   int
	CandleInterval  exchange.Interval
	FallbackTickers []string
	StartupExit     bool

	Location     *time.Location
	ResetHour    int
	ResetWindow  time.Duration
	PollInterval time.Duration
	OrderSettle  time.Duration
	ErrorBackoff time.Duration
	Cooldown     time.Duration
}

func DefaultSettings() Settings {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.FixedZone("KST", 9*60*60)
	}
	return Settings{
		Mode:            "live",
		Quote:           "KRW",
		Params:          strategy.DefaultParams(),
		CandidateSize:   20,
		CandleInterval:  exchange.IntervalDay,
		FallbackTickers: []string{"KRW-BTC", "KRW-ETH"},
		StartupExit:     true,
		Location:        loc,
		ResetHour:       9,
		ResetWindow:     5 * time.Minute,
		PollInterval:    2 * time.Second,
		OrderSettle:     300 * time.Millisecond,
		ErrorBackoff:    10 * time.Second,
		Cooldown:        180 * time.Second,
	}
}

// State is a read-only view of the session for renderers.
type State struct {
	Watchlist     Watchlist
	Cooldowns     map[string]time.Time
	LastResetDate string
	Cash          decimal.Decimal
	Holdings      []strategy.Holding
	Prices        map[string]decimal.Decimal
	Ticks         int64
}

// tickWithRecovery converts a panic inside one tick into an error so the loop
// keeps running.
func tickWithRecovery(tick func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	return tick()
}
