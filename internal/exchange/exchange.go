// Package exchange defines the market-data and order-execution capabilities the
// trading loop consumes, plus the value types shared by every adapter.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrFetch marks a failed market-data or account read.
	ErrFetch = errors.New("fetch failed")
	// ErrOrder marks a rejected or failed order submission.
	ErrOrder = errors.New("order failed")
	// ErrAuth marks missing or rejected credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrInsufficientData is returned when fewer bars than required are available.
	ErrInsufficientData = errors.New("insufficient data")
)

// Interval is a candle period understood by every adapter.
type Interval string

const (
	IntervalDay  Interval = "day"
	IntervalHour Interval = "minute60"
)

// ParseInterval maps a config value to an Interval.
func ParseInterval(s string) (Interval, error) {
	switch Interval(strings.ToLower(strings.TrimSpace(s))) {
	case IntervalDay, "":
		return IntervalDay, nil
	case IntervalHour, "hour", "60m":
		return IntervalHour, nil
	}
	return "", fmt.Errorf("unknown candle interval %q", s)
}

// Duration is the wall-clock length of one bar.
func (i Interval) Duration() time.Duration {
	if i == IntervalHour {
		return time.Hour
	}
	return 24 * time.Hour
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Candle is one OHLCV bar. Adapters return candles oldest first.
type Candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Snapshot is the 24h summary used to rank tickers.
type Snapshot struct {
	Ticker           string          `json:"ticker"`
	Price            decimal.Decimal `json:"price"`
	AccTradePrice24h decimal.Decimal `json:"acc_trade_price_24h"`
}

// Balance is one currency line of the account.
type Balance struct {
	Currency     string          `json:"currency"`
	Balance      decimal.Decimal `json:"balance"`
	Locked       decimal.Decimal `json:"locked"`
	AvgBuyPrice  decimal.Decimal `json:"avg_buy_price"`
	UnitCurrency string          `json:"unit_currency"`
}

// Order is the exchange acknowledgement of a submitted market order.
// Amount is the home-currency notional for buys; Volume is the coin quantity for sells.
type Order struct {
	ID        string          `json:"id"`
	Ticker    string          `json:"ticker"`
	Side      Side            `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Volume    decimal.Decimal `json:"volume"`
	State     string          `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// MarketData is the read-only half of an exchange.
type MarketData interface {
	// Tickers lists every tradable ticker quoted in quote, e.g. "KRW-BTC".
	Tickers(ctx context.Context, quote string) ([]string, error)
	Snapshots(ctx context.Context, tickers []string) ([]Snapshot, error)
	// Candles returns up to count most recent bars, oldest first. The last bar is
	// the one currently forming.
	Candles(ctx context.Context, ticker string, interval Interval, count int) ([]Candle, error)
	Prices(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error)
}

// Account is the execution half of an exchange.
type Account interface {
	Balances(ctx context.Context) ([]Balance, error)
	// BuyMarket spends amount of the quote currency on ticker.
	BuyMarket(ctx context.Context, ticker string, amount decimal.Decimal) (*Order, error)
	// SellMarket sells volume units of the ticker's base currency.
	SellMarket(ctx context.Context, ticker string, volume decimal.Decimal) (*Order, error)
}

type Exchange interface {
	MarketData
	Account
	Name() string
}

// Ticker joins a quote and base currency the way Upbit names markets.
func Ticker(quote, base string) string {
	return strings.ToUpper(quote) + "-" + strings.ToUpper(base)
}

// SplitTicker returns the quote and base currency of a ticker.
func SplitTicker(ticker string) (quote, base string, err error) {
	quote, base, ok := strings.Cut(ticker, "-")
	if !ok || quote == "" || base == "" {
		return "", "", fmt.Errorf("malformed ticker %q", ticker)
	}
	return quote, base, nil
}
