// Package strategy holds the pure volatility-breakout decision rules: target
// price, position sizing, exit and entry evaluation. Nothing here talks to an
// exchange or reads the clock.
package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Reason tags why an order was placed. It ends up in notifications and the journal.
type Reason string

const (
	ReasonBreakout   Reason = "breakout"
	ReasonTakeProfit Reason = "take profit"
	ReasonStopLoss   Reason = "stop loss"
	ReasonDailyReset Reason = "daily reset"
)

// TakeProfitMode selects how winners are closed.
type TakeProfitMode string

const (
	// TakeProfitOff leaves winners open until stop loss or the daily reset.
	TakeProfitOff TakeProfitMode = "off"
	// TakeProfitThreshold sells once the gain reaches Params.TakeProfit. A zero
	// threshold sells on any move at or above the average buy price.
	TakeProfitThreshold TakeProfitMode = "threshold"
)

func ParseTakeProfitMode(s string) (TakeProfitMode, error) {
	switch TakeProfitMode(s) {
	case TakeProfitOff, TakeProfitThreshold:
		return TakeProfitMode(s), nil
	case "":
		return TakeProfitThreshold, nil
	}
	return "", fmt.Errorf("unknown take profit mode %q", s)
}

// Params is the tunable part of the strategy.
type Params struct {
	K              decimal.Decimal
	StopLoss       decimal.Decimal
	TakeProfitMode TakeProfitMode
	TakeProfit     decimal.Decimal
	MaxHoldings    int
	MaxBuyAmount   decimal.Decimal
	MinOrderAmount decimal.Decimal
}

func DefaultParams() Params {
	return Params{
		K:              decimal.RequireFromString("0.5"),
		StopLoss:       decimal.RequireFromString("0.03"),
		TakeProfitMode: TakeProfitThreshold,
		TakeProfit:     decimal.RequireFromString("0.02"),
		MaxHoldings:    5,
		MaxBuyAmount:   decimal.NewFromInt(19000),
		MinOrderAmount: decimal.NewFromInt(5000),
	}
}

func (p Params) Validate() error {
	if !p.K.IsPositive() || p.K.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("breakout k must be in (0, 1], got %s", p.K)
	}
	if p.StopLoss.IsNegative() {
		return fmt.Errorf("stop loss must not be negative, got %s", p.StopLoss)
	}
	if p.TakeProfit.IsNegative() {
		return fmt.Errorf("take profit must not be negative, got %s", p.TakeProfit)
	}
	if _, err := ParseTakeProfitMode(string(p.TakeProfitMode)); err != nil {
		return err
	}
	if p.MaxHoldings < 1 {
		return fmt.Errorf("max holdings must be at least 1, got %d", p.MaxHoldings)
	}
	if !p.MaxBuyAmount.IsPositive() {
		return fmt.Errorf("max buy amount must be positive, got %s", p.MaxBuyAmount)
	}
	if p.MinOrderAmount.IsNegative() {
		return fmt.Errorf("min order amount must not be negative, got %s", p.MinOrderAmount)
	}
	if p.MaxBuyAmount.LessThan(p.MinOrderAmount) {
		return fmt.Errorf("max buy amount %s is below the min order amount %s", p.MaxBuyAmount, p.MinOrderAmount)
	}
	return nil
}
