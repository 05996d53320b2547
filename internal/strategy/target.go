package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/exchange"
)

// Breakout returns open + (prevHigh - prevLow) * k.
func Breakout(open, prevHigh, prevLow, k decimal.Decimal) decimal.Decimal {
	return open.Add(prevHigh.Sub(prevLow).Mul(k))
}

// TargetPrice derives the breakout level from the last two bars, oldest first.
// The final bar is the one currently forming; only its open is used.
func TargetPrice(candles []exchange.Candle, k decimal.Decimal) (decimal.Decimal, error) {
	if len(candles) < 2 {
		return decimal.Zero, fmt.Errorf("%w: need 2 bars, have %d", exchange.ErrInsufficientData, len(candles))
	}
	prev := candles[len(candles)-2]
	cur := candles[len(candles)-1]
	return Breakout(cur.Open, prev.High, prev.Low, k), nil
}
