package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/config"
	"github.com/dyike/BreakoutGo/internal/exchange"
	"github.com/dyike/BreakoutGo/internal/strategy"
)

// configKeys maps the keys accepted by `config get/set` to accessors on the
// strategy and schedule sections. Everything here can change while the bot runs.
var configKeys = map[string]struct {
	get func(c *config.Config) string
	set func(c *config.Config, v string) error
}{
	"breakout_k": {
		get: func(c *config.Config) string { return c.Strategy.BreakoutK.String() },
		set: func(c *config.Config, v string) error { return setDecimal(&c.Strategy.BreakoutK, v) },
	},
	"stop_loss": {
		get: func(c *config.Config) string { return c.Strategy.StopLoss.String() },
		set: func(c *config.Config, v string) error { return setDecimal(&c.Strategy.StopLoss, v) },
	},
	"take_profit_mode": {
		get: func(c *config.Config) string { return c.Strategy.TakeProfitMode },
		set: func(c *config.Config, v string) error {
			mode, err := strategy.ParseTakeProfitMode(v)
			if err != nil {
				return err
			}
			c.Strategy.TakeProfitMode = string(mode)
			return nil
		},
	},
	"take_profit": {
		get: func(c *config.Config) string { return c.Strategy.TakeProfit.String() },
		set: func(c *config.Config, v string) error { return setDecimal(&c.Strategy.TakeProfit, v) },
	},
	"max_holdings": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Strategy.MaxHoldings) },
		set: func(c *config.Config, v string) error { return setInt(&c.Strategy.MaxHoldings, v) },
	},
	"max_buy_amount": {
		get: func(c *config.Config) string { return c.Strategy.MaxBuyAmount.String() },
		set: func(c *config.Config, v string) error { return setDecimal(&c.Strategy.MaxBuyAmount, v) },
	},
	"min_order_amount": {
		get: func(c *config.Config) string { return c.Strategy.MinOrderAmount.String() },
		set: func(c *config.Config, v string) error { return setDecimal(&c.Strategy.MinOrderAmount, v) },
	},
	"candidate_size": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Strategy.CandidateSize) },
		set: func(c *config.Config, v string) error { return setInt(&c.Strategy.CandidateSize, v) },
	},
	"candle_interval": {
		get: func(c *config.Config) string { return c.Strategy.CandleInterval },
		set: func(c *config.Config, v string) error {
			interval, err := exchange.ParseInterval(v)
			if err != nil {
				return err
			}
			c.Strategy.CandleInterval = string(interval)
			return nil
		},
	},
	"cooldown_seconds": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Schedule.CooldownSeconds) },
		set: func(c *config.Config, v string) error { return setInt(&c.Schedule.CooldownSeconds, v) },
	},
	"poll_interval_ms": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Schedule.PollIntervalMS) },
		set: func(c *config.Config, v string) error { return setInt(&c.Schedule.PollIntervalMS, v) },
	},
	"reset_hour": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Schedule.ResetHour) },
		set: func(c *config.Config, v string) error { return setInt(&c.Schedule.ResetHour, v) },
	},
}

// GetConfigValue gets a configuration value by key
func GetConfigValue(cfg *config.Config, key string) (string, error) {
	k, ok := configKeys[strings.ToLower(key)]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return k.get(cfg), nil
}

// SetConfigValue parses value into the field named by key. The caller
// validates and persists the result.
func SetConfigValue(cfg *config.Config, key, value string) error {
	k, ok := configKeys[strings.ToLower(key)]
	if !ok {
		return fmt.Errorf("unknown or read-only configuration key: %s", key)
	}
	return k.set(cfg, strings.TrimSpace(value))
}

// ListAvailableKeys returns all available configuration keys
func ListAvailableKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setDecimal(dst *decimal.Decimal, v string) error {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fmt.Errorf("%q is not a number", v)
	}
	*dst = d
	return nil
}

func setInt(dst *int, v string) error {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%q is not an integer", v)
	}
	*dst = i
	return nil
}
