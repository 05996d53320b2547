package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/exchange"
	"github.com/dyike/BreakoutGo/internal/strategy"
)

const (
	ModeLive  = "live"
	ModePaper = "paper"

	SourceUpbit = "upbit"
	SourceYahoo = "yahoo"
)

type Config struct {
	Mode          string   `json:"mode"`
	MarketSource  string   `json:"market_source"`
	QuoteCurrency string   `json:"quote_currency"`
	UpbitBaseURL  string   `json:"upbit_base_url"`
	DataDir       string   `json:"data_dir"`
	JournalPath   string   `json:"journal_path"`
	YahooUniverse []string `json:"yahoo_universe"`
	Debug         bool     `json:"debug"`

	Strategy StrategyConfig `json:"strategy"`
	Schedule ScheduleConfig `json:"schedule"`
	Paper    PaperConfig    `json:"paper"`
	Redis    RedisConfig    `json:"redis"`

	// Secrets only ever come from the environment or .env.
	UpbitAccessKey    string `json:"-"`
	UpbitSecretKey    string `json:"-"`
	DiscordWebhookURL string `json:"-"`
}

type StrategyConfig struct {
	BreakoutK       decimal.Decimal `json:"breakout_k"`
	StopLoss        decimal.Decimal `json:"stop_loss"`
	TakeProfitMode  string          `json:"take_profit_mode"`
	TakeProfit      decimal.Decimal `json:"take_profit"`
	MaxHoldings     int             `json:"max_holdings"`
	MaxBuyAmount    decimal.Decimal `json:"max_buy_amount"`
	MinOrderAmount  decimal.Decimal `json:"min_order_amount"`
	CandidateSize   int             `json:"candidate_size"`
	CandleInterval  string          `json:"candle_interval"`
	FallbackTickers []string        `json:"fallback_tickers"`
	StartupExit     bool            `json:"startup_exit"`
}

type ScheduleConfig struct {
	Timezone           string `json:"timezone"`
	ResetHour          int    `json:"reset_hour"`
	ResetWindowMinutes int    `json:"reset_window_minutes"`
	PollIntervalMS     int    `json:"poll_interval_ms"`
	OrderSettleMS      int    `json:"order_settle_ms"`
	ErrorBackoffMS     int    `json:"error_backoff_ms"`
	CooldownSeconds    int    `json:"cooldown_seconds"`
}

type PaperConfig struct {
	Balance decimal.Decimal `json:"balance"`
	FeeRate decimal.Decimal `json:"fee_rate"`
}

// RedisConfig enables mirroring the trade journal to Redis when Addr is set.
type RedisConfig struct {
	Addr     string `json:"addr"`
	DB       int    `json:"db"`
	Key      string `json:"key"`
	Channel  string `json:"channel"`
	Password string `json:"-"`
}

// DefaultConfig returns defaults rooted at the user config directory,
// overridden by .env and the process environment.
func DefaultConfig() *Config {
	root, err := defaultConfigRoot()
	if err != nil {
		root, _ = os.Getwd()
	}
	cfg := DefaultConfigWithRoot(root)

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()
	return cfg
}

// DefaultConfigWithRoot returns the built-in defaults with data stored under root.
func DefaultConfigWithRoot(root string) *Config {
	dataDir := filepath.Join(root, "data")
	return &Config{
		Mode:          ModeLive,
		MarketSource:  SourceUpbit,
		QuoteCurrency: "KRW",
		UpbitBaseURL:  "https://api.upbit.com/v1",
		DataDir:       dataDir,
		JournalPath:   filepath.Join(dataDir, "journal.db"),
		YahooUniverse: []string{"KRW-BTC", "KRW-ETH", "KRW-XRP", "KRW-SOL", "KRW-DOGE", "KRW-ADA"},

		Strategy: StrategyConfig{
			BreakoutK:       decimal.RequireFromString("0.5"),
			StopLoss:        decimal.RequireFromString("0.03"),
			TakeProfitMode:  string(strategy.TakeProfitThreshold),
			TakeProfit:      decimal.RequireFromString("0.02"),
			MaxHoldings:     5,
			MaxBuyAmount:    decimal.NewFromInt(19000),
			MinOrderAmount:  decimal.NewFromInt(5000),
			CandidateSize:   20,
			CandleInterval:  string(exchange.IntervalDay),
			FallbackTickers: []string{"KRW-BTC", "KRW-ETH"},
			StartupExit:     true,
		},
		Schedule: ScheduleConfig{
			Timezone:           "Asia/Seoul",
			ResetHour:          9,
			ResetWindowMinutes: 5,
			PollIntervalMS:     2000,
			OrderSettleMS:      300,
			ErrorBackoffMS:     10000,
			CooldownSeconds:    180,
		},
		Paper: PaperConfig{
			Balance: decimal.NewFromInt(1000000),
			FeeRate: decimal.RequireFromString("0.0005"),
		},
		Redis: RedisConfig{
			Key:     "breakout:trades",
			Channel: "breakout:trades:live",
		},
	}
}

func (c *Config) loadFromEnv() {
	envString("BREAKOUT_MODE", &c.Mode)
	envString("BREAKOUT_MARKET_SOURCE", &c.MarketSource)
	envString("BREAKOUT_QUOTE", &c.QuoteCurrency)
	envString("BREAKOUT_UPBIT_BASE_URL", &c.UpbitBaseURL)
	envString("BREAKOUT_DATA_DIR", &c.DataDir)
	envString("BREAKOUT_JOURNAL_PATH", &c.JournalPath)
	envList("BREAKOUT_YAHOO_UNIVERSE", &c.YahooUniverse)
	envBool("BREAKOUT_DEBUG", &c.Debug)

	s := &c.Strategy
	envDecimal("BREAKOUT_K", &s.BreakoutK)
	envDecimal("BREAKOUT_STOP_LOSS", &s.StopLoss)
	envString("BREAKOUT_TAKE_PROFIT_MODE", &s.TakeProfitMode)
	envDecimal("BREAKOUT_TAKE_PROFIT", &s.TakeProfit)
	envInt("BREAKOUT_MAX_HOLDINGS", &s.MaxHoldings)
	envDecimal("BREAKOUT_MAX_BUY_AMOUNT", &s.MaxBuyAmount)
	envDecimal("BREAKOUT_MIN_ORDER_AMOUNT", &s.MinOrderAmount)
	envInt("BREAKOUT_CANDIDATE_SIZE", &s.CandidateSize)
	envString("BREAKOUT_CANDLE_INTERVAL", &s.CandleInterval)
	envList("BREAKOUT_FALLBACK_TICKERS", &s.FallbackTickers)
	envBool("BREAKOUT_STARTUP_EXIT", &s.StartupExit)

	sc := &c.Schedule
	envString("BREAKOUT_TIMEZONE", &sc.Timezone)
	envInt("BREAKOUT_RESET_HOUR", &sc.ResetHour)
	envInt("BREAKOUT_RESET_WINDOW_MINUTES", &sc.ResetWindowMinutes)
	envInt("BREAKOUT_POLL_INTERVAL_MS", &sc.PollIntervalMS)
	envInt("BREAKOUT_ORDER_SETTLE_MS", &sc.OrderSettleMS)
	envInt("BREAKOUT_ERROR_BACKOFF_MS", &sc.ErrorBackoffMS)
	envInt("BREAKOUT_COOLDOWN_SECONDS", &sc.CooldownSeconds)

	envDecimal("BREAKOUT_PAPER_BALANCE", &c.Paper.Balance)
	envDecimal("BREAKOUT_PAPER_FEE_RATE", &c.Paper.FeeRate)

	envString("BREAKOUT_REDIS_ADDR", &c.Redis.Addr)
	envInt("BREAKOUT_REDIS_DB", &c.Redis.DB)
	envString("BREAKOUT_REDIS_PASSWORD", &c.Redis.Password)

	envString("UPBIT_ACCESS_KEY", &c.UpbitAccessKey)
	envString("UPBIT_SECRET_KEY", &c.UpbitSecretKey)
	envString("DISCORD_WEBHOOK_URL", &c.DiscordWebhookURL)
}

func envString(key string, dst *string) {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		*dst = val
	}
}

func envList(key string, dst *[]string) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	*dst = out
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			*dst = v
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			*dst = v
		}
	}
}

func envDecimal(key string, dst *decimal.Decimal) {
	if val := os.Getenv(key); val != "" {
		if v, err := decimal.NewFromString(val); err == nil {
			*dst = v
		}
	}
}

// StrategyParams converts the strategy section into decision parameters.
func (c *Config) StrategyParams() strategy.Params {
	s := c.Strategy
	mode, err := strategy.ParseTakeProfitMode(s.TakeProfitMode)
	if err != nil {
		mode = strategy.TakeProfitThreshold
	}
	return strategy.Params{
		K:              s.BreakoutK,
		StopLoss:       s.StopLoss,
		TakeProfitMode: mode,
		TakeProfit:     s.TakeProfit,
		MaxHoldings:    s.MaxHoldings,
		MaxBuyAmount:   s.MaxBuyAmount,
		MinOrderAmount: s.MinOrderAmount,
	}
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Schedule.Timezone)
}

// Validate checks ranges and enumerations. It does not look at secrets.
func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeLive, ModePaper:
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeLive, ModePaper, c.Mode))
	}
	switch c.MarketSource {
	case SourceUpbit, SourceYahoo:
	default:
		errs = append(errs, fmt.Errorf("market source must be %q or %q, got %q", SourceUpbit, SourceYahoo, c.MarketSource))
	}
	if c.Mode == ModeLive && c.MarketSource != SourceUpbit {
		errs = append(errs, fmt.Errorf("live mode requires market source %q", SourceUpbit))
	}
	if strings.TrimSpace(c.QuoteCurrency) == "" {
		errs = append(errs, errors.New("quote currency is required"))
	}
	if strings.TrimSpace(c.JournalPath) == "" {
		errs = append(errs, errors.New("journal path is required"))
	}

	if _, err := strategy.ParseTakeProfitMode(c.Strategy.TakeProfitMode); err != nil {
		errs = append(errs, err)
	} else if err := c.StrategyParams().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Strategy.CandidateSize < 1 {
		errs = append(errs, fmt.Errorf("candidate size must be at least 1, got %d", c.Strategy.CandidateSize))
	}
	if _, err := exchange.ParseInterval(c.Strategy.CandleInterval); err != nil {
		errs = append(errs, err)
	}
	if len(c.Strategy.FallbackTickers) == 0 {
		errs = append(errs, errors.New("at least one fallback ticker is required"))
	}

	sc := c.Schedule
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", sc.Timezone, err))
	}
	if sc.ResetHour < 0 || sc.ResetHour > 23 {
		errs = append(errs, fmt.Errorf("reset hour must be 0-23, got %d", sc.ResetHour))
	}
	if sc.ResetWindowMinutes < 1 || sc.ResetWindowMinutes > 60 {
		errs = append(errs, fmt.Errorf("reset window must be 1-60 minutes, got %d", sc.ResetWindowMinutes))
	}
	if sc.PollIntervalMS <= 0 || sc.ErrorBackoffMS <= 0 {
		errs = append(errs, errors.New("poll interval and error backoff must be positive"))
	}
	if sc.OrderSettleMS < 0 || sc.CooldownSeconds < 0 {
		errs = append(errs, errors.New("order settle delay and cooldown must not be negative"))
	}

	if c.Mode == ModePaper {
		if !c.Paper.Balance.IsPositive() {
			errs = append(errs, errors.New("paper balance must be positive"))
		}
		if c.Paper.FeeRate.IsNegative() || c.Paper.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			errs = append(errs, fmt.Errorf("paper fee rate must be in [0, 1), got %s", c.Paper.FeeRate))
		}
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("redis db must not be negative, got %d", c.Redis.DB))
	}
	return errors.Join(errs...)
}

// ValidateSecrets reports missing credentials. Live trading needs both exchange
// keys and the webhook; paper trading needs nothing.
func (c *Config) ValidateSecrets() error {
	if c.Mode != ModeLive {
		return nil
	}
	var missing []string
	if c.UpbitAccessKey == "" {
		missing = append(missing, "UPBIT_ACCESS_KEY")
	}
	if c.UpbitSecretKey == "" {
		missing = append(missing, "UPBIT_SECRET_KEY")
	}
	if c.DiscordWebhookURL == "" {
		missing = append(missing, "DISCORD_WEBHOOK_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing secrets: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) inheritSecrets(from Config) {
	if c.UpbitAccessKey == "" {
		c.UpbitAccessKey = from.UpbitAccessKey
	}
	if c.UpbitSecretKey == "" {
		c.UpbitSecretKey = from.UpbitSecretKey
	}
	if c.DiscordWebhookURL == "" {
		c.DiscordWebhookURL = from.DiscordWebhookURL
	}
	if c.Redis.Password == "" {
		c.Redis.Password = from.Redis.Password
	}
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, filepath.Dir(c.JournalPath)}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
