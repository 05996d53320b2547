// Package upbit implements exchange.Exchange against the Upbit REST API.
package upbit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/exchange"
)

const (
	DefaultBaseURL = "https://api.upbit.com/v1"

	// tickerBatch bounds the markets= list of a single /ticker request.
	tickerBatch = 100
	// maxCandles is the per-request cap of the candles endpoints.
	maxCandles = 200
)

// Config holds the connection settings of a Client.
type Config struct {
	BaseURL   string
	AccessKey string
	SecretKey string
	Timeout   time.Duration
	Retry     *exchange.RetryConfig
}

// Client handles Upbit API operations
type Client struct {
	client    *resty.Client
	accessKey string
	secretKey string
	retry     *exchange.RetryConfig
}

// New creates a new Upbit client
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retry := cfg.Retry
	if retry == nil {
		retry = exchange.DefaultRetryConfig()
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "BreakoutGo/1.0")

	return &Client{
		client:    client,
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		retry:     retry,
	}
}

func (c *Client) Name() string { return "upbit" }

// Tickers lists every market quoted in quote.
func (c *Client) Tickers(ctx context.Context, quote string) ([]string, error) {
	var markets []marketInfo
	if err := c.getPublic(ctx, "/market/all", map[string]string{"isDetails": "false"}, &markets); err != nil {
		return nil, err
	}

	prefix := strings.ToUpper(quote) + "-"
	tickers := make([]string, 0, len(markets))
	for _, m := range markets {
		if strings.HasPrefix(m.Market, prefix) {
			tickers = append(tickers, m.Market)
		}
	}
	return tickers, nil
}

// Snapshots fetches 24h summaries in batches.
func (c *Client) Snapshots(ctx context.Context, tickers []string) ([]exchange.Snapshot, error) {
	infos, err := c.tickerInfos(ctx, tickers)
	if err != nil {
		return nil, err
	}

	snapshots := make([]exchange.Snapshot, 0, len(infos))
	for _, info := range infos {
		snapshots = append(snapshots, exchange.Snapshot{
			Ticker:           info.Market,
			Price:            info.TradePrice,
			AccTradePrice24h: info.AccTradePrice24h,
		})
	}
	return snapshots, nil
}

// Prices returns the last trade price of each ticker.
func (c *Client) Prices(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	infos, err := c.tickerInfos(ctx, tickers)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(infos))
	for _, info := range infos {
		prices[info.Market] = info.TradePrice
	}
	return prices, nil
}

func (c *Client) tickerInfos(ctx context.Context, tickers []string) ([]tickerInfo, error) {
	var all []tickerInfo
	for start := 0; start < len(tickers); start += tickerBatch {
		end := min(start+tickerBatch, len(tickers))
		var batch []tickerInfo
		params := map[string]string{"markets": strings.Join(tickers[start:end], ",")}
		if err := c.getPublic(ctx, "/ticker", params, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
	return all, nil
}

// Candles returns the most recent count bars, oldest first.
func (c *Client) Candles(ctx context.Context, ticker string, interval exchange.Interval, count int) ([]exchange.Candle, error) {
	if count <= 0 {
		return nil, nil
	}
	if count > maxCandles {
		count = maxCandles
	}

	var path string
	switch interval {
	case exchange.IntervalDay:
		path = "/candles/days"
	case exchange.IntervalHour:
		path = "/candles/minutes/60"
	default:
		return nil, fmt.Errorf("%w: unsupported interval %q", exchange.ErrFetch, interval)
	}

	var raw []candleInfo
	params := map[string]string{"market": ticker, "count": strconv.Itoa(count)}
	if err := c.getPublic(ctx, path, params, &raw); err != nil {
		return nil, err
	}

	candles := make([]exchange.Candle, 0, len(raw))
	for _, r := range raw {
		ts, err := time.ParseInLocation("2006-01-02T15:04:05", r.CandleDateTimeUTC, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: parse candle time %q: %v", exchange.ErrFetch, r.CandleDateTimeUTC, err)
		}
		candles = append(candles, exchange.Candle{
			Time:   ts,
			Open:   r.OpeningPrice,
			High:   r.HighPrice,
			Low:    r.LowPrice,
			Close:  r.TradePrice,
			Volume: r.CandleAccTradeVolume,
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, nil
}

// Balances returns every currency line of the account.
func (c *Client) Balances(ctx context.Context) ([]exchange.Balance, error) {
	if err := c.checkKeys(); err != nil {
		return nil, err
	}

	var accounts []accountInfo
	err := exchange.WithRetry(ctx, c.retry, func() error {
		// Each attempt needs a fresh nonce.
		auth, err := c.authorization(nil)
		if err != nil {
			return err
		}
		resp, err := c.client.R().
			SetContext(ctx).
			SetHeader("Authorization", auth).
			Get("/accounts")
		return decode(resp, err, &accounts)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch balances: %w", exchange.ErrFetch, err)
	}

	balances := make([]exchange.Balance, 0, len(accounts))
	for _, a := range accounts {
		balances = append(balances, exchange.Balance{
			Currency:     a.Currency,
			Balance:      a.Balance,
			Locked:       a.Locked,
			AvgBuyPrice:  a.AvgBuyPrice,
			UnitCurrency: a.UnitCurrency,
		})
	}
	return balances, nil
}

// BuyMarket places a market bid spending amount of the quote currency.
func (c *Client) BuyMarket(ctx context.Context, ticker string, amount decimal.Decimal) (*exchange.Order, error) {
	quote, _, err := exchange.SplitTicker(ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrOrder, err)
	}
	notional := formatAmount(quote, amount)
	if !notional.IsPositive() {
		return nil, fmt.Errorf("%w: buy %s: non-positive amount %s", exchange.ErrOrder, ticker, amount)
	}

	params := map[string]string{
		"market":   ticker,
		"side":     "bid",
		"ord_type": "price",
		"price":    notional.String(),
	}
	order, err := c.placeOrder(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("buy %s: %w", ticker, err)
	}
	order.Side = exchange.SideBuy
	order.Amount = notional
	return order, nil
}

// SellMarket places a market ask for volume units.
func (c *Client) SellMarket(ctx context.Context, ticker string, volume decimal.Decimal) (*exchange.Order, error) {
	if !volume.IsPositive() {
		return nil, fmt.Errorf("%w: sell %s: non-positive volume %s", exchange.ErrOrder, ticker, volume)
	}

	params := map[string]string{
		"market":   ticker,
		"side":     "ask",
		"ord_type": "market",
		"volume":   volume.String(),
	}
	order, err := c.placeOrder(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("sell %s: %w", ticker, err)
	}
	order.Side = exchange.SideSell
	order.Volume = volume
	return order, nil
}

// placeOrder submits exactly once; orders are never retried.
func (c *Client) placeOrder(ctx context.Context, params map[string]string) (*exchange.Order, error) {
	auth, err := c.authorization(params)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", auth).
		SetHeader("Content-Type", "application/json").
		SetBody(params).
		Post("/orders")

	var info orderInfo
	if err := decode(resp, err, &info); err != nil {
		return nil, fmt.Errorf("%w: %w", exchange.ErrOrder, err)
	}

	created, _ := time.Parse(time.RFC3339, info.CreatedAt)
	order := &exchange.Order{
		ID:        info.UUID,
		Ticker:    info.Market,
		State:     info.State,
		CreatedAt: created,
	}
	if info.Price.Valid {
		order.Amount = info.Price.Decimal
	}
	if info.Volume.Valid {
		order.Volume = info.Volume.Decimal
	}
	return order, nil
}

func (c *Client) getPublic(ctx context.Context, path string, params map[string]string, out any) error {
	err := exchange.WithRetry(ctx, c.retry, func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get(path)
		return decode(resp, err, out)
	})
	if err != nil {
		return fmt.Errorf("%w: GET %s: %w", exchange.ErrFetch, path, err)
	}
	return nil
}

// decode turns a resty response into out or a descriptive error.
func decode(resp *resty.Response, err error, out any) error {
	if err != nil {
		return err
	}

	if resp.IsError() {
		var apiErr apiError
		msg := resp.String()
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error.Name != "" {
			msg = apiErr.Error.Name + ": " + apiErr.Error.Message
		}
		if resp.StatusCode() == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", exchange.ErrAuth, msg)
		}
		return fmt.Errorf("API error %d: %s", resp.StatusCode(), msg)
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// formatAmount trims an order notional to the precision the quote market accepts.
func formatAmount(quote string, amount decimal.Decimal) decimal.Decimal {
	if strings.EqualFold(quote, "KRW") {
		return amount.Truncate(0)
	}
	return amount.Truncate(8)
}
