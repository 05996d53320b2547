// Package cache keeps recently fetched market data in memory so repeated
// watch-list builds and CLI lookups do not hit the exchange for the same bars.
package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyike/BreakoutGo/internal/exchange"
)

const DefaultTTL = 5 * time.Minute

type cachedCandles struct {
	data    []exchange.Candle
	expires time.Time
}

type cachedTickers struct {
	data    []string
	expires time.Time
}

// MarketDataCache wraps a feed and memoizes Candles and Tickers. Snapshots and
// Prices always go to the feed.
type MarketDataCache struct {
	exchange.MarketData

	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	candles map[string]cachedCandles
	tickers map[string]cachedTickers
}

func NewMarketDataCache(feed exchange.MarketData, ttl time.Duration) *MarketDataCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MarketDataCache{
		MarketData: feed,
		ttl:        ttl,
		now:        time.Now,
		candles:    make(map[string]cachedCandles),
		tickers:    make(map[string]cachedTickers),
	}
}

func (c *MarketDataCache) Tickers(ctx context.Context, quote string) ([]string, error) {
	now := c.now()
	c.mu.RLock()
	cached, ok := c.tickers[quote]
	c.mu.RUnlock()
	if ok && now.Before(cached.expires) {
		return append([]string(nil), cached.data...), nil
	}

	data, err := c.MarketData.Tickers(ctx, quote)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.tickers[quote] = cachedTickers{data: append([]string(nil), data...), expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return data, nil
}

// Candles serves a cached series only while its newest bar is still forming,
// so a cached series never outlives the bar boundary.
func (c *MarketDataCache) Candles(ctx context.Context, ticker string, interval exchange.Interval, count int) ([]exchange.Candle, error) {
	key := fmt.Sprintf("%s-%s-%d", ticker, interval, count)
	now := c.now()

	c.mu.RLock()
	cached, ok := c.candles[key]
	c.mu.RUnlock()
	if ok && now.Before(cached.expires) {
		return append([]exchange.Candle(nil), cached.data...), nil
	}

	data, err := c.MarketData.Candles(ctx, ticker, interval, count)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return data, nil
	}

	expires := now.Add(c.ttl)
	if barEnd := data[len(data)-1].Time.Add(interval.Duration()); barEnd.Before(expires) {
		expires = barEnd
	}
	c.mu.Lock()
	c.candles[key] = cachedCandles{data: append([]exchange.Candle(nil), data...), expires: expires}
	c.mu.Unlock()
	return data, nil
}

// Clear drops every memoized series and ticker list.
func (c *MarketDataCache) Clear() {
	c.mu.Lock()
	n := len(c.candles) + len(c.tickers)
	c.candles = make(map[string]cachedCandles)
	c.tickers = make(map[string]cachedTickers)
	c.mu.Unlock()
	log.Printf("🧹 cleared %d market data cache entries", n)
}
