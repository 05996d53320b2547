// Package redis mirrors the trade journal into Redis so dashboards and other
// processes can follow executions without reading the sqlite file.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyike/BreakoutGo/internal/journal"
)

const (
	DefaultKey     = "breakout:trades"
	DefaultChannel = "breakout:trades:live"
	DefaultMaxLen  = 1000
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Channel  string
	MaxLen   int64
}

// Sink implements journal.Sink on top of a Redis list plus a pub/sub channel.
type Sink struct {
	client  *redis.Client
	key     string
	channel string
	maxLen  int64
}

// New connects and pings the server before returning.
func New(ctx context.Context, opts Options) (*Sink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	s := &Sink{client: client, key: opts.Key, channel: opts.Channel, maxLen: opts.MaxLen}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.channel == "" {
		s.channel = DefaultChannel
	}
	if s.maxLen <= 0 {
		s.maxLen = DefaultMaxLen
	}
	return s, nil
}

// Record pushes rec onto the head of the list, trims it and publishes it.
func (s *Sink) Record(ctx context.Context, rec journal.TradeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode trade: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, data)
	pipe.LTrim(ctx, s.key, 0, s.maxLen-1)
	pipe.Publish(ctx, s.channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis record trade %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to n trades, newest first.
func (s *Sink) Recent(ctx context.Context, n int64) ([]journal.TradeRecord, error) {
	if n <= 0 {
		n = s.maxLen
	}
	values, err := s.client.LRange(ctx, s.key, 0, n-1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	trades := make([]journal.TradeRecord, 0, len(values))
	for _, v := range values {
		var rec journal.TradeRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode trade: %w", err)
		}
		trades = append(trades, rec)
	}
	return trades, nil
}

func (s *Sink) Close() error {
	return s.client.Close()
}
