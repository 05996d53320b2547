// Package journal keeps the append-only log of executed orders. Renderers and
// persistence layers read from it or subscribe to it as sinks.
package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultCapacity = 10000

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeRecord describes one executed order.
type TradeRecord struct {
	ID      string          `json:"id"`
	Seq     int64           `json:"seq"`
	Time    time.Time       `json:"time"`
	Side    Side            `json:"side"`
	Ticker  string          `json:"ticker"`
	Price   decimal.Decimal `json:"price"`
	Amount  decimal.Decimal `json:"amount"`
	Volume  decimal.Decimal `json:"volume"`
	Reason  string          `json:"reason"`
	Mode    string          `json:"mode"`
	OrderID string          `json:"order_id,omitempty"`
}

// Sink receives every appended record, in order, on the appending goroutine.
type Sink interface {
	Record(ctx context.Context, rec TradeRecord) error
}

type Option func(*Journal)

func WithSink(s Sink) Option {
	return func(j *Journal) {
		if s != nil {
			j.sinks = append(j.sinks, s)
		}
	}
}

// WithCapacity bounds how many records are kept in memory.
func WithCapacity(n int) Option {
	return func(j *Journal) {
		if n > 0 {
			j.capacity = n
		}
	}
}

type Journal struct {
	mu       sync.RWMutex
	records  []TradeRecord
	seq      int64
	capacity int
	sinks    []Sink
}

func New(opts ...Option) *Journal {
	j := &Journal{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Append stores rec and forwards it to every sink. The record is kept even when
// a sink fails; sink errors are joined and returned.
func (j *Journal) Append(ctx context.Context, rec TradeRecord) (TradeRecord, error) {
	j.mu.Lock()
	j.seq++
	rec.Seq = j.seq
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	j.records = append(j.records, rec)
	if over := len(j.records) - j.capacity; over > 0 {
		j.records = append(j.records[:0:0], j.records[over:]...)
	}
	sinks := j.sinks
	j.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("journal sink: %w", err))
		}
	}
	return rec, errors.Join(errs...)
}

// Since returns records at or after t, oldest first.
func (j *Journal) Since(t time.Time) []TradeRecord {
	return j.Filter(func(r TradeRecord) bool { return !r.Time.Before(t) })
}

// Buys returns buy records at or after t.
func (j *Journal) Buys(t time.Time) []TradeRecord {
	return j.Filter(func(r TradeRecord) bool { return r.Side == SideBuy && !r.Time.Before(t) })
}

func (j *Journal) Filter(keep func(TradeRecord) bool) []TradeRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]TradeRecord, 0)
	for _, r := range j.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (j *Journal) All() []TradeRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]TradeRecord(nil), j.records...)
}
