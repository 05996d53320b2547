package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/dyike/BreakoutGo/config"
	"github.com/dyike/BreakoutGo/internal/cache"
	"github.com/dyike/BreakoutGo/internal/exchange"
	"github.com/dyike/BreakoutGo/internal/exchange/paper"
	"github.com/dyike/BreakoutGo/internal/exchange/upbit"
	"github.com/dyike/BreakoutGo/internal/exchange/yahoo"
	"github.com/dyike/BreakoutGo/internal/journal"
	"github.com/dyike/BreakoutGo/internal/notify"
	redisstore "github.com/dyike/BreakoutGo/internal/storage/redis"
	"github.com/dyike/BreakoutGo/internal/storage/sqlite"
)

// botSession bundles everything one `run` owns: the exchange, the notifier
// and the journal with its persistence sinks.
type botSession struct {
	runID    string
	exchange exchange.Exchange
	cache    *cache.MarketDataCache
	notifier notify.Notifier
	journal  *journal.Journal
	store    *sqlite.Store
	redis    *redisstore.Sink
}

func openSession(ctx context.Context, cfg config.Config, loc *time.Location) (*botSession, error) {
	ex, md, err := buildExchange(cfg)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(cfg.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("open journal store: %w", err)
	}

	s := &botSession{
		runID:    uuid.NewString(),
		exchange: ex,
		cache:    md,
		notifier: buildNotifier(cfg, loc),
		store:    store,
	}
	if err := store.StartRun(ctx, sqlite.RunRecord{ID: s.runID, Mode: cfg.Mode, Exchange: ex.Name()}); err != nil {
		_ = store.Close()
		return nil, err
	}

	opts := []journal.Option{journal.WithSink(store.Sink(s.runID))}
	if cfg.Redis.Addr != "" {
		r, err := redisstore.New(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			log.Printf("⚠️ redis mirror disabled: %v", err)
		} else {
			s.redis = r
			opts = append(opts, journal.WithSink(r))
		}
	}
	s.journal = journal.New(opts...)
	return s, nil
}

func (s *botSession) Close(ctx context.Context) error {
	var errs []error
	if err := s.store.FinishRun(ctx, s.runID); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// cachedExchange serves candles and tickers from memory and sends everything
// else to the underlying exchange.
type cachedExchange struct {
	*cache.MarketDataCache
	exchange.Account
	name string
}

func (c cachedExchange) Name() string { return c.name }

func newUpbit(cfg config.Config) *upbit.Client {
	return upbit.New(upbit.Config{
		BaseURL:   cfg.UpbitBaseURL,
		AccessKey: cfg.UpbitAccessKey,
		SecretKey: cfg.UpbitSecretKey,
	})
}

// buildMarketData returns the cached price feed selected by MarketSource.
func buildMarketData(cfg config.Config) *cache.MarketDataCache {
	var feed exchange.MarketData
	if cfg.MarketSource == config.SourceYahoo {
		feed = yahoo.New(cfg.YahooUniverse)
	} else {
		feed = newUpbit(cfg)
	}
	return cache.NewMarketDataCache(feed, cache.DefaultTTL)
}

// buildExchange wires live trading straight to Upbit and paper trading to a
// simulated account on top of the selected feed. The returned cache is the
// one the exchange reads candles and tickers through.
func buildExchange(cfg config.Config) (exchange.Exchange, *cache.MarketDataCache, error) {
	switch cfg.Mode {
	case config.ModeLive:
		if cfg.MarketSource != config.SourceUpbit {
			return nil, nil, fmt.Errorf("live mode requires market source %q", config.SourceUpbit)
		}
		client := newUpbit(cfg)
		md := cache.NewMarketDataCache(client, cache.DefaultTTL)
		return cachedExchange{MarketDataCache: md, Account: client, name: client.Name()}, md, nil
	case config.ModePaper:
		md := buildMarketData(cfg)
		return paper.New(md, paper.Config{
			Quote:   cfg.QuoteCurrency,
			Balance: cfg.Paper.Balance,
			FeeRate: cfg.Paper.FeeRate,
		}), md, nil
	}
	return nil, nil, fmt.Errorf("unknown mode %q", cfg.Mode)
}

func buildNotifier(cfg config.Config, loc *time.Location) notify.Notifier {
	if cfg.DiscordWebhookURL == "" {
		return notify.Log{}
	}
	return notify.Multi{notify.NewDiscord(cfg.DiscordWebhookURL, loc), notify.Log{}}
}
