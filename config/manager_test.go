package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestManagerCreatesAndUpdates(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("UPBIT_ACCESS_KEY", "access")
	mgr, err := NewManager(WithConfigDir(dir), WithoutDotEnv())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	path := filepath.Join(dir, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if strings.Contains(string(data), "access") {
		t.Fatal("secrets must not be written to the config file")
	}

	next := mgr.Get()
	next.Mode = ModePaper
	next.Strategy.BreakoutK = decimal.RequireFromString("0.3")
	next.Strategy.MaxHoldings = 3
	next.UpbitAccessKey = ""
	if err := mgr.Update(next); err != nil {
		t.Fatalf("Update: %v", err)
	}

	updated := mgr.Get()
	if updated.Mode != ModePaper || updated.Strategy.MaxHoldings != 3 {
		t.Fatalf("update not applied: %+v", updated)
	}
	if !updated.Strategy.BreakoutK.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("breakout k = %s", updated.Strategy.BreakoutK)
	}
	if updated.UpbitAccessKey != "access" {
		t.Fatal("secret lost on update")
	}
	if updated.Schedule.ResetHour != 9 {
		t.Fatalf("untouched fields should keep their values, reset hour = %d", updated.Schedule.ResetHour)
	}
}

func TestManagerRejectsInvalidUpdate(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()), WithoutDotEnv())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	next := mgr.Get()
	next.Strategy.BreakoutK = decimal.RequireFromString("2")
	if err := mgr.Update(next); err == nil {
		t.Fatal("expected validation error for k > 1")
	}
	if !mgr.Get().Strategy.BreakoutK.Equal(decimal.RequireFromString("0.5")) {
		t.Fatal("invalid update must not be applied")
	}
}

func TestManagerWatchReloads(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir), WithoutDotEnv(), WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 1)
	if err := mgr.Watch(ctx, func(cfg Config) {
		reloaded <- cfg
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	cfg := mgr.Get()
	cfg.Strategy.StopLoss = decimal.RequireFromString("0.05")
	if _, err := writeConfigFile(mgr.Path(), cfg); err != nil {
		t.Fatalf("writeConfigFile: %v", err)
	}

	select {
	case got := <-reloaded:
		if !got.Strategy.StopLoss.Equal(decimal.RequireFromString("0.05")) {
			t.Fatalf("stop loss = %s, want 0.05", got.Strategy.StopLoss)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not fire on config change")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BREAKOUT_MAX_HOLDINGS", "2")
	t.Setenv("BREAKOUT_FALLBACK_TICKERS", "krw-sol, KRW-XRP")
	mgr, err := NewManager(WithConfigDir(dir), WithoutDotEnv())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := mgr.Get()
	if cfg.Strategy.MaxHoldings != 2 {
		t.Fatalf("max holdings = %d, want 2", cfg.Strategy.MaxHoldings)
	}
	if got := strings.Join(cfg.Strategy.FallbackTickers, ","); got != "KRW-SOL,KRW-XRP" {
		t.Fatalf("fallback tickers = %s", got)
	}
}

func TestManagerIgnoresOwnWritesAndBadEdits(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir), WithoutDotEnv(), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var first, second int
	calls := make(chan struct{}, 8)
	if err := mgr.Watch(ctx, func(Config) { first++; calls <- struct{}{} }); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := mgr.Watch(ctx, func(Config) { second++ }); err != nil {
		t.Fatalf("second Watch: %v", err)
	}

	// Update notifies subscribers directly; the resulting file event must not
	// produce a second reload.
	cfg := mgr.Get()
	cfg.Strategy.MaxHoldings = 4
	if err := mgr.Update(cfg); err != nil {
		t.Fatalf("Update: %v", err)
	}
	<-calls
	time.Sleep(200 * time.Millisecond)
	if first != 1 || second != 1 {
		t.Fatalf("subscribers called %d/%d times, want 1/1", first, second)
	}

	if err := os.WriteFile(mgr.Path(), []byte(`{"strategy":{"breakout_k":"3"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := mgr.Get().Strategy.MaxHoldings; got != 4 {
		t.Fatalf("invalid edit replaced config, max holdings = %d", got)
	}
	if len(calls) != 0 {
		t.Fatal("invalid edit reached subscribers")
	}
}
