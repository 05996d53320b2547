package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

const configFileName = "config.json"

// Manager owns config.json. Writes go through Update; edits made by hand are
// picked up by Watch. Environment overrides are applied after every load and
// secrets never reach the file.
type Manager struct {
	path     string
	debounce time.Duration

	mu          sync.RWMutex
	cfg         Config
	lastWritten []byte
	subscribers []func(Config)
	watching    bool
}

type managerOptions struct {
	configPath    string
	initialConfig *Config
	debounce      time.Duration
	skipDotEnv    bool
}

type ManagerOption func(*managerOptions)

// NewManager loads the config file, creating it from defaults on first use.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	options := managerOptions{debounce: 300 * time.Millisecond}
	for _, opt := range opts {
		opt(&options)
	}

	if options.configPath == "" {
		root, err := defaultConfigRoot()
		if err != nil {
			return nil, err
		}
		options.configPath = filepath.Join(root, configFileName)
	}
	if err := os.MkdirAll(filepath.Dir(options.configPath), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	if !options.skipDotEnv {
		_ = godotenv.Load()
	}

	m := &Manager{path: options.configPath, debounce: options.debounce}
	if err := m.bootstrap(options.initialConfig); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) bootstrap(initial *Config) error {
	data, err := os.ReadFile(m.path)
	switch {
	case err == nil:
		cfg, err := decodeConfig(m.path, data)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		m.cfg, m.lastWritten = cfg, data
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("read config: %w", err)
	}

	cfg := *DefaultConfigWithRoot(filepath.Dir(m.path))
	if initial != nil {
		cfg = *initial
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	written, err := writeConfigFile(m.path, cfg)
	if err != nil {
		return fmt.Errorf("write initial config: %w", err)
	}
	cfg.loadFromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.cfg, m.lastWritten = cfg, written
	return nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Path() string { return m.path }

// Update validates, persists and applies next. Secrets missing from next are
// carried over from the current config.
func (m *Manager) Update(next Config) error {
	current := m.Get()
	next.inheritSecrets(current)
	if err := next.Validate(); err != nil {
		return err
	}
	if sameConfig(current, next) {
		return nil
	}

	written, err := writeConfigFile(m.path, next)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.lastWritten = written
	m.mu.Unlock()
	m.apply(next)
	return nil
}

// Watch reloads the file after external edits until ctx is done. Every
// callback registered through Watch runs on the watcher goroutine after each
// successful reload; a file that fails validation is logged and ignored.
func (m *Manager) Watch(ctx context.Context, onChange func(Config)) error {
	m.mu.Lock()
	if onChange != nil {
		m.subscribers = append(m.subscribers, onChange)
	}
	if m.watching {
		m.mu.Unlock()
		return nil
	}
	m.watching = true
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.setWatching(false)
		return err
	}
	// The directory is watched so atomic rename-over writes are seen.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		m.setWatching(false)
		return fmt.Errorf("watch config dir: %w", err)
	}
	go m.watch(ctx, watcher)
	return nil
}

func (m *Manager) setWatching(v bool) {
	m.mu.Lock()
	m.watching = v
	m.mu.Unlock()
}

func (m *Manager) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	defer m.setWatching(false)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(m.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			timer.Reset(m.debounce)
		case <-timer.C:
			m.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ config watcher error: %v", err)
		}
	}
}

func (m *Manager) reload() {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		// Deleted while running: put the live config back.
		written, err := writeConfigFile(m.path, m.Get())
		if err != nil {
			log.Printf("⚠️ config recreate failed: %v", err)
			return
		}
		m.mu.Lock()
		m.lastWritten = written
		m.mu.Unlock()
		return
	}
	if err != nil {
		log.Printf("⚠️ config reload failed: %v", err)
		return
	}

	m.mu.RLock()
	own := bytes.Equal(data, m.lastWritten)
	m.mu.RUnlock()
	if own {
		return
	}

	cfg, err := decodeConfig(m.path, data)
	if err != nil {
		log.Printf("⚠️ config reload failed: %v", err)
		return
	}
	cfg.inheritSecrets(m.Get())
	if err := cfg.Validate(); err != nil {
		log.Printf("⚠️ config rejected, keeping previous: %v", err)
		return
	}

	m.mu.Lock()
	m.lastWritten = data
	m.mu.Unlock()
	if sameConfig(m.Get(), cfg) {
		return
	}
	log.Printf("🔄 config reloaded from %s", m.path)
	m.apply(cfg)
}

func (m *Manager) apply(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	subs := append(([]func(Config))(nil), m.subscribers...)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(cfg)
	}
}

// sameConfig compares the persisted fields plus secrets.
func sameConfig(a, b Config) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb) &&
		a.UpbitAccessKey == b.UpbitAccessKey &&
		a.UpbitSecretKey == b.UpbitSecretKey &&
		a.DiscordWebhookURL == b.DiscordWebhookURL &&
		a.Redis.Password == b.Redis.Password
}

// decodeConfig layers data over the defaults for the file's directory and
// applies the environment.
func decodeConfig(path string, data []byte) (Config, error) {
	cfg := *DefaultConfigWithRoot(filepath.Dir(path))
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.loadFromEnv()
	return cfg, nil
}

func defaultConfigRoot() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "BreakoutGo"), nil
}

// writeConfigFile replaces path atomically and returns the bytes written.
func writeConfigFile(path string, cfg Config) ([]byte, error) {
	data, err := json.MarshalIndent(&cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "config-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp config: %w", err)
	}
	cleanup := func(err error) ([]byte, error) {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, err
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(fmt.Errorf("write temp config: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("flush config: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("replace config: %w", err)
	}
	return data, nil
}

// WithConfigDir stores config.json in dir. An empty dir keeps the default.
func WithConfigDir(dir string) ManagerOption {
	return func(o *managerOptions) {
		if dir != "" {
			o.configPath = filepath.Join(dir, configFileName)
		}
	}
}

func WithConfigPath(path string) ManagerOption {
	return func(o *managerOptions) {
		if path != "" {
			o.configPath = path
		}
	}
}

func WithDebounce(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithInitialConfig seeds a missing config file with cfg instead of the defaults.
func WithInitialConfig(cfg *Config) ManagerOption {
	return func(o *managerOptions) {
		o.initialConfig = cfg
	}
}

// WithoutDotEnv skips loading .env from the working directory.
func WithoutDotEnv() ManagerOption {
	return func(o *managerOptions) {
		o.skipDotEnv = true
	}
}
