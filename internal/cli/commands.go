package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dyike/BreakoutGo/config"
	"github.com/dyike/BreakoutGo/internal/display"
	"github.com/dyike/BreakoutGo/internal/journal"
	redisstore "github.com/dyike/BreakoutGo/internal/storage/redis"
	"github.com/dyike/BreakoutGo/internal/storage/sqlite"
	"github.com/dyike/BreakoutGo/internal/trading"
)

// app carries state shared by every subcommand once the config is loaded.
type app struct {
	configDir string
	debug     bool
	mgr       *config.Manager
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "breakoutgo",
		Short: "BreakoutGo - volatility breakout trading bot for Upbit",
		Long: `BreakoutGo watches the most traded KRW markets on Upbit, buys when the price
breaks above today's open plus K times yesterday's range, and exits on fixed
take-profit and stop-loss thresholds. All positions are closed at the daily reset.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.debug {
				log.SetFlags(log.LstdFlags | log.Lshortfile)
			}
			if cmd.Name() == "version" {
				return nil
			}
			mgr, err := config.NewManager(config.WithConfigDir(a.configDir))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.mgr = mgr
			return nil
		},
	}

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newCandidatesCmd(a))
	rootCmd.AddCommand(newTradesCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	// Global flags
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "Directory holding config.json (default: user config dir)")

	return rootCmd
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the trading loop",
		Long: `Start the trading loop and keep it running until interrupted.
Live mode places real orders and asks for confirmation unless --yes is given.
Example: breakoutgo run --paper --source yahoo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), a, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Paper, "paper", false, "Simulate orders against a paper account")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Skip the live trading confirmation")
	cmd.Flags().StringVar(&opts.Source, "source", "", "Market data source: upbit or yahoo (paper mode only)")
	cmd.Flags().DurationVar(&opts.Since, "since", 24*time.Hour, "Window of trades summarized on exit (0 shows all)")
	return cmd
}

func runBot(parent context.Context, a *app, opts runOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := a.mgr.Get()
	opts.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidateSecrets(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	settings, err := settingsFromConfig(cfg)
	if err != nil {
		return err
	}

	DisplayRunHeader(cfg)
	if cfg.Mode == config.ModeLive && !opts.Yes {
		ok, err := PromptForLiveConfirmation(cfg)
		if err != nil {
			return err
		}
		if !ok {
			DisplayInfo("Aborted, no orders were placed.")
			return nil
		}
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, cfg, settings.Location)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			log.Printf("⚠️ closing session: %v", err)
		}
	}()

	var current atomic.Pointer[trading.Settings]
	current.Store(&settings)
	if err := a.mgr.Watch(ctx, func(next config.Config) {
		opts.apply(&next)
		if next.Mode != cfg.Mode || next.MarketSource != cfg.MarketSource {
			display.DisplayWarning("mode and market source changes need a restart, keeping the rest")
			next.Mode, next.MarketSource = cfg.Mode, cfg.MarketSource
		}
		s, err := settingsFromConfig(next)
		if err != nil {
			log.Printf("⚠️ ignoring config reload: %v", err)
			return
		}
		current.Store(&s)
		log.Printf("🔄 strategy settings reloaded (K %s, SL %s, TP %s %s)",
			s.Params.K, s.Params.StopLoss, s.Params.TakeProfitMode, s.Params.TakeProfit)
	}); err != nil {
		log.Printf("⚠️ config hot reload disabled: %v", err)
	}

	engine := trading.New(sess.exchange,
		trading.WithSettings(func() trading.Settings { return *current.Load() }),
		trading.WithNotifier(sess.notifier),
		trading.WithJournal(sess.journal),
		trading.OnWatchlist(func(wl trading.Watchlist) {
			fmt.Println(display.WatchlistTable(wl, nil))
		}),
		trading.OnReset(sess.cache.Clear),
	)

	if err := engine.Run(ctx); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(display.HoldingsTable(engine.State(), cfg.QuoteCurrency))
	trades, buys := recentTrades(sess.journal, opts.Since, time.Now())
	fmt.Println(display.TradesTable(trades, settings.Location))
	deployed := decimal.Zero
	for _, b := range buys {
		deployed = deployed.Add(b.Amount)
	}
	DisplayInfo(fmt.Sprintf("%d entries, %s %s deployed", len(buys), display.FormatPrice(deployed), cfg.QuoteCurrency))
	DisplaySuccess(fmt.Sprintf("Stopped. Run %s recorded in %s", sess.runID, cfg.JournalPath))
	return nil
}

func newCandidatesCmd(a *app) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "Build the watch-list once and show breakout targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.mgr.Get()
			if source != "" {
				cfg.MarketSource = source
			}
			settings, err := settingsFromConfig(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			md := buildMarketData(cfg)
			fmt.Printf("🔍 Ranking %s markets by 24h traded value...\n", cfg.QuoteCurrency)
			wl, err := trading.BuildWatchlist(ctx, md, settings, trading.Watchlist{}, time.Now().In(settings.Location))
			if err != nil {
				display.DisplayWarning(err.Error())
			}
			prices, err := md.Prices(ctx, wl.Tickers)
			if err != nil {
				display.DisplayWarning(fmt.Sprintf("prices unavailable: %v", err))
			}
			fmt.Println(display.WatchlistTable(wl, prices))
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Market data source: upbit or yahoo")
	return cmd
}

func newTradesCmd(a *app) *cobra.Command {
	var (
		since time.Duration
		limit int
		runs  bool
		csv   string
		redis bool
	)
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Show trades recorded in the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.mgr.Get()
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			if redis {
				return showRedisTrades(cmd.Context(), cfg, limit, loc)
			}
			store, err := sqlite.Open(cfg.JournalPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if runs {
				list, err := store.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				for _, r := range list {
					fmt.Printf("%s  %-6s %-6s %-8s started %s\n", r.ID, r.Mode, r.Exchange, r.Status, r.StartedAt)
				}
				return nil
			}

			recs, err := store.ListTrades(ctx, time.Now().Add(-since), limit)
			if err != nil {
				return err
			}
			if csv != "" {
				if err := journal.ExportCSV(csv, recs, loc); err != nil {
					return err
				}
				DisplaySuccess(fmt.Sprintf("Exported %d trades to %s", len(recs), csv))
				return nil
			}
			fmt.Println(display.TradesTable(recs, loc))
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Trailing window to show")
	cmd.Flags().IntVar(&limit, "limit", 200, "Maximum rows")
	cmd.Flags().BoolVar(&runs, "runs", false, "List bot runs instead of trades")
	cmd.Flags().BoolVar(&redis, "redis", false, "Read the most recent trades from the Redis mirror")
	cmd.Flags().StringVar(&csv, "csv", "", "Write the trades to this CSV file instead of printing them")
	return cmd
}

// showRedisTrades prints the newest trades mirrored to Redis by any running bot.
func showRedisTrades(ctx context.Context, cfg config.Config, limit int, loc *time.Location) error {
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis mirror is not configured (set redis.addr)")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sink, err := redisstore.New(ctx, redisstore.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Key:      cfg.Redis.Key,
		Channel:  cfg.Redis.Channel,
	})
	if err != nil {
		return err
	}
	defer sink.Close()

	recs, err := sink.Recent(ctx, int64(limit))
	if err != nil {
		return err
	}
	fmt.Println(display.TradesTable(recs, loc))
	return nil
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("BreakoutGo %s\n", Version)
			fmt.Println("Volatility breakout trading bot for Upbit")
		},
	}
}

// newConfigCmd creates the config command
func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "Show, validate and edit the BreakoutGo configuration. Edits are picked up by a running bot.",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(a.mgr)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.mgr.Get()
			return validateConfig(&cfg)
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Reset the config file to defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				ok, err := PromptForOverwrite(a.mgr.Path())
				if err != nil || !ok {
					return err
				}
			}
			defaults := config.DefaultConfigWithRoot(configRoot(a.mgr))
			if err := a.mgr.Update(*defaults); err != nil {
				return err
			}
			DisplaySuccess(fmt.Sprintf("Wrote defaults to %s", a.mgr.Path()))
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Do not ask before overwriting")
	configCmd.AddCommand(initCmd)

	configCmd.AddCommand(&cobra.Command{
		Use:   "get KEY",
		Short: "Print one strategy setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.mgr.Get()
			v, err := GetConfigValue(&cfg, args[0])
			if err != nil {
				return fmt.Errorf("%w (keys: %v)", err, ListAvailableKeys())
			}
			fmt.Println(v)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one strategy setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.mgr.Get()
			if err := SetConfigValue(&cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := a.mgr.Update(cfg); err != nil {
				return err
			}
			DisplaySuccess(fmt.Sprintf("%s = %s", args[0], args[1]))
			return nil
		},
	})

	return configCmd
}

func configRoot(mgr *config.Manager) string {
	return filepath.Dir(mgr.Path())
}

// showConfig displays the current configuration
func showConfig(mgr *config.Manager) error {
	cfg := mgr.Get()
	fmt.Println("📋 Current BreakoutGo Configuration:")
	fmt.Println("═══════════════════════════════════════")
	fmt.Printf("Config File:          %s\n", mgr.Path())
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	fmt.Println()

	fmt.Println("🔌 Secrets:")
	fmt.Println("─────────────────────")
	fmt.Printf("Upbit keys:           %s\n", configured(cfg.UpbitAccessKey != "" && cfg.UpbitSecretKey != ""))
	fmt.Printf("Discord webhook:      %s\n", configured(cfg.DiscordWebhookURL != ""))
	return nil
}

func configured(ok bool) string {
	if ok {
		return "✅ Configured"
	}
	return "❌ Not configured"
}

// validateConfig validates the configuration and secrets
func validateConfig(cfg *config.Config) error {
	fmt.Println("🔍 Validating BreakoutGo Configuration...")
	fmt.Println("═══════════════════════════════════════")

	fmt.Print("📁 Checking directories... ")
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Println("❌")
		return fmt.Errorf("directory validation failed: %w", err)
	}
	fmt.Println("✅")

	fmt.Print("⚙️  Checking configuration values... ")
	if err := cfg.Validate(); err != nil {
		fmt.Println("❌")
		return err
	}
	fmt.Println("✅")

	fmt.Print("🔑 Checking secrets... ")
	if err := cfg.ValidateSecrets(); err != nil {
		fmt.Println("❌")
		return err
	}
	fmt.Println("✅")

	fmt.Println()
	fmt.Println("💡 Tips:")
	fmt.Println("  • Set UPBIT_ACCESS_KEY, UPBIT_SECRET_KEY and DISCORD_WEBHOOK_URL in .env for live mode")
	fmt.Println("  • Use 'breakoutgo run --paper' to try the strategy without real orders")
	return nil
}
