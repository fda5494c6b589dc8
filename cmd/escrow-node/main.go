package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"energytrade.dev/settle/covenant"
	"energytrade.dev/settle/crypto"
	"energytrade.dev/settle/node"
	"energytrade.dev/settle/node/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// loadConfig resolves defaults, then the optional YAML file, then any flag
// given explicitly on the command line.
func loadConfig(args []string, stderr io.Writer) (node.Config, bool, error) {
	defaults := node.DefaultConfig()
	fs := flag.NewFlagSet("escrow-node", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var flagged node.Config
	configPath := fs.String("config", "", "YAML config file")
	fs.StringVar(&flagged.Network, "network", defaults.Network, "network name (devnet/testnet/mainnet)")
	fs.StringVar(&flagged.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.StringVar(&flagged.BindAddr, "bind", defaults.BindAddr, "HTTP bind address host:port")
	fs.StringVar(&flagged.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	fs.StringVar(&flagged.LogFormat, "log-format", defaults.LogFormat, "log format: text|json")
	fs.IntVar(&flagged.RateLimitPerMinute, "rate-limit", defaults.RateLimitPerMinute, "API requests per minute per client")
	fs.IntVar(&flagged.RateLimitBurst, "rate-burst", defaults.RateLimitBurst, "API burst size per client")
	fs.BoolVar(&flagged.CancelRequiresMinimumEnergy, "cancel-requires-min-energy", defaults.CancelRequiresMinimumEnergy, "apply the energy minimum to cancel")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return node.Config{}, false, err
	}

	cfg := defaults
	if *configPath != "" {
		fromFile, err := node.LoadConfigFile(*configPath, defaults)
		if err != nil {
			return node.Config{}, false, err
		}
		cfg = fromFile
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "network":
			cfg.Network = flagged.Network
		case "datadir":
			cfg.DataDir = flagged.DataDir
		case "bind":
			cfg.BindAddr = flagged.BindAddr
		case "log-level":
			cfg.LogLevel = flagged.LogLevel
		case "log-format":
			cfg.LogFormat = flagged.LogFormat
		case "rate-limit":
			cfg.RateLimitPerMinute = flagged.RateLimitPerMinute
		case "rate-burst":
			cfg.RateLimitBurst = flagged.RateLimitBurst
		case "cancel-requires-min-energy":
			cfg.CancelRequiresMinimumEnergy = flagged.CancelRequiresMinimumEnergy
		}
	})
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	return cfg, *dryRun, node.ValidateConfig(cfg)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, dryRun, err := loadConfig(args, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}
	if err := printConfig(stdout, cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "config encode failed: %v\n", err)
		return 1
	}
	if dryRun {
		return 0
	}

	logger, err := node.NewLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "logger init failed: %v\n", err)
		return 2
	}
	db, err := store.Open(cfg.DataDir, cfg.Network)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "store open failed: %v\n", err)
		return 2
	}
	defer func() { _ = db.Close() }()

	records, err := db.LoadRecords()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "store load failed: %v\n", err)
		return 2
	}
	logger.WithFields(map[string]any{
		"network":      cfg.Network,
		"live_records": len(records),
		"clock_height": db.Manifest().ClockHeight,
	}).Info("ledger opened")

	ledger := node.NewLedger(db, crypto.StdProvider{}, covenant.TradePolicy{
		CancelRequiresMinimumEnergy: cfg.CancelRequiresMinimumEnergy,
	}, logger)
	if err := node.NewServer(ledger, cfg, logger).Serve(ctx, cfg.BindAddr); err != nil {
		logger.WithError(err).Error("server stopped")
		return 1
	}
	logger.Info("escrow-node stopped")
	return 0
}

func printConfig(w io.Writer, cfg node.Config) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
