package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Mode string

const (
	ModeLive   Mode = "live"
	ModeDryRun Mode = "dry-run"
)

const (
	EnvAPIKey    = "CRYPTOCOM_API_KEY"
	EnvSecretKey = "CRYPTOCOM_SECRET_KEY"
)

type Config struct {
	Mode              Mode
	Instrument        string
	Quantity          decimal.Decimal
	ProfitPct         decimal.Decimal
	EpsilonUp         decimal.Decimal
	EpsilonDown       decimal.Decimal
	PriceTick         decimal.Decimal
	TradesLimit       int
	PollInterval      time.Duration
	ReconcileInterval time.Duration
	RequestTimeout    time.Duration
	BaseURL           string
	UserAgent         string
	KillSwitch        bool
	MaxNotional       decimal.Decimal
	Cooldown          time.Duration
	BlockOnOpenOrders bool
	DecisionsPath     string
	StatusAddr        string
	StatusOrigins     []string
	LogLevel          string
	LogFile           string
	Once              bool
	APIKey            string
	APISecret         string

	// Args holds positional arguments left after flag parsing.
	Args []string
}

// Load parses args (normally os.Args[1:]) on top of the defaults. Secrets
// come from the environment, seeded from a .env file when one exists.
func Load(args []string) (Config, error) {
	var cfg Config
	var mode string
	var origins string

	if err := loadDotEnv(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	fs := flag.NewFlagSet("cdcbot", flag.ContinueOnError)
	fs.StringVar(&mode, "mode", string(ModeLive), "run mode: live or dry-run")
	fs.StringVar(&cfg.Instrument, "instrument", "BTC_USDT", "instrument name")
	fs.TextVar(&cfg.Quantity, "quantity", decimal.RequireFromString("0.0001"), "order quantity")
	fs.TextVar(&cfg.ProfitPct, "profit", decimal.RequireFromString("0.01"), "profit percentage over the last buy price")
	fs.TextVar(&cfg.EpsilonUp, "epsilon-up", decimal.RequireFromString("0.0001"), "premium over market price for buys")
	fs.TextVar(&cfg.EpsilonDown, "epsilon-down", decimal.RequireFromString("0.0001"), "discount under market price for sells")
	fs.TextVar(&cfg.PriceTick, "price-tick", decimal.Zero, "price tick size, 0 disables rounding")
	fs.IntVar(&cfg.TradesLimit, "trades-limit", 50, "number of recent trades scanned for the last buy")
	fs.DurationVar(&cfg.PollInterval, "interval", 60*time.Second, "poll interval between strategy cycles")
	fs.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", 0, "open orders and balances refresh interval, 0 disables")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "HTTP request timeout")
	fs.StringVar(&cfg.BaseURL, "base-url", "https://api.crypto.com/exchange/v1", "exchange API base URL")
	fs.StringVar(&cfg.UserAgent, "user-agent", "cdcbot/1.0", "User-Agent header")
	fs.BoolVar(&cfg.KillSwitch, "kill-switch", false, "if true, never place orders")
	fs.TextVar(&cfg.MaxNotional, "max-notional", decimal.Zero, "max notional per order, 0 disables")
	fs.DurationVar(&cfg.Cooldown, "cooldown", 0, "minimum time between order submissions")
	fs.BoolVar(&cfg.BlockOnOpenOrders, "block-on-open-orders", false, "reject new orders while open orders exist")
	fs.StringVar(&cfg.DecisionsPath, "decisions-path", "decisions.ndjson", "path to decisions log, empty disables")
	fs.StringVar(&cfg.StatusAddr, "status-addr", "", "status server listen address, empty disables")
	fs.StringVar(&origins, "status-origins", "*", "comma separated CORS origins for the status server")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&cfg.LogFile, "log-file", "", "also write logs to this file")
	fs.BoolVar(&cfg.Once, "once", false, "run a single cycle and exit")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.Mode = Mode(mode)
	cfg.Instrument = strings.ToUpper(strings.TrimSpace(cfg.Instrument))
	cfg.StatusOrigins = splitList(origins)
	cfg.APIKey = os.Getenv(EnvAPIKey)
	cfg.APISecret = os.Getenv(EnvSecretKey)
	cfg.Args = fs.Args()

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// loadDotEnv sets variables from path without overriding ones already in
// the environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return godotenv.Load(path)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validate(cfg Config) error {
	if cfg.Mode != ModeLive && cfg.Mode != ModeDryRun {
		return fmt.Errorf("invalid mode: %s", cfg.Mode)
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return fmt.Errorf("%s and %s are required", EnvAPIKey, EnvSecretKey)
	}
	if cfg.Instrument == "" {
		return fmt.Errorf("instrument is required")
	}
	if !cfg.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be > 0")
	}
	if !cfg.ProfitPct.IsPositive() {
		return fmt.Errorf("profit must be > 0")
	}
	if cfg.EpsilonUp.IsNegative() || cfg.EpsilonDown.IsNegative() {
		return fmt.Errorf("epsilon-up and epsilon-down must be >= 0")
	}
	if cfg.EpsilonDown.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("epsilon-down must be < 1")
	}
	if cfg.PriceTick.IsNegative() {
		return fmt.Errorf("price-tick must be >= 0")
	}
	if cfg.TradesLimit <= 0 {
		return fmt.Errorf("trades-limit must be > 0")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	if cfg.ReconcileInterval < 0 {
		return fmt.Errorf("reconcile-interval must be >= 0")
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	if cfg.MaxNotional.IsNegative() {
		return fmt.Errorf("max-notional must be >= 0")
	}
	if cfg.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return fmt.Errorf("base-url must be an http(s) URL")
	}
	return nil
}
