/*
Package config loads runtime settings for the coin service.

SOURCES (later wins):
  1. Built-in defaults
  2. YAML file (-config)
  3. .env file, loaded into the process environment
  4. COINS_* environment variables
  5. Command-line flags (applied by cmd/server)

EXAMPLE FILE:
  listen: 127.0.0.1:8080
  db: ./data/coins.db
  allowed_origins: ["http://localhost:*"]
  shutdown_timeout: 5s
  reconcile_interval: 30s
  accrual:
    interval: 50s
    catch_up_after: 10s
    amount: 1
    autostart: true
  log:
    level: info
    format: json
*/
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/coin-rewards/coins"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvListen          = "COINS_LISTEN"
	EnvDB              = "COINS_DB"
	EnvLogLevel        = "COINS_LOG_LEVEL"
	EnvLogFormat       = "COINS_LOG_FORMAT"
	EnvAccrualInterval = "COINS_ACCRUAL_INTERVAL"
	EnvAutostart       = "COINS_AUTOSTART"
	EnvAllowedOrigins  = "COINS_ALLOWED_ORIGINS"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config is the complete service configuration.
type Config struct {
	Listen          string   `yaml:"listen"`
	DBPath          string   `yaml:"db"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	// ReconcileInterval is how often a ledger with an unpersisted balance
	// retries its write.
	ReconcileInterval Duration      `yaml:"reconcile_interval"`
	Accrual           AccrualConfig `yaml:"accrual"`
	Log               LogConfig     `yaml:"log"`
}

// AccrualConfig mirrors coins.AccrualConfig plus the autostart switch.
type AccrualConfig struct {
	Interval     Duration `yaml:"interval"`
	CatchUpAfter Duration `yaml:"catch_up_after"`
	Amount       int64    `yaml:"amount"`
	Autostart    *bool    `yaml:"autostart"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is supplied.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// Load reads the YAML file at path (if non-empty), applies environment
// overrides and defaults, and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are given) into the process environment. Variables already set are not
// overridden. A missing file is reported as an error the caller may ignore.
func LoadDotEnv(files ...string) error {
	return godotenv.Load(files...)
}

func applyEnv(cfg *Config) error {
	if v, ok := lookup(EnvListen); ok {
		cfg.Listen = v
	}
	if v, ok := lookup(EnvDB); ok {
		cfg.DBPath = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok {
		cfg.Log.Format = v
	}
	if v, ok := lookup(EnvAccrualInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAccrualInterval, err)
		}
		cfg.Accrual.Interval.Duration = d
	}
	if v, ok := lookup(EnvAutostart); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAutostart, err)
		}
		cfg.Accrual.Autostart = &b
	}
	if v, ok := lookup(EnvAllowedOrigins); ok {
		cfg.AllowedOrigins = splitList(v)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "coins.db"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	if cfg.ShutdownTimeout.Duration == 0 {
		cfg.ShutdownTimeout.Duration = 5 * time.Second
	}
	if cfg.ReconcileInterval.Duration == 0 {
		cfg.ReconcileInterval.Duration = 30 * time.Second
	}
	d := coins.DefaultAccrualConfig()
	if cfg.Accrual.Interval.Duration == 0 {
		cfg.Accrual.Interval.Duration = d.Interval
	}
	if cfg.Accrual.CatchUpAfter.Duration == 0 {
		cfg.Accrual.CatchUpAfter.Duration = d.CatchUpAfter
	}
	if cfg.Accrual.Amount == 0 {
		cfg.Accrual.Amount = d.Amount
	}
	if cfg.Accrual.Autostart == nil {
		on := true
		cfg.Accrual.Autostart = &on
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen address must be set"))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db path must be set"))
	}
	if c.Accrual.Interval.Duration <= 0 {
		errs = append(errs, fmt.Errorf("accrual.interval must be positive, got %s", c.Accrual.Interval.Duration))
	}
	if c.Accrual.CatchUpAfter.Duration <= 0 {
		errs = append(errs, fmt.Errorf("accrual.catch_up_after must be positive, got %s", c.Accrual.CatchUpAfter.Duration))
	}
	if c.Accrual.Amount <= 0 {
		errs = append(errs, fmt.Errorf("accrual.amount must be positive, got %d", c.Accrual.Amount))
	}
	if c.ShutdownTimeout.Duration < 0 {
		errs = append(errs, errors.New("shutdown_timeout must not be negative"))
	}
	if c.ReconcileInterval.Duration < 0 {
		errs = append(errs, errors.New("reconcile_interval must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, text", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// AutostartEnabled reports whether accrual should start with the process.
func (c Config) AutostartEnabled() bool {
	return c.Accrual.Autostart == nil || *c.Accrual.Autostart
}

// CoinsAccrual converts the accrual section for coins.Options.
func (c Config) CoinsAccrual() coins.AccrualConfig {
	return coins.AccrualConfig{
		Interval:     c.Accrual.Interval.Duration,
		CatchUpAfter: c.Accrual.CatchUpAfter.Duration,
		Amount:       c.Accrual.Amount,
	}
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
