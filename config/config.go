package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int `yaml:"port"`
	ReadTimeoutMS     int `yaml:"read_timeout_ms"`
	WriteTimeoutMS    int `yaml:"write_timeout_ms"`
	ShutdownTimeoutMS int `yaml:"shutdown_timeout_ms"`
}

// GuardAction selects what the slippage guard does when a quote violates
// its limits.
type GuardAction string

const (
	GuardActionWait GuardAction = "wait" // wait and retry with a fresh quote
	GuardActionSkip GuardAction = "skip" // abort the task immediately
)

// GuardConfig defines the pre-trade slippage and liquidity checks applied
// before every order submission.
type GuardConfig struct {
	MaxSlippagePct float64     `yaml:"max_slippage_pct"`
	WaitMS         int         `yaml:"wait_ms"`
	MaxRetries     int         `yaml:"max_retries"`
	MinBookSizeUSD float64     `yaml:"min_book_size_usd"`
	Action         GuardAction `yaml:"action"`
}

// CopyConfig controls copy-trade sizing and detection.
type CopyConfig struct {
	Multiplier     float64 `yaml:"multiplier"`
	MinOrderUSDC   float64 `yaml:"min_order_usdc"`
	PollIntervalMS int     `yaml:"poll_interval_ms"`
	MaxTradeAgeMin int     `yaml:"max_trade_age_minutes"`
}

// ReconcileConfig controls the stale-position reconciliation pass.
type ReconcileConfig struct {
	TaskPauseMS int `yaml:"task_pause_ms"`
}

// Config aggregates all app configuration knobs.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Guard     GuardConfig     `yaml:"guard"`
	Copy      CopyConfig      `yaml:"copy"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// Load reads configuration from disk, falling back to defaults. Environment
// variables override the guard section last, so deployments can tune limits
// without shipping a new file.
func Load(path string) (*Config, error) {
	cfg := Default()

	configPath := path
	if configPath == "" {
		configPath = filepath.Join("config", "default.yaml")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.applyEnvOverrides()
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: unable to read %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: unable to parse %s: %w", configPath, err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return &cfg, nil
}

// Default returns baseline configuration values.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:              8081,
			ReadTimeoutMS:     10000,
			WriteTimeoutMS:    10000,
			ShutdownTimeoutMS: 5000,
		},
		Guard: GuardConfig{
			MaxSlippagePct: 1.0,
			WaitMS:         30000,
			MaxRetries:     20,
			MinBookSizeUSD: 5,
			Action:         GuardActionWait,
		},
		Copy: CopyConfig{
			Multiplier:     0.05,
			MinOrderUSDC:   1.0,
			PollIntervalMS: 2000,
			MaxTradeAgeMin: 5,
		},
		Reconcile: ReconcileConfig{
			TaskPauseMS: 250,
		},
	}
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.ReadTimeoutMS == 0 {
		c.Server.ReadTimeoutMS = def.Server.ReadTimeoutMS
	}
	if c.Server.WriteTimeoutMS == 0 {
		c.Server.WriteTimeoutMS = def.Server.WriteTimeoutMS
	}
	if c.Server.ShutdownTimeoutMS == 0 {
		c.Server.ShutdownTimeoutMS = def.Server.ShutdownTimeoutMS
	}

	if c.Guard.MaxSlippagePct == 0 {
		c.Guard.MaxSlippagePct = def.Guard.MaxSlippagePct
	}
	if c.Guard.WaitMS == 0 {
		c.Guard.WaitMS = def.Guard.WaitMS
	}
	if c.Guard.MaxRetries == 0 {
		c.Guard.MaxRetries = def.Guard.MaxRetries
	}
	if c.Guard.MinBookSizeUSD == 0 {
		c.Guard.MinBookSizeUSD = def.Guard.MinBookSizeUSD
	}
	if c.Guard.Action == "" {
		c.Guard.Action = def.Guard.Action
	}

	if c.Copy.Multiplier == 0 {
		c.Copy.Multiplier = def.Copy.Multiplier
	}
	if c.Copy.MinOrderUSDC == 0 {
		c.Copy.MinOrderUSDC = def.Copy.MinOrderUSDC
	}
	if c.Copy.PollIntervalMS == 0 {
		c.Copy.PollIntervalMS = def.Copy.PollIntervalMS
	}
	if c.Copy.MaxTradeAgeMin == 0 {
		c.Copy.MaxTradeAgeMin = def.Copy.MaxTradeAgeMin
	}

	if c.Reconcile.TaskPauseMS == 0 {
		c.Reconcile.TaskPauseMS = def.Reconcile.TaskPauseMS
	}
}

func (c *Config) applyEnvOverrides() {
	c.Guard.MaxSlippagePct = getEnvFloat("COPY_MAX_SLIPPAGE_PCT", c.Guard.MaxSlippagePct)
	c.Guard.WaitMS = getEnvInt("COPY_GUARD_WAIT_MS", c.Guard.WaitMS)
	c.Guard.MaxRetries = getEnvInt("COPY_GUARD_MAX_RETRIES", c.Guard.MaxRetries)
	c.Guard.MinBookSizeUSD = getEnvFloat("COPY_MIN_BOOK_SIZE_USD", c.Guard.MinBookSizeUSD)
	if action := os.Getenv("COPY_GUARD_ACTION"); action == string(GuardActionWait) || action == string(GuardActionSkip) {
		c.Guard.Action = GuardAction(action)
	}

	c.Copy.Multiplier = getEnvFloat("COPY_TRADER_MULTIPLIER", c.Copy.Multiplier)
	c.Copy.MinOrderUSDC = getEnvFloat("COPY_TRADER_MIN_USDC", c.Copy.MinOrderUSDC)
}

// getEnvFloat retrieves a float from environment or returns default.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvInt retrieves an int from environment or returns default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
