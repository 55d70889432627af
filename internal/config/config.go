// Package config loads the engine configuration from a YAML file with
// environment variable overrides.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the trading engine.
type Config struct {
	Storage Storage `yaml:"storage"`
	Kite    Kite    `yaml:"kite"`
	Alpaca  Alpaca  `yaml:"alpaca"`
	Polling Polling `yaml:"polling"`
	Venue   Venue   `yaml:"venue"`
	Logging Logging `yaml:"logging"`
}

// Storage holds paths for persisted state.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
	TxLogPath  string `yaml:"txlog_path"`
	DataDir    string `yaml:"data_dir"` // parquet historical bars, when present
}

// Kite holds endpoints and limits for the Kite Connect REST API.
type Kite struct {
	BaseURL         string `yaml:"base_url"`
	InstrumentsURL  string `yaml:"instruments_url"`
	QuoteRatePerMin int    `yaml:"quote_rate_per_min"`
}

// Alpaca holds the endpoint for US accounts traded through the Alpaca SDK.
type Alpaca struct {
	BaseURL string `yaml:"base_url"`
}

// Polling controls the two background loops. Intervals are in seconds.
type Polling struct {
	QuoteIntervalSecs int `yaml:"quote_interval_secs"`
	QuoteBackoffSecs  int `yaml:"quote_backoff_secs"`
	EvalIntervalSecs  int `yaml:"eval_interval_secs"`
	EvalBackoffSecs   int `yaml:"eval_backoff_secs"`
	SeriesLength      int `yaml:"series_length"`
}

// Venue defines the trading-hours window that gates strategy evaluation.
type Venue struct {
	MarketOpen  string `yaml:"market_open"`  // "09:15"
	MarketClose string `yaml:"market_close"` // "15:30"
	Timezone    string `yaml:"timezone"`     // IANA name
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it,
// applies environment variable overrides, and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a configuration with all defaults applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STRATAGEM_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("STRATAGEM_TXLOG_PATH"); v != "" {
		cfg.Storage.TxLogPath = v
	}
	if v := os.Getenv("STRATAGEM_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("KITE_BASE_URL"); v != "" {
		cfg.Kite.BaseURL = v
	}
	if v := os.Getenv("KITE_INSTRUMENTS_URL"); v != "" {
		cfg.Kite.InstrumentsURL = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STRATAGEM_QUOTE_INTERVAL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Polling.QuoteIntervalSecs = n
		}
	}
}

// applyDefaults fills zero-valued fields with the engine defaults: 5s
// quote ticks with a 10s backoff, 60s evaluation ticks.
func applyDefaults(cfg *Config) {
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "stratagem.db"
	}
	if cfg.Storage.TxLogPath == "" {
		cfg.Storage.TxLogPath = "transactions.log"
	}
	if cfg.Kite.BaseURL == "" {
		cfg.Kite.BaseURL = "https://api.kite.trade"
	}
	if cfg.Kite.InstrumentsURL == "" {
		cfg.Kite.InstrumentsURL = "https://api.kite.trade/instruments"
	}
	if cfg.Kite.QuoteRatePerMin == 0 {
		cfg.Kite.QuoteRatePerMin = 180
	}
	if cfg.Polling.QuoteIntervalSecs == 0 {
		cfg.Polling.QuoteIntervalSecs = 5
	}
	if cfg.Polling.QuoteBackoffSecs == 0 {
		cfg.Polling.QuoteBackoffSecs = 10
	}
	if cfg.Polling.EvalIntervalSecs == 0 {
		cfg.Polling.EvalIntervalSecs = 60
	}
	if cfg.Polling.EvalBackoffSecs == 0 {
		cfg.Polling.EvalBackoffSecs = 10
	}
	if cfg.Polling.SeriesLength == 0 {
		cfg.Polling.SeriesLength = 100
	}
	if cfg.Venue.MarketOpen == "" {
		cfg.Venue.MarketOpen = "09:15"
	}
	if cfg.Venue.MarketClose == "" {
		cfg.Venue.MarketClose = "15:30"
	}
	if cfg.Venue.Timezone == "" {
		cfg.Venue.Timezone = "Asia/Kolkata"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
