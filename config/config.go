// Package config loads the service configuration from a YAML or JSON file
// and overlays environment variables. Secrets (Twilio credentials) come
// only from the environment, never from the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Account   AccountConfig   `json:"account" yaml:"account"`
	Simulator SimulatorConfig `json:"simulator" yaml:"simulator"`
	Bridge    BridgeConfig    `json:"bridge" yaml:"bridge"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// AccountConfig contains simulated account initialization parameters
type AccountConfig struct {
	Currency       string  `json:"currency" yaml:"currency" envconfig:"ACCOUNT_CURRENCY"`
	Leverage       int     `json:"leverage" yaml:"leverage" envconfig:"ACCOUNT_LEVERAGE"`
	InitialBalance float64 `json:"initial_balance" yaml:"initial_balance" envconfig:"ACCOUNT_INITIAL_BALANCE"`
}

// SimulatorConfig contains ledger and monitor parameters
type SimulatorConfig struct {
	StateFile    string `json:"state_file" yaml:"state_file" envconfig:"SIM_STATE_FILE"`
	TicketBase   int64  `json:"ticket_base,omitempty" yaml:"ticket_base,omitempty"`
	ScanInterval string `json:"scan_interval" yaml:"scan_interval" envconfig:"SIM_SCAN_INTERVAL"` // e.g., "5s", "1m"
}

// Interval parses the scan interval string
func (s SimulatorConfig) Interval() (time.Duration, error) {
	if s.ScanInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(s.ScanInterval)
}

// BridgeConfig points at the terminal bridge
type BridgeConfig struct {
	URL string `json:"url" yaml:"url" envconfig:"BRIDGE_URL"`
}

// ServerConfig contains the listen address for the client-facing endpoint
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" envconfig:"SERVER_ADDR"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type   string `json:"type" yaml:"type" envconfig:"JOURNAL_TYPE"` // "sqlite" or "none"
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty" envconfig:"JOURNAL_DB_PATH"`
}

// LogConfig controls logger construction
type LogConfig struct {
	Level string `json:"level" yaml:"level" envconfig:"LOG_LEVEL"` // "debug", "info", "warn", "error"
	Env   string `json:"env" yaml:"env" envconfig:"LOG_ENV"`       // "development" or "production"
}

// LoadFromFile loads configuration from a file (JSON or YAML based on
// content), then overlays environment variables
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Load builds the configuration from defaults and environment only
func Load() (*Config, error) {
	cfg := Default()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Leverage <= 0 {
		return fmt.Errorf("account.leverage must be positive")
	}
	if c.Account.InitialBalance <= 0 {
		return fmt.Errorf("account.initial_balance must be positive")
	}
	if c.Simulator.StateFile == "" {
		return fmt.Errorf("simulator.state_file is required")
	}
	if d, err := c.Simulator.Interval(); err != nil {
		return fmt.Errorf("simulator.scan_interval: %w", err)
	} else if c.Simulator.ScanInterval != "" && d <= 0 {
		return fmt.Errorf("simulator.scan_interval must be positive")
	}
	if c.Bridge.URL == "" {
		return fmt.Errorf("bridge.url is required")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Journal.Type != "sqlite" && c.Journal.Type != "none" {
		return fmt.Errorf("journal.type must be 'sqlite' or 'none'")
	}
	if c.Journal.Type == "sqlite" && c.Journal.DBPath == "" {
		return fmt.Errorf("journal db_path required for SQLite type")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			Currency:       "USD",
			Leverage:       100,
			InitialBalance: 10000,
		},
		Simulator: SimulatorConfig{
			StateFile:    "./simulator_state.json",
			ScanInterval: "5s",
		},
		Bridge: BridgeConfig{
			URL: "ws://localhost:8765",
		},
		Server: ServerConfig{
			Addr: ":8766",
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./journal.db",
		},
		Log: LogConfig{
			Level: "info",
			Env:   "production",
		},
	}
}
