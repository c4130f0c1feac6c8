package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mtsim/config"
)

var rootCmd = &cobra.Command{
	Use:   "mtsim",
	Short: "A trading simulator that mirrors a live terminal bridge",
	Long: `mtsim keeps a simulated position ledger alongside a live MetaTrader
bridge connection. Clients speak the same WebSocket protocol in both
modes; a single switch routes orders to the simulator or the terminal.

It provides:
  - Simulated order execution filled from live quotes
  - FX-correct P/L from broker tick parameters
  - Automatic stop-loss / take-profit monitoring with SMS alerts
  - A persistent trade journal and state file`,
}

var cfgFile string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "f", "", "path to config file (YAML or JSON)")
}

// loadConfig reads .env, then the config file if one was given, otherwise
// defaults plus environment.
func loadConfig() (*config.Config, error) {
	// Missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if cfgFile != "" {
		return config.LoadFromFile(cfgFile)
	}
	return config.Load()
}

// newLogger builds the zap logger described by the config.
func newLogger(cfg config.LogConfig) (*zap.SugaredLogger, error) {
	var zcfg zap.Config
	if cfg.Env == "development" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}
