package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/scalper/config"
	"github.com/rustyeddy/scalper/logging"
)

var rootCmd = &cobra.Command{
	Use:   "scalper",
	Short: "Signal and risk engine for an M1/M5 scalping bot",
	Long: `Scalper turns closed M1 and M5 bars into gated, sized market orders.

It provides tools for:
  - Replaying bar files through the full signal, risk and execution pipeline
  - Running a synthetic demo in shadow or live mode
  - Generating and validating configuration files
  - Journaling every decision to CSV or SQLite
  - Exposing decision metrics for Prometheus

The config file is taken from --config, then $SCALPER_CONFIG, then defaults.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnv,
}

var (
	cfgFile  string
	envFile  string
	logLevel string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

// loadEnv reads the dotenv file when it exists. A missing file is fine.
func loadEnv(cmd *cobra.Command, args []string) error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); err != nil {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

// loadConfig resolves the config file and applies environment overrides.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("SCALPER_CONFIG")
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	if v := os.Getenv("SCALPER_SYMBOL"); v != "" {
		cfg.Symbol = v
	}
	if v := os.Getenv("SCALPER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SCALPER_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("SCALPER_JOURNAL_DB"); v != "" {
		cfg.Journal.Type = "sqlite"
		cfg.Journal.DBPath = v
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	if cfg.Log.Console {
		return logging.NewConsole(cfg.Log.Level, w)
	}
	return logging.New(cfg.Log.Level, w)
}
