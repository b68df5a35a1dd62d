package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/scalper/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage engine configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  scalper config init -o scalper.yaml
  scalper config validate -f scalper.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Long: `Create a new configuration file with default settings.
The format follows the extension: .json writes JSON, anything else YAML.

Example:
  scalper config init -o scalper.yaml`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check if a configuration file is valid and can be loaded.

Example:
  scalper config validate -f scalper.yaml`,
	RunE: runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "scalper.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file and run with:")
	fmt.Printf("  scalper run -c %s --bars <m1.csv>\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Symbol: %s\n", cfg.Symbol)
	fmt.Printf("  Account: %s ($%.2f %s)\n", cfg.Account.ID, cfg.Account.Balance, cfg.Account.Currency)
	fmt.Printf("  Risk: %.2f%% per trade, %.1f%% daily loss, %d trades/day\n",
		cfg.Risk.RiskPercent, cfg.Risk.MaxDailyLossPercent, cfg.Risk.MaxTradesPerDay)
	fmt.Printf("  Stops: %s\n", cfg.Stops.Mode)
	fmt.Printf("  Shadow mode: %t\n", cfg.Engine.ShadowMode)
	fmt.Printf("  Journal: %s\n", cfg.Journal.Type)
	return nil
}
