package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"outreach/internal/config"
	"outreach/internal/dispatch"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// An aborted campaign exits distinguishably from ordinary errors.
		if errors.Is(err, dispatch.ErrAborted) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "outreach",
	Short: "Outreach - throttled outreach campaigns",
	Long: `Outreach runs throttled, resumable outreach campaigns: email sends and
social follows, one action at a time, under hourly and daily quota limits,
with progress persisted so a stopped run resumes without duplicates.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Credentials live in .env; missing file is fine.
		godotenv.Load()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("outreach version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(sendCmd, followCmd, progressCmd, configCmd, versionCmd)
}

// loadConfig loads the configured file, or defaults when none is given.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Contacts: %s\n", cfg.Files.Contacts)
	fmt.Printf("  Email: %d-%ds delay, %d/hour, %d/day\n",
		cfg.Email.MinDelaySeconds, cfg.Email.MaxDelaySeconds, cfg.Email.MaxPerHour, cfg.Email.MaxPerDay)
	fmt.Printf("  Follow: %d-%ds delay, %d/hour, %d/day\n",
		cfg.Follow.MinDelaySeconds, cfg.Follow.MaxDelaySeconds, cfg.Follow.MaxPerHour, cfg.Follow.MaxPerDay)
	fmt.Printf("  SMTP: %s:%d\n", cfg.SMTP.Host, cfg.SMTP.Port)

	return nil
}
