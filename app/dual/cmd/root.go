package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/DomeenoH/dual/internal/config"
	"github.com/DomeenoH/dual/internal/logging"
)

var (
	cfg        config.Config
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "dual",
	Short: "Run discussion turns and apply their notepad edits",
	Long: `Dual drives single turns of a two-persona discussion against a hosted model,
extracts the notepad directives embedded in each reply and applies them to the
shared notepad document.`,
	PersistentPreRunE: loadRootConfig,
	SilenceUsage:      true,
}

func Execute() error {
	return rootCmd.Execute()
}

func loadRootConfig(cmd *cobra.Command, _ []string) error {
	// Load .env file
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	var err error
	cfg, err = config.Load(configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := logging.Configure(cfg.Logging.Level, cfg.Logging.Format, os.Stderr); err != nil {
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides configuration)")
}
