package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/dispatch/internal/config"
	"github.com/aretw0/dispatch/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch turns operator requests into safe fleet actions",
	Long: `Dispatch resolves natural-language requests such as "cancel the 8am Airport Express"
into actions on trips, vehicles and drivers. Risky actions ask for confirmation,
creation actions run a step-by-step wizard, and unclear requests offer options.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			loaded.Log.Level = level
		}
		lvl, err := logging.ParseLevel(loaded.Log.Level)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.NewWithFormat(cmd.ErrOrStderr(), lvl, loaded.Log.Format)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error)")
}
