package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yairfalse/kartta/internal/config"
	"github.com/yairfalse/kartta/internal/telemetry"
)

var (
	version = "0.1.0"

	configPath string
	logLevel   string
	logConsole bool

	// cfg is loaded before any subcommand runs.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "kartta",
		Short: "Cloud resource discovery",
		Long: `kartta - cloud resource discovery

kartta walks every enabled service in every region of an account, turns
each resource into a uniform envelope and hands the envelopes to one or
more sinks (stdout, a bolt file, NATS).`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`kartta {{.Version}}
`)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.toml, .yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&logConsole, "console", false, "Human readable logs on stderr")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("console") {
		cfg.Log.Console = logConsole
	}
	return telemetry.SetupLogging(cfg.Log.Level, cfg.Log.Console)
}
