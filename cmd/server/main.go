package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatcast/internal/config"
	applog "github.com/vovakirdan/chatcast/internal/log"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	// A local .env only fills variables that are not already set.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	serve := newServeCmd(flags)
	root := &cobra.Command{
		Use:          "chatcast",
		Short:        "Single-room websocket chat server",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config file (default ./config.yaml or $CHATCAST_CONFIG_DEFAULT_PATH)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, newRelayCmd(flags), newWhoCmd(), newHistoryCmd(flags))
	return root
}

// loadConfig resolves configuration for commands and applies the persistent flags.
func loadConfig(flags *rootFlags, overrides config.Config) (config.Config, string, *zerolog.Logger, error) {
	bootstrap := applog.New(flags.logLevel)

	cfg, path, err := config.Load(bootstrap, flags.configPath)
	if err != nil {
		return cfg, path, bootstrap, err
	}
	overrides.LogLevel = flags.logLevel
	cfg.UpdateFrom(overrides)
	if err := cfg.Validate(); err != nil {
		return cfg, path, bootstrap, err
	}

	return cfg, path, applog.New(cfg.LogLevel), nil
}
