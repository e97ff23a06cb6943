package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatcast/internal/app"
	"github.com/vovakirdan/chatcast/internal/config"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, logger, err := loadConfig(flags, overrides)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("failed to initialize app")
				return err
			}

			if err := config.Watch(logger, path, func(next config.Config) {
				next.UpdateFrom(overrides)
				if flags.logLevel != "" {
					next.LogLevel = flags.logLevel
				}
				application.Apply(next)
			}); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("config hot reload disabled")
			}

			logger.Info().
				Str("addr", cfg.Addr).
				Str("config", path).
				Str("subprotocol", cfg.Subprotocol).
				Str("frame_policy", cfg.FramePolicy).
				Str("storage_failure_policy", cfg.StorageFailurePolicy).
				Msg("starting chatcast server")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	f.DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	f.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	f.DurationVar(&overrides.WriteTimeout, "write-timeout", 0, "per-recipient send timeout")
	f.DurationVar(&overrides.IdleTimeout, "idle-timeout", 0, "close sessions silent for this long (0 disables)")
	f.StringVar(&overrides.DatabasePath, "db", "", "path to the SQLite message log")
	f.StringVar(&overrides.FramePolicy, "frame-policy", "", "binary frame handling: close or ignore")
	f.StringVar(&overrides.StorageFailurePolicy, "storage-failure-policy", "", "on log append failure: continue or close")
	return cmd
}
