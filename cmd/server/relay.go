package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatcast/internal/config"
	"github.com/vovakirdan/chatcast/internal/relay"
)

func newRelayCmd(flags *rootFlags) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Bridge line-oriented TCP clients to the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, logger, err := loadConfig(flags, overrides)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := relay.New(cfg, logger).Run(ctx); err != nil {
				logger.Error().Err(err).Msg("relay exited with error")
				return err
			}
			logger.Info().Msg("relay stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&overrides.Relay.Addr, "listen", "", "TCP listen address")
	cmd.Flags().StringVar(&overrides.Relay.Upstream, "upstream", "", "websocket URL of the chat server")
	return cmd
}
