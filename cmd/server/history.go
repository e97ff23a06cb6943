package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatcast/internal/config"
	"github.com/vovakirdan/chatcast/internal/store"
	"github.com/vovakirdan/chatcast/internal/store/sqlite"
)

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var (
		overrides config.Config
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the newest entries of the message log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, _, err := loadConfig(flags, overrides)
			if err != nil {
				return err
			}

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open message log: %w", err)
			}
			defer st.Close()

			messages, err := st.ListMessages(cmd.Context(), limit)
			if err != nil {
				return err
			}
			total, err := st.CountMessages(cmd.Context())
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), messages, total)
			return nil
		},
	}

	cmd.Flags().StringVar(&overrides.DatabasePath, "db", "", "path to the SQLite message log")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of messages to print")
	return cmd
}

func renderHistory(out io.Writer, messages []*store.Message, total int64) {
	table := newTable(out, []string{"ID", "Time", "Username", "Text"})
	for _, m := range messages {
		table.Append([]string{
			fmt.Sprint(m.ID),
			time.UnixMilli(m.Timestamp).Format(time.DateTime),
			m.Username,
			m.Text,
		})
	}
	table.Render()
	_, _ = fmt.Fprintf(out, "%d of %d messages\n", len(messages), total)
}
