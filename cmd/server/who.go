package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	transporthttp "github.com/vovakirdan/chatcast/internal/transport/http"
)

func newWhoCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "who",
		Short: "List the sessions connected to a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet,
				strings.TrimRight(server, "/")+"/api/sessions", nil)
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("query sessions: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("query sessions: unexpected status %s", resp.Status)
			}

			var body transporthttp.SessionsResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("decode sessions: %w", err)
			}
			renderSessions(cmd.OutOrStdout(), body)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://127.0.0.1:8000", "base URL of the chat server")
	return cmd
}

func renderSessions(out io.Writer, body transporthttp.SessionsResponse) {
	table := newTable(out, []string{"ID", "Username", "State"})
	for _, s := range body.Sessions {
		table.Append([]string{s.ID, s.Username, s.State})
	}
	table.Render()
	_, _ = fmt.Fprintf(out, "%d connected\n", body.Count)
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}
