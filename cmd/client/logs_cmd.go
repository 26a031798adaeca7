package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/partvault/partvault/internal/client/handlers"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newLogsCmd())
}

func newLogsCmd() *cobra.Command {
	var maxResults int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cp, err := newControlPlaneClient(cmd)
			if err != nil {
				return err
			}

			var token int64
			for {
				var page handlers.LogsResponse
				resp, err := cp.R().
					SetContext(cmd.Context()).
					SetQueryParam("startingToken", strconv.FormatInt(token, 10)).
					SetQueryParam("maxResults", strconv.Itoa(maxResults)).
					SetSuccessResult(&page).
					Get("/v1/logs")
				if err := cpError(resp, err); err != nil {
					return err
				}

				for _, entry := range page.Logs {
					level := string(entry.Level)
					switch entry.Level {
					case handlers.LogLevelError:
						level = red.Render(level)
					case handlers.LogLevelWarn:
						level = yellow.Render(level)
					default:
						level = gray.Render(level)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", gray.Render(entry.Timestamp), level, entry.Message)
				}

				token = page.NextToken
				if page.HasMore {
					continue
				}
				if !follow {
					return nil
				}

				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(time.Second):
				}
			}
		},
	}

	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 100, "log lines per page")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep polling for new lines")

	return cmd
}
