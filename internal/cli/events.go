package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentloop/agentloop/internal/config"
	"github.com/agentloop/agentloop/internal/db"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent pipeline events from the run event store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		root, err := projectRoot(cmd)
		if err != nil {
			return err
		}
		settings := config.Resolve(root, overridesFromFlags(cmd))
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := db.Open(db.DefaultPath(outputDirPath(root, settings)))
		if err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(); err != nil {
			return fmt.Errorf("migrate event store: %w", err)
		}

		events, err := store.RecentEvents(limit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events recorded.")
			return nil
		}
		for _, e := range events {
			line := fmt.Sprintf("%s  %-8s  iter=%d  %s", e.Timestamp, shortID(e.RunID), e.Iteration, e.Event)
			if e.Detail != "" {
				line += "  " + firstLine(e.Detail)
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

func init() {
	addConfigFlags(eventsCmd)
	eventsCmd.Flags().Int("limit", 20, "maximum events to show")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
