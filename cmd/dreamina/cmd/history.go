package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/dreamina/pkg/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently submitted jobs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of entries to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	s := openHistory()
	if s == nil {
		return fmt.Errorf("history is disabled (history_driver=%s)", settings.HistoryDriver)
	}
	defer s.Close()

	entries, err := s.List(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if entries == nil {
		entries = []store.Entry{}
	}

	return render(cmd.OutOrStdout(), entries, func(t *tablewriter.Table) {
		t.Header("Handle", "Kind", "State", "Prompt", "Result", "Created")
		for _, e := range entries {
			state := e.State
			if e.Reason != "" {
				state += ": " + e.Reason
			}
			t.Append(string(e.Handle), string(e.Kind), state, truncate(e.Prompt, 40),
				truncate(strings.Join(e.URLs, " "), 50), e.CreatedAt.Local().Format(time.DateTime))
		}
	})
}
