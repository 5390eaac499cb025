package spyglass

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spyglass-browser/spyglass/pkg/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [query]",
	Short: "Search the browsing history",
	Long: `History searches the local browsing history by URL or title.
Without a query it prints the most recent entries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.New(cfg.Store.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = st.Close() }()

		ctx := cmd.Context()

		var entries []store.HistoryEntry
		if len(args) == 0 {
			entries, err = st.RecentHistory(ctx, historyLimit)
		} else {
			entries, err = st.SearchHistory(ctx, strings.Join(args, " "), historyLimit)
		}
		if err != nil {
			return fmt.Errorf("history lookup failed: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No history entries found.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %-40s  %s\n",
				e.VisitedAt.Format("2006-01-02 15:04"), e.Title, e.URL)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum entries to show")
}
