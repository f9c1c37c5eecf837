package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mnemolabs/mnemo/internal/models"
	"github.com/mnemolabs/mnemo/internal/service"
)

var (
	feedBefore        string
	feedLimit         int
	feedIncludeFuture bool
	feedJSON          bool
)

var feedCmd = &cobra.Command{
	Use:   "feed <owner-id>",
	Short: "Show an owner's activity timeline",
	Long: `Show an owner's activity timeline, newest first: one aggregate row
per day, then that day's moments.

Pass the oldest date of a page as --before to fetch the next one.

Examples:
  mnemo feed alice
  mnemo feed alice --before 2026-08-01
  mnemo feed alice --include-future`,
	Args: cobra.ExactArgs(1),
	RunE: runFeed,
}

func init() {
	feedCmd.Flags().StringVar(&feedBefore, "before", "", "date watermark (YYYY-MM-DD), exclusive")
	feedCmd.Flags().IntVarP(&feedLimit, "limit", "n", 0, "max moment rows per page")
	feedCmd.Flags().BoolVar(&feedIncludeFuture, "include-future", false, "include future-dated rows (reminders)")
	feedCmd.Flags().BoolVar(&feedJSON, "json", false, "emit JSON")
}

func runFeed(cmd *cobra.Command, args []string) error {
	items, err := memory.Feed(context.Background(), service.FeedParams{
		OwnerID:       args[0],
		Limit:         feedLimit,
		BeforeDate:    feedBefore,
		IncludeFuture: feedIncludeFuture,
	})
	if err != nil {
		return err
	}

	if feedJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	for _, item := range items {
		switch item.Kind {
		case service.FeedKindDay:
			fmt.Printf("\n== %s  (%d messages, %d moments, %d sessions, %d tokens)\n",
				item.Date, item.Stats.MessageCount, item.Stats.MomentCount,
				item.Stats.SessionCount(), item.Stats.TotalTokens)
		case service.FeedKindMoment:
			summary := item.Moment.Summary
			if item.Moment.DecryptSkipped {
				summary = "(encrypted)"
			}
			fmt.Printf("  %-13s %s: %s\n",
				item.Moment.MomentType, item.Title, models.Truncate(summary, 80))
		}
	}
	if len(items) > 0 {
		fmt.Printf("\nNext page: --before %s\n", items[len(items)-1].Date)
	}
	return nil
}
