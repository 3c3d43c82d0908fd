package command

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewTrendingCmd creates the trending command group.
func NewTrendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trending",
		Short: "Inspect and maintain trending scores",
	}
	cmd.AddCommand(newTrendingListCmd(), newTrendingRefreshCmd())
	return cmd
}

func newTrendingListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the current trending page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				limit = ctx.Env.Feed.PageSize()
			}

			timeout, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			threads, err := ctx.Env.Feed.Snapshot(timeout, limit)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), threads)
			}
			out := cmd.OutOrStdout()
			if len(threads) == 0 {
				fmt.Fprintln(out, "No trending threads.")
				return nil
			}
			for i, t := range threads {
				fmt.Fprintf(out, "%2d. %8.2f  %-40s replies=%d upvotes=%d views=%d\n",
					i+1, t.Score, truncate(t.Title, 40), t.RepliesCount, t.UpvotesCount, t.ViewsCount)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 0, "page size (defaults to the configured trending page size)")
	return cmd
}

func newTrendingRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Recompute and store trending scores for all active threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			updated, err := ctx.Env.Refresher.Refresh(cmd.Context())
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"updated": updated})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated trending scores for %d threads\n", updated)
			return nil
		},
	}
}
