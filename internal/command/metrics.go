package command

import (
	"fmt"
	"io"

	"github.com/forumpulse/internal/service"
	"github.com/spf13/cobra"
)

// NewMetricsCmd creates the metrics command.
func NewMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print forum health metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			snapshot, err := ctx.Env.Metrics.Snapshot(cmd.Context())
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), snapshot)
			}
			printMetrics(cmd.OutOrStdout(), snapshot)
			return nil
		},
	}
}

func printMetrics(out io.Writer, s service.MetricsSnapshot) {
	fmt.Fprintf(out, "Threads:            %d (%d in the last 7 days)\n", s.TotalThreads, s.ThreadsLast7Days)
	fmt.Fprintf(out, "Resolved:           %d\n", s.ResolvedThreads)
	fmt.Fprintf(out, "Unresolved:         %d (%.1f%%)\n", s.UnresolvedThreads, s.UnresolvedPct)
	fmt.Fprintf(out, "Without replies:    %d (%.1f%%)\n", s.NoReplyThreads, s.NoReplyPct)
	fmt.Fprintf(out, "Avg replies/thread: %.2f\n", s.AvgRepliesPerThread)
	fmt.Fprintf(out, "Avg views/thread:   %.2f\n", s.AvgViewsPerThread)

	printSummaries(out, "Most active", s.TopActive)
	printSummaries(out, "Newest this week", s.NewestThisWeek)
	printSummaries(out, "Unanswered", s.Unanswered)
}

func printSummaries(out io.Writer, title string, items []service.ThreadSummary) {
	fmt.Fprintf(out, "\n%s:\n", title)
	if len(items) == 0 {
		fmt.Fprintln(out, "  (none)")
		return
	}
	for _, item := range items {
		fmt.Fprintf(out, "  %-36s %-40s replies=%d views=%d\n", item.ID, truncate(item.Title, 40), item.RepliesCount, item.ViewsCount)
	}
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
