package command

import (
	"fmt"
	"time"

	"github.com/forumpulse/internal/service"
	"github.com/spf13/cobra"
)

// NewVisitsCmd creates the visits command group.
func NewVisitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visits",
		Short: "Read and record daily visit counters",
	}
	cmd.AddCommand(newVisitsGetCmd(), newVisitsCountCmd())
	return cmd
}

func newVisitsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [scope]",
		Short: "Print the aggregate count for a scope (defaults to visits.scope)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			scope := scopeArg(ctx, args)
			count, err := ctx.Env.Counter.Count(cmd.Context(), scope)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"scope": scope, "count": count})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", scope, count)
			return nil
		},
	}
}

func newVisitsCountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count [scope]",
		Short: "Count a visit for an actor, at most once per calendar day",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, _ := cmd.Flags().GetString("uid")
			email, _ := cmd.Flags().GetString("email")
			if uid == "" {
				return writeCommandError(cmd, fmt.Errorf("--uid is required"))
			}

			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			gate := ctx.Env.Gate
			if raw, _ := cmd.Flags().GetString("date"); raw != "" {
				day, err := time.ParseInLocation(time.DateOnly, raw, ctx.Config.Location())
				if err != nil {
					return writeCommandError(cmd, fmt.Errorf("invalid --date %q: %w", raw, err))
				}
				gate = gate.WithClock(func() time.Time { return day.Add(12 * time.Hour) })
			}

			result, err := gate.Count(cmd.Context(), service.Actor{ID: uid, Email: email}, scopeArg(ctx, args))
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			switch result.Status {
			case service.VisitCounted:
				fmt.Fprintf(cmd.OutOrStdout(), "Counted %s (total %d)\n", result.Key, result.Count)
			case service.VisitAlreadyCounted:
				fmt.Fprintf(cmd.OutOrStdout(), "Already counted %s\n", result.Key)
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "Skipped")
			}
			return nil
		},
	}
	cmd.Flags().String("uid", "", "actor id")
	cmd.Flags().String("email", "", "actor email (excluded emails are skipped)")
	cmd.Flags().String("date", "", "count as of this calendar day (YYYY-MM-DD)")
	return cmd
}

// scopeArg 返回显式传入的作用域，未传时使用配置的 visits.scope。
func scopeArg(ctx *CommandContext, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ctx.Config.VisitScope
}

// NewMarksCmd creates the marks command group.
func NewMarksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marks",
		Short: "Maintain daily visit marks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired visit marks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if ctx.Env.Pruner == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Mark store expires entries on its own; nothing to prune")
				return nil
			}
			removed, err := ctx.Env.Pruner.Prune(cmd.Context(), time.Now())
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), map[string]int64{"removed": removed})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired marks\n", removed)
			return nil
		},
	})
	return cmd
}
