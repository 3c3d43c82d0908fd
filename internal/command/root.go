package command

import (
	"os"

	"github.com/forumpulse/internal/logger"
	"github.com/spf13/cobra"
)

const AppName = "forumctl"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "forumctl - operate the forum engagement store",
		Long:          "forumctl inspects and maintains visit counters, trending scores and forum metrics.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			logger.InitWithWriter(cmd.ErrOrStderr(), level, true)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "", "path to a config file (default ./config.yaml)")
	cmd.PersistentFlags().String("db", "", "override the sqlite database path")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")
	cmd.PersistentFlags().String("log-level", "warn", "log level for diagnostics on stderr")

	cmd.AddCommand(
		NewMetricsCmd(),
		NewTrendingCmd(),
		NewVisitsCmd(),
		NewMarksCmd(),
		NewAdminCmd(),
		NewSeedCmd(),
		NewTokenCmd(),
	)

	return cmd
}

func Execute() error {
	return NewRootCmd(Version).Execute()
}
