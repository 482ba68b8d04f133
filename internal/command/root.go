package command

import (
	"os"

	"github.com/spf13/cobra"
)

const AppName = "fix-unreads"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   AppName + " [email...]",
		Short: "Repair stale unread flags",
		Long: `Repair stale unread flags for one or more users.

For every user, messages in streams they are no longer subscribed to are
marked read. Unread messages at or before the user's pointer, in streams
shown in their home view and in topics they have not muted, are reported
and, with --apply-pre-marker, marked read as well.

Each user is repaired in a single transaction: either every change for
that user is committed or none is.

Examples:
  fix-unreads iago@zulip.com --realm zulip
  fix-unreads iago@zulip.com hamlet@zulip.com --dry-run
  fix-unreads iago@zulip.com --apply-pre-marker --explain`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runFix,
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.Flags().StringP("realm", "r", "", "realm string_id the emails belong to (default: any realm)")
	cmd.Flags().Bool("apply-pre-marker", false, "mark unmuted messages before the pointer read (default: report only)")
	cmd.Flags().Bool("dry-run", false, "run every pass, report, then roll back")
	cmd.Flags().Bool("explain", false, "log the query plan of every analysis query")
	cmd.Flags().Bool("json", false, "print reports as JSON")

	cmd.AddCommand(
		NewServeCmd(),
		NewValidateConfigCmd(),
		NewInitDBCmd(),
		NewSeedDemoCmd(),
	)

	return cmd
}

func Execute() error {
	return NewRootCmd(Version).Execute()
}
