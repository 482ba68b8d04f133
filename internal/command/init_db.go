package command

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewInitDBCmd creates the init-db command.
func NewInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the message store tables in a local SQLite store",
		Long: `Create the tables the repair reads in a local SQLite store.

A Postgres store belongs to the server that owns it and is never modified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer a.Close()

			if err := a.db.CreateTables(); err != nil {
				return writeCommandError(cmd, err)
			}

			a.log.Info("tables created", zap.String("driver", a.db.Driver()))
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Tables created in %s\n", a.cfg.DatabaseURL)
			return nil
		},
	}
}
