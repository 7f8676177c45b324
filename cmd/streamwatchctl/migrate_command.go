package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onnwee/streamwatch/db"
)

var errPostgresOnly = errors.New("versioned migrations are only tracked on postgres")

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(database *sql.DB, dialect db.Dialect) error {
				if err := db.Setup(database, dialect); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s)\n", dialect)
				return nil
			})
		},
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(database *sql.DB, dialect db.Dialect) error {
				if dialect != db.Postgres {
					return errPostgresOnly
				}
				version, dirty, err := db.GetMigrationVersion(database)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", version, dirty)
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every versioned migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(database *sql.DB, dialect db.Dialect) error {
				if dialect != db.Postgres {
					return errPostgresOnly
				}
				if err := db.MigrateDown(database); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations rolled back")
				return nil
			})
		},
	})

	return migrateCmd
}
