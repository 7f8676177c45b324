package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var dsnFlag string
	var configFlag string

	ctx := newCommandContext(&dsnFlag, &configFlag)

	rootCmd := &cobra.Command{
		Use:           "streamwatchctl",
		Short:         "Manage tracked streamers and live-status reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "Database DSN (defaults to DB_DSN)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (defaults to CONFIG_FILE)")

	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newStreamersCommand(ctx))
	rootCmd.AddCommand(newReconcileCommand(ctx))

	return rootCmd
}
