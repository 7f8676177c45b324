package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onnwee/streamwatch/streamer"
)

func newStreamersCommand(ctx *commandContext) *cobra.Command {
	streamersCmd := &cobra.Command{
		Use:   "streamers",
		Short: "Manage a user's tracked accounts",
	}

	streamersCmd.AddCommand(newStreamersAddCommand(ctx))
	streamersCmd.AddCommand(newStreamersListCommand(ctx))
	streamersCmd.AddCommand(newStreamersRemoveCommand(ctx))

	return streamersCmd
}

func newStreamersAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <user> <platform> <username>",
		Short: "Start tracking an account",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := streamer.ParsePlatform(args[1])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *streamer.Store) error {
				acct, err := store.Create(cmd.Context(), args[0], platform, args[2])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tracking %s/%s (id %s)\n", acct.Platform, acct.Username, acct.ID)
				return nil
			})
		},
	}
}

func newStreamersListCommand(ctx *commandContext) *cobra.Command {
	var liveOnly bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list <user>",
		Short: "List tracked accounts with refreshed live status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *streamer.Store) error {
				r, persister := ctx.reconciler(store)
				var (
					accounts []streamer.TrackedAccount
					err      error
				)
				if liveOnly {
					accounts, err = r.Live(cmd.Context(), args[0])
				} else {
					accounts, err = r.Scoped(cmd.Context(), args[0])
				}
				// Flush write-back before the database closes.
				if cerr := persister.Close(context.WithoutCancel(cmd.Context())); cerr != nil && err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}

				if asJSON {
					if accounts == nil {
						accounts = []streamer.TrackedAccount{}
					}
					return writeJSON(cmd, accounts)
				}
				if len(accounts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tracked accounts")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Platform", "Username", "Live", "Last Check"},
					accountRows(accounts),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&liveOnly, "live", false, "Only show accounts that are live")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func accountRows(accounts []streamer.TrackedAccount) [][]string {
	rows := make([][]string, 0, len(accounts))
	for _, a := range accounts {
		live := "no"
		if a.IsLive {
			live = "yes"
		}
		rows = append(rows, []string{a.ID, string(a.Platform), a.Username, live, formatTime(a.LastCheck)})
	}
	return rows
}

func newStreamersRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user> <id>",
		Short: "Stop tracking an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *streamer.Store) error {
				n, err := store.Delete(cmd.Context(), args[1], args[0])
				if err != nil {
					return err
				}
				if n == 0 {
					return fmt.Errorf("%w: %s", streamer.ErrNotFound, args[1])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d row(s)\n", n)
				return nil
			})
		},
	}
}
