package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/onnwee/streamwatch/streamer"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Refresh live status for every tracked twitch account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *streamer.Store) error {
				r, persister := ctx.reconciler(store)
				defer func() { _ = persister.Close(context.WithoutCancel(cmd.Context())) }()

				res, err := r.Global(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, res)
				}
				rows := [][]string{
					{"Accounts", strconv.Itoa(res.Accounts)},
					{"Checked", strconv.Itoa(res.Checked)},
					{"Live", strconv.Itoa(res.Live)},
					{"Rows updated", strconv.FormatInt(res.RowsUpdated, 10)},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
