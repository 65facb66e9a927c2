package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func inventoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inventory",
		Short: "Show the clan inventory by category",
		Long: `Show every item in the bank grouped by category, how full it is against its
storage limit, and who deposited it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			return withApp(ctx, func(a *app) error {
				lines, err := a.engine.Inventory(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.render.Inventory(lines))
				return nil
			})
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <user-id>",
		Short: "Show a member's ledger history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withApp(ctx, func(a *app) error {
				entries, err := a.engine.History(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.render.History(entries))
				return nil
			})
		},
	}
}

func leaderboardCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the reputation ranking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			return withApp(ctx, func(a *app) error {
				accounts, err := a.engine.Leaderboard(ctx, top)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.render.Leaderboard(accounts))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&top, "top", "n", 0, "number of members to show (default from ledger.leaderboard_size)")

	return cmd
}
