package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/clanbank/internal/cli"
	"github.com/Veraticus/clanbank/internal/legacy"
)

func importLegacyCmd() *cobra.Command {
	var (
		force    bool
		timezone string
	)

	cmd := &cobra.Command{
		Use:   "import-legacy <inventario.db>",
		Short: "Import the database of the previous Discord bot",
		Long: `Copy inventory, holdings, reputation, learned categories and history from the
previous bot's SQLite file into this ledger.

The destination must be empty unless --force is given; a backup is taken
first when the store supports it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("invalid timezone %q: %w", timezone, err)
			}

			src, err := legacy.Open(args[0])
			if err != nil {
				return err
			}
			defer func() {
				if err := src.Close(); err != nil {
					slog.Debug("Failed to close legacy database", "error", err)
				}
			}()

			return withApp(ctx, func(a *app) error {
				if force {
					a.autoBackup(ctx, "import")
				}

				summary, err := legacy.Import(ctx, src, a.store, legacy.Options{
					Progress: cmd.ErrOrStderr(),
					Location: loc,
					Force:    force,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, cli.FormatSuccess("Legacy import complete."))
				fmt.Fprintf(out, "  Items:       %d\n", summary.Items)
				fmt.Fprintf(out, "  Holdings:    %d\n", summary.Holdings)
				fmt.Fprintf(out, "  Reputation:  %d\n", summary.Reputation)
				fmt.Fprintf(out, "  Categories:  %d\n", summary.Overrides)
				fmt.Fprintf(out, "  History:     %d\n", summary.History)
				if summary.Skipped > 0 {
					fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("Skipped %d unreadable history rows.", summary.Skipped)))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "import even if the ledger already has data")
	cmd.Flags().StringVar(&timezone, "timezone", "Local", "timezone the old bot wrote timestamps in")

	return cmd
}
