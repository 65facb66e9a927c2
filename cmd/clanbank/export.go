package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/clanbank/internal/cli"
	"github.com/Veraticus/clanbank/internal/config"
	"github.com/Veraticus/clanbank/internal/sheets"
)

// newExporter is replaced in tests.
var newExporter = func(ctx context.Context, cfg sheets.Config) (sheets.Exporter, error) {
	return sheets.NewWriter(ctx, cfg, slog.Default())
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Publish the inventory and reputation ranking to Google Sheets",
		Long: `Write the clan inventory and the reputation ranking to a Google
Spreadsheet. Authenticate first with "clanbank auth sheets" or configure a
service account under sheets.service_account_path.`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}

	cmd.Flags().String("spreadsheet-id", "", "spreadsheet to update (overrides sheets.spreadsheet_id)")
	_ = v.BindPFlag("sheets.spreadsheet_id", cmd.Flags().Lookup("spreadsheet-id"))

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	sheetsCfg, err := config.LoadSheetsConfig(v)
	if err != nil {
		return fmt.Errorf("sheets export is not configured: %w", err)
	}

	return withApp(ctx, func(a *app) error {
		lines, err := a.engine.Inventory(ctx)
		if err != nil {
			return err
		}
		board, err := a.engine.Leaderboard(ctx, 0)
		if err != nil {
			return err
		}

		exporter, err := newExporter(ctx, *sheetsCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to Google Sheets: %w", err)
		}

		data := sheets.BuildExportData(lines, board, a.cfg.MemberName, time.Now())
		if err := exporter.Write(ctx, data); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
			"Exported %d items and %d members to Google Sheets.", len(data.Inventory), len(data.Leaderboard))))
		return nil
	})
}
