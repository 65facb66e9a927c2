package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/clanbank/internal/common"
	"github.com/Veraticus/clanbank/internal/report"
	"github.com/Veraticus/clanbank/internal/service"
)

const headerRows = 3

// Writer exports ledger snapshots to Google Sheets.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

// NewWriter creates a new Google Sheets writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	srv, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return newWriter(srv, config, logger), nil
}

func newWriter(srv *sheets.Service, config Config, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	return &Writer{service: srv, config: config, logger: logger}
}

// Write replaces the contents of the inventory and reputation tabs.
func (w *Writer) Write(ctx context.Context, data *ExportData) error {
	if data == nil {
		return fmt.Errorf("export data is required")
	}

	w.logger.Info("starting sheets export",
		"inventory_rows", len(data.Inventory),
		"leaderboard_rows", len(data.Leaderboard))

	spreadsheet, err := w.getOrCreateSpreadsheet(ctx)
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	tabIDs, err := w.ensureTabs(ctx, spreadsheet)
	if err != nil {
		return fmt.Errorf("failed to prepare tabs: %w", err)
	}

	generated := data.GeneratedAt.In(w.location())
	tabs := []struct {
		values [][]any
		name   string
	}{
		{name: InventoryTab, values: inventoryValues(data, generated)},
		{name: LeaderboardTab, values: leaderboardValues(data, generated)},
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	for _, tab := range tabs {
		err = common.WithRetry(ctx, func() error {
			if clearErr := w.clearTab(ctx, spreadsheet.SpreadsheetId, tab.name); clearErr != nil {
				return classifyAPIError(clearErr)
			}
			return classifyAPIError(w.writeData(ctx, spreadsheet.SpreadsheetId, tab.name, tab.values))
		}, retryOpts)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", tab.name, err)
		}
	}

	if w.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			return classifyAPIError(w.applyFormatting(ctx, spreadsheet.SpreadsheetId, tabIDs))
		}, retryOpts)
		if err != nil {
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	w.logger.Info("sheets export completed",
		"spreadsheet_id", spreadsheet.SpreadsheetId,
		"url", spreadsheet.SpreadsheetUrl)

	return nil
}

func (w *Writer) location() *time.Location {
	if w.config.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(w.config.TimeZone)
	if err != nil {
		w.logger.Warn("unknown time zone, using UTC", "time_zone", w.config.TimeZone, "error", err)
		return time.UTC
	}
	return loc
}

// classifyAPIError stops retries for client errors other than rate limiting.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", common.ErrRateLimit, err)
		}
		if apiErr.Code < http.StatusInternalServerError {
			return common.Permanent(err)
		}
	}
	return err
}

func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := oauthConfig(config.ClientID, config.ClientSecret, "")
		tokenSource = client.TokenSource(ctx, &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		})
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return srv, nil
}

func (w *Writer) getOrCreateSpreadsheet(ctx context.Context) (*sheets.Spreadsheet, error) {
	if w.config.SpreadsheetID != "" {
		existing, err := w.service.Spreadsheets.Get(w.config.SpreadsheetID).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("unable to access spreadsheet %s: %w", w.config.SpreadsheetID, err)
		}
		return existing, nil
	}

	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    w.config.SpreadsheetName,
			TimeZone: w.config.TimeZone,
		},
		Sheets: []*sheets.Sheet{
			{Properties: &sheets.SheetProperties{Title: InventoryTab}},
			{Properties: &sheets.SheetProperties{Title: LeaderboardTab}},
		},
	}

	created, err := w.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	w.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)

	return created, nil
}

// ensureTabs adds any missing export tab and returns tab title to sheet ID.
func (w *Writer) ensureTabs(ctx context.Context, spreadsheet *sheets.Spreadsheet) (map[string]int64, error) {
	ids := make(map[string]int64, len(spreadsheet.Sheets))
	for _, sh := range spreadsheet.Sheets {
		if sh.Properties != nil {
			ids[sh.Properties.Title] = sh.Properties.SheetId
		}
	}

	var requests []*sheets.Request
	for _, title := range []string{InventoryTab, LeaderboardTab} {
		if _, ok := ids[title]; !ok {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: title},
				},
			})
		}
	}
	if len(requests) == 0 {
		return ids, nil
	}

	resp, err := w.service.Spreadsheets.BatchUpdate(spreadsheet.SpreadsheetId, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	for _, reply := range resp.Replies {
		if reply.AddSheet != nil && reply.AddSheet.Properties != nil {
			ids[reply.AddSheet.Properties.Title] = reply.AddSheet.Properties.SheetId
		}
	}

	w.logger.Debug("added tabs", "count", len(requests))
	return ids, nil
}

func tabRange(tab, cells string) string {
	return fmt.Sprintf("'%s'!%s", tab, cells)
}

func (w *Writer) clearTab(ctx context.Context, spreadsheetID, tab string) error {
	_, err := w.service.Spreadsheets.Values.Clear(spreadsheetID, tabRange(tab, "A:Z"), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func inventoryValues(data *ExportData, generated time.Time) [][]any {
	values := make([][]any, 0, headerRows+len(data.Inventory))
	values = append(values,
		[]any{"Inventario del clan", generated.Format(report.TimestampFormat)},
		[]any{},
		[]any{"Categoría", "Objeto", "Cantidad", "Límite", "Ocupación", "Miembros"},
	)
	for _, row := range data.Inventory {
		values = append(values, []any{
			row.Category,
			row.Item,
			row.Quantity,
			row.Limit,
			row.FillPercent,
			row.Holders,
		})
	}
	return values
}

func leaderboardValues(data *ExportData, generated time.Time) [][]any {
	values := make([][]any, 0, headerRows+len(data.Leaderboard))
	values = append(values,
		[]any{"Reputación del clan", generated.Format(report.TimestampFormat)},
		[]any{},
		[]any{"Puesto", "Miembro", "Reputación"},
	)
	for _, row := range data.Leaderboard {
		values = append(values, []any{row.Rank, row.Member, row.Points})
	}
	return values
}

func (w *Writer) writeData(ctx context.Context, spreadsheetID, tab string, values [][]any) error {
	for i := 0; i < len(values); i += w.config.BatchSize {
		end := i + w.config.BatchSize
		if end > len(values) {
			end = len(values)
		}

		batch := values[i:end]
		_, err := w.service.Spreadsheets.Values.Update(spreadsheetID, tabRange(tab, fmt.Sprintf("A%d", i+1)), &sheets.ValueRange{
			Values: batch,
		}).
			ValueInputOption("USER_ENTERED").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err)
		}

		w.logger.Debug("wrote batch", "tab", tab, "start_row", i+1, "rows", len(batch))
	}
	return nil
}

func boldRow(sheetID, row int64) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:       sheetID,
				StartRowIndex: row,
				EndRowIndex:   row + 1,
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{
					TextFormat: &sheets.TextFormat{Bold: true},
				},
			},
			Fields: "userEnteredFormat.textFormat.bold",
		},
	}
}

func numberColumn(sheetID, column int64, format *sheets.NumberFormat) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    headerRows,
				StartColumnIndex: column,
				EndColumnIndex:   column + 1,
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{NumberFormat: format},
			},
			Fields: "userEnteredFormat.numberFormat",
		},
	}
}

func tabLayout(sheetID int64, columns int64) []*sheets.Request {
	return []*sheets.Request{
		boldRow(sheetID, 0),
		boldRow(sheetID, headerRows-1),
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   columns,
				},
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        sheetID,
					GridProperties: &sheets.GridProperties{FrozenRowCount: headerRows},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	}
}

func (w *Writer) applyFormatting(ctx context.Context, spreadsheetID string, tabIDs map[string]int64) error {
	inventoryID := tabIDs[InventoryTab]
	leaderboardID := tabIDs[LeaderboardTab]

	requests := tabLayout(inventoryID, 6)
	requests = append(requests, numberColumn(inventoryID, 4, &sheets.NumberFormat{Type: "PERCENT", Pattern: "0%"}))
	requests = append(requests, tabLayout(leaderboardID, 3)...)
	requests = append(requests, numberColumn(leaderboardID, 2, &sheets.NumberFormat{Type: "NUMBER", Pattern: "0.00"}))

	_, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	return err
}
