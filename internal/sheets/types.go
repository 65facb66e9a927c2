package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/clanbank/internal/ledger"
	"github.com/Veraticus/clanbank/internal/model"
)

// Exporter writes a snapshot of the ledger somewhere outside the bot.
type Exporter interface {
	Write(ctx context.Context, data *ExportData) error
}

// InventoryRow is a single row in the inventory tab.
type InventoryRow struct {
	Category    string
	Item        string
	Holders     string
	FillPercent decimal.Decimal
	Quantity    int
	Limit       int
}

// LeaderboardRow is a single row in the reputation tab.
type LeaderboardRow struct {
	Member string
	Points decimal.Decimal
	Rank   int
}

// ExportData holds everything written in one export.
type ExportData struct {
	GeneratedAt time.Time
	Inventory   []InventoryRow
	Leaderboard []LeaderboardRow
}

// BuildExportData converts engine reports into spreadsheet rows. names maps
// user IDs to display names and may be nil.
func BuildExportData(lines []ledger.InventoryLine, board []model.ReputationAccount, names func(string) string, now time.Time) *ExportData {
	if names == nil {
		names = func(id string) string { return id }
	}

	data := &ExportData{
		GeneratedAt: now,
		Inventory:   make([]InventoryRow, 0, len(lines)),
		Leaderboard: make([]LeaderboardRow, 0, len(board)),
	}

	for _, line := range lines {
		holders := make([]string, 0, len(line.Holders))
		for _, h := range line.Holders {
			holders = append(holders, fmt.Sprintf("%s (%d)", names(h.UserID), h.Quantity))
		}

		fill := decimal.Zero
		if line.Limit > 0 {
			fill = decimal.NewFromInt(int64(line.Quantity)).
				Div(decimal.NewFromInt(int64(line.Limit))).
				Round(4)
		}

		data.Inventory = append(data.Inventory, InventoryRow{
			Category:    line.Category.String(),
			Item:        line.DisplayName,
			Quantity:    line.Quantity,
			Limit:       line.Limit,
			FillPercent: fill,
			Holders:     strings.Join(holders, ", "),
		})
	}

	for i, account := range board {
		data.Leaderboard = append(data.Leaderboard, LeaderboardRow{
			Rank:   i + 1,
			Member: names(account.UserID),
			Points: decimal.NewFromFloat(account.Points).Round(2),
		})
	}

	return data
}
