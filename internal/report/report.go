// Package report renders ledger state and operation results for terminals
// and chat messages.
package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/Veraticus/clanbank/internal/cli"
	"github.com/Veraticus/clanbank/internal/ledger"
	"github.com/Veraticus/clanbank/internal/model"
)

// TimestampFormat is how history timestamps are shown.
const TimestampFormat = "02/01/2006 15:04:05"

// BarWidth is the number of cells in a capacity bar.
const BarWidth = 8

var categoryIcons = map[model.Category]string{
	model.CategoryConsumables: "🍽️",
	model.CategoryMaterials:   "🪨",
	model.CategoryWeapons:     "🔫",
	model.CategoryArmor:       "🛡️",
	model.CategoryMedicine:    "💊",
	model.CategoryOther:       "📦",
}

// Renderer formats ledger data. The zero value prints raw user IDs.
type Renderer struct {
	names func(userID string) string
}

// Option customizes a Renderer.
type Option func(*Renderer)

// WithNames resolves user IDs to display names.
func WithNames(fn func(userID string) string) Option {
	return func(r *Renderer) {
		r.names = fn
	}
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name resolves userID to a display name, falling back to the ID itself.
func (r *Renderer) Name(userID string) string {
	if r.names != nil {
		if n := r.names(userID); n != "" {
			return n
		}
	}
	return userID
}

// CapacityBar draws how full an item is in quarter steps: empty, then 2, 4,
// 6 or 8 filled cells.
func CapacityBar(total, limit int) string {
	if limit <= 0 {
		return "[" + strings.Repeat("░", BarWidth) + "]"
	}

	ratio := math.Max(0, math.Min(1, float64(total)/float64(limit)))
	var blocks int
	switch {
	case ratio == 0:
		blocks = 0
	case ratio <= 0.25:
		blocks = BarWidth / 4
	case ratio <= 0.50:
		blocks = BarWidth / 2
	case ratio <= 0.75:
		blocks = BarWidth * 3 / 4
	default:
		blocks = BarWidth
	}
	return "[" + strings.Repeat("█", blocks) + strings.Repeat("░", BarWidth-blocks) + "]"
}

// Inventory renders the clan inventory grouped by category.
func (r *Renderer) Inventory(lines []ledger.InventoryLine) string {
	byCategory := make(map[model.Category][]ledger.InventoryLine)
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		category := line.Category
		if !category.IsClassified() {
			category = model.CategoryOther
		}
		byCategory[category] = append(byCategory[category], line)
	}
	if len(byCategory) == 0 {
		return cli.FormatInfo("The clan inventory is empty.")
	}

	var b strings.Builder
	b.WriteString(cli.FormatTitle("Clan bank inventory"))
	b.WriteString("\n")

	for _, category := range model.CategoryOrder {
		items := byCategory[category]
		if len(items) == 0 {
			continue
		}
		b.WriteString(cli.HeadingStyle.Render(categoryIcons[category] + " " + string(category)))
		b.WriteString("\n")

		for _, line := range items {
			fmt.Fprintf(&b, "  %s — %d/%d %s",
				line.DisplayName,
				line.Quantity,
				line.Limit,
				cli.BarStyle.Render(CapacityBar(line.Quantity, line.Limit)))

			holders := make([]string, 0, len(line.Holders))
			for _, h := range line.Holders {
				if h.Quantity > 0 {
					holders = append(holders, fmt.Sprintf("%s %d", r.Name(h.UserID), h.Quantity))
				}
			}
			if len(holders) > 0 {
				b.WriteString(cli.SubtleStyle.Render(" | " + strings.Join(holders, ", ")))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// History renders a member's history grouped into deposits, withdrawals,
// transfers and reputation, each in insertion order.
func (r *Renderer) History(entries []model.HistoryEntry) string {
	if len(entries) == 0 {
		return cli.FormatInfo("No history yet.")
	}

	var deposits, withdrawals, transfers, reputation []string
	for _, e := range entries {
		ts := "[" + e.Timestamp.Format(TimestampFormat) + "]"
		location := ""
		if e.Location != "" {
			location = " (location: " + e.Location + ")"
		}
		qty := int(math.Abs(e.Quantity))

		switch e.Action {
		case model.ActionDeposited:
			deposits = append(deposits, fmt.Sprintf("%s %s %s (%d)%s", ts, cli.SuccessIcon, e.Item, qty, location))
		case model.ActionWithdrawn:
			withdrawals = append(withdrawals, fmt.Sprintf("%s %s %s (%d)%s", ts, cli.ErrorIcon, e.Item, qty, location))
		case model.ActionTransferred:
			transfers = append(transfers, fmt.Sprintf("%s Sent %s (%d) to %s", ts, e.Item, qty, r.Name(e.Counterparty)))
		case model.ActionReceived:
			transfers = append(transfers, fmt.Sprintf("%s Received %s (%d) from %s", ts, e.Item, qty, r.Name(e.Counterparty)))
		case model.ActionReputationAwarded:
			reputation = append(reputation, fmt.Sprintf("%s +%.2f", ts, e.Quantity))
		}
	}

	var b strings.Builder
	b.WriteString(cli.TitleStyle.Render(cli.ScrollIcon + " History"))
	b.WriteString("\n")
	for _, group := range []struct {
		title string
		lines []string
	}{
		{"Deposits", deposits},
		{"Withdrawals", withdrawals},
		{"Transfers", transfers},
		{"Reputation earned", reputation},
	} {
		if len(group.lines) == 0 {
			continue
		}
		b.WriteString(cli.HeadingStyle.Render(group.title))
		b.WriteString("\n")
		for _, line := range group.lines {
			b.WriteString("  " + line + "\n")
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// Leaderboard renders a ranked reputation table.
func (r *Renderer) Leaderboard(accounts []model.ReputationAccount) string {
	if len(accounts) == 0 {
		return cli.FormatInfo("Nobody has earned reputation yet.")
	}

	var b strings.Builder
	b.WriteString(cli.TitleStyle.Render(cli.TrophyIcon + " Reputation ranking"))
	b.WriteString("\n")
	for i, a := range accounts {
		fmt.Fprintf(&b, "%2d. %s — %.2f\n", i+1, r.Name(a.UserID), a.Points)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Balance renders a member's reputation.
func (r *Renderer) Balance(userID string, points float64) string {
	return cli.FormatInfo(fmt.Sprintf("%s has %.2f reputation.", r.Name(userID), points))
}

// Deposit renders the outcome of a deposit.
func (r *Renderer) Deposit(userID string, res *ledger.DepositResult) string {
	msg := cli.FormatSuccess(fmt.Sprintf("%s deposited %d of %s (%s).",
		r.Name(userID), res.Actual, res.DisplayName, res.Category))
	if res.Truncated {
		msg += "\n" + cli.FormatWarning(fmt.Sprintf("Only %d of %d fit: %s is now at %d/%d.",
			res.Actual, res.Requested, res.DisplayName, res.Balance, res.Limit))
	}
	msg += "\n" + fmt.Sprintf("Earned %.2f reputation. Total: %.2f", res.ReputationAwarded, res.ReputationTotal)
	return msg
}

// Withdraw renders the outcome of a withdrawal.
func (r *Renderer) Withdraw(userID string, res *ledger.WithdrawResult) string {
	return cli.FormatSuccess(fmt.Sprintf("%s withdrew %d of %s. Clan stock: %d, your share: %d.",
		r.Name(userID), res.Quantity, res.DisplayName, res.Balance, res.Holding))
}

// Transfer renders the outcome of a transfer.
func (r *Renderer) Transfer(res *ledger.TransferResult) string {
	return cli.FormatSuccess(fmt.Sprintf("%s sent %d of %s to %s.",
		r.Name(res.SenderID), res.Quantity, res.DisplayName, r.Name(res.RecipientID)))
}

// Matches renders search results.
func (r *Renderer) Matches(matches []model.CatalogMatch) string {
	if len(matches) == 0 {
		return cli.FormatInfo("No items found.")
	}

	var b strings.Builder
	for i, m := range matches {
		fmt.Fprintf(&b, "%2d. %s", i+1, m.DisplayName)
		if m.Category != "" {
			b.WriteString(cli.SubtleStyle.Render(" [" + m.Category + "]"))
		}
		if m.Available > 0 {
			fmt.Fprintf(&b, " (%d available)", m.Available)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
