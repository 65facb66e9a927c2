package model

import "time"

// HistoryAction identifies what kind of ledger mutation a history entry records.
type HistoryAction string

const (
	// ActionDeposited records items added to the clan inventory.
	ActionDeposited HistoryAction = "Deposited"
	// ActionWithdrawn records items taken out of the clan inventory.
	ActionWithdrawn HistoryAction = "Withdrawn"
	// ActionReputationAwarded records reputation granted for a deposit.
	ActionReputationAwarded HistoryAction = "ReputationAwarded"
	// ActionTransferred records holdings sent to another member.
	ActionTransferred HistoryAction = "Transferred"
	// ActionReceived records holdings received from another member.
	ActionReceived HistoryAction = "Received"
)

// IsValid reports whether a is one of the known actions.
func (a HistoryAction) IsValid() bool {
	switch a {
	case ActionDeposited, ActionWithdrawn, ActionReputationAwarded, ActionTransferred, ActionReceived:
		return true
	}
	return false
}

// ReputationLabel is the item label used on reputation history entries.
const ReputationLabel = "reputation"

// InventoryBalance is the clan-wide quantity of one item.
type InventoryBalance struct {
	ItemKey  string
	Quantity int
}

// UserHolding is the share of an item attributed to one member.
type UserHolding struct {
	UserID   string
	ItemKey  string
	Quantity int
}

// ReputationAccount is a member's accumulated reputation.
type ReputationAccount struct {
	UserID string
	Points float64
}

// HistoryEntry is one immutable audit record. Quantity is signed: positive
// for gains, negative for losses.
type HistoryEntry struct {
	Timestamp    time.Time
	UserID       string
	Action       HistoryAction
	Item         string
	Location     string
	Counterparty string
	Quantity     float64
	ID           int64
}

// CategoryOverride is a learned item category. Once written it is never
// replaced.
type CategoryOverride struct {
	CreatedAt time.Time
	ItemKey   string
	Category  Category
}
