package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/service"
)

// TransferResult describes a completed transfer of holdings. The clan-wide
// balance is unchanged by a transfer.
type TransferResult struct {
	Item             string
	DisplayName      string
	SenderID         string
	RecipientID      string
	Quantity         int
	SenderHolding    int
	RecipientHolding int
}

// Transfer moves the selected quantity of an item from the selection's
// initiator to recipientID. The selection is consumed before anything else
// happens, so replaying it fails with model.ErrSelectionConsumed even when
// the first attempt was rejected.
func (e *Engine) Transfer(ctx context.Context, sel *model.Selection, recipientID string) (*TransferResult, error) {
	start := time.Now()
	result, err := e.transfer(ctx, sel, strings.TrimSpace(recipientID))
	e.cfg.Metrics.observe("transfer", start, err)
	if err != nil {
		slog.Debug("Transfer rejected", "recipient", recipientID, "error", err)
		return nil, err
	}

	e.cfg.Metrics.addUnits("transfer", result.Quantity)
	slog.Info("Transfer recorded",
		"sender", result.SenderID,
		"recipient", result.RecipientID,
		"item", result.Item,
		"quantity", result.Quantity)
	return result, nil
}

func (e *Engine) transfer(ctx context.Context, sel *model.Selection, recipientID string) (*TransferResult, error) {
	if sel == nil {
		return nil, fmt.Errorf("%w: missing selection", ErrInvalidRequest)
	}
	if err := sel.Consume(); err != nil {
		return nil, err
	}

	senderID := strings.TrimSpace(sel.InitiatorID)
	itemKey := e.resolveKey(sel.ItemKey)
	quantity := sel.Quantity

	if err := requireUser(senderID); err != nil {
		return nil, err
	}
	if err := requireUser(recipientID); err != nil {
		return nil, err
	}
	if senderID == recipientID {
		return nil, fmt.Errorf("%w: cannot transfer to yourself", ErrInvalidRequest)
	}
	if err := requireItem(itemKey); err != nil {
		return nil, err
	}
	if err := requireQuantity(quantity); err != nil {
		return nil, err
	}

	var result *TransferResult
	err := e.withTx(ctx, itemKey, func(ctx context.Context, tx service.Transaction) error {
		senderHolding, err := tx.GetHolding(ctx, senderID, itemKey)
		if err != nil {
			return err
		}
		if senderHolding < quantity {
			return fmt.Errorf("%w: %s holds %d %s, requested %d", ErrInsufficientQuantity, senderID, senderHolding, itemKey, quantity)
		}

		recipientHolding, err := tx.GetHolding(ctx, recipientID, itemKey)
		if err != nil {
			return err
		}

		if err := tx.SetHolding(ctx, senderID, itemKey, senderHolding-quantity); err != nil {
			return err
		}
		if err := tx.SetHolding(ctx, recipientID, itemKey, recipientHolding+quantity); err != nil {
			return err
		}

		now := e.now()
		if err := tx.AppendHistory(ctx, &model.HistoryEntry{
			Timestamp:    now,
			UserID:       senderID,
			Action:       model.ActionTransferred,
			Item:         itemKey,
			Quantity:     -float64(quantity),
			Counterparty: recipientID,
		}); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, &model.HistoryEntry{
			Timestamp:    now,
			UserID:       recipientID,
			Action:       model.ActionReceived,
			Item:         itemKey,
			Quantity:     float64(quantity),
			Counterparty: senderID,
		}); err != nil {
			return err
		}

		result = &TransferResult{
			Item:             itemKey,
			DisplayName:      e.displayName(itemKey),
			SenderID:         senderID,
			RecipientID:      recipientID,
			Quantity:         quantity,
			SenderHolding:    senderHolding - quantity,
			RecipientHolding: recipientHolding + quantity,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
