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

// WithdrawResult describes a completed withdrawal.
type WithdrawResult struct {
	Item        string
	DisplayName string
	Quantity    int
	Balance     int
	Holding     int
}

// Withdraw removes quantity units of item from the clan inventory, taken
// from userID's own share. A withdrawal is never partial.
func (e *Engine) Withdraw(ctx context.Context, userID, item string, quantity int) (*WithdrawResult, error) {
	start := time.Now()
	result, err := e.withdraw(ctx, strings.TrimSpace(userID), e.resolveKey(item), quantity)
	e.cfg.Metrics.observe("withdraw", start, err)
	if err != nil {
		slog.Debug("Withdrawal rejected", "user", userID, "item", item, "quantity", quantity, "error", err)
		return nil, err
	}

	e.cfg.Metrics.addUnits("withdraw", result.Quantity)
	slog.Info("Withdrawal recorded",
		"user", userID,
		"item", result.Item,
		"quantity", result.Quantity,
		"balance", result.Balance,
		"holding", result.Holding)
	return result, nil
}

func (e *Engine) withdraw(ctx context.Context, userID, itemKey string, quantity int) (*WithdrawResult, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireItem(itemKey); err != nil {
		return nil, err
	}
	if err := requireQuantity(quantity); err != nil {
		return nil, err
	}

	var result *WithdrawResult
	err := e.withTx(ctx, itemKey, func(ctx context.Context, tx service.Transaction) error {
		balance, exists, err := balanceOf(ctx, tx, itemKey)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrItemNotFound, itemKey)
		}

		holding, err := tx.GetHolding(ctx, userID, itemKey)
		if err != nil {
			return err
		}
		if holding < quantity {
			return fmt.Errorf("%w: %s holds %d %s, requested %d", ErrInsufficientQuantity, userID, holding, itemKey, quantity)
		}
		if balance < quantity {
			// Holdings never exceed the balance, so this means the store
			// was edited outside the engine.
			return fmt.Errorf("%w: clan balance of %s is %d, requested %d", ErrInsufficientQuantity, itemKey, balance, quantity)
		}

		if err := tx.SetBalance(ctx, itemKey, balance-quantity); err != nil {
			return err
		}
		if err := tx.SetHolding(ctx, userID, itemKey, holding-quantity); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, &model.HistoryEntry{
			Timestamp: e.now(),
			UserID:    userID,
			Action:    model.ActionWithdrawn,
			Item:      itemKey,
			Quantity:  -float64(quantity),
		}); err != nil {
			return err
		}

		result = &WithdrawResult{
			Item:        itemKey,
			DisplayName: e.displayName(itemKey),
			Quantity:    quantity,
			Balance:     balance - quantity,
			Holding:     holding - quantity,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
