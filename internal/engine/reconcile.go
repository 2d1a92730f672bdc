package engine

import (
	"context"
	"errors"

	"github.com/obaturn/chat-pay-BackEnd/internal/gateway"
	"github.com/obaturn/chat-pay-BackEnd/internal/logger"
	"github.com/obaturn/chat-pay-BackEnd/internal/models"
	"github.com/obaturn/chat-pay-BackEnd/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// reconcileCharge is the single funnel for charge outcomes, whether they
// arrive through VerifyPayment or a webhook. Balance effects and the terminal
// status write share one database transaction; the status guard decides which
// of any racing reconciliations applies them. The loser sees ErrConflict,
// re-reads, and reports the already-settled state as success.
func (e *Engine) reconcileCharge(ctx context.Context, ref string, succeeded bool, fees decimal.Decimal, feeCurrency string) (*models.Transaction, error) {
	tr, err := e.ledger.FindByExternalReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	// Withdrawals settle through reconcileTransfer; a charge event against
	// one must not re-debit funds that are already locked.
	if tr.Type == models.TxWithdrawal {
		return nil, validationf("transaction %s is a withdrawal, not a charge", tr.ID)
	}

	if tr.Status == models.StatusCompleted {
		return tr, nil // replay of an already-settled event
	}
	if tr.Status.Terminal() {
		logger.Log.Warn("settlement event for terminal transaction dropped",
			zap.String("tx", tr.ID), zap.String("status", string(tr.Status)), zap.Bool("succeeded", succeeded))
		return tr, nil
	}

	if !succeeded {
		err := e.ledger.UpdateStatus(ctx, tr.ID, tr.Status, models.StatusFailed,
			map[string]any{"reason": "charge failed at provider"})
		if err != nil && !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		return e.finishReconcile(ctx, tr.ID, models.StatusFailed)
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		led := e.ledger.WithTx(tx)
		bal := e.balances.WithTx(tx)

		if err := bal.Debit(ctx, tr.FromUserID, tr.Amount); err != nil {
			return err
		}
		if tr.ToUserID != nil {
			if err := bal.Credit(ctx, *tr.ToUserID, tr.Amount); err != nil {
				return err
			}
		}

		fields := map[string]any{}
		if !fees.IsZero() {
			fields["fee_amount"] = fees
			fields["fee_currency"] = feeCurrency
		}
		if err := led.UpdateStatus(ctx, tr.ID, tr.Status, models.StatusCompleted, fields); err != nil {
			return err
		}
		if tr.Type == models.TxRefund && tr.OriginalTransactionID != nil {
			if err := led.MarkRefunded(ctx, *tr.OriginalTransactionID); err != nil {
				return err
			}
		}
		return nil
	})

	switch {
	case errors.Is(err, store.ErrConflict):
		// Lost the race, or the record was cancelled under us. Whatever state
		// won is authoritative and the rolled-back balance writes never happened.
		current, getErr := e.ledger.Get(ctx, tr.ID)
		if getErr != nil {
			return nil, getErr
		}
		logger.Log.Info("reconciliation superseded by concurrent transition",
			zap.String("tx", tr.ID), zap.String("status", string(current.Status)))
		return current, nil
	case errors.Is(err, store.ErrInsufficientFunds):
		// Funds were there at initialization but are gone at settlement.
		failErr := e.ledger.UpdateStatus(ctx, tr.ID, tr.Status, models.StatusFailed,
			map[string]any{"reason": "insufficient funds at settlement"})
		if failErr != nil && !errors.Is(failErr, store.ErrConflict) {
			return nil, failErr
		}
		return nil, err
	case err != nil:
		return nil, err
	}

	return e.finishReconcile(ctx, tr.ID, models.StatusCompleted)
}

// reconcileTransfer settles withdrawal outcomes. Funds were debited at
// initiation, so success only needs the status flip, while failure pairs the
// terminal write with the compensating credit in one transaction.
func (e *Engine) reconcileTransfer(ctx context.Context, ref string, succeeded bool) (*models.Transaction, error) {
	tr, err := e.ledger.FindByExternalReference(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		// Transfers initiated but never acknowledged carry no provider
		// reference yet; the sweep addresses them by transaction id.
		tr, err = e.ledger.Get(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if tr.Type != models.TxWithdrawal {
		return nil, validationf("transaction %s is not a withdrawal", tr.ID)
	}

	if tr.Status.Terminal() {
		// Replays and late signals for settled withdrawals are no-ops.
		return tr, nil
	}

	if succeeded {
		err = e.ledger.UpdateStatus(ctx, tr.ID, tr.Status, models.StatusCompleted, nil)
	} else {
		err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := e.ledger.WithTx(tx).UpdateStatus(ctx, tr.ID, tr.Status, models.StatusFailed,
				map[string]any{"reason": "transfer failed at provider"}); err != nil {
				return err
			}
			return e.balances.WithTx(tx).Credit(ctx, tr.FromUserID, tr.Amount)
		})
	}
	if errors.Is(err, store.ErrConflict) {
		// A concurrent reconciliation won; its outcome stands.
		return e.ledger.Get(ctx, tr.ID)
	}
	if err != nil {
		return nil, err
	}
	want := models.StatusCompleted
	if !succeeded {
		want = models.StatusFailed
	}
	return e.finishReconcile(ctx, tr.ID, want)
}

// finishReconcile re-reads the settled record and publishes the outcome to
// both parties.
func (e *Engine) finishReconcile(ctx context.Context, txID string, want models.TxStatus) (*models.Transaction, error) {
	tr, err := e.ledger.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tr.Status != want {
		// A concurrent transition won; its reconciler already published.
		return tr, nil
	}

	event := "transaction." + string(tr.Status)
	payload := map[string]any{
		"transaction_id": tr.ID,
		"type":           string(tr.Type),
		"amount":         tr.Amount.String(),
		"status":         string(tr.Status),
	}
	e.sink.Publish(tr.FromUserID, event, payload)
	if tr.ToUserID != nil {
		e.sink.Publish(*tr.ToUserID, event, payload)
	}
	return tr, nil
}

func retryableGateway(err error) bool {
	var gwErr *gateway.Error
	return errors.As(err, &gwErr) && gwErr.Retryable()
}
