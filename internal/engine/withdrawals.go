package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/obaturn/chat-pay-BackEnd/internal/logger"
	"github.com/obaturn/chat-pay-BackEnd/internal/models"
	"github.com/obaturn/chat-pay-BackEnd/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WithdrawalRequest struct {
	Amount        decimal.Decimal
	AccountNumber string
	BankCode      string
}

// ResolveAccount confirms bank details and returns the registered holder name.
func (e *Engine) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (string, error) {
	if accountNumber == "" || bankCode == "" {
		return "", validationf("account number and bank code are required")
	}
	name, err := e.gateway.ResolveAccount(ctx, accountNumber, bankCode)
	if err != nil {
		return "", fmt.Errorf("resolve account: %w", err)
	}
	return name, nil
}

// InitiateTransfer starts a withdrawal to a bank account. The debit lands
// before the provider confirms anything: funds are locked the moment the
// withdrawal exists, so a user cannot start two transfers against the same
// balance. A later transfer-failed signal credits the amount back.
func (e *Engine) InitiateTransfer(ctx context.Context, userID uint64, req WithdrawalRequest) (*models.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, validationf("amount must be positive, got %s", req.Amount)
	}
	if req.AccountNumber == "" || req.BankCode == "" {
		return nil, validationf("account number and bank code are required")
	}

	// Balance check before any gateway call, so an obviously unfundable
	// withdrawal never creates external state.
	bal, err := e.balances.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if bal.LessThan(req.Amount) {
		return nil, store.ErrInsufficientFunds
	}

	accountName, err := e.gateway.ResolveAccount(ctx, req.AccountNumber, req.BankCode)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}
	recipientCode, err := e.gateway.CreateRecipient(ctx, accountName, req.AccountNumber, req.BankCode)
	if err != nil {
		return nil, fmt.Errorf("create recipient: %w", err)
	}

	tr := &models.Transaction{
		FromUserID:    userID,
		RecipientName: accountName,
		RecipientCode: recipientCode,
		Amount:        req.Amount,
		Currency:      models.CurrencyCoins,
		Type:          models.TxWithdrawal,
		Status:        models.StatusPending,
	}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := e.ledger.WithTx(tx).Create(ctx, tr); err != nil {
			return err
		}
		return e.balances.WithTx(tx).Debit(ctx, userID, req.Amount)
	})
	if err != nil {
		return nil, err
	}
	e.sink.Publish(userID, "withdrawal.initiated", map[string]any{
		"transaction_id": tr.ID,
		"amount":         req.Amount.String(),
	})

	ref, err := e.gateway.InitiateTransfer(ctx, recipientCode, req.Amount, tr.ID)
	if err != nil {
		if retryableGateway(err) {
			// Unknown outcome: leave the record pending with funds locked.
			// The sweep will settle it against the provider.
			return tr, fmt.Errorf("initiate transfer: %w", err)
		}
		// Definite refusal: release the locked funds and close the record.
		compErr := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := e.ledger.WithTx(tx).UpdateStatus(ctx, tr.ID, models.StatusPending, models.StatusFailed,
				map[string]any{"reason": "transfer rejected by provider"}); err != nil {
				return err
			}
			return e.balances.WithTx(tx).Credit(ctx, userID, req.Amount)
		})
		if compErr != nil && !errors.Is(compErr, store.ErrConflict) {
			logger.Log.Error("failed to release funds for rejected transfer",
				zap.String("tx", tr.ID), zap.Error(compErr))
		}
		return nil, fmt.Errorf("initiate transfer: %w", err)
	}

	err = e.ledger.UpdateStatus(ctx, tr.ID, models.StatusPending, models.StatusProcessing,
		map[string]any{"external_reference": ref})
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return nil, err
	}

	tr.Status = models.StatusProcessing
	tr.ExternalReference = ref
	return tr, nil
}

// SweepStuckWithdrawals settles withdrawals the webhook never resolved by
// querying the provider's transfer status directly. Returns how many records
// reached a terminal state.
func (e *Engine) SweepStuckWithdrawals(ctx context.Context, stuckAfter time.Duration) (int, error) {
	cutoff := time.Now().Add(-stuckAfter)
	stuck, err := e.ledger.StuckWithdrawals(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, tr := range stuck {
		ref := tr.ExternalReference
		if ref == "" {
			ref = tr.ID
		}

		status, err := e.gateway.VerifyTransfer(ctx, ref)
		if err != nil {
			if !retryableGateway(err) && tr.Status == models.StatusPending {
				// The provider never saw this transfer; safe to fail it and
				// release the funds.
				if _, rerr := e.reconcileTransfer(ctx, tr.ID, false); rerr == nil {
					settled++
				}
				continue
			}
			logger.Log.Warn("sweep: transfer status unavailable",
				zap.String("tx", tr.ID), zap.Error(err))
			continue
		}

		switch {
		case status.Succeeded():
			if _, err := e.reconcileTransfer(ctx, ref, true); err == nil {
				settled++
			}
		case status.Failed():
			if _, err := e.reconcileTransfer(ctx, ref, false); err == nil {
				settled++
			}
		default:
			// Still in flight at the provider; leave it for the next pass.
		}
	}
	if settled > 0 {
		logger.Log.Info("sweep settled stuck withdrawals", zap.Int("count", settled))
	}
	return settled, nil
}
