package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/obaturn/chat-pay-BackEnd/internal/logger"
	"github.com/obaturn/chat-pay-BackEnd/internal/models"
	"github.com/obaturn/chat-pay-BackEnd/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type InitializePaymentRequest struct {
	// TransactionID settles an already-created pending record (a payment
	// request or a refund) instead of opening a fresh send.
	TransactionID string

	ToUserID       *uint64
	RecipientName  string
	RecipientEmail string

	PayerEmail string
	Amount     decimal.Decimal
}

type InitializePaymentResult struct {
	TransactionID    string
	Reference        string
	AuthorizationURL string
}

// InitializePayment creates (or resumes) a pending transaction and opens a
// charge at the gateway. The transaction id is the charge reference, so a
// retried call after a timeout cannot double-submit at the provider.
func (e *Engine) InitializePayment(ctx context.Context, fromUserID uint64, req InitializePaymentRequest) (*InitializePaymentResult, error) {
	if req.PayerEmail == "" {
		return nil, validationf("payer email is required")
	}

	var tr *models.Transaction
	var err error
	if req.TransactionID != "" {
		tr, err = e.resumePending(ctx, fromUserID, req)
	} else {
		tr, err = e.openSend(ctx, fromUserID, req)
	}
	if err != nil {
		return nil, err
	}

	meta := map[string]string{"transaction_id": tr.ID, "type": string(tr.Type)}
	auth, err := e.gateway.InitializeCharge(ctx, req.PayerEmail, tr.Amount, tr.ID, meta)
	if err != nil {
		if !retryableGateway(err) {
			if casErr := e.ledger.UpdateStatus(ctx, tr.ID, models.StatusPending, models.StatusFailed,
				map[string]any{"reason": "charge initialization rejected"}); casErr != nil && !errors.Is(casErr, store.ErrConflict) {
				logger.Log.Error("failed to fail rejected charge", zap.String("tx", tr.ID), zap.Error(casErr))
			}
		}
		// Retryable-unknown outcomes leave the record pending; the caller may
		// re-submit with the same transaction id.
		return nil, fmt.Errorf("initialize charge: %w", err)
	}

	err = e.ledger.UpdateStatus(ctx, tr.ID, models.StatusPending, models.StatusProcessing,
		map[string]any{"external_reference": auth.Reference})
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return nil, err
	}

	return &InitializePaymentResult{
		TransactionID:    tr.ID,
		Reference:        auth.Reference,
		AuthorizationURL: auth.AuthorizationURL,
	}, nil
}

func (e *Engine) openSend(ctx context.Context, fromUserID uint64, req InitializePaymentRequest) (*models.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, validationf("amount must be positive, got %s", req.Amount)
	}
	hasExternal := req.RecipientName != "" || req.RecipientEmail != ""
	if req.ToUserID == nil && !hasExternal {
		return nil, validationf("a recipient is required")
	}
	if req.ToUserID != nil && hasExternal {
		return nil, validationf("recipient must be either a user or an external contact, not both")
	}
	if req.ToUserID != nil && *req.ToUserID == fromUserID {
		return nil, validationf("cannot send to yourself")
	}

	bal, err := e.balances.Get(ctx, fromUserID)
	if err != nil {
		return nil, err
	}
	if bal.LessThan(req.Amount) {
		return nil, store.ErrInsufficientFunds
	}

	tr := &models.Transaction{
		FromUserID:     fromUserID,
		ToUserID:       req.ToUserID,
		RecipientName:  req.RecipientName,
		RecipientEmail: req.RecipientEmail,
		Amount:         req.Amount,
		Currency:       models.CurrencyCoins,
		Type:           models.TxSend,
		Status:         models.StatusPending,
	}
	if _, err := e.ledger.Create(ctx, tr); err != nil {
		return nil, err
	}
	return tr, nil
}

// resumePending picks up an existing pending record the caller is settling: a
// payment request addressed to them, a refund they issued, or a send whose
// initialize call previously timed out and is being retried under the same id.
func (e *Engine) resumePending(ctx context.Context, fromUserID uint64, req InitializePaymentRequest) (*models.Transaction, error) {
	tr, err := e.ledger.Get(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if tr.FromUserID != fromUserID {
		return nil, validationf("transaction %s is not payable by this user", tr.ID)
	}
	if tr.Status != models.StatusPending {
		return nil, validationf("transaction %s is %s, only pending transactions can be settled", tr.ID, tr.Status)
	}
	switch tr.Type {
	case models.TxSend, models.TxRequest, models.TxRefund:
	default:
		return nil, validationf("transaction %s of type %s cannot be settled directly", tr.ID, tr.Type)
	}
	if !req.Amount.IsZero() && !req.Amount.Equal(tr.Amount) {
		return nil, validationf("amount %s does not match requested %s", req.Amount, tr.Amount)
	}
	return tr, nil
}

// RequestPayment records that requester is asking payer for amount. The payer
// later settles it through InitializePayment with the returned transaction id.
func (e *Engine) RequestPayment(ctx context.Context, requesterID, payerID uint64, amount decimal.Decimal, reason string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, validationf("amount must be positive, got %s", amount)
	}
	if requesterID == payerID {
		return nil, validationf("cannot request payment from yourself")
	}

	tr := &models.Transaction{
		FromUserID: payerID,
		ToUserID:   &requesterID,
		Amount:     amount,
		Currency:   models.CurrencyCoins,
		Type:       models.TxRequest,
		Status:     models.StatusPending,
		Reason:     reason,
	}
	if _, err := e.ledger.Create(ctx, tr); err != nil {
		return nil, err
	}
	e.sink.Publish(payerID, "payment.requested", map[string]any{
		"transaction_id": tr.ID,
		"from_user_id":   requesterID,
		"amount":         amount.String(),
	})
	return tr, nil
}

// VerifyPayment asks the gateway for the charge outcome and reconciles it.
// Gateway failures leave the transaction untouched; an unknown outcome must
// never drive a transition.
func (e *Engine) VerifyPayment(ctx context.Context, providerReference string) (*models.Transaction, error) {
	status, err := e.gateway.VerifyCharge(ctx, providerReference)
	if err != nil {
		return nil, fmt.Errorf("verify charge: %w", err)
	}
	return e.reconcileCharge(ctx, providerReference, status.Succeeded, status.Fees, status.Currency)
}

// CancelTransaction moves a non-terminal transaction to cancelled at the
// owner's request. Whether the cancel or a racing completion wins is decided
// by whichever status guard commits first.
func (e *Engine) CancelTransaction(ctx context.Context, userID uint64, txID string) (*models.Transaction, error) {
	tr, err := e.ledger.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tr.FromUserID != userID {
		return nil, validationf("only the sender may cancel a transaction")
	}
	if tr.Status.Terminal() {
		return nil, validationf("transaction is already %s", tr.Status)
	}
	// Once a withdrawal reaches the provider, the outcome belongs to the
	// provider; only a not-yet-submitted one can be cancelled.
	if tr.Type == models.TxWithdrawal && tr.Status != models.StatusPending {
		return nil, validationf("withdrawal is already submitted to the provider")
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		led := e.ledger.WithTx(tx)
		if err := led.UpdateStatus(ctx, tr.ID, tr.Status, models.StatusCancelled, nil); err != nil {
			return err
		}
		// A cancelled pending withdrawal releases its locked funds.
		if tr.Type == models.TxWithdrawal {
			return e.balances.WithTx(tx).Credit(ctx, tr.FromUserID, tr.Amount)
		}
		return nil
	})
	if errors.Is(err, store.ErrConflict) {
		current, getErr := e.ledger.Get(ctx, txID)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == models.StatusCancelled {
			return current, nil
		}
		return nil, validationf("transaction is already %s", current.Status)
	}
	if err != nil {
		return nil, err
	}

	tr.Status = models.StatusCancelled
	e.sink.Publish(tr.FromUserID, "transaction.cancelled", map[string]any{"transaction_id": tr.ID})
	return tr, nil
}

// CreateRefund opens a refund record against a completed original: parties
// reversed, linked back, starting its own lifecycle at pending. Balances move
// only when the refund itself completes through the gateway.
func (e *Engine) CreateRefund(ctx context.Context, userID uint64, originalID, reason string) (*models.Transaction, error) {
	orig, err := e.ledger.Get(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if orig.Status != models.StatusCompleted {
		return nil, validationf("only completed transactions can be refunded, transaction is %s", orig.Status)
	}
	if orig.ToUserID == nil {
		return nil, validationf("transactions to external recipients cannot be refunded here")
	}
	if *orig.ToUserID != userID {
		return nil, validationf("only the recipient may issue a refund")
	}
	if orig.Refunded {
		return nil, validationf("transaction is already refunded")
	}

	refund := &models.Transaction{
		FromUserID:            *orig.ToUserID,
		ToUserID:              &orig.FromUserID,
		Amount:                orig.Amount,
		Currency:              orig.Currency,
		Type:                  models.TxRefund,
		Status:                models.StatusPending,
		OriginalTransactionID: &orig.ID,
		Reason:                reason,
	}
	if _, err := e.ledger.Create(ctx, refund); err != nil {
		return nil, err
	}
	e.sink.Publish(orig.FromUserID, "refund.created", map[string]any{
		"transaction_id": refund.ID,
		"original_id":    orig.ID,
		"amount":         refund.Amount.String(),
	})
	return refund, nil
}

func (e *Engine) GetTransactionStatus(ctx context.Context, txID string) (*models.Transaction, error) {
	return e.ledger.Get(ctx, txID)
}

func (e *Engine) ListUserTransactions(ctx context.Context, userID uint64, f store.ListFilter) ([]models.Transaction, error) {
	return e.ledger.ListByUser(ctx, userID, f)
}
