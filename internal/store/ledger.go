package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/obaturn/chat-pay-BackEnd/internal/models"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("transaction not found")
	// ErrConflict means the expected-status guard rejected an update. Callers
	// treat it as a benign no-op after re-reading the row, never as corruption.
	ErrConflict = errors.New("transaction status guard failed")
)

// Ledger is the append-mostly transaction store. Status moves only through
// UpdateStatus, whose expected-status guard is the single serialization point
// per transaction id.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithTx returns a Ledger bound to an open gorm transaction, so a status write
// and the balance mutations it triggers commit or roll back together.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx}
}

// Create persists a new transaction row. The id is assigned here when empty;
// it doubles as the gateway idempotency key for every outbound call.
func (l *Ledger) Create(ctx context.Context, tr *models.Transaction) (string, error) {
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	if tr.Status == "" {
		tr.Status = models.StatusPending
	}
	if err := l.db.WithContext(ctx).Create(tr).Error; err != nil {
		return "", fmt.Errorf("failed to create transaction: %w", err)
	}
	return tr.ID, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*models.Transaction, error) {
	var tr models.Transaction
	err := l.db.WithContext(ctx).First(&tr, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return &tr, nil
}

func (l *Ledger) FindByExternalReference(ctx context.Context, ref string) (*models.Transaction, error) {
	var tr models.Transaction
	err := l.db.WithContext(ctx).First(&tr, "external_reference = ?", ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction by reference: %w", err)
	}
	return &tr, nil
}

// UpdateStatus moves id from expected to next, optionally writing extra fields
// in the same statement. The WHERE clause carries the expected status, so a
// replayed or racing update simply matches zero rows and returns ErrConflict
// instead of re-applying effects.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, expected, next models.TxStatus, fields map[string]any) error {
	updates := map[string]any{"status": next}
	for k, v := range fields {
		updates[k] = v
	}

	res := l.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update transaction status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := l.db.WithContext(ctx).Model(&models.Transaction{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check transaction existence: %w", err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

// MarkRefunded flags a completed original once its refund transaction settles.
// This is the one allowed annotation on a terminal row.
func (l *Ledger) MarkRefunded(ctx context.Context, id string) error {
	res := l.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.StatusCompleted).
		Update("refunded", true)
	if res.Error != nil {
		return fmt.Errorf("failed to mark transaction refunded: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

type ListFilter struct {
	Status models.TxStatus
	Type   models.TxType
	Limit  int
	Offset int
}

// ListByUser returns transactions where the user is either party, newest first.
func (l *Ledger) ListByUser(ctx context.Context, userID uint64, f ListFilter) ([]models.Transaction, error) {
	q := l.db.WithContext(ctx).
		Where("from_user_id = ? OR to_user_id = ?", userID, userID).
		Order("created_at DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var trs []models.Transaction
	if err := q.Find(&trs).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return trs, nil
}

// StuckWithdrawals finds withdrawals still processing past the cutoff, for the
// periodic sweep that re-checks them against the provider.
func (l *Ledger) StuckWithdrawals(ctx context.Context, cutoff time.Time) ([]models.Transaction, error) {
	var trs []models.Transaction
	err := l.db.WithContext(ctx).
		Where("type = ? AND status IN ? AND updated_at < ?",
			models.TxWithdrawal, []models.TxStatus{models.StatusPending, models.StatusProcessing}, cutoff).
		Find(&trs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck withdrawals: %w", err)
	}
	return trs, nil
}
