package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/obaturn/chat-pay-BackEnd/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUserNotFound      = errors.New("user not found")
)

// Balances is the only component allowed to touch User.Balance. Debits fail
// closed: the guarded UPDATE matches zero rows rather than letting the balance
// go negative.
type Balances struct {
	db *gorm.DB
}

func NewBalances(db *gorm.DB) *Balances {
	return &Balances{db: db}
}

// WithTx binds the controller to an open gorm transaction so balance writes
// share the atomic unit of the ledger's terminal-status update.
func (b *Balances) WithTx(tx *gorm.DB) *Balances {
	return &Balances{db: tx}
}

func (b *Balances) Credit(ctx context.Context, userID uint64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("credit amount must be non-negative, got %s", amount)
	}
	res := b.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return fmt.Errorf("failed to credit user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (b *Balances) Debit(ctx context.Context, userID uint64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("debit amount must be non-negative, got %s", amount)
	}
	res := b.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return fmt.Errorf("failed to debit user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := b.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check user existence: %w", err)
		}
		if count == 0 {
			return ErrUserNotFound
		}
		return ErrInsufficientFunds
	}
	return nil
}

func (b *Balances) Get(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	var user models.User
	err := b.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, ErrUserNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return user.Balance, nil
}
