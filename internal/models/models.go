package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Name     string          `gorm:"size:50;not null"`
	Email    string          `gorm:"uniqueIndex;size:255;not null"`
	Password string          `gorm:"size:255"`
	Balance  decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
}

type TxType string

const (
	TxSend       TxType = "send"
	TxRequest    TxType = "request"
	TxReceive    TxType = "receive"
	TxRefund     TxType = "refund"
	TxFee        TxType = "fee"
	TxWithdrawal TxType = "withdrawal"
)

type TxStatus string

const (
	StatusPending    TxStatus = "pending"
	StatusProcessing TxStatus = "processing"
	StatusCompleted  TxStatus = "completed"
	StatusFailed     TxStatus = "failed"
	StatusCancelled  TxStatus = "cancelled"
)

// Terminal reports whether no further self-mutation is allowed from s.
// A completed transaction may still be referenced by a refund record.
func (s TxStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

const (
	CurrencyCoins = "COINS" // internal settlement currency
	CurrencyNGN   = "NGN"
)

// Transaction is one row in the append-only ledger. Rows are never deleted;
// cancellation and failure are statuses, not removals.
type Transaction struct {
	ID         string  `gorm:"primaryKey;size:36"`
	FromUserID uint64  `gorm:"index;not null"`
	ToUserID   *uint64 `gorm:"index"`

	// External counterparty, when the receiving side is outside the system.
	RecipientName  string `gorm:"size:100"`
	RecipientEmail string `gorm:"size:255"`
	RecipientCode  string `gorm:"size:100"` // provider transfer-recipient code

	Amount   decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Currency string          `gorm:"size:8;not null"`
	Type     TxType          `gorm:"size:16;index;not null"`
	Status   TxStatus        `gorm:"size:16;index;not null"`

	// Provider-issued reference, set once the initialize/transfer call returns.
	// Webhooks and verify calls correlate back to this row through it, so at
	// most one row may carry a given reference; rows that have not reached the
	// provider yet hold the empty string, which the partial index skips.
	ExternalReference string `gorm:"size:100;index:idx_transactions_external_ref,unique,where:external_reference <> ''"`

	FeeAmount   decimal.Decimal `gorm:"type:numeric(20,2)"`
	FeeCurrency string          `gorm:"size:8"`

	OriginalTransactionID *string `gorm:"size:36;index"`
	Refunded              bool    `gorm:"not null;default:false"`
	Reason                string  `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
