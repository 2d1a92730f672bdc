package engine

import (
	"context"

	"github.com/obaturn/chat-pay-BackEnd/internal/gateway"
	"github.com/obaturn/chat-pay-BackEnd/internal/notify"
	"github.com/obaturn/chat-pay-BackEnd/internal/store"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Gateway is the outbound settlement-provider surface the engine depends on.
// *gateway.Client satisfies it; tests substitute a stub.
type Gateway interface {
	InitializeCharge(ctx context.Context, payerEmail string, amount decimal.Decimal, idempotencyKey string, metadata map[string]string) (*gateway.ChargeAuthorization, error)
	VerifyCharge(ctx context.Context, providerReference string) (*gateway.ChargeStatus, error)
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (string, error)
	CreateRecipient(ctx context.Context, name, accountNumber, bankCode string) (string, error)
	InitiateTransfer(ctx context.Context, recipientCode string, amount decimal.Decimal, idempotencyKey string) (string, error)
	VerifyTransfer(ctx context.Context, providerReference string) (*gateway.TransferStatus, error)
}

// Engine owns every transaction state transition. It is the sole writer of
// terminal states; handlers and the webhook path both funnel through it.
type Engine struct {
	db            *gorm.DB
	ledger        *store.Ledger
	balances      *store.Balances
	gateway       Gateway
	sink          notify.Sink
	webhookSecret string
}

func New(db *gorm.DB, gw Gateway, sink notify.Sink, webhookSecret string) *Engine {
	return &Engine{
		db:            db,
		ledger:        store.NewLedger(db),
		balances:      store.NewBalances(db),
		gateway:       gw,
		sink:          sink,
		webhookSecret: webhookSecret,
	}
}
