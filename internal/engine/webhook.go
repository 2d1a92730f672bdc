package engine

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/obaturn/chat-pay-BackEnd/internal/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// webhookEvent mirrors the provider's notification envelope. Only the fields
// the engine acts on are decoded; the raw body is what the signature covers.
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Fees      int64  `json:"fees"`
		Currency  string `json:"currency"`
	} `json:"data"`
}

// HandleWebhookEvent verifies the provider signature over the exact bytes
// received, then routes the event into the reconciliation funnel. Events with
// bad signatures are dropped and logged; they never reach a transition.
func (e *Engine) HandleWebhookEvent(ctx context.Context, rawBody []byte, signature string) error {
	if !e.validSignature(rawBody, signature) {
		logger.Log.Warn("webhook rejected: invalid signature", zap.Int("body_bytes", len(rawBody)))
		return &SignatureError{}
	}

	var evt webhookEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return fmt.Errorf("malformed webhook body: %w", err)
	}
	if evt.Data.Reference == "" {
		return validationf("webhook event %q has no reference", evt.Event)
	}

	hundred := decimal.NewFromInt(100)
	fees := decimal.NewFromInt(evt.Data.Fees).Div(hundred)

	var err error
	switch evt.Event {
	case "charge.success":
		_, err = e.reconcileCharge(ctx, evt.Data.Reference, true, fees, evt.Data.Currency)
	case "charge.failed":
		_, err = e.reconcileCharge(ctx, evt.Data.Reference, false, decimal.Zero, "")
	case "transfer.success":
		_, err = e.reconcileTransfer(ctx, evt.Data.Reference, true)
	case "transfer.failed", "transfer.reversed":
		_, err = e.reconcileTransfer(ctx, evt.Data.Reference, false)
	default:
		logger.Log.Debug("webhook event ignored", zap.String("event", evt.Event))
		return nil
	}
	return err
}

// validSignature checks the HMAC-SHA512 the provider computes over the raw
// request body. The body must not be re-serialized before this point.
func (e *Engine) validSignature(rawBody []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(e.webhookSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
