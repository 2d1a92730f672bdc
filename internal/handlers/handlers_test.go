package handlers

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/obaturn/chat-pay-BackEnd/internal/engine"
	"github.com/obaturn/chat-pay-BackEnd/internal/logger"
	"github.com/obaturn/chat-pay-BackEnd/internal/models"
	"github.com/obaturn/chat-pay-BackEnd/internal/notify"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test"

func TestMain(m *testing.M) {
	logger.InitDevelopment()
	m.Run()
}

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.Transaction{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	eng := engine.New(db, nil, notify.LogSink{}, testWebhookSecret)
	return New(db, eng)
}

func sign(body string) string {
	mac := hmac.New(sha512.New, []byte(testWebhookSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	h := newTestHandlers(t)

	body := `{"event":"charge.success","data":{"reference":"ref-1"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", strings.NewReader(body))
	req.Header.Set("X-Paystack-Signature", "not-a-signature")
	rec := httptest.NewRecorder()

	h.Webhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookSignatureCoversRawBytes(t *testing.T) {
	h := newTestHandlers(t)

	// Whitespace matters: the signature is over the exact bytes received,
	// so a body signed with different formatting must be rejected.
	sent := `{ "event": "charge.success", "data": { "reference": "ref-1" } }`
	compact := `{"event":"charge.success","data":{"reference":"ref-1"}}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", strings.NewReader(sent))
	req.Header.Set("X-Paystack-Signature", sign(compact))
	rec := httptest.NewRecorder()

	h.Webhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for reformatted body", rec.Code)
	}
}

func TestWebhookAcksUnknownReference(t *testing.T) {
	h := newTestHandlers(t)

	body := `{"event":"charge.success","data":{"reference":"no-such-ref"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", strings.NewReader(body))
	req.Header.Set("X-Paystack-Signature", sign(body))
	rec := httptest.NewRecorder()

	h.Webhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 so the provider stops retrying", rec.Code)
	}
}

func TestWebhookIgnoresUnhandledEvents(t *testing.T) {
	h := newTestHandlers(t)

	body := `{"event":"subscription.create","data":{"reference":"ref-9"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", strings.NewReader(body))
	req.Header.Set("X-Paystack-Signature", sign(body))
	rec := httptest.NewRecorder()

	h.Webhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
