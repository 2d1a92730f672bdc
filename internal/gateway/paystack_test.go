package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestInitializeCharge(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.test/abc",
				"reference":         "tx-123",
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_secret")
	auth, err := c.InitializeCharge(context.Background(), "payer@test.com",
		decimal.RequireFromString("500"), "tx-123", map[string]string{"transaction_id": "tx-123"})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if gotAuth != "Bearer sk_test_secret" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotPath != "/transaction/initialize" {
		t.Errorf("path = %q", gotPath)
	}
	// 500 major units must go over the wire in subunits.
	if amt, _ := gotBody["amount"].(float64); amt != 50000 {
		t.Errorf("amount = %v, want 50000", gotBody["amount"])
	}
	if ref, _ := gotBody["reference"].(string); ref != "tx-123" {
		t.Errorf("reference = %v, want tx-123 (the idempotency key)", gotBody["reference"])
	}
	if auth.AuthorizationURL == "" || auth.Reference != "tx-123" {
		t.Errorf("auth = %+v", auth)
	}
}

func TestVerifyCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/tx-123" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"status":   "success",
				"amount":   50000,
				"fees":     750,
				"currency": "NGN",
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_secret")
	st, err := c.VerifyCharge(context.Background(), "tx-123")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !st.Succeeded {
		t.Error("expected success")
	}
	if !st.Amount.Equal(decimal.RequireFromString("500")) {
		t.Errorf("amount = %s, want 500", st.Amount)
	}
	if !st.Fees.Equal(decimal.RequireFromString("7.5")) {
		t.Errorf("fees = %s, want 7.5", st.Fees)
	}
	if st.Currency != "NGN" {
		t.Errorf("currency = %q", st.Currency)
	}
}

func TestVerifyChargeFailedOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data":   map[string]any{"status": "failed", "amount": 50000},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_secret")
	st, err := c.VerifyCharge(context.Background(), "tx-123")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if st.Succeeded {
		t.Error("failed charge reported as succeeded")
	}
}

func TestResolveAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("account_number") != "0123456789" || q.Get("bank_code") != "058" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data":   map[string]any{"account_name": "ADA LOVELACE"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_secret")
	name, err := c.ResolveAccount(context.Background(), "0123456789", "058")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if name != "ADA LOVELACE" {
		t.Errorf("name = %q", name)
	}
}

func TestInitiateTransferReferenceFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["recipient"] != "RCP_1" {
			t.Errorf("recipient = %v", body["recipient"])
		}
		// Provider response without an explicit reference echoes nothing back.
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data":   map[string]any{"transfer_code": "TRF_x"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_secret")
	ref, err := c.InitiateTransfer(context.Background(), "RCP_1",
		decimal.RequireFromString("100"), "tx-77")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if ref != "tx-77" {
		t.Errorf("reference = %q, want fallback to idempotency key", ref)
	}
}

func TestErrorKinds(t *testing.T) {
	t.Run("auth", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "bad_key")
		_, err := c.VerifyCharge(context.Background(), "x")
		var gwErr *Error
		if !errors.As(err, &gwErr) || gwErr.Kind != KindAuth {
			t.Fatalf("err = %v, want KindAuth", err)
		}
		if gwErr.Retryable() {
			t.Error("auth errors must not be retryable")
		}
	})

	t.Run("rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "Invalid bank code"})
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "sk_test_secret")
		_, err := c.ResolveAccount(context.Background(), "000", "999")
		var gwErr *Error
		if !errors.As(err, &gwErr) || gwErr.Kind != KindRejected {
			t.Fatalf("err = %v, want KindRejected", err)
		}
		if gwErr.Retryable() {
			t.Error("rejections must not be retryable")
		}
	})

	t.Run("envelope status false", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "Transfer not found"})
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "sk_test_secret")
		_, err := c.VerifyTransfer(context.Background(), "x")
		var gwErr *Error
		if !errors.As(err, &gwErr) || gwErr.Kind != KindRejected {
			t.Fatalf("err = %v, want KindRejected", err)
		}
	})

	t.Run("server error is unknown outcome", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Proxy-style error page: 5xx and not even JSON.
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("<html><body>502 Bad Gateway</body></html>"))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "sk_test_secret")
		_, err := c.InitiateTransfer(context.Background(), "RCP_1",
			decimal.RequireFromString("100"), "tx-5xx")
		var gwErr *Error
		if !errors.As(err, &gwErr) || gwErr.Kind != KindNetwork {
			t.Fatalf("err = %v, want KindNetwork for 5xx", err)
		}
		if !gwErr.Retryable() {
			t.Error("a 5xx outcome is unknown and must be retryable")
		}
	})

	t.Run("network", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // connection refused from here on

		c := NewClient(srv.URL, "sk_test_secret")
		_, err := c.VerifyCharge(context.Background(), "x")
		var gwErr *Error
		if !errors.As(err, &gwErr) || gwErr.Kind != KindNetwork {
			t.Fatalf("err = %v, want KindNetwork", err)
		}
		if !gwErr.Retryable() {
			t.Error("network errors must be retryable")
		}
	})
}

func TestVerifyTransferStatuses(t *testing.T) {
	cases := []struct {
		status    string
		succeeded bool
		failed    bool
	}{
		{"success", true, false},
		{"failed", false, true},
		{"reversed", false, true},
		{"pending", false, false},
		{"otp", false, false},
	}
	for _, c := range cases {
		st := TransferStatus{Status: c.status}
		if st.Succeeded() != c.succeeded || st.Failed() != c.failed {
			t.Errorf("%s: succeeded=%v failed=%v", c.status, st.Succeeded(), st.Failed())
		}
	}
}
