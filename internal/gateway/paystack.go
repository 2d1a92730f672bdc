package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const defaultTimeout = 15 * time.Second

var subunit = decimal.NewFromInt(100)

// Client is a stateless adapter over the Paystack REST API. Every call that
// creates state at the provider carries the transaction id as its reference,
// so the provider deduplicates retried submissions itself.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: defaultTimeout},
	}
}

type ChargeAuthorization struct {
	AuthorizationURL string
	Reference        string
}

type ChargeStatus struct {
	Succeeded bool
	Amount    decimal.Decimal
	Fees      decimal.Decimal
	Currency  string
	Raw       json.RawMessage
}

type TransferStatus struct {
	Status string // success | failed | reversed | pending | ...
	Raw    json.RawMessage
}

func (s TransferStatus) Succeeded() bool { return s.Status == "success" }
func (s TransferStatus) Failed() bool    { return s.Status == "failed" || s.Status == "reversed" }

// envelope is Paystack's standard response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeCharge starts a card charge for amount (major units) and returns
// the URL the payer is redirected to. idempotencyKey becomes the provider
// reference for the charge.
func (c *Client) InitializeCharge(ctx context.Context, payerEmail string, amount decimal.Decimal, idempotencyKey string, metadata map[string]string) (*ChargeAuthorization, error) {
	body := map[string]any{
		"email":     payerEmail,
		"amount":    amount.Mul(subunit).IntPart(),
		"reference": idempotencyKey,
	}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}

	raw, err := c.post(ctx, "initialize_charge", "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &Error{Kind: KindRejected, Op: "initialize_charge", Message: "malformed response", Err: err}
	}
	return &ChargeAuthorization{AuthorizationURL: data.AuthorizationURL, Reference: data.Reference}, nil
}

// VerifyCharge asks the provider for the definitive outcome of a charge.
func (c *Client) VerifyCharge(ctx context.Context, providerReference string) (*ChargeStatus, error) {
	raw, err := c.get(ctx, "verify_charge", "/transaction/verify/"+url.PathEscape(providerReference))
	if err != nil {
		return nil, err
	}

	var data struct {
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Fees     int64  `json:"fees"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &Error{Kind: KindRejected, Op: "verify_charge", Message: "malformed response", Err: err}
	}
	return &ChargeStatus{
		Succeeded: data.Status == "success",
		Amount:    decimal.NewFromInt(data.Amount).Div(subunit),
		Fees:      decimal.NewFromInt(data.Fees).Div(subunit),
		Currency:  data.Currency,
		Raw:       raw,
	}, nil
}

// ResolveAccount confirms a bank account exists and returns its registered name.
func (c *Client) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (string, error) {
	q := url.Values{}
	q.Set("account_number", accountNumber)
	q.Set("bank_code", bankCode)

	raw, err := c.get(ctx, "resolve_account", "/bank/resolve?"+q.Encode())
	if err != nil {
		return "", err
	}

	var data struct {
		AccountName string `json:"account_name"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", &Error{Kind: KindRejected, Op: "resolve_account", Message: "malformed response", Err: err}
	}
	return data.AccountName, nil
}

// CreateRecipient registers a bank account as a transfer destination.
func (c *Client) CreateRecipient(ctx context.Context, name, accountNumber, bankCode string) (string, error) {
	body := map[string]any{
		"type":           "nuban",
		"name":           name,
		"account_number": accountNumber,
		"bank_code":      bankCode,
		"currency":       "NGN",
	}

	raw, err := c.post(ctx, "create_recipient", "/transferrecipient", body)
	if err != nil {
		return "", err
	}

	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", &Error{Kind: KindRejected, Op: "create_recipient", Message: "malformed response", Err: err}
	}
	return data.RecipientCode, nil
}

// InitiateTransfer moves amount (major units) to a registered recipient.
// idempotencyKey becomes the transfer reference.
func (c *Client) InitiateTransfer(ctx context.Context, recipientCode string, amount decimal.Decimal, idempotencyKey string) (string, error) {
	body := map[string]any{
		"source":    "balance",
		"amount":    amount.Mul(subunit).IntPart(),
		"recipient": recipientCode,
		"reference": idempotencyKey,
	}

	raw, err := c.post(ctx, "initiate_transfer", "/transfer", body)
	if err != nil {
		return "", err
	}

	var data struct {
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", &Error{Kind: KindRejected, Op: "initiate_transfer", Message: "malformed response", Err: err}
	}
	if data.Reference == "" {
		data.Reference = idempotencyKey
	}
	return data.Reference, nil
}

// VerifyTransfer fetches the current provider-side state of a transfer. Used
// by the sweep for withdrawals whose webhook never arrived.
func (c *Client) VerifyTransfer(ctx context.Context, providerReference string) (*TransferStatus, error) {
	raw, err := c.get(ctx, "verify_transfer", "/transfer/verify/"+url.PathEscape(providerReference))
	if err != nil {
		return nil, err
	}

	var data struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &Error{Kind: KindRejected, Op: "verify_transfer", Message: "malformed response", Err: err}
	}
	return &TransferStatus{Status: data.Status, Raw: raw}, nil
}

func (c *Client) post(ctx context.Context, op, path string, body map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: KindRejected, Op: op, Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindRejected, Op: op, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req)
}

func (c *Client) get(ctx context.Context, op, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &Error{Kind: KindRejected, Op: op, Message: "build request", Err: err}
	}
	return c.do(op, req)
}

func (c *Client) do(op string, req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Message: "read response", Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &Error{Kind: KindAuth, Op: op, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	// A 5xx (often a proxy error page, not even JSON) leaves the outcome
	// unknown at the provider. That is retryable-unknown, not a refusal:
	// treating it as rejected would let callers fail and compensate a
	// transfer the provider may still complete.
	if resp.StatusCode >= 500 {
		return nil, &Error{Kind: KindNetwork, Op: op, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &Error{Kind: KindRejected, Op: op, Message: "malformed envelope", Err: err}
	}
	if resp.StatusCode >= 400 || !env.Status {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return nil, &Error{Kind: KindRejected, Op: op, Message: msg}
	}
	return env.Data, nil
}
