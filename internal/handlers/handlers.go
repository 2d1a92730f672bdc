package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/obaturn/chat-pay-BackEnd/configs"
	"github.com/obaturn/chat-pay-BackEnd/internal/engine"
	"github.com/obaturn/chat-pay-BackEnd/internal/gateway"
	"github.com/obaturn/chat-pay-BackEnd/internal/httputil"
	"github.com/obaturn/chat-pay-BackEnd/internal/logger"
	"github.com/obaturn/chat-pay-BackEnd/internal/middleware"
	"github.com/obaturn/chat-pay-BackEnd/internal/models"
	"github.com/obaturn/chat-pay-BackEnd/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Handlers struct {
	db     *gorm.DB
	engine *engine.Engine
}

func New(db *gorm.DB, eng *engine.Engine) *Handlers {
	return &Handlers{db: db, engine: eng}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	claims := jwt.MapClaims{
		"sub": user.ID,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(configs.AppConfig.JWT.SECRET))
	if err != nil {
		logger.Log.Error("failed to sign jwt", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, LoginResponse{Token: signed})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		httputil.WriteError(w, http.StatusNotFound, "user not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"id":      user.ID,
		"name":    user.Name,
		"email":   user.Email,
		"balance": user.Balance,
	})
}

type initializePaymentRequest struct {
	TransactionID  string          `json:"transactionId,omitempty"`
	ToUserID       *uint64         `json:"toUserId,omitempty"`
	RecipientName  string          `json:"recipientName,omitempty"`
	RecipientEmail string          `json:"recipientEmail,omitempty"`
	PayerEmail     string          `json:"payerEmail"`
	Amount         decimal.Decimal `json:"amount"`
}

func (h *Handlers) InitializePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req initializePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.engine.InitializePayment(r.Context(), userID, engine.InitializePaymentRequest{
		TransactionID:  req.TransactionID,
		ToUserID:       req.ToUserID,
		RecipientName:  req.RecipientName,
		RecipientEmail: req.RecipientEmail,
		PayerEmail:     req.PayerEmail,
		Amount:         req.Amount,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"transactionId":    res.TransactionID,
		"reference":        res.Reference,
		"authorizationUrl": res.AuthorizationURL,
	})
}

func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "reference")
	tr, err := h.engine.VerifyPayment(r.Context(), ref)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tr)
}

type requestPaymentRequest struct {
	PayerID uint64          `json:"payerId"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason,omitempty"`
}

func (h *Handlers) RequestPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req requestPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tr, err := h.engine.RequestPayment(r.Context(), userID, req.PayerID, req.Amount, req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tr)
}

// Webhook receives provider notifications. The signature is checked over the
// raw bytes exactly as received; parsing happens only after it holds.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	signature := r.Header.Get("X-Paystack-Signature")

	if err := h.engine.HandleWebhookEvent(r.Context(), rawBody, signature); err != nil {
		var sigErr *engine.SignatureError
		if errors.As(err, &sigErr) {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			// Unknown reference: acknowledge so the provider stops retrying.
			w.WriteHeader(http.StatusOK)
			return
		}
		logger.Log.Error("webhook processing failed", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to process event")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tr, err := h.engine.CancelTransaction(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tr)
}

type refundRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handlers) CreateRefund(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req refundRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	tr, err := h.engine.CreateRefund(r.Context(), userID, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tr)
}

type withdrawRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	AccountNumber string          `json:"accountNumber"`
	BankCode      string          `json:"bankCode"`
}

func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tr, err := h.engine.InitiateTransfer(r.Context(), userID, engine.WithdrawalRequest{
		Amount:        req.Amount,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
	})
	if err != nil {
		// A retryable gateway failure after the debit still returns the
		// pending record so the client can track it.
		if tr != nil {
			httputil.WriteJSON(w, http.StatusAccepted, tr)
			return
		}
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tr)
}

func (h *Handlers) ResolveAccount(w http.ResponseWriter, r *http.Request) {
	name, err := h.engine.ResolveAccount(r.Context(),
		r.URL.Query().Get("account_number"), r.URL.Query().Get("bank_code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"accountName": name})
}

func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tr, err := h.engine.GetTransactionStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if tr.FromUserID != userID && (tr.ToUserID == nil || *tr.ToUserID != userID) {
		httputil.WriteError(w, http.StatusNotFound, "transaction not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tr)
}

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := r.URL.Query()
	filter := store.ListFilter{
		Status: models.TxStatus(q.Get("status")),
		Type:   models.TxType(q.Get("type")),
	}
	if n, err := parseIntParam(q.Get("limit")); err == nil {
		filter.Limit = n
	}
	if n, err := parseIntParam(q.Get("offset")); err == nil {
		filter.Offset = n
	}

	trs, err := h.engine.ListUserTransactions(r.Context(), userID, filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trs)
}

func parseIntParam(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty")
	}
	return strconv.Atoi(s)
}

func writeEngineError(w http.ResponseWriter, err error) {
	var valErr *engine.ValidationError
	var gwErr *gateway.Error

	switch {
	case errors.As(err, &valErr):
		httputil.WriteError(w, http.StatusBadRequest, valErr.Reason)
	case errors.Is(err, store.ErrInsufficientFunds):
		httputil.WriteError(w, http.StatusUnprocessableEntity, "insufficient funds")
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrUserNotFound):
		httputil.WriteError(w, http.StatusNotFound, "not found")
	case errors.As(err, &gwErr):
		if gwErr.Retryable() {
			httputil.WriteError(w, http.StatusGatewayTimeout, "payment provider unreachable, retry later")
			return
		}
		httputil.WriteError(w, http.StatusBadGateway, "payment provider rejected the request")
	default:
		logger.Log.Error("request failed", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
