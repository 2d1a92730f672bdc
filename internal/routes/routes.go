package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/obaturn/chat-pay-BackEnd/internal/handlers"
	appmw "github.com/obaturn/chat-pay-BackEnd/internal/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

func NewRoutes(h *handlers.Handlers) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Post("/auth/login", h.Login)
	r.With(appmw.Authenticated).Get("/auth/me", h.Me)

	r.With(appmw.Authenticated).Post("/payments/initialize", h.InitializePayment)
	r.With(appmw.Authenticated).Get("/payments/verify/{reference}", h.VerifyPayment)
	r.With(appmw.Authenticated).Post("/payments/request", h.RequestPayment)

	r.With(appmw.Authenticated).Get("/transactions", h.ListTransactions)
	r.With(appmw.Authenticated).Get("/transactions/{id}", h.GetTransaction)
	r.With(appmw.Authenticated).Post("/transactions/{id}/cancel", h.CancelTransaction)
	r.With(appmw.Authenticated).Post("/transactions/{id}/refund", h.CreateRefund)

	r.With(appmw.Authenticated).Post("/withdrawals", h.Withdraw)
	r.With(appmw.Authenticated).Get("/banks/resolve", h.ResolveAccount)

	// Provider callbacks are authenticated by signature, not by JWT.
	r.Post("/webhooks/paystack", h.Webhook)

	r.Get("/swagger/*", httpSwagger.WrapHandler)

	return r
}
