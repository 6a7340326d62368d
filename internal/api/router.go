package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/rbeauvoir/transfer-backend/internal/api/handlers"
	"github.com/rbeauvoir/transfer-backend/internal/auth"
	"github.com/rbeauvoir/transfer-backend/internal/config"
	"github.com/rbeauvoir/transfer-backend/internal/metrics"
	"github.com/rbeauvoir/transfer-backend/internal/middleware"
	"github.com/rbeauvoir/transfer-backend/internal/services"
)

func NewRouter(cfg config.Config, tm *auth.TokenManager, userSvc *services.UserService, paySvc *services.PaymentService) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	authH := handlers.NewAuthHandler(userSvc)
	payH := handlers.NewPaymentHandler(paySvc)
	authMW := middleware.NewAuthMiddleware(tm)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authH.Register)
		r.Post("/login", authH.Login)
		r.Post("/refresh", authH.Refresh)
	})

	// payment surface, identity from verified JWT claims only
	r.Group(func(r chi.Router) {
		r.Use(authMW.Auth)
		r.Post("/create-payment", payH.CreatePayment)
		r.Get("/status/{id}", payH.GetStatus)
		r.Get("/transactions", payH.ListTransactions)
	})

	// gateway callback, HMAC-signed instead of JWT
	r.Group(func(r chi.Router) {
		r.Use(middleware.Signature(middleware.SigConfig{Secret: cfg.CallbackSecret, MaxAgeSeconds: 300}))
		r.Post("/callback/moncash", payH.Callback)
	})

	return r
}
