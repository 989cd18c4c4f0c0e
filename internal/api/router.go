package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/gigledger/escrow/internal/api/handlers"
	"github.com/gigledger/escrow/internal/auth"
	"github.com/gigledger/escrow/internal/config"
	"github.com/gigledger/escrow/internal/gateway"
	"github.com/gigledger/escrow/internal/metrics"
	"github.com/gigledger/escrow/internal/middleware"
	"github.com/gigledger/escrow/internal/services"
)

type RouterDeps struct {
	Cfg         config.Config
	Tokens      *auth.TokenManager
	Signer      *gateway.Signer
	Milestones  *services.MilestoneService
	Payments    *services.PaymentService
	Wallets     *services.WalletService
	Withdrawals *services.WithdrawalService
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(d.Cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	mh := handlers.NewMilestoneHandler(d.Milestones)
	ph := handlers.NewPaymentHandler(d.Payments, d.Signer, d.Cfg.RazorpayKeyID, d.Cfg.IsDev())
	wh := handlers.NewWalletHandler(d.Wallets, d.Withdrawals)
	authMW := middleware.NewAuthMiddleware(d.Tokens, d.Cfg.Env)
	admin := middleware.RequireRole(services.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		if d.Cfg.IsDev() {
			r.Post("/auth/dev-token", handlers.NewAuthHandler(d.Tokens).DevToken)
		}

		// gateway webhook, authenticated by body signature
		r.Put("/payments/status", ph.Status)

		r.Group(func(r chi.Router) {
			r.Use(authMW.Auth)

			r.Route("/milestones", func(r chi.Router) {
				r.Post("/", mh.Create)
				r.Get("/contract/{contractID}", mh.ListByContract)
				r.Get("/{id}", mh.Get)
				r.Put("/{id}", mh.Update)
				r.Put("/{id}/status", mh.UpdateStatus)
				r.Delete("/{id}", mh.Delete)
			})

			r.Route("/payments", func(r chi.Router) {
				r.Post("/", ph.Create)
				r.Post("/verify", ph.Verify)
				r.Get("/user/{userID}", ph.ListByUser)
				r.Get("/{id}", ph.Get)
				r.With(admin).Delete("/{id}", ph.Delete)
			})

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", wh.Get)
				r.Get("/transactions", wh.Transactions)
				r.Post("/withdraw", wh.Withdraw)
				r.Get("/withdrawals", wh.MyWithdrawals)
				r.With(admin).Get("/withdrawals/all", wh.AllWithdrawals)
				r.With(admin).Put("/withdrawals/{id}/process", wh.Process)
			})

			r.With(admin).Get("/admin/wallets/{userID}/reconcile", wh.Reconcile)
		})
	})

	return r
}
