package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gigledger/escrow/internal/api"
	"github.com/gigledger/escrow/internal/auth"
	"github.com/gigledger/escrow/internal/config"
	"github.com/gigledger/escrow/internal/db"
	"github.com/gigledger/escrow/internal/events"
	"github.com/gigledger/escrow/internal/gateway"
	"github.com/gigledger/escrow/internal/idempotency"
	"github.com/gigledger/escrow/internal/logger"
	"github.com/gigledger/escrow/internal/metrics"
	repo "github.com/gigledger/escrow/internal/repository"
	"github.com/gigledger/escrow/internal/repository/memory"
	"github.com/gigledger/escrow/internal/repository/postgres"
	"github.com/gigledger/escrow/internal/services"
	"github.com/gigledger/escrow/internal/worker"
)

const accessTokenTTL = time.Hour

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)
	for _, w := range cfg.Warnings {
		log.Warn("config", "warning", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store repo.Store
	if cfg.Store == "memory" {
		log.Warn("using in-memory store, data is lost on exit")
		store = memory.NewStore()
	} else {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("db connect", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if cfg.Migrate {
			if err := db.RunMigrations(ctx, pool, log); err != nil {
				log.Error("migrations", "err", err)
				os.Exit(1)
			}
		}
		store = postgres.NewStore(pool)
	}

	var idem idempotency.Store = idempotency.NewMemory(idempotency.DefaultTTL)
	if cfg.RedisURL != "" {
		client, err := idempotency.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Error("redis connect", "err", err)
			os.Exit(1)
		}
		defer client.Close()
		idem = idempotency.NewRedis(client, idempotency.DefaultTTL)
	}

	var pub events.Publisher = events.NewLogPublisher(log)
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka publisher", "err", err)
			os.Exit(1)
		}
		defer kp.Close()
		pub = kp
	}

	wp := worker.NewPool(cfg.WorkerCount, log)
	// runs before kp.Close so queued events still reach the broker
	defer wp.Stop()
	bus := events.NewBus(pub, wp, log)

	var gw gateway.Gateway
	if cfg.RazorpayKeyID != "" {
		gw = gateway.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	} else {
		log.Warn("RAZORPAY_KEY_ID not set, using sandbox gateway")
		gw = gateway.NewSandbox()
	}
	signer := gateway.NewSigner(cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret)
	switch {
	case signer.WebhookEnabled():
	case cfg.IsDev():
		log.Warn("RAZORPAY_WEBHOOK_SECRET not set, accepting unsigned webhooks in dev")
	default:
		log.Error("RAZORPAY_WEBHOOK_SECRET not set, payment status webhooks will be refused")
	}

	payments := services.NewPaymentService(store, gw, signer, idem, bus, services.PaymentConfig{
		FeePercent:         cfg.PlatformFeePercent,
		SettlementCurrency: cfg.SettlementCurrency,
		ExchangeRate:       cfg.USDExchangeRate,
	}, log)

	metrics.Init()
	r := api.NewRouter(api.RouterDeps{
		Cfg:         cfg,
		Tokens:      auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, accessTokenTTL),
		Signer:      signer,
		Payments:    payments,
		Milestones:  services.NewMilestoneService(store, payments, log),
		Wallets:     services.NewWalletService(store, log),
		Withdrawals: services.NewWithdrawalService(store, idem, bus, cfg.MinWithdrawal, log),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "env", cfg.Env, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
