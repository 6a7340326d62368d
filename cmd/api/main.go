package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rbeauvoir/transfer-backend/internal/api"
	"github.com/rbeauvoir/transfer-backend/internal/auth"
	"github.com/rbeauvoir/transfer-backend/internal/config"
	"github.com/rbeauvoir/transfer-backend/internal/db"
	"github.com/rbeauvoir/transfer-backend/internal/events"
	"github.com/rbeauvoir/transfer-backend/internal/logger"
	"github.com/rbeauvoir/transfer-backend/internal/metrics"
	"github.com/rbeauvoir/transfer-backend/internal/moncash"
	"github.com/rbeauvoir/transfer-backend/internal/repository/postgres"
	"github.com/rbeauvoir/transfer-backend/internal/secrets"
	"github.com/rbeauvoir/transfer-backend/internal/services"
	"github.com/rbeauvoir/transfer-backend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if os.Getenv("APP_MIGRATE") == "true" {
		if err := db.RunMigrations(ctx, pool); err != nil {
			log.Error("migrations", "err", err)
			os.Exit(1)
		}
	}

	creds, err := secrets.LoadMoncash(ctx, cfg)
	if err != nil {
		log.Error("moncash credentials", "err", err)
		os.Exit(1)
	}
	gateway := moncash.NewClient(cfg.MoncashAPIBase, cfg.MoncashWebBase, creds, 10*time.Second)

	var pub *events.Publisher
	if cfg.NATSURL != "" {
		pub, err = events.Connect(cfg.NATSURL)
		if err != nil {
			log.Error("nats connect", "err", err)
			os.Exit(1)
		}
		defer pub.Close()
	}

	metrics.Init()

	repos := postgres.NewRepositories(pool)
	wp := worker.NewPool(4)
	defer wp.Stop()

	tm := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	userSvc := services.NewUserService(repos.Users, tm)
	paySvc := services.NewPaymentService(repos.Transactions, repos.AuditLogs, gateway, pub, wp, cfg.CheckoutURL, cfg.PendingTTL)

	go expiryLoop(ctx, paySvc, log)

	r := api.NewRouter(cfg, tm, userSvc, paySvc)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func expiryLoop(ctx context.Context, svc *services.PaymentService, log *slog.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.ExpireStale(ctx)
			if err != nil {
				log.Error("expiry sweep", "err", err)
				continue
			}
			if n > 0 {
				log.Info("expired stale transactions", "count", n)
			}
		}
	}
}
