package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vendormatch-engine/internal/audit"
	"vendormatch-engine/internal/auth"
	"vendormatch-engine/internal/config"
	"vendormatch-engine/internal/httpapi"
	"vendormatch-engine/internal/matching"
	"vendormatch-engine/internal/notify"
	"vendormatch-engine/internal/rules"
	"vendormatch-engine/pkg/logger"
	"vendormatch-engine/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	var notifier matching.Notifier = notify.LogNotifier{Log: log}
	if cfg.Notify.WebhookURL != "" {
		wh := notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
		wh.Log = log
		notifier = wh
	}

	engine := matching.NewService(
		matching.NewPostgresRepo(db),
		rules.NewPostgresRepo(db),
		matching.Options{
			Notifier: notifier,
			Guard:    matching.NewRedisCapacityGuard(rdb, cfg.Engine.VendorSlotTTL),
			Audit:    matching.AuditAdapter{Audit: auditSvc},
			Logger:   log,
			TopK:     cfg.Engine.TopK,
			MinScore: cfg.Engine.MinScore,
		},
	)

	h := httpapi.Handlers{
		Auth:   authManager,
		Engine: engine,
		Audit:  auditSvc,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(httpapi.AttachClientIP())

	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
