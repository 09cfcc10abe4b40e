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

	"dialer-platform/internal/auth"
	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/compliance"
	"dialer-platform/internal/config"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/numbers"
	"dialer-platform/internal/stats"
	"dialer-platform/internal/telephony/eventsocket"
	"dialer-platform/internal/trunks"
	"dialer-platform/internal/watchdog"
	"dialer-platform/pkg/logger"
	"dialer-platform/pkg/utils"

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

	if cfg.IsProduction() {
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

	hub := broadcast.NewHub(logger.Component(log, "broadcast"))
	defer hub.Close()

	// Duplex channel to the switch; reconnects on its own.
	switchClient := eventsocket.New(
		cfg.Switch.WSURL,
		cfg.Switch.ReconnectMin,
		cfg.Switch.ReconnectMax,
		logger.Component(log, "eventsocket"),
	)
	go switchClient.Run(rootCtx)

	store := dialer.NewPostgresStore(db)
	limiter := dialer.NewRedisChannelLimiter(rdb, cfg.Dialer.ChannelSlotTTL)
	gate := compliance.NewGate(compliance.NewPostgresRepository(db), cfg.Dialer.MaxAttemptsPerLeadDay, nil)
	assigner := numbers.NewAssigner(numbers.NewPostgresRepository(db), cfg.Dialer.DIDDailyCap, nil)
	trunkRouter := trunks.NewRouter(
		trunks.NewPostgresRepository(db),
		cfg.Dialer.TrunkHealthTTL,
		cfg.Dialer.TrunkHealthWindow,
		cfg.Switch.DefaultGateway,
		nil,
		nil,
	)
	source := stats.NewPostgresSource(db)

	orc := dialer.NewOrchestrator(
		store,
		gate,
		assigner,
		trunkRouter,
		source,
		limiter,
		switchClient,
		hub,
		dialer.Config{
			CycleInterval:    cfg.Dialer.CycleInterval,
			OfflineBackoff:   cfg.Dialer.OfflineBackoff,
			StatsWindow:      cfg.Dialer.StatsWindow,
			TargetOccupancy:  cfg.Dialer.TargetOccupancy,
			AvgHandleTimeSec: cfg.Dialer.AvgHandleTimeSec,
		},
		logger.Component(log, "orchestrator"),
	)
	registry := dialer.NewRegistry(orc)

	wd := watchdog.New(
		switchClient,
		hub,
		limiter,
		assigner,
		cfg.Dialer.SafeHarborWindow,
		cfg.Dialer.AnnouncementGrace,
		cfg.Dialer.AbandonPrompt,
		logger.Component(log, "watchdog"),
	)
	go wd.Run(rootCtx, switchClient.Events())

	// Resume loops for campaigns that were running before the last restart.
	if ids, err := store.RunningCampaignIDs(rootCtx); err != nil {
		log.Error("running campaign lookup failed", "err", err)
	} else {
		for _, id := range ids {
			registry.Start(rootCtx, id)
			log.Info("campaign loop resumed", "campaign_id", id)
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	handlers := httpapi.Handlers{
		Auth:        authManager,
		Store:       store,
		Registry:    registry,
		Stats:       source,
		RunCtx:      rootCtx,
		StatsWindow: cfg.Dialer.StatsWindow,
	}
	registerRoutes(r, authManager, handlers, hub, db)

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
	registry.StopAll()
}
