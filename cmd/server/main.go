package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/chat-application/internal/config"
	"github.com/iliyamo/chat-application/internal/database"
	"github.com/iliyamo/chat-application/internal/logging"
	"github.com/iliyamo/chat-application/internal/queue"
	"github.com/iliyamo/chat-application/internal/router"
	"github.com/iliyamo/chat-application/internal/service"
	"github.com/iliyamo/chat-application/internal/session"
	"github.com/iliyamo/chat-application/internal/storage"
)

// Exit codes.
const (
	exitOK = iota
	exitConfig
	exitDatabase
	exitServer
)

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is fine; the environment may be set by the caller.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	defer func() { _ = logger.Sync() }()
	if cfg.IsProd() && cfg.SessionKey == "" {
		logger.Error("SESSION_KEY is required in production")
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		logger.Error("open database", zap.String("driver", cfg.DBDriver), zap.Error(err))
		return exitDatabase
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		logger.Error("migrate database", zap.Error(err))
		return exitDatabase
	}
	if err := os.MkdirAll(cfg.MediaRoot, 0o755); err != nil {
		logger.Error("create media root", zap.String("path", cfg.MediaRoot), zap.Error(err))
		return exitConfig
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		logger.Warn("redis unavailable; rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}

	deps := router.Deps{
		Cfg:       cfg,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		DB:        db,
		Redis:     rdb,
		Sessions:  session.NewManager(cfg.SessionKey, cfg.SessionName, cfg.SessionSecure, logger),
		Media:     storage.NewLocal(cfg.MediaRoot, cfg.MediaURL),
		Log:       logger,
	}

	events := config.LoadEventsConfig()
	if events.Enabled {
		pub := service.NewAMQPPublisher(events, logger)
		defer pub.Close()
		deps.Events = pub
	}
	if events.Consumer {
		go func() {
			if err := queue.StartMessageConsumer(ctx, events, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("message consumer stopped", zap.Error(err))
			}
		}()
	}

	e := router.New(deps)
	addr := ":" + cfg.Port
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		serverErr <- e.Start(addr)
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			return exitServer
		}
		return exitOK
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", zap.Error(err))
		return exitServer
	}
	return exitOK
}
