package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/clinicdesk/agenda-bot/internal/config"
	"github.com/clinicdesk/agenda-bot/internal/conversation"
	"github.com/clinicdesk/agenda-bot/internal/db"
	"github.com/clinicdesk/agenda-bot/internal/ops"
	"github.com/clinicdesk/agenda-bot/internal/redislock"
	"github.com/clinicdesk/agenda-bot/internal/reminder"
	"github.com/clinicdesk/agenda-bot/internal/respond"
	"github.com/clinicdesk/agenda-bot/internal/schedule"
	"github.com/clinicdesk/agenda-bot/internal/transport"
	"github.com/clinicdesk/agenda-bot/pkg/logging"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("agenda-bot starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "version", version)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redislock.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Error("redis connection error", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	tg, err := transport.NewTelegram(cfg.TelegramToken, logger.With("component", "telegram"))
	if err != nil {
		logger.Error("telegram setup error", "error", err)
		os.Exit(1)
	}

	store := schedule.NewPgStore(pgPool)
	locker := redislock.NewSlotLocker(rdb, cfg.LockTTL)
	responder := respond.New(respond.Options{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
		Logger:  logger.With("component", "respond"),
	})

	composer := conversation.NewComposer(responder, tg, store, logger.With("component", "composer"))
	engine := conversation.NewEngine(conversation.EngineParams{
		Store:          store,
		Locker:         locker,
		Composer:       composer,
		Logger:         logger.With("component", "engine"),
		Location:       cfg.Location(),
		MaxDateRetries: cfg.MaxDateRetries,
		StoreTimeout:   cfg.StoreTimeout,
	})

	scheduler := reminder.NewScheduler(reminder.Params{
		Store:        store,
		Transport:    tg,
		Logger:       logger.With("component", "reminder"),
		Location:     cfg.Location(),
		Interval:     cfg.ReminderInterval,
		InitialDelay: cfg.ReminderDelay,
		StoreTimeout: cfg.StoreTimeout,
	})

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: ops.NewRouter(ops.RouterConfig{
			Postgres: pgPool,
			Redis:    rdb,
			Logger:   logger.With("component", "ops"),
			Env:      cfg.Env,
			Version:  version,
		}),
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(rootCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("ops endpoints listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		tg.Listen(rootCtx, engine)
	}()

	<-rootCtx.Done()
	logger.Info("shutting down agenda-bot")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", "error", err)
	}

	wg.Wait()
	logger.Info("shutdown complete")
}
