package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/cloudconsole/engine/internal/app"
	"github.com/cloudconsole/engine/internal/queue/tasks"
	"github.com/cloudconsole/engine/pkg/config"
	"github.com/cloudconsole/engine/pkg/database"
	"github.com/cloudconsole/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required for the worker")
	}

	ctx := context.Background()
	rdb, err := app.Redis(ctx, cfg)
	if err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	defer rdb.Close()

	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, database.Options{})
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}

	orch, err := app.NewOrchestrator(ctx, cfg, db, rdb)
	if err != nil {
		log.Fatal("failed to build orchestrator", zap.Error(err))
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword},
		asynq.Config{
			Concurrency:     cfg.AsynqConcurrency,
			ShutdownTimeout: cfg.ShutdownTimeout,
			Logger:          log.Named("asynq").Sugar(),
		},
	)

	mux := asynq.NewServeMux()
	tasks.NewSagaTaskHandler(orch).Register(mux)

	log.Info("asynq worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
	if err := srv.Start(mux); err != nil {
		log.Fatal("worker failed to start", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	// waits for in-flight sagas up to SHUTDOWN_TIMEOUT
	srv.Shutdown()
}
