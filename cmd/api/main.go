package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/cloudconsole/engine/internal/api"
	"github.com/cloudconsole/engine/internal/api/handlers"
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

	log.Info("starting deploy engine",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("dispatch", cfg.DispatchMode),
	)

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, database.Options{Verbose: cfg.AppEnv == "development"})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	log.Info("database connected")

	rdb, err := app.Redis(ctx, cfg)
	if err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	orch, err := app.APIOrchestrator(ctx, cfg, db, rdb)
	if err != nil {
		log.Fatal("failed to build orchestrator", zap.Error(err))
	}

	var enqueuer tasks.Enqueuer
	if cfg.Queued() {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer client.Close()
		enqueuer = tasks.NewAsynqEnqueuer(client, cfg.TaskTimeout)
	}

	checks := map[string]handlers.Check{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}
	if rdb != nil {
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	router := api.NewRouter(api.Dependencies{
		CORSOrigin:         cfg.CORSAllowedOrigin,
		DeploymentsHandler: handlers.NewDeploymentsHandler(orch, enqueuer),
		HealthHandler:      handlers.NewHealthHandler(checks),
	})

	// inline sagas hold the request open for the whole terraform run
	writeTimeout := 60 * time.Second
	if !cfg.Queued() {
		writeTimeout = 0
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}
}
