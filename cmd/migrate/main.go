package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/cloudconsole/engine/internal/models"
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

	db, err := database.OpenPostgres(context.Background(), cfg.DatabaseURL, database.Options{
		Verbose: cfg.AppEnv != "production",
	})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := models.Migrate(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	fmt.Fprintln(os.Stdout, "migrations completed")
}
