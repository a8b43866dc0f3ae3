// Package app assembles the orchestrator shared by the HTTP server and the worker.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cloudconsole/engine/internal/lock"
	"github.com/cloudconsole/engine/internal/provisioner"
	"github.com/cloudconsole/engine/internal/provisioner/template"
	"github.com/cloudconsole/engine/internal/provisioner/terraform"
	"github.com/cloudconsole/engine/internal/provisioner/workspace"
	"github.com/cloudconsole/engine/internal/repository"
	"github.com/cloudconsole/engine/internal/services"
	"github.com/cloudconsole/engine/internal/storage"
	"github.com/cloudconsole/engine/pkg/config"
	"github.com/cloudconsole/engine/pkg/logger"
)

// Redis returns a client for cfg.RedisAddr, or nil when it is unset.
func Redis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// APIOrchestrator returns the orchestrator for the HTTP server. In queue
// mode the server only enqueues, so it returns nil and skips the terraform
// and object-store setup that only the worker needs.
func APIOrchestrator(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (services.Orchestrator, error) {
	if cfg.Queued() {
		logger.L().Info("queue dispatch, sagas run in the worker")
		return nil, nil
	}
	return NewOrchestrator(ctx, cfg, db, rdb)
}

// NewOrchestrator wires the object store, working trees, terraform and the
// catalog. rdb may be nil, in which case project locks are process-local.
func NewOrchestrator(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (services.Orchestrator, error) {
	store, err := storage.NewS3FromConfig(ctx, storage.S3Options{
		Bucket:   cfg.S3Bucket,
		Region:   cfg.AWSRegion,
		Endpoint: cfg.S3Endpoint,
	})
	if err != nil {
		return nil, err
	}

	trees, err := workspace.NewManager(store, cfg.WorkingDir)
	if err != nil {
		return nil, err
	}

	factory, err := terraform.NewFactory(cfg.TerraformBin)
	if err != nil {
		return nil, err
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL)
	}

	logger.L().Info("orchestrator ready",
		zap.String("bucket", store.Bucket()),
		zap.String("working_dir", trees.Root()),
		zap.Bool("distributed_lock", rdb != nil),
	)

	return services.NewOrchestrator(services.OrchestratorDeps{
		Catalog:     services.NewCatalogService(repository.NewUserRepository(db), repository.NewDeploymentRepository(db)),
		Store:       store,
		Transformer: template.NewTransformer(store),
		Workspace:   trees,
		Provisioner: provisioner.NewTerraformProvisioner(factory),
		Locker:      locker,
		Timeout:     cfg.ProvisionTimeout,
	}), nil
}
