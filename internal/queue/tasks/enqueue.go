package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/cloudconsole/engine/internal/services"
	appErr "github.com/cloudconsole/engine/pkg/errors"
	"github.com/cloudconsole/engine/pkg/logger"
)

// Enqueuer hands validated saga requests to the worker.
type Enqueuer interface {
	EnqueueDeploy(ctx context.Context, req *services.DeployRequest) (string, error)
	EnqueueUndeploy(ctx context.Context, req *services.UndeployRequest) (string, error)
}

// TaskClient is the subset of *asynq.Client used by AsynqEnqueuer.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type AsynqEnqueuer struct {
	client  TaskClient
	timeout time.Duration
	// retention keeps completed task results around for inspection.
	retention time.Duration
}

var _ Enqueuer = (*AsynqEnqueuer)(nil)

func NewAsynqEnqueuer(client TaskClient, timeout time.Duration) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client, timeout: timeout, retention: 24 * time.Hour}
}

// NewDeployTask builds a deploy task.
func NewDeployTask(req *services.DeployRequest) (*asynq.Task, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDeploy, b), nil
}

// NewUndeployTask builds an undeploy task.
func NewUndeployTask(req *services.UndeployRequest) (*asynq.Task, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeUndeploy, b), nil
}

func (e *AsynqEnqueuer) options() []asynq.Option {
	opts := []asynq.Option{asynq.MaxRetry(0), asynq.Retention(e.retention)}
	if e.timeout > 0 {
		opts = append(opts, asynq.Timeout(e.timeout))
	}
	return opts
}

func (e *AsynqEnqueuer) EnqueueDeploy(ctx context.Context, req *services.DeployRequest) (string, error) {
	task, err := NewDeployTask(req)
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeInternal, "encode deploy task failed")
	}
	return e.enqueue(ctx, task)
}

func (e *AsynqEnqueuer) EnqueueUndeploy(ctx context.Context, req *services.UndeployRequest) (string, error) {
	task, err := NewUndeployTask(req)
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeInternal, "encode undeploy task failed")
	}
	return e.enqueue(ctx, task)
}

func (e *AsynqEnqueuer) enqueue(ctx context.Context, task *asynq.Task) (string, error) {
	info, err := e.client.EnqueueContext(ctx, task, e.options()...)
	if err != nil {
		logger.L().Error("enqueue task failed", zap.String("type", task.Type()), zap.Error(err))
		return "", appErr.Wrap(err, appErr.CodeUnavailable, "Failed to enqueue task")
	}
	logger.L().Info("task enqueued", zap.String("type", task.Type()), zap.String("task_id", info.ID), zap.String("queue", info.Queue))
	return info.ID, nil
}
