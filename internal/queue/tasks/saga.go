package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/cloudconsole/engine/internal/services"
	appErr "github.com/cloudconsole/engine/pkg/errors"
	"github.com/cloudconsole/engine/pkg/logger"
)

// Task types handled by the worker.
const (
	TypeDeploy   = "deployment:deploy"
	TypeUndeploy = "deployment:undeploy"
)

// SagaTaskHandler runs queued deploy and undeploy sagas.
type SagaTaskHandler struct {
	orch services.Orchestrator
}

func NewSagaTaskHandler(orch services.Orchestrator) *SagaTaskHandler {
	return &SagaTaskHandler{orch: orch}
}

// Register binds the handler to its task types.
func (h *SagaTaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeDeploy, h.HandleDeploy)
	mux.HandleFunc(TypeUndeploy, h.HandleUndeploy)
}

func (h *SagaTaskHandler) HandleDeploy(ctx context.Context, t *asynq.Task) error {
	var req services.DeployRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		logger.L().Error("invalid deploy task payload", zap.Error(err))
		return fmt.Errorf("decode deploy payload: %v: %w", err, asynq.SkipRetry)
	}

	taskID, _ := asynq.GetTaskID(ctx)
	logger.L().Info("handling deploy task", zap.String("task_id", taskID), zap.String("project_name", req.ProjectName))

	res, err := h.orch.Deploy(ctx, &req)
	if err != nil {
		return sagaFailed("deploy", taskID, err)
	}
	logger.L().Info("deploy task completed", zap.String("task_id", taskID), zap.String("project_id", res.ProjectID))
	writeResult(t, res.ProjectID, res.Message)
	return nil
}

func (h *SagaTaskHandler) HandleUndeploy(ctx context.Context, t *asynq.Task) error {
	var req services.UndeployRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		logger.L().Error("invalid undeploy task payload", zap.Error(err))
		return fmt.Errorf("decode undeploy payload: %v: %w", err, asynq.SkipRetry)
	}

	taskID, _ := asynq.GetTaskID(ctx)
	logger.L().Info("handling undeploy task", zap.String("task_id", taskID), zap.String("project_id", req.ProjectID))

	res, err := h.orch.Undeploy(ctx, &req)
	if err != nil {
		return sagaFailed("undeploy", taskID, err)
	}
	logger.L().Info("undeploy task completed", zap.String("task_id", taskID), zap.String("project_id", res.ProjectID))
	writeResult(t, res.ProjectID, res.Message)
	return nil
}

// sagaFailed logs the failure and stops asynq from retrying; sagas are not
// idempotent once cloud resources are touched.
func sagaFailed(kind, taskID string, err error) error {
	logger.L().Error(kind+" task failed",
		zap.String("task_id", taskID),
		zap.String("code", string(appErr.CodeOf(err))),
		zap.Error(err),
	)
	return fmt.Errorf("%s: %s: %w", kind, appErr.MessageOf(err), asynq.SkipRetry)
}

type taskResult struct {
	ProjectID string `json:"project_id"`
	Message   string `json:"message"`
}

// writeResult stores the outcome for inspection; ResultWriter is nil
// outside a running server.
func writeResult(t *asynq.Task, projectID, message string) {
	w := t.ResultWriter()
	if w == nil {
		return
	}
	b, _ := json.Marshal(taskResult{ProjectID: projectID, Message: message})
	if _, err := w.Write(b); err != nil {
		logger.L().Warn("write task result failed", zap.Error(err))
	}
}
