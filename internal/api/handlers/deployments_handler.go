package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/cloudconsole/engine/internal/api/middleware"
	"github.com/cloudconsole/engine/internal/api/types"
	"github.com/cloudconsole/engine/internal/queue/tasks"
	"github.com/cloudconsole/engine/internal/services"
	appErr "github.com/cloudconsole/engine/pkg/errors"
	"github.com/cloudconsole/engine/pkg/logger"
)

// DeploymentsHandler serves /deploy and /undeploy. With a nil enqueuer the
// sagas run inside the request.
type DeploymentsHandler struct {
	orch     services.Orchestrator
	enqueuer tasks.Enqueuer
}

func NewDeploymentsHandler(orch services.Orchestrator, enqueuer tasks.Enqueuer) *DeploymentsHandler {
	return &DeploymentsHandler{orch: orch, enqueuer: enqueuer}
}

func (h *DeploymentsHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	var req services.DeployRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	log := logger.L().With(zap.String("id", middleware.GetRequestID(r.Context())))

	if h.enqueuer != nil {
		if err := req.Validate(); err != nil {
			writeError(w, err)
			return
		}
		taskID, err := h.enqueuer.EnqueueDeploy(r.Context(), &req)
		if err != nil {
			writeError(w, err)
			return
		}
		log.Info("deploy queued", zap.String("task_id", taskID), zap.String("project_name", req.ProjectName))
		writeJSON(w, http.StatusAccepted, types.Success("Deployment queued", types.TaskAccepted{TaskID: taskID}))
		return
	}

	// a dropped client must not interrupt a running terraform
	res, err := h.orch.Deploy(context.WithoutCancel(r.Context()), &req)
	if err != nil {
		log.Warn("deploy failed", zap.String("code", string(appErr.CodeOf(err))), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.Success(res.Message, nil))
}

func (h *DeploymentsHandler) Undeploy(w http.ResponseWriter, r *http.Request) {
	var req services.UndeployRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	log := logger.L().With(zap.String("id", middleware.GetRequestID(r.Context())))

	if h.enqueuer != nil {
		if err := req.Validate(); err != nil {
			writeError(w, err)
			return
		}
		taskID, err := h.enqueuer.EnqueueUndeploy(r.Context(), &req)
		if err != nil {
			writeError(w, err)
			return
		}
		log.Info("undeploy queued", zap.String("task_id", taskID), zap.String("project_id", req.ProjectID))
		writeJSON(w, http.StatusAccepted, types.Success("Undeployment queued", types.TaskAccepted{TaskID: taskID}))
		return
	}

	res, err := h.orch.Undeploy(context.WithoutCancel(r.Context()), &req)
	if err != nil {
		log.Warn("undeploy failed", zap.String("code", string(appErr.CodeOf(err))), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.Success(res.Message, nil))
}
