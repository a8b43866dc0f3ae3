package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloudconsole/engine/internal/lock"
	"github.com/cloudconsole/engine/internal/models"
	"github.com/cloudconsole/engine/internal/provisioner"
	"github.com/cloudconsole/engine/internal/provisioner/template"
	"github.com/cloudconsole/engine/internal/provisioner/workspace"
	"github.com/cloudconsole/engine/internal/storage"
	appErr "github.com/cloudconsole/engine/pkg/errors"
	"github.com/cloudconsole/engine/pkg/logger"
)

// Orchestrator runs the deploy and undeploy sagas. Steps run strictly in
// order and nothing is persisted between them; a failure returns at once.
type Orchestrator interface {
	Deploy(ctx context.Context, req *DeployRequest) (*DeployResult, error)
	Undeploy(ctx context.Context, req *UndeployRequest) (*UndeployResult, error)
}

type DeployResult struct {
	ProjectID  string
	Prefix     string
	Message    string
	Outputs    map[string]json.RawMessage
	Deployment *models.Deployment
}

type UndeployResult struct {
	ProjectID string
	Message   string
}

// OrchestratorDeps are the collaborators of the sagas.
type OrchestratorDeps struct {
	Catalog     CatalogService
	Store       storage.Store
	Transformer *template.Transformer
	Workspace   *workspace.Manager
	Provisioner provisioner.Provisioner
	// Locker guards undeploy per project; an in-process locker is used when nil.
	Locker lock.Locker
	// Timeout bounds a whole saga when positive.
	Timeout time.Duration
}

type orchestrator struct {
	OrchestratorDeps
	newID func() string
}

func NewOrchestrator(deps OrchestratorDeps) Orchestrator {
	if deps.Locker == nil {
		deps.Locker = lock.NewMemoryLocker()
	}
	return &orchestrator{OrchestratorDeps: deps, newID: uuid.NewString}
}

var _ Orchestrator = (*orchestrator)(nil)

func (o *orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout > 0 {
		return context.WithTimeout(ctx, o.Timeout)
	}
	return ctx, func() {}
}

func (o *orchestrator) Deploy(ctx context.Context, req *DeployRequest) (*DeployResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := o.Catalog.ResolveUser(ctx, req.UserEmail)
	if err != nil {
		return nil, err
	}
	token, err := o.Catalog.ProviderToken(user)
	if err != nil {
		return nil, err
	}

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	project := workspace.Project{Name: req.ProjectName, ID: o.newID()}
	prefix := project.Prefix()
	log := logger.L().With(
		zap.String("project_id", project.ID),
		zap.String("project_name", project.Name),
		zap.String("prefix", prefix),
	)
	log.Info("deploy accepted", zap.String("template", req.TerraformTemplate), zap.String("user_email", req.UserEmail))

	replacements := map[string]string{
		template.NodeName:    req.ProjectName + "-server",
		template.ServerType:  req.SelectedServer,
		template.Location:    req.Region,
		template.HCloudToken: token,
	}
	if err := o.Transformer.Transform(ctx, workspace.TemplatePrefix(req.TerraformTemplate), prefix, replacements, req.Distro); err != nil {
		log.Error("template transform failed, working prefix may be partially populated", zap.Bool("retriable", storage.Retriable(err)), zap.Error(err))
		return nil, storeFailure(err, appErr.CodeTemplate, "Failed to copy and modify templates from S3")
	}
	log.Info("templates copied")

	tree, err := o.Workspace.Materialize(ctx, prefix)
	if err != nil {
		log.Error("materialize failed", zap.Bool("retriable", storage.Retriable(err)), zap.Error(err))
		o.Workspace.Cleanup(o.Workspace.Dir(project))
		return nil, deployFailure(appErr.CodeOf(err), err).WithMeta("retriable", storage.Retriable(err))
	}

	res, err := o.Provisioner.ApplyPhase(ctx, tree.Dir)
	if err != nil {
		// the directory is kept for inspection; resources may be partially created
		log.Error("apply phase failed, working directory kept", zap.String("dir", tree.Dir), zap.Error(err))
		return nil, deployFailure(appErr.CodeExec, err)
	}
	log.Info("apply phase succeeded")

	if err := o.Workspace.MirrorBack(ctx, tree.Dir, prefix); err != nil {
		// the local directory holds the only copy of the new state
		log.Error("mirror back failed, working directory kept", zap.String("dir", tree.Dir), zap.Bool("retriable", storage.Retriable(err)), zap.Error(err))
		return nil, deployFailure(appErr.CodeStore, err).WithMeta("retriable", storage.Retriable(err))
	}
	o.Workspace.Cleanup(tree.Dir)
	log.Info("working tree uploaded")

	d, err := o.Catalog.InsertDeployment(ctx, req.UserEmail, req, project.ID, res.Outputs)
	if err != nil {
		log.Error("catalog insert failed, cloud resources exist but are untracked", zap.Error(err))
		return nil, err
	}
	log.Info("deployment recorded")

	return &DeployResult{
		ProjectID:  project.ID,
		Prefix:     prefix,
		Message:    "Deployment initialized and executed",
		Outputs:    res.Outputs,
		Deployment: d,
	}, nil
}

func deployFailure(code appErr.Code, err error) *appErr.AppError {
	return appErr.Wrap(err, code, fmt.Sprintf("Failed during deployment execution: %v", err))
}

func (o *orchestrator) Undeploy(ctx context.Context, req *UndeployRequest) (*UndeployResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := o.Catalog.ResolveUser(ctx, req.UserEmail)
	if err != nil {
		return nil, err
	}

	project := workspace.Project{Name: req.ProjectName, ID: req.ProjectID}
	prefix := project.Prefix()
	log := logger.L().With(
		zap.String("project_id", project.ID),
		zap.String("project_name", project.Name),
		zap.String("prefix", prefix),
	)

	release, err := o.Locker.Acquire(ctx, lock.ProjectKey(project.ID))
	if err != nil {
		log.Warn("undeploy rejected, project is locked", zap.Error(err))
		return nil, err
	}
	defer release(context.WithoutCancel(ctx))

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	log.Info("undeploy accepted", zap.String("user_id", user.ID.String()))

	tree, err := o.Workspace.Materialize(ctx, prefix)
	if err != nil {
		log.Error("materialize failed", zap.Bool("retriable", storage.Retriable(err)), zap.Error(err))
		o.Workspace.Cleanup(o.Workspace.Dir(project))
		return nil, storeFailure(err, appErr.CodeOf(err), fmt.Sprintf("Failed to download deployment files from S3: %v", err))
	}
	if tree.Objects == 0 {
		o.Workspace.Cleanup(tree.Dir)
		log.Warn("no objects under working prefix")
		return nil, appErr.New(appErr.CodeNotFound, "No files found in S3 for the given project_id")
	}

	if err := o.Provisioner.DestroyPhase(ctx, tree.Dir); err != nil {
		log.Error("destroy phase failed", zap.String("dir", tree.Dir), zap.Error(err))
		return nil, appErr.Wrap(err, appErr.CodeExec, fmt.Sprintf("Failed to destroy Terraform resources: %v", err))
	}
	log.Info("destroy phase succeeded")

	if err := o.purge(ctx, prefix); err != nil {
		log.Error("purge failed", zap.Bool("retriable", storage.Retriable(err)), zap.Error(err))
		return nil, err
	}
	log.Info("working prefix purged")

	if err := o.Catalog.DeleteDeployment(ctx, user.ID, project.ID); err != nil {
		log.Error("catalog delete failed", zap.Error(err))
		return nil, err
	}
	o.Workspace.Cleanup(tree.Dir)
	log.Info("deployment unrecorded")

	return &UndeployResult{
		ProjectID: project.ID,
		Message:   fmt.Sprintf("Deployment with project_id '%s' deleted successfully.", project.ID),
	}, nil
}

// storeFailure wraps a failed object-store step. The "retriable" meta tells
// transient outages apart from auth failures.
func storeFailure(err error, code appErr.Code, message string) *appErr.AppError {
	return appErr.Wrap(err, code, message).WithMeta("retriable", storage.Retriable(err))
}

// purge deletes every object under prefix. An empty prefix is NotFound.
func (o *orchestrator) purge(ctx context.Context, prefix string) error {
	keys, err := o.Store.List(ctx, prefix)
	if err != nil {
		return storeFailure(err, appErr.CodeStore, fmt.Sprintf("Failed to delete deployment files from S3: %v", err))
	}
	if len(keys) == 0 {
		return appErr.New(appErr.CodeNotFound, "No files found in S3 for the given project_id")
	}
	res, err := o.Store.DeleteBatch(ctx, keys)
	if err != nil {
		return storeFailure(err, appErr.CodeStore, fmt.Sprintf("Failed to delete deployment files from S3: %d of %d objects left", len(res.Failed), len(keys))).
			WithMeta("failed", res.Failed)
	}
	return nil
}
