package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/cloudconsole/engine/internal/models"
	"github.com/cloudconsole/engine/internal/repository"
	appErr "github.com/cloudconsole/engine/pkg/errors"
	"github.com/cloudconsole/engine/pkg/logger"
)

// CatalogService is the metadata catalog as seen by the sagas.
type CatalogService interface {
	ResolveUser(ctx context.Context, email string) (*models.User, error)
	// ProviderToken returns the user's stored cloud credential.
	ProviderToken(user *models.User) (string, error)
	// InsertDeployment resolves the user by email and writes one record.
	InsertDeployment(ctx context.Context, email string, req *DeployRequest, projectID string, outputs map[string]json.RawMessage) (*models.Deployment, error)
	DeleteDeployment(ctx context.Context, userID uuid.UUID, projectID string) error
}

type catalogService struct {
	users       repository.UserRepository
	deployments repository.DeploymentRepository
	now         func() time.Time
}

func NewCatalogService(users repository.UserRepository, deployments repository.DeploymentRepository) CatalogService {
	return &catalogService{users: users, deployments: deployments, now: time.Now}
}

var _ CatalogService = (*catalogService)(nil)

func (s *catalogService) ResolveUser(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.users.GetByEmail(ctx, email, &u); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.Newf(appErr.CodeUserNotFound, "User with email '%s' not found", email)
		}
		logger.L().Error("user lookup failed", zap.String("email", email), zap.Error(err))
		return nil, appErr.Wrap(err, appErr.CodeCatalog, "Internal server error while verifying user")
	}
	return &u, nil
}

func (s *catalogService) ProviderToken(user *models.User) (string, error) {
	if user.CloudProvider == nil || *user.CloudProvider == "" {
		return "", appErr.New(appErr.CodeProviderUnset, "Cloud provider not set for this user. Cannot proceed with deployment.")
	}
	return *user.CloudProvider, nil
}

func (s *catalogService) InsertDeployment(ctx context.Context, email string, req *DeployRequest, projectID string, outputs map[string]json.RawMessage) (*models.Deployment, error) {
	u, err := s.ResolveUser(ctx, email)
	if err != nil {
		return nil, err
	}

	d := &models.Deployment{
		ProjectID:         projectID,
		UserID:            u.ID,
		ProjectName:       req.ProjectName,
		SelectedService:   req.SelectedService,
		SelectedServer:    req.SelectedServer,
		Region:            req.Region,
		VolumeSize:        req.VolumeSize,
		IPOption:          req.IPOption,
		SSHKey:            req.SSHKey,
		TerraformTemplate: req.TerraformTemplate,
		Status:            models.StatusInitiated,
		Timestamp:         s.now().UTC().Truncate(time.Second),
	}
	if len(outputs) > 0 {
		b, err := json.Marshal(outputs)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.CodeCatalog, "Failed to save metadata")
		}
		d.Outputs = datatypes.JSON(b)
	}

	if err := s.deployments.Create(ctx, d); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeCatalog, "Failed to save metadata")
	}
	logger.L().Info("deployment metadata stored",
		zap.String("project_id", projectID),
		zap.String("user_id", u.ID.String()),
		zap.String("timestamp", d.FormattedTimestamp()),
	)
	return d, nil
}

func (s *catalogService) DeleteDeployment(ctx context.Context, userID uuid.UUID, projectID string) error {
	if err := s.deployments.DeleteForUser(ctx, userID, projectID); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return appErr.Wrap(err, appErr.CodeNotFound, "No matching deployment found to delete.")
		}
		return appErr.Wrap(err, appErr.CodeCatalog, fmt.Sprintf("Failed to delete deployment %s", projectID))
	}
	return nil
}
