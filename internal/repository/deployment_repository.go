package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cloudconsole/engine/internal/models"
)

type DeploymentRepository interface {
	BaseRepository[models.Deployment]
	// DeleteForUser removes the record only when it belongs to userID.
	DeleteForUser(ctx context.Context, userID uuid.UUID, projectID string) error
}

type deploymentRepository struct {
	BaseRepository[models.Deployment]
}

func NewDeploymentRepository(db *gorm.DB) DeploymentRepository {
	return &deploymentRepository{BaseRepository: NewBaseRepository[models.Deployment](db, "deployment")}
}

func (r *deploymentRepository) DeleteForUser(ctx context.Context, userID uuid.UUID, projectID string) error {
	return r.DeleteWhere(ctx, "user_id = ? AND project_id = ?", userID, projectID)
}
