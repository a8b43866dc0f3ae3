package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/cloudconsole/engine/internal/models"
)

type UserRepository interface {
	BaseRepository[models.User]
	GetByEmail(ctx context.Context, email string, dest *models.User) error
}

type userRepository struct {
	BaseRepository[models.User]
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{BaseRepository: NewBaseRepository[models.User](db, "user")}
}

func (r *userRepository) GetByEmail(ctx context.Context, email string, dest *models.User) error {
	return r.FindOne(ctx, dest, "email = ?", email)
}
