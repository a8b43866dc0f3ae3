package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a console account. Rows are written by the auth collaborator;
// the deployment engine only reads them.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email" validate:"required,email"`
	PasswordHash string    `gorm:"not null;default:''" json:"-"`
	Name         string    `gorm:"not null;default:''" json:"name"`
	// CloudProvider is the provider API token substituted into templates.
	CloudProvider *string        `gorm:"column:cloud_provider" json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}
