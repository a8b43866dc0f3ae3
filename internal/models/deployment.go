package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// StatusInitiated is the only status written; records exist only for
// deployments whose apply succeeded.
const StatusInitiated = "initiated"

// TimestampLayout is the second-precision UTC layout of Deployment.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Deployment is the catalog record of a provisioned project. It is
// inserted once after a successful apply and deleted on undeploy.
type Deployment struct {
	ProjectID         string         `gorm:"type:varchar(64);primaryKey" json:"project_id"`
	UserID            uuid.UUID      `gorm:"type:uuid;index;not null" json:"user_id"`
	ProjectName       string         `gorm:"not null" json:"project_name"`
	SelectedService   string         `gorm:"type:varchar(16);not null" json:"selected_service"`
	SelectedServer    string         `json:"selected_server"`
	Region            string         `json:"region"`
	VolumeSize        int            `gorm:"not null" json:"volume_size"`
	IPOption          string         `gorm:"type:varchar(16);not null" json:"ip_option"`
	SSHKey            *string        `json:"ssh_key"`
	TerraformTemplate string         `gorm:"not null" json:"terraform_template"`
	Status            string         `gorm:"type:varchar(32);index;not null" json:"status"`
	Timestamp         time.Time      `gorm:"not null" json:"timestamp"`
	Outputs           datatypes.JSON `gorm:"type:jsonb" json:"outputs"`
}

// FormattedTimestamp renders Timestamp as "YYYY-MM-DD HH:MM:SS" in UTC.
func (d *Deployment) FormattedTimestamp() string {
	return d.Timestamp.UTC().Format(TimestampLayout)
}
