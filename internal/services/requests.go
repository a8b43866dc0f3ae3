package services

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cloudconsole/engine/internal/provisioner/workspace"
	appErr "github.com/cloudconsole/engine/pkg/errors"
)

// SSHKeyExisting is the ssh_key_option value that requires ssh_key.
const SSHKeyExisting = "existing"

var validate = validator.New(validator.WithRequiredStructEnabled())

// DeployRequest is the body of POST /deploy.
type DeployRequest struct {
	ProjectName       string  `json:"project_name" validate:"required"`
	SelectedService   string  `json:"selected_service" validate:"oneof=AWS Azure GCP"`
	SelectedServer    string  `json:"selected_server"`
	Region            string  `json:"region"`
	VolumeSize        int     `json:"volume_size" validate:"gt=0"`
	IPOption          string  `json:"ip_option" validate:"oneof=reserved dynamic"`
	SSHKeyOption      *string `json:"ssh_key_option,omitempty"`
	SSHKey            *string `json:"ssh_key,omitempty"`
	TerraformTemplate string  `json:"terraform_template" validate:"required"`
	UserEmail         string  `json:"user_email" validate:"required"`
	// Distro overrides the __DISTRO__ placeholder; debian-12 when empty.
	Distro *string `json:"distro,omitempty"`
}

// deployMessages maps a failing field to its user-facing message.
var deployMessages = map[string]string{
	"ProjectName":       "Project name is required",
	"SelectedService":   "Invalid cloud service selected",
	"VolumeSize":        "Volume size must be greater than 0",
	"IPOption":          "Invalid IP option selected",
	"TerraformTemplate": "Terraform template is required",
	"UserEmail":         "User email is required",
}

// Validate checks the request structurally. Failures carry CodeInvalid.
func (r *DeployRequest) Validate() error {
	if strings.TrimSpace(r.ProjectName) == "" {
		return appErr.New(appErr.CodeInvalid, deployMessages["ProjectName"])
	}
	if err := validate.Struct(r); err != nil {
		return fieldError(err, deployMessages)
	}
	if r.SSHKeyOption != nil && *r.SSHKeyOption == SSHKeyExisting && r.SSHKey == nil {
		return appErr.New(appErr.CodeInvalid, "SSH key is required when using 'existing'")
	}
	if !workspace.ValidName(r.ProjectName) {
		return appErr.New(appErr.CodeInvalid, "Project name must not contain '/' or ' (project_id: '")
	}
	if strings.Contains(r.TerraformTemplate, "..") {
		return appErr.New(appErr.CodeInvalid, "Invalid terraform template")
	}
	return nil
}

// UndeployRequest is the body of POST /undeploy.
type UndeployRequest struct {
	UserEmail   string `json:"user_email" validate:"required"`
	ProjectID   string `json:"project_id" validate:"required"`
	ProjectName string `json:"project_name" validate:"required"`
}

func (r *UndeployRequest) Validate() error {
	if strings.TrimSpace(r.UserEmail) == "" || strings.TrimSpace(r.ProjectID) == "" || strings.TrimSpace(r.ProjectName) == "" {
		return appErr.New(appErr.CodeInvalid, "user_email, project_id and project_name are required")
	}
	if err := validate.Struct(r); err != nil {
		return appErr.Wrap(err, appErr.CodeInvalid, "Invalid undeploy request")
	}
	if !workspace.ValidName(r.ProjectName) || strings.ContainsAny(r.ProjectID, "/()") {
		return appErr.New(appErr.CodeInvalid, "Invalid project_name or project_id")
	}
	return nil
}

// fieldError reports the first failing field with its mapped message.
func fieldError(err error, messages map[string]string) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if msg, ok := messages[verrs[0].Field()]; ok {
			return appErr.Wrap(err, appErr.CodeInvalid, msg)
		}
	}
	return appErr.Wrap(err, appErr.CodeInvalid, "Invalid request")
}
