package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/cloudconsole/engine/pkg/errors"
)

func validDeployRequest() *DeployRequest {
	return &DeployRequest{
		ProjectName:       "demo",
		SelectedService:   "AWS",
		SelectedServer:    "cx22",
		Region:            "fsn1",
		VolumeSize:        10,
		IPOption:          "dynamic",
		TerraformTemplate: "hetzner-basic",
		UserEmail:         "dev@example.com",
	}
}

func strPtr(s string) *string { return &s }

func TestDeployRequestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(r *DeployRequest)
		msg    string
	}{
		{"valid", func(r *DeployRequest) {}, ""},
		{"blank name", func(r *DeployRequest) { r.ProjectName = "  " }, "Project name is required"},
		{"bad service", func(r *DeployRequest) { r.SelectedService = "DigitalOcean" }, "Invalid cloud service selected"},
		{"zero volume", func(r *DeployRequest) { r.VolumeSize = 0 }, "Volume size must be greater than 0"},
		{"bad ip option", func(r *DeployRequest) { r.IPOption = "static" }, "Invalid IP option selected"},
		{"existing key missing", func(r *DeployRequest) { r.SSHKeyOption = strPtr("existing") }, "SSH key is required when using 'existing'"},
		{"existing key present", func(r *DeployRequest) {
			r.SSHKeyOption = strPtr("existing")
			r.SSHKey = strPtr("ssh-ed25519 AAAA")
		}, ""},
		{"generated key", func(r *DeployRequest) { r.SSHKeyOption = strPtr("generate") }, ""},
		{"missing template", func(r *DeployRequest) { r.TerraformTemplate = "" }, "Terraform template is required"},
		{"missing email", func(r *DeployRequest) { r.UserEmail = "" }, "User email is required"},
		{"marker in name", func(r *DeployRequest) { r.ProjectName = "x (project_id: y" }, "Project name must not contain '/' or ' (project_id: '"},
		{"slash in name", func(r *DeployRequest) { r.ProjectName = "a/b" }, "Project name must not contain '/' or ' (project_id: '"},
		{"template traversal", func(r *DeployRequest) { r.TerraformTemplate = "../deployments" }, "Invalid terraform template"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validDeployRequest()
			tc.mutate(r)
			err := r.Validate()
			if tc.msg == "" {
				require.NoError(t, err)
				return
			}
			require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
			require.Equal(t, tc.msg, appErr.MessageOf(err))
		})
	}
}

func TestUndeployRequestValidate(t *testing.T) {
	ok := &UndeployRequest{UserEmail: "dev@example.com", ProjectID: "42", ProjectName: "demo"}
	require.NoError(t, ok.Validate())

	for _, r := range []*UndeployRequest{
		{ProjectID: "42", ProjectName: "demo"},
		{UserEmail: "dev@example.com", ProjectName: "demo"},
		{UserEmail: "dev@example.com", ProjectID: "42", ProjectName: " "},
	} {
		err := r.Validate()
		require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
		require.Equal(t, "user_email, project_id and project_name are required", appErr.MessageOf(err))
	}

	bad := &UndeployRequest{UserEmail: "dev@example.com", ProjectID: "42)/x", ProjectName: "demo"}
	require.True(t, appErr.IsCode(bad.Validate(), appErr.CodeInvalid))
}
