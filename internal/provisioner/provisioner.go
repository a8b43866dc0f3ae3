package provisioner

import (
	"context"
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"github.com/cloudconsole/engine/internal/provisioner/terraform"
	appErr "github.com/cloudconsole/engine/pkg/errors"
	"github.com/cloudconsole/engine/pkg/logger"
)

// Provisioner drives the IaC tool through a materialized working directory.
type Provisioner interface {
	// ApplyPhase runs init, plan and apply, stopping at the first failure.
	ApplyPhase(ctx context.Context, dir string) (*ApplyResult, error)

	// DestroyPhase runs destroy and removes dir on success.
	DestroyPhase(ctx context.Context, dir string) error
}

type ApplyResult struct {
	HasChanges bool
	Outputs    map[string]json.RawMessage
}

// TerraformProvisioner implements Provisioner using Terraform
type TerraformProvisioner struct {
	newRunner terraform.Factory
}

var _ Provisioner = (*TerraformProvisioner)(nil)

func NewTerraformProvisioner(factory terraform.Factory) *TerraformProvisioner {
	return &TerraformProvisioner{newRunner: factory}
}

func (t *TerraformProvisioner) runner(dir string) (terraform.Runner, error) {
	r, err := t.newRunner(dir)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeExec, "terraform unavailable")
	}
	return r, nil
}

func (t *TerraformProvisioner) ApplyPhase(ctx context.Context, dir string) (*ApplyResult, error) {
	log := logger.Named("provisioner").With(zap.String("dir", dir))

	r, err := t.runner(dir)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if err := r.Init(ctx); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeExec, "terraform init failed")
	}
	changes, err := r.Plan(ctx)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeExec, "terraform plan failed")
	}
	if err := r.Apply(ctx); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeExec, "terraform apply failed")
	}

	res := &ApplyResult{HasChanges: changes}
	outputs, err := r.Output(ctx)
	if err != nil {
		// resources exist at this point; missing outputs must not fail the phase
		log.Warn("failed to get outputs", zap.Error(err))
	} else {
		res.Outputs = outputs
	}

	log.Info("apply phase completed", zap.Bool("changes", changes), zap.Int("outputs", len(res.Outputs)))
	return res, nil
}

func (t *TerraformProvisioner) DestroyPhase(ctx context.Context, dir string) error {
	log := logger.Named("provisioner").With(zap.String("dir", dir))

	r, err := t.runner(dir)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.Destroy(ctx); err != nil {
		return appErr.Wrap(err, appErr.CodeExec, "terraform destroy failed")
	}

	if err := os.RemoveAll(dir); err != nil {
		log.Error("failed to remove working directory", zap.Error(err))
	}
	log.Info("destroy phase completed")
	return nil
}
