package provisioner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloudconsole/engine/internal/provisioner/terraform"
	appErr "github.com/cloudconsole/engine/pkg/errors"
	"github.com/cloudconsole/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("info", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Init(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockRunner) Plan(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockRunner) Apply(ctx context.Context) error   { return m.Called(ctx).Error(0) }
func (m *mockRunner) Destroy(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockRunner) Output(ctx context.Context) (map[string]json.RawMessage, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(map[string]json.RawMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRunner) Close() { m.Called() }

func factoryFor(r terraform.Runner) terraform.Factory {
	return func(string) (terraform.Runner, error) { return r, nil }
}

func TestApplyPhaseRunsInitPlanApply(t *testing.T) {
	ctx := context.Background()
	r := &mockRunner{}
	r.On("Init", ctx).Return(nil).Once()
	r.On("Plan", ctx).Return(true, nil).Once()
	r.On("Apply", ctx).Return(nil).Once()
	r.On("Output", ctx).Return(map[string]json.RawMessage{"ip": json.RawMessage(`"10.0.0.1"`)}, nil).Once()
	r.On("Close").Return()

	res, err := NewTerraformProvisioner(factoryFor(r)).ApplyPhase(ctx, t.TempDir())
	require.NoError(t, err)
	require.True(t, res.HasChanges)
	require.Equal(t, json.RawMessage(`"10.0.0.1"`), res.Outputs["ip"])
	r.AssertExpectations(t)
}

func TestApplyPhaseStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	r := &mockRunner{}
	r.On("Init", ctx).Return(nil)
	r.On("Plan", ctx).Return(false, errors.New("exit status 1"))
	r.On("Close").Return()

	_, err := NewTerraformProvisioner(factoryFor(r)).ApplyPhase(ctx, t.TempDir())
	require.True(t, appErr.IsCode(err, appErr.CodeExec))
	require.Contains(t, err.Error(), "plan")
	r.AssertNotCalled(t, "Apply", mock.Anything)
}

func TestApplyPhaseToleratesOutputFailure(t *testing.T) {
	ctx := context.Background()
	r := &mockRunner{}
	r.On("Init", ctx).Return(nil)
	r.On("Plan", ctx).Return(false, nil)
	r.On("Apply", ctx).Return(nil)
	r.On("Output", ctx).Return(nil, errors.New("no outputs"))
	r.On("Close").Return()

	res, err := NewTerraformProvisioner(factoryFor(r)).ApplyPhase(ctx, t.TempDir())
	require.NoError(t, err)
	require.Nil(t, res.Outputs)
}

func TestFactoryFailureIsExecError(t *testing.T) {
	p := NewTerraformProvisioner(func(string) (terraform.Runner, error) {
		return nil, errors.New("terraform not found")
	})
	_, err := p.ApplyPhase(context.Background(), t.TempDir())
	require.True(t, appErr.IsCode(err, appErr.CodeExec))
	require.True(t, appErr.IsCode(p.DestroyPhase(context.Background(), t.TempDir()), appErr.CodeExec))
}

func TestDestroyPhaseRemovesDirOnSuccess(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "demo (project_id= 1)")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	r := &mockRunner{}
	r.On("Destroy", ctx).Return(nil)
	r.On("Close").Return()

	require.NoError(t, NewTerraformProvisioner(factoryFor(r)).DestroyPhase(ctx, dir))
	require.NoDirExists(t, dir)
}

func TestDestroyPhaseKeepsDirOnFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	r := &mockRunner{}
	r.On("Destroy", ctx).Return(errors.New("exit status 1"))
	r.On("Close").Return()

	err := NewTerraformProvisioner(factoryFor(r)).DestroyPhase(ctx, dir)
	require.True(t, appErr.IsCode(err, appErr.CodeExec))
	require.DirExists(t, dir)
}
