package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloudconsole/engine/internal/services"
	appErr "github.com/cloudconsole/engine/pkg/errors"
	"github.com/cloudconsole/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests (required by tasks)
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type mockOrchestrator struct {
	mock.Mock
}

func (m *mockOrchestrator) Deploy(ctx context.Context, req *services.DeployRequest) (*services.DeployResult, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*services.DeployResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrchestrator) Undeploy(ctx context.Context, req *services.UndeployRequest) (*services.UndeployResult, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*services.UndeployResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockTaskClient struct {
	mock.Mock
}

func (m *mockTaskClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	if v := args.Get(0); v != nil {
		return v.(*asynq.TaskInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func deployRequest() *services.DeployRequest {
	return &services.DeployRequest{
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

func TestSagaTaskHandler_HandleDeploy(t *testing.T) {
	t.Run("successful deploy", func(t *testing.T) {
		orch := &mockOrchestrator{}
		req := deployRequest()
		task, err := NewDeployTask(req)
		require.NoError(t, err)

		orch.On("Deploy", mock.Anything, req).
			Return(&services.DeployResult{ProjectID: "pid", Message: "Deployment initialized and executed"}, nil).Once()

		require.NoError(t, NewSagaTaskHandler(orch).HandleDeploy(context.Background(), task))
		orch.AssertExpectations(t)
	})

	t.Run("saga failure is not retried", func(t *testing.T) {
		orch := &mockOrchestrator{}
		task, _ := NewDeployTask(deployRequest())
		orch.On("Deploy", mock.Anything, mock.Anything).
			Return(nil, appErr.New(appErr.CodeExec, "Failed during deployment execution: exit status 1")).Once()

		err := NewSagaTaskHandler(orch).HandleDeploy(context.Background(), task)
		require.Error(t, err)
		require.True(t, errors.Is(err, asynq.SkipRetry))
		require.Contains(t, err.Error(), "Failed during deployment execution")
	})

	t.Run("invalid payload", func(t *testing.T) {
		orch := &mockOrchestrator{}
		err := NewSagaTaskHandler(orch).HandleDeploy(context.Background(), asynq.NewTask(TypeDeploy, []byte("{")))
		require.True(t, errors.Is(err, asynq.SkipRetry))
		orch.AssertNotCalled(t, "Deploy", mock.Anything, mock.Anything)
	})
}

func TestSagaTaskHandler_HandleUndeploy(t *testing.T) {
	orch := &mockOrchestrator{}
	req := &services.UndeployRequest{UserEmail: "dev@example.com", ProjectID: "pid", ProjectName: "demo"}
	task, err := NewUndeployTask(req)
	require.NoError(t, err)

	orch.On("Undeploy", mock.Anything, req).
		Return(&services.UndeployResult{ProjectID: "pid"}, nil).Once()
	require.NoError(t, NewSagaTaskHandler(orch).HandleUndeploy(context.Background(), task))

	orch.On("Undeploy", mock.Anything, req).
		Return(nil, appErr.New(appErr.CodeConflict, "Another operation is already running")).Once()
	err = NewSagaTaskHandler(orch).HandleUndeploy(context.Background(), task)
	require.True(t, errors.Is(err, asynq.SkipRetry))
	orch.AssertExpectations(t)
}

func TestSagaTaskHandler_Register(t *testing.T) {
	orch := &mockOrchestrator{}
	orch.On("Undeploy", mock.Anything, mock.Anything).Return(&services.UndeployResult{ProjectID: "pid"}, nil)

	mux := asynq.NewServeMux()
	NewSagaTaskHandler(orch).Register(mux)

	task, _ := NewUndeployTask(&services.UndeployRequest{UserEmail: "a@b.c", ProjectID: "pid", ProjectName: "demo"})
	require.NoError(t, mux.ProcessTask(context.Background(), task))
}

func TestAsynqEnqueuer(t *testing.T) {
	ctx := context.Background()
	client := &mockTaskClient{}
	client.On("EnqueueContext", ctx, mock.MatchedBy(func(task *asynq.Task) bool {
		var got services.DeployRequest
		return task.Type() == TypeDeploy && json.Unmarshal(task.Payload(), &got) == nil && got.ProjectName == "demo"
	}), mock.MatchedBy(func(opts []asynq.Option) bool {
		var maxRetry, timeout bool
		for _, o := range opts {
			switch o.Type() {
			case asynq.MaxRetryOpt:
				maxRetry = o.Value().(int) == 0
			case asynq.TimeoutOpt:
				timeout = o.Value().(time.Duration) == time.Hour
			}
		}
		return maxRetry && timeout
	})).Return(&asynq.TaskInfo{ID: "task-1", Queue: "default"}, nil).Once()

	id, err := NewAsynqEnqueuer(client, time.Hour).EnqueueDeploy(ctx, deployRequest())
	require.NoError(t, err)
	require.Equal(t, "task-1", id)
	client.AssertExpectations(t)
}

func TestAsynqEnqueuerFailure(t *testing.T) {
	ctx := context.Background()
	client := &mockTaskClient{}
	client.On("EnqueueContext", ctx, mock.Anything, mock.Anything).Return(nil, errors.New("redis: connection refused"))

	_, err := NewAsynqEnqueuer(client, 0).EnqueueUndeploy(ctx, &services.UndeployRequest{ProjectID: "pid"})
	require.True(t, appErr.IsCode(err, appErr.CodeUnavailable))
}
