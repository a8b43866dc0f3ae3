package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cloudconsole/engine/internal/models"
	"github.com/cloudconsole/engine/pkg/database"
	appErr "github.com/cloudconsole/engine/pkg/errors"
	"github.com/cloudconsole/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("info", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

// startPostgres runs a disposable PostgreSQL and returns a migrated handle.
func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("deploy"),
		postgres.WithUsername("deploy"),
		postgres.WithPassword("deploy"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.OpenPostgres(ctx, dsn, database.Options{MaxRetries: 3})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func TestCatalogRepositories(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	deployments := NewDeploymentRepository(db)

	token := "abc"
	u := &models.User{Email: "dev@example.com", Name: "Dev", CloudProvider: &token}
	require.NoError(t, users.Create(ctx, u))
	require.NotEqual(t, uuid.Nil, u.ID)

	t.Run("get by email", func(t *testing.T) {
		var got models.User
		require.NoError(t, users.GetByEmail(ctx, "dev@example.com", &got))
		require.Equal(t, u.ID, got.ID)
		require.Equal(t, "abc", *got.CloudProvider)

		err := users.GetByEmail(ctx, "nobody@example.com", &got)
		require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		err := users.Create(ctx, &models.User{Email: "dev@example.com"})
		require.True(t, appErr.IsCode(err, appErr.CodeConflict))
	})

	t.Run("insert and delete deployment", func(t *testing.T) {
		pid := uuid.NewString()
		d := &models.Deployment{
			ProjectID:         pid,
			UserID:            u.ID,
			ProjectName:       "demo",
			SelectedService:   "AWS",
			SelectedServer:    "cx22",
			Region:            "fsn1",
			VolumeSize:        10,
			IPOption:          "dynamic",
			TerraformTemplate: "hetzner-basic",
			Status:            models.StatusInitiated,
			Timestamp:         time.Now().UTC().Truncate(time.Second),
			Outputs:           datatypes.JSON(`{"ipv4":"203.0.113.7"}`),
		}
		require.NoError(t, deployments.Create(ctx, d))

		var got models.Deployment
		require.NoError(t, deployments.FindOne(ctx, &got, "project_id = ?", pid))
		require.Equal(t, "demo", got.ProjectName)
		require.Equal(t, models.StatusInitiated, got.Status)

		// another user's id does not match
		err := deployments.DeleteForUser(ctx, uuid.New(), pid)
		require.True(t, appErr.IsCode(err, appErr.CodeNotFound))

		require.NoError(t, deployments.DeleteForUser(ctx, u.ID, pid))
		err = deployments.DeleteForUser(ctx, u.ID, pid)
		require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
		err = deployments.FindOne(ctx, &got, "project_id = ?", pid)
		require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
	})
}
