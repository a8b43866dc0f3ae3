package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/cloudconsole/engine/pkg/config"
	"github.com/cloudconsole/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("info", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

func TestRedisOptional(t *testing.T) {
	rdb, err := Redis(context.Background(), &config.Config{})
	require.NoError(t, err)
	require.Nil(t, rdb)
}

func TestRedisConnects(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := Redis(context.Background(), &config.Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := Redis(context.Background(), &config.Config{RedisAddr: addr})
	require.Error(t, err)
}

func TestAPIOrchestratorQueuedNeedsNoTerraform(t *testing.T) {
	cfg := &config.Config{
		DispatchMode: config.DispatchQueue,
		S3Bucket:     "deploy-templates",
		AWSRegion:    "eu-central-1",
		WorkingDir:   t.TempDir(),
		TerraformBin: filepath.Join(t.TempDir(), "missing-terraform"),
	}
	orch, err := APIOrchestrator(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	require.Nil(t, orch)
}

func TestAPIOrchestratorInlineRequiresTerraform(t *testing.T) {
	cfg := &config.Config{
		DispatchMode: config.DispatchInline,
		S3Bucket:     "deploy-templates",
		AWSRegion:    "eu-central-1",
		WorkingDir:   t.TempDir(),
		TerraformBin: filepath.Join(t.TempDir(), "missing-terraform"),
	}
	_, err := APIOrchestrator(context.Background(), cfg, nil, nil)
	require.ErrorContains(t, err, "terraform not found")
}
