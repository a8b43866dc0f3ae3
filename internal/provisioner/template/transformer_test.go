package template

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudconsole/engine/internal/storage/storagetest"
	appErr "github.com/cloudconsole/engine/pkg/errors"
	"github.com/cloudconsole/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("info", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

const (
	src = "terraform/hetzner-basic/"
	dst = "deployments/demo (project_id: 42)/"
)

func seeded() *storagetest.Memory {
	store := storagetest.NewMemory()
	store.Seed(map[string]string{
		src + "main.tf":                "resource \"hcloud_server\" \"__NODE_NAME__\" {}\n",
		src + "variables.tf":           "token = \"__HCLOUD_TOKEN__\"\nname = \"__NODE_NAME__\"\nimage = \"__DISTRO__\"\n",
		src + "modules/net/main.tf":    "# __LOCATION__\n",
		"terraform/other/variables.tf": "unrelated",
	})
	return store
}

func TestTransformSubstitutesVariablesOnly(t *testing.T) {
	store := seeded()
	tr := NewTransformer(store)

	err := tr.Transform(context.Background(), src, dst, map[string]string{
		HCloudToken: "abc",
		NodeName:    "demo-server",
		Location:    "fsn1",
	}, nil)
	require.NoError(t, err)

	vars, ok := store.Object(dst + "variables.tf")
	require.True(t, ok)
	require.Equal(t, "token = \"abc\"\nname = \"demo-server\"\nimage = \"debian-12\"\n", vars)

	// other files are byte-identical, placeholders untouched
	mainTF, _ := store.Object(dst + "main.tf")
	orig, _ := store.Object(src + "main.tf")
	require.Equal(t, orig, mainTF)
	nested, ok := store.Object(dst + "modules/net/main.tf")
	require.True(t, ok)
	require.Equal(t, "# __LOCATION__\n", nested)

	require.Len(t, store.Keys(dst), 3)
	require.Equal(t, 2, store.Calls(storagetest.OpCopy))
	require.Equal(t, 1, store.Calls(storagetest.OpPut))
}

func TestTransformExplicitDistro(t *testing.T) {
	store := seeded()
	distro := "ubuntu-24.04"

	require.NoError(t, NewTransformer(store).Transform(context.Background(), src, dst, nil, &distro))

	vars, _ := store.Object(dst + "variables.tf")
	require.Contains(t, vars, "image = \"ubuntu-24.04\"")
	require.Contains(t, vars, "__HCLOUD_TOKEN__")
}

func TestTransformEmptyReplacementsIsCopyPlusDistro(t *testing.T) {
	store := seeded()
	require.NoError(t, NewTransformer(store).Transform(context.Background(), src, dst, map[string]string{}, nil))

	for _, rel := range []string{"main.tf", "modules/net/main.tf"} {
		a, _ := store.Object(src + rel)
		b, _ := store.Object(dst + rel)
		require.Equal(t, a, b, rel)
	}
	vars, _ := store.Object(dst + "variables.tf")
	require.Equal(t, "token = \"__HCLOUD_TOKEN__\"\nname = \"__NODE_NAME__\"\nimage = \"debian-12\"\n", vars)
}

func TestTransformEmptySourceWritesNothing(t *testing.T) {
	store := storagetest.NewMemory()
	require.NoError(t, NewTransformer(store).Transform(context.Background(), "terraform/missing/", dst, nil, nil))
	require.Zero(t, store.Writes())
}

func TestTransformAbortsOnFirstFailure(t *testing.T) {
	store := seeded()
	store.Fail(storagetest.OpCopy, src+"main.tf", nil)

	err := NewTransformer(store).Transform(context.Background(), src, dst, nil, nil)
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeTemplate))
	// keys are listed in order, modules/ is never reached
	_, ok := store.Object(dst + "modules/net/main.tf")
	require.False(t, ok)
}

func TestTransformListFailure(t *testing.T) {
	store := seeded()
	store.Fail(storagetest.OpList, "", nil)

	err := NewTransformer(store).Transform(context.Background(), src, dst, nil, nil)
	require.True(t, appErr.IsCode(err, appErr.CodeTemplate))
	require.True(t, appErr.HasCode(err, appErr.CodeUnavailable))
}

func TestSubstituteReplacesEveryOccurrence(t *testing.T) {
	got := Substitute("__LOCATION__ and __LOCATION__", map[string]string{Location: "nbg1"})
	require.Equal(t, "nbg1 and nbg1", got)
}
