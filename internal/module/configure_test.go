package module

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grove-run/grove/internal/action"
	"github.com/grove-run/grove/internal/logging"
	"github.com/grove-run/grove/internal/model"
	"github.com/grove-run/grove/internal/plugin"
	"github.com/grove-run/grove/internal/store"
	"github.com/grove-run/grove/internal/template"
	"github.com/grove-run/grove/internal/version"
)

func configureHandler(ctx model.HandlerContext, params any) (any, error) {
	return model.ConfigureModuleResult{
		Services: []model.ServiceConfig{{Name: "web"}},
		Outputs:  map[string]any{"url": "http://localhost"},
	}, nil
}

func newTestRegistry(t *testing.T) *plugin.Registry {
	t.Helper()
	r := plugin.NewRegistry(nil)
	require.NoError(t, r.Register(model.PluginDescriptor{
		Name: "svc-plugin",
		CreateModuleTypes: []model.ModuleTypeDef{{
			Name:     "svc",
			Schema:   model.SchemaNode{Kind: model.SchemaObject, Fields: map[string]model.SchemaNode{}},
			Handlers: map[string]model.Handler{"configure": configureHandler},
		}},
	}))
	require.NoError(t, r.Resolve())
	return r
}

func TestConfigureComputesVersionAndRunsHandler(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	modDir := filepath.Join(root, "a")
	require.NoError(t, os.MkdirAll(modDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modDir, "main.go"), []byte("package a\n"), 0o644))

	reg := newTestRegistry(t)
	router := action.New(reg)
	st, err := store.Open(filepath.Join(root, "store.json"))
	require.NoError(t, err)
	hasher := version.New()

	modules := []model.ModuleConfig{{
		Name: "a",
		Type: "svc",
		Path: modDir,
		Spec: map[string]any{},
	}}

	out, err := Configure(context.Background(), reg, router, st, hasher, testLogger(), filepath.Join(root, ".grove"), nil, modules, template.Context{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotEmpty(t, out[0].Version.VersionString)
	require.Len(t, out[0].ServiceConfigs, 1)
	require.Equal(t, "web", out[0].ServiceConfigs[0].Name)
}

func TestConfigureOrdersByBuildDependencies(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	for _, name := range []string{"a", "b"} {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package "+name+"\n"), 0o644))
	}

	reg := newTestRegistry(t)
	router := action.New(reg)
	st, err := store.Open(filepath.Join(root, "store.json"))
	require.NoError(t, err)
	hasher := version.New()

	modules := []model.ModuleConfig{
		{Name: "b", Type: "svc", Path: filepath.Join(root, "b"), Spec: map[string]any{}, Build: model.BuildConfig{
			Dependencies: []model.BuildDependency{{Name: "a"}},
		}},
		{Name: "a", Type: "svc", Path: filepath.Join(root, "a"), Spec: map[string]any{}},
	}

	out, err := Configure(context.Background(), reg, router, st, hasher, testLogger(), filepath.Join(root, ".grove"), nil, modules, template.Context{})
	require.NoError(t, err)
	require.Len(t, out, 2)

	var aVersion, bVersion string
	for _, m := range out {
		switch m.Name {
		case "a":
			aVersion = m.Version.VersionString
		case "b":
			bVersion = m.Version.VersionString
		}
	}
	require.NotEmpty(t, aVersion)
	require.NotEmpty(t, bVersion)
	require.NotEqual(t, aVersion, bVersion)
}

func TestConfigureRejectsLocalModuleWithCopyDependency(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	for _, name := range []string{"a", "b"} {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package "+name+"\n"), 0o644))
	}

	reg := newTestRegistry(t)
	router := action.New(reg)
	st, err := store.Open(filepath.Join(root, "store.json"))
	require.NoError(t, err)
	hasher := version.New()

	modules := []model.ModuleConfig{
		{Name: "a", Type: "svc", Path: filepath.Join(root, "a"), Spec: map[string]any{}},
		{Name: "b", Type: "svc", Path: filepath.Join(root, "b"), Spec: map[string]any{}, Local: true, Build: model.BuildConfig{
			Dependencies: []model.BuildDependency{{Name: "a", Copy: []model.CopyEntry{{Source: "x", Target: "y"}}}},
		}},
	}

	_, err = Configure(context.Background(), reg, router, st, hasher, testLogger(), filepath.Join(root, ".grove"), nil, modules, template.Context{})
	require.Error(t, err)
}

func TestConfigureRejectsMissingBuildDependency(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	dir := filepath.Join(root, "a")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	reg := newTestRegistry(t)
	router := action.New(reg)
	st, err := store.Open(filepath.Join(root, "store.json"))
	require.NoError(t, err)
	hasher := version.New()

	modules := []model.ModuleConfig{
		{Name: "a", Type: "svc", Path: dir, Spec: map[string]any{}, Build: model.BuildConfig{
			Dependencies: []model.BuildDependency{{Name: "ghost"}},
		}},
	}

	_, err = Configure(context.Background(), reg, router, st, hasher, testLogger(), filepath.Join(root, ".grove"), nil, modules, template.Context{})
	require.Error(t, err)
}

func testLogger() *logging.Logger {
	return logging.New(logging.Options{Level: "error", Writer: io.Discard})
}
