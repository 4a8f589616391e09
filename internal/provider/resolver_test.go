package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grove-run/grove/internal/model"
	"github.com/grove-run/grove/internal/plugin"
)

func readyStatusHandler(ctx model.HandlerContext, params any) (any, error) {
	return model.ProviderStatus{Ready: true, Outputs: map[string]any{"value": "ok"}}, nil
}

func newResolvedRegistry(t *testing.T, descriptors ...model.PluginDescriptor) *plugin.Registry {
	t.Helper()
	r := plugin.NewRegistry(nil)
	for _, d := range descriptors {
		require.NoError(t, r.Register(d))
	}
	require.NoError(t, r.Resolve())
	return r
}

func TestResolveOrdersByDeclaredDependency(t *testing.T) {
	t.Parallel()

	registry := newResolvedRegistry(t,
		model.PluginDescriptor{
			Name:             "base-plugin",
			ProviderHandlers: map[string]model.Handler{"getEnvironmentStatus": readyStatusHandler},
		},
		model.PluginDescriptor{
			Name:             "dependent-plugin",
			Dependencies:     []model.Dependency{{Name: "base-plugin"}},
			ProviderHandlers: map[string]model.Handler{"getEnvironmentStatus": readyStatusHandler},
		},
	)

	resolver := New(registry, nil)
	resolved, err := resolver.Resolve(context.Background(), []model.ProjectProviderConfig{
		{Name: "base-plugin"},
		{Name: "dependent-plugin"},
	}, Config{ProjectName: "demo"})
	require.NoError(t, err)
	require.True(t, resolved["base-plugin"].Status.Ready)
	require.True(t, resolved["dependent-plugin"].Status.Ready)
}

func TestResolveMatchesDependencyViaBaseChain(t *testing.T) {
	t.Parallel()

	registry := newResolvedRegistry(t,
		model.PluginDescriptor{
			Name:             "base-a",
			ProviderHandlers: map[string]model.Handler{"getEnvironmentStatus": readyStatusHandler},
		},
		model.PluginDescriptor{
			Name:             "test-a",
			Base:             "base-a",
			ProviderHandlers: map[string]model.Handler{"getEnvironmentStatus": readyStatusHandler},
		},
		model.PluginDescriptor{
			Name:             "test-b",
			Dependencies:     []model.Dependency{{Name: "base-a"}},
			ProviderHandlers: map[string]model.Handler{"getEnvironmentStatus": readyStatusHandler},
			ConfigSchema: &model.SchemaNode{Kind: model.SchemaObject, Fields: map[string]model.SchemaNode{
				"foo": {Kind: model.SchemaString},
			}},
		},
	)

	resolver := New(registry, nil)
	resolved, err := resolver.Resolve(context.Background(), []model.ProjectProviderConfig{
		{Name: "test-a"},
		{Name: "test-b", Config: map[string]any{"foo": "${providers.test-a.outputs.value}"}},
	}, Config{ProjectName: "demo"})
	require.NoError(t, err)
	require.Equal(t, "ok", resolved["test-b"].Config["foo"])
}

func TestResolveUsesImplicitTemplateOutputs(t *testing.T) {
	t.Parallel()

	registry := newResolvedRegistry(t,
		model.PluginDescriptor{
			Name:             "base-plugin",
			ProviderHandlers: map[string]model.Handler{"getEnvironmentStatus": readyStatusHandler},
		},
		model.PluginDescriptor{
			Name:             "dependent-plugin",
			ProviderHandlers: map[string]model.Handler{"getEnvironmentStatus": readyStatusHandler},
		},
	)

	resolver := New(registry, nil)
	resolved, err := resolver.Resolve(context.Background(), []model.ProjectProviderConfig{
		{Name: "base-plugin"},
		{Name: "dependent-plugin", Config: map[string]any{"value": "${providers.base-plugin.outputs.value}"}},
	}, Config{ProjectName: "demo"})
	require.NoError(t, err)
	require.Equal(t, "ok", resolved["dependent-plugin"].Config["value"])
}

func TestResolveRejectsCircularTemplateReferences(t *testing.T) {
	t.Parallel()

	registry := newResolvedRegistry(t,
		model.PluginDescriptor{
			Name:             "test-a",
			ProviderHandlers: map[string]model.Handler{"getEnvironmentStatus": readyStatusHandler},
		},
		model.PluginDescriptor{
			Name:             "test-b",
			ProviderHandlers: map[string]model.Handler{"getEnvironmentStatus": readyStatusHandler},
		},
	)

	resolver := New(registry, nil)
	_, err := resolver.Resolve(context.Background(), []model.ProjectProviderConfig{
		{Name: "test-a", Config: map[string]any{"foo": "${providers.test-b.outputs.foo}"}},
		{Name: "test-b", Config: map[string]any{"foo": "${providers.test-a.outputs.foo}"}},
	}, Config{ProjectName: "demo"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "test-a <- test-b <- test-a")
}

func TestResolveSkipsProviderRestrictedToOtherEnvironment(t *testing.T) {
	t.Parallel()

	registry := newResolvedRegistry(t, model.PluginDescriptor{
		Name:             "env-only",
		ProviderHandlers: map[string]model.Handler{"getEnvironmentStatus": readyStatusHandler},
	})

	resolver := New(registry, nil)
	resolved, err := resolver.Resolve(context.Background(), []model.ProjectProviderConfig{
		{Name: "env-only", Environments: []string{"production"}},
	}, Config{ProjectName: "demo", ActiveEnvironment: "dev"})
	require.NoError(t, err)
	require.Empty(t, resolved)
}

func TestResolveRejectsNotReadyWithoutForceInit(t *testing.T) {
	t.Parallel()

	notReady := func(ctx model.HandlerContext, params any) (any, error) {
		return model.ProviderStatus{Ready: false}, nil
	}
	registry := newResolvedRegistry(t, model.PluginDescriptor{
		Name: "lazy-plugin",
		ProviderHandlers: map[string]model.Handler{
			"getEnvironmentStatus": notReady,
			"prepareEnvironment":   notReady,
		},
	})

	resolver := New(registry, nil)
	_, err := resolver.Resolve(context.Background(), []model.ProjectProviderConfig{
		{Name: "lazy-plugin"},
	}, Config{ProjectName: "demo"})
	require.Error(t, err)
}
