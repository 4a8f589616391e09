package plugin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grove-run/grove/internal/model"
)

func noopHandler(ctx model.HandlerContext, params any) (any, error) { return nil, nil }

func TestResolveFlattensBaseChainLeafWins(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	require.NoError(t, r.Register(model.PluginDescriptor{
		Name:             "base-a",
		ProviderHandlers: map[string]model.Handler{"getEnvironmentStatus": noopHandler},
	}))
	require.NoError(t, r.Register(model.PluginDescriptor{
		Name:             "test-a",
		Base:             "base-a",
		ProviderHandlers: map[string]model.Handler{"getEnvironmentStatus": noopHandler},
	}))
	require.NoError(t, r.Resolve())

	rp, err := r.Get("test-a")
	require.NoError(t, err)
	require.Equal(t, []string{"base-a"}, rp.BaseChain)
	chain := rp.ProviderHandlers["getEnvironmentStatus"]
	require.NotNil(t, chain.Handler)
	require.NotNil(t, chain.Super)
}

func TestResolveOrdersDeclaredDependencyBeforeDependent(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	require.NoError(t, r.Register(model.PluginDescriptor{Name: "base-a"}))
	require.NoError(t, r.Register(model.PluginDescriptor{Name: "test-a", Base: "base-a"}))
	require.NoError(t, r.Register(model.PluginDescriptor{
		Name:         "test-b",
		Dependencies: []model.Dependency{{Name: "base-a"}},
	}))
	require.NoError(t, r.Resolve())

	order := r.InitOrder()
	require.Less(t, indexOf(order, "base-a"), indexOf(order, "test-b"))
}

func TestResolveRejectsMissingBase(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	require.NoError(t, r.Register(model.PluginDescriptor{Name: "test-a", Base: "ghost"}))
	err := r.Resolve()
	require.Error(t, err)
}

func TestResolveRejectsCircularBases(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	require.NoError(t, r.Register(model.PluginDescriptor{Name: "a", Base: "b"}))
	require.NoError(t, r.Register(model.PluginDescriptor{Name: "b", Base: "a"}))
	err := r.Resolve()
	require.Error(t, err)
}

func TestResolveRejectsMultipleCreators(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	require.NoError(t, r.Register(model.PluginDescriptor{
		Name:              "plugin-a",
		CreateModuleTypes: []model.ModuleTypeDef{{Name: "container"}},
	}))
	require.NoError(t, r.Register(model.PluginDescriptor{
		Name:              "plugin-b",
		CreateModuleTypes: []model.ModuleTypeDef{{Name: "container"}},
	}))
	err := r.Resolve()
	require.Error(t, err)
}

func TestResolveRejectsExtendWithoutDeclare(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	require.NoError(t, r.Register(model.PluginDescriptor{
		Name:              "plugin-a",
		ExtendModuleTypes: []model.ModuleTypeExtension{{Name: "container"}},
	}))
	err := r.Resolve()
	require.Error(t, err)
}

func TestResolveRejectsExtendWithoutDep(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	require.NoError(t, r.Register(model.PluginDescriptor{
		Name:              "creator",
		CreateModuleTypes: []model.ModuleTypeDef{{Name: "container"}},
	}))
	require.NoError(t, r.Register(model.PluginDescriptor{
		Name:              "extender",
		ExtendModuleTypes: []model.ModuleTypeExtension{{Name: "container"}},
	}))
	err := r.Resolve()
	require.Error(t, err)
}

func indexOf(s []string, v string) int {
	for i, item := range s {
		if item == v {
			return i
		}
	}
	return -1
}
