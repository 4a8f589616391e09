package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grove-run/grove/internal/model"
	"github.com/grove-run/grove/internal/plugin"
)

func handlerReturning(v any) model.Handler {
	return func(ctx model.HandlerContext, params any) (any, error) { return v, nil }
}

func TestDispatchModuleActionUsesCreatorHandler(t *testing.T) {
	t.Parallel()

	r := plugin.NewRegistry(nil)
	require.NoError(t, r.Register(model.PluginDescriptor{
		Name: "exec",
		CreateModuleTypes: []model.ModuleTypeDef{
			{Name: "exec", Handlers: map[string]model.Handler{"build": handlerReturning("built")}},
		},
	}))
	require.NoError(t, r.Resolve())

	router := New(r)
	out, err := router.Dispatch(context.Background(), Call{Action: "build", TargetKind: TargetModule, TargetName: "a", ModuleType: "exec"}, map[string]any{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "built", out)
}

func TestDispatchModuleActionFallsThroughToExtension(t *testing.T) {
	t.Parallel()

	r := plugin.NewRegistry(nil)
	require.NoError(t, r.Register(model.PluginDescriptor{
		Name:              "container",
		CreateModuleTypes: []model.ModuleTypeDef{{Name: "container", Handlers: map[string]model.Handler{"build": handlerReturning("base-build")}}},
	}))
	require.NoError(t, r.Register(model.PluginDescriptor{
		Name:              "cluster",
		Dependencies:      []model.Dependency{{Name: "container"}},
		ExtendModuleTypes: []model.ModuleTypeExtension{{Name: "container", Handlers: map[string]model.Handler{"deployService": handlerReturning("deployed")}}},
	}))
	require.NoError(t, r.Resolve())

	router := New(r)
	out, err := router.Dispatch(context.Background(), Call{Action: "deployService", TargetKind: TargetModule, TargetName: "a", ModuleType: "container"}, map[string]any{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "deployed", out)
}

func TestDispatchNoHandlerFails(t *testing.T) {
	t.Parallel()

	r := plugin.NewRegistry(nil)
	require.NoError(t, r.Register(model.PluginDescriptor{
		Name:              "exec",
		CreateModuleTypes: []model.ModuleTypeDef{{Name: "exec", Handlers: map[string]model.Handler{}}},
	}))
	require.NoError(t, r.Resolve())

	router := New(r)
	_, err := router.Dispatch(context.Background(), Call{Action: "build", TargetKind: TargetModule, TargetName: "a", ModuleType: "exec"}, map[string]any{}, nil, nil)
	require.Error(t, err)
}

func TestDispatchUnresolvedRuntimeReferenceNamesExpressions(t *testing.T) {
	t.Parallel()

	r := plugin.NewRegistry(nil)
	require.NoError(t, r.Register(model.PluginDescriptor{
		Name: "container",
		CreateModuleTypes: []model.ModuleTypeDef{
			{Name: "container", Handlers: map[string]model.Handler{"deployService": handlerReturning("ok")}},
		},
	}))
	require.NoError(t, r.Resolve())

	router := New(r)
	params := map[string]any{"foo": "${runtime.services.service-b.outputs.foo}"}
	_, err := router.Dispatch(context.Background(), Call{Action: "deployService", TargetKind: TargetModule, TargetName: "service-a", ModuleType: "container"}, params, &model.RuntimeContext{}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Unable to resolve one or more runtime template values for service 'service-a': ${runtime.services.service-b.outputs.foo}")
}
