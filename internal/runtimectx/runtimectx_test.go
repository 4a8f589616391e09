package runtimectx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grove-run/grove/internal/model"
)

func TestBuildMergesEnvAndDependencyOutputs(t *testing.T) {
	t.Parallel()

	rc := Build(
		map[string]string{"FROM_MODULE": "1"},
		map[string]string{"FROM_TARGET": "2"},
		[]Dependency{
			{Kind: model.EntityService, Name: "service-b", Outputs: map[string]any{"foo": "bar"}, Status: model.ServiceStatus{State: "ready", Outputs: map[string]any{"foo": "bar"}}},
		},
	)

	require.Equal(t, "1", rc.EnvVars["FROM_MODULE"])
	require.Equal(t, "2", rc.EnvVars["FROM_TARGET"])
	require.Equal(t, "bar", rc.EnvVars["service-b_foo"])
	require.Equal(t, []string{"service-b"}, rc.Dependencies.Service)
	require.Equal(t, "ready", rc.ServiceStatuses["service-b"].State)
}

func TestTemplateContextExposesRuntimeNamespace(t *testing.T) {
	t.Parallel()

	rc := Build(nil, nil, []Dependency{
		{Kind: model.EntityTask, Name: "task-a", Outputs: map[string]any{"x": 1}},
	})

	tctx := TemplateContext(rc)
	runtime := tctx["runtime"].(map[string]any)
	tasks := runtime["tasks"].(map[string]any)
	taskA := tasks["task-a"].(map[string]any)
	outputs := taskA["outputs"].(map[string]any)
	require.Equal(t, 1, outputs["x"])
}
