// Package runtimectx implements the runtime context builder: given a
// target entity and its already-computed dependency results, assemble
// the immutable environment exposed to a handler invocation.
package runtimectx

import (
	"fmt"
	"sort"

	"github.com/grove-run/grove/internal/model"
)

// Dependency is one resolved dependency result the builder folds into a
// RuntimeContext, labeled by the edge kind it was reached through.
type Dependency struct {
	Kind    model.EntityKind
	Name    string
	Outputs map[string]any
	Status  model.ServiceStatus // only meaningful when Kind == EntityService
}

// Build assembles a model.RuntimeContext for one target, merging the
// module's declared env, the target's own env, and every dependency's
// outputs exposed under runtime.services.<n>.outputs.* /
// runtime.tasks.<n>.outputs.*. All values are coerced to
// strings for EnvVars; structured forms remain in Dependencies /
// ServiceStatuses / TaskResults for template resolution.
func Build(moduleEnv, targetEnv map[string]string, deps []Dependency) model.RuntimeContext {
	envVars := make(map[string]string, len(moduleEnv)+len(targetEnv))
	for k, v := range moduleEnv {
		envVars[k] = v
	}
	for k, v := range targetEnv {
		envVars[k] = v
	}

	rtDeps := model.RuntimeDependencies{}
	serviceStatuses := make(map[string]model.ServiceStatus)
	taskResults := make(map[string]model.TaskResult)

	sorted := append([]Dependency(nil), deps...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Kind != sorted[j].Kind {
			return sorted[i].Kind < sorted[j].Kind
		}
		return sorted[i].Name < sorted[j].Name
	})

	for _, d := range sorted {
		for k, v := range d.Outputs {
			envVars[fmt.Sprintf("%s_%s", d.Name, k)] = fmt.Sprintf("%v", v)
		}

		switch d.Kind {
		case model.EntityModule:
			rtDeps.Build = append(rtDeps.Build, d.Name)
		case model.EntityService:
			rtDeps.Service = append(rtDeps.Service, d.Name)
			serviceStatuses[d.Name] = d.Status
		case model.EntityTask:
			rtDeps.Task = append(rtDeps.Task, d.Name)
			taskResults[d.Name] = model.TaskResult{Outputs: d.Outputs}
		case model.EntityTest:
			rtDeps.Test = append(rtDeps.Test, d.Name)
		}
	}

	return model.RuntimeContext{
		EnvVars:         envVars,
		Dependencies:    rtDeps,
		ServiceStatuses: serviceStatuses,
		TaskResults:     taskResults,
	}
}

// TemplateContext renders rc as a template.Context-shaped map for the
// runtime template pass: runtime.services.<n>.outputs.*,
// runtime.tasks.<n>.outputs.*.
func TemplateContext(rc model.RuntimeContext) map[string]any {
	services := make(map[string]any, len(rc.ServiceStatuses))
	for name, st := range rc.ServiceStatuses {
		services[name] = map[string]any{"outputs": st.Outputs}
	}
	tasks := make(map[string]any, len(rc.TaskResults))
	for name, r := range rc.TaskResults {
		tasks[name] = map[string]any{"outputs": r.Outputs}
	}
	return map[string]any{
		"runtime": map[string]any{
			"services": services,
			"tasks":    tasks,
		},
	}
}
