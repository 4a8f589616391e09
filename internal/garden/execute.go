package garden

import (
	"context"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/grove-run/grove/internal/action"
	"github.com/grove-run/grove/internal/groveerrors"
	"github.com/grove-run/grove/internal/model"
	"github.com/grove-run/grove/internal/runtimectx"
)

// Goal selects which entity kind an Execute run drives to completion.
type Goal string

const (
	GoalBuild  Goal = "build"
	GoalDeploy Goal = "deploy"
	GoalTest   Goal = "test"
)

// ExecuteOptions tunes one Execute run.
type ExecuteOptions struct {
	Force      bool     // bypass the result cache for every node of the run
	ForceBuild bool     // bypass the result cache for build nodes
	Names      []string // glob patterns filtering target names; empty means all
}

// Execute derives the task graph for the requested goal from the
// bootstrapped module set and drives it through the scheduler: the
// goal's targets that match opts.Names, plus every node they depend on
// (a build node per module, a deploy node per service, a run-task node
// per task, a test node per test, each added once), each wired to its
// dependencies' nodes. Every non-build node's process assembles a runtime context
// from its dependencies' results before dispatching the matching
// action. Bootstrap must have completed first.
func (g *Garden) Execute(ctx context.Context, goal Goal, opts ExecuteOptions) (map[model.TaskKey]model.TaskResult, error) {
	g.graphMu.RLock()
	modules := g.modules
	g.graphMu.RUnlock()
	if modules == nil {
		return nil, groveerrors.NewInternalError("garden.Bootstrap must be called before Execute", nil)
	}

	ts := &taskSet{
		garden:  g,
		modules: modules,
		opts:    opts,
		seen:    make(map[model.TaskKey]bool),
	}

	for _, m := range sortedModules(modules) {
		switch goal {
		case GoalBuild:
			if !matchesAny(opts.Names, m.Name) {
				continue
			}
			if _, err := ts.addBuild(m.Name); err != nil {
				return nil, err
			}
		case GoalDeploy:
			for _, s := range m.ServiceConfigs {
				if !matchesAny(opts.Names, s.Name) {
					continue
				}
				if _, err := ts.addDeploy(s.Name); err != nil {
					return nil, err
				}
			}
		case GoalTest:
			for _, t := range m.TestConfigs {
				if !matchesAny(opts.Names, t.Name) {
					continue
				}
				if _, err := ts.addTest(m, t); err != nil {
					return nil, err
				}
			}
		default:
			return nil, groveerrors.NewInternalError("unknown goal "+string(goal), nil)
		}
	}

	return g.Scheduler.Run(ctx, ts.nodes)
}

// taskSet accumulates the node graph for one Execute run, de-duplicated
// by key so a dependency shared by several targets is added once.
type taskSet struct {
	garden  *Garden
	modules map[string]model.ModuleConfig
	opts    ExecuteOptions
	seen    map[model.TaskKey]bool
	nodes   []model.TaskNode
}

func (ts *taskSet) addBuild(name string) (model.TaskKey, error) {
	key := model.TaskKey{Type: model.TaskBuild, Name: name}
	if ts.seen[key] {
		return key, nil
	}
	m, ok := ts.modules[name]
	if !ok {
		return model.TaskKey{}, groveerrors.NewMissingReferenceError(name, "module", name)
	}
	ts.seen[key] = true

	var deps []model.TaskKey
	for _, dep := range m.Build.Dependencies {
		dk, err := ts.addBuild(dep.Name)
		if err != nil {
			return model.TaskKey{}, err
		}
		deps = append(deps, dk)
	}

	ts.nodes = append(ts.nodes, model.TaskNode{
		Type:         model.TaskBuild,
		Name:         name,
		Version:      m.Version.VersionString,
		Dependencies: deps,
		Force:        ts.opts.Force || ts.opts.ForceBuild,
		Process:      ts.garden.buildProcess(m),
	})
	return key, nil
}

func (ts *taskSet) addDeploy(name string) (model.TaskKey, error) {
	key := model.TaskKey{Type: model.TaskDeploy, Name: name}
	if ts.seen[key] {
		return key, nil
	}
	m, s, ok := ts.findService(name)
	if !ok {
		return model.TaskKey{}, groveerrors.NewMissingReferenceError(name, "service", name)
	}
	ts.seen[key] = true

	deps, err := ts.entityDeps(m.Name, s.Dependencies)
	if err != nil {
		return model.TaskKey{}, err
	}

	ts.nodes = append(ts.nodes, model.TaskNode{
		Type:         model.TaskDeploy,
		Name:         name,
		Version:      m.Version.VersionString,
		Dependencies: deps,
		Force:        ts.opts.Force,
		Process:      ts.garden.deployProcess(m, s),
	})
	return key, nil
}

func (ts *taskSet) addRunTask(name string) (model.TaskKey, error) {
	key := model.TaskKey{Type: model.TaskRunTask, Name: name}
	if ts.seen[key] {
		return key, nil
	}
	m, t, ok := ts.findTask(name)
	if !ok {
		return model.TaskKey{}, groveerrors.NewMissingReferenceError(name, "task", name)
	}
	ts.seen[key] = true

	deps, err := ts.entityDeps(m.Name, t.Dependencies)
	if err != nil {
		return model.TaskKey{}, err
	}

	ts.nodes = append(ts.nodes, model.TaskNode{
		Type:         model.TaskRunTask,
		Name:         name,
		Version:      t.Version,
		Dependencies: deps,
		TimeoutSec:   t.TimeoutSec,
		Force:        ts.opts.Force,
		Process:      ts.garden.taskProcess(m, t),
	})
	return key, nil
}

func (ts *taskSet) addTest(m model.ModuleConfig, t model.TestConfig) (model.TaskKey, error) {
	key := model.TaskKey{Type: model.TaskTest, Name: m.Name + "." + t.Name}
	if ts.seen[key] {
		return key, nil
	}
	ts.seen[key] = true

	deps, err := ts.entityDeps(m.Name, t.Dependencies)
	if err != nil {
		return model.TaskKey{}, err
	}

	ts.nodes = append(ts.nodes, model.TaskNode{
		Type:         model.TaskTest,
		Name:         key.Name,
		Version:      t.Version,
		Dependencies: deps,
		TimeoutSec:   t.TimeoutSec,
		Force:        ts.opts.Force,
		Process:      ts.garden.testProcess(m, t),
	})
	return key, nil
}

// entityDeps wires a service/task/test entity's dependencies: its
// owning module's build node first, then a deploy or run-task node per
// named dependency, resolved against whichever of the two entity kinds
// declares that name.
func (ts *taskSet) entityDeps(owner string, depNames []string) ([]model.TaskKey, error) {
	bk, err := ts.addBuild(owner)
	if err != nil {
		return nil, err
	}
	deps := []model.TaskKey{bk}
	for _, depName := range depNames {
		if _, _, ok := ts.findService(depName); ok {
			dk, err := ts.addDeploy(depName)
			if err != nil {
				return nil, err
			}
			deps = append(deps, dk)
			continue
		}
		if _, _, ok := ts.findTask(depName); ok {
			dk, err := ts.addRunTask(depName)
			if err != nil {
				return nil, err
			}
			deps = append(deps, dk)
			continue
		}
		return nil, groveerrors.NewMissingReferenceError(owner, "service or task", depName)
	}
	return deps, nil
}

func (ts *taskSet) findService(name string) (model.ModuleConfig, model.ServiceConfig, bool) {
	for _, m := range ts.modules {
		for _, s := range m.ServiceConfigs {
			if s.Name == name {
				return m, s, true
			}
		}
	}
	return model.ModuleConfig{}, model.ServiceConfig{}, false
}

func (ts *taskSet) findTask(name string) (model.ModuleConfig, model.TaskConfig, bool) {
	for _, m := range ts.modules {
		for _, t := range m.TaskConfigs {
			if t.Name == name {
				return m, t, true
			}
		}
	}
	return model.ModuleConfig{}, model.TaskConfig{}, false
}

func (g *Garden) buildProcess(m model.ModuleConfig) model.ProcessFunc {
	return func(hctx model.HandlerContext, deps map[model.TaskKey]model.TaskResult) (model.TaskResult, error) {
		out, err := g.Router.Dispatch(hctx.Ctx, action.Call{
			Action:     "build",
			TargetKind: action.TargetModule,
			TargetName: m.Name,
			ModuleType: m.Type,
		}, map[string]any{"module": m.Name, "spec": m.Spec}, nil, g.Logger)
		if err != nil {
			return model.TaskResult{}, err
		}
		outputs := handlerOutputs(out)
		outputs["fresh"] = true
		return model.TaskResult{Outputs: outputs}, nil
	}
}

func (g *Garden) deployProcess(m model.ModuleConfig, s model.ServiceConfig) model.ProcessFunc {
	return func(hctx model.HandlerContext, deps map[model.TaskKey]model.TaskResult) (model.TaskResult, error) {
		rc := runtimectx.Build(m.Env, s.Env, runtimeDependencies(deps))
		out, err := g.Router.Dispatch(hctx.Ctx, action.Call{
			Action:     "deployService",
			TargetKind: action.TargetModule,
			TargetName: s.Name,
			ModuleType: m.Type,
		}, map[string]any{"module": m.Name, "name": s.Name, "spec": s.Spec}, &rc, g.Logger)
		if err != nil {
			return model.TaskResult{}, err
		}
		return model.TaskResult{Outputs: handlerOutputs(out)}, nil
	}
}

func (g *Garden) taskProcess(m model.ModuleConfig, t model.TaskConfig) model.ProcessFunc {
	return func(hctx model.HandlerContext, deps map[model.TaskKey]model.TaskResult) (model.TaskResult, error) {
		rc := runtimectx.Build(m.Env, t.Env, runtimeDependencies(deps))
		out, err := g.Router.Dispatch(hctx.Ctx, action.Call{
			Action:     "runTask",
			TargetKind: action.TargetModule,
			TargetName: t.Name,
			ModuleType: m.Type,
		}, map[string]any{"module": m.Name, "name": t.Name, "spec": t.Spec}, &rc, g.Logger)
		if err != nil {
			return model.TaskResult{}, err
		}
		return model.TaskResult{Outputs: handlerOutputs(out)}, nil
	}
}

func (g *Garden) testProcess(m model.ModuleConfig, t model.TestConfig) model.ProcessFunc {
	return func(hctx model.HandlerContext, deps map[model.TaskKey]model.TaskResult) (model.TaskResult, error) {
		rc := runtimectx.Build(m.Env, t.Env, runtimeDependencies(deps))
		out, err := g.Router.Dispatch(hctx.Ctx, action.Call{
			Action:     "testModule",
			TargetKind: action.TargetModule,
			TargetName: t.Name,
			ModuleType: m.Type,
		}, map[string]any{"module": m.Name, "name": t.Name, "spec": t.Spec}, &rc, g.Logger)
		if err != nil {
			return model.TaskResult{}, err
		}
		outputs := handlerOutputs(out)
		outputs["success"] = true
		return model.TaskResult{Outputs: outputs}, nil
	}
}

// runtimeDependencies converts a node's raw dependency results into the
// labeled shape the runtime context builder consumes.
func runtimeDependencies(deps map[model.TaskKey]model.TaskResult) []runtimectx.Dependency {
	out := make([]runtimectx.Dependency, 0, len(deps))
	for key, res := range deps {
		d := runtimectx.Dependency{Name: key.Name, Outputs: res.Outputs}
		switch key.Type {
		case model.TaskBuild:
			d.Kind = model.EntityModule
		case model.TaskDeploy:
			d.Kind = model.EntityService
			d.Status = model.ServiceStatus{State: "ready", Outputs: res.Outputs}
		case model.TaskRunTask:
			d.Kind = model.EntityTask
		case model.TaskTest:
			d.Kind = model.EntityTest
		}
		out = append(out, d)
	}
	return out
}

// handlerOutputs normalizes a handler's untyped return value into an
// outputs map the result cache and downstream runtime contexts can
// carry.
func handlerOutputs(out any) map[string]any {
	switch v := out.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		copied := make(map[string]any, len(v)+1)
		for k, val := range v {
			copied[k] = val
		}
		return copied
	default:
		return map[string]any{"result": v}
	}
}

func matchesAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

func sortedModules(modules map[string]model.ModuleConfig) []model.ModuleConfig {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]model.ModuleConfig, 0, len(names))
	for _, name := range names {
		out = append(out, modules[name])
	}
	return out
}
