package graph

import (
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/grove-run/grove/internal/groveerrors"
	"github.com/grove-run/grove/internal/model"
)

// ConfigGraph is the queryable module/service/task/test graph: every
// entity the configurator discovered, plus the typed, labeled
// dependency edges between them, one DAG per edge label plus a union
// DAG for the overall acyclicity check.
type ConfigGraph struct {
	entities map[string]model.EntityRef // key -> ref, key is kind+":"+name
	owner    map[string]string          // service/task/test key -> owning module name
	perLabel map[model.EdgeLabel]*DAG
	union    *DAG
}

// NewConfigGraph returns an empty ConfigGraph.
func NewConfigGraph() *ConfigGraph {
	return &ConfigGraph{
		entities: make(map[string]model.EntityRef),
		owner:    make(map[string]string),
		perLabel: map[model.EdgeLabel]*DAG{
			model.EdgeBuild:   New(),
			model.EdgeService: New(),
			model.EdgeTask:    New(),
			model.EdgeTest:    New(),
		},
		union: New(),
	}
}

func entityKey(kind model.EntityKind, name string) string {
	return string(kind) + ":" + name
}

// AddEntity registers an entity; owner names the module that declares it
// (itself, for a module entity).
func (g *ConfigGraph) AddEntity(ref model.EntityRef, owner string) {
	key := entityKey(ref.Kind, ref.Name)
	g.entities[key] = ref
	g.owner[key] = owner
	g.union.AddNode(key)
	for _, dag := range g.perLabel {
		dag.AddNode(key)
	}
}

// AddEdge records that from depends on to under label. Both ends must
// already be registered via AddEntity.
func (g *ConfigGraph) AddEdge(label model.EdgeLabel, from, to model.EntityRef) error {
	fromKey, toKey := entityKey(from.Kind, from.Name), entityKey(to.Kind, to.Name)
	if _, ok := g.entities[fromKey]; !ok {
		return groveerrors.NewMissingReferenceError(from.Name, string(from.Kind), from.Name)
	}
	if _, ok := g.entities[toKey]; !ok {
		return groveerrors.NewMissingReferenceError(from.Name, string(to.Kind), to.Name)
	}
	dag, ok := g.perLabel[label]
	if !ok {
		return groveerrors.NewInternalError("unknown edge label "+string(label), nil)
	}
	dag.AddEdge(fromKey, toKey)
	g.union.AddEdge(fromKey, toKey)
	return nil
}

// Validate enforces the acyclicity invariant: every per-label sub-graph
// and the union graph must be a DAG.
func (g *ConfigGraph) Validate() error {
	for label, dag := range g.perLabel {
		if cycle := dag.DetectCycle(); len(cycle) > 0 {
			return groveerrors.NewGraphCycleError(string(label), cycle)
		}
	}
	if cycle := g.union.DetectCycle(); len(cycle) > 0 {
		return groveerrors.NewGraphCycleError("config", cycle)
	}
	return nil
}

// Lookup returns the entity registered for (kind, name).
func (g *ConfigGraph) Lookup(kind model.EntityKind, name string) (model.EntityRef, bool) {
	ref, ok := g.entities[entityKey(kind, name)]
	return ref, ok
}

// OwningModule returns the module name that declares the given entity.
func (g *ConfigGraph) OwningModule(kind model.EntityKind, name string) (string, bool) {
	owner, ok := g.owner[entityKey(kind, name)]
	return owner, ok
}

// All returns every registered entity, in no particular order.
func (g *ConfigGraph) All() []model.EntityRef {
	out := make([]model.EntityRef, 0, len(g.entities))
	for _, ref := range g.entities {
		out = append(out, ref)
	}
	return out
}

// EntitiesMatching returns every entity of the given kind whose name
// matches the glob pattern (e.g. "int*" selects "integration" and
// "integ" but not "unit"), sorted by name. Drivers use this for
// name-filtered runs like `test --name "int*"`.
func (g *ConfigGraph) EntitiesMatching(kind model.EntityKind, pattern string) ([]model.EntityRef, error) {
	var out []model.EntityRef
	for _, ref := range g.entities {
		if ref.Kind != kind {
			continue
		}
		ok, err := doublestar.Match(pattern, ref.Name)
		if err != nil {
			return nil, groveerrors.NewConfigurationError(pattern, "invalid name pattern", err)
		}
		if ok {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Dependencies returns ref's direct dependencies under label.
func (g *ConfigGraph) Dependencies(label model.EdgeLabel, ref model.EntityRef) []model.EntityRef {
	dag, ok := g.perLabel[label]
	if !ok {
		return nil
	}
	return g.resolveKeys(dag.Dependencies(entityKey(ref.Kind, ref.Name)))
}

// TransitiveDependencies returns every entity reachable from ref by
// following label edges, ref itself excluded.
func (g *ConfigGraph) TransitiveDependencies(label model.EdgeLabel, ref model.EntityRef) []model.EntityRef {
	dag, ok := g.perLabel[label]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var walk func(key string)
	walk = func(key string) {
		for _, dep := range dag.Dependencies(key) {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			walk(dep)
		}
	}
	walk(entityKey(ref.Kind, ref.Name))
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return g.resolveKeys(keys)
}

// BuildFromModules constructs the full config graph from a set of
// already-configured modules: one module/service/task/test entity per
// declaration, build edges from build.dependencies, and
// service/task/test edges from each entity's own Dependencies list,
// resolved against whichever of service/task shares that name.
func BuildFromModules(modules []model.ModuleConfig) (*ConfigGraph, error) {
	g := NewConfigGraph()

	for _, m := range modules {
		g.AddEntity(model.EntityRef{Kind: model.EntityModule, Name: m.Name}, m.Name)
		for _, s := range m.ServiceConfigs {
			g.AddEntity(model.EntityRef{Kind: model.EntityService, Name: s.Name}, m.Name)
		}
		for _, tsk := range m.TaskConfigs {
			g.AddEntity(model.EntityRef{Kind: model.EntityTask, Name: tsk.Name}, m.Name)
		}
		for _, tst := range m.TestConfigs {
			g.AddEntity(model.EntityRef{Kind: model.EntityTest, Name: tst.Name}, m.Name)
		}
	}

	for _, m := range modules {
		self := model.EntityRef{Kind: model.EntityModule, Name: m.Name}
		for _, dep := range m.Build.Dependencies {
			if err := g.AddEdge(model.EdgeBuild, self, model.EntityRef{Kind: model.EntityModule, Name: dep.Name}); err != nil {
				return nil, err
			}
		}
		for _, s := range m.ServiceConfigs {
			from := model.EntityRef{Kind: model.EntityService, Name: s.Name}
			for _, depName := range s.Dependencies {
				to, err := g.serviceOrTask(depName)
				if err != nil {
					return nil, err
				}
				if err := g.AddEdge(model.EdgeService, from, to); err != nil {
					return nil, err
				}
			}
		}
		for _, tsk := range m.TaskConfigs {
			from := model.EntityRef{Kind: model.EntityTask, Name: tsk.Name}
			for _, depName := range tsk.Dependencies {
				to, err := g.serviceOrTask(depName)
				if err != nil {
					return nil, err
				}
				if err := g.AddEdge(model.EdgeTask, from, to); err != nil {
					return nil, err
				}
			}
		}
		for _, tst := range m.TestConfigs {
			from := model.EntityRef{Kind: model.EntityTest, Name: tst.Name}
			for _, depName := range tst.Dependencies {
				to, err := g.serviceOrTask(depName)
				if err != nil {
					return nil, err
				}
				if err := g.AddEdge(model.EdgeTest, from, to); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// serviceOrTask resolves a dependency name to whichever of the service
// or task entity kinds it was registered under.
func (g *ConfigGraph) serviceOrTask(name string) (model.EntityRef, error) {
	if ref, ok := g.Lookup(model.EntityService, name); ok {
		return ref, nil
	}
	if ref, ok := g.Lookup(model.EntityTask, name); ok {
		return ref, nil
	}
	return model.EntityRef{}, groveerrors.NewMissingReferenceError(name, "service or task", name)
}

func (g *ConfigGraph) resolveKeys(keys []string) []model.EntityRef {
	out := make([]model.EntityRef, 0, len(keys))
	for _, k := range keys {
		if ref, ok := g.entities[k]; ok {
			out = append(out, ref)
		}
	}
	return out
}
