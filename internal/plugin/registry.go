// Package plugin implements the plugin registry: loading plugin
// descriptors, resolving base inheritance and dependencies, merging
// handler tables with super links, and linearizing plugins into init
// order. The base chain and the dependencies list are two distinct
// relations, each backed by its own internal/graph.DAG.
package plugin

import (
	"sort"
	"sync"

	"github.com/grove-run/grove/internal/graph"
	"github.com/grove-run/grove/internal/groveerrors"
	"github.com/grove-run/grove/internal/logging"
	"github.com/grove-run/grove/internal/model"
)

// Registry holds declared plugin descriptors and, after Resolve, their
// flattened form.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]model.PluginDescriptor
	resolved    map[string]*model.ResolvedPlugin
	order       []string // dependency-topological order, set by Resolve
	logger      *logging.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		descriptors: make(map[string]model.PluginDescriptor),
		logger:      logger,
	}
}

// Register adds a plugin descriptor. Resolve must be called again after
// any Register call.
func (r *Registry) Register(d model.PluginDescriptor) error {
	if d.Name == "" {
		return groveerrors.NewInternalError("plugin descriptor missing name", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[d.Name]; exists {
		return groveerrors.New(groveerrors.KindPlugin, d.Name, "plugin already registered", nil)
	}
	r.descriptors[d.Name] = d
	r.resolved = nil
	return nil
}

// Resolve performs the full load order: every base reference must
// itself be a registered plugin; inheritance flattens leaf-wins with
// super links; dependencies merge across the chain, de-duplicated,
// stable-ordered; created/extended module types merge, rejecting
// redeclaration; finally plugins topologically sort by dependencies.
func (r *Registry) Resolve() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	baseGraph := graph.New()
	depGraph := graph.New()
	for name, d := range r.descriptors {
		baseGraph.AddNode(name)
		depGraph.AddNode(name)
		if d.Base != "" {
			if _, ok := r.descriptors[d.Base]; !ok {
				return groveerrors.NewMissingBaseError(name, d.Base)
			}
			baseGraph.AddEdge(name, d.Base)
		}
	}
	if cycle := baseGraph.DetectCycle(); len(cycle) > 0 {
		return groveerrors.NewCircularBasesError(cycle)
	}

	resolved := make(map[string]*model.ResolvedPlugin, len(r.descriptors))
	creators := make(map[string]string) // module type -> creating plugin name

	// Process in base-chain dependency order (root bases first) so a
	// plugin's flattening can reuse its base's already-resolved form.
	baseOrder, err := baseOrderRootsFirst(baseGraph)
	if err != nil {
		return err
	}

	for _, name := range baseOrder {
		d := r.descriptors[name]
		rp, err := flatten(d, resolved, r.descriptors)
		if err != nil {
			return err
		}
		resolved[name] = rp

		for _, mt := range d.CreateModuleTypes {
			if existing, ok := creators[mt.Name]; ok && existing != name {
				return groveerrors.NewMultipleCreatorsError(mt.Name, existing, name)
			}
			creators[mt.Name] = name
		}
	}

	for name, d := range r.descriptors {
		for _, ext := range d.ExtendModuleTypes {
			creator, ok := creators[ext.Name]
			if !ok {
				return groveerrors.NewExtendWithoutDeclareError(name, ext.Name)
			}
			if creator == name {
				continue
			}
			if !dependsOn(r.descriptors, name, creator) {
				return groveerrors.NewExtendWithoutDepError(name, ext.Name, creator)
			}
		}
		depGraph.AddNode(name)
		for _, dep := range resolved[name].Dependencies {
			depGraph.AddEdge(name, dep)
		}
	}

	order, err := depGraph.TopologicalSort()
	if err != nil {
		cycle := depGraph.DetectCycle()
		return groveerrors.NewCircularDepsError(cycle)
	}

	r.resolved = resolved
	r.order = order
	return nil
}

// Get returns a resolved plugin by name. Resolve must have succeeded
// first.
func (r *Registry) Get(name string) (*model.ResolvedPlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rp, ok := r.resolved[name]
	if !ok {
		return nil, groveerrors.NewMissingPluginError(name)
	}
	return rp, nil
}

// InitOrder returns the dependency-topological plugin init order
// computed by the last successful Resolve.
func (r *Registry) InitOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// List returns every registered plugin name, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descriptors))
	for n := range r.descriptors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CreatorOf returns which plugin created moduleType, if resolved.
func (r *Registry) CreatorOf(moduleType string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, d := range r.descriptors {
		for _, mt := range d.CreateModuleTypes {
			if mt.Name == moduleType {
				return name, true
			}
		}
	}
	return "", false
}

// ExtendsType reports whether plugin name declares an extension for
// moduleType in its own descriptor (as opposed to merely inheriting the
// type's handlers from a base chain it's part of).
func (r *Registry) ExtendsType(name, moduleType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	if !ok {
		return false
	}
	for _, ext := range d.ExtendModuleTypes {
		if ext.Name == moduleType {
			return true
		}
	}
	return false
}

func dependsOn(descs map[string]model.PluginDescriptor, name, target string) bool {
	d, ok := descs[name]
	if !ok {
		return false
	}
	for _, dep := range d.Dependencies {
		if dep.Name == target {
			return true
		}
	}
	if d.Base != "" {
		return dependsOn(descs, d.Base, target)
	}
	return false
}

// baseOrderRootsFirst returns plugin names ordered so that a plugin's
// base always precedes it. baseGraph's edges run child->parent
// ("child depends on parent"), and TopologicalSort already yields
// dependencies before dependents, so root bases come out first without
// any reversal.
func baseOrderRootsFirst(baseGraph *graph.DAG) ([]string, error) {
	order, err := baseGraph.TopologicalSort()
	if err != nil {
		return nil, err
	}
	return order, nil
}
