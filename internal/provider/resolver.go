// Package provider implements the provider resolver: for each
// configured provider, resolve templates, validate, run
// configureProvider, then call getEnvironmentStatus and, when not ready,
// prepareEnvironment once. Providers are processed level by level over their
// dependency graph, with independent providers of a level dispatched
// concurrently via errgroup.
package provider

import (
	"context"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/grove-run/grove/internal/graph"
	"github.com/grove-run/grove/internal/groveerrors"
	"github.com/grove-run/grove/internal/logging"
	"github.com/grove-run/grove/internal/model"
	"github.com/grove-run/grove/internal/plugin"
	"github.com/grove-run/grove/internal/schema"
	"github.com/grove-run/grove/internal/template"
)

// Config tunes a single resolution run.
type Config struct {
	ConcurrencyLimit  int
	ForceInit         bool
	ActiveEnvironment string
	ProjectName       string
	Variables         map[string]any
}

// Resolver resolves a project's declared providers against a plugin
// registry.
type Resolver struct {
	registry *plugin.Registry
	logger   *logging.Logger
}

// New builds a Resolver over an already-Resolve()d plugin registry.
func New(registry *plugin.Registry, logger *logging.Logger) *Resolver {
	return &Resolver{registry: registry, logger: logger}
}

// Resolve processes every declared provider active in the current
// environment, returning the resolved set keyed by name.
func (r *Resolver) Resolve(ctx context.Context, declared []model.ProjectProviderConfig, cfg Config) (map[string]*model.Provider, error) {
	active := make(map[string]model.ProjectProviderConfig)
	for _, p := range declared {
		if restricted(p.Environments, cfg.ActiveEnvironment) {
			continue
		}
		active[p.Name] = p
	}

	g := graph.New()
	for name := range active {
		g.AddNode(name)
	}
	for name, p := range active {
		for _, dep := range declaredDependencyEdges(r.registry, name, active) {
			g.AddEdge(name, dep)
		}
		for _, dep := range implicitTemplateEdges(p.Config) {
			if _, ok := active[dep]; ok {
				g.AddEdge(name, dep)
			}
		}
	}

	levels, err := g.Levels()
	if err != nil {
		cycle := g.DetectCycle()
		return nil, groveerrors.NewGraphCycleError("provider", cycle)
	}

	resolved := make(map[string]*model.Provider)
	for _, level := range levels {
		if err := r.resolveLevel(ctx, level, active, resolved, cfg); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

func (r *Resolver) resolveLevel(ctx context.Context, level []string, active map[string]model.ProjectProviderConfig, resolved map[string]*model.Provider, cfg Config) error {
	limit := cfg.ConcurrencyLimit
	if limit <= 0 {
		limit = len(level)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	results := make([]*model.Provider, len(level))
	for i, name := range level {
		i, name := i, name
		group.Go(func() error {
			p, err := r.resolveOne(gctx, name, active[name], resolved, cfg)
			if err != nil {
				return err
			}
			results[i] = p
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	for i, name := range level {
		resolved[name] = results[i]
	}
	return nil
}

// resolveOne takes a single provider from raw config to published
// status: static template pass, schema validation, configureProvider,
// then the readiness check (awaitReady).
func (r *Resolver) resolveOne(ctx context.Context, name string, declared model.ProjectProviderConfig, alreadyResolved map[string]*model.Provider, cfg Config) (*model.Provider, error) {
	rp, err := r.registry.Get(name)
	if err != nil {
		return nil, err
	}

	tctx := buildTemplateContext(cfg.ProjectName, cfg.ActiveEnvironment, cfg.Variables, alreadyResolved)
	resolvedConfigAny, err := template.Resolve(map[string]any(declared.Config), tctx, template.StaticPass)
	if err != nil {
		return nil, err
	}
	resolvedConfig, _ := resolvedConfigAny.(map[string]any)

	resolvedConfig, err = r.validateAgainstChain(name, rp, resolvedConfig)
	if err != nil {
		return nil, err
	}

	resolvedSet := make(map[string]model.ProjectProviderConfig, len(alreadyResolved))
	for n := range alreadyResolved {
		resolvedSet[n] = model.ProjectProviderConfig{Name: n}
	}
	depNames := declaredDependencyEdges(r.registry, name, resolvedSet)
	slices.Sort(depNames)
	var deps []*model.Provider
	for _, depName := range slices.Compact(depNames) {
		deps = append(deps, alreadyResolved[depName])
	}

	var moduleConfigs []model.ModuleConfig
	if chain, ok := rp.ProviderHandlers["configureProvider"]; ok {
		out, err := chain.Handler(model.HandlerContext{Ctx: ctx, Logger: r.logger, Super: chain.Super}, resolvedConfig)
		if err != nil {
			return nil, groveerrors.NewRuntimeError(name, err)
		}
		if res, ok := out.(model.ConfigureProviderResult); ok {
			resolvedConfig, err = r.validateAgainstChain(name, rp, res.Config)
			if err != nil {
				return nil, err
			}
			moduleConfigs = res.ModuleConfigs
		}
	}

	status, err := r.awaitReady(ctx, name, rp, resolvedConfig, cfg.ForceInit)
	if err != nil {
		return nil, err
	}

	return &model.Provider{
		Name:          name,
		Config:        resolvedConfig,
		Dependencies:  deps,
		ModuleConfigs: moduleConfigs,
		Status:        status,
		Environments:  declared.Environments,
	}, nil
}

// validateAgainstChain validates a provider config against the concrete
// plugin's schema, then against each of its base-chain schemas. A
// plugin with no declared ConfigSchema skips validation entirely.
func (r *Resolver) validateAgainstChain(name string, rp *model.ResolvedPlugin, config map[string]any) (map[string]any, error) {
	if rp.ConfigSchema == nil {
		return config, nil
	}
	resolved, errs := schema.ValidateChain(config, *rp.ConfigSchema, rp.ConfigSchemaChain)
	if len(errs) > 0 {
		return nil, groveerrors.NewConfigurationError(name, errs[0].Error(), errs[0])
	}
	out, _ := resolved.(map[string]any)
	return out, nil
}

// awaitReady calls getEnvironmentStatus; if not ready or forceInit,
// calls prepareEnvironment once and requires ready=true afterward.
func (r *Resolver) awaitReady(ctx context.Context, name string, rp *model.ResolvedPlugin, config map[string]any, forceInit bool) (model.ProviderStatus, error) {
	status, err := r.callStatusHandler(ctx, rp, "getEnvironmentStatus", config)
	if err != nil {
		return model.ProviderStatus{}, groveerrors.NewRuntimeError(name, err)
	}

	if !status.Ready || forceInit {
		prepared, err := r.callStatusHandler(ctx, rp, "prepareEnvironment", config)
		if err != nil {
			return model.ProviderStatus{}, groveerrors.NewRuntimeError(name, err)
		}
		status = prepared
	}

	if !status.Ready {
		return model.ProviderStatus{}, groveerrors.NewNotReadyError(name)
	}
	return status, nil
}

func (r *Resolver) callStatusHandler(ctx context.Context, rp *model.ResolvedPlugin, action string, config map[string]any) (model.ProviderStatus, error) {
	chain, ok := rp.ProviderHandlers[action]
	if !ok {
		return model.ProviderStatus{Ready: true}, nil
	}
	out, err := chain.Handler(model.HandlerContext{Ctx: ctx, Logger: r.logger, Super: chain.Super}, config)
	if err != nil {
		return model.ProviderStatus{}, err
	}
	if status, ok := out.(model.ProviderStatus); ok {
		return status, nil
	}
	return model.ProviderStatus{Ready: true}, nil
}

func restricted(envs []string, active string) bool {
	if len(envs) == 0 {
		return false
	}
	for _, e := range envs {
		if e == active {
			return false
		}
	}
	return true
}

// declaredDependencyEdges matches a plugin's declared dependencies to
// any other active provider whose own base chain contains the
// dependency name. A plugin depending on "base-a" is thereby ordered
// after a provider whose plugin has base: "base-a", even when base-a is
// not itself a configured provider.
func declaredDependencyEdges(registry *plugin.Registry, name string, active map[string]model.ProjectProviderConfig) []string {
	rp, err := registry.Get(name)
	if err != nil {
		return nil
	}
	var out []string
	for _, dep := range rp.Dependencies {
		for candidate := range active {
			if candidate == name {
				continue
			}
			if candidate == dep {
				out = append(out, candidate)
				continue
			}
			candidateRP, err := registry.Get(candidate)
			if err != nil {
				continue
			}
			for _, b := range candidateRP.BaseChain {
				if b == dep {
					out = append(out, candidate)
					break
				}
			}
		}
	}
	return out
}

// implicitTemplateEdges scans a provider's raw config for
// ${providers.X...} references, each of which implies a dependency on
// provider X.
func implicitTemplateEdges(config map[string]any) []string {
	var out []string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			for _, name := range findProviderRefs(val) {
				out = append(out, name)
			}
		case map[string]any:
			for _, item := range val {
				walk(item)
			}
		case []any:
			for _, item := range val {
				walk(item)
			}
		}
	}
	walk(map[string]any(config))
	return out
}

func findProviderRefs(s string) []string {
	const prefix = "providers."
	var out []string
	idx := 0
	for {
		start := strings.Index(s[idx:], "${"+prefix)
		if start < 0 {
			break
		}
		start += idx + 2 + len(prefix)
		end := strings.IndexByte(s[start:], '.')
		if end < 0 {
			break
		}
		out = append(out, s[start:start+end])
		idx = start + end
	}
	return out
}

func buildTemplateContext(projectName, environment string, variables map[string]any, resolved map[string]*model.Provider) template.Context {
	providers := make(map[string]any, len(resolved))
	for name, p := range resolved {
		providers[name] = map[string]any{"outputs": p.Status.Outputs}
	}
	return template.Context{
		"project":     map[string]any{"name": projectName},
		"environment": map[string]any{"name": environment},
		"variables":   variables,
		"providers":   providers,
	}
}
