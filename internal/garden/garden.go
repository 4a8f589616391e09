// Package garden wires the core subsystems into the single top-level
// aggregate a caller constructs once per process: plugin registry,
// provider resolver, module configurator, config graph, action router,
// task scheduler, and runtime context builder, all sharing one config
// store and logger. Shared mutable state lives here, each map behind
// its own RWMutex; the components themselves receive immutable
// snapshots.
package garden

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/grove-run/grove/internal/action"
	"github.com/grove-run/grove/internal/graph"
	"github.com/grove-run/grove/internal/groveerrors"
	"github.com/grove-run/grove/internal/logging"
	"github.com/grove-run/grove/internal/model"
	"github.com/grove-run/grove/internal/module"
	"github.com/grove-run/grove/internal/plugin"
	"github.com/grove-run/grove/internal/provider"
	"github.com/grove-run/grove/internal/scheduler"
	"github.com/grove-run/grove/internal/store"
	"github.com/grove-run/grove/internal/template"
	"github.com/grove-run/grove/internal/version"
)

// Options configures a Garden for one process.
type Options struct {
	CacheDirName     string // defaults to ".grove"
	ConcurrencyLimit int    // scheduler fan-out width; <= 0 defaults to runtime.NumCPU() * 2
	Logger           *logging.Logger
}

// Garden is the coordinator a caller (in scope, cmd/grovectl; out of
// scope, any other driver) builds once per process. It owns the
// config graph and the per-module version map behind their own
// sync.RWMutex; the scheduler's ResultCache carries its
// own internal locking since it is itself a shared, long-lived store.
type Garden struct {
	Registry  *plugin.Registry
	Store     *store.Store
	Hasher    *version.Hasher
	Router    *action.Router
	Providers *provider.Resolver
	Scheduler *scheduler.Scheduler
	Cache     *scheduler.ResultCache
	Logger    *logging.Logger

	cacheRoot        string
	cacheDirName     string
	cacheDir         string
	concurrencyLimit int

	graphMu     sync.RWMutex
	configGraph *graph.ConfigGraph
	modules     map[string]model.ModuleConfig

	versionsMu     sync.RWMutex
	moduleVersions map[string]model.ModuleVersion
}

// New opens the config store at <cacheRoot>/<cacheDirName>/config-store.json
// and builds an empty Garden. Call RegisterPlugin for every plugin the
// process supports, then Resolve, then Bootstrap once per project load.
func New(cacheRoot string, opts Options) (*Garden, error) {
	cacheDirName := opts.CacheDirName
	if cacheDirName == "" {
		cacheDirName = ".grove"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(logging.Options{Level: "info"})
	}

	concurrencyLimit := opts.ConcurrencyLimit
	if concurrencyLimit <= 0 {
		concurrencyLimit = runtime.NumCPU() * 2
	}

	cacheDir := filepath.Join(cacheRoot, cacheDirName)
	st, err := store.Open(filepath.Join(cacheDir, "config-store.json"))
	if err != nil {
		return nil, err
	}

	registry := plugin.NewRegistry(logger.With("plugin"))
	return &Garden{
		Registry:         registry,
		Store:            st,
		Hasher:           version.New(),
		Providers:        provider.New(registry, logger.With("provider")),
		Cache:            scheduler.NewResultCache(),
		Logger:           logger,
		cacheRoot:        cacheRoot,
		cacheDirName:     cacheDirName,
		cacheDir:         cacheDir,
		concurrencyLimit: concurrencyLimit,
		moduleVersions:   make(map[string]model.ModuleVersion),
	}, nil
}

// RegisterPlugin adds a plugin descriptor to the registry. Must be
// called before Resolve.
func (g *Garden) RegisterPlugin(d model.PluginDescriptor) error {
	return g.Registry.Register(d)
}

// Resolve flattens the registered plugins and builds the action
// router and scheduler over the resolved registry. Must be
// called once after every plugin has been registered and before
// Bootstrap.
func (g *Garden) Resolve() error {
	if err := g.Registry.Resolve(); err != nil {
		return err
	}
	g.Router = action.New(g.Registry)
	g.Scheduler = scheduler.New(g.concurrencyLimit, g.Cache, g.Logger.With("scheduler"))
	return nil
}

// BootstrapResult is the outcome of loading and fully configuring one
// project: every resolved provider, every configured module, and the
// config graph built from them.
type BootstrapResult struct {
	Project   *model.ProjectConfig
	Providers map[string]*model.Provider
	Modules   []model.ModuleConfig
	Graph     *graph.ConfigGraph
}

// Bootstrap loads one project root end to end: discover and load
// garden.yml/garden.yaml documents, resolve providers for the active
// environment, configure modules in build-dependency order, then build
// the config graph from the result. Resolve must have been called
// first.
func (g *Garden) Bootstrap(ctx context.Context, projectRoot, environment string, providerCfg provider.Config) (*BootstrapResult, error) {
	if g.Router == nil {
		return nil, groveerrors.NewInternalError("garden.Resolve must be called before Bootstrap", nil)
	}

	paths, err := module.Discover(projectRoot, model.ProjectConfig{}, g.cacheDirName)
	if err != nil {
		return nil, err
	}
	project, modules, err := module.LoadConfigs(paths)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, groveerrors.NewConfigurationError(projectRoot, "no Project document found", nil)
	}

	// A second discovery pass honors the project's own
	// modules.include/modules.exclude and dotIgnoreFiles, which are only
	// known once the Project document itself has been parsed.
	paths, err = module.Discover(projectRoot, *project, g.cacheDirName)
	if err != nil {
		return nil, err
	}
	project, modules, err = module.LoadConfigs(paths)
	if err != nil {
		return nil, err
	}

	if environment == "" {
		environment = project.DefaultEnvironment
	}

	providerCfg.ActiveEnvironment = environment
	providerCfg.ProjectName = project.Name
	providerCfg.Variables = project.Variables
	providers, err := g.Providers.Resolve(ctx, project.Providers, providerCfg)
	if err != nil {
		return nil, err
	}

	baseCtx := buildBaseContext(project, environment, providers)

	dotIgnoreLines, err := module.LoadDotIgnoreLines(projectRoot, project.DotIgnoreFiles)
	if err != nil {
		return nil, err
	}

	configured, err := module.Configure(ctx, g.Registry, g.Router, g.Store, g.Hasher, g.Logger.With("module"), g.cacheDir, dotIgnoreLines, modules, baseCtx)
	if err != nil {
		return nil, err
	}

	cg, err := graph.BuildFromModules(configured)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]model.ModuleConfig, len(configured))
	for _, m := range configured {
		byName[m.Name] = m
	}

	g.graphMu.Lock()
	g.configGraph = cg
	g.modules = byName
	g.versionsMu.Lock()
	for _, m := range configured {
		g.moduleVersions[m.Name] = m.Version
	}
	g.versionsMu.Unlock()
	g.graphMu.Unlock()

	return &BootstrapResult{
		Project:   project,
		Providers: providers,
		Modules:   configured,
		Graph:     cg,
	}, nil
}

// ConfigGraph returns the config graph built by the most recent
// Bootstrap call.
func (g *Garden) ConfigGraph() *graph.ConfigGraph {
	g.graphMu.RLock()
	defer g.graphMu.RUnlock()
	return g.configGraph
}

// ModuleVersion returns the most recently computed version for name.
func (g *Garden) ModuleVersion(name string) (model.ModuleVersion, bool) {
	g.versionsMu.RLock()
	defer g.versionsMu.RUnlock()
	v, ok := g.moduleVersions[name]
	return v, ok
}

// buildBaseContext assembles the project/environment/variables/providers
// layers of the template context threaded through module configuration.
// The runtime.* layer is absent here: it only exists once a scheduler
// run is underway.
func buildBaseContext(project *model.ProjectConfig, environment string, providers map[string]*model.Provider) template.Context {
	providersCtx := make(map[string]any, len(providers))
	for name, p := range providers {
		providersCtx[name] = map[string]any{"outputs": p.Status.Outputs}
	}
	return template.Context{
		"project":     map[string]any{"name": project.Name},
		"environment": map[string]any{"name": environment},
		"variables":   project.Variables,
		"providers":   providersCtx,
	}
}
