package module

import (
	"context"
	"fmt"
	"sort"

	"github.com/grove-run/grove/internal/action"
	"github.com/grove-run/grove/internal/graph"
	"github.com/grove-run/grove/internal/groveerrors"
	"github.com/grove-run/grove/internal/logging"
	"github.com/grove-run/grove/internal/model"
	"github.com/grove-run/grove/internal/schema"
	"github.com/grove-run/grove/internal/store"
	"github.com/grove-run/grove/internal/template"
	"github.com/grove-run/grove/internal/version"
	diffpkg "github.com/grove-run/grove/pkg/diff"
)

// Registry is the subset of *plugin.Registry Configure needs, kept as
// an interface so it can be exercised without constructing a full
// resolved registry.
type Registry interface {
	CreatorOf(moduleType string) (string, bool)
	Get(name string) (*model.ResolvedPlugin, error)
}

// Configure processes modules in build-dependency order (a module's
// build.dependencies must be configured, versioned, and staged before
// it), resolving templates,
// validating against the creator plugin's schema, rejecting local
// modules that declare copy-on-build dependencies, invoking each
// module's configure handler, and computing + persisting its version.
// baseCtx supplies the project/environment/variables/providers layers
// of the template context; Configure adds a growing "modules" layer as
// each module finishes.
func Configure(ctx context.Context, registry Registry, router *action.Router, st *store.Store, hasher *version.Hasher, logger *logging.Logger, cacheRoot string, dotIgnoreLines []string, modules []model.ModuleConfig, baseCtx template.Context) ([]model.ModuleConfig, error) {
	byName := make(map[string]*model.ModuleConfig, len(modules))
	for i := range modules {
		byName[modules[i].Name] = &modules[i]
	}

	dag := graph.New()
	for _, m := range modules {
		dag.AddNode(m.Name)
	}
	for _, m := range modules {
		for _, dep := range m.Build.Dependencies {
			if _, ok := byName[dep.Name]; !ok {
				return nil, groveerrors.NewMissingReferenceError(m.Path, "module", dep.Name)
			}
			dag.AddEdge(m.Name, dep.Name)
		}
	}
	if cycle := dag.DetectCycle(); len(cycle) > 0 {
		return nil, groveerrors.NewGraphCycleError("build", cycle)
	}
	order, err := dag.TopologicalSort()
	if err != nil {
		return nil, err
	}

	resolvedPaths := make(map[string]string, len(modules))
	versions := make(map[string]model.ModuleVersion, len(modules))
	modulesCtx := make(map[string]any, len(modules))

	for _, name := range order {
		m := byName[name]

		path, err := resolveModulePath(st, cacheRoot, m.Name, m.RepositoryURL, m.Path)
		if err != nil {
			return nil, err
		}
		m.ResolvedPath = path
		resolvedPaths[m.Name] = path

		tctx := mergeContext(baseCtx, modulesCtx)
		if err := resolveModuleTemplates(m, tctx); err != nil {
			return nil, err
		}

		creatorName, ok := registry.CreatorOf(m.Type)
		if !ok {
			return nil, groveerrors.NewUnknownModuleTypeError(m.Path, m.Type)
		}
		creator, err := registry.Get(creatorName)
		if err != nil {
			return nil, err
		}
		def, ok := creator.ModuleTypes[m.Type]
		if !ok {
			return nil, groveerrors.NewUnknownModuleTypeError(m.Path, m.Type)
		}
		// Extensions carry no schema of their own (model.ModuleTypeExtension
		// has no Schema field) so only the creator's single schema is
		// validated against, unlike the provider resolver's leaf+base
		// schema chain.
		resolvedSpec, errs := schema.ValidateChain(m.Spec, def.Schema, nil)
		if len(errs) > 0 {
			return nil, groveerrors.NewConfigurationError(m.Path, errs[0].Error(), errs[0])
		}
		if specMap, ok := resolvedSpec.(map[string]any); ok {
			m.Spec = specMap
		}

		if m.Local {
			var offending []string
			for _, dep := range m.Build.Dependencies {
				if len(dep.Copy) > 0 {
					offending = append(offending, dep.Name)
				}
			}
			if len(offending) > 0 {
				return nil, groveerrors.NewLocalExecCopyError(m.Name, offending)
			}
		}

		if err := stageCopies(cacheRoot, *m, resolvedPaths); err != nil {
			return nil, err
		}

		out, err := router.Dispatch(ctx, action.Call{
			Action:     "configure",
			TargetKind: action.TargetModule,
			TargetName: m.Name,
			ModuleType: m.Type,
		}, m.Spec, nil, logger)
		if err != nil {
			return nil, err
		}
		if res, ok := out.(model.ConfigureModuleResult); ok {
			m.ServiceConfigs = res.Services
			m.TaskConfigs = res.Tasks
			m.TestConfigs = res.Tests
			m.Outputs = res.Outputs
		}

		mv, err := computeVersion(hasher, path, dotIgnoreLines, *m, versions)
		if err != nil {
			return nil, err
		}

		prevPath := buildMetadataPath(cacheRoot, m.Name)
		if prev, ok := readBuildVersion(prevPath); !ok {
			logger.Debug("no previous build-version file found, treating as stale", "module", m.Name)
		} else if prev.VersionString != mv.VersionString {
			d := diffpkg.FileListDiff(prev.Files, mv.Files, "previous", "current")
			logger.Debug("module version changed", "module", m.Name, "diff", d)
		}
		if err := writeBuildVersion(prevPath, mv); err != nil {
			return nil, err
		}

		m.Version = mv
		versions[m.Name] = mv
		modulesCtx[m.Name] = map[string]any{"version": mv.VersionString}

		for i := range m.TaskConfigs {
			m.TaskConfigs[i].Version = version.ExtendVersion(mv, m.TaskConfigs[i].Dependencies).VersionString
		}
		for i := range m.TestConfigs {
			m.TestConfigs[i].Version = version.ExtendVersion(mv, m.TestConfigs[i].Dependencies).VersionString
		}
	}

	out := make([]model.ModuleConfig, 0, len(modules))
	for _, n := range sortedNames(byName) {
		out = append(out, *byName[n])
	}
	return out, nil
}

func sortedNames(byName map[string]*model.ModuleConfig) []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// mergeContext layers a run's modules.* values (each configured module's
// version, growing as Configure proceeds) over the project-wide base
// context built once by the caller.
func mergeContext(base template.Context, modulesCtx map[string]any) template.Context {
	merged := make(template.Context, len(base)+1)
	for k, v := range base {
		merged[k] = v
	}
	merged["modules"] = modulesCtx
	return merged
}

// resolveModuleTemplates runs the static template pass over a module's
// spec and env, since both may reference
// modules.<dep>.version, variables.*, providers.*.outputs.*, and
// environment/project values already available at config-load time.
func resolveModuleTemplates(m *model.ModuleConfig, ctx template.Context) error {
	specIn := any(m.Spec)
	if m.Spec == nil {
		specIn = map[string]any{}
	}
	resolvedSpec, err := template.Resolve(specIn, ctx, template.StaticPass)
	if err != nil {
		return err
	}
	if specMap, ok := resolvedSpec.(map[string]any); ok {
		m.Spec = specMap
	}

	envIn := make(map[string]any, len(m.Env))
	for k, v := range m.Env {
		envIn[k] = v
	}
	resolvedEnv, err := template.Resolve(envIn, ctx, template.StaticPass)
	if err != nil {
		return err
	}
	if envMap, ok := resolvedEnv.(map[string]any); ok {
		out := make(map[string]string, len(envMap))
		for k, v := range envMap {
			if s, ok := v.(string); ok {
				out[k] = s
			} else {
				out[k] = fmt.Sprint(v)
			}
		}
		m.Env = out
	}
	return nil
}

func computeVersion(hasher *version.Hasher, path string, dotIgnoreLines []string, m model.ModuleConfig, versions map[string]model.ModuleVersion) (model.ModuleVersion, error) {
	var include []string
	if m.IncludeSet {
		include = m.Include
	}
	files, err := hasher.FileSet(path, dotIgnoreLines, include, m.Exclude)
	if err != nil {
		return model.ModuleVersion{}, err
	}

	depNames := make([]string, 0, len(m.Build.Dependencies))
	for _, dep := range m.Build.Dependencies {
		depNames = append(depNames, dep.Name)
	}
	depVersions, err := version.ComputeDependencyVersions(depNames, func(name string) (string, error) {
		v, ok := versions[name]
		if !ok {
			return "", groveerrors.NewMissingReferenceError(m.Path, "module", name)
		}
		return v.VersionString, nil
	})
	if err != nil {
		return model.ModuleVersion{}, err
	}

	return hasher.ComputeModuleVersion(path, files, depVersions)
}
