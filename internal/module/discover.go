// Package module implements the module configurator: discovering
// garden.yml/garden.yaml files honoring an ignore hierarchy, resolving
// references between modules, validating against plugin schemas,
// invoking each module's configure handler, and assigning
// content-addressed versions.
package module

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/grove-run/grove/internal/groveerrors"
	"github.com/grove-run/grove/internal/model"
	"github.com/grove-run/grove/pkg/ignore"
)

// structValidate checks the required-field struct tags on
// ProjectConfig/ModuleConfig (e.g. `validate:"required"` on Name/Type)
// before a document ever reaches the declarative schema pass, which
// covers only the type-specific spec section.
var structValidate = validator.New()

const (
	configFileYML  = "garden.yml"
	configFileYAML = "garden.yaml"
)

// Discover walks root for every garden.yml/garden.yaml file, honoring
// the project's dotignore files, a root .gitignore (VCS ignore), and the
// project's modules.include/modules.exclude globs. It returns the
// absolute paths of in-scope config files, sorted, skipping the .grove
// cache directory and .git entirely. A directory declaring both
// garden.yml and garden.yaml fails with ConflictingExtensions.
func Discover(root string, project model.ProjectConfig, cacheDirName string) ([]string, error) {
	dotIgnoreLines, err := LoadDotIgnoreLines(root, project.DotIgnoreFiles)
	if err != nil {
		return nil, err
	}

	matcher, err := ignore.New(dotIgnoreLines, project.ModulesInclude, project.ModulesExclude)
	if err != nil {
		return nil, err
	}

	var found []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", cacheDirName:
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if name != configFileYML && name != configFileYAML {
			return nil
		}

		dir := filepath.Dir(path)
		if err := rejectConflictingExtensions(dir); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		ok, err := matcher.Match(rel)
		if err != nil {
			return err
		}
		if ok {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(found)
	return dedupDirs(found), nil
}

// rejectConflictingExtensions fails when a directory declares both
// garden.yml and garden.yaml.
func rejectConflictingExtensions(dir string) error {
	_, errYML := os.Stat(filepath.Join(dir, configFileYML))
	_, errYAML := os.Stat(filepath.Join(dir, configFileYAML))
	if errYML == nil && errYAML == nil {
		return groveerrors.NewConflictingExtensionsError(dir)
	}
	return nil
}

// dedupDirs collapses repeated WalkDir visits of the same directory's
// pair check into a single entry (rejectConflictingExtensions is called
// once per file found, so a directory with one config file is visited
// once already; this guards the pathological case of symlinked re-entry).
func dedupDirs(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// LoadDotIgnoreLines reads the project's configured dotignore files
// (defaulting to .gardenignore) plus the root .gitignore, returning
// their combined, non-empty lines for pkg/ignore's matcher.
func LoadDotIgnoreLines(root string, dotIgnoreFiles []string) ([]string, error) {
	names := dotIgnoreFiles
	if len(names) == 0 {
		names = []string{".gardenignore"}
	}
	names = append(names, ".gitignore")

	var lines []string
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimRight(line, "\r")
			if line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}

// docPeek decodes just enough of a YAML document to dispatch on `kind`.
type docPeek struct {
	Kind string `yaml:"kind"`
}

// LoadConfigs parses every discovered config file, separating the
// single `kind: Project` document (if any) from the project's `kind:
// Module` documents, and fails with DuplicateModule when two modules
// share a name.
func LoadConfigs(paths []string) (*model.ProjectConfig, []model.ModuleConfig, error) {
	var project *model.ProjectConfig
	var projectPath string
	var modules []model.ModuleConfig
	seenNames := make(map[string]string, len(paths))

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}

		dec := yaml.NewDecoder(bytes.NewReader(data))
		for {
			var node yaml.Node
			if err := dec.Decode(&node); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, nil, groveerrors.NewConfigurationError(path, "invalid YAML document", err)
			}

			var peek docPeek
			if err := node.Decode(&peek); err != nil {
				return nil, nil, groveerrors.NewConfigurationError(path, "invalid config document", err)
			}

			switch peek.Kind {
			case "Project":
				if project != nil {
					return nil, nil, groveerrors.NewConfigurationError(path, "a second Project document was found (first at "+projectPath+")", nil)
				}
				var p model.ProjectConfig
				if err := node.Decode(&p); err != nil {
					return nil, nil, groveerrors.NewConfigurationError(path, "invalid Project document", err)
				}
				if err := structValidate.Struct(&p); err != nil {
					return nil, nil, groveerrors.NewConfigurationError(path, "invalid Project document", err)
				}
				project = &p
				projectPath = path
			case "Module":
				var m model.ModuleConfig
				if err := node.Decode(&m); err != nil {
					return nil, nil, groveerrors.NewConfigurationError(path, "invalid Module document", err)
				}
				if err := structValidate.Struct(&m); err != nil {
					return nil, nil, groveerrors.NewConfigurationError(path, "invalid Module document", err)
				}
				m.Path = filepath.Dir(path)
				if first, ok := seenNames[m.Name]; ok {
					return nil, nil, groveerrors.NewDuplicateModuleError(m.Name, first, path)
				}
				seenNames[m.Name] = path
				modules = append(modules, m)
			default:
				return nil, nil, groveerrors.NewConfigurationError(path, "unknown document kind \""+peek.Kind+"\"", nil)
			}
		}
	}

	sort.Slice(modules, func(i, j int) bool { return modules[i].Name < modules[j].Name })
	return project, modules, nil
}
