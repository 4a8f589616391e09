package model

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// CopyEntry stages a file from a build dependency into this module's
// build directory ahead of version computation.
type CopyEntry struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// BuildDependency names another module whose outputs this module's build
// depends on, with optional files to stage from it.
type BuildDependency struct {
	Name string      `yaml:"name"`
	Copy []CopyEntry `yaml:"copy,omitempty"`
}

// BuildConfig is a module's build.* section.
type BuildConfig struct {
	Dependencies []BuildDependency `yaml:"dependencies,omitempty"`
	Command      []string          `yaml:"command,omitempty"`
}

// ServiceConfig, TaskConfig, TestConfig are the entities a module's
// configure handler may synthesize. Dependencies name other
// services/tasks within the config graph.
type ServiceConfig struct {
	Name         string            `yaml:"name"`
	Dependencies []string          `yaml:"dependencies,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
	Spec         map[string]any    `yaml:"spec,omitempty"`
}

type TaskConfig struct {
	Name         string            `yaml:"name"`
	Dependencies []string          `yaml:"dependencies,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
	TimeoutSec   int               `yaml:"timeout,omitempty"`
	Spec         map[string]any    `yaml:"spec,omitempty"`
	Version      string            `yaml:"-"` // module version extended with Dependencies' names, assigned during configuration
}

type TestConfig struct {
	Name         string            `yaml:"name"`
	Dependencies []string          `yaml:"dependencies,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
	TimeoutSec   int               `yaml:"timeout,omitempty"`
	Spec         map[string]any    `yaml:"spec,omitempty"`
	Version      string            `yaml:"-"` // module version extended with Dependencies' names, assigned during configuration
}

// ModuleConfig is the `kind: Module` document shape.
type ModuleConfig struct {
	APIVersion     string            `yaml:"apiVersion"`
	Kind           string            `yaml:"kind"`
	Type           string            `yaml:"type" validate:"required"`
	Name           string            `yaml:"name" validate:"required"`
	Path           string            `yaml:"-"` // directory the garden.yml was discovered in, not serialized
	Description    string            `yaml:"description,omitempty"`
	RepositoryURL  string            `yaml:"repositoryUrl,omitempty"`
	Include        []string          `yaml:"include,omitempty"`
	IncludeSet     bool              `yaml:"-"` // distinguishes an omitted include list from an explicitly empty one
	Exclude        []string          `yaml:"exclude,omitempty"`
	AllowPublish   bool              `yaml:"allowPublish,omitempty"`
	Local          bool              `yaml:"local,omitempty"`
	Build          BuildConfig       `yaml:"build,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
	Spec           map[string]any    `yaml:"spec,omitempty"`
	ServiceConfigs []ServiceConfig   `yaml:"services,omitempty"`
	TaskConfigs    []TaskConfig      `yaml:"tasks,omitempty"`
	TestConfigs    []TestConfig      `yaml:"tests,omitempty"`
	Outputs        map[string]any    `yaml:"-"`
	Version        ModuleVersion     `yaml:"-"` // assigned during configuration
	ResolvedPath   string            `yaml:"-"` // local checkout path, set once for remote modules
}

// UnmarshalYAML distinguishes an omitted `include` from an explicitly
// empty one, which the decoded struct alone cannot express.
func (m *ModuleConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawModuleConfig ModuleConfig
	var raw rawModuleConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*m = ModuleConfig(raw)
	m.IncludeSet = hasYAMLKey(value, "include")
	return nil
}

// ProjectEnvironment is one entry in the project's environments list.
type ProjectEnvironment struct {
	Name      string         `yaml:"name"`
	Variables map[string]any `yaml:"variables,omitempty"`
}

// ProjectProviderConfig is one entry in the project's providers list:
// the plugin name plus its raw, not-yet-resolved configuration.
type ProjectProviderConfig struct {
	Name         string         `yaml:"name"`
	Environments []string       `yaml:"environments,omitempty"`
	Config       map[string]any `yaml:",inline"`
}

// ProjectConfig is the `kind: Project` document shape.
type ProjectConfig struct {
	APIVersion         string                  `yaml:"apiVersion"`
	Kind               string                  `yaml:"kind"`
	Name               string                  `yaml:"name" validate:"required"`
	DefaultEnvironment string                  `yaml:"defaultEnvironment"`
	Environments       []ProjectEnvironment    `yaml:"environments,omitempty"`
	Providers          []ProjectProviderConfig `yaml:"providers,omitempty"`
	DotIgnoreFiles     []string                `yaml:"dotIgnoreFiles,omitempty"`
	ModulesInclude     []string                `yaml:"modules.include,omitempty"`
	ModulesExclude     []string                `yaml:"modules.exclude,omitempty"`
	Variables          map[string]any          `yaml:"variables,omitempty"`
}

func hasYAMLKey(node *yaml.Node, key string) bool {
	if node == nil || node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i < len(node.Content); i += 2 {
		if strings.EqualFold(node.Content[i].Value, key) {
			return true
		}
	}
	return false
}
