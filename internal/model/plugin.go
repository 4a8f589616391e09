// Package model holds the data shapes shared by every component: plugin
// descriptors, providers, module configuration, the config graph, task
// nodes, and the runtime context. Components depend on model; model
// depends on nothing else in this module.
package model

import "context"

// Handler is a single named plugin action implementation. Params and
// result are intentionally untyped (any) because the handler contract is
// provided by plugin authors outside this core; see the action router
// for how a concrete call is dispatched and validated.
type Handler func(ctx HandlerContext, params any) (any, error)

// AsSuper adapts h into the SuperInvoker shape a child handler can call
// to delegate to its parent.
func (h Handler) AsSuper() SuperInvoker {
	if h == nil {
		return nil
	}
	return SuperInvoker(h)
}

// HandlerContext is what every handler receives regardless of action
// kind: the invocation's cancellation/timeout signal, a logger, the
// runtime context when one applies, and a super invoker for delegating
// to the parent in a base chain.
type HandlerContext struct {
	Ctx     context.Context // may be nil for invocations during config load
	Logger  Logger
	Runtime *RuntimeContext
	Super   SuperInvoker
}

// SuperInvoker calls the same action on the next plugin up a base chain.
// It is nil when there is no parent to delegate to.
type SuperInvoker func(ctx HandlerContext, params any) (any, error)

// Logger is the minimal logging contract components depend on, so model
// and the components built on it never import a concrete logging
// implementation.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(err error, msg string, fields ...interface{})
}

// ModuleTypeDef describes a module type a plugin creates: its config
// schema, documentation, and the handler table module-level actions
// dispatch into.
type ModuleTypeDef struct {
	Name     string
	Schema   SchemaNode
	Docs     string
	Handlers map[string]Handler
}

// ModuleTypeExtension augments a module type created by a different
// plugin with additional handlers.
type ModuleTypeExtension struct {
	Name     string
	Handlers map[string]Handler
}

// CommandDef is a named command a plugin exposes.
type CommandDef struct {
	Name        string
	Description string
	Run         Handler
}

// Dependency is a single entry in a plugin's ordered dependency list.
type Dependency struct {
	Name string
}

// PluginDescriptor is the as-declared shape of a plugin, before the
// registry resolves its base chain and dependency order.
type PluginDescriptor struct {
	Name              string
	Base              string // empty when the plugin has no parent
	Dependencies      []Dependency
	ConfigSchema      *SchemaNode
	ProviderHandlers  map[string]Handler
	CreateModuleTypes []ModuleTypeDef
	ExtendModuleTypes []ModuleTypeExtension
	Commands          []CommandDef
}

// ResolvedPlugin is a PluginDescriptor after the registry has flattened
// its base chain: handler tables are merged leaf-wins, each overridden
// slot carries a super link back to the parent's handler, and
// Dependencies is the de-duplicated, stable-ordered union across the
// chain.
type ResolvedPlugin struct {
	Name              string
	BaseChain         []string // immediate parent first, root base last
	Dependencies      []string
	ConfigSchema      *SchemaNode  // this plugin's own provider config schema, if declared
	ConfigSchemaChain []SchemaNode // base chain's schemas, immediate parent first, so provider configs validate against the whole chain
	ProviderHandlers  map[string]HandlerChain
	ModuleTypes       map[string]*ModuleTypeDef          // created by this plugin or an ancestor
	ModuleHandlers    map[string]map[string]HandlerChain // moduleType -> action -> chain
	Commands          []CommandDef
}

// ConfigureModuleResult is what a module type's "configure" handler
// returns: the services/tasks/tests it synthesizes from the module's
// spec, plus any outputs it publishes for other modules' template
// references. A handler returning any other shape leaves the module's
// statically-resolved config unchanged.
type ConfigureModuleResult struct {
	Services []ServiceConfig
	Tasks    []TaskConfig
	Tests    []TestConfig
	Outputs  map[string]any
}

// ConfigureProviderResult is what a "configureProvider" handler may
// return to override its own resolved config and synthesize module
// configs; any other return value leaves both unchanged.
type ConfigureProviderResult struct {
	Config        map[string]any
	ModuleConfigs []ModuleConfig
}

// HandlerChain is a handler together with the super-invoker that reaches
// its parent's implementation of the same action, if any.
type HandlerChain struct {
	Handler Handler
	Super   SuperInvoker
}
