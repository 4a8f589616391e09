// Package groveerrors defines the typed error taxonomy shared by every
// component: configuration, template, plugin, dependency, runtime,
// readiness, cancellation, and internal invariant failures.
package groveerrors

import "fmt"

// Kind identifies which bucket of the taxonomy an error belongs to.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindTemplate      Kind = "template"
	KindPlugin        Kind = "plugin"
	KindDependency    Kind = "dependency"
	KindRuntime       Kind = "runtime"
	KindNotReady      Kind = "not_ready"
	KindCancelled     Kind = "cancelled"
	KindInternal      Kind = "internal"
)

// GroveError is the common shape for every taxonomy member: a kind, the
// path of the offending entity (file + key, or plugin/provider/module
// name), an optional upstream cause, and an actionable hint.
type GroveError struct {
	Kind   Kind
	Path   string
	Hint   string
	Err    error
	detail string
}

// New constructs a GroveError of the given kind.
func New(kind Kind, path, detail string, err error) *GroveError {
	return &GroveError{Kind: kind, Path: path, detail: detail, Err: err}
}

// WithHint attaches an actionable hint and returns the receiver for chaining.
func (e *GroveError) WithHint(hint string) *GroveError {
	if e == nil {
		return nil
	}
	e.Hint = hint
	return e
}

func (e *GroveError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s error", e.Kind)
	if e.Path != "" {
		msg += fmt.Sprintf(" [%s]", e.Path)
	}
	if e.detail != "" {
		msg += ": " + e.detail
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Err)
	}
	if e.Hint != "" {
		msg += " -- " + e.Hint
	}
	return msg
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *GroveError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is a GroveError of the same Kind, so callers
// can do errors.Is(err, groveerrors.New(groveerrors.KindNotReady, "", "", nil)).
func (e *GroveError) Is(target error) bool {
	other, ok := target.(*GroveError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newf(kind Kind, path string, err error, format string, args ...interface{}) *GroveError {
	return New(kind, path, fmt.Sprintf(format, args...), err)
}

// Configuration-kind constructors.

func NewConfigurationError(path, message string, err error) *GroveError {
	return New(KindConfiguration, path, message, err)
}

func NewMissingFieldError(path, field string) *GroveError {
	return newf(KindConfiguration, path, nil, "missing required field %q", field)
}

func NewUnknownModuleTypeError(path, moduleType string) *GroveError {
	return newf(KindConfiguration, path, nil, "unknown module type %q", moduleType)
}

func NewDuplicateModuleError(name, firstPath, secondPath string) *GroveError {
	return newf(KindConfiguration, name, nil, "module %q declared twice, at %q and %q", name, firstPath, secondPath)
}

func NewConflictingExtensionsError(dir string) *GroveError {
	return newf(KindConfiguration, dir, nil, "directory declares both garden.yml and garden.yaml")
}

func NewLocalExecCopyError(module string, deps []string) *GroveError {
	return newf(KindConfiguration, module, nil, "local module must not declare build dependency copy for: %s", joinSpace(deps))
}

// Template-kind constructors.

func NewUnresolvedReferenceError(path, expression string) *GroveError {
	return newf(KindTemplate, path, nil, "unresolved reference %s", expression)
}

func NewCircularReferenceError(path string, trail []string) *GroveError {
	return newf(KindTemplate, path, nil, "circular reference: %s", joinArrows(trail))
}

func NewTemplateTypeMismatchError(path, expression, want string) *GroveError {
	return newf(KindTemplate, path, nil, "expression %s must resolve to %s", expression, want)
}

// Plugin-kind constructors.

func NewMissingPluginError(name string) *GroveError {
	return newf(KindPlugin, name, nil, "plugin %q is not registered", name)
}

func NewMissingBaseError(plugin, base string) *GroveError {
	return newf(KindPlugin, plugin, nil, "base plugin %q is not registered", base)
}

func NewCircularBasesError(cycle []string) *GroveError {
	return newf(KindPlugin, "", nil, "circular base chain: %s", joinArrows(cycle))
}

func NewCircularDepsError(cycle []string) *GroveError {
	return newf(KindPlugin, "", nil, "circular plugin dependency: %s", joinArrows(cycle))
}

func NewMultipleCreatorsError(moduleType, first, second string) *GroveError {
	return newf(KindPlugin, moduleType, nil, "module type %q created by both %q and %q", moduleType, first, second)
}

func NewExtendWithoutDeclareError(plugin, moduleType string) *GroveError {
	return newf(KindPlugin, plugin, nil, "extends undeclared module type %q", moduleType)
}

func NewExtendWithoutDepError(plugin, moduleType, creator string) *GroveError {
	return newf(KindPlugin, plugin, nil, "extends module type %q created by %q without declaring a dependency on it", moduleType, creator)
}

func NewNoHandlerError(action, target string) *GroveError {
	return newf(KindPlugin, target, nil, "no handler found for action %q", action)
}

// Dependency-kind constructors.

func NewMissingReferenceError(path, kind, name string) *GroveError {
	return newf(KindDependency, path, nil, "%s %q not found", kind, name)
}

func NewGraphCycleError(label string, cycle []string) *GroveError {
	return newf(KindDependency, "", nil, "cyclic %s graph: %s", label, joinArrows(cycle))
}

// Runtime-kind constructors.

func NewRuntimeError(entity string, err error) *GroveError {
	return New(KindRuntime, entity, "handler failed", err)
}

func NewTimeoutError(entity string) *GroveError {
	return newf(KindRuntime, entity, nil, "timed out")
}

func NewUnresolvedRuntimeReferenceError(entity string, expressions []string) *GroveError {
	return newf(KindRuntime, entity, nil,
		"Unable to resolve one or more runtime template values for service '%s': %s",
		entity, joinSpace(expressions))
}

// NotReady, Cancelled, Internal constructors.

func NewNotReadyError(provider string) *GroveError {
	return newf(KindNotReady, provider, nil, "provider did not become ready")
}

func NewCancelledError(entity string) *GroveError {
	return newf(KindCancelled, entity, nil, "cancelled")
}

func NewInternalError(detail string, err error) *GroveError {
	return New(KindInternal, "", detail, err)
}

func joinArrows(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " <- "
		}
		out += p
	}
	return out
}

func joinSpace(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
