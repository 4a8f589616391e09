// Package template resolves `${a.b.c}` references against a layered
// context tree, with cycle detection. It is unrelated to Go's own
// text/template package, which renders files from {{ }} actions;
// this resolves scalar/structured references inside configuration
// values.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/grove-run/grove/internal/groveerrors"
)

// refPattern matches a single ${...} reference.
var refPattern = regexp.MustCompile(`\$\{([a-zA-Z0-9_.\-]+)\}`)

// Context is the layered lookup tree a reference resolves against:
// providers.<name>.outputs.<k>, modules.<name>.version,
// runtime.services.<name>.outputs.<k>, runtime.tasks.<name>.outputs.<k>,
// variables.<k>, environment.name, project.name.
type Context map[string]any

// Pass selects which resolution pass is running. The static pass defers
// unresolved runtime.* references instead of failing; the runtime pass
// requires every reference to resolve.
type Pass int

const (
	StaticPass Pass = iota
	RuntimePass
)

// Resolve walks value (typically decoded YAML: map[string]any,
// []any, or a scalar) substituting every ${...} reference found in
// string leaves. A leaf whose entire value is a single reference may
// resolve to a non-string.
func Resolve(value any, ctx Context, pass Pass) (any, error) {
	return resolveValue(value, ctx, pass, map[string]struct{}{})
}

func resolveValue(value any, ctx Context, pass Pass, visiting map[string]struct{}) (any, error) {
	switch v := value.(type) {
	case string:
		return resolveString(v, ctx, pass, visiting)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			resolved, err := resolveValue(item, ctx, pass, visiting)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := resolveValue(item, ctx, pass, visiting)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// resolveString handles the "entire value is one reference" case
// (non-string passthrough) and the "reference embedded in a larger
// string" case (string substitution).
func resolveString(s string, ctx Context, pass Pass, visiting map[string]struct{}) (any, error) {
	matches := refPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		expr := s[matches[0][2]:matches[0][3]]
		val, deferred, err := resolvePath(expr, ctx, pass, visiting)
		if err != nil {
			return nil, err
		}
		if deferred {
			return s, nil
		}
		return val, nil
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(s[last:m[0]])
		expr := s[m[2]:m[3]]
		val, deferred, err := resolvePath(expr, ctx, pass, visiting)
		if err != nil {
			return nil, err
		}
		if deferred {
			sb.WriteString(s[m[0]:m[1]])
		} else {
			sb.WriteString(fmt.Sprintf("%v", val))
		}
		last = m[1]
	}
	sb.WriteString(s[last:])
	return sb.String(), nil
}

// CollectUnresolved walks value for every ${...} expression that would
// fail to resolve against ctx under the runtime pass, without stopping
// at the first failure. The action router uses this to build one
// UnresolvedRuntimeReference error naming every offending expression
// rather than surfacing only the first.
func CollectUnresolved(value any, ctx Context) []string {
	var out []string
	collectUnresolved(value, ctx, &out)
	return out
}

func collectUnresolved(value any, ctx Context, out *[]string) {
	switch v := value.(type) {
	case string:
		for _, m := range refPattern.FindAllStringSubmatch(v, -1) {
			expr := m[1]
			if _, _, err := resolvePath(expr, ctx, RuntimePass, map[string]struct{}{}); err != nil {
				*out = append(*out, "${"+expr+"}")
			}
		}
	case map[string]any:
		for _, item := range v {
			collectUnresolved(item, ctx, out)
		}
	case []any:
		for _, item := range v {
			collectUnresolved(item, ctx, out)
		}
	}
}

// resolvePath resolves a single dotted path against ctx. deferred=true
// means the expression was a runtime.* reference left verbatim during
// the static pass.
func resolvePath(expr string, ctx Context, pass Pass, visiting map[string]struct{}) (any, bool, error) {
	if pass == StaticPass && strings.HasPrefix(expr, "runtime.") {
		return nil, true, nil
	}

	if _, cycling := visiting[expr]; cycling {
		trail := make([]string, 0, len(visiting)+1)
		for k := range visiting {
			trail = append(trail, k)
		}
		trail = append(trail, expr)
		return nil, false, groveerrors.NewCircularReferenceError(expr, trail)
	}
	visiting[expr] = struct{}{}
	defer delete(visiting, expr)

	parts := strings.Split(expr, ".")
	var cur any = map[string]any(ctx)
	for i, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false, groveerrors.NewUnresolvedReferenceError(strings.Join(parts[:i], "."), "${"+expr+"}")
		}
		next, ok := m[part]
		if !ok {
			return nil, false, groveerrors.NewUnresolvedReferenceError(expr, "${"+expr+"}")
		}
		cur = next
	}

	if nested, ok := cur.(string); ok && refPattern.MatchString(nested) {
		resolved, err := resolveString(nested, ctx, pass, visiting)
		if err != nil {
			return nil, false, err
		}
		return resolved, false, nil
	}

	return cur, false, nil
}
