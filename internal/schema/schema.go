// Package schema validates decoded configuration values (map[string]any /
// []any / scalars) against declarative model.SchemaNode trees, applying
// defaults top-down before validating. Unlike
// go-playground/validator/v10 (struct tags resolved via reflection at
// compile time), schemas here are data supplied by plugin authors at
// registration time, so the walk is written directly over the schema
// tree instead.
package schema

import (
	"fmt"
	"regexp"

	"github.com/grove-run/grove/internal/groveerrors"
	"github.com/grove-run/grove/internal/model"
)

// ApplyDefaults walks schema top-down and fills in any missing object
// field with its declared Default, mutating and returning a new value
// (the input is never mutated in place).
func ApplyDefaults(value any, s model.SchemaNode) any {
	switch s.Kind {
	case model.SchemaObject:
		m, _ := value.(map[string]any)
		out := make(map[string]any, len(s.Fields))
		for k, v := range m {
			out[k] = v
		}
		for name, field := range s.Fields {
			if _, present := out[name]; !present && field.Default != nil {
				out[name] = field.Default
			}
		}
		for name, field := range s.Fields {
			if child, ok := out[name]; ok {
				out[name] = ApplyDefaults(child, field)
			}
		}
		return out
	case model.SchemaArray:
		arr, ok := value.([]any)
		if !ok || s.Items == nil {
			return value
		}
		out := make([]any, len(arr))
		for i, item := range arr {
			out[i] = ApplyDefaults(item, *s.Items)
		}
		return out
	default:
		if value == nil && s.Default != nil {
			return s.Default
		}
		return value
	}
}

// Validate checks value against s, returning every violation found; the
// path of each error is JSON-Pointer-style ("/build/dependencies/0/name").
func Validate(value any, s model.SchemaNode) []error {
	return validateAt("", value, s)
}

// ValidateChain validates value against the leaf schema first, then
// against each schema in baseChain in order: the final validated value
// must satisfy all of them. Defaults are applied once, from the most
// specific (leaf) schema, before any validation runs.
func ValidateChain(value any, leaf model.SchemaNode, baseChain []model.SchemaNode) (any, []error) {
	resolved := ApplyDefaults(value, leaf)

	var errs []error
	errs = append(errs, Validate(resolved, leaf)...)
	for _, base := range baseChain {
		errs = append(errs, Validate(resolved, base)...)
	}
	return resolved, errs
}

func validateAt(path string, value any, s model.SchemaNode) []error {
	var errs []error

	if value == nil {
		if s.Required {
			errs = append(errs, groveerrors.NewMissingFieldError(path, fieldName(path)))
		}
		return errs
	}

	switch s.Kind {
	case model.SchemaObject:
		m, ok := value.(map[string]any)
		if !ok {
			errs = append(errs, typeError(path, "object"))
			return errs
		}
		for name, field := range s.Fields {
			child, present := m[name]
			childPath := path + "/" + name
			if !present {
				if field.Required {
					errs = append(errs, groveerrors.NewMissingFieldError(childPath, name))
				}
				continue
			}
			errs = append(errs, validateAt(childPath, child, field)...)
		}
	case model.SchemaArray:
		arr, ok := value.([]any)
		if !ok {
			errs = append(errs, typeError(path, "array"))
			return errs
		}
		if s.Items != nil {
			for i, item := range arr {
				errs = append(errs, validateAt(fmt.Sprintf("%s/%d", path, i), item, *s.Items)...)
			}
		}
	case model.SchemaString:
		str, ok := value.(string)
		if !ok {
			errs = append(errs, typeError(path, "string"))
			return errs
		}
		if s.Pattern != "" {
			re, err := regexp.Compile(s.Pattern)
			if err == nil && !re.MatchString(str) {
				errs = append(errs, groveerrors.New(groveerrors.KindConfiguration, path,
					fmt.Sprintf("value %q does not match pattern %q", str, s.Pattern), nil))
			}
		}
		errs = append(errs, checkAllowed(path, str, s.Allowed)...)
	case model.SchemaNumber:
		switch value.(type) {
		case int, int64, float64, float32:
		default:
			errs = append(errs, typeError(path, "number"))
			return errs
		}
		errs = append(errs, checkAllowed(path, value, s.Allowed)...)
	case model.SchemaBoolean:
		if _, ok := value.(bool); !ok {
			errs = append(errs, typeError(path, "boolean"))
		}
	}

	return errs
}

func checkAllowed(path string, value any, allowed []any) []error {
	if len(allowed) == 0 {
		return nil
	}
	for _, a := range allowed {
		if fmt.Sprintf("%v", a) == fmt.Sprintf("%v", value) {
			return nil
		}
	}
	return []error{groveerrors.New(groveerrors.KindConfiguration, path,
		fmt.Sprintf("value %v is not one of the allowed values %v", value, allowed), nil)}
}

func typeError(path, want string) error {
	return groveerrors.New(groveerrors.KindConfiguration, path, fmt.Sprintf("expected %s", want), nil)
}

func fieldName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
