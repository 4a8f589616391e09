package model

// SchemaKind enumerates the declarative schema node types the schema
// validator accepts.
type SchemaKind string

const (
	SchemaObject  SchemaKind = "object"
	SchemaArray   SchemaKind = "array"
	SchemaString  SchemaKind = "string"
	SchemaNumber  SchemaKind = "number"
	SchemaBoolean SchemaKind = "boolean"
)

// SchemaNode is one node of a declarative configuration schema: a plugin
// author builds a tree of these instead of Go struct tags, since plugin
// schemas are data supplied at plugin-registration time, not compiled
// into this module.
type SchemaNode struct {
	Kind        SchemaKind
	Required    bool
	Default     any
	Allowed     []any // enumerated allowed values, any kind
	Pattern     string
	Description string

	// Object-kind only.
	Fields map[string]SchemaNode

	// Array-kind only.
	Items *SchemaNode
}
