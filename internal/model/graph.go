package model

// EdgeLabel is the typed relation between two config-graph entities.
type EdgeLabel string

const (
	EdgeBuild   EdgeLabel = "build"
	EdgeService EdgeLabel = "service"
	EdgeTask    EdgeLabel = "task"
	EdgeTest    EdgeLabel = "test"
)

// EntityKind distinguishes the four node kinds the config graph holds.
type EntityKind string

const (
	EntityModule  EntityKind = "module"
	EntityService EntityKind = "service"
	EntityTask    EntityKind = "task"
	EntityTest    EntityKind = "test"
)

// EntityRef identifies one node in the config graph.
type EntityRef struct {
	Kind EntityKind
	Name string
}
