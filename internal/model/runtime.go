package model

// ServiceStatus is the coerced-to-string-friendly status of a service
// dependency as seen from a running handler.
type ServiceStatus struct {
	State   string
	Outputs map[string]any
}

// RuntimeContext is the immutable environment exposed to a handler
// invocation once all its dependency results are known. It is built
// fresh per-invocation by the runtime context builder and never mutated
// after being handed to a handler.
type RuntimeContext struct {
	EnvVars         map[string]string
	Dependencies    RuntimeDependencies
	ServiceStatuses map[string]ServiceStatus
	TaskResults     map[string]TaskResult
}

// RuntimeDependencies groups a target's dependency names by edge label.
type RuntimeDependencies struct {
	Build   []string
	Service []string
	Task    []string
	Test    []string
}
