package model

// ProviderStatus reports whether a provider's environment is ready and
// what it published for downstream templates and module types to use.
type ProviderStatus struct {
	Ready   bool
	Outputs map[string]any
}

// Provider is a resolved plugin instance for the active environment.
// Created by the provider resolver exactly once per process per name;
// never mutated after resolution completes.
type Provider struct {
	Name          string
	Config        map[string]any
	Dependencies  []*Provider
	ModuleConfigs []ModuleConfig
	Status        ProviderStatus
	Environments  []string // restricts this provider to these environment names, empty means all
}
