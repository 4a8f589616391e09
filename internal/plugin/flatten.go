package plugin

import (
	"github.com/grove-run/grove/internal/model"
)

// flatten merges d's handler tables and commands with its already
// resolved base (if any), leaf wins, attaching a super link on every
// overridden slot back to the parent's handler, merges dependencies
// de-duplicated and stable-ordered across the chain, and merges
// created/extended module types. resolved must already contain d.Base's
// ResolvedPlugin when d.Base is set, which Resolve guarantees by
// processing in root-first base order.
func flatten(d model.PluginDescriptor, resolved map[string]*model.ResolvedPlugin, descriptors map[string]model.PluginDescriptor) (*model.ResolvedPlugin, error) {
	rp := &model.ResolvedPlugin{
		Name:             d.Name,
		ProviderHandlers: make(map[string]model.HandlerChain),
		ModuleTypes:      make(map[string]*model.ModuleTypeDef),
		ModuleHandlers:   make(map[string]map[string]model.HandlerChain),
	}

	var baseChain []string
	var parent *model.ResolvedPlugin
	if d.Base != "" {
		parent = resolved[d.Base]
		baseChain = append([]string{d.Base}, parent.BaseChain...)

		for action, chain := range parent.ProviderHandlers {
			rp.ProviderHandlers[action] = chain
		}
		for typeName, def := range parent.ModuleTypes {
			copied := *def
			rp.ModuleTypes[typeName] = &copied
		}
		for typeName, handlers := range parent.ModuleHandlers {
			table := make(map[string]model.HandlerChain, len(handlers))
			for action, chain := range handlers {
				table[action] = chain
			}
			rp.ModuleHandlers[typeName] = table
		}
	}
	rp.BaseChain = baseChain

	for action, handler := range d.ProviderHandlers {
		var super model.SuperInvoker
		if existing, ok := rp.ProviderHandlers[action]; ok {
			super = existing.Handler.AsSuper()
		}
		rp.ProviderHandlers[action] = model.HandlerChain{Handler: handler, Super: super}
	}

	for _, mt := range d.CreateModuleTypes {
		def := mt
		rp.ModuleTypes[mt.Name] = &def
		table := make(map[string]model.HandlerChain, len(mt.Handlers))
		for action, handler := range mt.Handlers {
			table[action] = model.HandlerChain{Handler: handler}
		}
		rp.ModuleHandlers[mt.Name] = table
	}

	for _, ext := range d.ExtendModuleTypes {
		table, ok := rp.ModuleHandlers[ext.Name]
		if !ok {
			table = make(map[string]model.HandlerChain)
			rp.ModuleHandlers[ext.Name] = table
		}
		for action, handler := range ext.Handlers {
			var super model.SuperInvoker
			if existing, ok := table[action]; ok {
				super = existing.Handler.AsSuper()
			}
			table[action] = model.HandlerChain{Handler: handler, Super: super}
		}
	}

	rp.Dependencies = mergeDependencies(d, parent)
	rp.Commands = append(append([]model.CommandDef(nil), commandsOf(parent)...), d.Commands...)
	rp.ConfigSchema = d.ConfigSchema
	rp.ConfigSchemaChain = configSchemaChain(parent)

	return rp, nil
}

// configSchemaChain builds the base chain's ordered config schemas
// (immediate parent first), so the provider resolver can validate a
// provider config against the plugin's schema and each base's schema.
func configSchemaChain(parent *model.ResolvedPlugin) []model.SchemaNode {
	if parent == nil {
		return nil
	}
	var chain []model.SchemaNode
	if parent.ConfigSchema != nil {
		chain = append(chain, *parent.ConfigSchema)
	}
	chain = append(chain, parent.ConfigSchemaChain...)
	return chain
}

// mergeDependencies unions the chain's dependencies de-duplicated,
// preserving the order each first appears: the leaf's own dependencies
// first, then any new ones inherited from the base.
func mergeDependencies(d model.PluginDescriptor, parent *model.ResolvedPlugin) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, dep := range d.Dependencies {
		if _, ok := seen[dep.Name]; ok {
			continue
		}
		seen[dep.Name] = struct{}{}
		out = append(out, dep.Name)
	}
	if parent != nil {
		for _, dep := range parent.Dependencies {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			out = append(out, dep)
		}
	}
	return out
}

func commandsOf(parent *model.ResolvedPlugin) []model.CommandDef {
	if parent == nil {
		return nil
	}
	return parent.Commands
}
