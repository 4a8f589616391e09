// Package action implements the action router: dispatching a typed
// action call to the right plugin handler, walking extension and base
// chains, and performing the runtime template pass on handler params
// before every invocation.
package action

import (
	"context"

	"github.com/grove-run/grove/internal/groveerrors"
	"github.com/grove-run/grove/internal/model"
	"github.com/grove-run/grove/internal/plugin"
	"github.com/grove-run/grove/internal/runtimectx"
	"github.com/grove-run/grove/internal/template"
)

// TargetKind distinguishes what an action call's target names.
type TargetKind string

const (
	TargetModule   TargetKind = "module"
	TargetProvider TargetKind = "provider"
)

// Call names one action invocation: the action name, the kind and
// identity of its target, and for module-typed actions the module's
// declared type.
type Call struct {
	Action         string
	TargetKind     TargetKind
	TargetName     string
	ModuleType     string // required when TargetKind == TargetModule
	DefaultHandler model.Handler
}

// Router dispatches Calls against a resolved plugin registry.
type Router struct {
	registry *plugin.Registry
}

// New builds a Router over an already-Resolve()d plugin registry.
func New(registry *plugin.Registry) *Router {
	return &Router{registry: registry}
}

// Dispatch resolves and invokes the handler for call. When rc is
// non-nil the handler's params first go through the runtime template
// pass against rc's runtime.* namespace, and the handler receives rc
// on its context. rc may be nil for actions invoked during config load
// (e.g. configure), which have no dependency results yet.
func (r *Router) Dispatch(ctx context.Context, call Call, params any, rc *model.RuntimeContext, logger model.Logger) (any, error) {
	chain, found, err := r.resolve(call)
	if err != nil {
		return nil, err
	}
	if !found {
		if call.DefaultHandler != nil {
			chain = model.HandlerChain{Handler: call.DefaultHandler}
		} else {
			return nil, groveerrors.NewNoHandlerError(call.Action, call.TargetName)
		}
	}

	resolvedParams := params
	if rc != nil {
		tctx := template.Context(runtimectx.TemplateContext(*rc))
		resolved, rerr := template.Resolve(params, tctx, template.RuntimePass)
		if rerr != nil {
			unresolved := template.CollectUnresolved(params, tctx)
			if len(unresolved) == 0 {
				return nil, rerr
			}
			return nil, groveerrors.NewUnresolvedRuntimeReferenceError(call.TargetName, unresolved)
		}
		resolvedParams = resolved
	}

	hctx := model.HandlerContext{Ctx: ctx, Logger: logger, Runtime: rc, Super: chain.Super}
	out, err := chain.Handler(hctx, resolvedParams)
	if err != nil {
		return nil, groveerrors.NewRuntimeError(call.TargetName, err)
	}
	return out, nil
}

// resolve selects the handler chain for call: module-typed actions walk
// creator -> extenders (topology order, last wins) -> creator base
// chain; provider-typed actions use the provider's plugin then its base
// chain.
func (r *Router) resolve(call Call) (model.HandlerChain, bool, error) {
	switch call.TargetKind {
	case TargetModule:
		return r.resolveModuleHandler(call.ModuleType, call.Action)
	case TargetProvider:
		return r.resolveProviderHandler(call.TargetName, call.Action)
	default:
		return model.HandlerChain{}, false, groveerrors.NewInternalError("unknown action target kind "+string(call.TargetKind), nil)
	}
}

func (r *Router) resolveModuleHandler(moduleType, actionName string) (model.HandlerChain, bool, error) {
	creatorName, ok := r.registry.CreatorOf(moduleType)
	if !ok {
		return model.HandlerChain{}, false, nil
	}
	creatorRP, err := r.registry.Get(creatorName)
	if err != nil {
		return model.HandlerChain{}, false, err
	}

	if chain, ok := creatorRP.ModuleHandlers[moduleType][actionName]; ok {
		return chain, true, nil
	}

	var found model.HandlerChain
	var foundAny bool
	for _, name := range r.registry.InitOrder() {
		if name == creatorName || !r.registry.ExtendsType(name, moduleType) {
			continue
		}
		rp, err := r.registry.Get(name)
		if err != nil {
			continue
		}
		if chain, ok := rp.ModuleHandlers[moduleType][actionName]; ok {
			found = chain
			foundAny = true
		}
	}
	if foundAny {
		return found, true, nil
	}

	for _, baseName := range creatorRP.BaseChain {
		baseRP, err := r.registry.Get(baseName)
		if err != nil {
			continue
		}
		if chain, ok := baseRP.ModuleHandlers[moduleType][actionName]; ok {
			return chain, true, nil
		}
	}

	return model.HandlerChain{}, false, nil
}

func (r *Router) resolveProviderHandler(providerName, actionName string) (model.HandlerChain, bool, error) {
	rp, err := r.registry.Get(providerName)
	if err != nil {
		return model.HandlerChain{}, false, nil
	}
	chain, ok := rp.ProviderHandlers[actionName]
	return chain, ok, nil
}
