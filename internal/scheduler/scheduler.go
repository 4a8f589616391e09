// Package scheduler implements the task graph scheduler: a
// single-threaded coordinator that drives a DAG of heterogeneous work
// nodes through pending -> ready -> in-progress -> {complete, failed,
// skipped, cancelled}, under a bounded concurrency cap, memoizing by
// (type, name, version) and propagating dependency failures as skips.
// The ready set is re-evaluated as each node completes, so a node
// starts the moment its dependencies finish rather than waiting for a
// whole level.
package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/grove-run/grove/internal/groveerrors"
	"github.com/grove-run/grove/internal/logging"
	"github.com/grove-run/grove/internal/model"
)

// Scheduler executes a task graph with bounded concurrency and
// memoization.
type Scheduler struct {
	ConcurrencyLimit int
	Cache            *ResultCache
	Logger           *logging.Logger
}

// New builds a Scheduler. limit <= 0 means "no cap beyond the node
// count"; callers (internal/garden) own the cores-based default so this
// package never imports runtime.NumCPU itself.
func New(limit int, cache *ResultCache, logger *logging.Logger) *Scheduler {
	if cache == nil {
		cache = NewResultCache()
	}
	return &Scheduler{ConcurrencyLimit: limit, Cache: cache, Logger: logger}
}

type event struct {
	key    model.TaskKey
	result model.TaskResult
	err    error
}

// Run drives nodes to completion, returning every terminal node's
// result keyed by its TaskKey. A failed node's transitive dependents are
// marked TaskSkipped and never invoke their Process function.
// Cancelling ctx stops new dispatches and
// marks every node that has not yet started TaskCancelled once
// in-flight nodes finish.
func (s *Scheduler) Run(ctx context.Context, nodes []model.TaskNode) (map[model.TaskKey]model.TaskResult, error) {
	byKey := make(map[model.TaskKey]model.TaskNode, len(nodes))
	status := make(map[model.TaskKey]model.TaskStatus, len(nodes))
	for _, n := range nodes {
		byKey[n.Key()] = n
		status[n.Key()] = model.TaskPending
	}

	results := make(map[model.TaskKey]model.TaskResult, len(nodes))

	limit := s.ConcurrencyLimit
	if limit <= 0 {
		limit = len(nodes)
	}
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	completions := make(chan event, len(nodes))

	inFlight := 0
	cancelled := false

	for {
		if ctx.Err() != nil {
			cancelled = true
		}

		advancePending(byKey, status, results, cancelled)

		if cancelled {
			for key, st := range status {
				if st == model.TaskReady {
					status[key] = model.TaskCancelled
					results[key] = model.TaskResult{Err: groveerrors.NewCancelledError(byKey[key].Name)}
				}
			}
		}

		if allTerminal(status) && inFlight == 0 {
			break
		}

		dispatchedThisRound := false
		for _, key := range readyKeysSorted(byKey, status) {
			node := byKey[key]

			if !node.Force {
				if cached, ok := s.Cache.Get(cacheKeyFor(node)); ok {
					status[key] = model.TaskComplete
					results[key] = cached
					dispatchedThisRound = true
					continue
				}
			}

			select {
			case sem <- struct{}{}:
				status[key] = model.TaskInProgress
				inFlight++
				dispatchedThisRound = true
				depResults := snapshotDeps(node, results)
				go s.runNode(ctx, node, depResults, completions, sem)
			default:
			}
		}

		if inFlight == 0 {
			if dispatchedThisRound {
				continue
			}
			if allTerminal(status) {
				break
			}
			return nil, groveerrors.NewInternalError("scheduler deadlock: no ready nodes and none in-progress", nil)
		}

		ev := <-completions
		inFlight--
		if ev.err != nil {
			status[ev.key] = model.TaskFailed
			results[ev.key] = model.TaskResult{Err: ev.err}
		} else {
			status[ev.key] = model.TaskComplete
			results[ev.key] = ev.result
			node := byKey[ev.key]
			if !node.Force {
				s.Cache.Put(cacheKeyFor(node), ev.result)
			}
		}
	}

	return results, nil
}

func (s *Scheduler) runNode(ctx context.Context, node model.TaskNode, deps map[model.TaskKey]model.TaskResult, completions chan<- event, sem <-chan struct{}) {
	defer func() { <-sem }()

	nodeCtx := ctx
	if node.TimeoutSec > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, time.Duration(node.TimeoutSec)*time.Second)
		defer cancel()
	}

	result, err := node.Process(model.HandlerContext{Ctx: nodeCtx, Logger: s.Logger}, deps)
	if err == nil && nodeCtx.Err() == context.DeadlineExceeded {
		err = groveerrors.NewTimeoutError(node.Name)
	}
	completions <- event{key: node.Key(), result: result, err: err}
}

// advancePending repeatedly transitions Pending nodes whose dependencies
// are all terminal: to TaskSkipped if any dependency failed, was
// skipped, or was cancelled; to TaskReady otherwise; or directly to
// TaskCancelled if the run has been cancelled, so a cancelled run never
// marks newly-unblocked work ready.
func advancePending(byKey map[model.TaskKey]model.TaskNode, status map[model.TaskKey]model.TaskStatus, results map[model.TaskKey]model.TaskResult, cancelled bool) {
	changed := true
	for changed {
		changed = false
		for key, st := range status {
			if st != model.TaskPending {
				continue
			}
			node := byKey[key]

			allDone := true
			depFailed := false
			for _, dep := range node.Dependencies {
				ds, ok := status[dep]
				if !ok || !ds.Terminal() {
					allDone = false
					break
				}
				if ds == model.TaskFailed || ds == model.TaskSkipped || ds == model.TaskCancelled {
					depFailed = true
				}
			}
			if !allDone {
				continue
			}

			switch {
			case depFailed:
				status[key] = model.TaskSkipped
				results[key] = model.TaskResult{Err: groveerrors.New(groveerrors.KindDependency, node.Name, "dependencyFailed", nil)}
			case cancelled:
				status[key] = model.TaskCancelled
				results[key] = model.TaskResult{Err: groveerrors.NewCancelledError(node.Name)}
			default:
				status[key] = model.TaskReady
			}
			changed = true
		}
	}
}

func allTerminal(status map[model.TaskKey]model.TaskStatus) bool {
	for _, st := range status {
		if !st.Terminal() {
			return false
		}
	}
	return true
}

// readyKeysSorted orders ready nodes by (type-priority, name) for
// deterministic dispatch diagnostics; parallel dispatch still makes
// completion order nondeterministic.
func readyKeysSorted(byKey map[model.TaskKey]model.TaskNode, status map[model.TaskKey]model.TaskStatus) []model.TaskKey {
	var keys []model.TaskKey
	for key, st := range status {
		if st == model.TaskReady {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := model.TypePriority(byKey[keys[i]].Type), model.TypePriority(byKey[keys[j]].Type)
		if pi != pj {
			return pi < pj
		}
		return byKey[keys[i]].Name < byKey[keys[j]].Name
	})
	return keys
}

func snapshotDeps(node model.TaskNode, results map[model.TaskKey]model.TaskResult) map[model.TaskKey]model.TaskResult {
	out := make(map[model.TaskKey]model.TaskResult, len(node.Dependencies))
	for _, dep := range node.Dependencies {
		if r, ok := results[dep]; ok {
			out[dep] = r
		}
	}
	return out
}
