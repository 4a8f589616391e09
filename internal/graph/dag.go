// Package graph is the single directed-acyclic-graph primitive shared
// by every relation the orchestrator tracks: plugin base chains, plugin
// and provider dependencies, and the module/service/task/test config
// graph. One implementation instead of a hand-rolled copy per relation.
package graph

import (
	"sort"

	"github.com/grove-run/grove/internal/groveerrors"
)

// DAG is a directed graph over string-identified nodes. Zero value is not
// usable; construct with New.
type DAG struct {
	nodes    map[string]struct{}
	outgoing map[string]map[string]struct{} // node -> nodes it depends on
	incoming map[string]map[string]struct{} // node -> nodes that depend on it
	order    []string                       // insertion order, for stable iteration when ties don't matter
}

// New returns an empty DAG.
func New() *DAG {
	return &DAG{
		nodes:    make(map[string]struct{}),
		outgoing: make(map[string]map[string]struct{}),
		incoming: make(map[string]map[string]struct{}),
	}
}

// AddNode ensures name exists in the graph, a no-op if already present.
func (g *DAG) AddNode(name string) {
	if _, ok := g.nodes[name]; ok {
		return
	}
	g.nodes[name] = struct{}{}
	g.outgoing[name] = make(map[string]struct{})
	g.incoming[name] = make(map[string]struct{})
	g.order = append(g.order, name)
}

// AddEdge records that `from` depends on `to`; both are added if absent.
func (g *DAG) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	g.outgoing[from][to] = struct{}{}
	g.incoming[to][from] = struct{}{}
}

// HasNode reports whether name is present.
func (g *DAG) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Dependencies returns the sorted set of nodes that `name` depends on.
func (g *DAG) Dependencies(name string) []string {
	return sortedKeys(g.outgoing[name])
}

// Dependents returns the sorted set of nodes that depend on `name`.
func (g *DAG) Dependents(name string) []string {
	return sortedKeys(g.incoming[name])
}

// Nodes returns all node names, sorted.
func (g *DAG) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TopologicalSort returns nodes ordered so every node's dependencies
// precede it (Kahn's algorithm), breaking ties by sorting the ready
// queue at every step so the result is fully deterministic. Returns a
// *groveerrors.GroveError of KindDependency naming the cycle when the
// graph is not acyclic.
func (g *DAG) TopologicalSort() ([]string, error) {
	remaining := make(map[string]int, len(g.nodes))
	for n := range g.nodes {
		remaining[n] = len(g.outgoing[n])
	}

	queue := make([]string, 0, len(g.nodes))
	for n, deps := range remaining {
		if deps == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, dependent := range g.Dependents(current) {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
		sort.Strings(queue)
	}

	if len(result) != len(g.nodes) {
		cycle := g.DetectCycle()
		return nil, groveerrors.NewGraphCycleError("", cycle)
	}
	return result, nil
}

// Levels groups a topological order into dependency levels: level 0 has
// no dependencies, level k's nodes depend only on nodes in levels < k.
// Callers dispatch each level's nodes concurrently, level by level.
func (g *DAG) Levels() ([][]string, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	levelOf := make(map[string]int, len(order))
	maxLevel := 0
	for _, n := range order {
		lvl := 0
		for dep := range g.outgoing[n] {
			if levelOf[dep]+1 > lvl {
				lvl = levelOf[dep] + 1
			}
		}
		levelOf[n] = lvl
		if lvl > maxLevel {
			maxLevel = lvl
		}
	}

	levels := make([][]string, maxLevel+1)
	for _, n := range order {
		levels[levelOf[n]] = append(levels[levelOf[n]], n)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// DetectCycle returns one full cycle path if the graph is not acyclic,
// or nil otherwise. Deterministic: nodes are visited in sorted order.
func (g *DAG) DetectCycle() []string {
	visited := make(map[string]bool, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))
	var path []string
	var cycle []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, dep := range g.Dependencies(node) {
			if !visited[dep] {
				if dfs(dep) {
					return true
				}
			} else if onStack[dep] {
				idx := len(path) - 1
				for idx >= 0 && path[idx] != dep {
					idx--
				}
				if idx >= 0 {
					cycle = append([]string{}, path[idx:]...)
					cycle = append(cycle, dep)
				}
				return true
			}
		}

		onStack[node] = false
		path = path[:len(path)-1]
		return false
	}

	for _, node := range g.Nodes() {
		if !visited[node] {
			if dfs(node) {
				break
			}
		}
	}
	return cycle
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
