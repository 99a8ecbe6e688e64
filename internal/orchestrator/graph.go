package orchestrator

import "fmt"

// depGraph tracks task dependencies and their inverse. For each task it
// holds the IDs it depends on, and a waiters index (dependency ID to the
// set of dependent task IDs) for O(1) notification on completion or
// failure. The graph must remain acyclic; AddTasks rejects cycles.
//
// depGraph is not goroutine-safe; the orchestrator serializes access.
type depGraph struct {
	// dependsOn maps task ID to the IDs it depends on.
	dependsOn map[string][]string
	// waiters maps task ID to the set of task IDs that depend on it.
	waiters map[string]map[string]struct{}
	// completed tracks which tasks have been marked complete.
	completed map[string]bool
}

// newDepGraph creates a new empty dependency graph.
func newDepGraph() *depGraph {
	return &depGraph{
		dependsOn: make(map[string][]string),
		waiters:   make(map[string]map[string]struct{}),
		completed: make(map[string]bool),
	}
}

// AddTasks registers a batch of tasks with their dependency lists. Every
// dependency must reference either a task already in the graph or another
// task in the batch. The combined graph is checked for cycles before any
// of the batch is admitted; on error the graph is unchanged.
func (g *depGraph) AddTasks(deps map[string][]string) error {
	for id, dependencies := range deps {
		for _, depID := range dependencies {
			if _, exists := g.dependsOn[depID]; exists {
				continue
			}
			if _, inBatch := deps[depID]; inBatch {
				continue
			}
			return fmt.Errorf("task %s: %w: %s", id, ErrUnknownDependency, depID)
		}
	}

	if g.wouldCycle(deps) {
		return ErrCycleDetected
	}

	for id, dependencies := range deps {
		g.dependsOn[id] = dependencies
		for _, depID := range dependencies {
			if g.waiters[depID] == nil {
				g.waiters[depID] = make(map[string]struct{})
			}
			g.waiters[depID][id] = struct{}{}
		}
	}
	return nil
}

// wouldCycle reports whether adding the batch would introduce a circular
// dependency. Uses depth-first search with coloring to detect back edges.
func (g *depGraph) wouldCycle(batch map[string][]string) bool {
	edges := func(id string) []string {
		if deps, ok := batch[id]; ok {
			return deps
		}
		return g.dependsOn[id]
	}

	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int)

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range edges(id) {
			switch colors[depID] {
			case 1:
				// Found a back edge - cycle detected.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for id := range batch {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// MarkComplete records a task as completed, unblocking its waiters.
func (g *depGraph) MarkComplete(id string) {
	g.completed[id] = true
}

// DepsComplete reports whether every dependency of the task has completed.
// Tasks with no dependencies are always ready.
func (g *depGraph) DepsComplete(id string) bool {
	for _, depID := range g.dependsOn[id] {
		if !g.completed[depID] {
			return false
		}
	}
	return true
}

// Dependencies returns the IDs the task depends on.
func (g *depGraph) Dependencies(id string) []string {
	return g.dependsOn[id]
}

// Waiters returns the IDs of tasks that depend on the given task.
func (g *depGraph) Waiters(id string) []string {
	var ids []string
	for w := range g.waiters[id] {
		ids = append(ids, w)
	}
	return ids
}

// Levels computes a topological level for every task: 0 for tasks with no
// dependencies, otherwise 1 + the maximum level of any dependency. The
// result is used for visualization and diagnostics, not scheduling.
func (g *depGraph) Levels() map[string]int {
	memo := make(map[string]int, len(g.dependsOn))

	var level func(id string) int
	level = func(id string) int {
		if l, ok := memo[id]; ok {
			return l
		}
		max := -1
		for _, depID := range g.dependsOn[id] {
			if l := level(depID); l > max {
				max = l
			}
		}
		memo[id] = max + 1
		return max + 1
	}

	for id := range g.dependsOn {
		level(id)
	}
	return memo
}
