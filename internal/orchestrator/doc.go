// Package orchestrator implements the task scheduling core: a priority
// queue of tasks, a dependency graph gating execution, retry with backoff,
// timeout enforcement, and event emission for observers.
//
// Tasks are created through CreateTask or CreateTaskGroup, matched to
// agents via the agent manager, and driven to a terminal state by the
// scheduling loop. Completion and failure propagate through the dependency
// graph: completions unblock waiters, terminal failures cascade to
// dependents.
package orchestrator
