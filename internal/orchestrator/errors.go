package orchestrator

import "errors"

// Sentinel errors returned by task operations.
var (
	// ErrTaskNotFound indicates the task ID is unknown.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskNotCancellable indicates the task has left the pending state.
	ErrTaskNotCancellable = errors.New("task is not pending")
	// ErrUnknownDependency indicates a dependency references a task ID
	// that does not exist.
	ErrUnknownDependency = errors.New("dependency references unknown task")
	// ErrCycleDetected indicates a circular dependency was found in the
	// task group.
	ErrCycleDetected = errors.New("circular dependency detected")
	// ErrStopped indicates the orchestrator has been stopped.
	ErrStopped = errors.New("orchestrator stopped")
)
