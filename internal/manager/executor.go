package manager

import (
	"context"

	"github.com/hmstead/conductor/pkg/models"
)

// Executor is the external callable bound to an agent. Implementations
// perform the actual work of a task and may be long-running; they must
// respect context cancellation.
type Executor interface {
	// Execute performs the task and returns its output.
	Execute(ctx context.Context, task *models.Task) (map[string]any, error)
}

// Validator is optionally implemented by executors that can check task
// input before execution.
type Validator interface {
	// Validate reports whether the input is acceptable to the executor.
	Validate(input map[string]any) bool
}

// CompletionHook is optionally implemented by executors that want to be
// notified when the manager records a completed task.
type CompletionHook interface {
	OnTaskComplete(taskID string, output map[string]any)
}

// FailureHook is optionally implemented by executors that want to be
// notified when the manager records a failed task.
type FailureHook interface {
	OnTaskFail(taskID string, err error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *models.Task) (map[string]any, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, task *models.Task) (map[string]any, error) {
	return f(ctx, task)
}
