package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is queued and has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is being executed by an agent.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed after exhausting retries.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled before execution.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskPriority represents the scheduling priority of a task.
type TaskPriority string

const (
	// PriorityCritical is scheduled before all other priorities.
	PriorityCritical TaskPriority = "critical"
	// PriorityHigh is scheduled before normal and low priority tasks.
	PriorityHigh TaskPriority = "high"
	// PriorityNormal is the default priority.
	PriorityNormal TaskPriority = "normal"
	// PriorityLow is scheduled after all other priorities.
	PriorityLow TaskPriority = "low"
)

// Valid returns true if the priority is a known value.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	default:
		return false
	}
}

// Weight returns the numeric rank of the priority. Higher values are
// scheduled first.
func (p TaskPriority) Weight() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// Task represents a unit of work dispatched to an agent.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Name is the short description of the task.
	Name string `json:"name"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// RequiredCapabilities lists capability names an agent must advertise
	// to be eligible for this task.
	RequiredCapabilities []string `json:"required_capabilities"`
	// Input is the payload handed to the agent's executor.
	Input map[string]any `json:"input,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Priority determines queue ordering.
	Priority TaskPriority `json:"priority"`
	// DependsOn lists task IDs that must complete before this task runs.
	DependsOn []string `json:"depends_on,omitempty"`
	// RetryCount is the number of times this task has been retried.
	RetryCount int `json:"retry_count"`
	// MaxRetries is the retry budget before the task fails terminally.
	MaxRetries int `json:"max_retries"`
	// Timeout is the per-task execution deadline. Zero means the
	// orchestrator default applies.
	Timeout time.Duration `json:"timeout,omitempty"`
	// AssignedAgentID is the ID of the agent executing this task.
	AssignedAgentID string `json:"assigned_agent_id,omitempty"`
	// Output holds the executor result for completed tasks.
	Output map[string]any `json:"output,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the task entered running, if it has.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskConfig describes a task to be created by the orchestrator.
type TaskConfig struct {
	// Name is the short description of the task.
	Name string `json:"name"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// RequiredCapabilities lists capability names required of the agent.
	RequiredCapabilities []string `json:"required_capabilities"`
	// Input is the payload handed to the agent's executor.
	Input map[string]any `json:"input,omitempty"`
	// Priority determines queue ordering. Defaults to normal.
	Priority TaskPriority `json:"priority,omitempty"`
	// DependsOn lists task IDs that must complete before this task runs.
	DependsOn []string `json:"depends_on,omitempty"`
	// MaxRetries is the retry budget. Zero means no retries.
	MaxRetries int `json:"max_retries,omitempty"`
	// Timeout overrides the orchestrator's default execution deadline.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// TaskStats summarizes task counts by status.
type TaskStats struct {
	// Total is the number of tasks known to the orchestrator.
	Total int `json:"total"`
	// Pending is the number of queued tasks.
	Pending int `json:"pending"`
	// Running is the number of tasks currently executing.
	Running int `json:"running"`
	// Completed is the number of successfully finished tasks.
	Completed int `json:"completed"`
	// Failed is the number of terminally failed tasks.
	Failed int `json:"failed"`
	// Cancelled is the number of cancelled tasks.
	Cancelled int `json:"cancelled"`
}
