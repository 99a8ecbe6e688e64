package orchestrator

import "time"

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventTaskCreated indicates a task was created and queued.
	EventTaskCreated EventType = "task:created"
	// EventTaskStarted indicates a task was assigned and began execution.
	EventTaskStarted EventType = "task:started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task:completed"
	// EventTaskFailed indicates a task failed terminally.
	EventTaskFailed EventType = "task:failed"
	// EventTaskRetrying indicates a task was returned to the queue for
	// another attempt.
	EventTaskRetrying EventType = "task:retrying"
	// EventTaskCancelled indicates a pending task was cancelled.
	EventTaskCancelled EventType = "task:cancelled"
	// EventDependenciesMet indicates all dependencies of a waiting task
	// have completed.
	EventDependenciesMet EventType = "task:dependenciesMet"

	// EventExecutionStarted indicates a workflow execution began.
	EventExecutionStarted EventType = "execution:started"
	// EventExecutionCompleted indicates a workflow execution finished.
	EventExecutionCompleted EventType = "execution:completed"
	// EventExecutionFailed indicates a workflow execution failed.
	EventExecutionFailed EventType = "execution:failed"
	// EventExecutionPaused indicates a workflow execution was paused.
	EventExecutionPaused EventType = "execution:paused"
	// EventExecutionResumed indicates a workflow execution was resumed.
	EventExecutionResumed EventType = "execution:resumed"
	// EventExecutionCancelled indicates a workflow execution was cancelled.
	EventExecutionCancelled EventType = "execution:cancelled"

	// EventApprovalRequired indicates a human approval is awaiting a
	// decision.
	EventApprovalRequired EventType = "humanApproval:required"
	// EventApprovalProcessed indicates a human approval was resolved.
	EventApprovalProcessed EventType = "humanApproval:processed"
)

// Event represents an event emitted by the orchestrator or the workflow
// engine. Consumers (logging, metrics, frontends) receive these through
// an Emitter.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// TaskName is the name of the related task, if applicable.
	TaskName string
	// AgentID is the ID of the related agent, if applicable.
	AgentID string
	// ExecutionID is the ID of the related workflow execution, if applicable.
	ExecutionID string
	// NodeID is the ID of the related workflow node, if applicable.
	NodeID string
	// ApprovalID is the ID of the related human approval, if applicable.
	ApprovalID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
