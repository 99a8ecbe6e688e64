package models

import "time"

// NodeType represents the kind of a workflow node.
type NodeType string

const (
	// NodeTypeTask creates a task through the orchestrator and waits for it.
	NodeTypeTask NodeType = "task"
	// NodeTypeCondition branches on a boolean expression.
	NodeTypeCondition NodeType = "condition"
	// NodeTypeSwitch branches on the stringified value of an expression.
	NodeTypeSwitch NodeType = "switch"
	// NodeTypeLoop repeats its body by count, item list, or predicate.
	NodeTypeLoop NodeType = "loop"
	// NodeTypeParallel fans out into concurrent branches and joins.
	NodeTypeParallel NodeType = "parallel"
	// NodeTypeHuman suspends the execution pending human approval.
	NodeTypeHuman NodeType = "human"
)

// Valid returns true if the node type is a known value.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeTask, NodeTypeCondition, NodeTypeSwitch,
		NodeTypeLoop, NodeTypeParallel, NodeTypeHuman:
		return true
	default:
		return false
	}
}

// TaskNode configures a task-type node.
type TaskNode struct {
	// Name is the task name. Defaults to the node name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// RequiredCapabilities lists capability names required of the agent.
	RequiredCapabilities []string `json:"required_capabilities" yaml:"required_capabilities"`
	// Input is the static task input payload.
	Input map[string]any `json:"input,omitempty" yaml:"input,omitempty"`
	// InputMapping maps task input fields to execution variable names.
	InputMapping map[string]string `json:"input_mapping,omitempty" yaml:"input_mapping,omitempty"`
	// Priority determines queue ordering for the created task.
	Priority TaskPriority `json:"priority,omitempty" yaml:"priority,omitempty"`
	// MaxRetries is the retry budget for the created task.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	// Timeout is the per-task execution deadline.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ConditionNode configures a condition-type node.
type ConditionNode struct {
	// Expression is a boolean expression evaluated against the execution
	// variables.
	Expression string `json:"expression" yaml:"expression"`
}

// SwitchNode configures a switch-type node.
type SwitchNode struct {
	// Expression is evaluated and its stringified value matched against
	// Branches.
	Expression string `json:"expression" yaml:"expression"`
	// Branches maps stringified expression values to node IDs.
	Branches map[string]string `json:"branches" yaml:"branches"`
	// Default is the node ID used when no branch matches.
	Default string `json:"default,omitempty" yaml:"default,omitempty"`
}

// LoopNode configures a loop-type node. Exactly one of Iterations, Items,
// While, or Until should be set.
type LoopNode struct {
	// Iterations runs the body a fixed number of times.
	Iterations int `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	// Items runs the body once per item, binding each to the loop variable.
	Items []any `json:"items,omitempty" yaml:"items,omitempty"`
	// While repeats the body while the expression is true.
	While string `json:"while,omitempty" yaml:"while,omitempty"`
	// Until repeats the body until the expression becomes true.
	Until string `json:"until,omitempty" yaml:"until,omitempty"`
	// Variable is the name bound to the loop index or current item.
	// Defaults to "item".
	Variable string `json:"variable,omitempty" yaml:"variable,omitempty"`
	// MaxIterations bounds predicate loops. Defaults to 1000.
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
}

// HumanNode configures a human-approval node.
type HumanNode struct {
	// Prompt describes what is being approved.
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	// RequestedBy identifies the requester recorded on the approval.
	RequestedBy string `json:"requested_by,omitempty" yaml:"requested_by,omitempty"`
	// Approvers optionally lists who may resolve the approval.
	Approvers []string `json:"approvers,omitempty" yaml:"approvers,omitempty"`
}

// Node is one step in a workflow graph. The configuration field matching
// Type is consulted; the others are ignored.
type Node struct {
	// ID is the unique identifier of the node within its workflow.
	ID string `json:"id" yaml:"id"`
	// Name is the human-readable name of the node.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Type is the kind of node.
	Type NodeType `json:"type" yaml:"type"`
	// Next lists successor node IDs. Interpretation depends on Type:
	// task uses Next[0]; condition uses Next[0] (true) and Next[1] (false);
	// loop uses Next[0] (body) and Next[1] (after loop); parallel treats all
	// but the last entry as branch starts and the last as the join target;
	// human uses Next[0] (approved) and Next[1] (rejected).
	Next []string `json:"next,omitempty" yaml:"next,omitempty"`
	// Task configures task-type nodes.
	Task *TaskNode `json:"task,omitempty" yaml:"task,omitempty"`
	// Condition configures condition-type nodes.
	Condition *ConditionNode `json:"condition,omitempty" yaml:"condition,omitempty"`
	// Switch configures switch-type nodes.
	Switch *SwitchNode `json:"switch,omitempty" yaml:"switch,omitempty"`
	// Loop configures loop-type nodes.
	Loop *LoopNode `json:"loop,omitempty" yaml:"loop,omitempty"`
	// Human configures human-type nodes.
	Human *HumanNode `json:"human,omitempty" yaml:"human,omitempty"`
}

// Workflow is a declarative graph of typed nodes.
type Workflow struct {
	// ID is the unique identifier for this workflow.
	ID string `json:"id" yaml:"id"`
	// Name is the human-readable name of the workflow.
	Name string `json:"name" yaml:"name"`
	// Description explains what the workflow does.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Nodes is the node set of the graph.
	Nodes []Node `json:"nodes" yaml:"nodes"`
	// StartNodeID is where execution begins.
	StartNodeID string `json:"start_node_id" yaml:"start_node_id"`
	// Variables seeds the execution variable bag.
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// NodeByID returns the node with the given ID, or nil if absent.
func (w *Workflow) NodeByID(id string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

// ExecutionStatus represents the state of a workflow execution.
type ExecutionStatus string

const (
	// ExecutionPending indicates the execution has not started.
	ExecutionPending ExecutionStatus = "pending"
	// ExecutionRunning indicates the execution is traversing the graph.
	ExecutionRunning ExecutionStatus = "running"
	// ExecutionCompleted indicates the execution finished successfully.
	ExecutionCompleted ExecutionStatus = "completed"
	// ExecutionFailed indicates the execution failed or was cancelled.
	ExecutionFailed ExecutionStatus = "failed"
	// ExecutionPaused indicates the execution is paused between nodes.
	ExecutionPaused ExecutionStatus = "paused"
	// ExecutionWaitingApproval indicates the execution is suspended at a
	// human node.
	ExecutionWaitingApproval ExecutionStatus = "waiting_approval"
)

// Valid returns true if the status is a known value.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionPending, ExecutionRunning, ExecutionCompleted,
		ExecutionFailed, ExecutionPaused, ExecutionWaitingApproval:
		return true
	default:
		return false
	}
}

// Execution is one run instance of a workflow.
type Execution struct {
	// ID is the unique identifier for this execution.
	ID string `json:"id"`
	// WorkflowID identifies the workflow being executed.
	WorkflowID string `json:"workflow_id"`
	// Status is the current state of the execution.
	Status ExecutionStatus `json:"status"`
	// CurrentNodeID is the node being (or about to be) executed.
	CurrentNodeID string `json:"current_node_id,omitempty"`
	// Variables is the mutable variable bag for this run.
	Variables map[string]any `json:"variables"`
	// NodeResults records the result of each executed node by node ID.
	NodeResults map[string]any `json:"node_results"`
	// Error contains the failure reason for failed executions.
	Error string `json:"error,omitempty"`
	// StartedAt is when the execution began.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the execution reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ApprovalStatus represents the state of a human approval.
type ApprovalStatus string

const (
	// ApprovalPending indicates the approval awaits a decision.
	ApprovalPending ApprovalStatus = "pending"
	// ApprovalApproved indicates the approval was granted.
	ApprovalApproved ApprovalStatus = "approved"
	// ApprovalRejected indicates the approval was denied.
	ApprovalRejected ApprovalStatus = "rejected"
)

// Valid returns true if the status is a known value.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	default:
		return false
	}
}

// Approval is a pending or resolved human-approval record.
type Approval struct {
	// ID is the unique identifier for this approval.
	ID string `json:"id"`
	// ExecutionID identifies the suspended execution.
	ExecutionID string `json:"execution_id"`
	// NodeID identifies the human node that created this approval.
	NodeID string `json:"node_id"`
	// Status is the current state of the approval.
	Status ApprovalStatus `json:"status"`
	// Prompt describes what is being approved.
	Prompt string `json:"prompt,omitempty"`
	// RequestedBy identifies the requester.
	RequestedBy string `json:"requested_by,omitempty"`
	// ApprovedBy identifies who resolved the approval.
	ApprovedBy string `json:"approved_by,omitempty"`
	// Comment carries the approver's note.
	Comment string `json:"comment,omitempty"`
	// CreatedAt is when the approval was requested.
	CreatedAt time.Time `json:"created_at"`
	// ResolvedAt is when the approval was resolved, if it has been.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
