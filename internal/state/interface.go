package state

import (
	"io"

	"github.com/hmstead/conductor/pkg/models"
)

// TaskStore handles task-related persistence operations.
type TaskStore interface {
	SaveTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	ListTasks(status models.TaskStatus) ([]models.Task, error)
}

// ExecutionStore handles workflow-execution persistence operations.
type ExecutionStore interface {
	SaveExecution(e *models.Execution) error
	GetExecution(id string) (*models.Execution, error)
	ListExecutions(workflowID string) ([]models.Execution, error)
}

// ApprovalStore handles human-approval persistence operations.
type ApprovalStore interface {
	SaveApproval(a *models.Approval) error
	GetApproval(id string) (*models.Approval, error)
	ListPendingApprovals() ([]models.Approval, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for state persistence.
// This interface allows the orchestrator and workflow engine to work with
// any state backend without depending on the concrete SQLite
// implementation. It composes focused sub-interfaces for modularity.
type Store interface {
	io.Closer
	Migrator
	TaskStore
	ExecutionStore
	ApprovalStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store          = (*DB)(nil)
	_ Migrator       = (*DB)(nil)
	_ TaskStore      = (*DB)(nil)
	_ ExecutionStore = (*DB)(nil)
	_ ApprovalStore  = (*DB)(nil)
)
