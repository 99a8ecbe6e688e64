package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hmstead/conductor/pkg/models"
)

// SaveTask inserts or updates a task record.
func (db *DB) SaveTask(t *models.Task) error {
	input, err := encodeJSON(t.Input)
	if err != nil {
		return fmt.Errorf("encode task input: %w", err)
	}
	output, err := encodeJSON(t.Output)
	if err != nil {
		return fmt.Errorf("encode task output: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO tasks (id, name, description, status, priority,
			required_capabilities, depends_on, input, output, error,
			retry_count, max_retries, assigned_agent_id,
			created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			output = excluded.output,
			error = excluded.error,
			retry_count = excluded.retry_count,
			assigned_agent_id = excluded.assigned_agent_id,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, t.ID, t.Name, t.Description, string(t.Status), string(t.Priority),
		strings.Join(t.RequiredCapabilities, ","), strings.Join(t.DependsOn, ","),
		input, output, t.Error,
		t.RetryCount, t.MaxRetries, t.AssignedAgentID,
		formatTime(t.CreatedAt), formatNullableTime(t.StartedAt), formatNullableTime(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil if not found.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.conn.QueryRow(`
		SELECT id, name, description, status, priority,
			required_capabilities, depends_on, input, output, error,
			retry_count, max_retries, assigned_agent_id,
			created_at, started_at, completed_at
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks with the given status, or all tasks if status
// is empty.
func (db *DB) ListTasks(status models.TaskStatus) ([]models.Task, error) {
	query := `
		SELECT id, name, description, status, priority,
			required_capabilities, depends_on, input, output, error,
			retry_count, max_retries, assigned_agent_id,
			created_at, started_at, completed_at
		FROM tasks`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	var t models.Task
	var caps, deps, input, output string
	var createdAt string
	var startedAt, completedAt sql.NullString

	err := s.Scan(&t.ID, &t.Name, &t.Description, &t.Status, &t.Priority,
		&caps, &deps, &input, &output, &t.Error,
		&t.RetryCount, &t.MaxRetries, &t.AssignedAgentID,
		&createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.RequiredCapabilities = splitList(caps)
	t.DependsOn = splitList(deps)
	if err := decodeJSON(input, &t.Input); err != nil {
		return nil, err
	}
	if err := decodeJSON(output, &t.Output); err != nil {
		return nil, err
	}
	t.CreatedAt, _ = parseTime(createdAt)
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

// SaveExecution inserts or updates a workflow execution record.
func (db *DB) SaveExecution(e *models.Execution) error {
	vars, err := encodeJSON(e.Variables)
	if err != nil {
		return fmt.Errorf("encode execution variables: %w", err)
	}
	results, err := encodeJSON(e.NodeResults)
	if err != nil {
		return fmt.Errorf("encode node results: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO executions (id, workflow_id, status, current_node_id,
			variables, node_results, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			current_node_id = excluded.current_node_id,
			variables = excluded.variables,
			node_results = excluded.node_results,
			error = excluded.error,
			completed_at = excluded.completed_at
	`, e.ID, e.WorkflowID, string(e.Status), e.CurrentNodeID,
		vars, results, e.Error, formatTime(e.StartedAt), formatNullableTime(e.CompletedAt))
	if err != nil {
		return fmt.Errorf("save execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID. Returns nil if not found.
func (db *DB) GetExecution(id string) (*models.Execution, error) {
	row := db.conn.QueryRow(`
		SELECT id, workflow_id, status, current_node_id,
			variables, node_results, error, started_at, completed_at
		FROM executions WHERE id = ?
	`, id)

	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

// ListExecutions returns executions for a workflow, or all executions if
// workflowID is empty.
func (db *DB) ListExecutions(workflowID string) ([]models.Execution, error) {
	query := `
		SELECT id, workflow_id, status, current_node_id,
			variables, node_results, error, started_at, completed_at
		FROM executions`
	var args []any
	if workflowID != "" {
		query += " WHERE workflow_id = ?"
		args = append(args, workflowID)
	}
	query += " ORDER BY started_at"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []models.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("list executions: %w", err)
		}
		execs = append(execs, *e)
	}
	return execs, rows.Err()
}

func scanExecution(s scanner) (*models.Execution, error) {
	var e models.Execution
	var vars, results string
	var startedAt string
	var completedAt sql.NullString

	err := s.Scan(&e.ID, &e.WorkflowID, &e.Status, &e.CurrentNodeID,
		&vars, &results, &e.Error, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if err := decodeJSON(vars, &e.Variables); err != nil {
		return nil, err
	}
	if err := decodeJSON(results, &e.NodeResults); err != nil {
		return nil, err
	}
	e.StartedAt, _ = parseTime(startedAt)
	e.CompletedAt = parseNullableTime(completedAt)
	return &e, nil
}

// SaveApproval inserts or updates a human-approval record.
func (db *DB) SaveApproval(a *models.Approval) error {
	_, err := db.conn.Exec(`
		INSERT INTO approvals (id, execution_id, node_id, status, prompt,
			requested_by, approved_by, comment, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			approved_by = excluded.approved_by,
			comment = excluded.comment,
			resolved_at = excluded.resolved_at
	`, a.ID, a.ExecutionID, a.NodeID, string(a.Status), a.Prompt,
		a.RequestedBy, a.ApprovedBy, a.Comment,
		formatTime(a.CreatedAt), formatNullableTime(a.ResolvedAt))
	if err != nil {
		return fmt.Errorf("save approval: %w", err)
	}
	return nil
}

// GetApproval retrieves an approval by ID. Returns nil if not found.
func (db *DB) GetApproval(id string) (*models.Approval, error) {
	row := db.conn.QueryRow(`
		SELECT id, execution_id, node_id, status, prompt,
			requested_by, approved_by, comment, created_at, resolved_at
		FROM approvals WHERE id = ?
	`, id)

	a, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return a, nil
}

// ListPendingApprovals returns all approvals awaiting a decision.
func (db *DB) ListPendingApprovals() ([]models.Approval, error) {
	rows, err := db.conn.Query(`
		SELECT id, execution_id, node_id, status, prompt,
			requested_by, approved_by, comment, created_at, resolved_at
		FROM approvals WHERE status = ? ORDER BY created_at
	`, string(models.ApprovalPending))
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var approvals []models.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("list pending approvals: %w", err)
		}
		approvals = append(approvals, *a)
	}
	return approvals, rows.Err()
}

func scanApproval(s scanner) (*models.Approval, error) {
	var a models.Approval
	var createdAt string
	var resolvedAt sql.NullString

	err := s.Scan(&a.ID, &a.ExecutionID, &a.NodeID, &a.Status, &a.Prompt,
		&a.RequestedBy, &a.ApprovedBy, &a.Comment, &createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	a.CreatedAt, _ = parseTime(createdAt)
	a.ResolvedAt = parseNullableTime(resolvedAt)
	return &a, nil
}

// encodeJSON marshals a map for storage, using the empty string for nil.
func encodeJSON(m map[string]any) (string, error) {
	if m == nil {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeJSON unmarshals a stored map, leaving the target nil for the
// empty string.
func decodeJSON(s string, target *map[string]any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), target)
}

// splitList splits a comma-joined list, returning nil for empty input.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
