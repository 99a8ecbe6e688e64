package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hmstead/conductor/internal/state"
	"github.com/hmstead/conductor/pkg/models"
)

// Approval errors.
var (
	// ErrApprovalNotFound indicates the approval ID is unknown.
	ErrApprovalNotFound = errors.New("approval not found")
	// ErrApprovalResolved indicates the approval was already decided.
	ErrApprovalResolved = errors.New("approval already resolved")
	// ErrNotAuthorized indicates the resolver is not in the approver list.
	ErrNotAuthorized = errors.New("not authorized to resolve approval")
)

// Decision is a human's verdict on a pending approval.
type Decision struct {
	// Approved is true when the gate should open.
	Approved bool
	// ApprovedBy identifies who decided.
	ApprovedBy string
	// Comment carries the approver's note.
	Comment string
}

// ApprovalManager tracks human-approval gates for suspended executions.
// Each pending approval has a response channel; the engine blocks on it
// and an external caller resolves it through Resolve.
type ApprovalManager struct {
	approvals map[string]*models.Approval
	approvers map[string][]string
	pending   map[string]chan Decision
	store     state.ApprovalStore
	mu        sync.RWMutex
}

// NewApprovalManager creates an approval manager. The store is optional;
// when set, approval records are persisted on creation and resolution.
func NewApprovalManager(store state.ApprovalStore) *ApprovalManager {
	return &ApprovalManager{
		approvals: make(map[string]*models.Approval),
		approvers: make(map[string][]string),
		pending:   make(map[string]chan Decision),
		store:     store,
	}
}

// Request registers a new pending approval for a human node and returns
// its record.
func (m *ApprovalManager) Request(executionID, nodeID string, spec models.HumanNode) *models.Approval {
	approval := &models.Approval{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		NodeID:      nodeID,
		Status:      models.ApprovalPending,
		Prompt:      spec.Prompt,
		RequestedBy: spec.RequestedBy,
		CreatedAt:   time.Now(),
	}

	m.mu.Lock()
	m.approvals[approval.ID] = approval
	m.approvers[approval.ID] = spec.Approvers
	m.pending[approval.ID] = make(chan Decision, 1)
	m.mu.Unlock()

	m.persist(approval)
	return approval
}

// WaitForDecision blocks until the approval is resolved or the context
// is cancelled.
func (m *ApprovalManager) WaitForDecision(ctx context.Context, approvalID string) (Decision, error) {
	m.mu.RLock()
	ch, ok := m.pending[approvalID]
	m.mu.RUnlock()
	if !ok {
		return Decision{}, ErrApprovalNotFound
	}

	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

// Resolve records a decision for a pending approval and signals the
// waiting execution. When the approval declares an approver list, only
// listed identities may resolve it.
func (m *ApprovalManager) Resolve(approvalID string, d Decision) error {
	m.mu.Lock()
	approval, ok := m.approvals[approvalID]
	if !ok {
		m.mu.Unlock()
		return ErrApprovalNotFound
	}
	if approval.Status != models.ApprovalPending {
		m.mu.Unlock()
		return ErrApprovalResolved
	}
	if allowed := m.approvers[approvalID]; len(allowed) > 0 && !contains(allowed, d.ApprovedBy) {
		m.mu.Unlock()
		return ErrNotAuthorized
	}

	now := time.Now()
	if d.Approved {
		approval.Status = models.ApprovalApproved
	} else {
		approval.Status = models.ApprovalRejected
	}
	approval.ApprovedBy = d.ApprovedBy
	approval.Comment = d.Comment
	approval.ResolvedAt = &now

	ch := m.pending[approvalID]
	delete(m.pending, approvalID)
	delete(m.approvers, approvalID)
	m.mu.Unlock()

	m.persist(approval)
	if ch != nil {
		ch <- d
	}
	return nil
}

// Get returns the approval with the given ID, or nil if unknown.
func (m *ApprovalManager) Get(approvalID string) *models.Approval {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.approvals[approvalID]; ok {
		cp := *a
		return &cp
	}
	return nil
}

// Pending returns all approvals awaiting a decision.
func (m *ApprovalManager) Pending() []models.Approval {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Approval
	for _, a := range m.approvals {
		if a.Status == models.ApprovalPending {
			out = append(out, *a)
		}
	}
	return out
}

func (m *ApprovalManager) persist(a *models.Approval) {
	if m.store == nil {
		return
	}
	// Persistence is best-effort; the in-memory record is authoritative.
	_ = m.store.SaveApproval(a)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
