package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmstead/conductor/pkg/models"
)

func TestApprovalResolve(t *testing.T) {
	m := NewApprovalManager(nil)
	a := m.Request("exec-1", "gate", models.HumanNode{Prompt: "deploy?"})
	require.Equal(t, models.ApprovalPending, a.Status)
	require.Len(t, m.Pending(), 1)

	go func() {
		// Resolve after the waiter is parked.
		time.Sleep(10 * time.Millisecond)
		m.Resolve(a.ID, Decision{Approved: true, ApprovedBy: "oncall", Comment: "lgtm"})
	}()

	d, err := m.WaitForDecision(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.Equal(t, "oncall", d.ApprovedBy)

	got := m.Get(a.ID)
	require.NotNil(t, got)
	assert.Equal(t, models.ApprovalApproved, got.Status)
	assert.Equal(t, "lgtm", got.Comment)
	assert.NotNil(t, got.ResolvedAt)
	assert.Empty(t, m.Pending())
}

func TestApprovalResolveErrors(t *testing.T) {
	m := NewApprovalManager(nil)
	a := m.Request("exec-1", "gate", models.HumanNode{Approvers: []string{"lead"}})

	assert.ErrorIs(t, m.Resolve("missing", Decision{}), ErrApprovalNotFound)
	assert.ErrorIs(t, m.Resolve(a.ID, Decision{ApprovedBy: "intern"}), ErrNotAuthorized)

	require.NoError(t, m.Resolve(a.ID, Decision{Approved: false, ApprovedBy: "lead"}))
	assert.ErrorIs(t, m.Resolve(a.ID, Decision{ApprovedBy: "lead"}), ErrApprovalResolved)

	got := m.Get(a.ID)
	require.NotNil(t, got)
	assert.Equal(t, models.ApprovalRejected, got.Status)
}

func TestApprovalWaitCancelled(t *testing.T) {
	m := NewApprovalManager(nil)
	a := m.Request("exec-1", "gate", models.HumanNode{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.WaitForDecision(ctx, a.ID)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = m.WaitForDecision(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrApprovalNotFound)
}
