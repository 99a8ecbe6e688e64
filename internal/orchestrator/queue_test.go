package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmstead/conductor/pkg/models"
)

func task(id string, priority models.TaskPriority) *models.Task {
	return &models.Task{ID: id, Name: id, Priority: priority}
}

func popAll(q *taskQueue) []string {
	var ids []string
	for q.Len() > 0 {
		ids = append(ids, q.Pop().ID)
	}
	return ids
}

func TestQueuePriorityOrder(t *testing.T) {
	q := newTaskQueue()
	q.Push(task("low", models.PriorityLow))
	q.Push(task("normal", models.PriorityNormal))
	q.Push(task("critical", models.PriorityCritical))
	q.Push(task("high", models.PriorityHigh))

	assert.Equal(t, []string{"critical", "high", "normal", "low"}, popAll(q))
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	q := newTaskQueue()
	q.Push(task("a", models.PriorityNormal))
	q.Push(task("b", models.PriorityNormal))
	q.Push(task("c", models.PriorityHigh))
	q.Push(task("d", models.PriorityNormal))

	assert.Equal(t, []string{"c", "a", "b", "d"}, popAll(q))
}

func TestQueuePushFront(t *testing.T) {
	q := newTaskQueue()
	q.Push(task("a", models.PriorityCritical))
	q.Push(task("b", models.PriorityLow))

	head := q.Pop()
	require.Equal(t, "a", head.ID)
	q.PushFront(head)

	// PushFront restores the head regardless of priority ordering.
	assert.Equal(t, "a", q.Peek().ID)
	assert.Equal(t, []string{"a", "b"}, popAll(q))
}

func TestQueueRemove(t *testing.T) {
	q := newTaskQueue()
	q.Push(task("a", models.PriorityNormal))
	q.Push(task("b", models.PriorityNormal))
	q.Push(task("c", models.PriorityNormal))

	assert.True(t, q.Remove("b"))
	assert.False(t, q.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, popAll(q))
}

func TestQueueEmpty(t *testing.T) {
	q := newTaskQueue()
	assert.Nil(t, q.Pop())
	assert.Nil(t, q.Peek())
	assert.Zero(t, q.Len())
}
