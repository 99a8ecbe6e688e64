package orchestrator

import "github.com/hmstead/conductor/pkg/models"

// taskQueue is a priority-ordered task queue. Insertion is stable: a new
// task is placed immediately before the first queued task of strictly
// lower priority, so equal-priority tasks keep FIFO order.
//
// taskQueue is not goroutine-safe; the orchestrator serializes access.
type taskQueue struct {
	items []*models.Task
}

// newTaskQueue creates an empty queue.
func newTaskQueue() *taskQueue {
	return &taskQueue{}
}

// Push inserts a task according to its priority.
func (q *taskQueue) Push(t *models.Task) {
	w := t.Priority.Weight()
	for i, item := range q.items {
		if item.Priority.Weight() < w {
			q.items = append(q.items, nil)
			copy(q.items[i+1:], q.items[i:])
			q.items[i] = t
			return
		}
	}
	q.items = append(q.items, t)
}

// PushFront puts a task back at the head of the queue, ahead of everything
// else. Used to restore a popped task whose dependencies are unmet.
func (q *taskQueue) PushFront(t *models.Task) {
	q.items = append([]*models.Task{t}, q.items...)
}

// Pop removes and returns the head of the queue, or nil if empty.
func (q *taskQueue) Pop() *models.Task {
	if len(q.items) == 0 {
		return nil
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t
}

// Peek returns the head of the queue without removing it, or nil if empty.
func (q *taskQueue) Peek() *models.Task {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Remove deletes the task with the given ID from the queue. Returns true
// if the task was present.
func (q *taskQueue) Remove(id string) bool {
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of queued tasks.
func (q *taskQueue) Len() int {
	return len(q.items)
}
