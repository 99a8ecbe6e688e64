package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmstead/conductor/internal/manager"
	"github.com/hmstead/conductor/internal/registry"
	"github.com/hmstead/conductor/pkg/models"
)

func newTestOrchestrator(t *testing.T, exec manager.Executor, opts ...Option) *Orchestrator {
	t.Helper()
	mgr := manager.New(registry.New())
	if exec != nil {
		_, err := mgr.CreateAgent(models.AgentConfig{
			ID:                 "worker-1",
			Name:               "worker",
			Capabilities:       []models.Capability{{Name: "compute"}},
			MaxConcurrentTasks: 4,
		}, exec)
		require.NoError(t, err)
	}
	return New(mgr, opts...)
}

func waitResult(t *testing.T, o *Orchestrator, id string) TaskResult {
	t.Helper()
	ch, err := o.WaitForTask(id)
	require.NoError(t, err)
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for task %s", id)
		return TaskResult{}
	}
}

func echoExecutor() manager.Executor {
	return manager.ExecutorFunc(func(_ context.Context, task *models.Task) (map[string]any, error) {
		return task.Input, nil
	})
}

// gateExecutor blocks every execution until the gate closes.
func gateExecutor(gate <-chan struct{}) manager.Executor {
	return manager.ExecutorFunc(func(ctx context.Context, _ *models.Task) (map[string]any, error) {
		select {
		case <-gate:
			return map[string]any{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func TestCreateTaskRunsToCompletion(t *testing.T) {
	o := newTestOrchestrator(t, echoExecutor())
	defer o.Stop()

	created, err := o.CreateTask(models.TaskConfig{
		Name:                 "extract",
		RequiredCapabilities: []string{"compute"},
		Input:                map[string]any{"source": "s3://bucket/data"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	res := waitResult(t, o, created.ID)
	require.NoError(t, res.Err)
	assert.Equal(t, "s3://bucket/data", res.Output["source"])

	got, err := o.Task(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, got.Status)
	assert.Equal(t, models.PriorityNormal, got.Priority, "priority defaults to normal")
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
}

func TestPriorityOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string
	exec := manager.ExecutorFunc(func(_ context.Context, task *models.Task) (map[string]any, error) {
		mu.Lock()
		order = append(order, task.Name)
		mu.Unlock()
		return nil, nil
	})

	o := newTestOrchestrator(t, exec, WithConfig(Config{MaxConcurrentTasks: 1}))
	defer o.Stop()

	tasks, err := o.CreateTaskGroup([]models.TaskConfig{
		{Name: "low", Priority: models.PriorityLow, RequiredCapabilities: []string{"compute"}},
		{Name: "critical", Priority: models.PriorityCritical, RequiredCapabilities: []string{"compute"}},
		{Name: "normal", Priority: models.PriorityNormal, RequiredCapabilities: []string{"compute"}},
		{Name: "high", Priority: models.PriorityHigh, RequiredCapabilities: []string{"compute"}},
	})
	require.NoError(t, err)
	for _, task := range tasks {
		require.NoError(t, waitResult(t, o, task.ID).Err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"critical", "high", "normal", "low"}, order)
}

func TestRetryThenSucceed(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	exec := manager.ExecutorFunc(func(_ context.Context, _ *models.Task) (map[string]any, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts <= 2 {
			return nil, errors.New("transient failure")
		}
		return map[string]any{"attempts": attempts}, nil
	})

	o := newTestOrchestrator(t, exec, WithConfig(Config{RetryDelay: 5 * time.Millisecond}))
	defer o.Stop()

	created, err := o.CreateTask(models.TaskConfig{
		Name:                 "flaky",
		RequiredCapabilities: []string{"compute"},
		MaxRetries:           3,
	})
	require.NoError(t, err)

	res := waitResult(t, o, created.ID)
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Output["attempts"])

	got, err := o.Task(created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
}

func TestRetryBudgetExhausted(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	exec := manager.ExecutorFunc(func(_ context.Context, _ *models.Task) (map[string]any, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		return nil, errors.New("boom")
	})

	o := newTestOrchestrator(t, exec, WithConfig(Config{RetryDelay: 5 * time.Millisecond}))
	defer o.Stop()

	created, err := o.CreateTask(models.TaskConfig{
		Name:                 "doomed",
		RequiredCapabilities: []string{"compute"},
		MaxRetries:           2,
	})
	require.NoError(t, err)

	res := waitResult(t, o, created.ID)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "boom")

	mu.Lock()
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
	mu.Unlock()

	got, err := o.Task(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
}

func TestNoAvailableAgents(t *testing.T) {
	o := newTestOrchestrator(t, nil, WithConfig(Config{RetryDelay: 5 * time.Millisecond}))
	defer o.Stop()

	created, err := o.CreateTask(models.TaskConfig{
		Name:                 "orphan",
		RequiredCapabilities: []string{"compute"},
		MaxRetries:           1,
	})
	require.NoError(t, err)

	res := waitResult(t, o, created.ID)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "no available agents")
}

func TestDependencyOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string
	exec := manager.ExecutorFunc(func(_ context.Context, task *models.Task) (map[string]any, error) {
		mu.Lock()
		order = append(order, task.Name)
		mu.Unlock()
		return nil, nil
	})

	o := newTestOrchestrator(t, exec)
	defer o.Stop()

	tasks, err := o.CreateTaskGroup([]models.TaskConfig{
		{Name: "extract", RequiredCapabilities: []string{"compute"}},
		{Name: "transform", RequiredCapabilities: []string{"compute"}, DependsOn: []string{"extract"}},
		{Name: "load", RequiredCapabilities: []string{"compute"}, DependsOn: []string{"transform"}},
	})
	require.NoError(t, err)
	require.NoError(t, waitResult(t, o, tasks[2].ID).Err)

	mu.Lock()
	assert.Equal(t, []string{"extract", "transform", "load"}, order)
	mu.Unlock()

	plan := o.ExecutionPlan()
	require.Len(t, plan, 3)
	assert.Equal(t, []string{tasks[0].ID}, plan[0])
	assert.Equal(t, []string{tasks[1].ID}, plan[1])
	assert.Equal(t, []string{tasks[2].ID}, plan[2])
}

func TestDependenciesGateExecution(t *testing.T) {
	gate := make(chan struct{})
	o := newTestOrchestrator(t, gateExecutor(gate))
	defer o.Stop()

	tasks, err := o.CreateTaskGroup([]models.TaskConfig{
		{Name: "first", RequiredCapabilities: []string{"compute"}},
		{Name: "second", RequiredCapabilities: []string{"compute"}, DependsOn: []string{"first"}},
	})
	require.NoError(t, err)

	first, err := o.Task(tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRunning, first.Status)

	second, err := o.Task(tasks[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, second.Status, "dependent must not start before its dependency completes")

	close(gate)
	require.NoError(t, waitResult(t, o, tasks[1].ID).Err)
}

func TestCascadeFailure(t *testing.T) {
	exec := manager.ExecutorFunc(func(_ context.Context, task *models.Task) (map[string]any, error) {
		if task.Name == "root" {
			return nil, errors.New("root failure")
		}
		return nil, nil
	})

	o := newTestOrchestrator(t, exec)
	defer o.Stop()

	bystander, err := o.CreateTask(models.TaskConfig{
		Name:                 "bystander",
		RequiredCapabilities: []string{"compute"},
	})
	require.NoError(t, err)
	require.NoError(t, waitResult(t, o, bystander.ID).Err)

	tasks, err := o.CreateTaskGroup([]models.TaskConfig{
		{Name: "root", RequiredCapabilities: []string{"compute"}},
		{Name: "child", RequiredCapabilities: []string{"compute"}, DependsOn: []string{"root"}},
		{Name: "grandchild", RequiredCapabilities: []string{"compute"}, DependsOn: []string{"child"}},
	})
	require.NoError(t, err)

	res := waitResult(t, o, tasks[2].ID)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "dependency")

	child, err := o.Task(tasks[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, child.Status)
	assert.Contains(t, child.Error, tasks[0].ID)

	settled, err := o.Task(bystander.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, settled.Status, "unrelated tasks are unaffected")
}

func TestUnknownDependencyRejected(t *testing.T) {
	o := newTestOrchestrator(t, echoExecutor())
	defer o.Stop()

	_, err := o.CreateTask(models.TaskConfig{
		Name:                 "a",
		RequiredCapabilities: []string{"compute"},
		DependsOn:            []string{"no-such-task"},
	})
	require.ErrorIs(t, err, ErrUnknownDependency)
	assert.Zero(t, o.Stats().Total, "rejected groups create nothing")
}

func TestCircularDependencyRejected(t *testing.T) {
	o := newTestOrchestrator(t, echoExecutor())
	defer o.Stop()

	_, err := o.CreateTaskGroup([]models.TaskConfig{
		{Name: "a", RequiredCapabilities: []string{"compute"}, DependsOn: []string{"b"}},
		{Name: "b", RequiredCapabilities: []string{"compute"}, DependsOn: []string{"a"}},
	})
	require.ErrorIs(t, err, ErrCycleDetected)
	assert.Zero(t, o.Stats().Total)
}

func TestCancelTask(t *testing.T) {
	gate := make(chan struct{})
	o := newTestOrchestrator(t, gateExecutor(gate))
	defer o.Stop()

	tasks, err := o.CreateTaskGroup([]models.TaskConfig{
		{Name: "running", RequiredCapabilities: []string{"compute"}},
		{Name: "queued", RequiredCapabilities: []string{"compute"}, DependsOn: []string{"running"}},
		{Name: "downstream", RequiredCapabilities: []string{"compute"}, DependsOn: []string{"queued"}},
	})
	require.NoError(t, err)

	require.NoError(t, o.CancelTask(tasks[1].ID))
	res := waitResult(t, o, tasks[1].ID)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "cancelled")

	// Cascade: the dependent of a cancelled task fails.
	downstream, err := o.Task(tasks[2].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, downstream.Status)

	assert.ErrorIs(t, o.CancelTask(tasks[0].ID), ErrTaskNotCancellable)
	assert.ErrorIs(t, o.CancelTask("missing"), ErrTaskNotFound)

	close(gate)
	require.NoError(t, waitResult(t, o, tasks[0].ID).Err)
}

func TestTaskTimeout(t *testing.T) {
	gate := make(chan struct{}) // never closed; executor waits out the deadline
	o := newTestOrchestrator(t, gateExecutor(gate))
	defer o.Stop()

	created, err := o.CreateTask(models.TaskConfig{
		Name:                 "slow",
		RequiredCapabilities: []string{"compute"},
		Timeout:              20 * time.Millisecond,
	})
	require.NoError(t, err)

	res := waitResult(t, o, created.ID)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "timed out")

	got, err := o.Task(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
}

func TestCompleteTaskIdempotent(t *testing.T) {
	gate := make(chan struct{})
	o := newTestOrchestrator(t, gateExecutor(gate))

	created, err := o.CreateTask(models.TaskConfig{
		Name:                 "settled-externally",
		RequiredCapabilities: []string{"compute"},
	})
	require.NoError(t, err)

	o.CompleteTask(created.ID, map[string]any{"source": "external"})
	res := waitResult(t, o, created.ID)
	require.NoError(t, res.Err)

	// The straggling executor result must not overwrite the recorded one.
	close(gate)
	o.Stop()

	got, err := o.Task(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, got.Status)
	assert.Equal(t, "external", got.Output["source"])
}

func TestWaitForTaskAlreadyTerminal(t *testing.T) {
	o := newTestOrchestrator(t, echoExecutor())
	defer o.Stop()

	created, err := o.CreateTask(models.TaskConfig{
		Name:                 "quick",
		RequiredCapabilities: []string{"compute"},
	})
	require.NoError(t, err)
	require.NoError(t, waitResult(t, o, created.ID).Err)

	// A second wait on a settled task resolves immediately.
	res := waitResult(t, o, created.ID)
	assert.NoError(t, res.Err)

	_, err = o.WaitForTask("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestStats(t *testing.T) {
	exec := manager.ExecutorFunc(func(_ context.Context, task *models.Task) (map[string]any, error) {
		if task.Name == "bad" {
			return nil, errors.New("bad task")
		}
		return nil, nil
	})

	o := newTestOrchestrator(t, exec)
	defer o.Stop()

	tasks, err := o.CreateTaskGroup([]models.TaskConfig{
		{Name: "good-1", RequiredCapabilities: []string{"compute"}},
		{Name: "good-2", RequiredCapabilities: []string{"compute"}},
		{Name: "bad", RequiredCapabilities: []string{"compute"}},
	})
	require.NoError(t, err)
	for _, task := range tasks {
		waitResult(t, o, task.ID)
	}

	stats := o.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
}

func TestEventSequence(t *testing.T) {
	o := newTestOrchestrator(t, echoExecutor())

	created, err := o.CreateTask(models.TaskConfig{
		Name:                 "observed",
		RequiredCapabilities: []string{"compute"},
	})
	require.NoError(t, err)
	waitResult(t, o, created.ID)
	o.Stop()

	var types []EventType
	for ev := range o.Events() {
		if ev.TaskID == created.ID {
			types = append(types, ev.Type)
		}
	}
	assert.Equal(t, []EventType{EventTaskCreated, EventTaskStarted, EventTaskCompleted}, types)
}

func TestCreateAfterStop(t *testing.T) {
	o := newTestOrchestrator(t, echoExecutor())
	o.Stop()

	_, err := o.CreateTask(models.TaskConfig{Name: "late"})
	assert.ErrorIs(t, err, ErrStopped)
}

// recordingStore captures task saves for persistence assertions.
type recordingStore struct {
	mu    sync.Mutex
	saves map[string][]models.TaskStatus
}

func newRecordingStore() *recordingStore {
	return &recordingStore{saves: make(map[string][]models.TaskStatus)}
}

func (s *recordingStore) SaveTask(t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves[t.ID] = append(s.saves[t.ID], t.Status)
	return nil
}

func (s *recordingStore) GetTask(string) (*models.Task, error) { return nil, nil }

func (s *recordingStore) ListTasks(models.TaskStatus) ([]models.Task, error) { return nil, nil }

func (s *recordingStore) statuses(id string) []models.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TaskStatus(nil), s.saves[id]...)
}

func TestTaskTransitionsPersisted(t *testing.T) {
	store := newRecordingStore()
	o := newTestOrchestrator(t, echoExecutor(), WithStore(store))
	defer o.Stop()

	created, err := o.CreateTask(models.TaskConfig{
		Name:                 "persisted",
		RequiredCapabilities: []string{"compute"},
	})
	require.NoError(t, err)

	res := waitResult(t, o, created.ID)
	require.NoError(t, res.Err)

	got := store.statuses(created.ID)
	require.NotEmpty(t, got)
	assert.Equal(t, models.TaskStatusPending, got[0], "creation is saved before scheduling")
	assert.Contains(t, got, models.TaskStatusRunning)
	assert.Equal(t, models.TaskStatusCompleted, got[len(got)-1])
}

func TestErroredAgentDoesNotStallQueue(t *testing.T) {
	exec := manager.ExecutorFunc(func(_ context.Context, _ *models.Task) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	o := newTestOrchestrator(t, exec)
	defer o.Stop()

	first, err := o.CreateTask(models.TaskConfig{
		Name:                 "first",
		RequiredCapabilities: []string{"compute"},
	})
	require.NoError(t, err)
	res := waitResult(t, o, first.ID)
	require.EqualError(t, res.Err, "boom")

	// The terminal failure leaves the lone matching agent in error
	// status. A later task must run out its retry budget and fail with
	// "no available agents" rather than wait on an agent that cannot
	// come back without a restart.
	second, err := o.CreateTask(models.TaskConfig{
		Name:                 "second",
		RequiredCapabilities: []string{"compute"},
	})
	require.NoError(t, err)
	res = waitResult(t, o, second.ID)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "no available agents")
}
