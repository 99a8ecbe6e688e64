package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hmstead/conductor/internal/manager"
	"github.com/hmstead/conductor/internal/state"
	"github.com/hmstead/conductor/pkg/models"
)

// Config controls orchestrator behavior. Zero fields fall back to the
// values in DefaultConfig.
type Config struct {
	// MaxConcurrentTasks bounds the number of tasks running at once.
	MaxConcurrentTasks int
	// RetryDelay is the base delay between retry attempts. Execution
	// failures back off exponentially from this base.
	RetryDelay time.Duration
	// DefaultTaskTimeout applies to tasks that do not set their own.
	DefaultTaskTimeout time.Duration
	// EventBuffer sizes the event channel.
	EventBuffer int
	// PollInterval is the cadence of the Run scheduling loop.
	PollInterval time.Duration
}

// DefaultConfig returns the standard orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentTasks: 5,
		RetryDelay:         time.Second,
		DefaultTaskTimeout: 5 * time.Minute,
		EventBuffer:        100,
		PollInterval:       100 * time.Millisecond,
	}
}

// TaskResult is delivered to WaitForTask channels when a task reaches a
// terminal state.
type TaskResult struct {
	// TaskID identifies the settled task.
	TaskID string
	// Output is the task output on success.
	Output map[string]any
	// Err is non-nil when the task failed or was cancelled.
	Err error
}

// Orchestrator owns the task lifecycle: queuing by priority, dependency
// gating, agent assignment, execution with timeouts, retries with
// backoff, and failure cascades. All task state is guarded by a single
// mutex; executors run in their own goroutines and report back through
// CompleteTask and FailTask.
type Orchestrator struct {
	manager *manager.Manager
	emitter *Emitter
	logger  *DebugLogger
	store   state.TaskStore
	cfg     Config

	mu      sync.Mutex
	tasks   map[string]*models.Task
	queue   *taskQueue
	graph   *depGraph
	running map[string]struct{}
	waiters map[string][]chan TaskResult
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithStore enables task persistence. Saves are best-effort; failures
// are logged and do not affect scheduling.
func WithStore(s state.TaskStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator on top of the given agent manager.
func New(mgr *manager.Manager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		manager: mgr,
		logger:  NopLogger(),
		cfg:     DefaultConfig(),
		tasks:   make(map[string]*models.Task),
		queue:   newTaskQueue(),
		graph:   newDepGraph(),
		running: make(map[string]struct{}),
		waiters: make(map[string][]chan TaskResult),
		timers:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(o)
	}
	def := DefaultConfig()
	if o.cfg.MaxConcurrentTasks <= 0 {
		o.cfg.MaxConcurrentTasks = def.MaxConcurrentTasks
	}
	if o.cfg.RetryDelay <= 0 {
		o.cfg.RetryDelay = def.RetryDelay
	}
	if o.cfg.DefaultTaskTimeout <= 0 {
		o.cfg.DefaultTaskTimeout = def.DefaultTaskTimeout
	}
	if o.cfg.EventBuffer <= 0 {
		o.cfg.EventBuffer = def.EventBuffer
	}
	if o.cfg.PollInterval <= 0 {
		o.cfg.PollInterval = def.PollInterval
	}
	o.emitter = NewEmitter(o.cfg.EventBuffer)
	return o
}

// Events returns the orchestrator event channel.
func (o *Orchestrator) Events() <-chan Event { return o.emitter.Events() }

// DroppedEvents returns the number of events dropped because no consumer
// kept up with the channel.
func (o *Orchestrator) DroppedEvents() uint64 { return o.emitter.DroppedCount() }

// CreateTask creates and queues a single task.
func (o *Orchestrator) CreateTask(cfg models.TaskConfig) (*models.Task, error) {
	tasks, err := o.CreateTaskGroup([]models.TaskConfig{cfg})
	if err != nil {
		return nil, err
	}
	return tasks[0], nil
}

// CreateTaskGroup atomically creates a batch of tasks. Entries in
// DependsOn may reference other tasks in the group by name, or
// previously created tasks by ID. The whole group is rejected if any
// dependency is unknown or the dependency graph would contain a cycle.
func (o *Orchestrator) CreateTaskGroup(cfgs []models.TaskConfig) ([]*models.Task, error) {
	if len(cfgs) == 0 {
		return nil, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return nil, ErrStopped
	}

	// Build the tasks first so name references can be resolved to IDs.
	tasks := make([]*models.Task, len(cfgs))
	byName := make(map[string]string, len(cfgs))
	for i, cfg := range cfgs {
		priority := cfg.Priority
		if !priority.Valid() {
			priority = models.PriorityNormal
		}
		t := &models.Task{
			ID:                   uuid.New().String(),
			Name:                 cfg.Name,
			Description:          cfg.Description,
			RequiredCapabilities: cfg.RequiredCapabilities,
			Input:                cfg.Input,
			Status:               models.TaskStatusPending,
			Priority:             priority,
			MaxRetries:           cfg.MaxRetries,
			Timeout:              cfg.Timeout,
			CreatedAt:            time.Now(),
		}
		tasks[i] = t
		byName[cfg.Name] = t.ID
	}

	deps := make(map[string][]string, len(cfgs))
	for i, cfg := range cfgs {
		t := tasks[i]
		for _, dep := range cfg.DependsOn {
			switch {
			case o.tasks[dep] != nil:
				t.DependsOn = append(t.DependsOn, dep)
			case byName[dep] != "":
				t.DependsOn = append(t.DependsOn, byName[dep])
			default:
				return nil, fmt.Errorf("task %q: dependency %q: %w", cfg.Name, dep, ErrUnknownDependency)
			}
		}
		deps[t.ID] = t.DependsOn
	}

	if err := o.graph.AddTasks(deps); err != nil {
		return nil, err
	}

	for _, t := range tasks {
		o.tasks[t.ID] = t
		o.queue.Push(t)
		o.persistLocked(t)
		o.emitter.Emit(Event{
			Type:      EventTaskCreated,
			TaskID:    t.ID,
			TaskName:  t.Name,
			Timestamp: t.CreatedAt,
		})
		o.logger.Log("task %s created: %s (priority=%s deps=%d)",
			t.ID, t.Name, t.Priority, len(t.DependsOn))
	}

	o.scheduleLocked()
	return tasks, nil
}

// scheduleLocked assigns queued tasks to agents until the concurrency
// limit or the queue is exhausted. The queue head blocks on unmet
// dependencies so priority order is preserved. Caller holds o.mu.
func (o *Orchestrator) scheduleLocked() {
	if o.stopped {
		return
	}
	for len(o.running) < o.cfg.MaxConcurrentTasks && o.queue.Len() > 0 {
		t := o.queue.Pop()
		if !o.graph.DepsComplete(t.ID) {
			o.queue.PushFront(t)
			return
		}

		agent := o.manager.SelectBestAgent(t.RequiredCapabilities)
		if agent == nil {
			if len(o.manager.CapableAgents(t.RequiredCapabilities)) > 0 {
				// Matching agents exist but none has a free slot; wait
				// for a completion or the poll loop to reschedule.
				o.queue.PushFront(t)
				return
			}
			o.handleNoAgentLocked(t)
			continue
		}
		if err := o.manager.AssignTask(agent.ID, t); err != nil {
			o.logger.Log("assign task %s to agent %s: %v", t.ID, agent.ID, err)
			o.queue.PushFront(t)
			return
		}

		now := time.Now()
		t.Status = models.TaskStatusRunning
		t.StartedAt = &now
		o.running[t.ID] = struct{}{}
		o.persistLocked(t)
		o.emitter.Emit(Event{
			Type:      EventTaskStarted,
			TaskID:    t.ID,
			TaskName:  t.Name,
			AgentID:   agent.ID,
			Timestamp: now,
		})
		o.logger.Log("task %s started on agent %s (attempt %d/%d)",
			t.ID, agent.ID, t.RetryCount+1, t.MaxRetries+1)

		o.wg.Add(1)
		go o.runTask(agent.ID, t)
	}
}

// handleNoAgentLocked retries a task that has no matching agent, or
// fails it terminally once the retry budget is spent.
func (o *Orchestrator) handleNoAgentLocked(t *models.Task) {
	if t.RetryCount >= t.MaxRetries {
		o.failTerminalLocked(t, errors.New("no available agents"))
		return
	}
	t.RetryCount++
	o.persistLocked(t)
	o.emitter.Emit(Event{
		Type:      EventTaskRetrying,
		TaskID:    t.ID,
		TaskName:  t.Name,
		Message:   "no available agents",
		Timestamp: time.Now(),
	})
	o.requeueAfterLocked(t, o.cfg.RetryDelay)
}

// runTask drives a single execution attempt against the agent's
// executor, enforcing the task timeout.
func (o *Orchestrator) runTask(agentID string, t *models.Task) {
	defer o.wg.Done()

	exec := o.manager.Executor(agentID)
	if exec == nil {
		o.failTerminal(t.ID, fmt.Errorf("agent %s has no executor", agentID))
		return
	}
	if v, ok := exec.(manager.Validator); ok && !v.Validate(t.Input) {
		o.failTerminal(t.ID, errors.New("executor rejected task input"))
		return
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = o.cfg.DefaultTaskTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type execResult struct {
		output map[string]any
		err    error
	}
	done := make(chan execResult, 1)
	go func() {
		output, err := exec.Execute(ctx, t)
		done <- execResult{output, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			o.FailTask(t.ID, res.err)
			return
		}
		o.CompleteTask(t.ID, res.output)
	case <-ctx.Done():
		o.FailTask(t.ID, fmt.Errorf("task timed out after %s", timeout))
	}
}

// Schedule runs a scheduling pass. Completion and retry paths schedule
// on their own; this exists for external triggers such as an agent
// coming back online.
func (o *Orchestrator) Schedule() {
	o.mu.Lock()
	o.scheduleLocked()
	o.mu.Unlock()
}

// Run drives periodic scheduling passes until the context is cancelled.
// Covers the cases no internal event triggers, such as agents restarted
// by health checks while tasks sit queued.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Schedule()
		}
	}
}

// CompleteTask records a successful task result. Calls for tasks that
// are not currently running are ignored, so duplicate settlement of the
// same attempt is harmless.
func (o *Orchestrator) CompleteTask(id string, output map[string]any) {
	o.mu.Lock()
	t, ok := o.tasks[id]
	if !ok || t.Status != models.TaskStatusRunning {
		o.mu.Unlock()
		return
	}
	if _, active := o.running[id]; !active {
		o.mu.Unlock()
		return
	}
	delete(o.running, id)

	now := time.Now()
	t.Status = models.TaskStatusCompleted
	t.Output = output
	t.CompletedAt = &now
	agentID := t.AssignedAgentID
	o.graph.MarkComplete(id)

	var unblocked []string
	for _, w := range o.graph.Waiters(id) {
		wt, ok := o.tasks[w]
		if ok && wt.Status == models.TaskStatusPending && o.graph.DepsComplete(w) {
			unblocked = append(unblocked, w)
		}
	}

	o.persistLocked(t)
	o.notifyWaitersLocked(t)
	o.logger.Log("task %s completed on agent %s", id, agentID)
	o.mu.Unlock()

	o.manager.CompleteTask(agentID, id, output)
	o.emitter.Emit(Event{
		Type:      EventTaskCompleted,
		TaskID:    id,
		TaskName:  t.Name,
		AgentID:   agentID,
		Timestamp: now,
	})
	for _, w := range unblocked {
		o.emitter.Emit(Event{
			Type:      EventDependenciesMet,
			TaskID:    w,
			Timestamp: time.Now(),
		})
	}

	o.mu.Lock()
	o.scheduleLocked()
	o.mu.Unlock()
}

// FailTask records a failed execution attempt. The task is requeued
// with exponential backoff while retry budget remains; otherwise it
// fails terminally and its pending dependents fail in cascade.
func (o *Orchestrator) FailTask(id string, taskErr error) {
	o.mu.Lock()
	t, ok := o.tasks[id]
	if !ok || t.Status != models.TaskStatusRunning {
		o.mu.Unlock()
		return
	}
	if _, active := o.running[id]; !active {
		o.mu.Unlock()
		return
	}
	delete(o.running, id)
	agentID := t.AssignedAgentID

	if t.RetryCount < t.MaxRetries {
		t.RetryCount++
		t.Status = models.TaskStatusPending
		t.AssignedAgentID = ""
		t.StartedAt = nil
		attempt := t.RetryCount
		delay := o.cfg.RetryDelay << (attempt - 1)
		o.persistLocked(t)
		o.requeueAfterLocked(t, delay)
		o.logger.Log("task %s attempt failed, retrying in %s (attempt %d/%d): %v",
			id, delay, attempt+1, t.MaxRetries+1, taskErr)
		o.mu.Unlock()

		o.manager.ReleaseTask(agentID, id)
		o.emitter.Emit(Event{
			Type:      EventTaskRetrying,
			TaskID:    id,
			TaskName:  t.Name,
			AgentID:   agentID,
			Error:     taskErr,
			Message:   fmt.Sprintf("retrying in %s", delay),
			Timestamp: time.Now(),
		})
		return
	}

	o.failTerminalLocked(t, taskErr)
	o.scheduleLocked()
	o.mu.Unlock()
}

// failTerminal is the locked wrapper used for failures that must not
// consume retry budget, such as executor input rejection.
func (o *Orchestrator) failTerminal(id string, taskErr error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	o.failTerminalLocked(t, taskErr)
	o.scheduleLocked()
}

// failTerminalLocked marks a task failed and cascades the failure to
// every pending dependent. Caller holds o.mu.
func (o *Orchestrator) failTerminalLocked(t *models.Task, taskErr error) {
	now := time.Now()
	t.Status = models.TaskStatusFailed
	t.Error = taskErr.Error()
	t.CompletedAt = &now
	o.queue.Remove(t.ID)
	delete(o.running, t.ID)
	if timer, ok := o.timers[t.ID]; ok {
		timer.Stop()
		delete(o.timers, t.ID)
	}

	if t.AssignedAgentID != "" {
		o.manager.FailTask(t.AssignedAgentID, t.ID, taskErr)
	}
	o.persistLocked(t)
	o.notifyWaitersLocked(t)
	o.emitter.Emit(Event{
		Type:      EventTaskFailed,
		TaskID:    t.ID,
		TaskName:  t.Name,
		AgentID:   t.AssignedAgentID,
		Error:     taskErr,
		Timestamp: now,
	})
	o.logger.Log("task %s failed: %v", t.ID, taskErr)

	for _, w := range o.graph.Waiters(t.ID) {
		wt, ok := o.tasks[w]
		if ok && wt.Status == models.TaskStatusPending {
			o.failTerminalLocked(wt, fmt.Errorf("dependency %s failed: %s", t.ID, taskErr))
		}
	}
}

// CancelTask cancels a pending task. Running and terminal tasks cannot
// be cancelled. Pending dependents of the cancelled task fail.
func (o *Orchestrator) CancelTask(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	t, ok := o.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status != models.TaskStatusPending {
		return ErrTaskNotCancellable
	}

	o.queue.Remove(id)
	if timer, ok := o.timers[id]; ok {
		timer.Stop()
		delete(o.timers, id)
	}
	now := time.Now()
	t.Status = models.TaskStatusCancelled
	t.Error = "task cancelled"
	t.CompletedAt = &now
	o.persistLocked(t)
	o.notifyWaitersLocked(t)
	o.emitter.Emit(Event{
		Type:      EventTaskCancelled,
		TaskID:    id,
		TaskName:  t.Name,
		Timestamp: now,
	})
	o.logger.Log("task %s cancelled", id)

	for _, w := range o.graph.Waiters(id) {
		wt, ok := o.tasks[w]
		if ok && wt.Status == models.TaskStatusPending {
			o.failTerminalLocked(wt, fmt.Errorf("dependency %s cancelled", id))
		}
	}
	return nil
}

// requeueAfterLocked schedules a pending task back onto the queue after
// the given delay. Caller holds o.mu.
func (o *Orchestrator) requeueAfterLocked(t *models.Task, delay time.Duration) {
	id := t.ID
	o.timers[id] = time.AfterFunc(delay, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.timers, id)
		if o.stopped || t.Status != models.TaskStatusPending {
			return
		}
		o.queue.Push(t)
		o.scheduleLocked()
	})
}

// persistLocked saves the task when a store is attached. Saves are
// best-effort: failures are logged and never affect scheduling. Caller
// holds o.mu.
func (o *Orchestrator) persistLocked(t *models.Task) {
	if o.store == nil {
		return
	}
	cp := *t
	if err := o.store.SaveTask(&cp); err != nil {
		o.logger.Log("persist task %s: %v", t.ID, err)
	}
}

// notifyWaitersLocked delivers the terminal result to every WaitForTask
// channel registered for the task. Channels are buffered so sends never
// block. Caller holds o.mu.
func (o *Orchestrator) notifyWaitersLocked(t *models.Task) {
	chans := o.waiters[t.ID]
	if len(chans) == 0 {
		return
	}
	delete(o.waiters, t.ID)
	res := resultFor(t)
	for _, ch := range chans {
		ch <- res
	}
}

func resultFor(t *models.Task) TaskResult {
	res := TaskResult{TaskID: t.ID}
	if t.Status == models.TaskStatusCompleted {
		res.Output = t.Output
	} else {
		res.Err = errors.New(t.Error)
	}
	return res
}

// WaitForTask returns a channel that receives exactly one TaskResult
// when the task reaches a terminal state. If the task is already
// terminal the result is available immediately.
func (o *Orchestrator) WaitForTask(id string) (<-chan TaskResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	t, ok := o.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	ch := make(chan TaskResult, 1)
	if t.Status.Terminal() {
		ch <- resultFor(t)
		return ch, nil
	}
	o.waiters[id] = append(o.waiters[id], ch)
	return ch, nil
}

// Task returns a snapshot of the task with the given ID.
func (o *Orchestrator) Task(id string) (*models.Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	t, ok := o.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// Tasks returns a snapshot of every task known to the orchestrator.
func (o *Orchestrator) Tasks() []models.Task {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]models.Task, 0, len(o.tasks))
	for _, t := range o.tasks {
		out = append(out, *t)
	}
	return out
}

// Stats summarizes task counts by status.
func (o *Orchestrator) Stats() models.TaskStats {
	o.mu.Lock()
	defer o.mu.Unlock()

	var s models.TaskStats
	s.Total = len(o.tasks)
	for _, t := range o.tasks {
		switch t.Status {
		case models.TaskStatusPending:
			s.Pending++
		case models.TaskStatusRunning:
			s.Running++
		case models.TaskStatusCompleted:
			s.Completed++
		case models.TaskStatusFailed:
			s.Failed++
		case models.TaskStatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// ExecutionPlan groups task IDs into dependency levels: level 0 holds
// tasks with no dependencies, level n holds tasks whose deepest
// dependency chain has length n. Tasks within a level may run
// concurrently.
func (o *Orchestrator) ExecutionPlan() [][]string {
	o.mu.Lock()
	defer o.mu.Unlock()

	levels := o.graph.Levels()
	max := -1
	for _, lvl := range levels {
		if lvl > max {
			max = lvl
		}
	}
	plan := make([][]string, max+1)
	for id, lvl := range levels {
		plan[lvl] = append(plan[lvl], id)
	}
	return plan
}

// Stop prevents new scheduling, cancels pending retry timers, and waits
// for in-flight tasks to settle before closing the event channel.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	for id, timer := range o.timers {
		timer.Stop()
		delete(o.timers, id)
	}
	o.mu.Unlock()

	o.wg.Wait()
	o.emitter.Close()
	o.logger.Close()
}
