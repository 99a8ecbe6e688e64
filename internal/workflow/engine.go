package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hmstead/conductor/internal/orchestrator"
	"github.com/hmstead/conductor/internal/state"
	"github.com/hmstead/conductor/pkg/models"
)

// Engine errors.
var (
	// ErrWorkflowNotFound indicates the workflow ID is unknown.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrExecutionNotFound indicates the execution ID is unknown.
	ErrExecutionNotFound = errors.New("execution not found")
	// ErrExecutionFinished indicates the execution is already terminal.
	ErrExecutionFinished = errors.New("execution already finished")
	// ErrExecutionNotPaused indicates a resume on a non-paused execution.
	ErrExecutionNotPaused = errors.New("execution is not paused")
)

const defaultMaxLoopIterations = 1000

// Engine interprets workflow graphs. Task nodes delegate to the
// orchestrator, expressions run through the sandboxed evaluator, and
// human nodes suspend the execution until an approval is resolved. Each
// execution runs in its own goroutine.
type Engine struct {
	orch      *orchestrator.Orchestrator
	evaluator *Evaluator
	approvals *ApprovalManager
	emitter   *orchestrator.Emitter
	store     state.ExecutionStore

	mu         sync.Mutex
	workflows  map[string]*models.Workflow
	executions map[string]*execState
	wg         sync.WaitGroup
}

// execState tracks one live execution. The state mutex guards the
// Execution record; the variable bag is owned by the run goroutine and
// synced back on status transitions and completion.
type execState struct {
	mu     sync.Mutex
	exec   *models.Execution
	cancel context.CancelFunc
	paused bool
	resume chan struct{}
	done   chan struct{}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithExecutionStore enables best-effort execution persistence.
func WithExecutionStore(s state.ExecutionStore) EngineOption {
	return func(e *Engine) { e.store = s }
}

// WithApprovalStore enables best-effort approval persistence.
func WithApprovalStore(s state.ApprovalStore) EngineOption {
	return func(e *Engine) { e.approvals = NewApprovalManager(s) }
}

// NewEngine creates a workflow engine on top of the orchestrator.
func NewEngine(orch *orchestrator.Orchestrator, opts ...EngineOption) *Engine {
	e := &Engine{
		orch:       orch,
		evaluator:  NewEvaluator(),
		approvals:  NewApprovalManager(nil),
		emitter:    orchestrator.NewEmitter(100),
		workflows:  make(map[string]*models.Workflow),
		executions: make(map[string]*execState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Events returns the engine event channel.
func (e *Engine) Events() <-chan orchestrator.Event { return e.emitter.Events() }

// Approvals returns the engine's approval manager.
func (e *Engine) Approvals() *ApprovalManager { return e.approvals }

// RegisterWorkflow validates a workflow and makes it executable.
// Registering the same ID again replaces the definition.
func (e *Engine) RegisterWorkflow(w *models.Workflow) error {
	if err := Validate(w); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[w.ID] = w
	return nil
}

// Workflow returns a registered workflow by ID.
func (e *Engine) Workflow(id string) (*models.Workflow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return w, nil
}

// Workflows returns all registered workflows.
func (e *Engine) Workflows() []*models.Workflow {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.Workflow, 0, len(e.workflows))
	for _, w := range e.workflows {
		out = append(out, w)
	}
	return out
}

// Execute starts a new execution of the workflow. The workflow's seed
// variables are overlaid with the given ones; traversal runs in a
// background goroutine. Use Wait to block for the result.
func (e *Engine) Execute(workflowID string, vars map[string]any) (*models.Execution, error) {
	e.mu.Lock()
	w, ok := e.workflows[workflowID]
	if !ok {
		e.mu.Unlock()
		return nil, ErrWorkflowNotFound
	}

	merged := make(map[string]any, len(w.Variables)+len(vars))
	for k, v := range w.Variables {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}

	ctx, cancel := context.WithCancel(context.Background())
	st := &execState{
		exec: &models.Execution{
			ID:          uuid.New().String(),
			WorkflowID:  workflowID,
			Status:      models.ExecutionRunning,
			Variables:   merged,
			NodeResults: make(map[string]any),
			StartedAt:   time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.executions[st.exec.ID] = st
	e.wg.Add(1)
	e.mu.Unlock()

	e.persist(st)
	e.emitter.Emit(orchestrator.Event{
		Type:        orchestrator.EventExecutionStarted,
		ExecutionID: st.exec.ID,
		Message:     workflowID,
	})
	go e.runExecution(ctx, st, w)

	return e.snapshot(st), nil
}

// Execution returns a snapshot of the execution with the given ID.
func (e *Engine) Execution(id string) (*models.Execution, error) {
	e.mu.Lock()
	st, ok := e.executions[id]
	e.mu.Unlock()
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return e.snapshot(st), nil
}

// Executions returns snapshots of every known execution.
func (e *Engine) Executions() []*models.Execution {
	e.mu.Lock()
	states := make([]*execState, 0, len(e.executions))
	for _, st := range e.executions {
		states = append(states, st)
	}
	e.mu.Unlock()

	out := make([]*models.Execution, 0, len(states))
	for _, st := range states {
		out = append(out, e.snapshot(st))
	}
	return out
}

// Wait blocks until the execution reaches a terminal state or the
// context is cancelled, then returns a final snapshot.
func (e *Engine) Wait(ctx context.Context, id string) (*models.Execution, error) {
	e.mu.Lock()
	st, ok := e.executions[id]
	e.mu.Unlock()
	if !ok {
		return nil, ErrExecutionNotFound
	}
	select {
	case <-st.done:
		return e.snapshot(st), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PauseExecution halts traversal at the next node boundary. Nodes in
// flight, including running tasks, finish first.
func (e *Engine) PauseExecution(id string) error {
	e.mu.Lock()
	st, ok := e.executions[id]
	e.mu.Unlock()
	if !ok {
		return ErrExecutionNotFound
	}

	st.mu.Lock()
	if terminalExecution(st.exec.Status) {
		st.mu.Unlock()
		return ErrExecutionFinished
	}
	if st.paused {
		st.mu.Unlock()
		return nil
	}
	st.paused = true
	st.resume = make(chan struct{})
	st.exec.Status = models.ExecutionPaused
	st.mu.Unlock()

	e.persist(st)
	e.emitter.Emit(orchestrator.Event{
		Type:        orchestrator.EventExecutionPaused,
		ExecutionID: id,
	})
	return nil
}

// ResumeExecution releases a paused execution.
func (e *Engine) ResumeExecution(id string) error {
	e.mu.Lock()
	st, ok := e.executions[id]
	e.mu.Unlock()
	if !ok {
		return ErrExecutionNotFound
	}

	st.mu.Lock()
	if !st.paused {
		st.mu.Unlock()
		return ErrExecutionNotPaused
	}
	st.paused = false
	st.exec.Status = models.ExecutionRunning
	close(st.resume)
	st.mu.Unlock()

	e.persist(st)
	e.emitter.Emit(orchestrator.Event{
		Type:        orchestrator.EventExecutionResumed,
		ExecutionID: id,
	})
	return nil
}

// CancelExecution aborts the execution. The run goroutine observes the
// cancellation at its next blocking point and the execution fails with
// a cancellation error.
func (e *Engine) CancelExecution(id string) error {
	e.mu.Lock()
	st, ok := e.executions[id]
	e.mu.Unlock()
	if !ok {
		return ErrExecutionNotFound
	}

	st.mu.Lock()
	if terminalExecution(st.exec.Status) {
		st.mu.Unlock()
		return ErrExecutionFinished
	}
	st.mu.Unlock()

	st.cancel()
	return nil
}

// ResolveApproval records a decision for a pending human-approval gate
// and resumes the suspended execution.
func (e *Engine) ResolveApproval(approvalID string, d Decision) error {
	return e.approvals.Resolve(approvalID, d)
}

// Stop cancels all live executions, waits for their goroutines to
// settle, and closes the event channel.
func (e *Engine) Stop() {
	e.mu.Lock()
	for _, st := range e.executions {
		st.cancel()
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.emitter.Close()
}

// runExecution walks the workflow graph from the start node.
func (e *Engine) runExecution(ctx context.Context, st *execState, w *models.Workflow) {
	defer e.wg.Done()
	defer st.cancel()

	// Work on a private copy; the record's bag is synced on completion
	// so concurrent snapshots never observe mid-node writes.
	vars := copyVars(st.exec.Variables)
	err := e.runChain(ctx, st, w, w.StartNodeID, "", vars)
	e.finish(st, vars, err)
}

// runChain executes nodes from startID until the chain ends or reaches
// stopID (exclusive). Loop bodies stop at their loop node; parallel
// branches stop at the join node.
func (e *Engine) runChain(ctx context.Context, st *execState, w *models.Workflow, startID, stopID string, vars map[string]any) error {
	nodeID := startID
	for nodeID != "" && nodeID != stopID {
		if err := e.gate(ctx, st); err != nil {
			return err
		}

		node := w.NodeByID(nodeID)
		if node == nil {
			return fmt.Errorf("node %s not found", nodeID)
		}
		st.setCurrentNode(nodeID)
		e.persist(st)

		next, err := e.execNode(ctx, st, w, node, vars)
		if err != nil {
			return fmt.Errorf("node %s: %w", nodeID, err)
		}
		nodeID = next
	}
	return nil
}

// gate blocks while the execution is paused and aborts on cancellation.
func (e *Engine) gate(ctx context.Context, st *execState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st.mu.Lock()
	if !st.paused {
		st.mu.Unlock()
		return nil
	}
	resume := st.resume
	st.mu.Unlock()

	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) execNode(ctx context.Context, st *execState, w *models.Workflow, node *models.Node, vars map[string]any) (string, error) {
	switch node.Type {
	case models.NodeTypeTask:
		return e.execTaskNode(ctx, st, node, vars)
	case models.NodeTypeCondition:
		return e.execConditionNode(st, node, vars)
	case models.NodeTypeSwitch:
		return e.execSwitchNode(st, node, vars)
	case models.NodeTypeLoop:
		return e.execLoopNode(ctx, st, w, node, vars)
	case models.NodeTypeParallel:
		return e.execParallelNode(ctx, st, w, node, vars)
	case models.NodeTypeHuman:
		return e.execHumanNode(ctx, st, node, vars)
	default:
		return "", fmt.Errorf("unknown node type %q", node.Type)
	}
}

// execTaskNode creates an orchestrator task and waits for its result.
// The task output is recorded under the node ID and exposed to later
// expressions through the variable bag.
func (e *Engine) execTaskNode(ctx context.Context, st *execState, node *models.Node, vars map[string]any) (string, error) {
	spec := node.Task

	input := make(map[string]any, len(spec.Input)+len(spec.InputMapping))
	for k, v := range spec.Input {
		input[k] = v
	}
	for field, varName := range spec.InputMapping {
		v, ok := lookupVar(vars, varName)
		if !ok {
			return "", fmt.Errorf("input mapping %q: variable %q is not set", field, varName)
		}
		input[field] = v
	}

	name := spec.Name
	if name == "" {
		name = node.Name
	}
	if name == "" {
		name = node.ID
	}

	task, err := e.orch.CreateTask(models.TaskConfig{
		Name:                 name,
		RequiredCapabilities: spec.RequiredCapabilities,
		Input:                input,
		Priority:             spec.Priority,
		MaxRetries:           spec.MaxRetries,
		Timeout:              spec.Timeout,
	})
	if err != nil {
		return "", err
	}

	ch, err := e.orch.WaitForTask(task.ID)
	if err != nil {
		return "", err
	}
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", fmt.Errorf("task %q: %w", name, res.Err)
		}
		st.recordResult(node.ID, res.Output)
		// The output is reachable both ways: "<node>.output" names the
		// whole map, "<node>.<field>" drills into it.
		vars[node.ID] = res.Output
		vars[node.ID+".output"] = res.Output
		return first(node.Next), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *Engine) execConditionNode(st *execState, node *models.Node, vars map[string]any) (string, error) {
	ok, err := e.evaluator.EvaluateBool(node.Condition.Expression, vars)
	if err != nil {
		return "", err
	}
	st.recordResult(node.ID, ok)
	if ok {
		return node.Next[0], nil
	}
	if len(node.Next) > 1 {
		return node.Next[1], nil
	}
	return "", nil
}

func (e *Engine) execSwitchNode(st *execState, node *models.Node, vars map[string]any) (string, error) {
	value, err := e.evaluator.EvaluateString(node.Switch.Expression, vars)
	if err != nil {
		return "", err
	}
	st.recordResult(node.ID, value)

	if target, ok := node.Switch.Branches[value]; ok {
		return target, nil
	}
	if node.Switch.Default != "" {
		return node.Switch.Default, nil
	}
	return "", fmt.Errorf("switch value %q matches no branch and no default is set", value)
}

// execLoopNode runs the loop body, a chain starting at Next[0] and
// ending where it loops back to this node or runs out of successors.
func (e *Engine) execLoopNode(ctx context.Context, st *execState, w *models.Workflow, node *models.Node, vars map[string]any) (string, error) {
	spec := node.Loop
	body := node.Next[0]

	variable := spec.Variable
	if variable == "" {
		variable = "item"
	}
	maxIter := spec.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxLoopIterations
	}

	// Save surrounding loop state so nested loops restore it on exit.
	loopKeys := []string{"loop.iteration", "loop.index", "loop.item", "loop.first", "loop.last"}
	saved := make(map[string]any, len(loopKeys))
	for _, k := range loopKeys {
		if v, ok := vars[k]; ok {
			saved[k] = v
		}
	}

	// total is the iteration count when known up front; predicate loops
	// never know it, so loop.last stays false for them.
	total := -1
	bind := func(i int, item any) {
		vars[variable] = item
		vars["loop.iteration"] = i + 1
		vars["loop.index"] = i
		vars["loop.item"] = item
		vars["loop.first"] = i == 0
		vars["loop.last"] = total >= 0 && i == total-1
	}

	iterations := 0
	runBody := func() error {
		iterations++
		return e.runChain(ctx, st, w, body, node.ID, vars)
	}

	var err error
	switch {
	case spec.Iterations > 0:
		total = spec.Iterations
		for i := 0; i < spec.Iterations && err == nil; i++ {
			bind(i, i)
			err = runBody()
		}

	case len(spec.Items) > 0:
		total = len(spec.Items)
		for i, item := range spec.Items {
			bind(i, item)
			vars[variable+"_index"] = i
			if err = runBody(); err != nil {
				break
			}
		}

	case spec.While != "":
		for {
			if iterations >= maxIter {
				return "", fmt.Errorf("loop exceeded %d iterations", maxIter)
			}
			bind(iterations, iterations)
			ok, evalErr := e.evaluator.EvaluateBool(spec.While, vars)
			if evalErr != nil {
				return "", evalErr
			}
			if !ok {
				break
			}
			if err = runBody(); err != nil {
				break
			}
		}

	case spec.Until != "":
		for {
			if iterations >= maxIter {
				return "", fmt.Errorf("loop exceeded %d iterations", maxIter)
			}
			bind(iterations, iterations)
			if err = runBody(); err != nil {
				break
			}
			ok, evalErr := e.evaluator.EvaluateBool(spec.Until, vars)
			if evalErr != nil {
				return "", evalErr
			}
			if ok {
				break
			}
		}
	}
	if err != nil {
		return "", err
	}

	// The loop counters reset on exit; an enclosing loop's state comes
	// back into view.
	for _, k := range loopKeys {
		if v, ok := saved[k]; ok {
			vars[k] = v
		} else {
			delete(vars, k)
		}
	}

	st.recordResult(node.ID, map[string]any{"iterations": iterations})
	if len(node.Next) > 1 {
		return node.Next[1], nil
	}
	return "", nil
}

// execParallelNode fans the branch chains out into goroutines, each on
// its own copy of the variable bag, and joins at the last Next entry.
// Branch variables merge back in branch order, so later branches win
// conflicting keys.
func (e *Engine) execParallelNode(ctx context.Context, st *execState, w *models.Workflow, node *models.Node, vars map[string]any) (string, error) {
	branches := node.Next[:len(node.Next)-1]
	join := node.Next[len(node.Next)-1]

	branchVars := make([]map[string]any, len(branches))
	errs := make([]error, len(branches))
	var wg sync.WaitGroup
	for i, start := range branches {
		branchVars[i] = copyVars(vars)
		wg.Add(1)
		go func(i int, start string) {
			defer wg.Done()
			errs[i] = e.runChain(ctx, st, w, start, join, branchVars[i])
		}(i, start)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return "", fmt.Errorf("branch %s: %w", branches[i], err)
		}
	}
	for _, bv := range branchVars {
		for k, v := range bv {
			vars[k] = v
		}
	}
	return join, nil
}

// execHumanNode suspends the execution until the approval is resolved.
func (e *Engine) execHumanNode(ctx context.Context, st *execState, node *models.Node, vars map[string]any) (string, error) {
	approval := e.approvals.Request(st.exec.ID, node.ID, *node.Human)

	st.setStatus(models.ExecutionWaitingApproval)
	e.persist(st)
	e.emitter.Emit(orchestrator.Event{
		Type:        orchestrator.EventApprovalRequired,
		ExecutionID: st.exec.ID,
		NodeID:      node.ID,
		ApprovalID:  approval.ID,
		Message:     approval.Prompt,
	})

	d, err := e.approvals.WaitForDecision(ctx, approval.ID)
	if err != nil {
		return "", err
	}

	st.mu.Lock()
	if !st.paused {
		st.exec.Status = models.ExecutionRunning
	}
	st.mu.Unlock()
	e.persist(st)
	e.emitter.Emit(orchestrator.Event{
		Type:        orchestrator.EventApprovalProcessed,
		ExecutionID: st.exec.ID,
		NodeID:      node.ID,
		ApprovalID:  approval.ID,
		Message:     fmt.Sprintf("approved=%t by %s", d.Approved, d.ApprovedBy),
	})

	result := map[string]any{
		"approved":    d.Approved,
		"approved_by": d.ApprovedBy,
		"comment":     d.Comment,
	}
	st.recordResult(node.ID, result)
	vars[node.ID] = result

	if d.Approved {
		return node.Next[0], nil
	}
	if len(node.Next) > 1 {
		return node.Next[1], nil
	}
	return "", fmt.Errorf("approval rejected by %s", d.ApprovedBy)
}

// finish records the terminal state of an execution and releases
// waiters.
func (e *Engine) finish(st *execState, vars map[string]any, err error) {
	now := time.Now()

	st.mu.Lock()
	st.exec.Variables = copyVars(vars)
	st.exec.CompletedAt = &now
	eventType := orchestrator.EventExecutionCompleted
	switch {
	case err == nil:
		st.exec.Status = models.ExecutionCompleted
	case errors.Is(err, context.Canceled):
		st.exec.Status = models.ExecutionFailed
		st.exec.Error = "Cancelled by user"
		eventType = orchestrator.EventExecutionCancelled
	default:
		st.exec.Status = models.ExecutionFailed
		st.exec.Error = err.Error()
		eventType = orchestrator.EventExecutionFailed
	}
	id := st.exec.ID
	st.mu.Unlock()

	e.persist(st)
	e.emitter.Emit(orchestrator.Event{
		Type:        eventType,
		ExecutionID: id,
		Error:       err,
		Timestamp:   now,
	})
	close(st.done)
}

// persist saves the execution record when a store is configured.
func (e *Engine) persist(st *execState) {
	if e.store == nil {
		return
	}
	_ = e.store.SaveExecution(e.snapshot(st))
}

// snapshot copies the execution record for safe external use.
func (e *Engine) snapshot(st *execState) *models.Execution {
	st.mu.Lock()
	defer st.mu.Unlock()
	cp := *st.exec
	cp.Variables = copyVars(st.exec.Variables)
	cp.NodeResults = copyVars(st.exec.NodeResults)
	return &cp
}

func (st *execState) setCurrentNode(id string) {
	st.mu.Lock()
	st.exec.CurrentNodeID = id
	st.mu.Unlock()
}

func (st *execState) setStatus(s models.ExecutionStatus) {
	st.mu.Lock()
	st.exec.Status = s
	st.mu.Unlock()
}

func (st *execState) recordResult(nodeID string, result any) {
	st.mu.Lock()
	st.exec.NodeResults[nodeID] = result
	st.mu.Unlock()
}

func terminalExecution(s models.ExecutionStatus) bool {
	return s == models.ExecutionCompleted || s == models.ExecutionFailed
}

func first(next []string) string {
	if len(next) == 0 {
		return ""
	}
	return next[0]
}

func copyVars(m map[string]any) map[string]any {
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// lookupVar resolves a variable name against the bag, first as a plain
// key, then as a dotted path through nested maps.
func lookupVar(vars map[string]any, name string) (any, bool) {
	if v, ok := vars[name]; ok {
		return v, true
	}
	if !strings.Contains(name, ".") {
		return nil, false
	}
	var cur any = map[string]any(vars)
	for _, part := range strings.Split(name, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
