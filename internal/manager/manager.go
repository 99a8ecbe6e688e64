// Package manager orchestrates agent lifecycle and task-slot accounting
// atop the registry, and holds the executor bound to each agent.
package manager

import (
	"sync"
	"time"

	"github.com/hmstead/conductor/internal/registry"
	"github.com/hmstead/conductor/pkg/models"
)

// AgentEventType represents the type of agent lifecycle event.
type AgentEventType string

const (
	// AgentEventCreated indicates an agent was registered.
	AgentEventCreated AgentEventType = "agent:created"
	// AgentEventStarted indicates an agent was started.
	AgentEventStarted AgentEventType = "agent:started"
	// AgentEventStopped indicates an agent was stopped.
	AgentEventStopped AgentEventType = "agent:stopped"
	// AgentEventOrphaned indicates a busy agent was found with no active
	// tasks and forced to error status.
	AgentEventOrphaned AgentEventType = "agent:orphaned"
)

// AgentEvent is emitted by the manager on agent lifecycle changes.
type AgentEvent struct {
	// Type is the kind of event.
	Type AgentEventType
	// AgentID is the ID of the related agent.
	AgentID string
	// Message provides additional context about the event.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Manager coordinates agent lifecycle operations and best-agent selection.
// All methods are safe for concurrent use.
type Manager struct {
	// registry is the source of truth for agent records.
	registry *registry.Registry
	// executors maps agent IDs to their bound executors.
	executors map[string]Executor
	// active maps agent IDs to the set of task IDs currently assigned.
	active map[string]map[string]struct{}
	// events carries agent lifecycle events to subscribers.
	events chan AgentEvent
	// mu protects executors and active.
	mu sync.RWMutex
}

// New creates a Manager wrapping the given registry.
func New(reg *registry.Registry) *Manager {
	return &Manager{
		registry:  reg,
		executors: make(map[string]Executor),
		active:    make(map[string]map[string]struct{}),
		events:    make(chan AgentEvent, 64),
	}
}

// Registry returns the underlying agent registry.
func (m *Manager) Registry() *registry.Registry { return m.registry }

// Events returns a read-only channel of agent lifecycle events.
func (m *Manager) Events() <-chan AgentEvent { return m.events }

// emit sends an event without blocking. Events are dropped if no
// subscriber is draining the channel.
func (m *Manager) emit(typ AgentEventType, agentID, msg string) {
	select {
	case m.events <- AgentEvent{Type: typ, AgentID: agentID, Message: msg, Timestamp: time.Now()}:
	default:
	}
}

// CreateAgent registers a new agent (idle) and binds its executor.
// Returns ErrDuplicateExecutor if an executor is already registered for
// the agent ID.
func (m *Manager) CreateAgent(cfg models.AgentConfig, exec Executor) (*models.Agent, error) {
	m.mu.Lock()
	if _, exists := m.executors[cfg.ID]; exists {
		m.mu.Unlock()
		return nil, ErrDuplicateExecutor
	}
	m.executors[cfg.ID] = exec
	m.active[cfg.ID] = make(map[string]struct{})
	m.mu.Unlock()

	maxTasks := cfg.MaxConcurrentTasks
	if maxTasks <= 0 {
		maxTasks = 1
	}
	agent := &models.Agent{
		ID:                 cfg.ID,
		Name:               cfg.Name,
		Domain:             cfg.Domain,
		Capabilities:       cfg.Capabilities,
		MaxConcurrentTasks: maxTasks,
	}
	m.registry.Register(agent)
	m.emit(AgentEventCreated, agent.ID, agent.Name)
	return agent, nil
}

// RemoveAgent unregisters an agent and unbinds its executor.
func (m *Manager) RemoveAgent(id string) {
	m.mu.Lock()
	delete(m.executors, id)
	delete(m.active, id)
	m.mu.Unlock()
	m.registry.Unregister(id)
}

// Executor returns the executor bound to the agent, or nil if none.
func (m *Manager) Executor(id string) Executor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.executors[id]
}

// StartAgent moves a stopped or errored agent back to idle.
func (m *Manager) StartAgent(id string) error {
	if m.registry.Get(id) == nil {
		return ErrAgentNotFound
	}
	m.registry.UpdateStatus(id, models.AgentStatusIdle)
	m.emit(AgentEventStarted, id, "")
	return nil
}

// StopAgent moves an agent to stopped. Returns ErrAgentBusy if the agent
// is currently busy.
func (m *Manager) StopAgent(id string) error {
	agent := m.registry.Get(id)
	if agent == nil {
		return ErrAgentNotFound
	}
	if agent.Status == models.AgentStatusBusy {
		return ErrAgentBusy
	}
	m.registry.UpdateStatus(id, models.AgentStatusStopped)
	m.emit(AgentEventStopped, id, "")
	return nil
}

// AssignTask claims the agent for a task: the agent must be idle with a
// free slot. On success the agent becomes busy, the task is recorded in
// its active set, and the task's AssignedAgentID is stamped.
func (m *Manager) AssignTask(agentID string, task *models.Task) error {
	agent := m.registry.Get(agentID)
	if agent == nil {
		return ErrAgentNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if agent.Status != models.AgentStatusIdle {
		return ErrAgentNotIdle
	}
	if agent.CurrentTasks >= agent.MaxConcurrentTasks {
		return ErrMaxConcurrentTasks
	}

	if m.active[agentID] == nil {
		m.active[agentID] = make(map[string]struct{})
	}
	m.active[agentID][task.ID] = struct{}{}
	task.AssignedAgentID = agentID

	m.registry.IncrementTaskCount(agentID)
	m.registry.UpdateStatus(agentID, models.AgentStatusBusy)
	return nil
}

// CompleteTask records a successful task for the agent. The task is
// removed from the agent's active set; if the set becomes empty the agent
// returns to idle. The executor's completion hook is invoked if present.
func (m *Manager) CompleteTask(agentID, taskID string, output map[string]any) {
	hook := m.settleTask(agentID, taskID, models.AgentStatusIdle)
	if h, ok := hook.(CompletionHook); ok {
		h.OnTaskComplete(taskID, output)
	}
}

// FailTask records a failed task for the agent. The task is removed from
// the agent's active set; if the set becomes empty the agent moves to
// error status. The executor's failure hook is invoked if present.
func (m *Manager) FailTask(agentID, taskID string, taskErr error) {
	hook := m.settleTask(agentID, taskID, models.AgentStatusError)
	if h, ok := hook.(FailureHook); ok {
		h.OnTaskFail(taskID, taskErr)
	}
}

// ReleaseTask removes the task from the agent's active set without
// invoking executor hooks, returning the agent to idle when its set
// drains. Used by the orchestrator when a failed attempt will be retried:
// the agent gives up the slot but is not considered errored.
func (m *Manager) ReleaseTask(agentID, taskID string) {
	m.settleTask(agentID, taskID, models.AgentStatusIdle)
}

// settleTask removes the task from the agent's active set and updates the
// agent status when its set drains. Returns the agent's executor so the
// caller can invoke optional hooks outside the lock.
func (m *Manager) settleTask(agentID, taskID string, drained models.AgentStatus) Executor {
	m.mu.Lock()
	set := m.active[agentID]
	if _, ok := set[taskID]; !ok {
		// Unknown task or agent; nothing to settle.
		m.mu.Unlock()
		return nil
	}
	delete(set, taskID)
	empty := len(set) == 0
	exec := m.executors[agentID]
	m.mu.Unlock()

	m.registry.DecrementTaskCount(agentID)
	if empty {
		m.registry.UpdateStatus(agentID, drained)
	}
	return exec
}

// ActiveTaskCount returns the number of tasks in the agent's active set.
func (m *Manager) ActiveTaskCount(agentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active[agentID])
}

// Available returns agents eligible for the required capabilities.
func (m *Manager) Available(required []string) []*models.Agent {
	return m.registry.FindAvailable(required)
}

// CapableAgents returns agents whose capability set covers the required
// ones and that can still take work eventually: idle or busy, regardless
// of load. Agents in error or stopped status are excluded; they never
// free up on their own, so counting them would make a waiting task wait
// forever. Used to distinguish "every matching agent is busy" from "no
// matching agent can serve this".
func (m *Manager) CapableAgents(required []string) []*models.Agent {
	var out []*models.Agent
	for _, a := range m.registry.All() {
		if a.Status != models.AgentStatusIdle && a.Status != models.AgentStatusBusy {
			continue
		}
		if a.HasCapabilities(required) {
			out = append(out, a)
		}
	}
	return out
}

// SelectBestAgent scores each available agent and returns the highest
// scorer, or nil if none are available. Scoring favors least-loaded,
// fully-capable agents: base 100, minus load factor x 50, plus 30 when
// the agent has every required capability, plus a small bonus for agents
// declaring a domain. Ties are broken by iteration order.
func (m *Manager) SelectBestAgent(required []string) *models.Agent {
	candidates := m.registry.FindAvailable(required)
	if len(candidates) == 0 {
		return nil
	}

	var best *models.Agent
	bestScore := -1.0
	for _, a := range candidates {
		score := 100.0
		if a.MaxConcurrentTasks > 0 {
			load := float64(a.CurrentTasks) / float64(a.MaxConcurrentTasks)
			score -= load * 50
		}
		if a.HasCapabilities(required) {
			score += 30
		}
		if a.Domain != "" {
			score += 10
		}
		if score > bestScore {
			bestScore = score
			best = a
		}
	}
	return best
}
