package manager

import "errors"

// Sentinel errors returned by agent lifecycle operations.
var (
	// ErrAgentNotFound indicates the agent ID is not registered.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrAgentNotIdle indicates the agent is not in the idle state.
	ErrAgentNotIdle = errors.New("agent is not idle")
	// ErrAgentBusy indicates the agent cannot be stopped while busy.
	ErrAgentBusy = errors.New("agent is busy")
	// ErrMaxConcurrentTasks indicates the agent has no free task slots.
	ErrMaxConcurrentTasks = errors.New("max concurrent tasks reached")
	// ErrDuplicateExecutor indicates an executor is already registered
	// for the agent ID.
	ErrDuplicateExecutor = errors.New("executor already registered for agent")
	// ErrNoAvailableAgents indicates no registered agent can take the task.
	ErrNoAvailableAgents = errors.New("no available agents")
)
