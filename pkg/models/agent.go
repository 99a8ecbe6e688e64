package models

import "time"

// AgentStatus represents the current state of an agent.
type AgentStatus string

const (
	// AgentStatusIdle indicates the agent is available for work.
	AgentStatusIdle AgentStatus = "idle"
	// AgentStatusBusy indicates the agent is executing one or more tasks.
	AgentStatusBusy AgentStatus = "busy"
	// AgentStatusError indicates the agent's last task failed or the agent
	// was found in an inconsistent state.
	AgentStatusError AgentStatus = "error"
	// AgentStatusStopped indicates the agent has been shut down.
	AgentStatusStopped AgentStatus = "stopped"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusIdle, AgentStatusBusy, AgentStatusError, AgentStatusStopped:
		return true
	default:
		return false
	}
}

// Capability is a named skill an agent advertises. Tasks are matched to
// agents by capability-set inclusion.
type Capability struct {
	// Name is the capability identifier used for matching.
	Name string `json:"name"`
	// Description explains what the capability does.
	Description string `json:"description,omitempty"`
	// InputSchema optionally documents expected input fields.
	InputSchema map[string]string `json:"input_schema,omitempty"`
	// OutputSchema optionally documents produced output fields.
	OutputSchema map[string]string `json:"output_schema,omitempty"`
}

// Agent represents a registered unit of execution capability.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// Name is the human-readable name of the agent.
	Name string `json:"name"`
	// Domain groups agents by the area they operate in.
	Domain string `json:"domain,omitempty"`
	// Capabilities lists the skills this agent advertises.
	Capabilities []Capability `json:"capabilities"`
	// Status is the current state of the agent.
	Status AgentStatus `json:"status"`
	// CurrentTasks is the number of tasks currently assigned.
	CurrentTasks int `json:"current_tasks"`
	// MaxConcurrentTasks caps how many tasks may be assigned at once.
	MaxConcurrentTasks int `json:"max_concurrent_tasks"`
	// CreatedAt is when the agent was registered.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the agent record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCapability returns true if the agent advertises the named capability.
func (a *Agent) HasCapability(name string) bool {
	for _, c := range a.Capabilities {
		if c.Name == name {
			return true
		}
	}
	return false
}

// HasCapabilities returns true if the agent advertises every capability
// in the required set.
func (a *Agent) HasCapabilities(required []string) bool {
	for _, name := range required {
		if !a.HasCapability(name) {
			return false
		}
	}
	return true
}

// AgentConfig describes an agent to be created by the manager.
type AgentConfig struct {
	// ID is the unique identifier for the agent. Required.
	ID string `json:"id"`
	// Name is the human-readable name of the agent.
	Name string `json:"name"`
	// Domain groups agents by the area they operate in.
	Domain string `json:"domain,omitempty"`
	// Capabilities lists the skills the agent advertises.
	Capabilities []Capability `json:"capabilities"`
	// MaxConcurrentTasks caps concurrent assignments. Defaults to 1.
	MaxConcurrentTasks int `json:"max_concurrent_tasks,omitempty"`
}
