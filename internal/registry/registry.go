// Package registry provides the source of truth for agent records and
// capability lookup.
package registry

import (
	"sync"
	"time"

	"github.com/hmstead/conductor/pkg/models"
)

// Registry stores agent records and maintains a capability index for
// matching tasks to agents. All methods are safe for concurrent use.
//
// Methods taking an agent ID never return an error for missing agents;
// they are no-ops or return nil/empty results.
type Registry struct {
	// agents maps agent IDs to agent records.
	agents map[string]*models.Agent
	// capIndex maps capability names to the set of agent IDs advertising
	// that capability. Kept consistent with each agent's capability list.
	capIndex map[string]map[string]struct{}
	// mu protects all fields.
	mu sync.RWMutex
}

// New creates a new empty Registry.
func New() *Registry {
	return &Registry{
		agents:   make(map[string]*models.Agent),
		capIndex: make(map[string]map[string]struct{}),
	}
}

// Register inserts an agent with initial status idle and a zero task count,
// and indexes each of its capabilities. Registering an existing ID replaces
// the previous record and its index entries.
func (r *Registry) Register(agent *models.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Last write wins: drop stale index entries for a re-registered ID.
	if prev, ok := r.agents[agent.ID]; ok {
		r.removeFromIndexLocked(prev)
	}

	now := time.Now()
	agent.Status = models.AgentStatusIdle
	agent.CurrentTasks = 0
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now

	r.agents[agent.ID] = agent
	for _, cap := range agent.Capabilities {
		if r.capIndex[cap.Name] == nil {
			r.capIndex[cap.Name] = make(map[string]struct{})
		}
		r.capIndex[cap.Name][agent.ID] = struct{}{}
	}
}

// Unregister removes an agent and all its capability index entries.
// Unknown IDs are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return
	}
	r.removeFromIndexLocked(agent)
	delete(r.agents, id)
}

// removeFromIndexLocked drops all capability index entries for an agent.
// Caller must hold r.mu.
func (r *Registry) removeFromIndexLocked(agent *models.Agent) {
	for _, cap := range agent.Capabilities {
		set := r.capIndex[cap.Name]
		delete(set, agent.ID)
		if len(set) == 0 {
			delete(r.capIndex, cap.Name)
		}
	}
}

// cloneLocked returns a copy of an agent record. Lookups hand out copies
// so callers never observe a record mid-update; all writes go through the
// registry's own methods. Caller must hold r.mu.
func cloneLocked(a *models.Agent) *models.Agent {
	cp := *a
	cp.Capabilities = append([]models.Capability(nil), a.Capabilities...)
	return &cp
}

// Get returns a copy of the agent with the given ID, or nil if not
// registered.
func (r *Registry) Get(id string) *models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil
	}
	return cloneLocked(a)
}

// All returns copies of all registered agents.
func (r *Registry) All() []*models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]*models.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, cloneLocked(a))
	}
	return agents
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// UpdateStatus sets the agent's status. It has no side effects on task
// counts. Unknown IDs are a no-op.
func (r *Registry) UpdateStatus(id string, status models.AgentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return
	}
	agent.Status = status
	agent.UpdatedAt = time.Now()
}

// IncrementTaskCount adds one to the agent's current task count.
func (r *Registry) IncrementTaskCount(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return
	}
	agent.CurrentTasks++
	agent.UpdatedAt = time.Now()
}

// DecrementTaskCount subtracts one from the agent's current task count,
// bounded at zero.
func (r *Registry) DecrementTaskCount(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return
	}
	if agent.CurrentTasks > 0 {
		agent.CurrentTasks--
	}
	agent.UpdatedAt = time.Now()
}

// FindByCapability returns all agents indexed under the given capability
// name, in unspecified order.
func (r *Registry) FindByCapability(name string) []*models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var agents []*models.Agent
	for id := range r.capIndex[name] {
		if a, ok := r.agents[id]; ok {
			agents = append(agents, cloneLocked(a))
		}
	}
	return agents
}

// FindAvailable returns idle agents with free capacity whose capability set
// is a superset of the required set. The superset check is made against the
// agent record itself rather than the index, since the index only maps
// single capabilities.
func (r *Registry) FindAvailable(required []string) []*models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var agents []*models.Agent
	for _, a := range r.agents {
		if a.Status != models.AgentStatusIdle {
			continue
		}
		if a.CurrentTasks >= a.MaxConcurrentTasks {
			continue
		}
		if !a.HasCapabilities(required) {
			continue
		}
		agents = append(agents, cloneLocked(a))
	}
	return agents
}
