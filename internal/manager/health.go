package manager

import (
	"context"
	"time"

	"github.com/hmstead/conductor/pkg/models"
)

// HealthCheck scans for orphaned agents: any agent marked busy whose
// active-task set is empty is forced to error status. This guards against
// state left inconsistent by a crashed task. Returns the IDs of agents
// that were orphaned.
func (m *Manager) HealthCheck() []string {
	var orphaned []string
	for _, agent := range m.registry.All() {
		if agent.Status != models.AgentStatusBusy {
			continue
		}
		m.mu.RLock()
		empty := len(m.active[agent.ID]) == 0
		m.mu.RUnlock()
		if empty {
			m.registry.UpdateStatus(agent.ID, models.AgentStatusError)
			m.emit(AgentEventOrphaned, agent.ID, "busy agent with no active tasks")
			orphaned = append(orphaned, agent.ID)
		}
	}
	return orphaned
}

// RunHealthChecks runs HealthCheck on the given interval until the context
// is cancelled. Intended to be started in its own goroutine.
func (m *Manager) RunHealthChecks(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.HealthCheck()
		}
	}
}
