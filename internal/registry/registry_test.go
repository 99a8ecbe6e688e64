package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmstead/conductor/pkg/models"
)

func newAgent(id string, caps ...string) *models.Agent {
	a := &models.Agent{
		ID:                 id,
		Name:               "agent " + id,
		MaxConcurrentTasks: 1,
	}
	for _, c := range caps {
		a.Capabilities = append(a.Capabilities, models.Capability{Name: c})
	}
	return a
}

func TestRegister_IndexesCapabilities(t *testing.T) {
	r := New()
	r.Register(newAgent("a1", "scrape", "parse"))
	r.Register(newAgent("a2", "parse"))

	parsers := r.FindByCapability("parse")
	assert.Len(t, parsers, 2)

	scrapers := r.FindByCapability("scrape")
	require.Len(t, scrapers, 1)
	assert.Equal(t, "a1", scrapers[0].ID)

	assert.Empty(t, r.FindByCapability("render"))
}

func TestRegister_InitialState(t *testing.T) {
	r := New()
	a := newAgent("a1", "x")
	a.Status = models.AgentStatusBusy
	a.CurrentTasks = 3
	r.Register(a)

	got := r.Get("a1")
	require.NotNil(t, got)
	assert.Equal(t, models.AgentStatusIdle, got.Status)
	assert.Equal(t, 0, got.CurrentTasks)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRegister_LastWriteWins(t *testing.T) {
	r := New()
	r.Register(newAgent("a1", "scrape"))
	r.Register(newAgent("a1", "parse"))

	// Stale index entries for the first registration must be gone.
	assert.Empty(t, r.FindByCapability("scrape"))
	assert.Len(t, r.FindByCapability("parse"), 1)
	assert.Equal(t, 1, r.Count())
}

func TestUnregister_RemovesIndexEntries(t *testing.T) {
	r := New()
	r.Register(newAgent("a1", "scrape", "parse"))
	r.Unregister("a1")

	assert.Nil(t, r.Get("a1"))
	assert.Empty(t, r.FindByCapability("scrape"))
	assert.Empty(t, r.FindByCapability("parse"))

	// Unknown IDs are a no-op.
	r.Unregister("missing")
}

func TestDecrementTaskCount_BoundedAtZero(t *testing.T) {
	r := New()
	r.Register(newAgent("a1", "x"))

	r.DecrementTaskCount("a1")
	assert.Equal(t, 0, r.Get("a1").CurrentTasks)

	r.IncrementTaskCount("a1")
	r.IncrementTaskCount("a1")
	r.DecrementTaskCount("a1")
	assert.Equal(t, 1, r.Get("a1").CurrentTasks)
}

func TestUpdateStatus_NoTaskCountSideEffects(t *testing.T) {
	r := New()
	r.Register(newAgent("a1", "x"))
	r.IncrementTaskCount("a1")

	r.UpdateStatus("a1", models.AgentStatusBusy)
	got := r.Get("a1")
	assert.Equal(t, models.AgentStatusBusy, got.Status)
	assert.Equal(t, 1, got.CurrentTasks)

	// Unknown IDs are a no-op.
	r.UpdateStatus("missing", models.AgentStatusError)
}

func TestLookupsReturnCopies(t *testing.T) {
	r := New()
	r.Register(newAgent("a1", "parse"))

	got := r.Get("a1")
	got.Status = models.AgentStatusError
	got.CurrentTasks = 7
	got.Capabilities[0].Name = "mangled"

	fresh := r.Get("a1")
	assert.Equal(t, models.AgentStatusIdle, fresh.Status)
	assert.Equal(t, 0, fresh.CurrentTasks)
	assert.Equal(t, "parse", fresh.Capabilities[0].Name)

	all := r.All()
	require.Len(t, all, 1)
	all[0].Status = models.AgentStatusStopped
	assert.Equal(t, models.AgentStatusIdle, r.Get("a1").Status)

	avail := r.FindAvailable([]string{"parse"})
	require.Len(t, avail, 1)
	avail[0].CurrentTasks = 99
	assert.Len(t, r.FindAvailable([]string{"parse"}), 1)
}

func TestFindAvailable(t *testing.T) {
	r := New()

	idle := newAgent("idle", "scrape", "parse")
	r.Register(idle)

	busy := newAgent("busy", "scrape", "parse")
	r.Register(busy)
	r.UpdateStatus("busy", models.AgentStatusBusy)

	full := newAgent("full", "scrape", "parse")
	r.Register(full)
	r.IncrementTaskCount("full")

	partial := newAgent("partial", "scrape")
	r.Register(partial)

	tests := []struct {
		name     string
		required []string
		wantIDs  []string
	}{
		{"single capability", []string{"scrape"}, []string{"idle", "partial"}},
		{"superset required", []string{"scrape", "parse"}, []string{"idle"}},
		{"unknown capability", []string{"render"}, nil},
		{"no requirements matches all idle with capacity", nil, []string{"idle", "partial"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.FindAvailable(tt.required)
			var ids []string
			for _, a := range got {
				ids = append(ids, a.ID)
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)
		})
	}
}
