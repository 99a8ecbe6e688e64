package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hmstead/conductor/internal/config"
	"github.com/hmstead/conductor/internal/manager"
	"github.com/hmstead/conductor/pkg/models"
)

// agentSpec describes one agent of the built-in fleet.
type agentSpec struct {
	id           string
	name         string
	domain       string
	capabilities []string
	maxTasks     int
	baseDelay    time.Duration
}

// defaultFleet is the simulated agent fleet that run mode registers. Each
// agent sleeps for a short simulated work period and echoes its input back
// as output.
var defaultFleet = []agentSpec{
	{"builder-1", "Builder", "build", []string{"compute", "build"}, 2, 50 * time.Millisecond},
	{"tester-1", "Tester", "test", []string{"compute", "test"}, 2, 50 * time.Millisecond},
	{"deployer-1", "Deployer", "deploy", []string{"compute", "deploy", "notify"}, 1, 75 * time.Millisecond},
	{"analyst-1", "Analyst", "analysis", []string{"compute", "analyze"}, 1, 100 * time.Millisecond},
}

// simulatedExecutor performs pretend work: it sleeps for a delay and
// returns the task input merged with worker metadata. Input keys adjust
// the simulation:
//
//	duration: override the sleep, parsed with time.ParseDuration
//	fail:     force an execution failure
//	fail_attempts: fail this many attempts before succeeding
type simulatedExecutor struct {
	worker    string
	baseDelay time.Duration
}

func (s *simulatedExecutor) Execute(ctx context.Context, task *models.Task) (map[string]any, error) {
	delay := s.baseDelay
	if raw, ok := task.Input["duration"].(string); ok {
		if d, err := time.ParseDuration(raw); err == nil {
			delay = d
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(delay):
	}

	if fail, ok := task.Input["fail"].(bool); ok && fail {
		return nil, errors.New("simulated failure")
	}
	if n, ok := asInt(task.Input["fail_attempts"]); ok && task.RetryCount < n {
		return nil, fmt.Errorf("simulated failure (attempt %d of %d)", task.RetryCount+1, n)
	}

	out := make(map[string]any, len(task.Input)+2)
	for k, v := range task.Input {
		out[k] = v
	}
	out["worker"] = s.worker
	out["finished_at"] = time.Now().Format(time.RFC3339)
	return out, nil
}

// asInt normalizes the numeric types YAML and JSON decoding produce.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// registerFleet creates the built-in fleet on the manager, plus extra
// general-purpose workers when requested.
func registerFleet(mgr *manager.Manager, cfg *config.Config, extraWorkers int) error {
	for _, spec := range defaultFleet {
		if err := createFleetAgent(mgr, cfg, spec); err != nil {
			return err
		}
	}
	for i := 0; i < extraWorkers; i++ {
		spec := agentSpec{
			id:           fmt.Sprintf("worker-%d", i+1),
			name:         fmt.Sprintf("Worker %d", i+1),
			domain:       "general",
			capabilities: []string{"compute"},
			maxTasks:     cfg.Agents.MaxConcurrentTasks,
			baseDelay:    50 * time.Millisecond,
		}
		if err := createFleetAgent(mgr, cfg, spec); err != nil {
			return err
		}
	}
	return nil
}

func createFleetAgent(mgr *manager.Manager, cfg *config.Config, spec agentSpec) error {
	caps := make([]models.Capability, len(spec.capabilities))
	for i, name := range spec.capabilities {
		caps[i] = models.Capability{Name: name}
	}

	maxTasks := spec.maxTasks
	if maxTasks <= 0 {
		maxTasks = cfg.Agents.MaxConcurrentTasks
	}

	_, err := mgr.CreateAgent(models.AgentConfig{
		ID:                 spec.id,
		Name:               spec.name,
		Domain:             spec.domain,
		Capabilities:       caps,
		MaxConcurrentTasks: maxTasks,
	}, &simulatedExecutor{worker: spec.id, baseDelay: spec.baseDelay})
	if err != nil {
		return fmt.Errorf("create agent %s: %w", spec.id, err)
	}
	return nil
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the built-in agent fleet",
	Long: `List the simulated agents that 'conductor run' registers, with
their domains and capabilities.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bold := color.New(color.Bold)
		for _, spec := range defaultFleet {
			bold.Printf("%s", spec.id)
			fmt.Printf("  domain=%s  max_tasks=%d\n", spec.domain, spec.maxTasks)
			fmt.Printf("    capabilities: %s\n", strings.Join(spec.capabilities, ", "))
		}
		return nil
	},
}
