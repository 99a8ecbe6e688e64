package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/hmstead/conductor/internal/config"
	"github.com/hmstead/conductor/internal/manager"
	"github.com/hmstead/conductor/internal/orchestrator"
	"github.com/hmstead/conductor/internal/registry"
	"github.com/hmstead/conductor/internal/state"
	"github.com/hmstead/conductor/internal/workflow"
	"github.com/hmstead/conductor/pkg/models"
)

// timeRound keeps printed durations readable.
const timeRound = 10 * time.Millisecond

var (
	runVars        []string
	runWorkers     int
	runWatch       bool
	runApprover    string
	runAutoApprove bool
)

var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "Run a workflow against the built-in agent fleet",
	Long: `Run a workflow file against the simulated agent fleet.

The workflow is validated, registered, and executed. Task nodes become
orchestrator tasks matched to agents by capability; events stream to
stdout as execution progresses.

Human approval gates pause the run and prompt on stdin unless
--auto-approve is set.

With --watch, the workflow re-runs whenever the file changes.

Variables can be seeded with repeated --var flags:

  conductor run deploy.yaml --var env=production --var version=1.4.2`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Execution variable as key=value (repeatable)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Extra general-purpose workers to register")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Re-run the workflow when the file changes")
	runCmd.Flags().StringVar(&runApprover, "approver", "operator", "Identity used to resolve approval gates")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "Approve all approval gates without prompting")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	vars, err := parseVars(runVars)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.execute(ctx, path, vars); err != nil {
		if runWatch && ctx.Err() == nil {
			// Watch mode keeps going so a broken edit can be fixed.
			color.Red("run failed: %v", err)
		} else {
			return err
		}
	}

	if !runWatch {
		return nil
	}
	return rt.watch(ctx, path, vars)
}

// runtime holds the wired orchestration stack for a run.
type runtime struct {
	cfg    *config.Config
	db     *state.DB
	logger *orchestrator.DebugLogger
	mgr    *manager.Manager
	orch   *orchestrator.Orchestrator
	engine *workflow.Engine
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	if cfg.State.Enabled {
		dbPath := cfg.State.Path
		if dbPath == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("get working directory: %w", err)
			}
			dbPath = state.DefaultDBPath(cwd)
		}
		db, err := state.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open state database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		rt.db = db
	}

	logger := orchestrator.NopLogger()
	if cfg.Logging.Debug {
		logPath := cfg.Logging.Path
		if logPath == "" {
			logPath = filepath.Join(".conductor", "debug.log")
		}
		l, err := orchestrator.NewDebugLogger(logPath)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open debug log: %w", err)
		}
		logger = l
	}
	rt.logger = logger

	rt.mgr = manager.New(registry.New())
	if err := registerFleet(rt.mgr, cfg, runWorkers); err != nil {
		rt.Close()
		return nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithConfig(orchestrator.Config{
			MaxConcurrentTasks: cfg.Orchestrator.MaxConcurrentTasks,
			RetryDelay:         cfg.Orchestrator.RetryDelay,
			DefaultTaskTimeout: cfg.Orchestrator.TaskTimeout,
			PollInterval:       cfg.Orchestrator.PollInterval,
			EventBuffer:        cfg.Orchestrator.EventBuffer,
		}),
		orchestrator.WithLogger(logger),
	}
	if rt.db != nil {
		opts = append(opts, orchestrator.WithStore(rt.db))
	}
	rt.orch = orchestrator.New(rt.mgr, opts...)

	engineOpts := []workflow.EngineOption{}
	if rt.db != nil {
		engineOpts = append(engineOpts,
			workflow.WithExecutionStore(rt.db),
			workflow.WithApprovalStore(rt.db))
	}
	rt.engine = workflow.NewEngine(rt.orch, engineOpts...)

	go rt.orch.Run(ctx)
	go rt.mgr.RunHealthChecks(ctx, cfg.Agents.HealthCheckInterval)
	go printEvents(rt.orch.Events())
	go rt.consumeEngineEvents(ctx)

	return rt, nil
}

// Close tears the stack down in dependency order.
func (rt *runtime) Close() {
	if rt.engine != nil {
		rt.engine.Stop()
	}
	if rt.orch != nil {
		rt.orch.Stop()
	}
	if rt.db != nil {
		rt.db.Close()
	}
}

// execute loads, registers, and runs the workflow at path, then prints a
// summary of the finished execution.
func (rt *runtime) execute(ctx context.Context, path string, vars map[string]any) error {
	w, err := workflow.Load(path)
	if err != nil {
		return err
	}
	if err := rt.engine.RegisterWorkflow(w); err != nil {
		return err
	}

	name := w.Name
	if name == "" {
		name = w.ID
	}
	fmt.Printf("Running workflow %q (%d nodes)\n\n", name, len(w.Nodes))

	exec, err := rt.engine.Execute(w.ID, vars)
	if err != nil {
		return fmt.Errorf("start execution: %w", err)
	}

	result, err := rt.engine.Wait(ctx, exec.ID)
	if err != nil {
		if ctx.Err() != nil {
			rt.engine.CancelExecution(exec.ID)
			return fmt.Errorf("execution interrupted: %w", ctx.Err())
		}
		return err
	}

	printSummary(result, rt.orch.Stats())
	if result.Status == models.ExecutionFailed {
		return fmt.Errorf("execution %s failed: %s", result.ID, result.Error)
	}
	return nil
}

// consumeEngineEvents prints engine events and resolves approval gates.
func (rt *runtime) consumeEngineEvents(ctx context.Context) {
	for ev := range rt.engine.Events() {
		printEvent(ev)
		if ev.Type == orchestrator.EventApprovalRequired {
			go rt.resolveApproval(ctx, ev.ApprovalID, ev.Message)
		}
	}
}

// resolveApproval decides an approval gate, either automatically or by
// prompting on stdin.
func (rt *runtime) resolveApproval(ctx context.Context, approvalID, prompt string) {
	decision := workflow.Decision{Approved: true, ApprovedBy: runApprover}

	if !runAutoApprove {
		fmt.Printf("\nApproval required: %s\n", prompt)
		fmt.Printf("Approve? [y/N]: ")
		answer := readLine(ctx)
		decision.Approved = answer == "y" || answer == "yes"
		if !decision.Approved {
			decision.Comment = "rejected at prompt"
		}
	}

	if err := rt.engine.ResolveApproval(approvalID, decision); err != nil {
		color.Red("resolve approval %s: %v", approvalID, err)
	}
}

// readLine reads one line from stdin, returning "" if the context is
// cancelled first.
func readLine(ctx context.Context) string {
	lines := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			lines <- strings.ToLower(strings.TrimSpace(scanner.Text()))
			return
		}
		lines <- ""
	}()
	select {
	case <-ctx.Done():
		return ""
	case line := <-lines:
		return line
	}
}

// watch re-runs the workflow whenever the file is written.
func (rt *runtime) watch(ctx context.Context, path string, vars map[string]any) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors often replace
	// the file on save, which drops a direct watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	fmt.Printf("\nWatching %s for changes (Ctrl-C to stop)\n", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			changed, _ := filepath.Abs(event.Name)
			if changed != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fmt.Printf("\n%s changed, re-running\n\n", path)
			if err := rt.execute(ctx, path, vars); err != nil && ctx.Err() == nil {
				color.Red("run failed: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			color.Red("watch error: %v", err)
		}
	}
}

// parseVars turns key=value flags into an execution variable map.
func parseVars(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

// printSummary prints the final state of an execution.
func printSummary(exec *models.Execution, stats models.TaskStats) {
	fmt.Println()
	switch exec.Status {
	case models.ExecutionCompleted:
		color.Green("Execution %s completed", exec.ID)
	case models.ExecutionFailed:
		color.Red("Execution %s failed: %s", exec.ID, exec.Error)
	default:
		fmt.Printf("Execution %s: %s\n", exec.ID, exec.Status)
	}

	if exec.CompletedAt != nil {
		fmt.Printf("  Duration: %s\n", exec.CompletedAt.Sub(exec.StartedAt).Round(timeRound))
	}
	fmt.Printf("  Tasks: %d total, %d completed, %d failed\n",
		stats.Total, stats.Completed, stats.Failed)

	if len(exec.NodeResults) > 0 {
		fmt.Println("  Node results:")
		for nodeID, result := range exec.NodeResults {
			fmt.Printf("    %s: %v\n", nodeID, result)
		}
	}
}
