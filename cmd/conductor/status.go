package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hmstead/conductor/internal/state"
	"github.com/hmstead/conductor/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show persisted orchestration state",
	Long: `Display the persisted state of past runs.

Shows:
  - Recent tasks by status
  - Workflow executions
  - Pending human approvals

Requires state persistence (state.enabled in config); runs without it
leave nothing to report.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dbPath := cfg.State.Path
	if dbPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		dbPath = state.DefaultDBPath(cwd)
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No persisted state. Enable state.enabled and run 'conductor run <workflow>' first.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if err := displayTasks(db); err != nil {
		return err
	}
	fmt.Println()
	if err := displayExecutions(db); err != nil {
		return err
	}
	fmt.Println()
	return displayApprovals(db)
}

func displayTasks(db *state.DB) error {
	counts := map[models.TaskStatus]int{}
	statuses := []models.TaskStatus{
		models.TaskStatusPending,
		models.TaskStatusRunning,
		models.TaskStatusCompleted,
		models.TaskStatusFailed,
		models.TaskStatusCancelled,
	}

	var recent []models.Task
	for _, status := range statuses {
		tasks, err := db.ListTasks(status)
		if err != nil {
			return fmt.Errorf("list %s tasks: %w", status, err)
		}
		counts[status] = len(tasks)
		if status == models.TaskStatusRunning || status == models.TaskStatusFailed {
			recent = append(recent, tasks...)
		}
	}

	fmt.Printf("Tasks: %d pending, %d running, %d completed, %d failed, %d cancelled\n",
		counts[models.TaskStatusPending],
		counts[models.TaskStatusRunning],
		counts[models.TaskStatusCompleted],
		counts[models.TaskStatusFailed],
		counts[models.TaskStatusCancelled])

	for _, t := range recent {
		line := fmt.Sprintf("  %s: %q [%s]", t.ID, t.Name, t.Status)
		if t.Error != "" {
			line += " - " + t.Error
		}
		fmt.Println(line)
	}
	return nil
}

func displayExecutions(db *state.DB) error {
	executions, err := db.ListExecutions("")
	if err != nil {
		return fmt.Errorf("list executions: %w", err)
	}

	if len(executions) == 0 {
		fmt.Println("Executions: none")
		return nil
	}

	// Executions are ordered oldest first; keep the five most recent.
	if len(executions) > 5 {
		executions = executions[len(executions)-5:]
	}

	fmt.Println("Recent Executions:")
	for _, e := range executions {
		elapsed := formatDuration(time.Since(e.StartedAt))
		line := fmt.Sprintf("  %s: %s [%s] (%s ago)", e.ID, e.WorkflowID, e.Status, elapsed)
		if e.Error != "" {
			line += " - " + e.Error
		}
		fmt.Println(line)
	}
	return nil
}

func displayApprovals(db *state.DB) error {
	approvals, err := db.ListPendingApprovals()
	if err != nil {
		return fmt.Errorf("list pending approvals: %w", err)
	}

	if len(approvals) == 0 {
		fmt.Println("Pending Approvals: none")
		return nil
	}

	fmt.Println("Pending Approvals:")
	for _, a := range approvals {
		elapsed := formatDuration(time.Since(a.CreatedAt))
		fmt.Printf("  %s: %q (execution %s, waiting %s)\n", a.ID, a.Prompt, a.ExecutionID, elapsed)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
