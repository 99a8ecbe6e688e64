package main

import (
	"context"
	"testing"
	"time"

	"github.com/hmstead/conductor/pkg/models"
)

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"env=production", "version=1.4.2", "empty="})
	if err != nil {
		t.Fatalf("parseVars failed: %v", err)
	}

	if vars["env"] != "production" {
		t.Errorf("expected env=production, got %v", vars["env"])
	}
	if vars["version"] != "1.4.2" {
		t.Errorf("expected version=1.4.2, got %v", vars["version"])
	}
	if vars["empty"] != "" {
		t.Errorf("expected empty value, got %v", vars["empty"])
	}
}

func TestParseVarsInvalid(t *testing.T) {
	cases := []string{"noequals", "=value"}
	for _, pair := range cases {
		if _, err := parseVars([]string{pair}); err == nil {
			t.Errorf("expected error for %q", pair)
		}
	}
}

func TestParseVarsEmpty(t *testing.T) {
	vars, err := parseVars(nil)
	if err != nil {
		t.Fatalf("parseVars failed: %v", err)
	}
	if vars != nil {
		t.Errorf("expected nil map, got %v", vars)
	}
}

func TestSimulatedExecutorEchoesInput(t *testing.T) {
	exec := &simulatedExecutor{worker: "builder-1", baseDelay: time.Millisecond}
	task := &models.Task{
		ID:    "t1",
		Input: map[string]any{"target": "app"},
	}

	out, err := exec.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if out["target"] != "app" {
		t.Errorf("expected input echoed, got %v", out["target"])
	}
	if out["worker"] != "builder-1" {
		t.Errorf("expected worker builder-1, got %v", out["worker"])
	}
}

func TestSimulatedExecutorForcedFailure(t *testing.T) {
	exec := &simulatedExecutor{worker: "builder-1", baseDelay: time.Millisecond}
	task := &models.Task{
		ID:    "t1",
		Input: map[string]any{"fail": true},
	}

	if _, err := exec.Execute(context.Background(), task); err == nil {
		t.Error("expected simulated failure")
	}
}

func TestSimulatedExecutorFailAttempts(t *testing.T) {
	exec := &simulatedExecutor{worker: "builder-1", baseDelay: time.Millisecond}
	task := &models.Task{
		ID:    "t1",
		Input: map[string]any{"fail_attempts": 2},
	}

	if _, err := exec.Execute(context.Background(), task); err == nil {
		t.Error("expected failure on first attempt")
	}

	task.RetryCount = 2
	if _, err := exec.Execute(context.Background(), task); err != nil {
		t.Errorf("expected success after retries, got %v", err)
	}
}

func TestSimulatedExecutorRespectsContext(t *testing.T) {
	exec := &simulatedExecutor{worker: "builder-1", baseDelay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	task := &models.Task{ID: "t1"}
	if _, err := exec.Execute(ctx, task); err == nil {
		t.Error("expected context error")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{2 * time.Hour, "2h"},
		{2*time.Hour + 30*time.Minute, "2h30m"},
		{48 * time.Hour, "2d"},
	}

	for _, tc := range cases {
		if got := formatDuration(tc.d); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
