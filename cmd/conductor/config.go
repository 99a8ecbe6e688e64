package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hmstead/conductor/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify conductor configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/conductor/config.yaml
Project-specific overrides can be placed in .conductor.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("orchestrator.max_concurrent_tasks: %d\n", cfg.Orchestrator.MaxConcurrentTasks)
	fmt.Printf("orchestrator.retry_delay: %s\n", cfg.Orchestrator.RetryDelay)
	fmt.Printf("orchestrator.task_timeout: %s\n", cfg.Orchestrator.TaskTimeout)
	fmt.Printf("orchestrator.poll_interval: %s\n", cfg.Orchestrator.PollInterval)
	fmt.Printf("orchestrator.event_buffer: %d\n", cfg.Orchestrator.EventBuffer)
	fmt.Printf("agents.health_check_interval: %s\n", cfg.Agents.HealthCheckInterval)
	fmt.Printf("agents.max_concurrent_tasks: %d\n", cfg.Agents.MaxConcurrentTasks)
	fmt.Printf("state.enabled: %t\n", cfg.State.Enabled)
	fmt.Printf("state.path: %s\n", orDefault(cfg.State.Path, "(default)"))
	fmt.Printf("logging.debug: %t\n", cfg.Logging.Debug)
	fmt.Printf("logging.path: %s\n", orDefault(cfg.Logging.Path, "(default)"))
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "orchestrator.max_concurrent_tasks":
		return strconv.Itoa(cfg.Orchestrator.MaxConcurrentTasks), nil
	case "orchestrator.retry_delay":
		return cfg.Orchestrator.RetryDelay.String(), nil
	case "orchestrator.task_timeout":
		return cfg.Orchestrator.TaskTimeout.String(), nil
	case "orchestrator.poll_interval":
		return cfg.Orchestrator.PollInterval.String(), nil
	case "orchestrator.event_buffer":
		return strconv.Itoa(cfg.Orchestrator.EventBuffer), nil
	case "agents.health_check_interval":
		return cfg.Agents.HealthCheckInterval.String(), nil
	case "agents.max_concurrent_tasks":
		return strconv.Itoa(cfg.Agents.MaxConcurrentTasks), nil
	case "state.enabled":
		return strconv.FormatBool(cfg.State.Enabled), nil
	case "state.path":
		return orDefault(cfg.State.Path, "(default)"), nil
	case "logging.debug":
		return strconv.FormatBool(cfg.Logging.Debug), nil
	case "logging.path":
		return orDefault(cfg.Logging.Path, "(default)"), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "orchestrator.max_concurrent_tasks":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_concurrent_tasks: %w", err)
		}
		cfg.Orchestrator.MaxConcurrentTasks = n
	case "orchestrator.retry_delay":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for retry_delay: %w", err)
		}
		cfg.Orchestrator.RetryDelay = d
	case "orchestrator.task_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for task_timeout: %w", err)
		}
		cfg.Orchestrator.TaskTimeout = d
	case "orchestrator.poll_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for poll_interval: %w", err)
		}
		cfg.Orchestrator.PollInterval = d
	case "orchestrator.event_buffer":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for event_buffer: %w", err)
		}
		cfg.Orchestrator.EventBuffer = n
	case "agents.health_check_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for health_check_interval: %w", err)
		}
		cfg.Agents.HealthCheckInterval = d
	case "agents.max_concurrent_tasks":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for agents.max_concurrent_tasks: %w", err)
		}
		cfg.Agents.MaxConcurrentTasks = n
	case "state.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for state.enabled: %w", err)
		}
		cfg.State.Enabled = b
	case "state.path":
		cfg.State.Path = value
	case "logging.debug":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for logging.debug: %w", err)
		}
		cfg.Logging.Debug = b
	case "logging.path":
		cfg.Logging.Path = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
