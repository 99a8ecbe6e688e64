// Package config handles configuration loading for conductor.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for conductor.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Agents       AgentsConfig       `mapstructure:"agents"`
	State        StateConfig        `mapstructure:"state"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// OrchestratorConfig holds task scheduling settings.
type OrchestratorConfig struct {
	// MaxConcurrentTasks bounds the number of tasks running at once.
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks"`
	// RetryDelay is the base delay between retry attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// TaskTimeout is the default per-task execution deadline.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// PollInterval is the cadence of the scheduling loop.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// EventBuffer sizes the orchestrator event channel.
	EventBuffer int `mapstructure:"event_buffer"`
}

// AgentsConfig holds agent lifecycle settings.
type AgentsConfig struct {
	// HealthCheckInterval is how often orphaned agents are swept.
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	// MaxConcurrentTasks is the default per-agent task cap.
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// Enabled turns on sqlite persistence of tasks, executions, and
	// approvals.
	Enabled bool `mapstructure:"enabled"`
	// Path overrides the default database location.
	Path string `mapstructure:"path"`
}

// LoggingConfig holds debug logging settings.
type LoggingConfig struct {
	// Debug enables the file-based debug log.
	Debug bool `mapstructure:"debug"`
	// Path overrides the default debug log location.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
//  1. Environment variables (CONDUCTOR_*)
//  2. Project config (.conductor.yaml in current directory or parent)
//  3. User config (~/.config/conductor/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		pv := viper.New()
		pv.SetConfigFile(projectConfig)
		if err := pv.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(pv.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("orchestrator.max_concurrent_tasks", "CONDUCTOR_MAX_CONCURRENT_TASKS")
	v.BindEnv("orchestrator.retry_delay", "CONDUCTOR_RETRY_DELAY")
	v.BindEnv("orchestrator.task_timeout", "CONDUCTOR_TASK_TIMEOUT")
	v.BindEnv("state.enabled", "CONDUCTOR_STATE_ENABLED")
	v.BindEnv("state.path", "CONDUCTOR_STATE_PATH")
	v.BindEnv("logging.debug", "CONDUCTOR_DEBUG")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxConcurrentTasks: 5,
			RetryDelay:         time.Second,
			TaskTimeout:        5 * time.Minute,
			PollInterval:       100 * time.Millisecond,
			EventBuffer:        100,
		},
		Agents: AgentsConfig{
			HealthCheckInterval: 30 * time.Second,
			MaxConcurrentTasks:  1,
		},
		State: StateConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Debug: false,
		},
	}
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("orchestrator.max_concurrent_tasks", cfg.Orchestrator.MaxConcurrentTasks)
	v.Set("orchestrator.retry_delay", cfg.Orchestrator.RetryDelay.String())
	v.Set("orchestrator.task_timeout", cfg.Orchestrator.TaskTimeout.String())
	v.Set("orchestrator.poll_interval", cfg.Orchestrator.PollInterval.String())
	v.Set("orchestrator.event_buffer", cfg.Orchestrator.EventBuffer)
	v.Set("agents.health_check_interval", cfg.Agents.HealthCheckInterval.String())
	v.Set("agents.max_concurrent_tasks", cfg.Agents.MaxConcurrentTasks)
	v.Set("state.enabled", cfg.State.Enabled)
	v.Set("state.path", cfg.State.Path)
	v.Set("logging.debug", cfg.Logging.Debug)
	v.Set("logging.path", cfg.Logging.Path)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	def := Default()

	v.SetDefault("orchestrator.max_concurrent_tasks", def.Orchestrator.MaxConcurrentTasks)
	v.SetDefault("orchestrator.retry_delay", def.Orchestrator.RetryDelay.String())
	v.SetDefault("orchestrator.task_timeout", def.Orchestrator.TaskTimeout.String())
	v.SetDefault("orchestrator.poll_interval", def.Orchestrator.PollInterval.String())
	v.SetDefault("orchestrator.event_buffer", def.Orchestrator.EventBuffer)

	v.SetDefault("agents.health_check_interval", def.Agents.HealthCheckInterval.String())
	v.SetDefault("agents.max_concurrent_tasks", def.Agents.MaxConcurrentTasks)

	v.SetDefault("state.enabled", def.State.Enabled)
	v.SetDefault("state.path", "")

	v.SetDefault("logging.debug", def.Logging.Debug)
	v.SetDefault("logging.path", "")
}

// getUserConfigDir returns the XDG config directory for conductor.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conductor")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conductor")
	}
	return filepath.Join(home, ".config", "conductor")
}

// findProjectConfig searches for .conductor.yaml in the current directory
// and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".conductor.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}
