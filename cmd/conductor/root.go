package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hmstead/conductor/internal/config"
)

var (
	rootConfigPath string
	rootDebug      bool
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Multi-agent task orchestration",
	Long: `Conductor schedules tasks across a fleet of agents and drives
workflow graphs through them.

Tasks are matched to agents by capability, ordered by priority, and
gated on their dependencies. Workflows add branching, loops, parallel
fan-out, and human approval gates on top of the task layer.

Core capabilities:
- Capability-based agent matching with load-aware selection
- Priority queue with dependency ordering and retry backoff
- Workflow graphs: conditions, switches, loops, parallel branches
- Human approval gates that pause execution for a decision
- Optional sqlite persistence of tasks, executions, and approvals`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Path to a config file (overrides discovery)")
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads configuration, honoring the --config flag.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if rootConfigPath != "" {
		cfg, err = config.LoadFromPath(rootConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if rootDebug {
		cfg.Logging.Debug = true
	}
	return cfg, nil
}
