package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hmstead/conductor/internal/workflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow.yaml|dir>...",
	Short: "Validate workflow files",
	Long: `Validate workflow files without executing them.

Arguments may be files or directories; directories are scanned for
.yaml and .yml files.

Checks YAML structure, node references, start node, branch targets, and
per-node-type constraints.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	paths, err := collectWorkflowFiles(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no workflow files found")
	}

	failures := 0
	for _, path := range paths {
		w, err := workflow.Load(path)
		if err != nil {
			printStatus("✗", fmt.Sprintf("%s: %v", path, err), color.FgRed)
			failures++
			continue
		}
		printStatus("✓", fmt.Sprintf("%s (%s, %d nodes)", path, w.ID, len(w.Nodes)), color.FgGreen)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d files failed validation", failures, len(paths))
	}
	return nil
}

// collectWorkflowFiles expands directory arguments into their YAML files.
func collectWorkflowFiles(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			switch filepath.Ext(entry.Name()) {
			case ".yaml", ".yml":
				paths = append(paths, filepath.Join(arg, entry.Name()))
			}
		}
	}
	return paths, nil
}

// printStatus prints a colored status symbol followed by a message.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	c.Printf("%s ", symbol)
	fmt.Println(message)
}
