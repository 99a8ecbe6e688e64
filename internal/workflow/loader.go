package workflow

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hmstead/conductor/pkg/models"
)

// ErrInvalidWorkflow wraps all workflow validation failures.
var ErrInvalidWorkflow = errors.New("invalid workflow")

// Load reads, parses, and validates a workflow definition file.
func Load(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals and validates a YAML workflow definition.
func Parse(data []byte) (*models.Workflow, error) {
	var w models.Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}
	if err := Validate(&w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Validate checks the structural integrity of a workflow: node IDs are
// unique, the start node and every Next reference resolve, and each node
// carries the configuration its type requires. Validation fails on the
// first problem found.
func Validate(w *models.Workflow) error {
	if w.ID == "" {
		return invalid("workflow ID is required")
	}
	if len(w.Nodes) == 0 {
		return invalid("workflow %s has no nodes", w.ID)
	}

	ids := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		if n.ID == "" {
			return invalid("workflow %s: node with empty ID", w.ID)
		}
		if ids[n.ID] {
			return invalid("workflow %s: duplicate node ID %q", w.ID, n.ID)
		}
		ids[n.ID] = true
	}

	if w.StartNodeID == "" {
		return invalid("workflow %s: start node is required", w.ID)
	}
	if !ids[w.StartNodeID] {
		return invalid("workflow %s: start node %q does not exist", w.ID, w.StartNodeID)
	}

	for i := range w.Nodes {
		if err := validateNode(w, &w.Nodes[i], ids); err != nil {
			return err
		}
	}
	return nil
}

func validateNode(w *models.Workflow, n *models.Node, ids map[string]bool) error {
	if !n.Type.Valid() {
		return invalid("node %s: unknown type %q", n.ID, n.Type)
	}
	for _, next := range n.Next {
		if !ids[next] {
			return invalid("node %s: next reference %q does not exist", n.ID, next)
		}
	}

	switch n.Type {
	case models.NodeTypeTask:
		if n.Task == nil {
			return invalid("node %s: task configuration is required", n.ID)
		}
		if len(n.Next) > 1 {
			return invalid("node %s: task nodes take at most one next", n.ID)
		}

	case models.NodeTypeCondition:
		if n.Condition == nil || n.Condition.Expression == "" {
			return invalid("node %s: condition expression is required", n.ID)
		}
		if len(n.Next) < 1 || len(n.Next) > 2 {
			return invalid("node %s: condition nodes take a true branch and an optional false branch", n.ID)
		}

	case models.NodeTypeSwitch:
		if n.Switch == nil || n.Switch.Expression == "" {
			return invalid("node %s: switch expression is required", n.ID)
		}
		if len(n.Switch.Branches) == 0 {
			return invalid("node %s: switch requires at least one branch", n.ID)
		}
		for value, target := range n.Switch.Branches {
			if !ids[target] {
				return invalid("node %s: branch %q targets unknown node %q", n.ID, value, target)
			}
		}
		if n.Switch.Default != "" && !ids[n.Switch.Default] {
			return invalid("node %s: default targets unknown node %q", n.ID, n.Switch.Default)
		}

	case models.NodeTypeLoop:
		if n.Loop == nil {
			return invalid("node %s: loop configuration is required", n.ID)
		}
		modes := 0
		if n.Loop.Iterations > 0 {
			modes++
		}
		if len(n.Loop.Items) > 0 {
			modes++
		}
		if n.Loop.While != "" {
			modes++
		}
		if n.Loop.Until != "" {
			modes++
		}
		if modes != 1 {
			return invalid("node %s: loop requires exactly one of iterations, items, while, or until", n.ID)
		}
		if len(n.Next) < 1 {
			return invalid("node %s: loop requires a body", n.ID)
		}

	case models.NodeTypeParallel:
		// All but the last Next entry are branch starts; the last is the
		// join target.
		if len(n.Next) < 2 {
			return invalid("node %s: parallel requires at least one branch and a join target", n.ID)
		}

	case models.NodeTypeHuman:
		if n.Human == nil {
			return invalid("node %s: human configuration is required", n.ID)
		}
		if len(n.Next) < 1 || len(n.Next) > 2 {
			return invalid("node %s: human nodes take an approved branch and an optional rejected branch", n.ID)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidWorkflow, fmt.Sprintf(format, args...))
}
