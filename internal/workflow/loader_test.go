package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmstead/conductor/pkg/models"
)

const sampleWorkflowYAML = `
id: deploy
name: Deploy pipeline
start_node_id: build
variables:
  env: staging
nodes:
  - id: build
    type: task
    next: [check]
    task:
      required_capabilities: [compute]
      input:
        target: app
  - id: check
    type: condition
    next: [release, stop]
    condition:
      expression: 'env == "prod"'
  - id: release
    type: task
    task:
      required_capabilities: [deploy]
  - id: stop
    type: task
    task:
      required_capabilities: [compute]
`

func TestParseWorkflow(t *testing.T) {
	w, err := Parse([]byte(sampleWorkflowYAML))
	require.NoError(t, err)

	assert.Equal(t, "deploy", w.ID)
	assert.Equal(t, "build", w.StartNodeID)
	assert.Equal(t, "staging", w.Variables["env"])
	require.Len(t, w.Nodes, 4)

	build := w.NodeByID("build")
	require.NotNil(t, build)
	assert.Equal(t, models.NodeTypeTask, build.Type)
	assert.Equal(t, "app", build.Task.Input["target"])

	check := w.NodeByID("check")
	require.NotNil(t, check)
	assert.Equal(t, `env == "prod"`, check.Condition.Expression)
}

func TestLoadWorkflowFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleWorkflowYAML), 0o644))

	w, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "deploy", w.ID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("id: [unterminated"))
	require.Error(t, err)
}

func taskNode(id string, next ...string) models.Node {
	return models.Node{
		ID:   id,
		Type: models.NodeTypeTask,
		Next: next,
		Task: &models.TaskNode{RequiredCapabilities: []string{"compute"}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		workflow models.Workflow
		wantErr  string
	}{
		{
			name:     "missing ID",
			workflow: models.Workflow{StartNodeID: "a", Nodes: []models.Node{taskNode("a")}},
			wantErr:  "workflow ID is required",
		},
		{
			name:     "no nodes",
			workflow: models.Workflow{ID: "w", StartNodeID: "a"},
			wantErr:  "has no nodes",
		},
		{
			name: "duplicate node IDs",
			workflow: models.Workflow{
				ID: "w", StartNodeID: "a",
				Nodes: []models.Node{taskNode("a"), taskNode("a")},
			},
			wantErr: "duplicate node ID",
		},
		{
			name: "unknown start node",
			workflow: models.Workflow{
				ID: "w", StartNodeID: "missing",
				Nodes: []models.Node{taskNode("a")},
			},
			wantErr: "does not exist",
		},
		{
			name: "dangling next reference",
			workflow: models.Workflow{
				ID: "w", StartNodeID: "a",
				Nodes: []models.Node{taskNode("a", "missing")},
			},
			wantErr: "does not exist",
		},
		{
			name: "unknown node type",
			workflow: models.Workflow{
				ID: "w", StartNodeID: "a",
				Nodes: []models.Node{{ID: "a", Type: "teleport"}},
			},
			wantErr: "unknown type",
		},
		{
			name: "task without configuration",
			workflow: models.Workflow{
				ID: "w", StartNodeID: "a",
				Nodes: []models.Node{{ID: "a", Type: models.NodeTypeTask}},
			},
			wantErr: "task configuration is required",
		},
		{
			name: "condition without expression",
			workflow: models.Workflow{
				ID: "w", StartNodeID: "a",
				Nodes: []models.Node{
					taskNode("b"),
					{ID: "a", Type: models.NodeTypeCondition, Next: []string{"b"}, Condition: &models.ConditionNode{}},
				},
			},
			wantErr: "condition expression is required",
		},
		{
			name: "switch without branches",
			workflow: models.Workflow{
				ID: "w", StartNodeID: "a",
				Nodes: []models.Node{
					{ID: "a", Type: models.NodeTypeSwitch, Switch: &models.SwitchNode{Expression: "env"}},
				},
			},
			wantErr: "at least one branch",
		},
		{
			name: "switch branch targets unknown node",
			workflow: models.Workflow{
				ID: "w", StartNodeID: "a",
				Nodes: []models.Node{
					{ID: "a", Type: models.NodeTypeSwitch, Switch: &models.SwitchNode{
						Expression: "env",
						Branches:   map[string]string{"prod": "missing"},
					}},
				},
			},
			wantErr: "unknown node",
		},
		{
			name: "loop with no mode",
			workflow: models.Workflow{
				ID: "w", StartNodeID: "a",
				Nodes: []models.Node{
					taskNode("body"),
					{ID: "a", Type: models.NodeTypeLoop, Next: []string{"body"}, Loop: &models.LoopNode{}},
				},
			},
			wantErr: "exactly one of",
		},
		{
			name: "loop with conflicting modes",
			workflow: models.Workflow{
				ID: "w", StartNodeID: "a",
				Nodes: []models.Node{
					taskNode("body"),
					{ID: "a", Type: models.NodeTypeLoop, Next: []string{"body"}, Loop: &models.LoopNode{
						Iterations: 3, While: "count < 5",
					}},
				},
			},
			wantErr: "exactly one of",
		},
		{
			name: "parallel without join",
			workflow: models.Workflow{
				ID: "w", StartNodeID: "a",
				Nodes: []models.Node{
					taskNode("b"),
					{ID: "a", Type: models.NodeTypeParallel, Next: []string{"b"}},
				},
			},
			wantErr: "at least one branch and a join",
		},
		{
			name: "human without configuration",
			workflow: models.Workflow{
				ID: "w", StartNodeID: "a",
				Nodes: []models.Node{
					taskNode("b"),
					{ID: "a", Type: models.NodeTypeHuman, Next: []string{"b"}},
				},
			},
			wantErr: "human configuration is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.workflow)
			require.ErrorIs(t, err, ErrInvalidWorkflow)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAcceptsCompleteWorkflow(t *testing.T) {
	w := models.Workflow{
		ID:          "full",
		StartNodeID: "fan",
		Nodes: []models.Node{
			{ID: "fan", Type: models.NodeTypeParallel, Next: []string{"left", "right", "join"}},
			taskNode("left"),
			taskNode("right"),
			taskNode("join", "gate"),
			{ID: "gate", Type: models.NodeTypeHuman, Next: []string{"loop"}, Human: &models.HumanNode{Prompt: "ok?"}},
			{ID: "loop", Type: models.NodeTypeLoop, Next: []string{"body"}, Loop: &models.LoopNode{Iterations: 2}},
			taskNode("body"),
		},
	}
	require.NoError(t, Validate(&w))
}
