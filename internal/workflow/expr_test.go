package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		name string
		expr string
		vars map[string]any
		want any
	}{
		{"arithmetic", "1 + 2", nil, float64(3)},
		{"string concat", `"a" .. "b"`, nil, "ab"},
		{"variable comparison", "count > 3", map[string]any{"count": 5}, true},
		{"nested map access", "build.ok", map[string]any{"build": map[string]any{"ok": true}}, true},
		{"dotted key through vars", `vars["deploy.env"]`, map[string]any{"deploy.env": "staging"}, "staging"},
		{"dotted key as path", "loop.iteration < 3", map[string]any{"loop.iteration": 2}, true},
		{"dotted key merges into table", "build.output.ok and build.attempt == 2",
			map[string]any{"build.output": map[string]any{"ok": true}, "build.attempt": 2}, true},
		{"string library", `string.upper(name)`, map[string]any{"name": "go"}, "GO"},
		{"math library", "math.floor(3.7)", nil, float64(3)},
		{"logical operators", `env == "prod" and count > 0`, map[string]any{"env": "prod", "count": 1}, true},
		{"missing variable is nil", "missing == nil", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateInvalidExpression(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate("1 +", nil)
	require.Error(t, err)
}

func TestEvaluateSandbox(t *testing.T) {
	e := NewEvaluator()

	// No os/io libraries, no load functions, no randomness.
	for _, expr := range []string{
		"os == nil",
		"io == nil",
		"load == nil",
		"loadstring == nil",
		"dofile == nil",
		"math.random == nil",
	} {
		got, err := e.Evaluate(expr, nil)
		require.NoError(t, err, expr)
		assert.Equal(t, true, got, expr)
	}
}

func TestEvaluateBool(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		expr string
		want bool
	}{
		{"true", true},
		{"false", false},
		{"nil", false},
		{"0", true}, // Lua truthiness: only nil and false are false
		{`"no"`, true},
	}
	for _, tt := range tests {
		got, err := e.EvaluateBool(tt.expr, nil)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}
}

func TestEvaluateString(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		expr string
		vars map[string]any
		want string
	}{
		{`"prod"`, nil, "prod"},
		{"1 + 1", nil, "2"},
		{"count", map[string]any{"count": 2}, "2"},
		{"true", nil, "true"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		got, err := e.EvaluateString(tt.expr, tt.vars)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}
}

func TestIsIdentifier(t *testing.T) {
	assert.True(t, isIdentifier("count"))
	assert.True(t, isIdentifier("_private"))
	assert.True(t, isIdentifier("node1"))
	assert.False(t, isIdentifier("1node"))
	assert.False(t, isIdentifier("build.ok"))
	assert.False(t, isIdentifier("end"), "reserved words cannot be globals")
	assert.False(t, isIdentifier(""))
}
