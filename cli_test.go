package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PLANNER_SOURCE", "file")
	t.Setenv("PLANNER_DATA_DIR", ".")
	t.Setenv("PLANNER_LOG_LEVEL", "error")
	t.Cleanup(func() { logger = zap.NewNop() })
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPlanCommandJSON(t *testing.T) {
	out, err := runCLI(t, "plan", "--json", "101", "201")
	require.NoError(t, err)
	var plan planResponse
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.True(t, plan.Maximized)
	assert.Equal(t, []int{1, 2}, plan.Conflicts)
	assert.Equal(t, "Shadowseer", plan.Slots[1].Name)
}

func TestPlanCommandTable(t *testing.T) {
	out, err := runCLI(t, "plan", "--maximized=false", "101", "102")
	require.NoError(t, err)
	assert.Contains(t, out, "Kyra")
	assert.Contains(t, out, "Physical Damage Bonus")
	assert.Contains(t, out, "+7.00%")
	assert.Contains(t, out, "Iron Vanguard")
}

func TestPlanCommandErrors(t *testing.T) {
	_, err := runCLI(t, "plan", "101", "101")
	assert.ErrorIs(t, err, ErrDrifterInUse)

	_, err = runCLI(t, "plan", "1", "2", "3", "4", "5", "6")
	assert.Error(t, err)

	_, err = runCLI(t, "--policy", "lenient", "plan", "101")
	assert.ErrorContains(t, err, "unsupported fallback policy")
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}
