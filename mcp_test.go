package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callTool(t *testing.T, handle func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := handle(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	var text string
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			text += tc.Text
		}
	}
	return text, res.IsError
}

func TestPlanToolDefinition(t *testing.T) {
	tool := (&planTool{}).Definition()
	assert.Equal(t, "planner_plan", tool.Name)
	assert.Contains(t, tool.InputSchema.Required, "drifter_ids")
}

func TestPlanToolHandle(t *testing.T) {
	cat := loadSampleCatalog(t, PolicyStrict)
	tool := &planTool{catalog: cat, maximizedDefault: true}

	text, isErr := callTool(t, tool.Handle, map[string]any{"drifter_ids": []any{"101", float64(201)}})
	require.False(t, isErr, text)
	var plan planResponse
	require.NoError(t, json.Unmarshal([]byte(text), &plan))
	assert.Equal(t, []int{1, 2}, plan.Conflicts)
	assert.Len(t, plan.Totals, 2)

	text, isErr = callTool(t, tool.Handle, map[string]any{"drifter_ids": "101, 101"})
	assert.True(t, isErr)
	assert.Contains(t, text, "already assigned")

	_, isErr = callTool(t, tool.Handle, map[string]any{})
	assert.True(t, isErr)

	text, isErr = callTool(t, tool.Handle, map[string]any{"drifter_ids": []any{"1", "2", "3", "4", "5", "6"}})
	assert.True(t, isErr)
	assert.Contains(t, text, "at most 5")
}

func TestListTools(t *testing.T) {
	cat := loadSampleCatalog(t, PolicyStrict)

	text, isErr := callTool(t, (&listDriftersTool{catalog: cat, maximizedDefault: true}).Handle, map[string]any{"maximized": false, "sort": "status"})
	require.False(t, isErr)
	assert.Contains(t, text, "101\tKyra\tAttack Speed Bonus 3%\tArmor -20")
	assert.NotContains(t, text, "Ranger")

	_, isErr = callTool(t, (&listDriftersTool{catalog: cat}).Handle, map[string]any{"sort": "tier"})
	assert.True(t, isErr)

	text, _ = callTool(t, (&listCompanionsTool{catalog: cat}).Handle, nil)
	assert.Contains(t, text, "Iron Vanguard\tPhysical Damage Bonus 3%\trequires 2 of [101, 102]")
}

func TestNewMCPServer(t *testing.T) {
	require.NotNil(t, newMCPServer(loadSampleCatalog(t, PolicyStrict), true))
}
