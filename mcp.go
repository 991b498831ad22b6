package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const mcpServerName = "drifter-planner"

// Tools follow one pattern: Definition returns the schema, Handle answers a
// call. Each call builds its own Planner, so no state is shared between calls.

type listDriftersTool struct {
	catalog          *Catalog
	maximizedDefault bool
}

func (t *listDriftersTool) Definition() mcp.Tool {
	return mcp.NewTool("planner_list_drifters",
		mcp.WithDescription("List the drifters that can be slotted, with their support buff, debuff, tier, level and status."),
		mcp.WithBoolean("maximized",
			mcp.Description("Use maximized support records. Defaults to the server setting."),
		),
		mcp.WithString("sort",
			mcp.Description("Sort order: name (default) or status."),
		),
	)
}

func (t *listDriftersTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := NewPlanner(t.catalog, boolArg(req, "maximized", t.maximizedDefault))
	if mode := req.GetString("sort", ""); mode != "" {
		if err := p.SetDrifterSort(mode); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	var b strings.Builder
	for _, d := range p.Plan().Drifters {
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\tTier %s / Lv %d\t%s\n", d.ID, d.Name, d.Buff, d.Debuff, d.Tier, d.Level, d.StatusLabel)
	}
	return mcp.NewToolResultText(b.String()), nil
}

type listCompanionsTool struct {
	catalog *Catalog
}

func (t *listCompanionsTool) Definition() mcp.Tool {
	return mcp.NewTool("planner_list_companions",
		mcp.WithDescription("List companion synergies with their bonus, required member count and member drifter ids."),
	)
}

func (t *listCompanionsTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	for _, c := range t.catalog.Companions {
		fmt.Fprintf(&b, "%s\t%s\trequires %d of [%s]\n", c.Name, c.Bonus, c.Required, strings.Join(c.MemberIDs, ", "))
	}
	return mcp.NewToolResultText(b.String()), nil
}

type planTool struct {
	catalog          *Catalog
	maximizedDefault bool
}

func (t *planTool) Definition() mcp.Tool {
	return mcp.NewTool("planner_plan",
		mcp.WithDescription("Slot up to five drifters in order and return the aggregated totals, active companions and conflicting slots as JSON."),
		mcp.WithArray("drifter_ids",
			mcp.Required(),
			mcp.Description("Drifter ids for slots 1..5, in order."),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithBoolean("maximized",
			mcp.Description("Use maximized support records. Defaults to the server setting."),
		),
	)
}

func (t *planTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := stringSliceArg(req, "drifter_ids")
	if len(ids) == 0 {
		return mcp.NewToolResultError("'drifter_ids' is required: pass one to five drifter ids"), nil
	}
	p, err := plannerFor(t.catalog, boolArg(req, "maximized", t.maximizedDefault), ids)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := json.MarshalIndent(planJSON(p.Plan()), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

func newMCPServer(cat *Catalog, maximizedDefault bool) *server.MCPServer {
	s := server.NewMCPServer(
		mcpServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	drifters := &listDriftersTool{catalog: cat, maximizedDefault: maximizedDefault}
	s.AddTool(drifters.Definition(), drifters.Handle)

	companions := &listCompanionsTool{catalog: cat}
	s.AddTool(companions.Definition(), companions.Handle)

	plan := &planTool{catalog: cat, maximizedDefault: maximizedDefault}
	s.AddTool(plan.Definition(), plan.Handle)
	return s
}

func serveMCP(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// stringSliceArg accepts a JSON array of strings or numbers, or a single
// comma-separated string.
func stringSliceArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	switch v := req.GetArguments()[key].(type) {
	case []any:
		for _, item := range v {
			switch x := item.(type) {
			case string:
				out = append(out, strings.TrimSpace(x))
			case float64:
				out = append(out, fmt.Sprint(x))
			}
		}
	case []string:
		out = append(out, v...)
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
