package types

// ToolDefinition is the MCP tools/list entry for a registered tool.
// This lives in types to break the rpc → tools import cycle.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}
