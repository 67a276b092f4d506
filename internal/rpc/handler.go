package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/tools"
	"github.com/roelfdiedericks/llamar/internal/types"
)

// Handler dispatches decoded requests to the tool runner. One handler
// serves all connections; it holds no per-request state.
type Handler struct {
	runner  *tools.Runner
	version string
	allowed map[string]bool
}

// NewHandler creates a handler over the runner. allowedTools restricts
// tools/list and tools/call to the named tools; empty means all.
func NewHandler(runner *tools.Runner, version string, allowedTools []string) *Handler {
	h := &Handler{runner: runner, version: version}
	if len(allowedTools) > 0 {
		h.allowed = make(map[string]bool, len(allowedTools))
		for _, name := range allowedTools {
			h.allowed[name] = true
		}
	}
	return h
}

// Handle processes one line of input and returns the marshaled response,
// or nil when nothing must be sent: notifications get no response, and
// malformed JSON is logged and discarded.
func (h *Handler) Handle(ctx context.Context, line []byte) []byte {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		L_warn("rpc: discarding malformed request", "error", err, "bytes", len(line))
		return nil
	}

	resp := h.dispatch(ctx, &req)
	if resp == nil || req.IsNotification() {
		return nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		L_error("rpc: marshal response failed", "method", req.Method, "error", err)
		return nil
	}
	return data
}

func (h *Handler) dispatch(ctx context.Context, req *Request) *Response {
	L_trace("rpc: request", "method", req.Method)

	switch req.Method {
	case "initialize":
		return respond(req.ID, initializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      serverInfo{Name: serverName, Version: h.version},
		})

	case "notifications/initialized":
		return nil

	case "tools/list":
		return respond(req.ID, toolsListResult{Tools: h.listTools()})

	case "tools/call":
		return respond(req.ID, h.callTool(ctx, req.Params))

	default:
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &Error{Code: codeMethodNotFound, Message: "Method not found: " + req.Method},
		}
	}
}

// listTools returns the registered tool definitions, filtered by the
// allow-set when one is configured.
func (h *Handler) listTools() []types.ToolDefinition {
	defs := h.runner.Registry().Definitions()
	if h.allowed == nil {
		return defs
	}
	filtered := make([]types.ToolDefinition, 0, len(defs))
	for _, def := range defs {
		if h.allowed[def.Name] {
			filtered = append(filtered, def)
		}
	}
	return filtered
}

// callTool runs one tool call. Failures surface as Error envelopes in
// the result, never as JSON-RPC errors.
func (h *Handler) callTool(ctx context.Context, params json.RawMessage) *types.ToolResult {
	var call toolCallParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &call); err != nil {
			return types.ErrorResult(fmt.Sprintf("Invalid tool call parameters: %s", err))
		}
	}
	if call.Name == "" {
		return types.ErrorResult("Invalid tool call parameters: missing tool name")
	}
	if h.allowed != nil && !h.allowed[call.Name] {
		return types.ErrorResult(fmt.Sprintf("Unknown tool: %s", call.Name))
	}
	return h.runner.Run(ctx, call.Name, call.Arguments)
}

func respond(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}
