// Package chat implements the chat tool, the entry point a parent agent
// uses to talk to a subagent server. The actual LLM round-trip is an
// external collaborator injected as a Handler.
package chat

import (
	"context"
	"encoding/json"
	"fmt"

	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/ratelimit"
	"github.com/roelfdiedericks/llamar/internal/types"
)

// Handler produces a reply to one chat message.
type Handler interface {
	Chat(ctx context.Context, message string) (string, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, message string) (string, error)

func (f HandlerFunc) Chat(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// Tool forwards a message to the configured chat handler.
type Tool struct {
	handler  Handler
	limiter  *ratelimit.Limiter
	provider func() string
}

func NewTool(handler Handler) *Tool {
	return &Tool{handler: handler}
}

// SetHandler replaces the handler. Used by servers that construct the
// registry before the handler exists.
func (t *Tool) SetHandler(h Handler) {
	t.handler = h
}

// SetLimiter attaches a rate limiter. provider names the upstream the
// usage is charged against, typically from the live config.
func (t *Tool) SetLimiter(l *ratelimit.Limiter, provider func() string) {
	t.limiter = l
	t.provider = provider
}

func (t *Tool) providerName() string {
	if t.provider == nil {
		return ""
	}
	return t.provider()
}

func (t *Tool) Name() string {
	return "chat"
}

func (t *Tool) Description() string {
	return "Send a chat message to this agent and return its reply."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to send.",
			},
		},
		"required": []string{"message"},
	}
}

type input struct {
	Message string `json:"message"`
}

func (t *Tool) Execute(ctx context.Context, raw json.RawMessage) (*types.ToolResult, error) {
	var params input
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if t.handler == nil {
		return types.ErrorResult("No chat handler configured"), nil
	}

	est := 0
	if t.limiter != nil {
		est = t.limiter.EstimateTokens(params.Message)
		res := t.limiter.Check(t.providerName(), est)
		if !res.OK {
			return types.ErrorResult(res.Message), nil
		}
		if res.Warning != "" {
			L_warn("chat: "+res.Warning, "provider", t.providerName())
		}
	}

	L_debug("chat: handling message", "bytes", len(params.Message))
	reply, err := t.handler.Chat(ctx, params.Message)
	if err != nil {
		return types.ErrorResult(fmt.Sprintf("Chat failed: %s", err)), nil
	}

	if t.limiter != nil {
		t.limiter.Track(t.providerName(), est+t.limiter.EstimateTokens(reply), 1)
	}
	return types.TextResult(reply), nil
}
