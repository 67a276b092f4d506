package subagent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/roelfdiedericks/llamar/internal/rpc"
	"github.com/roelfdiedericks/llamar/internal/types"
)

// defaultCallTimeout bounds a call when the caller's context carries no
// deadline. Chat round-trips can be slow.
const defaultCallTimeout = 120 * time.Second

// Client is a minimal MCP client: newline-delimited JSON-RPC over TCP,
// just enough to drive a subagent's chat tool. One request is in flight
// at a time; the server answers in order.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	mu   sync.Mutex
	seq  int64
}

// DialClient connects to a subagent's MCP port.
func DialClient(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, r: bufio.NewReaderSize(conn, 64*1024)}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// call writes one request line and reads one response line.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      c.seq,
		"method":  method,
	}
	if params != nil {
		req["params"] = params
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	deadline := time.Now().Add(defaultCallTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	line, err := c.r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var resp rpcResponse
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// notify writes a notification line; no response follows.
func (c *Client) notify(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": method})
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

// Initialize performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) error {
	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	params := map[string]any{
		"protocolVersion": rpc.ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "llamar", "version": "dev"},
	}
	if err := c.call(ctx, "initialize", params, &result); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := c.notify("notifications/initialized"); err != nil {
		return err
	}
	return nil
}

// CallTool invokes one tool and returns its text output. An isError
// envelope comes back as a Go error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	params := map[string]any{"name": name}
	if len(args) > 0 {
		params["arguments"] = args
	}

	var result types.ToolResult
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return "", err
	}

	text := result.GetText()
	if result.IsError {
		msg := strings.TrimSpace(text)
		if msg == "" {
			msg = "tool call failed"
		}
		return "", errors.New(msg)
	}
	return text, nil
}
