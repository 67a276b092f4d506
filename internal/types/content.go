// Package types provides shared types for content blocks and tool results.
package types

// ContentBlock is a single block of content in a tool result or message.
// Text blocks carry Text; image blocks carry base64 Data plus MimeType,
// which is the MCP wire shape for binary content.
type ContentBlock struct {
	Type string `json:"type"` // "text" or "image"

	Text string `json:"text,omitempty"`

	Data     string `json:"data,omitempty"`     // base64 payload for image blocks
	MimeType string `json:"mimeType,omitempty"` // e.g. "image/jpeg"
}

// ToolResult is the envelope every tool returns. It is also the exact
// shape surfaced as the JSON-RPC result of tools/call: either Ok
// ({content:[...]}) or Error ({isError:true, content:[...]}).
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// TextResult creates an Ok result with a single text block.
func TextResult(text string) *ToolResult {
	return &ToolResult{
		Content: []ContentBlock{
			{Type: "text", Text: text},
		},
	}
}

// ErrorResult creates an Error result with a single text block.
func ErrorResult(msg string) *ToolResult {
	return &ToolResult{
		Content: []ContentBlock{
			{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// ImageResult creates an Ok result carrying a base64 image, with an
// optional leading text caption block.
func ImageResult(data, mimeType, caption string) *ToolResult {
	blocks := []ContentBlock{}
	if caption != "" {
		blocks = append(blocks, ContentBlock{Type: "text", Text: caption})
	}
	blocks = append(blocks, ContentBlock{
		Type:     "image",
		Data:     data,
		MimeType: mimeType,
	})
	return &ToolResult{Content: blocks}
}

// TextBlock creates a text ContentBlock.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// GetText returns the concatenated text from all text blocks.
func (r *ToolResult) GetText() string {
	if r == nil {
		return ""
	}
	var result string
	for _, block := range r.Content {
		if block.Type == "text" && block.Text != "" {
			if result != "" {
				result += "\n"
			}
			result += block.Text
		}
	}
	return result
}

// HasMedia returns true if the result contains any image blocks.
func (r *ToolResult) HasMedia() bool {
	if r == nil {
		return false
	}
	for _, block := range r.Content {
		if block.Type == "image" {
			return true
		}
	}
	return false
}
