// Package session persists conversation state: a JSONL transcript per
// session, a sessions.json metadata index per agent, and a JSONL trace of
// tool calls. Transcripts and traces are append-only; the index is
// rewritten atomically under an advisory file lock.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message roles stored in transcripts.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one transcript entry.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // ms since epoch
}

// Session is the in-memory view of one conversation.
type Session struct {
	ID              string    `json:"sessionId"`
	Key             string    `json:"sessionKey"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	Provider        string    `json:"provider,omitempty"`
	Model           string    `json:"model,omitempty"`
	CWD             string    `json:"cwd,omitempty"`
	InputTokens     int       `json:"inputTokens,omitempty"`
	OutputTokens    int       `json:"outputTokens,omitempty"`
	TotalTokens     int       `json:"totalTokens,omitempty"`
	CompactionCount int       `json:"compactionCount,omitempty"`
	Messages        []Message `json:"messages,omitempty"`
}

// NewID mints a random 128-bit session identifier.
func NewID() string {
	return uuid.NewString()
}

// KeyFor builds the metadata key for a main-agent session.
func KeyFor(id string) string {
	return "llamar:" + id
}

// SubagentKeyFor builds the metadata key for a subagent session.
func SubagentKeyFor(id string) string {
	return fmt.Sprintf("agent:main:subagent:%s", id)
}

// AddMessage appends a message in memory only. Use Store.Append to
// persist it to the transcript.
func (s *Session) AddMessage(role, content string) Message {
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
	return msg
}

// UpdateTokens accumulates token usage counters.
func (s *Session) UpdateTokens(input, output int) {
	s.InputTokens += input
	s.OutputTokens += output
	s.TotalTokens += input + output
	s.UpdatedAt = time.Now()
}

// MessageCount returns the number of messages held in memory.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}
