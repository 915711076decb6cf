package types

import (
	"encoding/json"
	"time"
)

// ToolCall represents a capability invocation requested during a turn.
// The orchestrator never interprets Arguments; they are opaque.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult carries the outcome of a resolved ToolCall. Failures are
// surfaced verbatim in Error so the issuing role can decide what to do.
type ToolResult struct {
	ToolCallID string        `json:"tool_call_id"`
	Name       string        `json:"name"`
	Content    string        `json:"content,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Invocation pairs a capability call with its result. Result is nil while
// the call is still unresolved.
type Invocation struct {
	Call   ToolCall    `json:"call"`
	Result *ToolResult `json:"result,omitempty"`
}

// Resolved reports whether the invocation has received its result.
func (i Invocation) Resolved() bool { return i.Result != nil }

// Message is one entry in a chat group transcript. Ordering is causally
// meaningful; messages are never mutated after append except through a
// wholesale compression rewrite.
type Message struct {
	ID          string         `json:"id,omitempty"`
	Sender      Role           `json:"sender"`
	Name        string         `json:"name,omitempty"` // scope attribution, e.g. a subordinate group
	Content     string         `json:"content,omitempty"`
	Invocations []Invocation   `json:"invocations,omitempty"`
	Index       int            `json:"index"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp,omitempty"`
}

// NewMessage creates a message with the given sender and content.
func NewMessage(sender Role, content string) Message {
	return Message{
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// WithInvocations adds capability invocations to the message.
func (m Message) WithInvocations(invs []Invocation) Message {
	m.Invocations = invs
	return m
}

// WithMetadata adds metadata to the message.
func (m Message) WithMetadata(md map[string]any) Message {
	m.Metadata = md
	return m
}

// Unresolved reports whether the message carries any capability invocation
// that has not received its result yet. A transcript ending in such a
// message always routes the floor back to the sender.
func (m Message) Unresolved() bool {
	for _, inv := range m.Invocations {
		if !inv.Resolved() {
			return true
		}
	}
	return false
}
