package models

// TableMessage is the storage table for messages.
const TableMessage = "message"

// MessageType is the role/kind of a single turn.
type MessageType string

const (
	MessageUser        MessageType = "user"
	MessageAssistant   MessageType = "assistant"
	MessageSystem      MessageType = "system"
	MessageToolCall    MessageType = "tool_call"
	MessageToolResult  MessageType = "tool_result"
	MessageObservation MessageType = "observation"
	MessageMemory      MessageType = "memory"
	MessageThink       MessageType = "think"
)

// Message is one turn in a session. Content is the most sensitive field in
// the system and is always a candidate for encryption and PII redaction.
// Immutable once written except for system-level annotation.
type Message struct {
	Base

	SessionID  string      `json:"session_id"`
	Type       MessageType `json:"type"`
	Content    string      `json:"content,omitempty"`
	TokenCount int         `json:"token_count"`
	ToolCall   Metadata    `json:"tool_call,omitempty"`
	TraceID    *string     `json:"trace_id,omitempty"`
	SpanID     *string     `json:"span_id,omitempty"`
}

// Table implements Record.
func (Message) Table() string { return TableMessage }
