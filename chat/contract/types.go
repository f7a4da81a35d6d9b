package contract

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is one entry of the conversation sent to the completion API.
// ToolCalls is set on assistant messages that requested a function call;
// ToolCallID is set on tool-role messages carrying that call's result.
type Message struct {
	Role       Role             `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []ToolInvocation `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

// ChatTurn is one request of the chat endpoint: the new user message
// plus the caller-supplied history. History is untrusted and never
// outlives the request.
type ChatTurn struct {
	Message string    `json:"message"`
	History []Message `json:"history"`
}

// NewChatTurn validates caller input: the message must be non-empty and
// every history entry must carry a known role.
func NewChatTurn(message string, history []Message) (ChatTurn, error) {
	if strings.TrimSpace(message) == "" {
		return ChatTurn{}, ErrEmptyMessage
	}
	for i, m := range history {
		if !m.Role.Valid() {
			return ChatTurn{}, fmt.Errorf("%w: history[%d] role=%q", ErrInvalidRole, i, m.Role)
		}
	}
	return ChatTurn{Message: message, History: history}, nil
}

// ToolInvocation is a model response that requests a function call
// instead of free text.
type ToolInvocation struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

func (t ToolInvocation) Argument(key string) string {
	return strings.TrimSpace(t.Arguments[key])
}

// Reply is the tagged result of one completion call: plain text, a tool
// invocation, or both when the model attached text to its call.
type Reply struct {
	Text string
	Tool *ToolInvocation
}

func (r Reply) IsToolCall() bool {
	return r.Tool != nil
}

// Lead holds a prospective customer's contact details for the lifetime
// of one turn. The CRM is the system of record.
type Lead struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Resolution reports a successful lead resolution.
type Resolution struct {
	PersonID     int
	DealID       int
	PersonReused bool
}

// ToolSchema describes one callable function to the completion API
// without tying the contract to a particular SDK.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}
