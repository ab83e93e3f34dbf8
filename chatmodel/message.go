package chatmodel

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrUnexpectedRole is returned when a message role is of an unexpected type.
var ErrUnexpectedRole = errors.New("unexpected role")

// Role is the type of chat message.
type Role string

const (
	// RoleSystem is the single optional instruction message at the head of a transcript.
	RoleSystem Role = "system"
	// RoleUser is a message sent by the user.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the model.
	RoleAssistant Role = "assistant"
	// RoleTool is the result of one tool invocation, correlated by tool call ID.
	RoleTool Role = "tool"
)

// ToolCall is a single invocation requested by the model inside an
// assistant message. Arguments is the raw JSON payload exactly as the
// model emitted it; it is parsed by the executor, not here.
type ToolCall struct {
	// ID is the correlation token, unique within the carrying message.
	ID string `json:"id"`
	// Name is the tool to invoke.
	Name string `json:"name"`
	// Arguments is the JSON-encoded arguments payload.
	Arguments string `json:"arguments"`
}

func (tc ToolCall) String() string {
	return fmt.Sprintf("ToolCall: %s (%s), input: %s", tc.ID, tc.Name, tc.Arguments)
}

// Message is one transcript entry. The role determines which fields are
// populated; use the constructors and Validate keeps the variants closed.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ToolCalls is set only on assistant messages that requested tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID and Name are set only on tool messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// SystemMessage creates the system instruction message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage creates a plain assistant message with no tool calls.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// AssistantToolCalls creates an assistant message that requests tool
// invocations. Content may be empty.
func AssistantToolCalls(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResponse creates a tool message answering the tool call with the
// given ID. A failed invocation is still answered, with the failure text
// as content.
func ToolResponse(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID, Name: name}
}

// Validate checks the per-role field requirements.
func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser:
		if len(m.ToolCalls) > 0 || m.ToolCallID != "" {
			return errors.Newf("%s message must not carry tool call fields", m.Role)
		}
	case RoleAssistant:
		if m.ToolCallID != "" {
			return errors.New("assistant message must not carry a tool call ID")
		}
		for _, tc := range m.ToolCalls {
			if tc.ID == "" || tc.Name == "" {
				return errors.Newf("assistant message carries an incomplete tool call: %s", tc)
			}
		}
	case RoleTool:
		if m.ToolCallID == "" {
			return errors.New("tool message requires a tool call ID")
		}
		if len(m.ToolCalls) > 0 {
			return errors.New("tool message must not request tool calls")
		}
	default:
		return errors.WithMessagef(ErrUnexpectedRole, "%q", m.Role)
	}
	return nil
}
