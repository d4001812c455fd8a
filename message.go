package chatkit

import (
	"encoding/json"
	"fmt"

	"github.com/thecxx/chatkit/constants"
)

// Message is a single conversational unit. Assistant messages may carry
// tool calls; tool messages answer exactly one of them through ToolCallID.
type Message struct {
	// Role is one of the constants.Role* values.
	Role string
	// Content is the textual content, possibly empty for tool-call turns.
	Content string
	// Name optionally identifies the author of a user message.
	Name string
	// ToolCalls are the invocations requested by an assistant message,
	// ordered by index.
	ToolCalls []ToolCall
	// ToolCallID links a tool message to the call it answers.
	ToolCallID string
	// IsError marks a tool message reporting a failed invocation.
	IsError bool
}

// SystemMessage returns a system message.
func SystemMessage(content string) Message {
	return Message{Role: constants.RoleSystem, Content: content}
}

// UserMessage returns a user message.
func UserMessage(content string) Message {
	return Message{Role: constants.RoleUser, Content: content}
}

// AssistantMessage returns an assistant message with optional tool calls.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: constants.RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage returns the result of the tool call identified by callID.
func ToolMessage(callID, content string) Message {
	return Message{Role: constants.RoleTool, Content: content, ToolCallID: callID}
}

// ToolErrorMessage returns a tool message reporting that the call
// identified by callID failed.
func ToolErrorMessage(callID, content string) Message {
	msg := ToolMessage(callID, content)
	msg.IsError = true
	return msg
}

// Validate checks the structural rules of a message.
func (m Message) Validate() error {
	if !constants.ValidRole(m.Role) {
		return fmt.Errorf("chatkit: invalid role %q", m.Role)
	}
	if m.Role == constants.RoleTool && m.ToolCallID == "" {
		return fmt.Errorf("chatkit: tool message without tool_call_id")
	}
	if m.IsError && m.Role != constants.RoleTool {
		return fmt.Errorf("chatkit: %s message marked as tool error", m.Role)
	}
	if m.Role != constants.RoleAssistant && len(m.ToolCalls) > 0 {
		return fmt.Errorf("chatkit: %s message carries tool calls", m.Role)
	}
	for _, call := range m.ToolCalls {
		if call.ID == "" {
			return fmt.Errorf("chatkit: tool call %d has no id", call.Index)
		}
		if call.Function.Name == "" {
			return fmt.Errorf("chatkit: tool call %s has no function name", call.ID)
		}
		if len(call.Function.Arguments) > 0 && !json.Valid(call.Function.Arguments) {
			return &MalformedToolArgumentsError{Index: call.Index, ID: call.ID, Name: call.Function.Name, Raw: string(call.Function.Arguments)}
		}
	}
	return nil
}

func validateMessages(messages []Message) error {
	for i, msg := range messages {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// WireMessage is the stable JSON form of a Message.
type WireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []WireToolCall `json:"tool_calls,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`
}

// WireToolCall is the stable JSON form of a ToolCall. Arguments are kept
// as the raw text the model produced.
type WireToolCall struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Args  string `json:"args"`
}

// EncodeMessage serializes a message for persistence.
func EncodeMessage(msg Message) ([]byte, error) {
	wm := WireMessage{
		Role:       msg.Role,
		Content:    msg.Content,
		Name:       msg.Name,
		ToolCallID: msg.ToolCallID,
		IsError:    msg.IsError,
	}
	for _, call := range msg.ToolCalls {
		wm.ToolCalls = append(wm.ToolCalls, WireToolCall{
			Index: call.Index,
			ID:    call.ID,
			Type:  call.Type,
			Name:  call.Function.Name,
			Args:  string(call.Function.Arguments),
		})
	}
	return json.Marshal(wm)
}

// DecodeMessage restores a message written by EncodeMessage and validates it.
func DecodeMessage(data []byte) (Message, error) {
	var wm WireMessage
	if err := json.Unmarshal(data, &wm); err != nil {
		return Message{}, fmt.Errorf("chatkit: decoding message: %w", err)
	}
	msg := Message{
		Role:       wm.Role,
		Content:    wm.Content,
		Name:       wm.Name,
		ToolCallID: wm.ToolCallID,
		IsError:    wm.IsError,
	}
	for _, tc := range wm.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			Index:    tc.Index,
			ID:       tc.ID,
			Type:     tc.Type,
			Function: FunctionCall{Name: tc.Name, Arguments: json.RawMessage(tc.Args)},
		})
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}
