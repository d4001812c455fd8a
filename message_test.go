package chatkit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageValidate(t *testing.T) {
	call := ToolCall{ID: "call_1", Type: "function", Function: FunctionCall{Name: "f", Arguments: json.RawMessage(`{}`)}}

	tests := []struct {
		name    string
		msg     Message
		wantErr string
	}{
		{name: "user", msg: UserMessage("hi")},
		{name: "system", msg: SystemMessage("be brief")},
		{name: "assistant with calls", msg: AssistantMessage("", call)},
		{name: "tool result", msg: ToolMessage("call_1", "42")},
		{name: "tool failure", msg: ToolErrorMessage("call_1", `{"error":"boom"}`)},
		{name: "user marked as error", msg: Message{Role: "user", Content: "hi", IsError: true}, wantErr: "marked as tool error"},
		{name: "unknown role", msg: Message{Role: "robot"}, wantErr: "invalid role"},
		{name: "tool without id", msg: Message{Role: "tool", Content: "42"}, wantErr: "tool_call_id"},
		{name: "user with calls", msg: Message{Role: "user", ToolCalls: []ToolCall{call}}, wantErr: "carries tool calls"},
		{name: "call without id", msg: AssistantMessage("", ToolCall{Function: FunctionCall{Name: "f"}}), wantErr: "no id"},
		{name: "call without name", msg: AssistantMessage("", ToolCall{ID: "x"}), wantErr: "no function name"},
		{
			name:    "call with broken arguments",
			msg:     AssistantMessage("", ToolCall{ID: "x", Function: FunctionCall{Name: "f", Arguments: json.RawMessage(`{`)}}),
			wantErr: "malformed arguments",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEncodeDecodeMessage(t *testing.T) {
	msg := AssistantMessage("checking",
		ToolCall{Index: 0, ID: "call_1", Type: "function", Function: FunctionCall{Name: "get_weather", Arguments: json.RawMessage(`{"city":"Paris"}`)}},
	)

	data, err := EncodeMessage(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"role": "assistant",
		"content": "checking",
		"tool_calls": [{"index": 0, "id": "call_1", "type": "function", "name": "get_weather", "args": "{\"city\":\"Paris\"}"}]
	}`, string(data))

	decoded, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)

	data, err = EncodeMessage(ToolMessage("call_1", "sunny"))
	require.NoError(t, err)
	decoded, err = DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, ToolMessage("call_1", "sunny"), decoded)

	failure := ToolErrorMessage("call_2", `{"error":"timeout"}`)
	data, err = EncodeMessage(failure)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"is_error":true`)
	decoded, err = DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, failure, decoded)
	assert.True(t, decoded.IsError)
}

func TestDecodeMessageRejectsInvalid(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"role":"tool","content":"orphan"}`))
	assert.ErrorContains(t, err, "tool_call_id")

	_, err = DecodeMessage([]byte(`not json`))
	assert.ErrorContains(t, err, "decoding message")
}

func TestToolCallDecodeArguments(t *testing.T) {
	var args struct {
		City string `json:"city"`
	}
	call := ToolCall{Function: FunctionCall{Name: "f", Arguments: json.RawMessage(`{"city":"Oslo"}`)}}
	require.NoError(t, call.DecodeArguments(&args))
	assert.Equal(t, "Oslo", args.City)

	require.NoError(t, ToolCall{}.DecodeArguments(&args))
}
