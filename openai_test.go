package chatkit

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thecxx/chatkit/constants"
	"github.com/tidwall/gjson"
)

func ptr[T any](v T) *T { return &v }

func TestOpenAINewRequest(t *testing.T) {
	req := &Request{
		Model:  "gpt-4o",
		System: "be brief",
		Messages: []Message{
			UserMessage("weather in Paris?"),
			AssistantMessage("", ToolCall{Index: 0, ID: "call_1", Type: "function", Function: FunctionCall{Name: "get_weather", Arguments: json.RawMessage(`{"city":"Paris"}`)}}),
			ToolMessage("call_1", `{"temp":18}`),
		},
		Tools:           []Tool{DefineFunction("get_weather", "Current weather", WithFunction(func(p *weatherParams) string { return "" }))},
		MaxTokens:       ptr(256),
		Temperature:     ptr(0.5),
		ReasoningEffort: ptr("extreme"),
	}

	tr, err := OpenAI{}.NewRequest(Endpoint{APIKey: "sk-test"}, req, true)
	require.NoError(t, err)
	assert.Equal(t, "POST", tr.Method)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", tr.URL)
	assert.Equal(t, "Bearer sk-test", tr.Header.Get("Authorization"))
	assert.Equal(t, "application/json", tr.Header.Get("Content-Type"))
	assert.Equal(t, "text/event-stream", tr.Header.Get("Accept"))

	body := gjson.ParseBytes(tr.Body)
	assert.Equal(t, "gpt-4o", body.Get("model").String())
	assert.True(t, body.Get("stream").Bool())
	assert.True(t, body.Get("stream_options.include_usage").Bool())
	assert.Equal(t, int64(256), body.Get("max_completion_tokens").Int())
	assert.InDelta(t, 0.5, body.Get("temperature").Float(), 1e-6)
	assert.Equal(t, constants.ReasoningEffortMedium, body.Get("reasoning_effort").String())

	messages := body.Get("messages").Array()
	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].Get("role").String())
	assert.Equal(t, "be brief", messages[0].Get("content").String())
	assert.Equal(t, "call_1", messages[2].Get("tool_calls.0.id").String())
	assert.Equal(t, `{"city":"Paris"}`, messages[2].Get("tool_calls.0.function.arguments").String())
	assert.False(t, messages[2].Get("tool_calls.0.index").Exists())
	assert.Equal(t, "call_1", messages[3].Get("tool_call_id").String())

	assert.Equal(t, "get_weather", body.Get("tools.0.function.name").String())
	assert.Equal(t, "string", body.Get("tools.0.function.parameters.properties.city.type").String())

	tr, err = OpenAI{}.NewRequest(Endpoint{BaseURL: "http://localhost:8080/v1/"}, &Request{Model: "local", Messages: req.Messages[:1]}, false)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/v1/chat/completions", tr.URL)
	assert.Empty(t, tr.Header.Get("Authorization"))
	assert.False(t, gjson.GetBytes(tr.Body, "stream").Exists())
}

func TestOpenAINewRequestParameterlessTool(t *testing.T) {
	req := &Request{
		Model:    "gpt-4o",
		Messages: []Message{UserMessage("hi")},
		Tools:    []Tool{DefineFunction("ping", "Health check")},
	}

	tr, err := OpenAI{}.NewRequest(Endpoint{}, req, false)
	require.NoError(t, err)
	params := gjson.GetBytes(tr.Body, "tools.0.function.parameters")
	assert.True(t, params.Get("properties").IsObject())
	assert.JSONEq(t, `{"type":"object","properties":{}}`, params.Raw)

	tr, err = Anthropic{}.NewRequest(Endpoint{}, &Request{Model: "claude-sonnet-4-5", Messages: req.Messages, Tools: req.Tools}, false)
	require.NoError(t, err)
	assert.True(t, gjson.GetBytes(tr.Body, "tools.0.input_schema.properties").IsObject())
}

func TestOpenAINewRequestSampling(t *testing.T) {
	req := &Request{
		Model:            "gpt-4o",
		Messages:         []Message{UserMessage("hi")},
		Seed:             ptr(42),
		FrequencyPenalty: ptr(0.5),
		PresencePenalty:  ptr(-1.0),
		LogitBias:        map[string]int{"50256": -100},
		User:             "user-42",
		ResponseFormat:   &ResponseFormat{Type: constants.ResponseFormatJSONObject},
	}

	tr, err := OpenAI{}.NewRequest(Endpoint{}, req, false)
	require.NoError(t, err)
	body := gjson.ParseBytes(tr.Body)
	assert.Equal(t, int64(42), body.Get("seed").Int())
	assert.InDelta(t, 0.5, body.Get("frequency_penalty").Float(), 1e-6)
	assert.InDelta(t, -1.0, body.Get("presence_penalty").Float(), 1e-6)
	assert.Equal(t, int64(-100), body.Get("logit_bias.50256").Int())
	assert.Equal(t, "user-42", body.Get("user").String())
	assert.Equal(t, "json_object", body.Get("response_format.type").String())

	tr, err = OpenAI{}.NewRequest(Endpoint{}, &Request{Model: "gpt-4o", Messages: req.Messages}, false)
	require.NoError(t, err)
	body = gjson.ParseBytes(tr.Body)
	for _, field := range []string{"seed", "frequency_penalty", "presence_penalty", "logit_bias", "user", "response_format"} {
		assert.False(t, body.Get(field).Exists(), field)
	}
}

func TestOpenAINewRequestJSONSchema(t *testing.T) {
	opts := newChatOptions(nil, []ChatOption{WithJSONSchema("weather", json.RawMessage(`{"type":"object"}`), true)})
	tr, err := OpenAI{}.NewRequest(Endpoint{}, &Request{
		Model:          "gpt-4o",
		Messages:       []Message{UserMessage("hi")},
		ResponseFormat: opts.responseFormat,
	}, false)
	require.NoError(t, err)

	format := gjson.GetBytes(tr.Body, "response_format")
	assert.Equal(t, "json_schema", format.Get("type").String())
	assert.Equal(t, "weather", format.Get("json_schema.name").String())
	assert.True(t, format.Get("json_schema.strict").Bool())
	assert.JSONEq(t, `{"type":"object","properties":{}}`, format.Get("json_schema.schema").Raw)

	_, err = OpenAI{}.NewRequest(Endpoint{}, &Request{
		Model:          "gpt-4o",
		Messages:       []Message{UserMessage("hi")},
		ResponseFormat: &ResponseFormat{Type: constants.ResponseFormatJSONSchema},
	}, false)
	assert.ErrorContains(t, err, "needs a name")

	_, err = OpenAI{}.NewRequest(Endpoint{}, &Request{
		Model:          "gpt-4o",
		Messages:       []Message{UserMessage("hi")},
		ResponseFormat: &ResponseFormat{Type: "yaml"},
	}, false)
	assert.ErrorContains(t, err, "unknown response format")
}

func TestOpenAIDecodeResponse(t *testing.T) {
	body := `{
		"id": "chatcmpl-1",
		"model": "gpt-4o-2024-08-06",
		"system_fingerprint": "fp_1",
		"choices": [{
			"index": 0,
			"finish_reason": "tool_calls",
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [
					{"id": "call_b", "type": "function", "function": {"name": "second", "arguments": "{\"n\":2}"}},
					{"id": "", "type": "function", "function": {"name": "third", "arguments": ""}}
				]
			}
		}],
		"usage": {
			"prompt_tokens": 20, "completion_tokens": 10, "total_tokens": 30,
			"prompt_tokens_details": {"cached_tokens": 5},
			"completion_tokens_details": {"reasoning_tokens": 3}
		}
	}`

	completion, err := OpenAI{}.DecodeResponse(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, constants.FinishReasonToolCalls, completion.FinishReason)
	assert.Equal(t, Usage{InputTokens: 20, OutputTokens: 10, TotalTokens: 30, CachedTokens: 5, ReasoningTokens: 3}, completion.Usage)
	assert.Equal(t, Meta{Provider: "openai", Model: "gpt-4o-2024-08-06", RequestID: "chatcmpl-1", SystemFingerprint: "fp_1", StopReason: "tool_calls"}, completion.Meta)

	calls := completion.Message.ToolCalls
	require.Len(t, calls, 2)
	assert.Equal(t, 0, calls[0].Index)
	assert.Equal(t, "call_b", calls[0].ID)
	assert.Equal(t, 1, calls[1].Index)
	assert.True(t, strings.HasPrefix(calls[1].ID, "call_"))
	assert.JSONEq(t, `{}`, string(calls[1].Function.Arguments))
}

func TestOpenAIDecodeResponseErrors(t *testing.T) {
	_, err := OpenAI{}.DecodeResponse(strings.NewReader(`{"choices":[]}`))
	assert.ErrorIs(t, err, ErrEmptyChoices)

	_, err = OpenAI{}.DecodeResponse(strings.NewReader(`{"choices":[{"message":{"role":"assistant","tool_calls":[{"id":"x","type":"function","function":{"name":"f","arguments":"{oops"}}]}}]}`))
	var malformed *MalformedToolArgumentsError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "{oops", malformed.Raw)

	_, err = OpenAI{}.DecodeResponse(strings.NewReader(`<html>`))
	assert.ErrorContains(t, err, "decoding response")
}

const openAIToolStream = `data: {"id":"c1","choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}

data: {"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"get_weather","arguments":""}}]}}]}

data: {"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"get_weather","arguments":"{\"ci"}}]}}]}

data: {"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"function":{"arguments":"{\"city\":\"Rome\"}"}}]}}]}

data: {"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ty\":\"Paris\"}"}}]}}]}

data: {"id":"c1","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}

data: {"id":"c1","choices":[],"usage":{"prompt_tokens":50,"completion_tokens":20,"total_tokens":70}}

data: [DONE]

`

func TestOpenAIDecodeStream(t *testing.T) {
	body := io.NopCloser(strings.NewReader(openAIToolStream))
	stream := NewDeltaStream(context.Background(), OpenAI{}.DecodeStream(body), body)

	a := NewAssembler()
	msg, err := a.Drain(stream)
	require.NoError(t, err)
	assert.Equal(t, constants.RoleAssistant, msg.Role)
	require.Len(t, msg.ToolCalls, 2)
	assert.Equal(t, "call_a", msg.ToolCalls[0].ID)
	assert.JSONEq(t, `{"city":"Paris"}`, string(msg.ToolCalls[0].Function.Arguments))
	assert.Equal(t, "call_b", msg.ToolCalls[1].ID)
	assert.JSONEq(t, `{"city":"Rome"}`, string(msg.ToolCalls[1].Function.Arguments))
	assert.Equal(t, constants.FinishReasonToolCalls, a.FinishReason())
	assert.Equal(t, Usage{InputTokens: 50, OutputTokens: 20, TotalTokens: 70}, a.Usage())
}

func TestOpenAIDecodeStreamWithoutDone(t *testing.T) {
	truncated := strings.TrimSuffix(openAIToolStream, "data: [DONE]\n\n")
	next := OpenAI{}.DecodeStream(strings.NewReader(truncated))
	_, err := Assemble(NewDeltaStream(context.Background(), next, nil))
	assert.ErrorIs(t, err, ErrIncompleteStream)
}

func TestOpenAIDecodeStreamError(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n" +
		"data: {\"error\":{\"message\":\"The server had an error\",\"type\":\"server_error\"}}\n\n"
	next := OpenAI{}.DecodeStream(strings.NewReader(input))

	d, err := next()
	require.NoError(t, err)
	assert.Equal(t, "Hi", d.Content)

	_, err = next()
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "server_error", te.Type)
	assert.Equal(t, "The server had an error", te.Message)

	next = OpenAI{}.DecodeStream(strings.NewReader("data: {not json\n\n"))
	_, err = next()
	assert.ErrorContains(t, err, "decoding chunk")
}
