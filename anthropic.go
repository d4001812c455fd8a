package chatkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/thecxx/chatkit/constants"
	"github.com/thecxx/chatkit/sse"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// DefaultAnthropicBaseURL is the public Anthropic API root.
	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	// AnthropicVersion is the API version header sent with every request.
	AnthropicVersion = "2023-06-01"
	// DefaultAnthropicMaxTokens is used when a request sets no limit, as the
	// Messages API requires one.
	DefaultAnthropicMaxTokens = 4096
)

// Anthropic adapts the Messages API.
type Anthropic struct{}

// Name implements Provider.
func (Anthropic) Name() string { return constants.ProviderAnthropic }

// NewRequest implements Provider.
func (p Anthropic) NewRequest(endpoint Endpoint, req *Request, stream bool) (*TransportRequest, error) {
	params, err := p.makeRequest(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("chatkit/anthropic: encoding request: %w", err)
	}
	if stream {
		if body, err = sjson.SetBytes(body, "stream", true); err != nil {
			return nil, fmt.Errorf("chatkit/anthropic: encoding request: %w", err)
		}
	}
	tr := newWireRequest(p.endpoint(endpoint), "/v1/messages", body)
	p.authorize(tr, endpoint)
	if stream {
		tr.Header.Set("Accept", "text/event-stream")
	}
	return tr, nil
}

func (Anthropic) endpoint(endpoint Endpoint) Endpoint {
	if endpoint.BaseURL == "" {
		endpoint.BaseURL = DefaultAnthropicBaseURL
	}
	return endpoint
}

func (Anthropic) authorize(tr *TransportRequest, endpoint Endpoint) {
	if endpoint.APIKey != "" {
		tr.Header.Set("x-api-key", endpoint.APIKey)
	}
	tr.Header.Set("anthropic-version", AnthropicVersion)
}

// makeRequest builds Anthropic MessageNewParams from a neutral request.
// System messages are lifted into the system prompt, and consecutive tool
// results are grouped into one user turn.
func (Anthropic) makeRequest(req *Request) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(req.Model),
		MaxTokens:     DefaultAnthropicMaxTokens,
		StopSequences: req.Stop,
	}
	if req.MaxTokens != nil {
		params.MaxTokens = int64(*req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	if req.TopK != nil {
		params.TopK = anthropic.Int(int64(*req.TopK))
	}
	if req.User != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(req.User)}
	}
	if err := anthropicUnsupported(req); err != nil {
		return params, err
	}

	if req.System != "" {
		params.System = append(params.System, anthropic.TextBlockParam{Text: req.System})
	}

	var results []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(results) > 0 {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(results...))
			results = nil
		}
	}
	for _, msg := range req.Messages {
		if msg.Role == constants.RoleTool {
			results = append(results, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError))
			continue
		}
		flush()
		switch msg.Role {
		case constants.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
		case constants.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args := call.Function.Arguments
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    call.ID,
					Name:  call.Function.Name,
					Input: args,
				}})
			}
			// The API rejects empty text blocks.
			if len(blocks) == 0 {
				continue
			}
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	flush()

	for _, t := range req.Tools {
		fn, err := functionOf(t)
		if err != nil {
			return params, err
		}
		schema, err := anthropicInputSchema(fn)
		if err != nil {
			return params, err
		}
		toolParam := anthropic.ToolParam{
			Name:        fn.Name,
			InputSchema: schema,
		}
		if fn.Description != "" {
			toolParam.Description = anthropic.String(fn.Description)
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return params, nil
}

// anthropicUnsupported rejects sampling controls the Messages API has no
// equivalent for.
func anthropicUnsupported(req *Request) error {
	var names []string
	if req.ResponseFormat != nil {
		names = append(names, "response_format")
	}
	if req.Seed != nil {
		names = append(names, "seed")
	}
	if req.FrequencyPenalty != nil {
		names = append(names, "frequency_penalty")
	}
	if req.PresencePenalty != nil {
		names = append(names, "presence_penalty")
	}
	if len(req.LogitBias) > 0 {
		names = append(names, "logit_bias")
	}
	if len(names) > 0 {
		return fmt.Errorf("%w: anthropic: %s", ErrNotSupported, strings.Join(names, ", "))
	}
	return nil
}

func anthropicInputSchema(fn *FunctionDefinition) (anthropic.ToolInputSchemaParam, error) {
	raw, err := parametersJSON(fn)
	if err != nil {
		return anthropic.ToolInputSchemaParam{}, fmt.Errorf("chatkit/anthropic: encoding parameters of %s: %w", fn.Name, err)
	}
	schema := anthropic.ToolInputSchemaParam{Properties: map[string]any{}}
	parsed := gjson.ParseBytes(raw)
	if props := parsed.Get("properties"); props.IsObject() {
		schema.Properties = json.RawMessage(props.Raw)
	}
	for _, name := range parsed.Get("required").Array() {
		schema.Required = append(schema.Required, name.String())
	}
	return schema, nil
}

// DecodeResponse implements Provider.
func (Anthropic) DecodeResponse(body io.Reader) (*Completion, error) {
	var resp anthropic.Message
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("chatkit/anthropic: decoding response: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, ErrEmptyChoices
	}

	msg := Message{Role: constants.RoleAssistant}
	var (
		content strings.Builder
		errs    []error
	)
	for i, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			slot := &partialToolCall{id: b.ID, name: b.Name}
			slot.args.Write(b.Input)
			call, err := slot.build(i)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	msg.Content = content.String()

	usage := Usage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		CachedTokens: int(resp.Usage.CacheReadInputTokens),
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens

	return &Completion{
		Message:      msg,
		FinishReason: anthropicFinishReason(resp.StopReason),
		Usage:        usage,
		Meta: Meta{
			Provider:   constants.ProviderAnthropic,
			Model:      string(resp.Model),
			RequestID:  resp.ID,
			StopReason: string(resp.StopReason),
		},
	}, nil
}

// DecodeStream implements Provider. The terminal marker is the
// message_stop event; content-block indices become tool-call indices.
func (Anthropic) DecodeStream(body io.Reader) DeltaFunc {
	scanner := sse.NewScanner(body)
	return func() (Delta, error) {
		for scanner.Next() {
			ev := scanner.Event()
			if ev.Name == "error" || gjson.Get(ev.Data, "type").String() == "error" {
				return Delta{}, parseErrorPayload(0, []byte(ev.Data))
			}

			var event anthropic.MessageStreamEventUnion
			if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
				return Delta{}, fmt.Errorf("chatkit/anthropic: decoding event: %w", err)
			}
			switch e := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				return Delta{
					Role: constants.RoleAssistant,
					Usage: &Usage{
						InputTokens:  int(e.Message.Usage.InputTokens),
						CachedTokens: int(e.Message.Usage.CacheReadInputTokens),
					},
				}, nil
			case anthropic.ContentBlockStartEvent:
				switch block := e.ContentBlock.AsAny().(type) {
				case anthropic.ToolUseBlock:
					return Delta{ToolCalls: []ToolCallDelta{{
						Index: int(e.Index),
						ID:    block.ID,
						Type:  constants.ToolTypeFunction,
						Name:  block.Name,
					}}}, nil
				case anthropic.TextBlock:
					if block.Text != "" {
						return Delta{Content: block.Text}, nil
					}
				}
			case anthropic.ContentBlockDeltaEvent:
				switch d := e.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					return Delta{Content: d.Text}, nil
				case anthropic.InputJSONDelta:
					return Delta{ToolCalls: []ToolCallDelta{{Index: int(e.Index), Arguments: d.PartialJSON}}}, nil
				}
			case anthropic.MessageDeltaEvent:
				return Delta{
					FinishReason: anthropicFinishReason(e.Delta.StopReason),
					Usage:        &Usage{OutputTokens: int(e.Usage.OutputTokens)},
				}, nil
			case anthropic.MessageStopEvent:
				return Delta{Done: true}, nil
			}
		}
		if err := scanner.Err(); err != nil {
			return Delta{}, err
		}
		return Delta{}, io.EOF
	}
}

func anthropicFinishReason(reason anthropic.StopReason) string {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return constants.FinishReasonStop
	case anthropic.StopReasonMaxTokens:
		return constants.FinishReasonLength
	case anthropic.StopReasonToolUse:
		return constants.FinishReasonToolCalls
	case anthropic.StopReasonRefusal:
		return constants.FinishReasonContentFilter
	}
	return string(reason)
}
