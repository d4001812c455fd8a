package chatkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/thecxx/chatkit/constants"
	"github.com/thecxx/chatkit/sse"
	"github.com/tidwall/gjson"
)

// DefaultOpenAIBaseURL is the public OpenAI API root.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI adapts the Chat Completions API and compatible servers.
type OpenAI struct{}

// Name implements Provider.
func (OpenAI) Name() string { return constants.ProviderOpenAI }

// NewRequest implements Provider.
func (p OpenAI) NewRequest(endpoint Endpoint, req *Request, stream bool) (*TransportRequest, error) {
	wire, err := p.makeRequest(req)
	if err != nil {
		return nil, err
	}
	if stream {
		wire.Stream = true
		wire.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("chatkit/openai: encoding request: %w", err)
	}
	tr := newWireRequest(p.endpoint(endpoint), "/chat/completions", body)
	p.authorize(tr, endpoint)
	if stream {
		tr.Header.Set("Accept", "text/event-stream")
	}
	return tr, nil
}

func (OpenAI) endpoint(endpoint Endpoint) Endpoint {
	if endpoint.BaseURL == "" {
		endpoint.BaseURL = DefaultOpenAIBaseURL
	}
	return endpoint
}

func (OpenAI) authorize(tr *TransportRequest, endpoint Endpoint) {
	if endpoint.APIKey != "" {
		tr.Header.Set("Authorization", "Bearer "+endpoint.APIKey)
	}
}

// makeRequest builds an OpenAI ChatCompletionRequest from a neutral request.
func (OpenAI) makeRequest(req *Request) (openai.ChatCompletionRequest, error) {
	wire := openai.ChatCompletionRequest{Model: req.Model, Stop: req.Stop}
	if req.MaxTokens != nil {
		wire.MaxCompletionTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		wire.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		wire.TopP = float32(*req.TopP)
	}
	if req.Seed != nil {
		seed := *req.Seed
		wire.Seed = &seed
	}
	if req.FrequencyPenalty != nil {
		wire.FrequencyPenalty = float32(*req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil {
		wire.PresencePenalty = float32(*req.PresencePenalty)
	}
	wire.LogitBias = req.LogitBias
	wire.User = req.User
	if req.ResponseFormat != nil {
		format, err := openAIResponseFormat(req.ResponseFormat)
		if err != nil {
			return wire, err
		}
		wire.ResponseFormat = format
	}
	if req.ReasoningEffort != nil {
		switch *req.ReasoningEffort {
		case constants.ReasoningEffortLow, constants.ReasoningEffortMedium, constants.ReasoningEffortHigh:
			wire.ReasoningEffort = *req.ReasoningEffort
		default:
			wire.ReasoningEffort = constants.ReasoningEffortMedium
		}
	}

	if req.System != "" {
		wire.Messages = append(wire.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		wire.Messages = append(wire.Messages, toOpenAIMessage(msg))
	}

	for _, t := range req.Tools {
		fn, err := functionOf(t)
		if err != nil {
			return wire, err
		}
		params, err := parametersJSON(fn)
		if err != nil {
			return wire, fmt.Errorf("chatkit/openai: encoding parameters of %s: %w", fn.Name, err)
		}
		wire.Tools = append(wire.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  params,
				Strict:      fn.Strict,
			},
		})
	}
	return wire, nil
}

func openAIResponseFormat(rf *ResponseFormat) (*openai.ChatCompletionResponseFormat, error) {
	switch rf.Type {
	case constants.ResponseFormatText, constants.ResponseFormatJSONObject:
		return &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatType(rf.Type)}, nil
	case constants.ResponseFormatJSONSchema:
		if rf.Name == "" {
			return nil, errors.New("chatkit/openai: json_schema response format needs a name")
		}
		schema, err := schemaJSON(rf.Schema)
		if err != nil {
			return nil, fmt.Errorf("chatkit/openai: encoding response schema %s: %w", rf.Name, err)
		}
		return &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   rf.Name,
				Schema: schema,
				Strict: rf.Strict,
			},
		}, nil
	}
	return nil, fmt.Errorf("chatkit/openai: unknown response format %q", rf.Type)
}

func toOpenAIMessage(msg Message) openai.ChatCompletionMessage {
	raw := openai.ChatCompletionMessage{
		Role:       msg.Role,
		Content:    msg.Content,
		Name:       msg.Name,
		ToolCallID: msg.ToolCallID,
	}
	for _, call := range msg.ToolCalls {
		raw.ToolCalls = append(raw.ToolCalls, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolType(call.Type),
			Function: openai.FunctionCall{
				Name:      call.Function.Name,
				Arguments: string(call.Function.Arguments),
			},
		})
	}
	return raw
}

// DecodeResponse implements Provider.
func (OpenAI) DecodeResponse(body io.Reader) (*Completion, error) {
	var resp openai.ChatCompletionResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("chatkit/openai: decoding response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyChoices
	}
	choice := resp.Choices[0]

	msg := Message{Role: choice.Message.Role, Content: choice.Message.Content}
	if msg.Role == "" {
		msg.Role = constants.RoleAssistant
	}
	if msg.Content == "" {
		var text strings.Builder
		for _, part := range choice.Message.MultiContent {
			if string(part.Type) == constants.ContentPartTypeText {
				text.WriteString(part.Text)
			}
		}
		msg.Content = text.String()
	}

	var errs []error
	for i, call := range choice.Message.ToolCalls {
		index := i
		if call.Index != nil {
			index = *call.Index
		}
		slot := &partialToolCall{id: call.ID, type_: string(call.Type), name: call.Function.Name}
		slot.args.WriteString(call.Function.Arguments)
		tc, err := slot.build(index)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msg.ToolCalls = append(msg.ToolCalls, tc)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &Completion{
		Message:      msg,
		FinishReason: string(choice.FinishReason),
		Usage:        openAIUsage(&resp.Usage),
		Meta: Meta{
			Provider:          constants.ProviderOpenAI,
			Model:             resp.Model,
			RequestID:         resp.ID,
			SystemFingerprint: resp.SystemFingerprint,
			StopReason:        string(choice.FinishReason),
		},
	}, nil
}

func openAIUsage(u *openai.Usage) Usage {
	usage := Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		usage.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	if u.CompletionTokensDetails != nil {
		usage.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	return usage
}

// DecodeStream implements Provider. The terminal marker is "data: [DONE]".
func (OpenAI) DecodeStream(body io.Reader) DeltaFunc {
	scanner := sse.NewScanner(body)
	return func() (Delta, error) {
		for scanner.Next() {
			data := scanner.Event().Data
			if data == "[DONE]" {
				return Delta{Done: true}, nil
			}
			if errObj := gjson.Get(data, "error"); errObj.Exists() {
				return Delta{}, parseErrorPayload(0, []byte(data))
			}

			var chunk openai.ChatCompletionStreamResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return Delta{}, fmt.Errorf("chatkit/openai: decoding chunk: %w", err)
			}
			delta := Delta{}
			if chunk.Usage != nil {
				usage := openAIUsage(chunk.Usage)
				delta.Usage = &usage
			}
			if len(chunk.Choices) > 0 {
				choice := chunk.Choices[0]
				delta.Role = choice.Delta.Role
				delta.Content = choice.Delta.Content
				delta.FinishReason = string(choice.FinishReason)
				for i, call := range choice.Delta.ToolCalls {
					index := i
					if call.Index != nil {
						index = *call.Index
					}
					delta.ToolCalls = append(delta.ToolCalls, ToolCallDelta{
						Index:     index,
						ID:        call.ID,
						Type:      string(call.Type),
						Name:      call.Function.Name,
						Arguments: call.Function.Arguments,
					})
				}
			}
			if delta.empty() {
				continue
			}
			return delta, nil
		}
		if err := scanner.Err(); err != nil {
			return Delta{}, err
		}
		return Delta{}, io.EOF
	}
}
