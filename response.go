package chatkit

import "time"

// Response wraps the final assistant message produced by one dispatch.
// Both buffered and streaming APIs return a Response upon completion.
type Response interface {
	// Answer returns the final assistant message.
	Answer() Message
	// ToolCalls returns the tool calls of the answer, ordered by index.
	ToolCalls() []ToolCall
	// FinishReason returns the normalized stop reason (see constants.FinishReason*).
	FinishReason() string
	// Usage returns the token usage reported by the provider.
	Usage() Usage
	// Meta returns the request metadata.
	Meta() Meta
	// Duration returns the total elapsed time of the request.
	Duration() time.Duration
}

type response struct {
	answer       Message
	finishReason string
	usage        Usage
	meta         Meta
	duration     time.Duration
}

func (resp *response) Answer() Message         { return resp.answer }
func (resp *response) ToolCalls() []ToolCall   { return resp.answer.ToolCalls }
func (resp *response) FinishReason() string    { return resp.finishReason }
func (resp *response) Usage() Usage            { return resp.usage }
func (resp *response) Meta() Meta              { return resp.meta }
func (resp *response) Duration() time.Duration { return resp.duration }

// Meta contains request metadata.
type Meta struct {
	// Provider is the adapter name (openai, anthropic).
	Provider string
	// Model is the model that served the request.
	Model string
	// RequestID is the provider-assigned response ID.
	RequestID string
	// SystemFingerprint distinguishes OpenAI backend versions.
	SystemFingerprint string
	// StopReason is the provider's raw stop reason.
	StopReason string
}

// Usage is the token usage reported by a provider.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	TotalTokens     int
	CachedTokens    int
	ReasoningTokens int
}

// Add returns the field-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:     u.InputTokens + o.InputTokens,
		OutputTokens:    u.OutputTokens + o.OutputTokens,
		TotalTokens:     u.TotalTokens + o.TotalTokens,
		CachedTokens:    u.CachedTokens + o.CachedTokens,
		ReasoningTokens: u.ReasoningTokens + o.ReasoningTokens,
	}
}

// merge overlays the non-zero fields of o, as providers report usage
// piecemeal across stream events.
func (u *Usage) merge(o Usage) {
	if o.InputTokens > 0 {
		u.InputTokens = o.InputTokens
	}
	if o.OutputTokens > 0 {
		u.OutputTokens = o.OutputTokens
	}
	if o.CachedTokens > 0 {
		u.CachedTokens = o.CachedTokens
	}
	if o.ReasoningTokens > 0 {
		u.ReasoningTokens = o.ReasoningTokens
	}
	if o.TotalTokens > 0 {
		u.TotalTokens = o.TotalTokens
	}
	if u.TotalTokens < u.InputTokens+u.OutputTokens {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
}
