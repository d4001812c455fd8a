package chatkit

import (
	"context"
)

// StreamWatcher handles events emitted during streamed generation.
type StreamWatcher interface {
	// OnContent is invoked whenever the model emits a piece of the visible response.
	OnContent(chunk string) error

	// OnToolCall is invoked for every tool-call fragment. The delta carries
	// whatever the provider sent: the ID and name usually arrive first,
	// followed by argument text.
	OnToolCall(ctx context.Context, delta ToolCallDelta) error

	// OnStop is invoked after the message was assembled successfully.
	OnStop(finishReason string) error
}

// Model defines the abstract interface for an LLM engine.
type Model interface {
	// Name returns the model identifier requests are sent for.
	Name() string

	// ChatCompletion performs a blocking chat completion request.
	ChatCompletion(ctx context.Context, messages []Message, opts ...ChatOption) (Response, error)

	// ChatCompletionStream performs a streaming chat completion request.
	// Partial outputs are pushed to the StreamWatcher set with
	// WithStreamWatcher; the returned Response holds the assembled message.
	ChatCompletionStream(ctx context.Context, messages []Message, opts ...ChatOption) (Response, error)
}

var _ Model = (*Client)(nil)
