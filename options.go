package chatkit

import "github.com/thecxx/chatkit/constants"

// DefaultMaxToolRounds bounds the tool loop when no cap is configured.
const DefaultMaxToolRounds = 8

// ChatOption represents a functional option to configure a single chat request.
// Options are applied in order and only affect the call they are passed to,
// after the client defaults.
type ChatOption func(*ChatOptions)

// ChatOptions holds per-request configuration.
// Fields are unexported; use the With* helpers to set them.
type ChatOptions struct {
	// model overrides the client model for this call.
	model string
	// prompt is the system prompt placed before the conversation.
	prompt string
	// tools is the list of tools the model may call.
	tools []Tool
	// watcher receives streamed deltas in ChatCompletionStream.
	watcher     StreamWatcher
	maxTokens   *int
	temperature *float64
	topK        *int
	topP        *float64
	stop        []string
	// reasoningLevel is one of the constants.ReasoningEffort* values.
	reasoningLevel *string

	responseFormat   *ResponseFormat
	seed             *int
	frequencyPenalty *float64
	presencePenalty  *float64
	logitBias        map[string]int
	user             string

	// budgetCheck runs the token accountant before dispatch.
	budgetCheck bool
	// reserve is the completion reservation used by the budget check
	// when maxTokens is unset.
	reserve int

	// Tool loop settings, read by the orchestrator.
	maxToolRounds   int
	escalateErrors  bool
	streaming       bool
	toolConcurrency int
}

func newChatOptions(defaults []ChatOption, opts []ChatOption) *ChatOptions {
	options := &ChatOptions{maxToolRounds: DefaultMaxToolRounds, toolConcurrency: 1}
	for _, opt := range defaults {
		opt(options)
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// reserved is the number of completion tokens the budget check keeps free.
func (opts *ChatOptions) reserved() int {
	if opts.maxTokens != nil {
		return *opts.maxTokens
	}
	return opts.reserve
}

// WithModel overrides the model for a single call.
func WithModel(model string) ChatOption {
	return func(opts *ChatOptions) { opts.model = model }
}

// WithSystemPrompt sets the system prompt for the current chat request.
func WithSystemPrompt(prompt string) ChatOption {
	return func(opts *ChatOptions) { opts.prompt = prompt }
}

// WithTool adds function tools the model may call during generation.
func WithTool(tools ...Tool) ChatOption {
	return func(opts *ChatOptions) { opts.tools = append(opts.tools, tools...) }
}

// WithStreamWatcher sets the handler that receives streamed fragments.
func WithStreamWatcher(watcher StreamWatcher) ChatOption {
	return func(opts *ChatOptions) { opts.watcher = watcher }
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int) ChatOption {
	return func(opts *ChatOptions) { opts.maxTokens = &maxTokens }
}

// WithTemperature sets temperature for the current request; if not provided, server defaults apply.
func WithTemperature(temperature float64) ChatOption {
	return func(opts *ChatOptions) { opts.temperature = &temperature }
}

// WithTopK sets the Top-K sampling parameter. OpenAI ignores it.
func WithTopK(topK int) ChatOption {
	return func(opts *ChatOptions) { opts.topK = &topK }
}

// WithTopP sets the Top-P (nucleus) sampling parameter.
func WithTopP(topP float64) ChatOption {
	return func(opts *ChatOptions) { opts.topP = &topP }
}

// WithStop sets stop sequences.
func WithStop(stop ...string) ChatOption {
	return func(opts *ChatOptions) { opts.stop = append(opts.stop, stop...) }
}

// WithReasoning sets the reasoning level. For OpenAI reasoning models this
// maps directly to reasoning_effort.
func WithReasoning(level string) ChatOption {
	return func(opts *ChatOptions) { opts.reasoningLevel = &level }
}

// WithResponseFormat constrains the answer format: constants.ResponseFormatText
// or constants.ResponseFormatJSONObject (JSON mode). See WithJSONSchema for
// structured outputs.
func WithResponseFormat(format string) ChatOption {
	return func(opts *ChatOptions) { opts.responseFormat = &ResponseFormat{Type: format} }
}

// WithJSONSchema requests an answer matching schema (structured outputs).
// schema is a JSON Schema document: json.RawMessage, a
// jsonschema.Definition, or any value encoding to one.
func WithJSONSchema(name string, schema any, strict bool) ChatOption {
	return func(opts *ChatOptions) {
		opts.responseFormat = &ResponseFormat{
			Type:   constants.ResponseFormatJSONSchema,
			Name:   name,
			Schema: schema,
			Strict: strict,
		}
	}
}

// WithSeed asks for deterministic sampling.
func WithSeed(seed int) ChatOption {
	return func(opts *ChatOptions) { opts.seed = &seed }
}

// WithFrequencyPenalty sets the frequency penalty, between -2.0 and 2.0.
func WithFrequencyPenalty(penalty float64) ChatOption {
	return func(opts *ChatOptions) { opts.frequencyPenalty = &penalty }
}

// WithPresencePenalty sets the presence penalty, between -2.0 and 2.0.
func WithPresencePenalty(penalty float64) ChatOption {
	return func(opts *ChatOptions) { opts.presencePenalty = &penalty }
}

// WithLogitBias biases token IDs (as decimal strings) by -100 to 100.
func WithLogitBias(bias map[string]int) ChatOption {
	return func(opts *ChatOptions) { opts.logitBias = bias }
}

// WithUser tags the request with an opaque end-user identifier.
func WithUser(user string) ChatOption {
	return func(opts *ChatOptions) { opts.user = user }
}

// WithBudgetCheck enables the context-window check before dispatch,
// keeping reserve tokens free for the completion unless WithMaxTokens is set.
func WithBudgetCheck(reserve int) ChatOption {
	return func(opts *ChatOptions) {
		opts.budgetCheck = true
		opts.reserve = reserve
	}
}

// WithMaxToolRounds caps the number of tool rounds a tool loop may run.
func WithMaxToolRounds(rounds int) ChatOption {
	return func(opts *ChatOptions) { opts.maxToolRounds = rounds }
}

// WithEscalateToolErrors makes tool failures abort the tool loop instead of
// being reported back to the model.
func WithEscalateToolErrors(escalate bool) ChatOption {
	return func(opts *ChatOptions) { opts.escalateErrors = escalate }
}

// WithStreaming makes the tool loop dispatch every turn as a stream.
func WithStreaming(streaming bool) ChatOption {
	return func(opts *ChatOptions) { opts.streaming = streaming }
}

// WithToolConcurrency runs up to n tool calls of one round in parallel.
func WithToolConcurrency(n int) ChatOption {
	return func(opts *ChatOptions) { opts.toolConcurrency = n }
}
