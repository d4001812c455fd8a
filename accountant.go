package chatkit

import (
	"errors"
	"unicode/utf8"

	"github.com/thecxx/chatkit/tokenizer"
)

// Chat-format overheads. They follow the published accounting for the
// chat models and never under-count.
const (
	tokensPerMessage  = 3
	tokensPerName     = 1
	tokensReplyPrimer = 3
	tokensPerToolCall = 3
	tokensPerTool     = 8
	tokensToolsPrefix = 12
)

// Accountant counts prompt tokens for a model and checks them against its
// context window. It is safe for concurrent use.
type Accountant struct {
	registry *tokenizer.Registry
}

// NewAccountant returns an accountant backed by registry, or by the
// default model tables when registry is nil.
func NewAccountant(registry *tokenizer.Registry) *Accountant {
	if registry == nil {
		registry = tokenizer.NewRegistry()
	}
	return &Accountant{registry: registry}
}

// Registry returns the model tables in use.
func (a *Accountant) Registry() *tokenizer.Registry { return a.registry }

// CountTokens returns the prompt token count of messages and tool
// definitions for model. Models without a registered encoding fail with
// ErrUnsupportedModel; no fallback is applied.
func (a *Accountant) CountTokens(model string, messages []Message, tools ...Tool) (int, error) {
	enc, err := a.registry.EncoderFor(model)
	if err != nil {
		return 0, unsupported(model, err)
	}
	return countTokens(enc, messages, tools)
}

// CountTokensWithEncoding counts with a named encoding, for models the
// registry does not know.
func (a *Accountant) CountTokensWithEncoding(encoding string, messages []Message, tools ...Tool) (int, error) {
	enc, err := a.registry.Encoder(encoding)
	if err != nil {
		return 0, err
	}
	return countTokens(enc, messages, tools)
}

// Budget computes the token budget of a prompt for model with reserved
// completion tokens.
func (a *Accountant) Budget(model string, messages []Message, reserved int, tools ...Tool) (Budget, error) {
	window, err := a.registry.ContextWindow(model)
	if err != nil {
		return Budget{}, unsupported(model, err)
	}
	prompt, err := a.CountTokens(model, messages, tools...)
	if err != nil {
		return Budget{}, err
	}
	return Budget{Model: model, Window: window, Prompt: prompt, Reserved: reserved}, nil
}

// FitsBudget reports whether the prompt plus reserved completion tokens
// fits the model's context window.
func (a *Accountant) FitsBudget(model string, messages []Message, reserved int, tools ...Tool) (bool, error) {
	budget, err := a.Budget(model, messages, reserved, tools...)
	if err != nil {
		return false, err
	}
	return budget.Fits(), nil
}

// Budget is a token budget computed for one call.
type Budget struct {
	Model    string
	Window   int
	Prompt   int
	Reserved int
}

// Fits reports whether prompt plus reservation fits the window.
func (b Budget) Fits() bool { return b.Prompt+b.Reserved <= b.Window }

// Remaining is the headroom left after the prompt and the reservation,
// negative when the budget does not fit.
func (b Budget) Remaining() int { return b.Window - b.Prompt - b.Reserved }

// EstimateTokens approximates a token count as one token per four
// characters, rounded up. It is a heuristic for models without an encoding.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

func countTokens(enc tokenizer.Encoder, messages []Message, tools []Tool) (int, error) {
	total := tokensReplyPrimer
	for _, msg := range messages {
		total += tokensPerMessage
		total += tokenizer.Count(enc, msg.Role)
		total += tokenizer.Count(enc, msg.Content)
		if msg.Name != "" {
			total += tokenizer.Count(enc, msg.Name) + tokensPerName
		}
		if msg.ToolCallID != "" {
			total += tokenizer.Count(enc, msg.ToolCallID)
		}
		for _, call := range msg.ToolCalls {
			total += tokensPerToolCall
			total += tokenizer.Count(enc, call.Function.Name)
			total += tokenizer.Count(enc, string(call.Function.Arguments))
		}
	}
	if len(tools) > 0 {
		total += tokensToolsPrefix
	}
	for _, t := range tools {
		fn, err := functionOf(t)
		if err != nil {
			return 0, err
		}
		params, err := parametersJSON(fn)
		if err != nil {
			return 0, err
		}
		total += tokensPerTool
		total += tokenizer.Count(enc, fn.Name)
		total += tokenizer.Count(enc, fn.Description)
		total += tokenizer.Count(enc, string(params))
	}
	return total, nil
}

func unsupported(model string, err error) error {
	if errors.Is(err, ErrUnsupportedModel) {
		return &UnsupportedModelError{Model: model, Err: err}
	}
	return err
}
