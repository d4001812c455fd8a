package chatkit

import (
	"errors"
	"fmt"

	"github.com/thecxx/chatkit/tokenizer"
)

var (
	// ErrUnsupportedModel is returned when the token accountant has no
	// encoding or context window for a model. The request is not sent.
	ErrUnsupportedModel = tokenizer.ErrUnsupportedModel

	// ErrIncompleteStream is returned when a stream ends, fails, or is
	// cancelled before its terminal marker. Partial content is discarded.
	ErrIncompleteStream = errors.New("chatkit: stream ended before terminal marker")

	// ErrToolLoopExceeded is returned when the model keeps requesting tools
	// after the configured number of tool rounds.
	ErrToolLoopExceeded = errors.New("chatkit: tool loop exceeded")

	// ErrContextWindowExceeded is returned by the budget check when the
	// prompt plus the completion reservation does not fit the model.
	ErrContextWindowExceeded = errors.New("chatkit: context window exceeded")

	// ErrEmptyChoices is returned when a buffered response carries no choice.
	ErrEmptyChoices = errors.New("chatkit: response has no choices")

	// ErrToolNotFound is returned by ToolRegistry for unknown tool names.
	ErrToolNotFound = errors.New("chatkit: tool not found")

	// ErrAssemblerClosed is returned when a delta is pushed into an
	// assembler that already finished or failed.
	ErrAssemblerClosed = errors.New("chatkit: assembler closed")

	// ErrNotSupported is returned when the provider lacks an endpoint.
	ErrNotSupported = errors.New("chatkit: not supported by provider")
)

// TransportError is a failed exchange with the provider: either the
// request never completed (Err is set) or the provider answered with a
// non-2xx status (StatusCode is set). It is never retried by this package.
type TransportError struct {
	// StatusCode is the HTTP status, zero for network failures.
	StatusCode int
	// Type and Code are the provider's error classification, if any.
	Type string
	Code string
	// Message is the provider's human-readable error.
	Message string
	// Body holds the raw error payload, truncated.
	Body []byte
	// Err is the underlying network or I/O error.
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("chatkit: transport: %v", e.Err)
	case e.Type != "":
		return fmt.Sprintf("chatkit: HTTP %d: %s: %s", e.StatusCode, e.Type, e.Message)
	default:
		return fmt.Sprintf("chatkit: HTTP %d: %s", e.StatusCode, e.Message)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRateLimited reports a provider-side throttle (HTTP 429).
func (e *TransportError) IsRateLimited() bool { return e.StatusCode == 429 }

// MalformedToolArgumentsError names a tool call whose complete argument
// text is not a valid JSON object.
type MalformedToolArgumentsError struct {
	Index int
	ID    string
	Name  string
	Raw   string
}

func (e *MalformedToolArgumentsError) Error() string {
	return fmt.Sprintf("chatkit: malformed arguments for tool call %d (%s %q): %q", e.Index, e.Name, e.ID, e.Raw)
}

// ToolExecutionError wraps a failure reported by the tool collaborator.
type ToolExecutionError struct {
	Name   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("chatkit: tool %s (%s): %v", e.Name, e.CallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// UnsupportedModelError names the model the accountant could not serve.
type UnsupportedModelError struct {
	Model string
	Err   error
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("chatkit: unsupported model %q: %v", e.Model, e.Err)
}

func (e *UnsupportedModelError) Unwrap() error { return e.Err }

// BudgetError reports a request rejected by the budget check.
type BudgetError struct {
	Budget Budget
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("chatkit: %s needs %d prompt + %d reserved tokens, window is %d",
		e.Budget.Model, e.Budget.Prompt, e.Budget.Reserved, e.Budget.Window)
}

func (e *BudgetError) Unwrap() error { return ErrContextWindowExceeded }

// Stage names the part of an orchestration that failed.
type Stage string

const (
	StageDispatch      Stage = "dispatch"
	StageAssembly      Stage = "assembly"
	StageToolExecution Stage = "tool_execution"
	StageLoop          Stage = "loop"
)

// OrchestrationError is returned by the tool orchestrator for every fatal
// failure. Conversation holds every message accepted so far, ready to be
// inspected or resumed; Pending holds an assistant turn whose tool calls
// were not answered.
type OrchestrationError struct {
	Stage        Stage
	Round        int
	Conversation []Message
	Pending      *Message
	Err          error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("chatkit: %s failed in round %d: %v", e.Stage, e.Round, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

// stageOf classifies a dispatch failure.
func stageOf(err error) Stage {
	var malformed *MalformedToolArgumentsError
	if errors.As(err, &malformed) || errors.Is(err, ErrIncompleteStream) {
		return StageAssembly
	}
	return StageDispatch
}
