package chatkit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Dispatcher sends one chat turn. *Client implements it.
type Dispatcher interface {
	Send(ctx context.Context, messages []Message, opts ...ChatOption) (Response, error)
	Stream(ctx context.Context, messages []Message, opts ...ChatOption) (*DeltaStream, error)
}

// Invoker executes a tool by name. The returned value becomes the tool
// message content: strings as-is, anything else JSON-encoded.
type Invoker interface {
	Invoke(ctx context.Context, name string, arguments json.RawMessage) (any, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, name string, arguments json.RawMessage) (any, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, name string, arguments json.RawMessage) (any, error) {
	return f(ctx, name, arguments)
}

// toolLister is implemented by invokers that can describe their tools.
type toolLister interface {
	Tools() []Tool
}

// Result is the outcome of a completed tool loop.
type Result struct {
	// Final is the assistant message without tool calls that ended the loop.
	Final Message
	// Conversation is the input conversation followed by every message
	// produced during the run, Final included.
	Conversation []Message
	// Rounds is the number of tool rounds executed.
	Rounds int
	// Usage is the usage summed over every dispatch.
	Usage Usage
}

// Orchestrator drives the tool-calling loop: dispatch, execute requested
// tools, append their results, dispatch again, until the model answers
// without tool calls or the round cap is hit.
type Orchestrator struct {
	dispatcher Dispatcher
	invoker    Invoker
	logger     *slog.Logger
	metrics    *Metrics
	defaults   []ChatOption
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithOrchestratorMetrics records tool invocations.
func WithOrchestratorMetrics(metrics *Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = metrics }
}

func withOrchestratorDefaults(defaults []ChatOption) OrchestratorOption {
	return func(o *Orchestrator) { o.defaults = defaults }
}

// NewOrchestrator creates an orchestrator sending turns through dispatcher
// and executing tools through invoker.
func NewOrchestrator(dispatcher Dispatcher, invoker Invoker, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{dispatcher: dispatcher, invoker: invoker}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Run drives the loop over a copy of conversation; the caller's slice is
// never modified or retained. Every failure is an *OrchestrationError
// holding the conversation accepted so far.
func (o *Orchestrator) Run(ctx context.Context, conversation []Message, opts ...ChatOption) (*Result, error) {
	options := newChatOptions(o.defaults, opts)
	if len(options.tools) == 0 {
		if lister, ok := o.invoker.(toolLister); ok {
			opts = append(slices.Clip(opts), WithTool(lister.Tools()...))
		}
	}

	conv := slices.Clone(conversation)
	var usage Usage
	for round := 0; ; round++ {
		o.logger.DebugContext(ctx, "dispatching turn", "round", round, "messages", len(conv), "stream", options.streaming)
		msg, turnUsage, err := o.turn(ctx, conv, options.streaming, opts)
		if err != nil {
			return nil, &OrchestrationError{Stage: stageOf(err), Round: round, Conversation: conv, Err: err}
		}
		usage = usage.Add(turnUsage)

		if len(msg.ToolCalls) == 0 {
			conv = append(conv, msg)
			return &Result{Final: msg, Conversation: conv, Rounds: round, Usage: usage}, nil
		}
		if round >= options.maxToolRounds {
			o.logger.WarnContext(ctx, "tool loop exceeded", "round", round, "max_rounds", options.maxToolRounds)
			return nil, &OrchestrationError{Stage: StageLoop, Round: round, Conversation: conv, Pending: &msg, Err: ErrToolLoopExceeded}
		}

		results, err := o.executeTools(ctx, round, msg.ToolCalls, options)
		if err != nil {
			return nil, &OrchestrationError{Stage: StageToolExecution, Round: round, Conversation: conv, Pending: &msg, Err: err}
		}
		conv = append(conv, msg)
		conv = append(conv, results...)
	}
}

// turn dispatches one request and returns the assembled assistant message.
func (o *Orchestrator) turn(ctx context.Context, conv []Message, streaming bool, opts []ChatOption) (Message, Usage, error) {
	if !streaming {
		resp, err := o.dispatcher.Send(ctx, conv, opts...)
		if err != nil {
			return Message{}, Usage{}, err
		}
		return resp.Answer(), resp.Usage(), nil
	}

	stream, err := o.dispatcher.Stream(ctx, conv, opts...)
	if err != nil {
		return Message{}, Usage{}, err
	}
	defer stream.Close()
	assembler := NewAssembler()
	msg, err := assembler.Drain(stream)
	if err != nil {
		return Message{}, Usage{}, err
	}
	return msg, assembler.Usage(), nil
}

// executeTools runs the calls of one round and returns their tool
// messages in call order, whatever order they complete in.
func (o *Orchestrator) executeTools(ctx context.Context, round int, calls []ToolCall, options *ChatOptions) ([]Message, error) {
	results := make([]Message, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, options.toolConcurrency))
	for i, call := range calls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := o.invoke(gctx, call)
			o.metrics.observeTool(call.Function.Name, err)
			if err != nil {
				if options.escalateErrors {
					return err
				}
				o.logger.WarnContext(gctx, "tool failed, reporting to model",
					"round", round, "tool", call.Function.Name, "id", call.ID, "error", err)
				results[i] = ToolErrorMessage(call.ID, errorContent(err))
				return nil
			}
			o.logger.DebugContext(gctx, "tool finished", "round", round, "tool", call.Function.Name, "id", call.ID)
			results[i] = ToolMessage(call.ID, content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) invoke(ctx context.Context, call ToolCall) (string, error) {
	value, err := o.invoker.Invoke(ctx, call.Function.Name, call.Function.Arguments)
	if err != nil {
		return "", &ToolExecutionError{Name: call.Function.Name, CallID: call.ID, Err: err}
	}
	content, err := toolContent(value)
	if err != nil {
		return "", &ToolExecutionError{Name: call.Function.Name, CallID: call.ID, Err: err}
	}
	return content, nil
}

func toolContent(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case json.RawMessage:
		return string(v), nil
	case []byte:
		return string(v), nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// errorContent is the tool message reporting a failure to the model.
func errorContent(err error) string {
	var te *ToolExecutionError
	if errors.As(err, &te) {
		err = te.Err
	}
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}
