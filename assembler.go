package chatkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/thecxx/chatkit/constants"
	"github.com/tidwall/gjson"
)

// AssemblerState is the lifecycle state of an Assembler.
type AssemblerState int

const (
	StateEmpty AssemblerState = iota
	StateAccumulating
	StateFinished
	StateErrored
)

func (s AssemblerState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateAccumulating:
		return "accumulating"
	case StateFinished:
		return "finished"
	case StateErrored:
		return "errored"
	}
	return fmt.Sprintf("AssemblerState(%d)", int(s))
}

// Assembler folds an ordered sequence of deltas into one complete
// assistant message. A message is only produced after the terminal
// marker; anything else discards the partial content.
//
// An Assembler is used by a single goroutine.
type Assembler struct {
	state        AssemblerState
	role         string
	content      strings.Builder
	calls        map[int]*partialToolCall
	finishReason string
	usage        Usage
	message      Message
	err          error
}

type partialToolCall struct {
	id    string
	type_ string
	name  string
	args  strings.Builder
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{calls: make(map[int]*partialToolCall)}
}

// State returns the current state.
func (a *Assembler) State() AssemblerState { return a.state }

// FinishReason returns the last stop reason seen.
func (a *Assembler) FinishReason() string { return a.finishReason }

// Usage returns the usage merged from all deltas.
func (a *Assembler) Usage() Usage { return a.usage }

// Push applies a delta. A delta with Done set finalizes the message.
func (a *Assembler) Push(delta Delta) error {
	switch a.state {
	case StateFinished, StateErrored:
		return ErrAssemblerClosed
	}
	a.state = StateAccumulating

	if a.role == "" && delta.Role != "" {
		a.role = delta.Role
	}
	a.content.WriteString(delta.Content)
	for _, frag := range delta.ToolCalls {
		a.mergeToolCall(frag)
	}
	if delta.FinishReason != "" {
		a.finishReason = delta.FinishReason
	}
	if delta.Usage != nil {
		a.usage.merge(*delta.Usage)
	}

	if delta.Done {
		return a.finalize()
	}
	return nil
}

func (a *Assembler) mergeToolCall(frag ToolCallDelta) {
	slot, ok := a.calls[frag.Index]
	if !ok {
		slot = &partialToolCall{}
		a.calls[frag.Index] = slot
	}
	if slot.id == "" {
		slot.id = frag.ID
	}
	if slot.type_ == "" {
		slot.type_ = frag.Type
	}
	// Some servers resend the full name on every fragment, others split it.
	if frag.Name != "" && frag.Name != slot.name {
		if slot.name == "" {
			slot.name = frag.Name
		} else {
			slot.name += frag.Name
		}
	}
	slot.args.WriteString(frag.Arguments)
}

// Fail moves the assembler to Errored because the stream broke. The
// resulting error always matches ErrIncompleteStream.
func (a *Assembler) Fail(cause error) {
	if a.state == StateFinished || a.state == StateErrored {
		return
	}
	switch {
	case cause == nil, errors.Is(cause, io.EOF):
		a.fail(ErrIncompleteStream)
	case errors.Is(cause, ErrIncompleteStream):
		a.fail(cause)
	default:
		a.fail(fmt.Errorf("%w: %w", ErrIncompleteStream, cause))
	}
}

// Finish returns the assembled message. Without a prior terminal marker
// the assembler fails with ErrIncompleteStream.
func (a *Assembler) Finish() (Message, error) {
	switch a.state {
	case StateFinished:
		return a.message, nil
	case StateErrored:
		return Message{}, a.err
	}
	a.fail(ErrIncompleteStream)
	return Message{}, a.err
}

// Drain pulls every delta from src and returns the assembled message.
func (a *Assembler) Drain(src interface{ Next() (Delta, error) }) (Message, error) {
	for {
		delta, err := src.Next()
		if err != nil {
			a.Fail(err)
			return a.Finish()
		}
		if err := a.Push(delta); err != nil {
			return Message{}, err
		}
		if a.state == StateFinished {
			return a.message, nil
		}
	}
}

func (a *Assembler) fail(err error) {
	a.state = StateErrored
	a.err = err
	a.content.Reset()
	a.calls = nil
}

func (a *Assembler) finalize() error {
	msg := Message{Role: a.role, Content: a.content.String()}
	if msg.Role == "" {
		msg.Role = constants.RoleAssistant
	}

	indices := make([]int, 0, len(a.calls))
	for index := range a.calls {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	var errs []error
	for _, index := range indices {
		slot := a.calls[index]
		call, err := slot.build(index)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msg.ToolCalls = append(msg.ToolCalls, call)
	}
	if len(errs) > 0 {
		a.fail(errors.Join(errs...))
		return a.err
	}

	a.state = StateFinished
	a.message = msg
	a.calls = nil
	return nil
}

func (slot *partialToolCall) build(index int) (ToolCall, error) {
	args, err := completeArguments(slot.args.String())
	if err != nil {
		return ToolCall{}, &MalformedToolArgumentsError{Index: index, ID: slot.id, Name: slot.name, Raw: slot.args.String()}
	}
	call := ToolCall{
		Index:    index,
		ID:       slot.id,
		Type:     slot.type_,
		Function: FunctionCall{Name: slot.name, Arguments: args},
	}
	if call.Type == "" {
		call.Type = constants.ToolTypeFunction
	}
	if call.ID == "" {
		call.ID = newCallID()
	}
	return call, nil
}

// completeArguments validates a complete argument buffer. An empty buffer
// means a call without arguments; anything else must be a JSON object.
func completeArguments(raw string) (json.RawMessage, error) {
	if strings.TrimSpace(raw) == "" {
		return json.RawMessage("{}"), nil
	}
	if !gjson.Valid(raw) {
		return nil, errors.New("invalid json")
	}
	if !gjson.Parse(raw).IsObject() {
		return nil, errors.New("arguments are not an object")
	}
	return json.RawMessage(raw), nil
}

func newCallID() string {
	return "call_" + uuid.NewString()
}
