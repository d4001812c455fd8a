package chatkit

// Delta is one provider-neutral stream fragment. Provider adapters turn
// their wire events into deltas; the assembler folds them into a Message.
type Delta struct {
	// Role is usually set on the first delta only.
	Role string
	// Content is a fragment of the assistant text.
	Content string
	// ToolCalls carry fragments of one or more tool calls, keyed by index.
	ToolCalls []ToolCallDelta
	// FinishReason is the normalized stop reason, set near the end.
	FinishReason string
	// Usage is set when the provider reports token usage.
	Usage *Usage
	// Done marks the provider's terminal marker. It is distinct from the
	// transport reaching EOF.
	Done bool
}

// ToolCallDelta is a fragment of the tool call at Index. Arguments are raw
// text and may split anywhere, including inside a JSON token.
type ToolCallDelta struct {
	Index     int
	ID        string
	Type      string
	Name      string
	Arguments string
}

func (d Delta) empty() bool {
	return d.Role == "" && d.Content == "" && len(d.ToolCalls) == 0 &&
		d.FinishReason == "" && d.Usage == nil && !d.Done
}
