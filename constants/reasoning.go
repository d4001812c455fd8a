package constants

// Reasoning effort levels accepted by WithReasoning.
const (
	ReasoningEffortLow    = "low"
	ReasoningEffortMedium = "medium"
	ReasoningEffortHigh   = "high"
)
