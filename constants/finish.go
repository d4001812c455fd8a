package constants

import (
	openai "github.com/sashabaranov/go-openai"
)

// Finish reasons normalized across providers. Anthropic stop reasons are
// mapped onto the OpenAI vocabulary.
const (
	FinishReasonStop          = string(openai.FinishReasonStop)
	FinishReasonLength        = string(openai.FinishReasonLength)
	FinishReasonToolCalls     = string(openai.FinishReasonToolCalls)
	FinishReasonContentFilter = string(openai.FinishReasonContentFilter)
)
