package constants

import (
	openai "github.com/sashabaranov/go-openai"
)

// Response formats accepted by WithResponseFormat.
const (
	ResponseFormatText       = string(openai.ChatCompletionResponseFormatTypeText)
	ResponseFormatJSONObject = string(openai.ChatCompletionResponseFormatTypeJSONObject)
	ResponseFormatJSONSchema = string(openai.ChatCompletionResponseFormatTypeJSONSchema)
)
