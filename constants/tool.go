package constants

import (
	openai "github.com/sashabaranov/go-openai"
)

// ToolTypeFunction is the only tool type the chat APIs currently define.
const ToolTypeFunction = string(openai.ToolTypeFunction)
