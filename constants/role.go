package constants

import (
	openai "github.com/sashabaranov/go-openai"
)

// Message roles understood by every provider adapter.
const (
	RoleUser      = string(openai.ChatMessageRoleUser)
	RoleAssistant = string(openai.ChatMessageRoleAssistant)
	RoleSystem    = string(openai.ChatMessageRoleSystem)
	RoleTool      = string(openai.ChatMessageRoleTool)
)

// ValidRole reports whether role is one of the four conversation roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}
