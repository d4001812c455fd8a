package constants

// Provider names reported in response metadata and metric labels.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)
