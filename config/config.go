// Package config loads chatkit client configuration from YAML.
//
// Values are read from a single file, then ${VAR} references are
// expanded and the CHATKIT_* environment variables override the file:
//
//	CHATKIT_PROVIDER, CHATKIT_MODEL, CHATKIT_BASE_URL, CHATKIT_API_KEY
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/thecxx/chatkit/constants"
	"github.com/thecxx/chatkit/ratelimit"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of one chat client.
type Config struct {
	// Provider selects the wire format: openai or anthropic.
	Provider string `yaml:"provider"`

	// BaseURL overrides the provider's default API root, for proxies and
	// OpenAI-compatible servers.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates requests. Use ${NAME} to read it from the
	// environment instead of storing it in the file.
	APIKey string `yaml:"api_key"`

	// Model is the default model of the client.
	Model string `yaml:"model"`

	// Timeout bounds each HTTP exchange, including reading a stream.
	// Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`

	// MaxTokens is the default completion limit. Zero leaves it to the provider.
	MaxTokens int `yaml:"max_tokens"`

	// RateLimit enables the client-side token bucket when set.
	RateLimit *ratelimit.Config `yaml:"rate_limit,omitempty"`

	// Tools configures the tool-calling loop.
	Tools ToolsConfig `yaml:"tools"`

	// Budget configures the pre-dispatch context window check.
	Budget BudgetConfig `yaml:"budget"`
}

// ToolsConfig configures the tool-calling loop.
type ToolsConfig struct {
	// MaxRounds caps the number of tool rounds per run.
	// Default: 8
	MaxRounds int `yaml:"max_rounds"`

	// EscalateErrors aborts a run on the first tool failure instead of
	// reporting the failure to the model.
	EscalateErrors bool `yaml:"escalate_errors"`

	// Concurrency is the number of tool calls of one round run in parallel.
	// Default: 1
	Concurrency int `yaml:"concurrency"`

	// Stream dispatches every turn of a run as a stream.
	Stream bool `yaml:"stream"`
}

// BudgetConfig configures the context window check.
type BudgetConfig struct {
	// Check enables counting prompt tokens before every dispatch.
	Check bool `yaml:"check"`

	// ReserveCompletion is the number of tokens kept free for the answer
	// when no max_tokens is set.
	ReserveCompletion int `yaml:"reserve_completion"`
}

// Default returns the configuration used when a file leaves fields unset.
func Default() *Config {
	return &Config{
		Provider: constants.ProviderOpenAI,
		Timeout:  2 * time.Minute,
		Tools: ToolsConfig{
			MaxRounds:   8,
			Concurrency: 1,
		},
		Budget: BudgetConfig{
			ReserveCompletion: 1024,
		},
	}
}

// LoadFile loads configuration from path, applies the environment and
// validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Parse(data); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse merges YAML data into c, applies the environment and validates
// the result.
func (c *Config) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	c.expandVariables(os.LookupEnv)
	c.ApplyEnv(os.LookupEnv)
	return c.Validate()
}

// ApplyEnv overrides fields from the CHATKIT_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	overrides := map[string]*string{
		"CHATKIT_PROVIDER": &c.Provider,
		"CHATKIT_MODEL":    &c.Model,
		"CHATKIT_BASE_URL": &c.BaseURL,
		"CHATKIT_API_KEY":  &c.APIKey,
	}
	for name, field := range overrides {
		if value, ok := lookup(name); ok && value != "" {
			*field = value
		}
	}
}

func (c *Config) expandVariables(lookup func(string) (string, bool)) {
	expand := func(s string) string {
		return os.Expand(s, func(name string) string {
			value, _ := lookup(name)
			return value
		})
	}
	c.APIKey = expand(c.APIKey)
	c.BaseURL = expand(c.BaseURL)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case constants.ProviderOpenAI, constants.ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("invalid provider: %q", c.Provider))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max_tokens must not be negative, got %d", c.MaxTokens))
	}
	if c.RateLimit != nil {
		if err := c.RateLimit.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Tools.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("tools.max_rounds must be at least 1, got %d", c.Tools.MaxRounds))
	}
	if c.Tools.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("tools.concurrency must be at least 1, got %d", c.Tools.Concurrency))
	}
	if c.Budget.ReserveCompletion < 0 {
		errs = append(errs, fmt.Errorf("budget.reserve_completion must not be negative, got %d", c.Budget.ReserveCompletion))
	}

	return errors.Join(errs...)
}
