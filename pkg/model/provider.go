package model

import "fmt"

// NewProvider creates a provider by name. Supported: anthropic, openai.
func NewProvider(name, apiKey string) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
