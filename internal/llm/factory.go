package llm

import (
	"fmt"
	"os"

	"inboxpilot/internal/config"
)

// Provider represents an LLM provider.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// ProviderConfig holds the resolved provider and API key.
type ProviderConfig struct {
	Provider Provider
	APIKey   string
	Model    string // Optional model override
}

// LoadConfigJSON loads provider configuration from the .pilot/config.json user config.
func LoadConfigJSON(path string) (*ProviderConfig, error) {
	userCfg, err := config.LoadUserConfig(path)
	if err != nil {
		return nil, err
	}

	providerStr, apiKey := userCfg.GetActiveProvider()
	if apiKey == "" {
		return nil, fmt.Errorf("no API key found in config")
	}

	return &ProviderConfig{
		Provider: Provider(providerStr),
		APIKey:   apiKey,
		Model:    userCfg.Model,
	}, nil
}

// DetectProvider checks .pilot/config.json first, then environment variables.
// Priority: config.json > env vars (GEMINI > ANTHROPIC > OPENAI)
func DetectProvider() (*ProviderConfig, error) {
	configPath := config.DefaultUserConfigPath()
	if cfg, err := LoadConfigJSON(configPath); err == nil && cfg.APIKey != "" {
		return cfg, nil
	}

	providers := []struct {
		envVar   string
		provider Provider
	}{
		{"GEMINI_API_KEY", ProviderGemini},
		{"ANTHROPIC_API_KEY", ProviderAnthropic},
		{"OPENAI_API_KEY", ProviderOpenAI},
	}

	for _, p := range providers {
		if key := os.Getenv(p.envVar); key != "" {
			return &ProviderConfig{
				Provider: p.provider,
				APIKey:   key,
			}, nil
		}
	}

	return nil, fmt.Errorf("no API key found; configure .pilot/config.json or set one of: GEMINI_API_KEY, ANTHROPIC_API_KEY, OPENAI_API_KEY")
}

// NewClientFromEnv creates an LLM client based on config file or environment variables.
func NewClientFromEnv() (Client, error) {
	cfg, err := DetectProvider()
	if err != nil {
		return nil, err
	}
	return NewClientFromConfig(cfg)
}

// NewClientFromConfig creates an LLM client from a provider config.
func NewClientFromConfig(cfg *ProviderConfig) (Client, error) {
	switch cfg.Provider {
	case ProviderGemini:
		client := NewGeminiClient(cfg.APIKey)
		if cfg.Model != "" {
			client.SetModel(cfg.Model)
		}
		return client, nil

	case ProviderAnthropic:
		client := NewAnthropicClient(cfg.APIKey)
		if cfg.Model != "" {
			client.SetModel(cfg.Model)
		}
		return client, nil

	case ProviderOpenAI:
		client := NewOpenAIClient(cfg.APIKey)
		if cfg.Model != "" {
			client.SetModel(cfg.Model)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
