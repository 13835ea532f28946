package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all inboxpilot configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Brand settings shared across decisions
	Brand BrandConfig `yaml:"brand"`

	// Triage policy knobs
	Triage TriageConfig `yaml:"triage"`

	// Knowledge base configuration
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// Embedding engine for fact relevance ranking
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the classification/drafting model backend.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, anthropic, openai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// BrandConfig carries the business profile passed into every decision.
type BrandConfig struct {
	// Name of the business, used in reply prompts
	BusinessName string `yaml:"business_name"`

	// Language replies are drafted in (BCP 47 tag, e.g. "tr", "en")
	ReplyLanguage string `yaml:"reply_language"`
}

// TriageConfig configures the triage orchestrator.
type TriageConfig struct {
	// CallTimeout bounds each external model call ("30s" style duration)
	CallTimeout string `yaml:"call_timeout"`

	// MaxRetries for transient classification/drafting failures
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoffBase is the initial backoff between retries
	RetryBackoffBase string `yaml:"retry_backoff_base"`

	// OnDraftFailure: "escalate" routes drafting failures to the human
	// queue, "fail" surfaces the error to the caller.
	OnDraftFailure string `yaml:"on_draft_failure"`

	// FollowUpQuestions: "always", "natural", or "never" for Engagement replies
	FollowUpQuestions string `yaml:"follow_up_questions"`

	// ModerateInbound runs the moderation gate on inbound text before drafting
	ModerateInbound bool `yaml:"moderate_inbound"`

	// MaxParallel bounds concurrent triage of independent messages
	MaxParallel int `yaml:"max_parallel"`
}

// KnowledgeConfig configures the knowledge base source.
type KnowledgeConfig struct {
	// FactsPath is the YAML file holding curated facts and policy text
	FactsPath string `yaml:"facts_path"`

	// WatchFile hot-reloads the facts file on change
	WatchFile bool `yaml:"watch_file"`

	// TopK facts fed to the drafter when relevance ranking is available
	TopK int `yaml:"top_k"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // "genai" or "ollama"
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
	Level      string          `yaml:"level" json:"level"`
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Name:    "inboxpilot",
		Version: "0.1.0",
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			Timeout:  "120s",
		},
		Brand: BrandConfig{
			ReplyLanguage: "tr",
		},
		Triage: TriageConfig{
			CallTimeout:       "30s",
			MaxRetries:        2,
			RetryBackoffBase:  "1s",
			OnDraftFailure:    "escalate",
			FollowUpQuestions: "natural",
			MaxParallel:       4,
		},
		Knowledge: KnowledgeConfig{
			FactsPath: ".pilot/knowledge.yaml",
			WatchFile: true,
			TopK:      5,
		},
		Embedding: EmbeddingConfig{
			Provider:       "genai",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file, applying defaults and env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment (checked in ascending priority;
	// the last match wins: ANTHROPIC < OPENAI < GEMINI)
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.Embedding.GenAIAPIKey == "" {
		c.Embedding.GenAIAPIKey = key
	}

	if path := os.Getenv("PILOT_KNOWLEDGE"); path != "" {
		c.Knowledge.FactsPath = path
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Triage.OnDraftFailure {
	case "", "escalate", "fail":
	default:
		return fmt.Errorf("invalid triage.on_draft_failure %q (valid: escalate, fail)", c.Triage.OnDraftFailure)
	}
	switch c.Triage.FollowUpQuestions {
	case "", "always", "natural", "never":
	default:
		return fmt.Errorf("invalid triage.follow_up_questions %q (valid: always, natural, never)", c.Triage.FollowUpQuestions)
	}
	if c.Triage.MaxRetries < 0 {
		return fmt.Errorf("triage.max_retries must be >= 0")
	}
	return nil
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetCallTimeout returns the per-call triage timeout as a duration.
func (c *Config) GetCallTimeout() time.Duration {
	d, err := time.ParseDuration(c.Triage.CallTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetRetryBackoffBase returns the initial retry backoff as a duration.
func (c *Config) GetRetryBackoffBase() time.Duration {
	d, err := time.ParseDuration(c.Triage.RetryBackoffBase)
	if err != nil {
		return time.Second
	}
	return d
}
