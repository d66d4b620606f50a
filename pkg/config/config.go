// Package config holds the mnemo configuration: a YAML file under the
// workspace, overridable through environment variables and CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/mnemo/pkg/logging"
)

// FileName is the name of the config file inside the workspace.
const FileName = "config.yaml"

// Config represents the full mnemo configuration.
type Config struct {
	// Workspace is the root of all persisted state. Defaults to ~/.mnemo.
	Workspace string `yaml:"workspace" json:"workspace"`

	Memory    MemoryConfig    `yaml:"memory" json:"memory"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	Agent     AgentConfig     `yaml:"agent" json:"agent"`
	Session   SessionConfig   `yaml:"session" json:"session"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// MemoryConfig configures the memory store.
type MemoryConfig struct {
	// Timezone is the IANA zone that decides which day is "today". Empty
	// uses the local zone.
	Timezone string `yaml:"timezone" json:"timezone"`
}

// IndexConfig configures the semantic index.
type IndexConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	Dir              string `yaml:"dir" json:"dir"` // defaults to <workspace>/index
	MaxTokens        int    `yaml:"max_tokens" json:"max_tokens"`
	Overlap          int    `yaml:"overlap" json:"overlap"`
	TopK             int    `yaml:"top_k" json:"top_k"`
	EmbedConcurrency int    `yaml:"embed_concurrency" json:"embed_concurrency"`
}

// EmbeddingConfig selects the embedding backend of the index.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" json:"provider"` // openai, gemini or hash
	Model      string `yaml:"model" json:"model"`
	APIKey     string `yaml:"api_key" json:"api_key"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// LLMConfig selects the chat model.
type LLMConfig struct {
	Provider  string `yaml:"provider" json:"provider"` // openai or anthropic
	Model     string `yaml:"model" json:"model"`
	BaseURL   string `yaml:"base_url" json:"base_url"`
	APIKey    string `yaml:"api_key" json:"api_key"`
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens"`
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	MaxIterations   int           `yaml:"max_iterations" json:"max_iterations"`
	MaxAttempts     int           `yaml:"max_attempts" json:"max_attempts"`
	BackoffBase     time.Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax      time.Duration `yaml:"backoff_max" json:"backoff_max"`
	ToolParallelism int           `yaml:"tool_parallelism" json:"tool_parallelism"`

	// ContextBudget is the token budget of the memory context block.
	ContextBudget int `yaml:"context_budget" json:"context_budget"`

	// Instructions are added to the system prompt.
	Instructions string `yaml:"instructions" json:"instructions"`
}

// SessionConfig configures per-session queuing.
type SessionConfig struct {
	MaxQueueDepth int `yaml:"max_queue_depth" json:"max_queue_depth"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Level is the minimum level written: debug, info, warn or error.
	Level string `yaml:"level" json:"level"`
}

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderHash      = "hash"
)

// DefaultConfig returns a configuration suitable for most use cases.
func DefaultConfig() *Config {
	return &Config{
		Workspace: DefaultWorkspace(),
		Index: IndexConfig{
			Enabled:          true,
			MaxTokens:        256,
			Overlap:          32,
			TopK:             5,
			EmbedConcurrency: 4,
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderHash,
			CacheSize: 4096,
		},
		LLM: LLMConfig{
			Provider:  ProviderOpenAI,
			MaxTokens: 4096,
		},
		Agent: AgentConfig{
			MaxIterations:   20,
			MaxAttempts:     3,
			BackoffBase:     500 * time.Millisecond,
			BackoffMax:      8 * time.Second,
			ToolParallelism: 4,
			ContextBudget:   6000,
		},
		Session: SessionConfig{
			MaxQueueDepth: 8,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultWorkspace returns ~/.mnemo, or .mnemo when the home directory is
// unknown.
func DefaultWorkspace() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mnemo"
	}
	return filepath.Join(home, ".mnemo")
}

// MemoryDir is where day notes and MEMORY.md live.
func (c *Config) MemoryDir() string {
	return filepath.Join(c.Workspace, "memory")
}

// IndexDir is where the index stores vectors and manifests.
func (c *Config) IndexDir() string {
	if c.Index.Dir != "" {
		return c.Index.Dir
	}
	return filepath.Join(c.Workspace, "index")
}

// Path is the config file inside the workspace.
func (c *Config) Path() string {
	return filepath.Join(c.Workspace, FileName)
}

// Location resolves the memory timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Memory.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Memory.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid timezone %q: %w", c.Memory.Timezone, err)
	}
	return loc, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("config: workspace is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("config: invalid llm provider: %q (must be 'openai' or 'anthropic')", c.LLM.Provider)
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderHash:
	default:
		return fmt.Errorf("config: invalid embedding provider: %q (must be 'openai', 'gemini' or 'hash')", c.Embedding.Provider)
	}

	if c.Index.MaxTokens <= 0 {
		return fmt.Errorf("config: index.max_tokens must be positive")
	}
	if c.Index.Overlap < 0 || c.Index.Overlap >= c.Index.MaxTokens {
		return fmt.Errorf("config: index.overlap must be in [0, max_tokens)")
	}
	if c.Index.TopK <= 0 {
		return fmt.Errorf("config: index.top_k must be positive")
	}

	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("config: agent.max_iterations must be positive")
	}
	if c.Agent.MaxAttempts <= 0 {
		return fmt.Errorf("config: agent.max_attempts must be positive")
	}
	if c.Agent.BackoffBase <= 0 || c.Agent.BackoffMax < c.Agent.BackoffBase {
		return fmt.Errorf("config: agent backoff must satisfy 0 < backoff_base <= backoff_max")
	}
	if c.Agent.ToolParallelism <= 0 {
		return fmt.Errorf("config: agent.tool_parallelism must be positive")
	}
	if c.Agent.ContextBudget <= 0 {
		return fmt.Errorf("config: agent.context_budget must be positive")
	}
	if c.Session.MaxQueueDepth < 0 {
		return fmt.Errorf("config: session.max_queue_depth cannot be negative")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables. API keys are
// only taken from the environment when the file leaves them empty.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("MNEMO_WORKSPACE"); v != "" {
		c.Workspace = v
	}
	if v := getenv("MNEMO_TIMEZONE"); v != "" {
		c.Memory.Timezone = v
	}
	if v := getenv("MNEMO_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := getenv("MNEMO_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := getenv("MNEMO_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case ProviderAnthropic:
			c.LLM.APIKey = getenv("ANTHROPIC_API_KEY")
		default:
			c.LLM.APIKey = getenv("OPENAI_API_KEY")
		}
	}
	if c.LLM.BaseURL == "" && c.LLM.Provider == ProviderOpenAI {
		c.LLM.BaseURL = getenv("OPENAI_BASE_URL")
	}
	if c.Embedding.APIKey == "" {
		switch c.Embedding.Provider {
		case ProviderOpenAI:
			c.Embedding.APIKey = getenv("OPENAI_API_KEY")
		case ProviderGemini:
			c.Embedding.APIKey = getenv("GEMINI_API_KEY")
		}
	}
}
