package config

import (
	"fmt"
	"strings"
)

// Config represents the main taskpilot configuration
type Config struct {
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Model     ModelConfig     `json:"model" mapstructure:"model"`
	Agent     AgentConfig     `json:"agent" mapstructure:"agent"`
	Auth      AuthConfig      `json:"auth" mapstructure:"auth"`
	Retention RetentionConfig `json:"retention" mapstructure:"retention"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`

	// Data directory holding the SQLite databases
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// ModelConfig holds model provider configuration
type ModelConfig struct {
	Provider     string  `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey       string  `json:"api_key" mapstructure:"api_key"`
	Name         string  `json:"name" mapstructure:"name"`
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int     `json:"max_tokens" mapstructure:"max_tokens"`
	SystemPrompt string  `json:"system_prompt" mapstructure:"system_prompt"`
}

// AgentConfig holds orchestration loop configuration
type AgentConfig struct {
	MaxTurns           int `json:"max_turns" mapstructure:"max_turns"`
	CallTimeoutSeconds int `json:"call_timeout_seconds" mapstructure:"call_timeout_seconds"`
	MaxRetries         int `json:"max_retries" mapstructure:"max_retries"`
	HistoryLimit       int `json:"history_limit" mapstructure:"history_limit"`
}

// AuthConfig holds JWT verification configuration
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" mapstructure:"jwt_secret"`
}

// RetentionConfig holds conversation retention configuration
type RetentionConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	MaxIdleDays int    `json:"max_idle_days" mapstructure:"max_idle_days"`
	Schedule    string `json:"schedule" mapstructure:"schedule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Model: ModelConfig{
			Provider:    "openai",
			Name:        "gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   4096,
		},
		Agent: AgentConfig{
			MaxTurns:           10,
			CallTimeoutSeconds: 60,
			MaxRetries:         3,
			HistoryLimit:       20,
		},
		Retention: RetentionConfig{
			Enabled:     true,
			MaxIdleDays: 90,
			Schedule:    "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  false,
		},
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported model provider: %s", c.Model.Provider)
	}

	if err := validateAPIKey(c.Model.APIKey, c.Model.Provider); err != nil {
		return err
	}

	if c.Model.Name == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}

	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("agent max turns must be positive")
	}
	if c.Agent.HistoryLimit <= 0 {
		return fmt.Errorf("agent history limit must be positive")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth JWT secret cannot be empty")
	}

	if c.Retention.Enabled && c.Retention.MaxIdleDays <= 0 {
		return fmt.Errorf("retention max idle days must be positive")
	}

	return nil
}

func validateAPIKey(key, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}
