// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Provider identifies the hosted generation service.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
	ProviderMock   Provider = "mock"
)

// DefaultModel returns the model used when none is configured for p.
func DefaultModel(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o"
	case ProviderMock:
		return "mock"
	default:
		return "gemini-3-pro-preview"
	}
}

// AIConfig holds settings for the generation service.
type AIConfig struct {
	// Provider selects the backend: gemini, openai, or mock.
	Provider Provider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier. Empty means DefaultModel(Provider).
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Temperature, TopP and TopK are sampling parameters.
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	TopP        float64 `json:"top_p" yaml:"top_p" mapstructure:"top_p"`
	TopK        int     `json:"top_k" yaml:"top_k" mapstructure:"top_k"`

	// MaxOutputTokens caps the length of each response.
	MaxOutputTokens int `json:"max_output_tokens" yaml:"max_output_tokens" mapstructure:"max_output_tokens"`

	// ThinkingBudget is the reasoning-token budget (Gemini only; 0 disables).
	ThinkingBudget int `json:"thinking_budget" yaml:"thinking_budget" mapstructure:"thinking_budget"`

	// MaxRetries is the number of retry attempts for rate-limited requests.
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// Timeout bounds the HTTP connection setup; 0 means no timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// ExportConfig holds settings for the .doc exporter.
type ExportConfig struct {
	// Prefix starts every exported file name (default "SKKN").
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// Author is the person credited in prompts and in the export attribution.
	Author string `json:"author" yaml:"author" mapstructure:"author"`

	// OutputDir is where exported files are written.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
}

// ArchiveConfig holds settings for the session archive.
type ArchiveConfig struct {
	// Path is the SQLite database file. Empty disables archiving.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is text or json.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// AppConfig groups all configuration sections.
type AppConfig struct {
	AI      AIConfig      `json:"ai" yaml:"ai" mapstructure:"ai"`
	Export  ExportConfig  `json:"export" yaml:"export" mapstructure:"export"`
	Archive ArchiveConfig `json:"archive" yaml:"archive" mapstructure:"archive"`
	Server  ServerConfig  `json:"server" yaml:"server" mapstructure:"server"`
	Log     LogConfig     `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultAppConfig returns the settings used when nothing is configured.
// The sampling values mirror what the drafting prompts were tuned with.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		AI: AIConfig{
			Provider:        ProviderGemini,
			Model:           DefaultModel(ProviderGemini),
			Temperature:     0.7,
			TopP:            0.95,
			TopK:            64,
			MaxOutputTokens: 4096,
			ThinkingBudget:  1024,
			MaxRetries:      3,
		},
		Export: ExportConfig{
			Prefix:    "SKKN",
			Author:    "VANHA",
			OutputDir: "output/exports",
		},
		Archive: ArchiveConfig{
			Path: "data/skkn.db",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
