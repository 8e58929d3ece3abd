// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"fmt"
	"net/http"

	"github.com/pdiddy/skkn-master/pkg/types"
)

// New returns the Service selected by cfg.Provider. An empty provider means
// Gemini. The API key may be empty; Validate reports it later.
func New(cfg types.AIConfig) (Service, error) {
	var client *http.Client
	if cfg.Timeout > 0 {
		client = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.Timeout,
			TLSHandshakeTimeout:   cfg.Timeout,
		}}
	}

	switch cfg.Provider {
	case types.ProviderGemini, "":
		return NewGemini(GeminiSettings{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
			Client:     client,
		}), nil
	case types.ProviderOpenAI:
		return NewOpenAI(OpenAISettings{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
			Client:     client,
		}), nil
	case types.ProviderMock:
		return NewScripted(), nil
	default:
		return nil, fmt.Errorf("llm provider %q not supported (use gemini, openai, or mock)", cfg.Provider)
	}
}
