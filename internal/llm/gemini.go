// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/pdiddy/skkn-master/internal/httputil"
)

// GeminiSettings configures a GeminiService.
type GeminiSettings struct {
	APIKey string
	Model  string

	// BaseURL overrides the API root, e.g. for a regional gateway.
	BaseURL    string
	MaxRetries int

	// Client supplies the transport and timeout for API calls.
	Client *http.Client
}

// GeminiService talks to the Gemini API through the genai SDK. Requests go
// through httputil.Transport so overloaded replies are retried.
type GeminiService struct {
	settings GeminiSettings

	mu     sync.Mutex
	client *genai.Client
}

// NewGemini returns a GeminiService. Missing credentials are reported by
// Validate, not here, so the caller can surface them at generation time.
func NewGemini(s GeminiSettings) *GeminiService {
	return &GeminiService{settings: s}
}

// Validate implements Service.
func (g *GeminiService) Validate() error {
	if strings.TrimSpace(g.settings.APIKey) == "" {
		return ErrNoCredential
	}
	if g.settings.Model == "" {
		return errors.New("gemini model is required")
	}
	return nil
}

// sdk returns the SDK client, creating it on first use.
func (g *GeminiService) sdk(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}

	hc := &http.Client{}
	var base http.RoundTripper
	if g.settings.Client != nil {
		base = g.settings.Client.Transport
		hc.Timeout = g.settings.Client.Timeout
	}
	hc.Transport = &httputil.Transport{Base: base, MaxRetries: g.settings.MaxRetries}

	cc := &genai.ClientConfig{
		APIKey:     g.settings.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if g.settings.BaseURL != "" {
		cc.HTTPOptions.BaseURL = g.settings.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

// NewSession implements Service.
func (g *GeminiService) NewSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	client, err := g.sdk(ctx)
	if err != nil {
		return nil, err
	}
	chat, err := client.Chats.Create(ctx, g.settings.Model, contentConfig(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini chat: %w", err)
	}
	return &geminiSession{chat: chat}, nil
}

// Generate implements Service.
func (g *GeminiService) Generate(ctx context.Context, req Request) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}
	client, err := g.sdk(ctx)
	if err != nil {
		return "", err
	}

	var cfg *genai.GenerateContentConfig
	if req.Schema != nil {
		cfg = &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   genaiSchema(req.Schema),
		}
	}
	resp, err := client.Models.GenerateContent(ctx, g.settings.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("calling Gemini API: %w", err)
	}
	if err := blocked(resp); err != nil {
		return "", err
	}
	return visibleText(resp), nil
}

type geminiSession struct {
	mu   sync.Mutex
	chat *genai.Chat
}

// Send implements Session. The SDK chat adds the turn to its history once
// the stream completes.
func (s *geminiSession) Send(ctx context.Context, message string) iter.Seq2[string, error] {
	return once(func(yield func(string, error) bool) {
		s.mu.Lock()
		chat := s.chat
		s.mu.Unlock()
		if chat == nil {
			yield("", ErrSessionClosed)
			return
		}

		for resp, err := range chat.SendMessageStream(ctx, genai.Part{Text: message}) {
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				} else {
					err = fmt.Errorf("gemini stream: %w", err)
				}
				yield("", err)
				return
			}
			if err := blocked(resp); err != nil {
				yield("", err)
				return
			}
			text := visibleText(resp)
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			yield("", err)
		}
	})
}

// Close implements Session.
func (s *geminiSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = nil
	return nil
}

func contentConfig(cfg SessionConfig) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{}
	if cfg.SystemInstruction != "" {
		gc.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if cfg.Temperature > 0 {
		gc.Temperature = genai.Ptr(float32(cfg.Temperature))
	}
	if cfg.TopP > 0 {
		gc.TopP = genai.Ptr(float32(cfg.TopP))
	}
	if cfg.TopK > 0 {
		gc.TopK = genai.Ptr(float32(cfg.TopK))
	}
	if cfg.MaxOutputTokens > 0 {
		gc.MaxOutputTokens = int32(cfg.MaxOutputTokens)
	}
	if cfg.ThinkingBudget > 0 {
		gc.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(cfg.ThinkingBudget))}
	}
	return gc
}

func genaiSchema(s *Schema) *genai.Schema {
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Required:    s.Required,
	}
	if s.Items != nil {
		out.Items = genaiSchema(s.Items)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = genaiSchema(p)
		}
		// Required lists the fields in the order the reply should use.
		out.PropertyOrdering = s.Required
	}
	return out
}

// visibleText joins the text parts of the first candidate, skipping
// thought parts.
func visibleText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func blocked(resp *genai.GenerateContentResponse) error {
	if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("Gemini blocked the prompt: %s", resp.PromptFeedback.BlockReason)
	}
	return nil
}
