// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAISettings configures an OpenAIService. BaseURL points the client at
// any OpenAI-compatible endpoint (DeepSeek, local gateways).
type OpenAISettings struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	Client     *http.Client
}

// OpenAIService streams replies from the chat completions API using the
// official openai-go SDK.
type OpenAIService struct {
	settings OpenAISettings
}

// NewOpenAI returns an OpenAIService. Missing credentials are reported by
// Validate.
func NewOpenAI(s OpenAISettings) *OpenAIService {
	return &OpenAIService{settings: s}
}

// Validate implements Service.
func (o *OpenAIService) Validate() error {
	if strings.TrimSpace(o.settings.APIKey) == "" {
		return ErrNoCredential
	}
	if o.settings.Model == "" {
		return errors.New("openai model is required")
	}
	return nil
}

func (o *OpenAIService) client() openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(o.settings.APIKey),
		option.WithMaxRetries(o.settings.MaxRetries),
	}
	if o.settings.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.settings.BaseURL))
	}
	if o.settings.Client != nil {
		opts = append(opts, option.WithHTTPClient(o.settings.Client))
	}
	return openai.NewClient(opts...)
}

// NewSession implements Service.
func (o *OpenAIService) NewSession(_ context.Context, cfg SessionConfig) (Session, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	s := &openAISession{
		client: o.client(),
		model:  o.settings.Model,
		cfg:    cfg,
	}
	if cfg.SystemInstruction != "" {
		s.history = []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(cfg.SystemInstruction)}
	}
	return s, nil
}

// Generate implements Service. A schema request uses a strict json_schema
// response format.
func (o *OpenAIService) Generate(ctx context.Context, req Request) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.settings.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(req.Prompt)},
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "reply"
		}
		p.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: jsonSchema(req.Schema),
					Strict: openai.Bool(true),
				},
			},
		}
	}

	client := o.client()
	resp, err := client.Chat.Completions.New(ctx, p)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// jsonSchema renders s as a JSON Schema document. Strict mode needs every
// object closed and every property listed as required.
func jsonSchema(s *Schema) map[string]any {
	out := map[string]any{"type": s.Type}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.Items != nil {
		out["items"] = jsonSchema(s.Items)
	}
	if s.Type == "object" {
		props := make(map[string]any, len(s.Properties))
		required := make([]string, 0, len(s.Properties))
		for _, name := range s.Required {
			if _, ok := s.Properties[name]; ok {
				required = append(required, name)
			}
		}
		for _, name := range slices.Sorted(maps.Keys(s.Properties)) {
			props[name] = jsonSchema(s.Properties[name])
			if !slices.Contains(required, name) {
				required = append(required, name)
			}
		}
		out["properties"] = props
		out["required"] = required
		out["additionalProperties"] = false
	}
	return out
}

type openAISession struct {
	client openai.Client
	model  string
	cfg    SessionConfig

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
	closed  bool
}

// Send implements Session.
func (s *openAISession) Send(ctx context.Context, message string) iter.Seq2[string, error] {
	return once(func(yield func(string, error) bool) {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			yield("", ErrSessionClosed)
			return
		}
		msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(s.history)+1)
		msgs = append(msgs, s.history...)
		msgs = append(msgs, openai.UserMessage(message))
		s.mu.Unlock()

		stream := s.client.Chat.Completions.NewStreaming(ctx, s.params(msgs))
		defer stream.Close()

		var full strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			full.WriteString(text)
			if !yield(text, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("openai stream: %w", err))
			return
		}
		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}

		s.mu.Lock()
		s.history = append(msgs, openai.ChatCompletionMessageParamOfAssistant(full.String()))
		s.mu.Unlock()
	})
}

func (s *openAISession) params(msgs []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(s.model),
		Messages: msgs,
	}
	if s.cfg.Temperature > 0 {
		p.Temperature = openai.Float(s.cfg.Temperature)
	}
	if s.cfg.TopP > 0 {
		p.TopP = openai.Float(s.cfg.TopP)
	}
	if s.cfg.MaxOutputTokens > 0 {
		p.MaxCompletionTokens = openai.Int(int64(s.cfg.MaxOutputTokens))
	}
	return p
}

// Close implements Session.
func (s *openAISession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.history = nil
	return nil
}
