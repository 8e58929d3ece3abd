// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package assist answers the one-shot requests that sit beside the drafting
// conversation: a suggestion for a piece of text, and a structured outline
// of an initiative before any part is written.
package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/skkn-master/internal/llm"
	"github.com/pdiddy/skkn-master/internal/prompt"
)

// InputError lists required request fields that are empty.
type InputError struct {
	Missing []string
}

func (e *InputError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// Outline is the skeleton of an initiative.
type Outline struct {
	Abstract  string   `json:"abstract" yaml:"abstract"`
	Situation string   `json:"situation" yaml:"situation"`
	Solutions []string `json:"solutions" yaml:"solutions"`
	Results   string   `json:"results" yaml:"results"`
}

// OutlineRequest names the initiative to outline.
type OutlineRequest struct {
	Title   string `json:"title"`
	Subject string `json:"subject"`
	Grade   string `json:"grade"`
}

// OutlineSchema is the reply shape asked of the model.
var OutlineSchema = &llm.Schema{
	Type: "object",
	Properties: map[string]*llm.Schema{
		"abstract":  {Type: "string", Description: "Tóm tắt sáng kiến"},
		"situation": {Type: "string", Description: "Thực trạng vấn đề"},
		"solutions": {Type: "array", Items: &llm.Schema{Type: "string"}, Description: "Danh sách các giải pháp"},
		"results":   {Type: "string", Description: "Kết quả đạt được"},
	},
	Required: []string{"abstract", "situation", "solutions", "results"},
}

// Suggest asks for help with task, given the passage it is about.
func Suggest(ctx context.Context, svc llm.Service, task, passage string) (string, error) {
	if strings.TrimSpace(task) == "" {
		return "", &InputError{Missing: []string{"prompt"}}
	}
	text, err := svc.Generate(ctx, llm.Request{Prompt: prompt.Suggestion(task, passage)})
	if err != nil {
		return "", fmt.Errorf("generating suggestion: %w", err)
	}
	return text, nil
}

// GenerateOutline asks for a structured outline and decodes it. A reply
// that is not valid JSON, or that leaves a section empty, is an error.
func GenerateOutline(ctx context.Context, svc llm.Service, req OutlineRequest) (Outline, error) {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"title", req.Title},
		{"subject", req.Subject},
		{"grade", req.Grade},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return Outline{}, &InputError{Missing: missing}
	}

	msg, err := prompt.Outline(req.Title, req.Subject, req.Grade)
	if err != nil {
		return Outline{}, err
	}
	text, err := svc.Generate(ctx, llm.Request{Prompt: msg, Schema: OutlineSchema, SchemaName: "skkn_outline"})
	if err != nil {
		return Outline{}, fmt.Errorf("generating outline: %w", err)
	}

	var out Outline
	if err := json.Unmarshal([]byte(stripFence(text)), &out); err != nil {
		return Outline{}, fmt.Errorf("decoding outline: %w", err)
	}
	if empty := out.empty(); len(empty) > 0 {
		return out, fmt.Errorf("outline has empty sections: %s", strings.Join(empty, ", "))
	}
	return out, nil
}

func (o Outline) empty() []string {
	var names []string
	if strings.TrimSpace(o.Abstract) == "" {
		names = append(names, "abstract")
	}
	if strings.TrimSpace(o.Situation) == "" {
		names = append(names, "situation")
	}
	if len(o.Solutions) == 0 {
		names = append(names, "solutions")
	}
	if strings.TrimSpace(o.Results) == "" {
		names = append(names, "results")
	}
	return names
}

// stripFence removes a ```json fence some models wrap around JSON replies.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
