// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm abstracts the hosted chat model that writes the SKKN document.
// A Service opens Sessions; a Session keeps the conversation history and
// streams each reply back as a lazy, single-use sequence of text fragments.
// A Service also answers one-shot Requests outside any session.
package llm

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"

	"github.com/pdiddy/skkn-master/pkg/types"
)

var (
	// ErrNoCredential is returned by Service.Validate when no API key is set.
	ErrNoCredential = errors.New("no API key configured")

	// ErrStreamConsumed is yielded when a reply stream is ranged over twice.
	ErrStreamConsumed = errors.New("reply stream already consumed")

	// ErrSessionClosed is yielded when sending on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// SessionConfig configures one chat session.
type SessionConfig struct {
	// SystemInstruction frames every turn of the conversation.
	SystemInstruction string

	Temperature float64
	TopP        float64
	TopK        int

	// MaxOutputTokens caps each reply; 0 leaves the provider default.
	MaxOutputTokens int

	// ThinkingBudget is the reasoning-token budget where supported.
	ThinkingBudget int
}

// SessionConfigFrom builds a SessionConfig from the AI settings.
func SessionConfigFrom(cfg types.AIConfig, systemInstruction string) SessionConfig {
	return SessionConfig{
		SystemInstruction: systemInstruction,
		Temperature:       cfg.Temperature,
		TopP:              cfg.TopP,
		TopK:              cfg.TopK,
		MaxOutputTokens:   cfg.MaxOutputTokens,
		ThinkingBudget:    cfg.ThinkingBudget,
	}
}

// Schema describes the JSON value a one-shot reply must hold. Type is one of
// "object", "array" or "string".
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Request is a single prompt answered without conversation history.
type Request struct {
	Prompt string

	// Schema, when set, asks for a JSON reply of that shape. Name labels
	// it for providers that require one.
	Schema     *Schema
	SchemaName string
}

// Service opens chat sessions against one provider.
type Service interface {
	// Validate reports whether the service can be used, without network
	// access. It returns ErrNoCredential when the API key is missing.
	Validate() error

	// NewSession starts an empty conversation.
	NewSession(ctx context.Context, cfg SessionConfig) (Session, error)

	// Generate answers req in one call and returns the whole reply.
	Generate(ctx context.Context, req Request) (string, error)
}

// Session is one conversation. Implementations are safe for use by one
// caller at a time.
type Session interface {
	// Send sends message and returns the reply as a finite sequence of
	// fragments. The sequence does nothing until ranged over, can be ranged
	// over only once, and stops early when ctx is cancelled. A failure is
	// yielded as a final ("", err) pair. The turn joins the history only when
	// the reply completes.
	Send(ctx context.Context, message string) iter.Seq2[string, error]

	// Close releases the session. Later sends fail with ErrSessionClosed.
	Close() error
}

// once guards seq so that a second range yields ErrStreamConsumed.
func once(seq iter.Seq2[string, error]) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrStreamConsumed)
			return
		}
		seq(yield)
	}
}

// failed returns a sequence that yields err once.
func failed(err error) iter.Seq2[string, error] {
	return once(func(yield func(string, error) bool) {
		yield("", err)
	})
}
