// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"sync"
)

// Reply is one scripted answer.
type Reply struct {
	// Fragments are yielded in order.
	Fragments []string

	// Err, when set, is yielded after the fragments.
	Err error

	// Wait, when non-nil, blocks the stream before its first fragment until
	// the channel is closed or the context is done.
	Wait <-chan struct{}
}

// Scripted is an offline Service. It answers from Replies in order, across
// all its sessions and Generate calls, and falls back to an echo of the
// prompt once they run out. It is used by tests and by the "mock" provider.
type Scripted struct {
	// Replies are consumed one per Send.
	Replies []Reply

	// ValidateErr and SessionErr force Validate and NewSession to fail.
	ValidateErr error
	SessionErr  error

	mu       sync.Mutex
	next     int
	sent     []string
	sessions int
	lastCfg  SessionConfig
}

// NewScripted returns a Scripted service with the given replies.
func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{Replies: replies}
}

// Validate implements Service.
func (s *Scripted) Validate() error {
	return s.ValidateErr
}

// NewSession implements Service.
func (s *Scripted) NewSession(_ context.Context, cfg SessionConfig) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SessionErr != nil {
		return nil, s.SessionErr
	}
	s.sessions++
	s.lastCfg = cfg
	return &scriptedSession{svc: s}, nil
}

// Sent returns every message sent so far, in order.
func (s *Scripted) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

// Sessions returns how many sessions were opened.
func (s *Scripted) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// LastConfig returns the configuration of the most recent session.
func (s *Scripted) LastConfig() SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCfg
}

func (s *Scripted) take(message string) Reply {
	if r, ok := s.takeScripted(message); ok {
		return r
	}
	return Reply{Fragments: echo(message)}
}

func (s *Scripted) takeScripted(message string) (Reply, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, message)
	if s.next < len(s.Replies) {
		r := s.Replies[s.next]
		s.next++
		return r, true
	}
	return Reply{}, false
}

// Generate implements Service. Without a scripted reply left, a schema
// request gets a sample value of that shape and a plain one gets the echo.
func (s *Scripted) Generate(ctx context.Context, req Request) (string, error) {
	if s.ValidateErr != nil {
		return "", s.ValidateErr
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r, ok := s.takeScripted(req.Prompt)
	if !ok {
		if req.Schema == nil {
			return strings.Join(echo(req.Prompt), ""), nil
		}
		data, err := json.Marshal(sample(req.Schema))
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	if r.Wait != nil {
		select {
		case <-r.Wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	text := strings.Join(r.Fragments, "")
	if r.Err != nil {
		return text, r.Err
	}
	return text, nil
}

// sample builds a placeholder value matching schema.
func sample(schema *Schema) any {
	switch schema.Type {
	case "object":
		out := make(map[string]any, len(schema.Properties))
		for name, p := range schema.Properties {
			out[name] = sample(p)
		}
		return out
	case "array":
		if schema.Items == nil {
			return []any{}
		}
		return []any{sample(schema.Items), sample(schema.Items)}
	default:
		if schema.Description != "" {
			return "Nội dung mẫu: " + schema.Description
		}
		return "Nội dung mẫu"
	}
}

// echo produces a small markdown section for message, split into
// word-sized fragments so the output still streams.
func echo(message string) []string {
	body := fmt.Sprintf("\n\n## %s\n\nNội dung mẫu được tạo ngoại tuyến cho yêu cầu trên.\n", strings.TrimSpace(firstLine(message)))
	var frags []string
	for _, w := range strings.SplitAfter(body, " ") {
		if w != "" {
			frags = append(frags, w)
		}
	}
	return frags
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

type scriptedSession struct {
	svc *Scripted

	mu     sync.Mutex
	closed bool
}

// Send implements Session.
func (s *scriptedSession) Send(ctx context.Context, message string) iter.Seq2[string, error] {
	return once(func(yield func(string, error) bool) {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			yield("", ErrSessionClosed)
			return
		}

		r := s.svc.take(message)
		if r.Wait != nil {
			select {
			case <-r.Wait:
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			}
		}
		for _, f := range r.Fragments {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
		if r.Err != nil {
			yield("", r.Err)
		}
	})
}

// Close implements Session.
func (s *scriptedSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
