// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"time"
)

// GenerationStep is a phase of the fixed SKKN drafting sequence. Steps are
// ordered; within one session the step never moves backward.
type GenerationStep int

const (
	StepInputForm GenerationStep = iota
	StepOutline
	StepPartIAndII
	StepPartIII
	StepPartIVSol1
	StepPartIVSol2
	StepPartVAndVI
	StepCompleted
)

type stepInfo struct {
	name        string
	label       string
	description string
}

var stepTable = [...]stepInfo{
	StepInputForm:  {"INPUT_FORM", "Thông tin", "Thiết lập thông tin cơ bản"},
	StepOutline:    {"OUTLINE", "Lập Dàn Ý", "Xây dựng khung sườn cho SKKN"},
	StepPartIAndII: {"PART_I_II", "Phần I & II", "Đặt vấn đề & Cơ sở lý luận"},
	StepPartIII:    {"PART_III", "Phần III", "Thực trạng vấn đề"},
	StepPartIVSol1: {"PART_IV_SOL1", "Giải pháp 1", "Chi tiết giải pháp trọng tâm 1"},
	StepPartIVSol2: {"PART_IV_SOL2", "Giải pháp 2-3", "Chi tiết các giải pháp tiếp theo"},
	StepPartVAndVI: {"PART_V_VI", "Phần V, VI & Phụ lục", "Hiệu quả & Kết luận"},
	StepCompleted:  {"COMPLETED", "Hoàn tất", "Đã xong"},
}

// Steps returns every step in order.
func Steps() []GenerationStep {
	steps := make([]GenerationStep, len(stepTable))
	for i := range stepTable {
		steps[i] = GenerationStep(i)
	}
	return steps
}

// Valid reports whether s is one of the defined steps.
func (s GenerationStep) Valid() bool {
	return s >= StepInputForm && s <= StepCompleted
}

// String returns the upper-case step name, e.g. "PART_III".
func (s GenerationStep) String() string {
	if !s.Valid() {
		return fmt.Sprintf("GenerationStep(%d)", int(s))
	}
	return stepTable[s].name
}

// Label is the short Vietnamese caption shown to the user.
func (s GenerationStep) Label() string {
	if !s.Valid() {
		return ""
	}
	return stepTable[s].label
}

// Description is the one-line Vietnamese explanation of the step.
func (s GenerationStep) Description() string {
	if !s.Valid() {
		return ""
	}
	return stepTable[s].description
}

// ParseStep converts a step name back to its GenerationStep. Matching is
// case-insensitive.
func ParseStep(name string) (GenerationStep, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for i, info := range stepTable {
		if info.name == n {
			return GenerationStep(i), nil
		}
	}
	return 0, fmt.Errorf("unknown generation step %q", name)
}

// MarshalText implements encoding.TextMarshaler so steps travel as names in
// JSON and YAML.
func (s GenerationStep) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid generation step %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *GenerationStep) UnmarshalText(text []byte) error {
	step, err := ParseStep(string(text))
	if err != nil {
		return err
	}
	*s = step
	return nil
}

// UserInfo is the author's description of the initiative. All five fields
// are required and are only used to build the first prompt.
type UserInfo struct {
	// Topic is the initiative title ("Đề tài").
	Topic string `json:"topic" yaml:"topic"`

	// Subject is the taught subject ("Môn học").
	Subject string `json:"subject" yaml:"subject"`

	// Grade is the class or school level ("Khối").
	Grade string `json:"grade" yaml:"grade"`

	// School is the author's school ("Trường").
	School string `json:"school" yaml:"school"`

	// Textbook is the textbook series or curriculum ("Bộ sách").
	Textbook string `json:"textbook" yaml:"textbook"`
}

// Missing returns the names of the fields that are empty or whitespace-only,
// in declaration order.
func (u UserInfo) Missing() []string {
	var missing []string
	fields := []struct {
		name  string
		value string
	}{
		{"topic", u.Topic},
		{"subject", u.Subject},
		{"grade", u.Grade},
		{"school", u.School},
		{"textbook", u.Textbook},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Turn records one prompt sent during a session and what came back.
type Turn struct {
	// Step is the step the turn was generating content for.
	Step GenerationStep `json:"step" yaml:"step"`

	// Prompt is the message sent to the generation service.
	Prompt string `json:"prompt" yaml:"prompt"`

	// Response is the concatenation of the fragments received.
	Response string `json:"response" yaml:"response"`

	// Error is the failure message, empty when the stream completed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero" yaml:"finished_at,omitempty"`
}

// GenerationState is the observable state of one drafting session.
type GenerationState struct {
	// SessionID identifies the current generation-service session. Empty
	// until the first Start.
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty"`

	Step GenerationStep `json:"step" yaml:"step"`

	// Document is the accumulated markdown text.
	Document string `json:"document" yaml:"document"`

	// Streaming is true while a response is being received.
	Streaming bool `json:"streaming" yaml:"streaming"`

	// Error is the last user-visible error message.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	Turns []Turn `json:"turns,omitempty" yaml:"turns,omitempty"`
}

// Clone returns a copy that shares no slices with s.
func (s GenerationState) Clone() GenerationState {
	c := s
	if s.Turns != nil {
		c.Turns = make([]Turn, len(s.Turns))
		copy(c.Turns, s.Turns)
	}
	return c
}
