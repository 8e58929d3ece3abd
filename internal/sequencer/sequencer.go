// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sequencer drives the SKKN drafting conversation. A Sequencer owns
// one generation-service session, walks the fixed step table, and appends
// every streamed fragment to the document buffer.
//
// The step moves to its target as soon as a request is sent, before the
// content arrives, and is not rolled back when the stream fails.
package sequencer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/skkn-master/internal/llm"
	"github.com/pdiddy/skkn-master/internal/logging"
	"github.com/pdiddy/skkn-master/internal/prompt"
	"github.com/pdiddy/skkn-master/pkg/types"
)

// Transition is one row of the step table.
type Transition struct {
	Prompt string
	Target types.GenerationStep
}

// transitions maps a step to the prompt that writes the next part. Steps
// without an entry cannot be advanced.
var transitions = map[types.GenerationStep]Transition{
	types.StepOutline:    {Prompt: "Viết chi tiết Phần I & II.", Target: types.StepPartIAndII},
	types.StepPartIAndII: {Prompt: "Viết chi tiết Phần III.", Target: types.StepPartIII},
	types.StepPartIII:    {Prompt: "Viết chi tiết Giải pháp 1.", Target: types.StepPartIVSol1},
	types.StepPartIVSol1: {Prompt: "Viết các giải pháp còn lại.", Target: types.StepPartIVSol2},
	types.StepPartIVSol2: {Prompt: "Viết Phần V, VI và Phụ lục.", Target: types.StepPartVAndVI},
}

// NextTransition returns the table entry for step.
func NextTransition(step types.GenerationStep) (Transition, bool) {
	t, ok := transitions[step]
	return t, ok
}

// Recorder receives a copy of each session and turn, e.g. for archiving.
// Errors are logged and otherwise ignored.
type Recorder interface {
	BeginSession(ctx context.Context, sessionID string, info types.UserInfo) error
	RecordTurn(ctx context.Context, sessionID string, turn types.Turn, state types.GenerationState) error
}

// Options configures a Sequencer. The zero value is usable.
type Options struct {
	// Session is passed to the service for every new session. An empty
	// SystemInstruction is replaced by prompt.SystemInstruction.
	Session llm.SessionConfig

	// Author is the name used in the opening message.
	Author string

	Logger *slog.Logger

	// OnFragment is called for every fragment, after it is appended, from
	// the goroutine running Start or Advance.
	OnFragment func(step types.GenerationStep, text string)

	Recorder Recorder

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Sequencer is the drafting state machine. Its methods are safe for
// concurrent use; at most one Start or Advance runs at a time.
type Sequencer struct {
	service llm.Service
	opts    Options
	log     *slog.Logger
	acc     Accumulator

	mu      sync.Mutex
	state   types.GenerationState
	info    types.UserInfo
	session llm.Session
	busy    bool

	// base is where the current session's text starts in acc. It is the
	// old document's length until a Start receives its first fragment.
	base int
}

// New returns a Sequencer in the INPUT_FORM step.
func New(service llm.Service, opts Options) *Sequencer {
	if opts.Session.SystemInstruction == "" {
		opts.Session.SystemInstruction = prompt.SystemInstruction
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Sequencer{
		service: service,
		opts:    opts,
		log:     opts.Logger,
		state:   types.GenerationState{Step: types.StepInputForm},
	}
}

// Start validates info and the service credential, opens a fresh session,
// moves to OUTLINE and streams the outline into a new document. It blocks
// until the stream ends. Errors are also recorded in the state.
func (s *Sequencer) Start(ctx context.Context, info types.UserInfo) error {
	run, err := s.beginStart(ctx, info)
	if err != nil {
		return err
	}
	return run()
}

// StartAsync is Start with the stream running in a new goroutine. Failed
// preconditions are returned directly; otherwise the state already shows
// OUTLINE and streaming when it returns, and the stream's result is
// delivered on the channel.
func (s *Sequencer) StartAsync(ctx context.Context, info types.UserInfo) (<-chan error, error) {
	run, err := s.beginStart(ctx, info)
	if err != nil {
		return nil, err
	}
	return goRun(run), nil
}

// Advance sends the prompt for the part after the current step. The visible
// step moves to the target immediately; a successful final part lands on
// COMPLETED. On INPUT_FORM, PART_V_VI and COMPLETED it does nothing.
func (s *Sequencer) Advance(ctx context.Context) error {
	run, err := s.beginAdvance(ctx)
	if err != nil {
		return err
	}
	return run()
}

// AdvanceAsync is Advance with the stream running in a new goroutine. When
// there is nothing to advance the channel yields nil at once.
func (s *Sequencer) AdvanceAsync(ctx context.Context) (<-chan error, error) {
	run, err := s.beginAdvance(ctx)
	if err != nil {
		return nil, err
	}
	return goRun(run), nil
}

func goRun(run func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- run() }()
	return done
}

func (s *Sequencer) beginStart(ctx context.Context, info types.UserInfo) (func() error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, ErrBusy
	}
	if missing := info.Missing(); len(missing) > 0 {
		err := &ConfigurationError{Missing: missing}
		s.state.Error = err.Error()
		return nil, err
	}
	if err := s.service.Validate(); err != nil {
		cerr := &ConfigurationError{Err: err}
		s.state.Error = cerr.Error()
		return nil, cerr
	}

	old := s.session
	s.session = nil
	s.busy = true
	s.info = info
	s.state = types.GenerationState{
		SessionID: s.opts.NewID(),
		Step:      types.StepOutline,
		Streaming: true,
	}
	s.base = s.acc.Len()
	sessionID := s.state.SessionID

	return func() error {
		return s.runStart(ctx, sessionID, info, old)
	}, nil
}

func (s *Sequencer) runStart(ctx context.Context, sessionID string, info types.UserInfo, old llm.Session) error {
	log := logging.ForSession(s.log, sessionID)
	if old != nil {
		if err := old.Close(); err != nil {
			log.Warn("closing previous session", "err", err)
		}
	}
	log.Info("generation started", "step", types.StepOutline, "topic", info.Topic)

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.BeginSession(ctx, sessionID, info); err != nil {
			log.Warn("recording session", "err", err)
		}
	}

	turn := types.Turn{Step: types.StepOutline, StartedAt: s.opts.Now()}

	msg, err := prompt.Initial(info, s.opts.Author)
	if err != nil {
		return s.finish(ctx, log, "start", turn, types.StepOutline, err)
	}
	turn.Prompt = msg

	session, err := s.service.NewSession(ctx, s.opts.Session)
	if err != nil {
		return s.finish(ctx, log, "start", turn, types.StepOutline, err)
	}
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	turn.Response, err = s.stream(ctx, session, types.StepOutline, msg, true)
	return s.finish(ctx, log, "start", turn, types.StepOutline, err)
}

func (s *Sequencer) beginAdvance(ctx context.Context) (func() error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, ErrBusy
	}
	tr, ok := transitions[s.state.Step]
	if !ok {
		return func() error { return nil }, nil
	}
	if s.session == nil {
		err := &TransportError{Op: "advance", Step: s.state.Step, Err: errNoSession}
		s.state.Error = err.Error()
		return nil, err
	}

	from := s.state.Step
	s.busy = true
	s.state.Streaming = true
	s.state.Error = ""
	s.state.Step = tr.Target
	session := s.session
	log := logging.ForSession(s.log, s.state.SessionID)

	return func() error {
		log.Info("step advanced", "from", from, "to", tr.Target)

		turn := types.Turn{Step: tr.Target, Prompt: tr.Prompt, StartedAt: s.opts.Now()}
		var err error
		turn.Response, err = s.stream(ctx, session, tr.Target, tr.Prompt, false)

		final := tr.Target
		if final == types.StepPartVAndVI {
			final = types.StepCompleted
		}
		return s.finish(ctx, log, "advance", turn, final, err)
	}, nil
}

// stream sends message and appends every fragment to the document. With
// replace set, the first fragment replaces the previous session's text
// instead; a stream that yields nothing leaves that text in place. It
// returns the text received, even when the stream failed part way.
func (s *Sequencer) stream(ctx context.Context, session llm.Session, step types.GenerationStep, message string, replace bool) (string, error) {
	var resp strings.Builder
	for frag, err := range session.Send(ctx, message) {
		if err != nil {
			return resp.String(), err
		}
		if replace {
			s.mu.Lock()
			s.acc.Replace(frag)
			s.base = 0
			s.mu.Unlock()
			replace = false
		} else {
			s.acc.Append(frag)
		}
		resp.WriteString(frag)
		if s.opts.OnFragment != nil {
			s.opts.OnFragment(step, frag)
		}
	}
	return resp.String(), nil
}

// finish ends an operation: it clears the busy and streaming flags, records
// the turn, and on success moves to final. A failure is stored as the
// user-visible error; the step stays where it is.
func (s *Sequencer) finish(ctx context.Context, log *slog.Logger, op string, turn types.Turn, final types.GenerationStep, err error) error {
	turn.FinishedAt = s.opts.Now()

	s.mu.Lock()
	if err != nil {
		var terr *TransportError
		if !errors.As(err, &terr) {
			err = &TransportError{Op: op, Step: turn.Step, Err: err}
		}
		s.state.Error = err.Error()
		turn.Error = err.Error()
	} else if final > s.state.Step {
		s.state.Step = final
	}
	s.state.Streaming = false
	s.state.Turns = append(s.state.Turns, turn)
	s.busy = false
	snap := s.snapshotLocked()
	// The archive keeps only this session's text, not a previous
	// session's document still on screen.
	recorded := snap
	recorded.Document, _ = s.acc.Since(s.base)
	s.mu.Unlock()

	if err != nil {
		log.Warn("generation failed", "op", op, "step", snap.Step, "err", err)
	} else {
		log.Info("generation finished", "op", op, "step", snap.Step, "bytes", len(turn.Response))
	}

	if s.opts.Recorder != nil {
		// The caller's context may already be cancelled; the transcript
		// should still be written.
		if rerr := s.opts.Recorder.RecordTurn(context.WithoutCancel(ctx), snap.SessionID, turn, recorded); rerr != nil {
			log.Warn("recording turn", "err", rerr)
		}
	}
	return err
}

// Snapshot returns a copy of the current state.
func (s *Sequencer) Snapshot() types.GenerationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Sequencer) snapshotLocked() types.GenerationState {
	snap := s.state.Clone()
	snap.Document = s.acc.String()
	return snap
}

// Document returns the accumulated markdown.
func (s *Sequencer) Document() string {
	return s.acc.String()
}

// DocumentSince returns the document text after byte offset off and the
// current document length.
func (s *Sequencer) DocumentSince(off int) (string, int) {
	return s.acc.Since(off)
}

// Step returns the current step.
func (s *Sequencer) Step() types.GenerationStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Step
}

// Streaming reports whether a response is being received.
func (s *Sequencer) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Streaming
}

// CanAdvance reports whether Advance would send a prompt now.
func (s *Sequencer) CanAdvance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := transitions[s.state.Step]
	return ok && !s.busy && s.session != nil
}

// UserInfo returns the details the current session was started with.
func (s *Sequencer) UserInfo() types.UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Close releases the generation session. The state stays readable.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}
