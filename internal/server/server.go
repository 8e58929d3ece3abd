// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes drafting sessions over a small JSON HTTP API. Each
// session is its own Sequencer; generation runs in the background and
// clients poll the document for new text.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/skkn-master/internal/assist"
	"github.com/pdiddy/skkn-master/internal/export"
	"github.com/pdiddy/skkn-master/internal/llm"
	"github.com/pdiddy/skkn-master/internal/logging"
	"github.com/pdiddy/skkn-master/internal/sequencer"
	"github.com/pdiddy/skkn-master/pkg/types"
)

// Config holds what every session shares.
type Config struct {
	Service  llm.Service
	Session  llm.SessionConfig
	Export   export.Options
	Recorder sequencer.Recorder
	Logger   *slog.Logger

	// Now is overridable for tests.
	Now func() time.Time
}

// Server serves the session API.
type Server struct {
	cfg   Config
	log   *slog.Logger
	store *sessionStore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

var errShuttingDown = errors.New("server is shutting down")

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sequencer.Sequencer
}

func (s *sessionStore) set(id string, seq *sequencer.Sequencer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = seq
}

func (s *sessionStore) get(id string) (*sequencer.Sequencer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sessions[id]
	return seq, ok
}

// remove drops id unless its generation is still streaming.
func (s *sessionStore) remove(id string) (*sequencer.Sequencer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	if seq.Streaming() {
		return nil, sequencer.ErrBusy
	}
	delete(s.sessions, id)
	return seq, nil
}

func (s *sessionStore) all() []*sequencer.Sequencer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*sequencer.Sequencer, 0, len(s.sessions))
	for _, seq := range s.sessions {
		out = append(out, seq)
	}
	return out
}

// New returns a Server. cfg.Service is required.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("generation service required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		log:    cfg.Logger,
		store:  &sessionStore{sessions: make(map[string]*sequencer.Sequencer)},
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Routes returns the API handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", s.handleCreate)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGet)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/sessions/{id}/advance", s.handleAdvance)
	mux.HandleFunc("GET /api/sessions/{id}/document", s.handleDocument)
	mux.HandleFunc("GET /api/sessions/{id}/export", s.handleExport)
	mux.HandleFunc("GET /api/steps", s.handleSteps)
	mux.HandleFunc("POST /api/outline", s.handleOutline)
	mux.HandleFunc("POST /api/suggest", s.handleSuggest)
	return logMiddleware(s.log, mux)
}

// Shutdown cancels running generations, waits for them to stop or for ctx
// to expire, and closes every session. Requests that would start a
// generation afterwards get 503.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	for _, seq := range s.store.all() {
		seq.Close()
	}
	return err
}

type sessionResp struct {
	SessionID string                `json:"session_id"`
	State     types.GenerationState `json:"state"`
}

type documentResp struct {
	Offset    int                  `json:"offset"`
	Text      string               `json:"text"`
	Streaming bool                 `json:"streaming"`
	Step      types.GenerationStep `json:"step"`
}

type stepResp struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

type errorResp struct {
	Error string `json:"error"`
}

type suggestReq struct {
	Prompt  string `json:"prompt"`
	Context string `json:"context"`
}

type suggestResp struct {
	Text string `json:"text"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var info types.UserInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := uuid.NewString()
	seq := sequencer.New(s.cfg.Service, sequencer.Options{
		Session:  s.cfg.Session,
		Author:   s.cfg.Export.Author,
		Logger:   s.log,
		Recorder: s.cfg.Recorder,
		NewID:    func() string { return id },
	})

	if !s.reserve() {
		writeError(w, http.StatusServiceUnavailable, errShuttingDown)
		return
	}
	done, err := seq.StartAsync(s.ctx, info)
	if err != nil {
		s.wg.Done()
		var cerr *sequencer.ConfigurationError
		if errors.As(err, &cerr) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.store.set(id, seq)
	s.track(done)

	writeJSONStatus(w, http.StatusAccepted, sessionResp{SessionID: id, State: seq.Snapshot()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	seq, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, sessionResp{SessionID: r.PathValue("id"), State: seq.Snapshot()})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	seq, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if !s.reserve() {
		writeError(w, http.StatusServiceUnavailable, errShuttingDown)
		return
	}
	// Busy or sessionless sequencers both conflict with the request.
	done, err := seq.AdvanceAsync(s.ctx)
	if err != nil {
		s.wg.Done()
		writeError(w, http.StatusConflict, err)
		return
	}
	s.track(done)

	writeJSONStatus(w, http.StatusAccepted, sessionResp{SessionID: r.PathValue("id"), State: seq.Snapshot()})
}

// handleDelete forgets a session and releases its generation session. A
// session still streaming cannot be deleted.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	seq, err := s.store.remove(r.PathValue("id"))
	switch {
	case errors.Is(err, errSessionNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusConflict, err)
		return
	}
	if err := seq.Close(); err != nil {
		s.log.Warn("closing session", "session", r.PathValue("id"), "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	seq, ok := s.lookup(w, r)
	if !ok {
		return
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("offset must be a non-negative integer"))
			return
		}
		offset = n
	}

	// Read the flags first so a finished stream is never reported with
	// text still missing.
	streaming := seq.Streaming()
	step := seq.Step()
	text, end := seq.DocumentSince(offset)
	writeJSON(w, documentResp{Offset: end, Text: text, Streaming: streaming, Step: step})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	seq, ok := s.lookup(w, r)
	if !ok {
		return
	}

	data, err := export.Render(seq.Document(), s.cfg.Export)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	name := export.FileName(s.cfg.Export.Prefix, s.cfg.Export.Author, s.cfg.Now().Year())
	w.Header().Set("Content-Type", export.ContentType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Write(data)
}

func (s *Server) handleSteps(w http.ResponseWriter, _ *http.Request) {
	var out []stepResp
	for _, step := range types.Steps() {
		out = append(out, stepResp{Name: step.String(), Label: step.Label(), Description: step.Description()})
	}
	writeJSON(w, out)
}

func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	var req assist.OutlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := assist.GenerateOutline(r.Context(), s.cfg.Service, req)
	if err != nil {
		writeError(w, assistStatus(err), err)
		return
	}
	writeJSON(w, out)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	text, err := assist.Suggest(r.Context(), s.cfg.Service, req.Prompt, req.Context)
	if err != nil {
		writeError(w, assistStatus(err), err)
		return
	}
	writeJSON(w, suggestResp{Text: text})
}

// assistStatus maps a one-shot failure to a response status: bad input
// and a missing credential are the client's to fix, the rest is upstream.
func assistStatus(err error) int {
	var ierr *assist.InputError
	if errors.As(err, &ierr) || errors.Is(err, llm.ErrNoCredential) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

var errSessionNotFound = errors.New("session not found")

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*sequencer.Sequencer, bool) {
	seq, ok := s.store.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
	}
	return seq, ok
}

// reserve counts a generation about to start so Shutdown can drain it. It
// reports false once Shutdown has begun. A reservation that does not start
// a generation must be released with wg.Done.
func (s *Server) reserve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// track releases the reservation when the background generation ends.
func (s *Server) track(done <-chan error) {
	go func() {
		defer s.wg.Done()
		<-done
	}()
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSONStatus(w, status, errorResp{Error: err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
