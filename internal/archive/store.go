// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive keeps a SQLite record of every drafting session: the
// author's details, the latest document and each prompt/response turn.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/skkn-master/pkg/types"
)

// ErrNotFound is returned when a session id is not in the archive.
var ErrNotFound = errors.New("session not found")

const defaultListLimit = 20

// Session is an archived drafting session. Turns is only filled by
// GetSession; Document is empty in ListSessions results.
type Session struct {
	ID        string               `json:"id" yaml:"id"`
	Info      types.UserInfo       `json:"info" yaml:"info"`
	Step      types.GenerationStep `json:"step" yaml:"step"`
	Document  string               `json:"document,omitempty" yaml:"document,omitempty"`
	CreatedAt time.Time            `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time            `json:"updated_at" yaml:"updated_at"`
	Turns     []types.Turn         `json:"turns,omitempty" yaml:"turns,omitempty"`
}

// Store manages the archive database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the archive database at path and creates the schema
// if it does not exist.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			subject TEXT NOT NULL,
			grade TEXT NOT NULL,
			school TEXT NOT NULL,
			textbook TEXT NOT NULL,
			step TEXT NOT NULL,
			document TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			step TEXT NOT NULL,
			prompt TEXT NOT NULL,
			response TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// BeginSession inserts a new session in the OUTLINE step. Recording the same
// id twice replaces the details.
func (s *Store) BeginSession(ctx context.Context, sessionID string, info types.UserInfo) error {
	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, topic, subject, grade, school, textbook, step, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			topic=excluded.topic, subject=excluded.subject, grade=excluded.grade,
			school=excluded.school, textbook=excluded.textbook, updated_at=excluded.updated_at`,
		sessionID, info.Topic, info.Subject, info.Grade, info.School, info.Textbook,
		types.StepOutline.String(), now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", sessionID, err)
	}
	return nil
}

// RecordTurn appends turn to the session and stores the state's step and
// document as the session's latest.
func (s *Store) RecordTurn(ctx context.Context, sessionID string, turn types.Turn, state types.GenerationState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET step = ?, document = ?, updated_at = ? WHERE id = ?`,
		state.Step.String(), state.Document, formatTime(s.now()), sessionID,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recording turn for %s: %w", sessionID, ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (session_id, seq, step, prompt, response, error, started_at, finished_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?), ?, ?, ?, ?, ?, ?)`,
		sessionID, sessionID, turn.Step.String(), turn.Prompt, turn.Response, turn.Error,
		formatTime(turn.StartedAt), formatTime(turn.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	return tx.Commit()
}

// ListSessions returns the most recently updated sessions, newest first,
// without documents or turns. A limit of zero or less uses 20.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, subject, grade, school, textbook, step, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess             Session
			step             string
			created, updated string
		)
		if err := rows.Scan(&sess.ID, &sess.Info.Topic, &sess.Info.Subject, &sess.Info.Grade,
			&sess.Info.School, &sess.Info.Textbook, &step, &created, &updated); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.Step, _ = types.ParseStep(step)
		sess.CreatedAt = parseTime(created)
		sess.UpdatedAt = parseTime(updated)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetSession returns one session with its document and turns in order.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var (
		sess             Session
		step             string
		created, updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, topic, subject, grade, school, textbook, step, document, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Info.Topic, &sess.Info.Subject, &sess.Info.Grade,
		&sess.Info.School, &sess.Info.Textbook, &step, &sess.Document, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	sess.Step, _ = types.ParseStep(step)
	sess.CreatedAt = parseTime(created)
	sess.UpdatedAt = parseTime(updated)

	rows, err := s.db.QueryContext(ctx,
		`SELECT step, prompt, response, error, started_at, finished_at
		 FROM turns WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			turn              types.Turn
			turnStep          string
			started, finished string
		)
		if err := rows.Scan(&turnStep, &turn.Prompt, &turn.Response, &turn.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turn.Step, _ = types.ParseStep(turnStep)
		turn.StartedAt = parseTime(started)
		turn.FinishedAt = parseTime(finished)
		sess.Turns = append(sess.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ExportYAML writes the session transcript to w.
func (s *Store) ExportYAML(ctx context.Context, id string, w io.Writer) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sess); err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return enc.Close()
}
