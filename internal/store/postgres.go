// Package store provides storage backends for TriagePipe.
//
// This file implements the PostgreSQL-backed store for sessions and triage records.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/triagekit/triagepipe/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions as JSON documents in PostgreSQL. Keyed
// locks serialize same-session turns within the process; SELECT ... FOR
// UPDATE inside UpdateSession extends that guarantee across replicas.
type PostgresStore struct {
	db    *sql.DB
	locks *keyedLocks
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("PostgresStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore ready")
	return &PostgresStore{db: db, locks: newKeyedLocks()}, nil
}

func (s *PostgresStore) GetSession(id string) (*models.Session, error) {
	if id == "" {
		return nil, models.ErrEmptySessionID
	}
	return scanSession(s.db.QueryRow(`SELECT id, interview, created_at, updated_at FROM sessions WHERE id = $1`, id))
}

func (s *PostgresStore) UpdateSession(id string, fn func(*models.Session) error) (*models.Session, error) {
	if id == "" {
		return nil, models.ErrEmptySessionID
	}
	lock := s.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin session transaction: %w", err)
	}
	defer tx.Rollback()

	sess, err := scanSession(tx.QueryRow(`SELECT id, interview, created_at, updated_at FROM sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if sess == nil {
		now := time.Now().UTC()
		sess = &models.Session{ID: id, CreatedAt: now, UpdatedAt: now}
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.UpdatedAt = time.Now().UTC()

	interview, err := marshalInterview(sess.Interview)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(`INSERT INTO sessions (id, interview, created_at, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET interview = EXCLUDED.interview, updated_at = EXCLUDED.updated_at`,
		sess.ID, interview, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore UpdateSession write failed", "error", err, "session", id)
		return nil, fmt.Errorf("failed to save session %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit session %s: %w", id, err)
	}
	return sess, nil
}

func (s *PostgresStore) SaveSession(sess models.Session) error {
	if sess.ID == "" {
		return models.ErrEmptySessionID
	}
	interview, err := marshalInterview(sess.Interview)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions (id, interview, created_at, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET interview = EXCLUDED.interview, updated_at = EXCLUDED.updated_at`,
		sess.ID, interview, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "session", sess.ID)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT id, interview, created_at, updated_at FROM sessions`)
	if err != nil {
		slog.Error("PostgresStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (s *PostgresStore) DeleteSession(id string) error {
	if id == "" {
		return models.ErrEmptySessionID
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "session", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	s.locks.drop(id)
	return nil
}

func (s *PostgresStore) AddTriageRecord(r models.TriageRecord) error {
	slots, matched, err := marshalRecord(&r)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO triage_records (session_id, complaint_id, slots, level, matched_rules, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.SessionID, r.ComplaintID, slots, string(r.Level), matched, r.RecordedAt)
	if err != nil {
		slog.Error("PostgresStore AddTriageRecord failed", "error", err, "session", r.SessionID)
		return fmt.Errorf("failed to insert triage record for %s: %w", r.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) GetTriageRecords() ([]models.TriageRecord, error) {
	rows, err := s.db.Query(`SELECT session_id, complaint_id, slots, level, matched_rules, recorded_at FROM triage_records ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore GetTriageRecords query failed", "error", err)
		return nil, fmt.Errorf("failed to query triage records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
