// Package store provides storage backends for TriagePipe.
//
// This file implements the SQLite-backed store for sessions and triage records.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/triagekit/triagepipe/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions as JSON documents in a local SQLite file.
// Per-session serialization is enforced with in-process keyed locks, which is
// sufficient because one SQLite file is only ever owned by one process.
type SQLiteStore struct {
	db    *sql.DB
	locks *keyedLocks
}

// NewSQLiteStore creates a new SQLite store with the given DSN (a file path).
// The parent directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("SQLiteStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore ready", "dsn", cfg.DSN)
	return &SQLiteStore{db: db, locks: newKeyedLocks()}, nil
}

func (s *SQLiteStore) GetSession(id string) (*models.Session, error) {
	if id == "" {
		return nil, models.ErrEmptySessionID
	}
	return scanSession(s.db.QueryRow(`SELECT id, interview, created_at, updated_at FROM sessions WHERE id = ?`, id))
}

func (s *SQLiteStore) UpdateSession(id string, fn func(*models.Session) error) (*models.Session, error) {
	if id == "" {
		return nil, models.ErrEmptySessionID
	}
	lock := s.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.GetSession(id)
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
	if err := s.SaveSession(*sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) SaveSession(sess models.Session) error {
	if sess.ID == "" {
		return models.ErrEmptySessionID
	}
	interview, err := marshalInterview(sess.Interview)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions (id, interview, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET interview = excluded.interview, updated_at = excluded.updated_at`,
		sess.ID, interview, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "session", sess.ID)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT id, interview, created_at, updated_at FROM sessions`)
	if err != nil {
		slog.Error("SQLiteStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (s *SQLiteStore) DeleteSession(id string) error {
	if id == "" {
		return models.ErrEmptySessionID
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "session", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	s.locks.drop(id)
	return nil
}

func (s *SQLiteStore) AddTriageRecord(r models.TriageRecord) error {
	slots, matched, err := marshalRecord(&r)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO triage_records (session_id, complaint_id, slots, level, matched_rules, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.ComplaintID, slots, string(r.Level), matched, r.RecordedAt)
	if err != nil {
		slog.Error("SQLiteStore AddTriageRecord failed", "error", err, "session", r.SessionID)
		return fmt.Errorf("failed to insert triage record for %s: %w", r.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) GetTriageRecords() ([]models.TriageRecord, error) {
	rows, err := s.db.Query(`SELECT session_id, complaint_id, slots, level, matched_rules, recorded_at FROM triage_records ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore GetTriageRecords query failed", "error", err)
		return nil, fmt.Errorf("failed to query triage records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---- row (de)serialization shared with the Postgres backend ----

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		sess      models.Session
		interview sql.NullString
	)
	err := row.Scan(&sess.ID, &interview, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session row: %w", err)
	}
	if interview.Valid && interview.String != "" {
		var iv models.InterviewState
		if err := json.Unmarshal([]byte(interview.String), &iv); err != nil {
			return nil, fmt.Errorf("failed to decode interview state: %w", err)
		}
		sess.Interview = &iv
	}
	return &sess, nil
}

func collectSessions(rows *sql.Rows) ([]models.Session, error) {
	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}

func collectRecords(rows *sql.Rows) ([]models.TriageRecord, error) {
	var records []models.TriageRecord
	for rows.Next() {
		var (
			r       models.TriageRecord
			slots   string
			matched string
			level   string
		)
		if err := rows.Scan(&r.SessionID, &r.ComplaintID, &slots, &level, &matched, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan triage record row: %w", err)
		}
		r.Level = models.TriageLevel(level)
		if err := json.Unmarshal([]byte(slots), &r.Slots); err != nil {
			return nil, fmt.Errorf("failed to decode record slots: %w", err)
		}
		if err := json.Unmarshal([]byte(matched), &r.MatchedRuleIDs); err != nil {
			return nil, fmt.Errorf("failed to decode record rule ids: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate triage record rows: %w", err)
	}
	return records, nil
}

func marshalInterview(iv *models.InterviewState) (sql.NullString, error) {
	if iv == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(iv)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode interview state: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func marshalRecord(r *models.TriageRecord) (slots, matched string, err error) {
	sb, err := json.Marshal(r.Slots)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode record slots: %w", err)
	}
	ids := r.MatchedRuleIDs
	if ids == nil {
		ids = []string{}
	}
	mb, err := json.Marshal(ids)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode record rule ids: %w", err)
	}
	return string(sb), string(mb), nil
}
