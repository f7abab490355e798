// Package store provides session persistence backends for TriagePipe.
//
// It includes an in-memory store for tests and development and SQLite and
// PostgreSQL stores for persistent deployments. All backends enforce
// per-session-id serialization: UpdateSession holds a per-key lock for the
// whole read-modify-write, so concurrent turns for the same session never
// interleave, while different sessions proceed fully in parallel.
package store

import (
	"sync"

	"github.com/triagekit/triagepipe/internal/models"
)

// Store is the session state store contract.
type Store interface {
	// GetSession returns the stored session, or nil when absent.
	GetSession(id string) (*models.Session, error)
	// UpdateSession runs fn on the stored session under the session's lock
	// and persists the result. When no session exists yet, fn receives a
	// freshly initialized one, so first turns and later turns race safely.
	UpdateSession(id string, fn func(*models.Session) error) (*models.Session, error)
	// SaveSession unconditionally writes the session (create or replace).
	SaveSession(s models.Session) error
	// ListSessions returns all stored sessions.
	ListSessions() ([]models.Session, error)
	// DeleteSession removes a session; deleting an absent id is not an error.
	DeleteSession(id string) error
	// AddTriageRecord appends a completed-interview record for the training
	// data sink. Never called on the reply path.
	AddTriageRecord(r models.TriageRecord) error
	// GetTriageRecords returns the accumulated training records.
	GetTriageRecords() ([]models.TriageRecord, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration for store construction.
type Opts struct {
	// DSN is the database connection string (file path for SQLite).
	DSN string
}

// Option configures store construction.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// keyedLocks hands out one mutex per session id. Locks are created on first
// use and kept for the session's lifetime; the per-process count is bounded
// by the number of live sessions.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

// get returns the lock for the id, creating it if needed. Callers lock and
// unlock it themselves so the critical section can span a full
// read-modify-write.
func (k *keyedLocks) get(id string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	return l
}

// drop forgets the lock for a deleted session.
func (k *keyedLocks) drop(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.locks, id)
}
