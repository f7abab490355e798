package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/triagekit/triagepipe/internal/models"
)

// InMemoryStore keeps sessions and triage records in process memory. Used by
// tests and single-node development runs; state is lost on restart.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	records  []models.TriageRecord
	locks    *keyedLocks
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.Session),
		locks:    newKeyedLocks(),
	}
}

// GetSession returns the stored session, or nil when absent.
func (s *InMemoryStore) GetSession(id string) (*models.Session, error) {
	if id == "" {
		return nil, models.ErrEmptySessionID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := cloneSession(sess)
	return &copied, nil
}

// UpdateSession applies fn under the session's lock. A missing session is
// initialized with the id and creation time before fn runs.
func (s *InMemoryStore) UpdateSession(id string, fn func(*models.Session) error) (*models.Session, error) {
	if id == "" {
		return nil, models.ErrEmptySessionID
	}
	lock := s.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		now := time.Now().UTC()
		sess = models.Session{ID: id, CreatedAt: now, UpdatedAt: now}
	}
	working := cloneSession(sess)

	if err := fn(&working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.sessions[id] = cloneSession(working)
	s.mu.Unlock()
	return &working, nil
}

// SaveSession unconditionally writes the session.
func (s *InMemoryStore) SaveSession(sess models.Session) error {
	if sess.ID == "" {
		return models.ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

// ListSessions returns all stored sessions.
func (s *InMemoryStore) ListSessions() ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, cloneSession(sess))
	}
	return out, nil
}

// DeleteSession removes a session and its lock.
func (s *InMemoryStore) DeleteSession(id string) error {
	if id == "" {
		return models.ErrEmptySessionID
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.locks.drop(id)
	return nil
}

// AddTriageRecord appends a completed-interview record.
func (s *InMemoryStore) AddTriageRecord(r models.TriageRecord) error {
	if r.SessionID == "" {
		return fmt.Errorf("triage record missing session id: %w", models.ErrEmptySessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

// GetTriageRecords returns the accumulated training records.
func (s *InMemoryStore) GetTriageRecords() ([]models.TriageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TriageRecord(nil), s.records...), nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// cloneSession deep-copies a session so callers never alias stored state.
func cloneSession(sess models.Session) models.Session {
	out := sess
	if sess.Interview != nil {
		iv := *sess.Interview
		iv.Slots = sess.Interview.Slots.Clone()
		out.Interview = &iv
	}
	return out
}
