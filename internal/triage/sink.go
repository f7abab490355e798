package triage

import (
	"context"

	"github.com/triagekit/triagepipe/internal/models"
	"github.com/triagekit/triagepipe/internal/store"
)

// Sink accepts completed-interview records for later ML training. It is
// never on the critical path of producing a reply: callers invoke it
// asynchronously and treat failures as log-only.
type Sink interface {
	Record(ctx context.Context, r models.TriageRecord) error
}

// StoreSink writes records to the session store's triage_records table.
type StoreSink struct {
	store store.Store
}

// NewStoreSink creates a sink backed by the given store.
func NewStoreSink(st store.Store) *StoreSink {
	return &StoreSink{store: st}
}

// Record appends the record to the store.
func (s *StoreSink) Record(ctx context.Context, r models.TriageRecord) error {
	return s.store.AddTriageRecord(r)
}
