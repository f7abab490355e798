// Package triage wires complaint detection, slot extraction, the interview
// state machine, and the rule engine into the per-turn entry point.
//
// Each turn is an independent unit of work: load the session under its
// per-id lock, fold the new utterance into the interview, evaluate the rules
// opportunistically, and reply with either the next question or the final
// verdict. Rules run after every slot merge, not only at interview
// completion — an urgent finding ends the interview immediately, and that
// behavior is deliberate, not incidental.
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/triagekit/triagepipe/internal/catalog"
	"github.com/triagekit/triagepipe/internal/detect"
	"github.com/triagekit/triagepipe/internal/extract"
	"github.com/triagekit/triagepipe/internal/interview"
	"github.com/triagekit/triagepipe/internal/models"
	"github.com/triagekit/triagepipe/internal/reply"
	"github.com/triagekit/triagepipe/internal/rules"
	"github.com/triagekit/triagepipe/internal/store"
)

// TurnResult is what one conversational turn returns to the caller.
type TurnResult struct {
	SessionID         string                `json:"session_id"`
	Reply             string                `json:"reply"`
	Verdict           *models.TriageVerdict `json:"verdict,omitempty"`
	InterviewComplete bool                  `json:"interview_complete"`
}

// Service is the conversational triage core exposed to the surrounding
// service layer. Catalog and rule data are immutable after construction, so
// concurrent turns share the service without synchronization beyond the
// store's per-session locks.
type Service struct {
	catalog   *catalog.Catalog
	detector  *detect.Detector
	extractor *extract.Extractor
	machine   *interview.Machine
	engine    *rules.Engine
	store     store.Store
	renderer  *reply.Renderer
	sink      Sink
}

// Opts holds optional service configuration.
type Opts struct {
	Sink Sink
}

// Option configures the service.
type Option func(*Opts)

// WithSink sets the training-data sink for completed interviews.
func WithSink(sink Sink) Option {
	return func(o *Opts) { o.Sink = sink }
}

// NewService creates the triage service over immutable catalog and rule data.
func NewService(cat *catalog.Catalog, eng *rules.Engine, st store.Store, opts ...Option) *Service {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Sink == nil {
		cfg.Sink = NewStoreSink(st)
	}
	return &Service{
		catalog:   cat,
		detector:  detect.New(cat),
		extractor: extract.New(),
		machine:   interview.New(),
		engine:    eng,
		store:     st,
		renderer:  reply.New(),
		sink:      cfg.Sink,
	}
}

// StartOrContinue handles one conversational turn. An empty sessionID starts
// a new session. Per-turn faults degrade to a clarifying question; the only
// errors returned are storage failures.
func (s *Service) StartOrContinue(ctx context.Context, sessionID, freeText string) (*TurnResult, error) {
	if freeText == "" {
		return nil, models.ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
		slog.Debug("Service.StartOrContinue: new session", "sessionID", sessionID)
	}

	result := &TurnResult{SessionID: sessionID}
	_, err := s.store.UpdateSession(sessionID, func(sess *models.Session) error {
		s.processTurn(ctx, sess, freeText, result)
		return nil
	})
	if err != nil {
		slog.Error("Service.StartOrContinue: session update failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to process turn for session %s: %w", sessionID, err)
	}
	return result, nil
}

// processTurn mutates the locked session and fills the turn result. It never
// fails: every fault path ends in a clarifying question.
func (s *Service) processTurn(ctx context.Context, sess *models.Session, freeText string, result *TurnResult) {
	// No active complaint yet: this turn must identify one.
	if sess.Interview == nil {
		def, ok := s.detector.Detect(freeText, nil)
		if !ok {
			slog.Debug("Service.processTurn: no complaint detected", "sessionID", sess.ID)
			result.Reply = s.renderer.Clarify()
			return
		}
		sess.Interview = interview.NewState(def)
		slog.Info("Service.processTurn: complaint detected", "sessionID", sess.ID, "complaint", def.ID)
	}

	state := sess.Interview
	def, ok := s.catalog.Get(state.ComplaintID)
	if !ok {
		// stored state references a complaint this catalog no longer has;
		// restart the intake rather than failing the turn
		slog.Warn("Service.processTurn: stored complaint not in catalog, resetting", "sessionID", sess.ID, "complaint", state.ComplaintID)
		sess.Interview = nil
		result.Reply = s.renderer.Clarify()
		return
	}

	// COMPLETE is terminal: only the verdict is communicated.
	if state.Stage == models.StageComplete {
		s.finishTurn(ctx, sess, def, result, false)
		return
	}

	extracted := s.extractor.Extract(freeText, def, state.Slots, state.LastAskedSlot)
	state.Slots = state.Slots.Merge(extracted)

	// Opportunistic evaluation after every merge: urgent findings must not
	// wait for the remaining questions.
	verdict := s.engine.Evaluate(def.ID, state.Slots)
	if len(verdict.MatchedRuleIDs) > 0 && verdict.Level.Severity() >= models.LevelRed.Severity() {
		s.machine.Complete(state)
		s.finishTurn(ctx, sess, def, result, true)
		return
	}

	s.machine.Advance(def, state)
	if state.Stage == models.StageComplete {
		s.finishTurn(ctx, sess, def, result, true)
		return
	}

	spec, ok := s.machine.NextQuestion(def, state)
	if !ok {
		// the current stage is blocked without an askable slot; treat the
		// interview as decidable rather than looping silently
		slog.Warn("Service.processTurn: no next question in unsatisfied stage", "sessionID", sess.ID, "stage", state.Stage)
		s.machine.Complete(state)
		s.finishTurn(ctx, sess, def, result, true)
		return
	}

	question := s.renderer.Question(spec)
	if state.LastAskedSlot == "" {
		question = s.renderer.Intro(def) + "\n\n" + question
	}
	state.LastAskedSlot = spec.Name
	result.Reply = question
	result.InterviewComplete = false
}

// finishTurn renders the verdict for a completed interview and, when the
// completion is fresh, hands the record to the training sink off the reply path.
func (s *Service) finishTurn(ctx context.Context, sess *models.Session, def *catalog.ComplaintDefinition, result *TurnResult, fresh bool) {
	state := sess.Interview
	verdict := s.engine.Evaluate(def.ID, state.Slots)
	rendered := s.renderer.Verdict(verdict, state.Slots)
	verdict.Message = rendered

	result.Reply = rendered
	result.Verdict = &verdict
	result.InterviewComplete = true

	slog.Info("Service.finishTurn: verdict rendered",
		"sessionID", sess.ID, "complaint", def.ID, "level", verdict.Level, "matched", verdict.MatchedRuleIDs)

	if fresh {
		s.recordVerdict(ctx, sess.ID, def.ID, state.Slots.Clone(), verdict)
	}
}

// recordVerdict ships the completed interview to the sink asynchronously.
// A sink failure is logged and never fails the turn.
func (s *Service) recordVerdict(ctx context.Context, sessionID, complaintID string, slots models.Slots, verdict models.TriageVerdict) {
	record := models.TriageRecord{
		SessionID:      sessionID,
		ComplaintID:    complaintID,
		Slots:          slots,
		Level:          verdict.Level,
		MatchedRuleIDs: verdict.MatchedRuleIDs,
		RecordedAt:     time.Now().UTC(),
	}
	go func() {
		if err := s.sink.Record(context.WithoutCancel(ctx), record); err != nil {
			slog.Warn("Service.recordVerdict: sink failed, verdict not logged", "error", err, "sessionID", sessionID)
		}
	}()
}

// ListComplaints returns the catalog entries for UI population.
func (s *Service) ListComplaints() []models.ComplaintSummary {
	defs := s.catalog.All()
	out := make([]models.ComplaintSummary, 0, len(defs))
	for _, def := range defs {
		out = append(out, models.ComplaintSummary{ID: def.ID, DisplayName: def.DisplayName})
	}
	return out
}

// GetSession returns a stored session, or nil when absent.
func (s *Service) GetSession(sessionID string) (*models.Session, error) {
	return s.store.GetSession(sessionID)
}

// ListActiveSessions returns every stored session.
func (s *Service) ListActiveSessions() ([]models.Session, error) {
	return s.store.ListSessions()
}

// DeleteSession removes a session, for operator cleanup.
func (s *Service) DeleteSession(sessionID string) error {
	return s.store.DeleteSession(sessionID)
}

// GetTriageRecords exposes the accumulated training records for introspection.
func (s *Service) GetTriageRecords() ([]models.TriageRecord, error) {
	return s.store.GetTriageRecords()
}
