// Package interview implements the staged triage question flow.
//
// The machine is a single generic algorithm parameterized by the complaint's
// slot schema: each stage's question plan is the schema-ordered list of slots
// declared for that stage. A stage is left only when every slot in its plan
// is set — an explicit denial counts as set, an unasked slot does not — or
// when an opportunistic rule evaluation has already produced an urgent
// verdict, in which case the interview completes immediately from any stage.
package interview

import (
	"log/slog"

	"github.com/triagekit/triagepipe/internal/catalog"
	"github.com/triagekit/triagepipe/internal/models"
)

// stageOrder is the fixed progression of the triage dialogue.
var stageOrder = []models.InterviewStage{
	models.StageIntake,
	models.StageHistory,
	models.StageRedFlags,
	models.StageComplete,
}

// Machine advances interview state over a complaint's stage plans. It holds
// no state of its own; all per-conversation state lives in the session.
type Machine struct{}

// New creates a Machine.
func New() *Machine {
	return &Machine{}
}

// NewState initializes interview state for a freshly detected complaint,
// pre-seeding any slots whose specs declare defaults.
func NewState(def *catalog.ComplaintDefinition) *models.InterviewState {
	slots := models.Slots{}
	for i := range def.SlotSchema {
		spec := &def.SlotSchema[i]
		// defaults were validated at catalog load; an error here cannot happen
		if v, ok, err := spec.DefaultValue(); err == nil && ok {
			slots[spec.Name] = v
		}
	}
	return &models.InterviewState{
		ComplaintID: def.ID,
		Stage:       models.StageIntake,
		Slots:       slots,
	}
}

// NextQuestion returns the first unfilled slot in the current stage's ordered
// plan, or ok=false when the stage's plan is satisfied (signalling readiness
// to advance or decide). Deterministic: identical state yields the same slot.
func (m *Machine) NextQuestion(def *catalog.ComplaintDefinition, state *models.InterviewState) (*catalog.SlotSpec, bool) {
	if state.Stage == models.StageComplete {
		return nil, false
	}
	for _, spec := range def.StagePlan(state.Stage) {
		if _, set := state.Slots[spec.Name]; !set {
			return spec, true
		}
	}
	return nil, false
}

// Advance moves the interview forward through every stage whose plan is
// already satisfied, stopping at the first stage that still needs answers.
// It maintains the invariant InterviewComplete == (Stage == COMPLETE).
func (m *Machine) Advance(def *catalog.ComplaintDefinition, state *models.InterviewState) {
	for state.Stage != models.StageComplete && m.stageSatisfied(def, state) {
		from := state.Stage
		state.Stage = nextStage(state.Stage)
		slog.Debug("Machine.Advance: stage advanced", "complaint", def.ID, "from", from, "to", state.Stage)
	}
	state.InterviewComplete = state.Stage == models.StageComplete
}

// Complete forces the interview into the terminal stage. Used when an
// opportunistic evaluation yields an urgent verdict: urgent findings must not
// wait for the remaining questions.
func (m *Machine) Complete(state *models.InterviewState) {
	if state.Stage != models.StageComplete {
		slog.Info("Machine.Complete: interview terminated early", "complaint", state.ComplaintID, "from", state.Stage)
	}
	state.Stage = models.StageComplete
	state.InterviewComplete = true
}

// stageSatisfied reports whether every slot of the current stage's plan is
// set. Explicit false satisfies; absence does not.
func (m *Machine) stageSatisfied(def *catalog.ComplaintDefinition, state *models.InterviewState) bool {
	for _, spec := range def.StagePlan(state.Stage) {
		if _, set := state.Slots[spec.Name]; !set {
			return false
		}
	}
	return true
}

func nextStage(st models.InterviewStage) models.InterviewStage {
	for i, s := range stageOrder {
		if s == st && i+1 < len(stageOrder) {
			return stageOrder[i+1]
		}
	}
	return models.StageComplete
}
