// Package models defines the core data structures for TriagePipe.
//
// It includes triage levels, slot values, sessions, interview state, and
// verdicts, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// TriageLevel classifies the urgency of a presentation.
type TriageLevel string

const (
	// LevelEmergency indicates a potentially life-threatening presentation.
	LevelEmergency TriageLevel = "emergency"
	// LevelRed indicates an urgent presentation needing same-day care.
	LevelRed TriageLevel = "red"
	// LevelYellow indicates a presentation that should be seen soon.
	LevelYellow TriageLevel = "yellow"
	// LevelGreen indicates a presentation suitable for routine care or self-care.
	LevelGreen TriageLevel = "green"
)

// Severity maps a triage level onto a comparable scale. Higher is more severe.
// Unknown levels map to 0 so they never outrank a real level.
func (l TriageLevel) Severity() int {
	switch l {
	case LevelEmergency:
		return 4
	case LevelRed:
		return 3
	case LevelYellow:
		return 2
	case LevelGreen:
		return 1
	default:
		return 0
	}
}

// IsValidTriageLevel checks if the given level is supported.
func IsValidTriageLevel(l TriageLevel) bool {
	return l.Severity() > 0
}

// MoreSevere reports whether l outranks other.
func (l TriageLevel) MoreSevere(other TriageLevel) bool {
	return l.Severity() > other.Severity()
}

// SlotKind defines the value type a clinical slot carries.
type SlotKind string

const (
	// SlotKindBool is a tri-state fact: absent (unasked), true, or explicitly denied.
	SlotKindBool SlotKind = "bool"
	// SlotKindEnum is one value from a fixed domain.
	SlotKindEnum SlotKind = "enum"
	// SlotKindNumber is a numeric measurement or duration.
	SlotKindNumber SlotKind = "number"
	// SlotKindString is free-form captured text.
	SlotKindString SlotKind = "string"
	// SlotKindList accumulates distinct values from a fixed domain.
	SlotKindList SlotKind = "list"
)

// IsValidSlotKind checks if the given slot kind is supported.
func IsValidSlotKind(k SlotKind) bool {
	switch k {
	case SlotKindBool, SlotKindEnum, SlotKindNumber, SlotKindString, SlotKindList:
		return true
	default:
		return false
	}
}

// SlotValue is a typed slot value. Exactly one payload field is meaningful,
// selected by Kind. An absent slot is represented by absence from the Slots
// map, never by a zero SlotValue: "unset" and "explicitly false" are distinct.
type SlotValue struct {
	Kind   SlotKind `json:"kind"`
	Bool   bool     `json:"bool,omitempty"`
	Number float64  `json:"number,omitempty"`
	Str    string   `json:"str,omitempty"`
	List   []string `json:"list,omitempty"`
}

// BoolSlot builds a boolean slot value. BoolSlot(false) records an explicit denial.
func BoolSlot(v bool) SlotValue { return SlotValue{Kind: SlotKindBool, Bool: v} }

// NumberSlot builds a numeric slot value.
func NumberSlot(v float64) SlotValue { return SlotValue{Kind: SlotKindNumber, Number: v} }

// StringSlot builds a free-text slot value.
func StringSlot(s string) SlotValue { return SlotValue{Kind: SlotKindString, Str: s} }

// EnumSlot builds an enumerated slot value.
func EnumSlot(s string) SlotValue { return SlotValue{Kind: SlotKindEnum, Str: s} }

// ListSlot builds a list slot value.
func ListSlot(items ...string) SlotValue {
	return SlotValue{Kind: SlotKindList, List: append([]string(nil), items...)}
}

// Equal reports whether two slot values are identical in kind and payload.
func (v SlotValue) Equal(other SlotValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case SlotKindBool:
		return v.Bool == other.Bool
	case SlotKindNumber:
		return v.Number == other.Number
	case SlotKindEnum, SlotKindString:
		return v.Str == other.Str
	case SlotKindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if v.List[i] != other.List[i] {
				return false
			}
		}
		return true
	}
	return false
}

// Contains reports whether a list slot carries the given element.
func (v SlotValue) Contains(item string) bool {
	if v.Kind != SlotKindList {
		return false
	}
	for _, el := range v.List {
		if el == item {
			return true
		}
	}
	return false
}

// Slots maps slot names to their recorded values. A missing key means the
// slot has never been filled; keys are never mapped to a "null" value.
type Slots map[string]SlotValue

// Clone returns a deep copy of the slot mapping.
func (s Slots) Clone() Slots {
	out := make(Slots, len(s))
	for k, v := range s {
		if v.Kind == SlotKindList {
			v.List = append([]string(nil), v.List...)
		}
		out[k] = v
	}
	return out
}

// Merge folds newer values into a copy of s and returns the result. Existing
// entries are only replaced when newer explicitly provides a value for the
// same key; list slots accumulate distinct elements instead of being
// replaced. Merge never removes a key.
func (s Slots) Merge(newer Slots) Slots {
	out := s.Clone()
	for name, nv := range newer {
		cur, exists := out[name]
		if exists && cur.Kind == SlotKindList && nv.Kind == SlotKindList {
			merged := SlotValue{Kind: SlotKindList, List: append([]string(nil), cur.List...)}
			for _, el := range nv.List {
				if !containsString(merged.List, el) {
					merged.List = append(merged.List, el)
				}
			}
			out[name] = merged
			continue
		}
		out[name] = nv
	}
	return out
}

func containsString(list []string, item string) bool {
	for _, el := range list {
		if el == item {
			return true
		}
	}
	return false
}

// InterviewStage is the coarse phase of the triage dialogue.
type InterviewStage string

const (
	// StageIntake confirms the complaint and its core descriptors.
	StageIntake InterviewStage = "INTAKE"
	// StageHistory gathers duration, severity, pattern and associated symptoms.
	StageHistory InterviewStage = "HISTORY"
	// StageRedFlags gathers the slots needed by emergency-triggering rules.
	StageRedFlags InterviewStage = "RED_FLAGS"
	// StageComplete is terminal: only the verdict is communicated.
	StageComplete InterviewStage = "COMPLETE"
)

// IsValidInterviewStage checks if the given stage is supported.
func IsValidInterviewStage(st InterviewStage) bool {
	switch st {
	case StageIntake, StageHistory, StageRedFlags, StageComplete:
		return true
	default:
		return false
	}
}

// InterviewState tracks the progress of one complaint interview within a
// session. Invariant: InterviewComplete is true iff Stage is StageComplete.
type InterviewState struct {
	ComplaintID       string         `json:"complaint_id"`
	Stage             InterviewStage `json:"stage"`
	Slots             Slots          `json:"slots"`
	LastAskedSlot     string         `json:"last_asked_slot,omitempty"`
	InterviewComplete bool           `json:"interview_complete"`
}

// Session is the per-conversation aggregate. One session is owned exclusively
// by whichever turn currently holds its store lock; sessions never share state.
type Session struct {
	ID        string          `json:"id"`
	Interview *InterviewState `json:"interview,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ActiveComplaintID returns the complaint under interview, or "" when none is active.
func (s *Session) ActiveComplaintID() string {
	if s == nil || s.Interview == nil {
		return ""
	}
	return s.Interview.ComplaintID
}

// TriageVerdict is the ephemeral outcome of one rule evaluation. MatchedRuleIDs
// is ordered by rule priority, then id, so identical inputs always report
// identical verdicts.
type TriageVerdict struct {
	Level          TriageLevel `json:"level"`
	MatchedRuleIDs []string    `json:"matched_rule_ids"`
	Message        string      `json:"message"`
}

// TriageRecord is the completed-interview record handed to the training-data
// sink. Producing a reply never waits on it.
type TriageRecord struct {
	SessionID      string      `json:"session_id"`
	ComplaintID    string      `json:"complaint_id"`
	Slots          Slots       `json:"slots"`
	Level          TriageLevel `json:"level"`
	MatchedRuleIDs []string    `json:"matched_rule_ids"`
	RecordedAt     time.Time   `json:"recorded_at"`
}

// ComplaintSummary is the UI-facing listing entry for a known complaint.
type ComplaintSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Error variables for better error handling and testability
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrEmptySessionID     = errors.New("session id cannot be empty")
	ErrUnknownComplaint   = errors.New("complaint is not in the catalog")
	ErrSlotNotInSchema    = errors.New("slot is not declared in the complaint's schema")
	ErrMalformedSlotValue = errors.New("extracted value does not satisfy the slot's declared type")
	ErrEmptyMessage       = errors.New("message cannot be empty")
)
