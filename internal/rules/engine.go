package rules

import (
	"github.com/triagekit/triagepipe/internal/models"
)

// Engine evaluates the loaded rule table against a slot mapping. It holds no
// mutable state, so concurrent turns share one instance without locks.
type Engine struct {
	rules []Rule
}

// Rules returns the rule table in (priority, id) order.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Evaluate runs every in-scope rule against the slots and returns the
// verdict. The level is the most severe among matched rules; matched ids are
// reported in (priority, id) order; the surfaced message comes from the
// lowest-priority matched rule at the winning level. Zero matches yield a
// green verdict with the generic reassurance message.
func (e *Engine) Evaluate(complaintID string, slots models.Slots) models.TriageVerdict {
	var (
		matchedIDs []string
		level      = models.LevelGreen
		message    string
		haveLevel  bool
	)
	for i := range e.rules {
		r := &e.rules[i]
		if !r.AppliesTo(complaintID) {
			continue
		}
		if !e.matches(r, slots) {
			continue
		}
		matchedIDs = append(matchedIDs, r.ID)
		if !haveLevel || r.Level.MoreSevere(level) {
			level = r.Level
			message = r.Message
			haveLevel = true
		}
		// rules are priority-sorted, so the first match at the winning
		// level is the one whose message is surfaced
	}
	if len(matchedIDs) == 0 {
		return models.TriageVerdict{Level: models.LevelGreen, Message: DefaultGreenMessage}
	}
	return models.TriageVerdict{Level: level, MatchedRuleIDs: matchedIDs, Message: message}
}

// matches evaluates a rule's conjunction. Any condition on an unset slot
// fails the conjunction without error.
func (e *Engine) matches(r *Rule, slots models.Slots) bool {
	for i := range r.Conditions {
		if !matchCondition(&r.Conditions[i], slots) {
			return false
		}
	}
	return true
}

func matchCondition(cond *Condition, slots models.Slots) bool {
	val, set := slots[cond.Slot]
	if !set {
		return false
	}
	switch cond.Op {
	case OpEq:
		return valueEquals(val, cond.Value)
	case OpNe:
		return !valueEquals(val, cond.Value)
	case OpGt, OpGte, OpLt, OpLte:
		if val.Kind != models.SlotKindNumber {
			return false
		}
		want, ok := asNumber(cond.Value)
		if !ok {
			return false
		}
		switch cond.Op {
		case OpGt:
			return val.Number > want
		case OpGte:
			return val.Number >= want
		case OpLt:
			return val.Number < want
		default:
			return val.Number <= want
		}
	case OpContains:
		want, ok := cond.Value.(string)
		return ok && val.Contains(want)
	case OpIn:
		items, ok := cond.Value.([]interface{})
		if !ok {
			return false
		}
		for _, item := range items {
			if valueEquals(val, item) {
				return true
			}
		}
		return false
	}
	return false
}

// valueEquals compares a slot value with a YAML-decoded expected value. Type
// mismatches compare unequal rather than erroring, keeping evaluation total.
func valueEquals(val models.SlotValue, expected interface{}) bool {
	switch val.Kind {
	case models.SlotKindBool:
		b, ok := expected.(bool)
		return ok && val.Bool == b
	case models.SlotKindNumber:
		n, ok := asNumber(expected)
		return ok && val.Number == n
	case models.SlotKindEnum, models.SlotKindString:
		s, ok := expected.(string)
		return ok && val.Str == s
	default:
		return false
	}
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
