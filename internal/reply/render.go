// Package reply renders questions and triage verdicts as user-facing text.
//
// Rendering is templated assembly only: question phrasing comes from the
// complaint's slot specs, verdict messages from the matched rule's template
// with slot values interpolated. The emergency and urgent call-to-action
// suffixes are appended here unconditionally — template authors cannot
// forget them.
package reply

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"text/template"

	"github.com/triagekit/triagepipe/internal/catalog"
	"github.com/triagekit/triagepipe/internal/models"
)

// Call-to-action suffixes. Fixed and non-optional for urgent verdicts.
const (
	EmergencyCallToAction = "Please call your local emergency number or go to the nearest emergency department NOW. Do not drive yourself if you feel faint or severely unwell."
	UrgentCallToAction    = "Please seek medical care today: contact your doctor immediately or go to an urgent care clinic."
)

// ClarifyMessage asks the user to restate their complaint when nothing could
// be detected. Degrading to this question is the handling for every per-turn
// fault; a technical error never reaches the end user.
const ClarifyMessage = "I'm sorry, I couldn't work out what your main symptom is. Could you describe it in a few words, for example \"shortness of breath\" or \"chest pain\"?"

// Renderer assembles the reply text for one turn.
type Renderer struct{}

// New creates a Renderer.
func New() *Renderer {
	return &Renderer{}
}

// Intro acknowledges a freshly detected complaint before the first question.
func (r *Renderer) Intro(def *catalog.ComplaintDefinition) string {
	return fmt.Sprintf("It sounds like you're experiencing %s. I'll ask a few quick questions to understand how urgent this is.", strings.ToLower(def.DisplayName))
}

// Question renders the follow-up question for a slot.
func (r *Renderer) Question(spec *catalog.SlotSpec) string {
	return spec.Question
}

// Clarify asks the user to restate the complaint.
func (r *Renderer) Clarify() string {
	return ClarifyMessage
}

// Verdict renders the final decision message: the matched rule's template
// with slot values interpolated, then the mandatory call-to-action for
// emergency and red verdicts. Template faults degrade to the raw message
// text; they never fail the turn.
func (r *Renderer) Verdict(v models.TriageVerdict, slots models.Slots) string {
	text := r.interpolate(v.Message, slots)
	switch v.Level {
	case models.LevelEmergency:
		return text + "\n\n" + EmergencyCallToAction
	case models.LevelRed:
		return text + "\n\n" + UrgentCallToAction
	default:
		return text
	}
}

// templateFuncs exposes slot access to message templates.
// {{slot .Slots "onset"}} renders the onset value or "" when unset.
var templateFuncs = template.FuncMap{
	"slot": func(slots models.Slots, name string) string {
		v, ok := slots[name]
		if !ok {
			return ""
		}
		return FormatSlotValue(v)
	},
}

func (r *Renderer) interpolate(msg string, slots models.Slots) string {
	if !strings.Contains(msg, "{{") {
		return msg
	}
	tmpl, err := template.New("verdict").Funcs(templateFuncs).Parse(msg)
	if err != nil {
		slog.Warn("Renderer.Verdict: message template failed to parse, using raw text", "error", err)
		return msg
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, struct{ Slots models.Slots }{slots}); err != nil {
		slog.Warn("Renderer.Verdict: message template failed to execute, using raw text", "error", err)
		return msg
	}
	return b.String()
}

// FormatSlotValue renders a slot value for interpolation into a message.
func FormatSlotValue(v models.SlotValue) string {
	switch v.Kind {
	case models.SlotKindBool:
		if v.Bool {
			return "yes"
		}
		return "no"
	case models.SlotKindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case models.SlotKindEnum, models.SlotKindString:
		return v.Str
	case models.SlotKindList:
		return strings.Join(humanizeAll(v.List), ", ")
	}
	return ""
}

func humanizeAll(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = strings.ReplaceAll(item, "_", " ")
	}
	return out
}
