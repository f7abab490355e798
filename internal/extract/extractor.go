// Package extract derives structured slot values from free text.
//
// Extraction is vocabulary-driven: each slot spec in the active complaint's
// schema declares the keywords, phrase lists, or capture patterns that fill
// it, and one utterance may fill several slots in a single pass. Extraction
// only ever adds values (or appends to list slots); a previously set slot is
// replaced only when the text provides explicit new evidence for it.
package extract

import (
	"log/slog"
	"strings"

	"github.com/triagekit/triagepipe/internal/catalog"
	"github.com/triagekit/triagepipe/internal/models"
	"github.com/triagekit/triagepipe/internal/util"
)

// negators mark a keyword as explicitly denied when they appear within the
// few tokens before it. "no fever" records fever=false; silence records nothing.
var negators = map[string]bool{
	"no": true, "not": true, "never": true, "without": true,
	"denies": true, "deny": true, "dont": true, "didnt": true,
	"doesnt": true, "hasnt": true, "havent": true, "isnt": true,
	"arent": true, "none": true, "nothing": true,
}

// negationWindow is how many tokens before a keyword a negator may sit.
// Four covers phrasings like "no pain in my arm".
const negationWindow = 4

// affirmations answer the last asked yes/no question when the text carries no
// slot keyword at all.
var affirmations = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "yup": true, "correct": true, "definitely": true,
}

var denials = map[string]bool{
	"no": true, "nope": true, "nah": true, "none": true, "negative": true,
}

// Extractor fills slots from free text against a complaint's schema.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns only newly derived slot values. known is consulted so an
// already-confirmed value is re-derived only when the text explicitly
// provides a different one; it is never cleared.
func (e *Extractor) Extract(text string, def *catalog.ComplaintDefinition, known models.Slots, lastAsked string) models.Slots {
	norm := util.NormalizeText(text)
	if norm == "" {
		return models.Slots{}
	}
	tokens := strings.Fields(norm)
	found := models.Slots{}

	for i := range def.SlotSchema {
		spec := &def.SlotSchema[i]
		value, ok := e.extractSlot(norm, tokens, spec)
		if !ok {
			continue
		}
		if prev, exists := known[spec.Name]; exists {
			if spec.Kind == models.SlotKindList {
				// list extraction already returns only the new elements
			} else if prev.Equal(value) {
				continue
			}
			// explicit contradiction: the text names a different value
		}
		found[spec.Name] = value
	}

	// A bare yes/no answers the question we just asked, even without keywords.
	if lastAsked != "" {
		if _, already := found[lastAsked]; !already {
			if spec, ok := def.Slot(lastAsked); ok {
				if _, exists := known[lastAsked]; !exists {
					if v, answered := bareAnswer(tokens); answered {
						switch {
						case spec.Kind == models.SlotKindBool:
							found[lastAsked] = models.BoolSlot(v)
						case spec.Kind == models.SlotKindList && !v:
							// an empty list records "explicitly none",
							// which satisfies the stage plan
							found[lastAsked] = models.ListSlot()
						}
					}
				}
			}
		}
	}

	if len(found) > 0 {
		names := make([]string, 0, len(found))
		for name := range found {
			names = append(names, name)
		}
		slog.Debug("Extractor.Extract: slots derived", "complaint", def.ID, "slots", names)
	}
	return found
}

func (e *Extractor) extractSlot(norm string, tokens []string, spec *catalog.SlotSpec) (models.SlotValue, bool) {
	switch spec.Kind {
	case models.SlotKindBool:
		return extractBool(norm, tokens, spec)
	case models.SlotKindEnum:
		return extractEnum(norm, spec)
	case models.SlotKindNumber:
		return extractNumber(norm, spec)
	case models.SlotKindString:
		return extractString(norm, tokens, spec)
	case models.SlotKindList:
		return extractList(norm, spec)
	}
	return models.SlotValue{}, false
}

// extractBool looks for positive keyword evidence and checks the tokens just
// before the keyword for a negator. Absent evidence leaves the slot unset:
// unset and explicitly-false are different clinical facts.
func extractBool(norm string, tokens []string, spec *catalog.SlotSpec) (models.SlotValue, bool) {
	for _, kw := range spec.Keywords {
		kwNorm := util.NormalizeText(kw)
		if kwNorm == "" || !strings.Contains(norm, kwNorm) {
			continue
		}
		if negated(tokens, strings.Fields(kwNorm)) {
			return models.BoolSlot(false), true
		}
		return models.BoolSlot(true), true
	}
	return models.SlotValue{}, false
}

// negated reports whether any occurrence of the keyword token sequence is
// preceded by a negator within the negation window.
func negated(tokens, kw []string) bool {
	if len(kw) == 0 {
		return false
	}
	for i := 0; i+len(kw) <= len(tokens); i++ {
		if !tokensMatchAt(tokens, kw, i) {
			continue
		}
		start := i - negationWindow
		if start < 0 {
			start = 0
		}
		for j := start; j < i; j++ {
			if negators[tokens[j]] {
				return true
			}
		}
		// one non-negated occurrence is positive evidence
		return false
	}
	return false
}

func tokensMatchAt(tokens, kw []string, at int) bool {
	for k, want := range kw {
		if !strings.Contains(tokens[at+k], want) && tokens[at+k] != want {
			return false
		}
	}
	return true
}

func extractEnum(norm string, spec *catalog.SlotSpec) (models.SlotValue, bool) {
	// domain order decides ties, keeping extraction deterministic
	for _, value := range spec.Values {
		for _, phrase := range spec.ValuePhrases[value] {
			if p := util.NormalizeText(phrase); p != "" && strings.Contains(norm, p) {
				return models.EnumSlot(value), true
			}
		}
	}
	return models.SlotValue{}, false
}

// numberWords lets "two days" work as well as "2 days".
var numberWords = map[string]string{
	"one": "1", "two": "2", "three": "3", "four": "4", "five": "5",
	"six": "6", "seven": "7", "eight": "8", "nine": "9", "ten": "10",
	"a couple of": "2", "couple of": "2", "a few": "3", "few": "3", "half a": "0.5",
}

func extractNumber(norm string, spec *catalog.SlotSpec) (models.SlotValue, bool) {
	candidates := []string{norm, replaceNumberWords(norm)}
	for _, text := range candidates {
		for i := range spec.Patterns {
			v, ok := spec.Patterns[i].Capture(text)
			if !ok {
				continue
			}
			if spec.Min != nil && v < *spec.Min {
				slog.Debug("extract: number below declared range, slot left unset", "slot", spec.Name, "value", v)
				continue
			}
			if spec.Max != nil && v > *spec.Max {
				slog.Debug("extract: number above declared range, slot left unset", "slot", spec.Name, "value", v)
				continue
			}
			return models.NumberSlot(v), true
		}
	}
	return models.SlotValue{}, false
}

func replaceNumberWords(norm string) string {
	out := norm
	for word, digit := range numberWords {
		out = strings.ReplaceAll(out, word+" ", digit+" ")
	}
	return out
}

func extractString(norm string, tokens []string, spec *catalog.SlotSpec) (models.SlotValue, bool) {
	// an explicit "none"/"nothing" is a valid answer for free-text slots
	for _, tok := range tokens {
		if tok == "none" || tok == "nothing" {
			return models.StringSlot("none"), true
		}
	}
	for i := range spec.Patterns {
		if m := spec.Patterns[i].CaptureString(norm); m != "" {
			return models.StringSlot(m), true
		}
	}
	return models.SlotValue{}, false
}

func extractList(norm string, spec *catalog.SlotSpec) (models.SlotValue, bool) {
	var items []string
	tokens := strings.Fields(norm)
	for _, value := range spec.Values {
		for _, phrase := range spec.ValuePhrases[value] {
			p := util.NormalizeText(phrase)
			if p == "" || !strings.Contains(norm, p) {
				continue
			}
			if negated(tokens, strings.Fields(p)) {
				continue
			}
			items = append(items, value)
			break
		}
	}
	if len(items) == 0 {
		return models.SlotValue{}, false
	}
	return models.ListSlot(items...), true
}

// bareAnswer interprets a short utterance as a yes/no reply.
func bareAnswer(tokens []string) (bool, bool) {
	if len(tokens) == 0 || len(tokens) > 3 {
		return false, false
	}
	if affirmations[tokens[0]] {
		return true, true
	}
	if denials[tokens[0]] {
		return false, true
	}
	return false, false
}
