// Package detect maps free text to a complaint definition.
//
// Detection is two-pass: exact synonym/substring lookup in catalog order
// first, then a fuzzy similarity fallback over the synonym corpus. Both
// passes are pure and deterministic; identical input always yields the same
// complaint.
package detect

import (
	"log/slog"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/triagekit/triagepipe/internal/catalog"
	"github.com/triagekit/triagepipe/internal/util"
)

// AcceptanceThreshold is the minimum 0-100 similarity score the fuzzy pass
// accepts. Below it, detection reports "none" rather than guessing; changing
// this value changes clinical routing, so it is a constant, not config.
const AcceptanceThreshold = 80

// Detector resolves free text against an immutable complaint catalog.
type Detector struct {
	catalog *catalog.Catalog
}

// New creates a detector over the given catalog.
func New(cat *catalog.Catalog) *Detector {
	return &Detector{catalog: cat}
}

// Detect returns the complaint the text refers to, or ok=false when nothing
// matches confidently. Complaints in exclude (e.g. one already under
// interview) are never returned.
func (d *Detector) Detect(text string, exclude []string) (*catalog.ComplaintDefinition, bool) {
	norm := util.NormalizeText(text)
	if norm == "" {
		return nil, false
	}
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	// Pass 1: substring match, first hit in catalog order wins.
	for _, def := range d.catalog.All() {
		if excluded[def.ID] {
			continue
		}
		for _, syn := range def.Synonyms {
			if synNorm := util.NormalizeText(syn); synNorm != "" && strings.Contains(norm, synNorm) {
				slog.Debug("Detector.Detect: exact synonym match", "complaint", def.ID, "synonym", syn)
				return def, true
			}
		}
	}

	// Pass 2: fuzzy match against every synonym. Ties keep the earlier
	// catalog entry so the outcome does not depend on map iteration.
	var best *catalog.ComplaintDefinition
	bestScore := 0
	for _, def := range d.catalog.All() {
		if excluded[def.ID] {
			continue
		}
		for _, syn := range def.Synonyms {
			score := similarity(norm, util.NormalizeText(syn))
			if score > bestScore {
				bestScore = score
				best = def
			}
		}
	}
	if best != nil && bestScore >= AcceptanceThreshold {
		slog.Debug("Detector.Detect: fuzzy match accepted", "complaint", best.ID, "score", bestScore)
		return best, true
	}
	if best != nil {
		slog.Debug("Detector.Detect: best fuzzy match below threshold", "complaint", best.ID, "score", bestScore)
	}
	return nil, false
}

// similarity scores two normalized strings on a 0-100 scale from their
// Levenshtein distance. The whole text is scored against the synonym, and so
// is every text window of the synonym's token length, so a misspelled
// synonym buried in a longer sentence still scores high.
func similarity(text, syn string) int {
	if syn == "" {
		return 0
	}
	best := levenshteinScore(text, syn)
	synLen := len(strings.Fields(syn))
	words := strings.Fields(text)
	for i := 0; i+synLen <= len(words); i++ {
		window := strings.Join(words[i:i+synLen], " ")
		if s := levenshteinScore(window, syn); s > best {
			best = s
		}
	}
	return best
}

func levenshteinScore(a, b string) int {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	score := 100 * (longest - dist) / longest
	if score < 0 {
		score = 0
	}
	return score
}
