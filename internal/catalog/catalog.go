// Package catalog holds the static complaint reference data for TriagePipe.
//
// The catalog is loaded once at process start from embedded YAML (or an
// operator-supplied file) and is immutable afterwards, so concurrent turns
// read it without synchronization. Each complaint carries its own ordered
// slot schema and stage plan, which is what lets the interview state machine
// stay a single generic algorithm instead of per-complaint branches.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	_ "embed"

	"gopkg.in/yaml.v3"

	"github.com/triagekit/triagepipe/internal/models"
	"github.com/triagekit/triagepipe/internal/util"
)

//go:embed complaints.yaml
var defaultComplaints []byte

// Pattern is one capture rule for a number or string slot. The first capture
// group is the value; for numbers, Multiplier converts the captured unit into
// the slot's canonical unit (e.g. days into hours).
type Pattern struct {
	Regex      string  `yaml:"regex" json:"regex"`
	Multiplier float64 `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`

	re *regexp.Regexp
}

// Capture extracts a numeric value from normalized text, applying the
// multiplier. Returns false when the pattern does not match.
func (p *Pattern) Capture(text string) (float64, bool) {
	if p.re == nil {
		return 0, false
	}
	m := p.re.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	mult := p.Multiplier
	if mult == 0 {
		mult = 1
	}
	return v * mult, true
}

// CaptureString extracts the first capture group as text, for string slots.
func (p *Pattern) CaptureString(text string) string {
	if p.re == nil {
		return ""
	}
	m := p.re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// SlotSpec declares one clinical slot: its value kind, the interview stage
// that asks about it, the question phrasing, and the extraction vocabulary.
type SlotSpec struct {
	Name     string                `yaml:"name" json:"name"`
	Kind     models.SlotKind       `yaml:"kind" json:"kind"`
	Stage    models.InterviewStage `yaml:"stage" json:"stage"`
	Question string                `yaml:"question" json:"question"`

	// Keywords are positive-evidence triggers for boolean slots.
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	// Values is the ordered domain for enum and list slots.
	Values []string `yaml:"values,omitempty" json:"values,omitempty"`
	// ValuePhrases maps an enum/list value to the phrases that select it.
	ValuePhrases map[string][]string `yaml:"value_phrases,omitempty" json:"value_phrases,omitempty"`
	// Patterns capture numeric or free-text values.
	Patterns []Pattern `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	// Min and Max bound number slots; captures outside the range are discarded.
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	// Default, when set, pre-seeds the slot at interview start.
	Default *string `yaml:"default,omitempty" json:"default,omitempty"`
}

// DefaultValue parses the declared default into a typed slot value.
func (s *SlotSpec) DefaultValue() (models.SlotValue, bool, error) {
	if s.Default == nil {
		return models.SlotValue{}, false, nil
	}
	raw := *s.Default
	switch s.Kind {
	case models.SlotKindBool:
		switch raw {
		case "true":
			return models.BoolSlot(true), true, nil
		case "false":
			return models.BoolSlot(false), true, nil
		}
		return models.SlotValue{}, false, fmt.Errorf("slot %s: invalid boolean default %q", s.Name, raw)
	case models.SlotKindNumber:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.SlotValue{}, false, fmt.Errorf("slot %s: invalid number default %q", s.Name, raw)
		}
		return models.NumberSlot(v), true, nil
	case models.SlotKindEnum:
		for _, v := range s.Values {
			if v == raw {
				return models.EnumSlot(raw), true, nil
			}
		}
		return models.SlotValue{}, false, fmt.Errorf("slot %s: default %q is not in the enum domain", s.Name, raw)
	case models.SlotKindString:
		return models.StringSlot(raw), true, nil
	case models.SlotKindList:
		return models.SlotValue{}, false, fmt.Errorf("slot %s: list slots cannot declare a default", s.Name)
	}
	return models.SlotValue{}, false, fmt.Errorf("slot %s: unsupported kind %q", s.Name, s.Kind)
}

// ComplaintDefinition is the immutable reference entity for one presenting
// complaint: its synonym vocabulary and its ordered slot schema.
type ComplaintDefinition struct {
	ID          string     `yaml:"id" json:"id"`
	DisplayName string     `yaml:"display_name" json:"display_name"`
	Synonyms    []string   `yaml:"synonyms" json:"synonyms"`
	SlotSchema  []SlotSpec `yaml:"slots" json:"slots"`
}

// Slot returns the named slot spec from the schema.
func (d *ComplaintDefinition) Slot(name string) (*SlotSpec, bool) {
	for i := range d.SlotSchema {
		if d.SlotSchema[i].Name == name {
			return &d.SlotSchema[i], true
		}
	}
	return nil, false
}

// StagePlan returns the schema-ordered slots asked during the given stage.
func (d *ComplaintDefinition) StagePlan(stage models.InterviewStage) []*SlotSpec {
	var plan []*SlotSpec
	for i := range d.SlotSchema {
		if d.SlotSchema[i].Stage == stage {
			plan = append(plan, &d.SlotSchema[i])
		}
	}
	return plan
}

// Catalog is the loaded, immutable set of complaint definitions. Lookup order
// follows declaration order, which makes synonym ties deterministic.
type Catalog struct {
	defs []*ComplaintDefinition
	byID map[string]*ComplaintDefinition
}

// Opts holds configuration for catalog loading.
type Opts struct {
	Path string
}

// Option configures catalog loading.
type Option func(*Opts)

// WithPath loads the catalog from a YAML file instead of the embedded default.
func WithPath(path string) Option {
	return func(o *Opts) { o.Path = path }
}

// Load reads and validates the complaint catalog. Any validation failure is
// returned as an error and is intended to be fatal at startup: a process must
// never serve traffic with a half-valid catalog.
func Load(opts ...Option) (*Catalog, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	data := defaultComplaints
	source := "embedded"
	if cfg.Path != "" {
		b, err := os.ReadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read complaint catalog %s: %w", cfg.Path, err)
		}
		data = b
		source = cfg.Path
	}

	var file struct {
		Complaints []ComplaintDefinition `yaml:"complaints"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse complaint catalog: %w", err)
	}

	cat, err := New(file.Complaints)
	if err != nil {
		return nil, err
	}
	slog.Info("catalog.Load: complaint catalog loaded", "source", source, "complaints", len(cat.defs))
	return cat, nil
}

// New validates definitions and builds a catalog.
func New(defs []ComplaintDefinition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("complaint catalog is empty")
	}
	cat := &Catalog{byID: make(map[string]*ComplaintDefinition, len(defs))}
	for i := range defs {
		def := &defs[i]
		if err := validateDefinition(def); err != nil {
			return nil, fmt.Errorf("complaint %q: %w", def.ID, err)
		}
		if _, dup := cat.byID[def.ID]; dup {
			return nil, fmt.Errorf("duplicate complaint id %q", def.ID)
		}
		cat.defs = append(cat.defs, def)
		cat.byID[def.ID] = def
	}
	return cat, nil
}

func validateDefinition(def *ComplaintDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("missing id")
	}
	if def.DisplayName == "" {
		return fmt.Errorf("missing display_name")
	}
	if len(def.Synonyms) == 0 {
		return fmt.Errorf("at least one synonym is required")
	}
	if len(def.SlotSchema) == 0 {
		return fmt.Errorf("slot schema is empty")
	}
	seen := make(map[string]bool, len(def.SlotSchema))
	for i := range def.SlotSchema {
		spec := &def.SlotSchema[i]
		if err := validateSlotSpec(spec); err != nil {
			return err
		}
		if seen[spec.Name] {
			return fmt.Errorf("duplicate slot %q", spec.Name)
		}
		seen[spec.Name] = true
	}
	return nil
}

func validateSlotSpec(spec *SlotSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("slot with empty name")
	}
	if !models.IsValidSlotKind(spec.Kind) {
		return fmt.Errorf("slot %s: invalid kind %q", spec.Name, spec.Kind)
	}
	if !models.IsValidInterviewStage(spec.Stage) || spec.Stage == models.StageComplete {
		return fmt.Errorf("slot %s: invalid stage %q", spec.Name, spec.Stage)
	}
	if spec.Question == "" {
		return fmt.Errorf("slot %s: missing question phrasing", spec.Name)
	}
	switch spec.Kind {
	case models.SlotKindBool:
		if len(spec.Keywords) == 0 {
			return fmt.Errorf("slot %s: boolean slots require keywords", spec.Name)
		}
	case models.SlotKindEnum, models.SlotKindList:
		if len(spec.Values) == 0 {
			return fmt.Errorf("slot %s: %s slots require a value domain", spec.Name, spec.Kind)
		}
		domain := make(map[string]bool, len(spec.Values))
		for _, v := range spec.Values {
			domain[v] = true
		}
		for v := range spec.ValuePhrases {
			if !domain[v] {
				return fmt.Errorf("slot %s: value_phrases key %q is outside the value domain", spec.Name, v)
			}
		}
	case models.SlotKindNumber, models.SlotKindString:
		if len(spec.Patterns) == 0 {
			return fmt.Errorf("slot %s: %s slots require capture patterns", spec.Name, spec.Kind)
		}
	}
	for i := range spec.Patterns {
		re, err := regexp.Compile(spec.Patterns[i].Regex)
		if err != nil {
			return fmt.Errorf("slot %s: invalid pattern %q: %w", spec.Name, spec.Patterns[i].Regex, err)
		}
		spec.Patterns[i].re = re
	}
	if _, _, err := spec.DefaultValue(); err != nil {
		return err
	}
	return nil
}

// Get returns the definition for a complaint id.
func (c *Catalog) Get(id string) (*ComplaintDefinition, bool) {
	def, ok := c.byID[id]
	return def, ok
}

// All returns the definitions in declaration order.
func (c *Catalog) All() []*ComplaintDefinition {
	return c.defs
}

// LookupBySynonym finds the first complaint (in catalog order) whose synonym
// appears as a substring of the normalized text. Absence is an expected
// outcome of every detection attempt, so it is reported via ok, not an error.
func (c *Catalog) LookupBySynonym(text string) (*ComplaintDefinition, bool) {
	norm := util.NormalizeText(text)
	if norm == "" {
		return nil, false
	}
	for _, def := range c.defs {
		for _, syn := range def.Synonyms {
			if synNorm := util.NormalizeText(syn); synNorm != "" && strings.Contains(norm, synNorm) {
				return def, true
			}
		}
	}
	return nil, false
}
