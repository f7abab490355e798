// Package rules loads the clinical rule table and evaluates it against
// interview slots.
//
// The table is loaded and validated once at startup and never mutated;
// evaluation is pure and deterministic. The verdict level is always the most
// severe level among matched rules — a single matching emergency rule
// overrides any number of matching lower-severity rules, regardless of
// priority. Priority only orders reported rule ids and selects which matched
// rule's message is surfaced.
package rules

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	_ "embed"

	"gopkg.in/yaml.v3"

	"github.com/triagekit/triagepipe/internal/catalog"
	"github.com/triagekit/triagepipe/internal/models"
)

//go:embed rules.yaml
var defaultRules []byte

// ScopeAny marks a rule as applicable to every complaint.
const ScopeAny = "any"

// DefaultGreenMessage is the reassurance surfaced when no rule matches.
const DefaultGreenMessage = "Based on what you've told me, your symptoms don't point to anything urgent right now. If things get worse, or new symptoms appear, please get in touch with your doctor."

// Operator compares a slot value against a rule condition's expected value.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
)

// IsValidOperator checks if the given operator is supported.
func IsValidOperator(op Operator) bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpContains, OpIn:
		return true
	default:
		return false
	}
}

// Condition is one conjunct of a rule predicate. A condition whose slot is
// unset evaluates to "not matched" — never to an error and never to a
// default truth value.
type Condition struct {
	Slot  string      `yaml:"slot" json:"slot"`
	Op    Operator    `yaml:"op" json:"op"`
	Value interface{} `yaml:"value" json:"value"`
}

// Rule is one immutable clinical rule. Complaints lists the complaint ids it
// applies to; the single entry "any" applies it everywhere.
type Rule struct {
	ID         string             `yaml:"id" json:"id"`
	Complaints []string           `yaml:"complaints" json:"complaints"`
	Conditions []Condition        `yaml:"conditions" json:"conditions"`
	Level      models.TriageLevel `yaml:"level" json:"level"`
	Priority   int                `yaml:"priority" json:"priority"`
	Message    string             `yaml:"message" json:"message"`
}

// AppliesTo reports whether the rule is in scope for the complaint.
func (r *Rule) AppliesTo(complaintID string) bool {
	for _, c := range r.Complaints {
		if c == ScopeAny || c == complaintID {
			return true
		}
	}
	return false
}

// IsAnyScoped reports whether the rule applies to every complaint.
func (r *Rule) IsAnyScoped() bool {
	for _, c := range r.Complaints {
		if c == ScopeAny {
			return true
		}
	}
	return false
}

// ConfigError reports a rule that cannot be evaluated against its scoped
// complaint's schema. It is detected at load time and is fatal at startup,
// so it is never encountered mid-request.
type ConfigError struct {
	RuleID string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rule %s: %s", e.RuleID, e.Reason)
}

// Opts holds configuration for rule table loading.
type Opts struct {
	Path string
}

// Option configures rule table loading.
type Option func(*Opts)

// WithPath loads the rule table from a YAML file instead of the embedded default.
func WithPath(path string) Option {
	return func(o *Opts) { o.Path = path }
}

// Load reads the rule table and validates it against the catalog. Errors are
// fatal at startup.
func Load(cat *catalog.Catalog, opts ...Option) (*Engine, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	data := defaultRules
	source := "embedded"
	if cfg.Path != "" {
		b, err := os.ReadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rule table %s: %w", cfg.Path, err)
		}
		data = b
		source = cfg.Path
	}

	var file struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule table: %w", err)
	}

	eng, err := NewEngine(file.Rules, cat)
	if err != nil {
		return nil, err
	}
	slog.Info("rules.Load: rule table loaded", "source", source, "rules", len(eng.rules))
	return eng, nil
}

// NewEngine validates the rules against the catalog and builds an evaluation
// engine. Rules are held sorted by (priority, id) so reporting order never
// depends on declaration order.
func NewEngine(ruleSet []Rule, cat *catalog.Catalog) (*Engine, error) {
	seen := make(map[string]bool, len(ruleSet))
	for i := range ruleSet {
		r := &ruleSet[i]
		if err := validateRule(r, cat); err != nil {
			return nil, err
		}
		if seen[r.ID] {
			return nil, &ConfigError{RuleID: r.ID, Reason: "duplicate rule id"}
		}
		seen[r.ID] = true
	}
	rules := append([]Rule(nil), ruleSet...)
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
	return &Engine{rules: rules}, nil
}

func validateRule(r *Rule, cat *catalog.Catalog) error {
	if r.ID == "" {
		return &ConfigError{RuleID: "?", Reason: "missing rule id"}
	}
	if !models.IsValidTriageLevel(r.Level) {
		return &ConfigError{RuleID: r.ID, Reason: fmt.Sprintf("invalid triage level %q", r.Level)}
	}
	if len(r.Complaints) == 0 {
		return &ConfigError{RuleID: r.ID, Reason: "empty complaint scope; use \"any\" to apply everywhere"}
	}
	if len(r.Conditions) == 0 {
		return &ConfigError{RuleID: r.ID, Reason: "rule has no conditions"}
	}
	if r.Message == "" {
		return &ConfigError{RuleID: r.ID, Reason: "missing message"}
	}
	for _, cond := range r.Conditions {
		if cond.Slot == "" {
			return &ConfigError{RuleID: r.ID, Reason: "condition with empty slot name"}
		}
		if !IsValidOperator(cond.Op) {
			return &ConfigError{RuleID: r.ID, Reason: fmt.Sprintf("invalid operator %q", cond.Op)}
		}
	}
	// "any"-scoped rules are validated leniently: a complaint without the
	// condition's slot simply never matches it. Explicitly scoped rules
	// must reference slots their complaints actually declare.
	if r.IsAnyScoped() {
		return nil
	}
	for _, complaintID := range r.Complaints {
		def, ok := cat.Get(complaintID)
		if !ok {
			return &ConfigError{RuleID: r.ID, Reason: fmt.Sprintf("unknown complaint %q in scope", complaintID)}
		}
		for _, cond := range r.Conditions {
			spec, ok := def.Slot(cond.Slot)
			if !ok {
				return &ConfigError{RuleID: r.ID, Reason: fmt.Sprintf("slot %q is not in complaint %q's schema", cond.Slot, complaintID)}
			}
			if err := checkOperandKind(&cond, spec.Kind); err != nil {
				return &ConfigError{RuleID: r.ID, Reason: err.Error()}
			}
		}
	}
	return nil
}

func checkOperandKind(cond *Condition, kind models.SlotKind) error {
	switch cond.Op {
	case OpGt, OpGte, OpLt, OpLte:
		if kind != models.SlotKindNumber {
			return fmt.Errorf("operator %s on slot %q requires a number slot, got %s", cond.Op, cond.Slot, kind)
		}
	case OpContains:
		if kind != models.SlotKindList {
			return fmt.Errorf("operator contains on slot %q requires a list slot, got %s", cond.Slot, kind)
		}
	}
	return nil
}
