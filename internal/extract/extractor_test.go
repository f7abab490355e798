package extract

import (
	"testing"

	"github.com/triagekit/triagepipe/internal/catalog"
	"github.com/triagekit/triagepipe/internal/models"
)

func loadDefinition(t *testing.T, id string) *catalog.ComplaintDefinition {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("failed to load embedded catalog: %v", err)
	}
	def, ok := cat.Get(id)
	if !ok {
		t.Fatalf("complaint %s missing from catalog", id)
	}
	return def
}

func TestExtractNegatedKeywordsRecordExplicitDenial(t *testing.T) {
	def := loadDefinition(t, "shortness_of_breath")
	got := New().Extract("no fever and no cough", def, models.Slots{}, "")
	if len(got) != 2 {
		t.Fatalf("expected exactly fever and cough, got %v", got)
	}
	if !got["fever"].Equal(models.BoolSlot(false)) {
		t.Errorf("fever = %+v, want explicit false", got["fever"])
	}
	if !got["cough"].Equal(models.BoolSlot(false)) {
		t.Errorf("cough = %+v, want explicit false", got["cough"])
	}
}

func TestExtractPositiveKeyword(t *testing.T) {
	def := loadDefinition(t, "shortness_of_breath")
	got := New().Extract("I have a nasty cough with it", def, models.Slots{}, "")
	if !got["cough"].Equal(models.BoolSlot(true)) {
		t.Errorf("cough = %+v, want true", got["cough"])
	}
}

func TestExtractFillsMultipleSlotsFromOneUtterance(t *testing.T) {
	def := loadDefinition(t, "shortness_of_breath")
	got := New().Extract("it started suddenly after my surgery last week", def, models.Slots{}, "")
	if !got["onset"].Equal(models.EnumSlot("sudden")) {
		t.Errorf("onset = %+v, want sudden", got["onset"])
	}
	if !got["risk_factors"].Equal(models.ListSlot("recent_surgery")) {
		t.Errorf("risk_factors = %+v, want [recent_surgery]", got["risk_factors"])
	}
}

func TestExtractNumberWithUnitConversion(t *testing.T) {
	def := loadDefinition(t, "shortness_of_breath")
	tests := []struct {
		text string
		want float64
	}{
		{"for about 6 hours", 6},
		{"around 2 days", 48},
		{"two days I think", 48},
	}
	for _, tt := range tests {
		got := New().Extract(tt.text, def, models.Slots{}, "")
		v, ok := got["duration_hours"]
		if !ok {
			t.Errorf("Extract(%q): duration_hours not filled", tt.text)
			continue
		}
		if !v.Equal(models.NumberSlot(tt.want)) {
			t.Errorf("Extract(%q) duration_hours = %+v, want %v", tt.text, v, tt.want)
		}
	}
}

func TestExtractDropsOutOfRangeNumbers(t *testing.T) {
	def := loadDefinition(t, "fever")
	got := New().Extract("my temperature was 50 degrees", def, models.Slots{}, "")
	if v, ok := got["temperature_c"]; ok {
		t.Errorf("out-of-range capture should leave the slot unset, got %+v", v)
	}
}

func TestExtractEnumByPhrase(t *testing.T) {
	def := loadDefinition(t, "abdominal_pain")
	got := New().Extract("it hurts all over my belly", def, models.Slots{}, "")
	if !got["location"].Equal(models.EnumSlot("generalized")) {
		t.Errorf("location = %+v, want generalized", got["location"])
	}
}

func TestExtractStringCapture(t *testing.T) {
	def := loadDefinition(t, "headache")
	got := New().Extract("I took paracetamol an hour ago", def, models.Slots{}, "")
	if !got["medication_taken"].Equal(models.StringSlot("paracetamol")) {
		t.Errorf("medication_taken = %+v, want paracetamol", got["medication_taken"])
	}

	got = New().Extract("nothing so far", def, models.Slots{}, "")
	if !got["medication_taken"].Equal(models.StringSlot("none")) {
		t.Errorf("medication_taken = %+v, want none", got["medication_taken"])
	}
}

func TestExtractBareAnswerFillsLastAskedSlot(t *testing.T) {
	def := loadDefinition(t, "shortness_of_breath")

	got := New().Extract("yes", def, models.Slots{}, "cough")
	if !got["cough"].Equal(models.BoolSlot(true)) {
		t.Errorf("bare yes: cough = %+v, want true", got["cough"])
	}

	got = New().Extract("no", def, models.Slots{}, "fever")
	if !got["fever"].Equal(models.BoolSlot(false)) {
		t.Errorf("bare no: fever = %+v, want explicit false", got["fever"])
	}

	// denying a list question records "explicitly none"
	got = New().Extract("none of those", def, models.Slots{}, "risk_factors")
	v, ok := got["risk_factors"]
	if !ok {
		t.Fatal("bare denial of a list question left the slot unset")
	}
	if v.Kind != models.SlotKindList || len(v.List) != 0 {
		t.Errorf("risk_factors = %+v, want empty list", v)
	}
}

func TestExtractBareAnswerIgnoredWithoutQuestion(t *testing.T) {
	def := loadDefinition(t, "shortness_of_breath")
	got := New().Extract("yes", def, models.Slots{}, "")
	if len(got) != 0 {
		t.Errorf("bare yes with no pending question should fill nothing, got %v", got)
	}
}

func TestExtractNeverClearsKnownSlots(t *testing.T) {
	def := loadDefinition(t, "shortness_of_breath")
	known := models.Slots{"fever": models.BoolSlot(true)}
	got := New().Extract("I also have a cough", def, known, "")
	if _, ok := got["fever"]; ok {
		t.Errorf("silence about a known slot must not re-derive it, got %v", got)
	}
	if !got["cough"].Equal(models.BoolSlot(true)) {
		t.Errorf("cough = %+v, want true", got["cough"])
	}
}

func TestExtractSkipsKnownUnchangedValue(t *testing.T) {
	def := loadDefinition(t, "shortness_of_breath")
	known := models.Slots{"onset": models.EnumSlot("sudden")}
	got := New().Extract("it was sudden", def, known, "")
	if _, ok := got["onset"]; ok {
		t.Errorf("re-stating the known value should extract nothing, got %v", got)
	}
}

func TestExtractAllowsExplicitContradiction(t *testing.T) {
	def := loadDefinition(t, "shortness_of_breath")
	known := models.Slots{"onset": models.EnumSlot("gradual")}
	got := New().Extract("actually it came on suddenly", def, known, "")
	if !got["onset"].Equal(models.EnumSlot("sudden")) {
		t.Errorf("explicit contradiction should re-derive the slot, got %v", got)
	}
}

func TestExtractListSkipsNegatedValues(t *testing.T) {
	def := loadDefinition(t, "shortness_of_breath")
	got := New().Extract("i dont smoke but i had an operation recently", def, models.Slots{}, "")
	v, ok := got["risk_factors"]
	if !ok {
		t.Fatal("risk_factors not filled")
	}
	if v.Contains("smoking") {
		t.Errorf("negated list value was included: %+v", v)
	}
	if !v.Contains("recent_surgery") {
		t.Errorf("affirmed list value missing: %+v", v)
	}
}
