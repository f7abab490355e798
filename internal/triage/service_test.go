package triage_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/triagekit/triagepipe/internal/models"
	"github.com/triagekit/triagepipe/internal/reply"
	"github.com/triagekit/triagepipe/internal/rules"
	"github.com/triagekit/triagepipe/internal/store"
	"github.com/triagekit/triagepipe/internal/testutil"
)

// waitForRecords polls the store until the expected number of triage records
// arrives; the sink runs off the reply path, so tests cannot assert it
// synchronously.
func waitForRecords(t *testing.T, st *store.InMemoryStore, want int) []models.TriageRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		records, err := st.GetTriageRecords()
		if err != nil {
			t.Fatalf("GetTriageRecords failed: %v", err)
		}
		if len(records) >= want {
			return records
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d triage records, have %d", want, len(records))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPulmonaryEmbolismScenario(t *testing.T) {
	svc, st := testutil.NewTestService(t)
	ctx := context.Background()

	turn1, err := svc.StartOrContinue(ctx, "", "I suddenly got really short of breath after my surgery last week")
	if err != nil {
		t.Fatalf("turn 1 failed: %v", err)
	}
	if turn1.SessionID == "" {
		t.Fatal("new session did not receive an id")
	}
	if turn1.InterviewComplete || turn1.Verdict != nil {
		t.Fatalf("interview ended prematurely: %+v", turn1)
	}
	if !strings.Contains(turn1.Reply, "How long") {
		t.Errorf("expected the duration question, got %q", turn1.Reply)
	}

	turn2, err := svc.StartOrContinue(ctx, turn1.SessionID, "It's been about 3 hours and I get a sharp chest pain when I breathe in")
	if err != nil {
		t.Fatalf("turn 2 failed: %v", err)
	}
	if !turn2.InterviewComplete {
		t.Fatal("urgent findings must end the interview immediately")
	}
	if turn2.Verdict == nil || turn2.Verdict.Level != models.LevelEmergency {
		t.Fatalf("verdict = %+v, want emergency", turn2.Verdict)
	}
	found := false
	for _, id := range turn2.Verdict.MatchedRuleIDs {
		if id == "R37" {
			found = true
		}
	}
	if !found {
		t.Errorf("R37 not among matched rules: %v", turn2.Verdict.MatchedRuleIDs)
	}
	if !strings.Contains(turn2.Reply, reply.EmergencyCallToAction) {
		t.Errorf("emergency reply missing the call to action: %q", turn2.Reply)
	}
	if !strings.Contains(turn2.Reply, "recent surgery") {
		t.Errorf("rule message not interpolated with the risk factor: %q", turn2.Reply)
	}

	records := waitForRecords(t, st, 1)
	if records[0].SessionID != turn1.SessionID || records[0].Level != models.LevelEmergency {
		t.Errorf("unexpected triage record: %+v", records[0])
	}

	// a turn after completion re-renders the verdict and records nothing new
	turn3, err := svc.StartOrContinue(ctx, turn1.SessionID, "thank you")
	if err != nil {
		t.Fatalf("turn 3 failed: %v", err)
	}
	if !turn3.InterviewComplete || !strings.Contains(turn3.Reply, reply.EmergencyCallToAction) {
		t.Errorf("completed interview should keep communicating the verdict: %+v", turn3)
	}
	if records, _ := st.GetTriageRecords(); len(records) != 1 {
		t.Errorf("post-completion turn produced a duplicate record: %d", len(records))
	}
}

func TestGreenVerdictAfterFullInterview(t *testing.T) {
	svc, st := testutil.NewTestService(t)
	ctx := context.Background()

	turns := []struct {
		text       string
		wantInNext string
	}{
		{"I have a headache that came on gradually", "mild, moderate, or severe"},
		{"it's mild", "How long"},
		{"about 4 hours", "medication"},
		{"I took paracetamol", "worst headache"},
		{"no", "neck"},
		{"no", "fever"},
		{"no", "vision"},
	}

	sessionID := ""
	for i, tt := range turns {
		res, err := svc.StartOrContinue(ctx, sessionID, tt.text)
		if err != nil {
			t.Fatalf("turn %d failed: %v", i+1, err)
		}
		sessionID = res.SessionID
		if res.InterviewComplete {
			t.Fatalf("turn %d ended the interview early: %+v", i+1, res)
		}
		if !strings.Contains(res.Reply, tt.wantInNext) {
			t.Fatalf("turn %d reply = %q, want it to contain %q", i+1, res.Reply, tt.wantInNext)
		}
	}

	final, err := svc.StartOrContinue(ctx, sessionID, "no")
	if err != nil {
		t.Fatalf("final turn failed: %v", err)
	}
	if !final.InterviewComplete {
		t.Fatal("fully answered interview should complete")
	}
	if final.Verdict == nil || final.Verdict.Level != models.LevelGreen {
		t.Fatalf("verdict = %+v, want green", final.Verdict)
	}
	if len(final.Verdict.MatchedRuleIDs) != 0 {
		t.Errorf("green default verdict should match no rules: %v", final.Verdict.MatchedRuleIDs)
	}
	if final.Reply != rules.DefaultGreenMessage {
		t.Errorf("reply = %q, want the default reassurance", final.Reply)
	}
	if strings.Contains(final.Reply, reply.EmergencyCallToAction) || strings.Contains(final.Reply, reply.UrgentCallToAction) {
		t.Error("green verdict must not carry a call to action")
	}

	records := waitForRecords(t, st, 1)
	if records[0].Level != models.LevelGreen || records[0].ComplaintID != "headache" {
		t.Errorf("unexpected triage record: %+v", records[0])
	}
}

func TestUnrecognizedComplaintAsksForClarification(t *testing.T) {
	svc, _ := testutil.NewTestService(t)

	res, err := svc.StartOrContinue(context.Background(), "", "my printer is on fire")
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if res.Reply != reply.ClarifyMessage {
		t.Errorf("reply = %q, want the clarification prompt", res.Reply)
	}
	if res.Verdict != nil || res.InterviewComplete {
		t.Errorf("clarification turn must not carry a verdict: %+v", res)
	}

	// the session survives; a clearer next message starts the interview
	res2, err := svc.StartOrContinue(context.Background(), res.SessionID, "sorry, I meant chest pain")
	if err != nil {
		t.Fatalf("second turn failed: %v", err)
	}
	if res2.Reply == reply.ClarifyMessage {
		t.Errorf("clear complaint still not detected: %q", res2.Reply)
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	svc, _ := testutil.NewTestService(t)
	_, err := svc.StartOrContinue(context.Background(), "", "")
	if !errors.Is(err, models.ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	svc, _ := testutil.NewTestService(t)
	ctx := context.Background()

	a, err := svc.StartOrContinue(ctx, "", "sudden chest pain")
	if err != nil {
		t.Fatalf("session A turn failed: %v", err)
	}
	b, err := svc.StartOrContinue(ctx, "", "I have a headache")
	if err != nil {
		t.Fatalf("session B turn failed: %v", err)
	}
	if a.SessionID == b.SessionID {
		t.Fatal("independent conversations share a session id")
	}

	sessA, err := svc.GetSession(a.SessionID)
	if err != nil || sessA == nil {
		t.Fatalf("GetSession A failed: %v, %v", sessA, err)
	}
	sessB, err := svc.GetSession(b.SessionID)
	if err != nil || sessB == nil {
		t.Fatalf("GetSession B failed: %v, %v", sessB, err)
	}
	if sessA.ActiveComplaintID() != "chest_pain" {
		t.Errorf("session A complaint = %s", sessA.ActiveComplaintID())
	}
	if sessB.ActiveComplaintID() != "headache" {
		t.Errorf("session B complaint = %s", sessB.ActiveComplaintID())
	}
	// A's extracted onset must not appear in B
	if _, ok := sessB.Interview.Slots["onset"]; ok {
		t.Errorf("slot state bled between sessions: %v", sessB.Interview.Slots)
	}
}

func TestListComplaintsAndDeleteSession(t *testing.T) {
	svc, _ := testutil.NewTestService(t)

	complaints := svc.ListComplaints()
	if len(complaints) != 5 {
		t.Fatalf("expected 5 complaints, got %d", len(complaints))
	}
	if complaints[0].ID != "shortness_of_breath" {
		t.Errorf("catalog order not preserved: %v", complaints[0])
	}

	res, err := svc.StartOrContinue(context.Background(), "", "chest pain")
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if err := svc.DeleteSession(res.SessionID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	sess, err := svc.GetSession(res.SessionID)
	if err != nil || sess != nil {
		t.Errorf("deleted session still present: %v, %v", sess, err)
	}
}
