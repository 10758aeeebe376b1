package sequencer_test

import (
	"testing"
	"time"

	"talentline/internal/config"
	"talentline/internal/domain"
	"talentline/internal/sequencer"
)

var now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newSequencer() sequencer.Sequencer {
	return sequencer.New(config.SequencerConfig{
		BaseIntervalHours: 24,
		Multiplier:        2.0,
		MaxIntervalHours:  168,
		MaxFailures:       3,
		Tone:              "warm",
	})
}

func ts(t time.Time) *string {
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func TestNextActionFreshCandidate(t *testing.T) {
	s := newSequencer()
	c := domain.Candidate{ID: "c1", Status: domain.StatusSourced}
	a := s.NextAction(c, nil, now)
	if a.Kind != sequencer.ActionSend || a.Step != 1 {
		t.Fatalf("got %+v, want send step 1", a)
	}
}

func TestNextActionNonContactable(t *testing.T) {
	s := newSequencer()
	for _, status := range []string{
		domain.StatusInterviewing,
		domain.StatusOffered,
		domain.StatusHired,
		domain.StatusRejected,
	} {
		c := domain.Candidate{ID: "c1", Status: status}
		o := &domain.Outreach{CandidateID: "c1", Step: 2, NextSendAt: ts(now.Add(-time.Hour))}
		if a := s.NextAction(c, o, now); a.Kind != sequencer.ActionDormant {
			t.Fatalf("%s: got %+v, want dormant", status, a)
		}
	}
}

func TestNextActionWaitsUntilDue(t *testing.T) {
	s := newSequencer()
	c := domain.Candidate{ID: "c1", Status: domain.StatusContacted}
	due := now.Add(6 * time.Hour)
	o := &domain.Outreach{CandidateID: "c1", Step: 1, LastSentAt: ts(now.Add(-24 * time.Hour)), NextSendAt: ts(due)}

	a := s.NextAction(c, o, now)
	if a.Kind != sequencer.ActionWait || !a.Until.Equal(due) {
		t.Fatalf("before due: got %+v", a)
	}
	a = s.NextAction(c, o, due.Add(time.Minute))
	if a.Kind != sequencer.ActionSend || a.Step != 2 {
		t.Fatalf("after due: got %+v, want send step 2", a)
	}
}

func TestNextActionRetriesUnsentStep(t *testing.T) {
	s := newSequencer()
	c := domain.Candidate{ID: "c1", Status: domain.StatusContacted}
	// record exists but no send ever succeeded
	o := &domain.Outreach{CandidateID: "c1", Step: 1, Failures: 1}
	a := s.NextAction(c, o, now)
	if a.Kind != sequencer.ActionSend || a.Step != 1 {
		t.Fatalf("got %+v, want retry of step 1", a)
	}
}

func TestNextActionDormantAfterMaxFailures(t *testing.T) {
	s := newSequencer()
	c := domain.Candidate{ID: "c1", Status: domain.StatusContacted}
	o := &domain.Outreach{CandidateID: "c1", Step: 2, Failures: 3, NextSendAt: ts(now.Add(-time.Hour))}
	if a := s.NextAction(c, o, now); a.Kind != sequencer.ActionDormant {
		t.Fatalf("got %+v, want dormant", a)
	}
}

func TestNextActionParkedAfterReply(t *testing.T) {
	s := newSequencer()
	c := domain.Candidate{ID: "c1", Status: domain.StatusInterested}
	o := &domain.Outreach{CandidateID: "c1", Step: 2, LastSentAt: ts(now.Add(-time.Hour))}
	if a := s.NextAction(c, o, now); a.Kind != sequencer.ActionDormant {
		t.Fatalf("got %+v, want dormant", a)
	}
}

func TestAdvanceSchedulesBackoff(t *testing.T) {
	s := newSequencer()
	o := domain.Outreach{CandidateID: "c1", Provider: "mock", Failures: 2}

	o = s.Advance(o, 1, "hello", "body", now)
	if o.Step != 1 || o.Failures != 0 {
		t.Fatalf("after step 1: %+v", o)
	}
	if *o.NextSendAt != now.Add(48*time.Hour).Format(time.RFC3339) {
		t.Fatalf("step 1 gap = %s, want 48h", *o.NextSendAt)
	}

	o = s.Advance(o, 2, "again", "body", now)
	if *o.NextSendAt != now.Add(96*time.Hour).Format(time.RFC3339) {
		t.Fatalf("step 2 gap = %s, want 96h", *o.NextSendAt)
	}

	// deep steps hit the cap
	o = s.Advance(o, 9, "still here", "body", now)
	if *o.NextSendAt != now.Add(168*time.Hour).Format(time.RFC3339) {
		t.Fatalf("capped gap = %s, want 168h", *o.NextSendAt)
	}
}

func TestBackoffMonotonic(t *testing.T) {
	s := newSequencer()
	var prev time.Time
	for step := 1; step <= 10; step++ {
		o := s.Advance(domain.Outreach{CandidateID: "c1"}, step, "s", "b", now)
		next, err := time.Parse(time.RFC3339, *o.NextSendAt)
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if next.Before(prev) {
			t.Fatalf("step %d gap shrank: %s < %s", step, next, prev)
		}
		prev = next
	}
}

func TestRecordFailureParksAtBudget(t *testing.T) {
	s := newSequencer()
	o := domain.Outreach{CandidateID: "c1", Step: 1, NextSendAt: ts(now)}

	var degraded bool
	o, degraded = s.RecordFailure(o, now)
	if degraded || o.Failures != 1 || o.NextSendAt == nil {
		t.Fatalf("after 1 failure: %+v degraded=%v", o, degraded)
	}
	o, degraded = s.RecordFailure(o, now)
	if degraded || o.Failures != 2 {
		t.Fatalf("after 2 failures: %+v degraded=%v", o, degraded)
	}
	o, degraded = s.RecordFailure(o, now)
	if !degraded || o.NextSendAt != nil {
		t.Fatalf("after 3 failures: %+v degraded=%v", o, degraded)
	}
}

func TestParkClearsSchedule(t *testing.T) {
	s := newSequencer()
	o := domain.Outreach{CandidateID: "c1", Step: 2, LastSentAt: ts(now), NextSendAt: ts(now.Add(24 * time.Hour))}
	o = s.Park(o, now)
	if o.NextSendAt != nil {
		t.Fatalf("still scheduled: %+v", o)
	}
	c := domain.Candidate{ID: "c1", Status: domain.StatusInterested}
	if a := s.NextAction(c, &o, now.Add(30*24*time.Hour)); a.Kind != sequencer.ActionDormant {
		t.Fatalf("parked sequence woke up: %+v", a)
	}
}
