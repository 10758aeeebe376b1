// Package sequencer decides, per candidate, what the outreach sequence does
// next: send a step, wait for the scheduled time, or go dormant.
package sequencer

import (
	"math"
	"time"

	"talentline/internal/config"
	"talentline/internal/domain"
)

type ActionKind int

const (
	ActionDormant ActionKind = iota
	ActionWait
	ActionSend
)

// Action is the sequencer's decision for one candidate.
type Action struct {
	Kind  ActionKind
	Step  int       // set for ActionSend
	Until time.Time // set for ActionWait
}

type Sequencer struct {
	Cfg config.SequencerConfig
}

func New(cfg config.SequencerConfig) Sequencer {
	return Sequencer{Cfg: cfg}
}

// NextAction inspects candidate status and the outreach record. A nil record
// means no sequence has started: newly sourced candidates get step 1,
// everyone else is dormant. The decision is pure; callers persist outcomes.
func (s Sequencer) NextAction(c domain.Candidate, o *domain.Outreach, now time.Time) Action {
	if !domain.Contactable(c.Status) {
		return Action{Kind: ActionDormant}
	}
	if o == nil {
		if c.Status == domain.StatusSourced {
			return Action{Kind: ActionSend, Step: 1}
		}
		return Action{Kind: ActionDormant}
	}
	if o.Failures >= s.Cfg.MaxFailures {
		return Action{Kind: ActionDormant}
	}
	if o.NextSendAt == nil {
		// Parked: either never successfully sent (retry the pending step
		// next cycle) or explicitly taken out of the schedule.
		if o.LastSentAt == nil {
			return Action{Kind: ActionSend, Step: o.Step}
		}
		return Action{Kind: ActionDormant}
	}
	next, err := time.Parse(time.RFC3339, *o.NextSendAt)
	if err == nil && now.Before(next) {
		return Action{Kind: ActionWait, Until: next}
	}
	step := o.Step
	if o.LastSentAt != nil {
		step++
	}
	return Action{Kind: ActionSend, Step: step}
}

// Advance applies a successful send: the step is committed, the failure
// counter resets, and the next send is scheduled on the backoff curve.
func (s Sequencer) Advance(o domain.Outreach, step int, subject, body string, now time.Time) domain.Outreach {
	sent := now.UTC().Format(time.RFC3339)
	next := now.Add(s.delay(step)).UTC().Format(time.RFC3339)
	o.Step = step
	o.LastSentAt = &sent
	o.NextSendAt = &next
	o.Failures = 0
	o.Subject = &subject
	o.Body = &body
	o.UpdatedAt = sent
	return o
}

// RecordFailure bumps the retry counter, leaving the schedule untouched so
// the same step is retried on the next cycle. Once the budget is exhausted
// the record is parked and the caller raises the degraded signal.
func (s Sequencer) RecordFailure(o domain.Outreach, now time.Time) (domain.Outreach, bool) {
	o.Failures++
	o.UpdatedAt = now.UTC().Format(time.RFC3339)
	if o.Failures >= s.Cfg.MaxFailures {
		o.NextSendAt = nil
		return o, true
	}
	return o, false
}

// Park takes the sequence out of the schedule, e.g. after a reply.
func (s Sequencer) Park(o domain.Outreach, now time.Time) domain.Outreach {
	o.NextSendAt = nil
	o.UpdatedAt = now.UTC().Format(time.RFC3339)
	return o
}

// delay is the gap after sending the given step: base * multiplier^step,
// capped. Gaps are non-decreasing in the step count.
func (s Sequencer) delay(step int) time.Duration {
	d := time.Duration(float64(s.Cfg.BaseInterval()) * math.Pow(s.Cfg.Multiplier, float64(step)))
	if max := s.Cfg.MaxInterval(); d > max {
		d = max
	}
	return d
}
