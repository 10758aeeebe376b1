// Package ingest maps inbound engagement signals onto ledger transitions,
// independent of the orchestrator's polling cadence.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"talentline/internal/domain"
	"talentline/internal/events"
	"talentline/internal/gateway"
	"talentline/internal/metrics"
	"talentline/internal/repo"
	"talentline/internal/sequencer"
)

var ErrInvalidInput = errors.New("invalid event notification")

type Ingestor struct {
	Repo    repo.Repo
	Events  events.Writer
	Seq     sequencer.Sequencer
	Gateway *gateway.Gateway
	Logger  *slog.Logger
	Now     func() time.Time
}

func New(r repo.Repo, seq sequencer.Sequencer, gw *gateway.Gateway, logger *slog.Logger) Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return Ingestor{
		Repo:    r,
		Events:  events.Writer{DB: r.DB},
		Seq:     seq,
		Gateway: gw,
		Logger:  logger,
		Now:     time.Now,
	}
}

func (i Ingestor) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

// statusFor is the fixed event-to-status mapping. Kinds not listed cause no
// status change.
func statusFor(kind string) (string, bool) {
	switch kind {
	case domain.EventOpened:
		return domain.StatusContacted, true
	case domain.EventReplied:
		return domain.StatusInterested, true
	case domain.EventBounced:
		return domain.StatusRejected, true
	}
	return "", false
}

// Ingest appends the engagement event unconditionally, then attempts exactly
// one CAS status update. Losing the CAS race is not an error: the event log
// is the durable source of truth and status is a cached projection.
func (i Ingestor) Ingest(ctx context.Context, candidateID, kind string, payload events.EventPayload) error {
	if candidateID == "" {
		metrics.ObserveIngest(kind, "invalid")
		return fmt.Errorf("%w: candidate id required", ErrInvalidInput)
	}
	if !domain.ValidEventKind(kind) {
		metrics.ObserveIngest(kind, "invalid")
		return fmt.Errorf("%w: unknown event kind %q", ErrInvalidInput, kind)
	}
	c, err := i.Repo.GetCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			metrics.ObserveIngest(kind, "not_found")
		}
		return err
	}
	if _, err := i.Events.Append(ctx, candidateID, kind, payload); err != nil {
		return fmt.Errorf("append engagement event: %w", err)
	}

	target, ok := statusFor(kind)
	if ok && target != c.Status {
		err := i.Repo.UpdateCandidateStatus(ctx, candidateID, c.Status, target)
		switch {
		case err == nil:
		case errors.Is(err, repo.ErrConflict), errors.Is(err, repo.ErrInvalidTransition):
			// Another actor won, or the signal arrived out of order.
			// The event is recorded either way.
			i.Logger.Debug("engagement status update skipped",
				slog.String("candidate_id", candidateID),
				slog.String("kind", kind),
				slog.String("from", c.Status),
				slog.String("to", target),
				slog.String("reason", err.Error()))
		default:
			return err
		}
	}

	// A reply ends the automated sequence even when a send was otherwise due,
	// and hands the candidate a booking link for the next conversation.
	if kind == domain.EventReplied {
		if o, err := i.Repo.GetOutreach(ctx, candidateID); err == nil {
			parked := i.Seq.Park(o, i.now())
			if err := i.Repo.UpsertOutreach(ctx, parked); err != nil {
				i.Logger.Warn("park outreach failed",
					slog.String("candidate_id", candidateID),
					slog.String("error", err.Error()))
			}
		}
		if i.Gateway != nil {
			m, err := i.Gateway.CreateMeeting(ctx, gateway.CreateMeetingRequest{CandidateID: candidateID})
			if err != nil {
				i.Logger.Warn("meeting creation failed",
					slog.String("candidate_id", candidateID),
					slog.String("error", err.Error()))
			} else {
				i.Logger.Info("booking link ready",
					slog.String("candidate_id", candidateID),
					slog.String("url", m.URL))
			}
		}
	}

	metrics.ObserveIngest(kind, "ok")
	i.Logger.Info("engagement event ingested",
		slog.String("candidate_id", candidateID),
		slog.String("kind", kind))
	return nil
}
