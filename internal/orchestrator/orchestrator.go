// Package orchestrator runs the recurring control loop: for each open role it
// keeps the pipeline replenished and drives the outreach sequencer, with
// per-role dispatch ceilings and bounded parallelism across roles.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"talentline/internal/config"
	"talentline/internal/domain"
	"talentline/internal/events"
	"talentline/internal/gateway"
	"talentline/internal/metrics"
	"talentline/internal/ratelimit"
	"talentline/internal/repo"
	"talentline/internal/sequencer"
)

type Orchestrator struct {
	Repo    repo.Repo
	Gateway *gateway.Gateway
	Seq     sequencer.Sequencer
	Events  events.Writer
	Cfg     *config.Config
	Logger  *slog.Logger
	Now     func() time.Time
}

func New(r repo.Repo, gw *gateway.Gateway, cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Repo:    r,
		Gateway: gw,
		Seq:     sequencer.New(cfg.Sequencer),
		Events:  events.Writer{DB: r.DB},
		Cfg:     cfg,
		Logger:  logger,
		Now:     time.Now,
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// CycleSummary reports what one cycle did. Partial failures are counted, not
// propagated: a role that makes no progress is corrected by the next cycle.
type CycleSummary struct {
	StartedAt         string `json:"started_at" format:"date-time"`
	FinishedAt        string `json:"finished_at" format:"date-time"`
	RolesProcessed    int    `json:"roles_processed"`
	CandidatesCreated int    `json:"candidates_created"`
	SendsDispatched   int    `json:"sends_dispatched"`
	Conflicts         int    `json:"conflicts"`
	Failures          int    `json:"failures"`
	DegradedRoles     int    `json:"degraded_roles"`
}

func (s *CycleSummary) merge(r roleResult) {
	s.RolesProcessed++
	s.CandidatesCreated += r.created
	s.SendsDispatched += r.sends
	s.Conflicts += r.conflicts
	s.Failures += r.failures
	if r.degraded {
		s.DegradedRoles++
	}
}

type roleResult struct {
	created   int
	sends     int
	conflicts int
	failures  int
	degraded  bool
}

// RunCycle processes every open role once, in ascending role-id order, with
// up to Workers roles in flight. Role failures are contained to the role.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleSummary, error) {
	start := o.now()
	summary := CycleSummary{StartedAt: start.UTC().Format(time.RFC3339)}

	roles, err := o.Repo.ListOpenRoles(ctx)
	if err != nil {
		metrics.ObserveCycle("error", time.Since(start))
		return summary, err
	}
	budget := ratelimit.NewBudget(o.Cfg.Orchestrator.MaxSendsPerRole, o.Cfg.Orchestrator.MaxSourcesPerRole)

	jobs := make(chan domain.Role)
	results := make(chan roleResult)
	workers := o.Cfg.Orchestrator.Workers
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for role := range jobs {
				results <- o.processRole(ctx, role, budget)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, role := range roles {
			select {
			case jobs <- role:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()
	for r := range results {
		summary.merge(r)
	}

	finished := o.now()
	summary.FinishedAt = finished.UTC().Format(time.RFC3339)
	result := "ok"
	if ctx.Err() != nil {
		result = "canceled"
	}
	metrics.ObserveCycle(result, finished.Sub(start))
	o.Logger.Info("cycle complete",
		slog.Int("roles", summary.RolesProcessed),
		slog.Int("created", summary.CandidatesCreated),
		slog.Int("sends", summary.SendsDispatched),
		slog.Int("conflicts", summary.Conflicts),
		slog.Int("failures", summary.Failures),
		slog.Int("degraded_roles", summary.DegradedRoles))
	return summary, ctx.Err()
}

func (o *Orchestrator) processRole(ctx context.Context, role domain.Role, budget *ratelimit.Budget) roleResult {
	var res roleResult
	logger := o.Logger.With(slog.String("role_id", role.ID), slog.String("tenant_id", role.TenantID))

	depth, err := o.Repo.CountActiveByRole(ctx, role.ID)
	if err != nil {
		logger.Error("count pipeline depth", slog.String("error", err.Error()))
		res.failures++
		return res
	}
	metrics.SetPipelineDepth(role.ID, depth)

	// Snapshot before replenishing: a candidate sourced this cycle rests in
	// sourced until the next cycle picks it up.
	candidates, err := o.Repo.ListCandidatesByRole(ctx, role.ID)
	if err != nil {
		logger.Error("list candidates", slog.String("error", err.Error()))
		res.failures++
		return res
	}

	if depth < role.MinPipeline {
		created, failed := o.replenish(ctx, role, role.MinPipeline-depth, budget, logger)
		res.created += created
		res.failures += failed
	}

	sends, conflicts, failures, degraded := o.driveSequences(ctx, role, candidates, budget, logger)
	res.sends += sends
	res.conflicts += conflicts
	res.failures += failures
	res.degraded = degraded
	return res
}

// replenish asks the search collaborator for the missing depth, enriches the
// returned leads, and records them as sourced candidates. Best effort: any
// failure is logged and the cycle moves on.
func (o *Orchestrator) replenish(ctx context.Context, role domain.Role, need int, budget *ratelimit.Budget, logger *slog.Logger) (created, failed int) {
	if !budget.AllowSource(role.ID) {
		logger.Warn("sourcing budget exhausted", slog.Int("need", need))
		return 0, 0
	}
	requirements := ""
	if role.Requirements != nil {
		requirements = *role.Requirements
	}
	search, err := o.Gateway.SearchLeads(ctx, gateway.SearchLeadsRequest{
		RoleID:       role.ID,
		Requirements: requirements,
		Count:        need,
	})
	if err != nil {
		logger.Warn("lead search failed", slog.String("error", err.Error()))
		return 0, 1
	}
	leads := search.Leads
	if len(leads) > 0 {
		if enriched, err := o.Gateway.EnrichLeads(ctx, role.ID, gateway.EnrichLeadsRequest{Leads: leads}); err != nil {
			// Un-enriched leads are still usable candidates.
			logger.Warn("lead enrichment failed", slog.String("error", err.Error()))
			failed++
		} else {
			leads = enriched.Leads
		}
	}
	now := o.now().UTC().Format(time.RFC3339)
	for _, lead := range leads {
		if created >= need {
			break
		}
		c := domain.Candidate{
			ID:            uuid.NewSHA1(uuid.NameSpaceURL, []byte(role.ID+"|"+lead.PublicURL)).String(),
			RoleID:        role.ID,
			Name:          lead.Name,
			Title:         lead.Title,
			Company:       lead.Company,
			Location:      lead.Location,
			Email:         lead.Email,
			ProfileURL:    lead.ProfileURL,
			PublicURL:     lead.PublicURL,
			CompanyDomain: lead.CompanyDomain,
			Status:        domain.StatusSourced,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		ok, err := o.Repo.InsertCandidateIfAbsent(ctx, c)
		if err != nil {
			logger.Warn("insert candidate failed", slog.String("error", err.Error()))
			failed++
			continue
		}
		if ok {
			created++
		}
	}
	return created, failed
}

// driveSequences walks the given non-terminal candidates and executes due
// sends. A CAS conflict means another actor already advanced the candidate;
// it is skipped for this cycle, not retried. The role is degraded when every
// sequence still in play has exhausted its retry budget; reply-parked
// sequences are out of play and do not count.
func (o *Orchestrator) driveSequences(ctx context.Context, role domain.Role, candidates []domain.Candidate, budget *ratelimit.Budget, logger *slog.Logger) (sends, conflicts, failures int, degraded bool) {
	tracked, stuck := 0, 0
	for _, c := range candidates {
		if ctx.Err() != nil {
			return sends, conflicts, failures, false
		}
		if domain.Terminal(c.Status) {
			continue
		}

		var rec *domain.Outreach
		existing, err := o.Repo.GetOutreach(ctx, c.ID)
		switch {
		case err == nil:
			rec = &existing
		case errors.Is(err, repo.ErrNotFound):
		default:
			logger.Error("load outreach", slog.String("candidate_id", c.ID), slog.String("error", err.Error()))
			failures++
			continue
		}
		if rec != nil {
			switch {
			case rec.Failures >= o.Cfg.Sequencer.MaxFailures:
				tracked++
				stuck++
			case rec.LastSentAt != nil && rec.NextSendAt == nil:
				// reply-parked: a human took over, nothing is stuck
			default:
				tracked++
			}
		}

		action := o.Seq.NextAction(c, rec, o.now())
		if action.Kind != sequencer.ActionSend {
			continue
		}
		if !budget.AllowSend(role.ID) {
			continue
		}
		advanced, outcome := o.sendStep(ctx, role, c, rec, action.Step, logger)
		switch outcome {
		case sendOK:
			sends++
		case sendConflict:
			conflicts++
		case sendFailed:
			failures++
			if advanced != nil && advanced.Failures >= o.Cfg.Sequencer.MaxFailures {
				stuck++
				if rec == nil {
					tracked++
				}
				metrics.ObserveDegraded(role.ID)
				logger.Warn("outreach sequence parked",
					slog.String("candidate_id", c.ID),
					slog.Int("failures", advanced.Failures))
			}
		}
	}
	if tracked > 0 && stuck == tracked {
		logger.Warn("pipeline degraded: every active sequence exhausted its retry budget")
		return sends, conflicts, failures, true
	}
	return sends, conflicts, failures, false
}

type sendOutcome int

const (
	sendOK sendOutcome = iota
	sendConflict
	sendFailed
)

// sendStep claims the candidate via CAS where the step changes status, then
// drafts and dispatches the message and commits the outreach record. The CAS
// runs before the send so an overlapping cycle cannot double-send step 1.
func (o *Orchestrator) sendStep(ctx context.Context, role domain.Role, c domain.Candidate, rec *domain.Outreach, step int, logger *slog.Logger) (*domain.Outreach, sendOutcome) {
	now := o.now()
	if rec == nil {
		rec = &domain.Outreach{
			CandidateID: c.ID,
			Provider:    o.Gateway.Provider(),
			Step:        step,
			UpdatedAt:   now.UTC().Format(time.RFC3339),
		}
	}

	if c.Status == domain.StatusSourced {
		err := o.Repo.UpdateCandidateStatus(ctx, c.ID, domain.StatusSourced, domain.StatusContacted)
		switch {
		case err == nil:
		case errors.Is(err, repo.ErrConflict):
			logger.Info("candidate advanced elsewhere, skipping send", slog.String("candidate_id", c.ID))
			return rec, sendConflict
		default:
			logger.Error("claim candidate", slog.String("candidate_id", c.ID), slog.String("error", err.Error()))
			return rec, sendFailed
		}
	}

	requirements := ""
	if role.Requirements != nil {
		requirements = *role.Requirements
	}
	draft, err := o.Gateway.DraftOutreach(ctx, gateway.DraftOutreachRequest{
		RoleID:        role.ID,
		Requirements:  requirements,
		CandidateID:   c.ID,
		CandidateName: c.Name,
		Step:          step,
		Tone:          o.Cfg.Sequencer.Tone,
	})
	if err != nil {
		return o.recordSendFailure(ctx, *rec, now, logger), sendFailed
	}
	recipient := ""
	if c.Email != nil {
		recipient = *c.Email
	}
	if _, err := o.Gateway.SendOutreach(ctx, gateway.SendOutreachRequest{
		CandidateID: c.ID,
		Recipient:   recipient,
		Subject:     draft.Subject,
		Body:        draft.Body,
	}); err != nil {
		return o.recordSendFailure(ctx, *rec, now, logger), sendFailed
	}

	advanced := o.Seq.Advance(*rec, step, draft.Subject, draft.Body, now)
	if err := o.Repo.UpsertOutreach(ctx, advanced); err != nil {
		logger.Error("commit outreach", slog.String("candidate_id", c.ID), slog.String("error", err.Error()))
		return &advanced, sendFailed
	}
	if _, err := o.Events.Append(ctx, c.ID, domain.EventSent, events.EventPayload{
		"step":    step,
		"subject": draft.Subject,
	}); err != nil {
		logger.Warn("record sent event", slog.String("candidate_id", c.ID), slog.String("error", err.Error()))
	}
	return &advanced, sendOK
}

func (o *Orchestrator) recordSendFailure(ctx context.Context, rec domain.Outreach, now time.Time, logger *slog.Logger) *domain.Outreach {
	failed, _ := o.Seq.RecordFailure(rec, now)
	if err := o.Repo.UpsertOutreach(ctx, failed); err != nil {
		logger.Error("record send failure", slog.String("candidate_id", rec.CandidateID), slog.String("error", err.Error()))
	}
	return &failed
}
