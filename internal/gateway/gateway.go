// Package gateway is the single boundary to every external collaborator:
// lead search, enrichment, resume scoring, outreach drafting and delivery,
// and meeting creation. Mock and live modes produce structurally identical
// results so callers never branch on mode.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"talentline/internal/config"
	"talentline/internal/domain"
	"talentline/internal/metrics"
)

// Kind identifies a collaborator action.
type Kind string

const (
	KindSearchLeads   Kind = "search_leads"
	KindEnrichLeads   Kind = "enrich_leads"
	KindScoreResume   Kind = "score_resume"
	KindDraftOutreach Kind = "draft_outreach"
	KindSendOutreach  Kind = "send_outreach"
	KindCreateMeeting Kind = "create_meeting"
)

var (
	ErrTimeout     = errors.New("collaborator timed out")
	ErrUnavailable = errors.New("collaborator failed")
)

// capability maps an action kind to the collaborator service that serves it.
func (k Kind) capability() string {
	switch k {
	case KindSearchLeads:
		return "search"
	case KindEnrichLeads:
		return "enrich"
	case KindScoreResume:
		return "score"
	case KindDraftOutreach:
		return "draft"
	case KindSendOutreach:
		return "send"
	case KindCreateMeeting:
		return "meeting"
	}
	return ""
}

// Request payloads, one shape per action kind.

type SearchLeadsRequest struct {
	RoleID       string `json:"role_id"`
	Requirements string `json:"requirements,omitempty"`
	Count        int    `json:"count"`
}

type EnrichLeadsRequest struct {
	Leads []domain.Lead `json:"leads"`
}

type ScoreResumeRequest struct {
	RoleID       string `json:"role_id"`
	Requirements string `json:"requirements,omitempty"`
	ResumeText   string `json:"resume_text"`
}

type DraftOutreachRequest struct {
	RoleID        string `json:"role_id"`
	Requirements  string `json:"requirements,omitempty"`
	CandidateID   string `json:"candidate_id"`
	CandidateName string `json:"candidate_name"`
	Step          int    `json:"step"`
	Tone          string `json:"tone"`
}

type SendOutreachRequest struct {
	CandidateID string `json:"candidate_id"`
	Recipient   string `json:"recipient"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

type CreateMeetingRequest struct {
	CandidateID string `json:"candidate_id"`
}

// Results.

type SearchLeadsResult struct {
	Leads []domain.Lead `json:"leads"`
}

type EnrichLeadsResult struct {
	Leads []domain.Lead `json:"leads"`
}

type ScoreResumeResult struct {
	CultureScore int      `json:"culture_score"`
	TechScore    int      `json:"tech_score"`
	ExpScore     int      `json:"exp_score"`
	FitScore     int      `json:"fit_score"`
	Rationale    []string `json:"rationale"`
}

type DraftOutreachResult struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type SendOutreachResult struct {
	MessageID string `json:"message_id"`
}

type CreateMeetingResult struct {
	URL string `json:"url"`
}

// Gateway dispatches actions either to canned deterministic results (mock
// mode) or to collaborator HTTP services (live mode). Mode is fixed at
// construction; tests may hold gateways in both modes in one process.
type Gateway struct {
	cfg    config.GatewayConfig
	client *http.Client
	logger *slog.Logger

	mu        sync.Mutex
	searchPos map[string]int
}

func New(cfg config.GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout()},
		logger:    logger,
		searchPos: map[string]int{},
	}
}

// Provider returns the configured outreach provider identifier.
func (g *Gateway) Provider() string {
	if g.cfg.Provider == "" {
		return "default"
	}
	return g.cfg.Provider
}

func (g *Gateway) SearchLeads(ctx context.Context, req SearchLeadsRequest) (SearchLeadsResult, error) {
	var res SearchLeadsResult
	err := g.invoke(ctx, KindSearchLeads, req.RoleID, "", req, &res)
	return res, err
}

func (g *Gateway) EnrichLeads(ctx context.Context, roleID string, req EnrichLeadsRequest) (EnrichLeadsResult, error) {
	var res EnrichLeadsResult
	err := g.invoke(ctx, KindEnrichLeads, roleID, "", req, &res)
	return res, err
}

func (g *Gateway) ScoreResume(ctx context.Context, candidateID string, req ScoreResumeRequest) (ScoreResumeResult, error) {
	var res ScoreResumeResult
	err := g.invoke(ctx, KindScoreResume, req.RoleID, candidateID, req, &res)
	return res, err
}

func (g *Gateway) DraftOutreach(ctx context.Context, req DraftOutreachRequest) (DraftOutreachResult, error) {
	var res DraftOutreachResult
	err := g.invoke(ctx, KindDraftOutreach, req.RoleID, req.CandidateID, req, &res)
	return res, err
}

func (g *Gateway) SendOutreach(ctx context.Context, req SendOutreachRequest) (SendOutreachResult, error) {
	var res SendOutreachResult
	err := g.invoke(ctx, KindSendOutreach, "", req.CandidateID, req, &res)
	return res, err
}

func (g *Gateway) CreateMeeting(ctx context.Context, req CreateMeetingRequest) (CreateMeetingResult, error) {
	var res CreateMeetingResult
	err := g.invoke(ctx, KindCreateMeeting, "", req.CandidateID, req, &res)
	return res, err
}

// invoke funnels every action through one path so timeout handling and the
// observability record are uniform across kinds and modes.
func (g *Gateway) invoke(ctx context.Context, kind Kind, roleID, candidateID string, req, res any) error {
	start := time.Now()
	var err error
	if g.cfg.Mode == "mock" {
		err = g.invokeMock(kind, req, res)
	} else {
		err = g.invokeLive(ctx, kind, req, res)
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, ErrTimeout) {
			outcome = "timeout"
		}
	}
	duration := time.Since(start)
	metrics.ObserveAction(string(kind), outcome, duration)
	attrs := []any{
		slog.String("kind", string(kind)),
		slog.String("mode", g.cfg.Mode),
		slog.Duration("duration", duration),
		slog.String("outcome", outcome),
	}
	if roleID != "" {
		attrs = append(attrs, slog.String("role_id", roleID))
	}
	if candidateID != "" {
		attrs = append(attrs, slog.String("candidate_id", candidateID))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		g.logger.Warn("gateway invoke", attrs...)
		return err
	}
	g.logger.Info("gateway invoke", attrs...)
	return nil
}

func (g *Gateway) invokeLive(ctx context.Context, kind Kind, req, res any) error {
	base := g.cfg.Collaborators[kind.capability()]
	if base == "" {
		return fmt.Errorf("%w: no collaborator configured for %s", ErrUnavailable, kind)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", kind, err)
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout())
	defer cancel()
	url := strings.TrimRight(base, "/") + "/" + string(kind)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpRes, err := g.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %s", ErrTimeout, kind)
		}
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, kind, err)
	}
	defer httpRes.Body.Close()
	if httpRes.StatusCode < 200 || httpRes.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(httpRes.Body, 4096))
		return fmt.Errorf("%w: %s: status %d: %s", ErrUnavailable, kind, httpRes.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(httpRes.Body).Decode(res); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", ErrUnavailable, kind, err)
	}
	return nil
}
