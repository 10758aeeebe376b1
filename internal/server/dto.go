package server

import (
	"encoding/json"

	"talentline/internal/domain"
	"talentline/internal/events"
)

// Request payloads

type CreateRoleRequest struct {
	ID           *string `json:"id,omitempty"`
	TenantID     string  `json:"tenant_id"`
	Title        string  `json:"title"`
	Requirements *string `json:"requirements,omitempty"`
	MinPipeline  int     `json:"min_pipeline,omitempty" minimum:"0"`
}

type UpdateRoleRequest struct {
	Title        *string `json:"title,omitempty"`
	Requirements *string `json:"requirements,omitempty"`
	Status       *string `json:"status,omitempty" enum:"open,paused,closed"`
	MinPipeline  *int    `json:"min_pipeline,omitempty" minimum:"0"`
}

type UploadCandidateRequest struct {
	Name       string  `json:"name"`
	Title      string  `json:"title,omitempty"`
	Company    string  `json:"company,omitempty"`
	Location   string  `json:"location,omitempty"`
	Email      *string `json:"email,omitempty"`
	ProfileURL *string `json:"profile_url,omitempty"`
	PublicURL  string  `json:"public_url,omitempty"`
	ResumeText *string `json:"resume_text,omitempty"`
}

type AdvanceStatusRequest struct {
	From string `json:"from" enum:"sourced,contacted,interested,screened,interviewing,offered"`
	To   string `json:"to" enum:"contacted,interested,screened,interviewing,offered,hired,rejected"`
}

type IngestEventRequest struct {
	Kind    string              `json:"kind" enum:"sent,opened,replied,scheduled,bounced"`
	Payload events.EventPayload `json:"payload,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// Response payloads

type RoleResponse struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenant_id"`
	Title        string  `json:"title"`
	Requirements *string `json:"requirements,omitempty"`
	Status       string  `json:"status" enum:"open,paused,closed"`
	MinPipeline  int     `json:"min_pipeline"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type CandidateResponse struct {
	ID            string  `json:"id"`
	RoleID        string  `json:"role_id"`
	Name          string  `json:"name"`
	Title         string  `json:"title,omitempty"`
	Company       string  `json:"company,omitempty"`
	Location      string  `json:"location,omitempty"`
	Email         *string `json:"email,omitempty"`
	ProfileURL    *string `json:"profile_url,omitempty"`
	PublicURL     string  `json:"public_url,omitempty"`
	CompanyDomain *string `json:"company_domain,omitempty"`
	CultureScore  *int    `json:"culture_score,omitempty"`
	TechScore     *int    `json:"tech_score,omitempty"`
	ExpScore      *int    `json:"exp_score,omitempty"`
	FitScore      *int    `json:"fit_score,omitempty"`
	Status        string  `json:"status" enum:"sourced,contacted,interested,screened,interviewing,offered,hired,rejected"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type EngagementEventResponse struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts" format:"date-time"`
	CandidateID string         `json:"candidate_id"`
	Kind        string         `json:"kind" enum:"sent,opened,replied,scheduled,bounced"`
	Payload     map[string]any `json:"payload,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

func roleResponse(r domain.Role) RoleResponse {
	return RoleResponse{
		ID:           r.ID,
		TenantID:     r.TenantID,
		Title:        r.Title,
		Requirements: r.Requirements,
		Status:       r.Status,
		MinPipeline:  r.MinPipeline,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func mapRoles(items []domain.Role) []RoleResponse {
	out := make([]RoleResponse, 0, len(items))
	for _, r := range items {
		out = append(out, roleResponse(r))
	}
	return out
}

func candidateResponse(c domain.Candidate) CandidateResponse {
	return CandidateResponse{
		ID:            c.ID,
		RoleID:        c.RoleID,
		Name:          c.Name,
		Title:         c.Title,
		Company:       c.Company,
		Location:      c.Location,
		Email:         c.Email,
		ProfileURL:    c.ProfileURL,
		PublicURL:     c.PublicURL,
		CompanyDomain: c.CompanyDomain,
		CultureScore:  c.CultureScore,
		TechScore:     c.TechScore,
		ExpScore:      c.ExpScore,
		FitScore:      c.FitScore,
		Status:        c.Status,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func mapCandidates(items []domain.Candidate) []CandidateResponse {
	out := make([]CandidateResponse, 0, len(items))
	for _, c := range items {
		out = append(out, candidateResponse(c))
	}
	return out
}

func engagementResponse(e domain.EngagementEvent) EngagementEventResponse {
	var payload map[string]any
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &payload)
	}
	return EngagementEventResponse{
		ID:          e.ID,
		TS:          e.TS,
		CandidateID: e.CandidateID,
		Kind:        e.Kind,
		Payload:     payload,
	}
}

func mapEngagement(items []domain.EngagementEvent) []EngagementEventResponse {
	out := make([]EngagementEventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, engagementResponse(e))
	}
	return out
}
