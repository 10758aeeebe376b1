package domain

// Role statuses.
const (
	RoleOpen   = "open"
	RolePaused = "paused"
	RoleClosed = "closed"
)

// Candidate statuses. Transitions move forward along the happy path or
// jump to rejected; they never revert.
const (
	StatusSourced      = "sourced"
	StatusContacted    = "contacted"
	StatusInterested   = "interested"
	StatusScreened     = "screened"
	StatusInterviewing = "interviewing"
	StatusOffered      = "offered"
	StatusHired        = "hired"
	StatusRejected     = "rejected"
)

// Engagement event kinds.
const (
	EventSent      = "sent"
	EventOpened    = "opened"
	EventReplied   = "replied"
	EventScheduled = "scheduled"
	EventBounced   = "bounced"
)

type Role struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenant_id"`
	Title        string  `json:"title"`
	Requirements *string `json:"requirements,omitempty"`
	Status       string  `json:"status" enum:"open,paused,closed"`
	MinPipeline  int     `json:"min_pipeline"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type Candidate struct {
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
	CultureScore  *int    `json:"culture_score,omitempty" minimum:"1" maximum:"5"`
	TechScore     *int    `json:"tech_score,omitempty" minimum:"1" maximum:"5"`
	ExpScore      *int    `json:"exp_score,omitempty" minimum:"1" maximum:"5"`
	FitScore      *int    `json:"fit_score,omitempty" minimum:"0" maximum:"100"`
	Status        string  `json:"status" enum:"sourced,contacted,interested,screened,interviewing,offered,hired,rejected"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

// Terminal reports whether no further orchestration applies to the status.
func Terminal(status string) bool {
	return status == StatusHired || status == StatusRejected
}

// Contactable reports whether outreach may still be sent for the status.
func Contactable(status string) bool {
	switch status {
	case StatusSourced, StatusContacted, StatusInterested, StatusScreened:
		return true
	}
	return false
}

// ValidEventKind reports whether kind is one of the engagement event kinds.
func ValidEventKind(kind string) bool {
	switch kind {
	case EventSent, EventOpened, EventReplied, EventScheduled, EventBounced:
		return true
	}
	return false
}

type Outreach struct {
	CandidateID string  `json:"candidate_id"`
	Provider    string  `json:"provider"`
	Step        int     `json:"step"`
	LastSentAt  *string `json:"last_sent_at,omitempty" format:"date-time"`
	NextSendAt  *string `json:"next_send_at,omitempty" format:"date-time"`
	Failures    int     `json:"failures"`
	Subject     *string `json:"subject,omitempty"`
	Body        *string `json:"body,omitempty"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type EngagementEvent struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	CandidateID string `json:"candidate_id"`
	Kind        string `json:"kind" enum:"sent,opened,replied,scheduled,bounced"`
	Payload     string `json:"payload_json"`
}

// Lead is a profile returned by the sourcing collaborator, optionally
// augmented by enrichment.
type Lead struct {
	Name          string  `json:"name"`
	Title         string  `json:"title"`
	Company       string  `json:"company"`
	Location      string  `json:"location"`
	PublicURL     string  `json:"public_url"`
	Email         *string `json:"email,omitempty"`
	ProfileURL    *string `json:"profile_url,omitempty"`
	CompanyDomain *string `json:"company_domain,omitempty"`
}
