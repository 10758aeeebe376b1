package gateway

import (
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	"talentline/internal/domain"
)

// invokeMock returns deterministic canned results without touching the
// network. Results are seeded by the identifiers in the request; searches
// page forward through a per-role ranked list, so a fresh gateway replays
// the same sequence of results call for call.
func (g *Gateway) invokeMock(kind Kind, req, res any) error {
	switch kind {
	case KindSearchLeads:
		in := req.(SearchLeadsRequest)
		out := res.(*SearchLeadsResult)
		out.Leads = mockLeads(in.RoleID, in.Count, g.searchOffset(in.RoleID, in.Count))
	case KindEnrichLeads:
		in := req.(EnrichLeadsRequest)
		out := res.(*EnrichLeadsResult)
		out.Leads = make([]domain.Lead, len(in.Leads))
		for i, lead := range in.Leads {
			enriched := lead
			email := mockEmail(lead)
			profile := "https://network.example.com/in/" + mockSlug(lead.PublicURL)
			dom := mockDomain(lead.Company)
			enriched.Email = &email
			enriched.ProfileURL = &profile
			enriched.CompanyDomain = &dom
			out.Leads[i] = enriched
		}
	case KindScoreResume:
		in := req.(ScoreResumeRequest)
		out := res.(*ScoreResumeResult)
		seed := seedFor(in.RoleID + "|" + in.ResumeText)
		out.CultureScore = 1 + int(seed%5)
		out.TechScore = 1 + int((seed/5)%5)
		out.ExpScore = 1 + int((seed/25)%5)
		out.FitScore = (out.CultureScore + out.TechScore + out.ExpScore) * 100 / 15
		out.Rationale = []string{
			"keyword overlap with role requirements",
			"tenure consistent with target level",
		}
	case KindDraftOutreach:
		in := req.(DraftOutreachRequest)
		out := res.(*DraftOutreachResult)
		out.Subject = fmt.Sprintf("Quick question, %s (touch %d)", in.CandidateName, in.Step)
		out.Body = fmt.Sprintf("Hi %s, I came across your profile and thought of a role that could fit. Worth a short chat? (tone: %s)", in.CandidateName, in.Tone)
	case KindSendOutreach:
		in := req.(SendOutreachRequest)
		out := res.(*SendOutreachResult)
		out.MessageID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("msg|"+in.CandidateID+"|"+in.Subject)).String()
	case KindCreateMeeting:
		in := req.(CreateMeetingRequest)
		out := res.(*CreateMeetingResult)
		out.URL = "https://meet.example.com/book/" + mockSlug(in.CandidateID)
	default:
		return fmt.Errorf("%w: unknown action kind %s", ErrUnavailable, kind)
	}
	return nil
}

var mockNames = []string{
	"Alex Rivera", "Sam Chen", "Jordan Patel", "Morgan Lee", "Casey Novak",
	"Riley Okafor", "Drew Tanaka", "Quinn Adebayo", "Avery Lindqvist", "Jules Moreau",
}

var mockCompanies = []string{
	"Northwind Labs", "Acme Analytics", "Bluepeak Systems", "Helio Works", "Quarry Software",
}

var mockLocations = []string{"Berlin", "Lisbon", "Austin", "Toronto", "Amsterdam"}

// searchOffset advances the per-role search cursor so successive searches
// continue past the profiles already returned, the way a paged search does.
func (g *Gateway) searchOffset(roleID string, count int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	off := g.searchPos[roleID]
	g.searchPos[roleID] = off + count
	return off
}

func mockLeads(roleID string, count, offset int) []domain.Lead {
	if count <= 0 {
		return nil
	}
	leads := make([]domain.Lead, count)
	base := seedFor(roleID)
	for i := range leads {
		pos := offset + i
		n := (base + uint64(pos))
		leads[i] = domain.Lead{
			Name:      mockNames[n%uint64(len(mockNames))],
			Title:     "Senior Engineer",
			Company:   mockCompanies[n%uint64(len(mockCompanies))],
			Location:  mockLocations[n%uint64(len(mockLocations))],
			PublicURL: fmt.Sprintf("https://people.example.com/%s/%d", mockSlug(roleID), pos+1),
		}
	}
	return leads
}

func mockEmail(lead domain.Lead) string {
	return fmt.Sprintf("lead-%s@%s", mockSlug(lead.PublicURL)[:8], mockDomain(lead.Company))
}

func mockDomain(company string) string {
	return mockSlug(company) + ".example.com"
}

func mockSlug(in string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(in)).String()[:12]
}

func seedFor(in string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(in))
	return h.Sum64()
}
