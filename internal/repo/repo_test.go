package repo_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"talentline/internal/db"
	"talentline/internal/domain"
	"talentline/internal/migrate"
	"talentline/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn, Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }}
}

func seedRole(t *testing.T, r repo.Repo, id string) domain.Role {
	t.Helper()
	role := domain.Role{
		ID:          id,
		TenantID:    "acme",
		Title:       "Backend Engineer",
		Status:      domain.RoleOpen,
		MinPipeline: 5,
		CreatedAt:   "2024-01-01T00:00:00Z",
		UpdatedAt:   "2024-01-01T00:00:00Z",
	}
	if err := r.InsertRole(context.Background(), role); err != nil {
		t.Fatalf("insert role: %v", err)
	}
	return role
}

func seedCandidate(t *testing.T, r repo.Repo, id, roleID, status string) domain.Candidate {
	t.Helper()
	c := domain.Candidate{
		ID:        id,
		RoleID:    roleID,
		Name:      "Jordan Reyes",
		Status:    status,
		PublicURL: "https://people.example.com/" + id,
		CreatedAt: "2024-01-01T00:00:00Z",
		UpdatedAt: "2024-01-01T00:00:00Z",
	}
	if err := r.InsertCandidate(context.Background(), c); err != nil {
		t.Fatalf("insert candidate: %v", err)
	}
	return c
}

func TestUpdateCandidateStatusCAS(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedRole(t, r, "role-1")
	seedCandidate(t, r, "cand-1", "role-1", domain.StatusSourced)

	if err := r.UpdateCandidateStatus(ctx, "cand-1", domain.StatusSourced, domain.StatusContacted); err != nil {
		t.Fatalf("sourced -> contacted: %v", err)
	}
	c, err := r.GetCandidate(ctx, "cand-1")
	if err != nil || c.Status != domain.StatusContacted {
		t.Fatalf("status = %q, err = %v", c.Status, err)
	}

	// stale expectation loses
	err = r.UpdateCandidateStatus(ctx, "cand-1", domain.StatusSourced, domain.StatusContacted)
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// unknown candidate
	err = r.UpdateCandidateStatus(ctx, "nope", domain.StatusSourced, domain.StatusContacted)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateCandidateStatusInvalidTransition(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedRole(t, r, "role-1")
	seedCandidate(t, r, "cand-1", "role-1", domain.StatusSourced)

	for _, tc := range []struct{ from, to string }{
		{domain.StatusSourced, domain.StatusInterested},  // skips contacted
		{domain.StatusSourced, domain.StatusRejected},    // rejected needs contact first
		{domain.StatusContacted, domain.StatusSourced},   // backward
		{domain.StatusHired, domain.StatusInterviewing},  // out of terminal
	} {
		err := r.UpdateCandidateStatus(ctx, "cand-1", tc.from, tc.to)
		if !errors.Is(err, repo.ErrInvalidTransition) {
			t.Fatalf("%s -> %s: expected ErrInvalidTransition, got %v", tc.from, tc.to, err)
		}
	}
	// candidate untouched
	c, _ := r.GetCandidate(ctx, "cand-1")
	if c.Status != domain.StatusSourced {
		t.Fatalf("status mutated to %q", c.Status)
	}
}

func TestConcurrentCASSingleWinner(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedRole(t, r, "role-1")
	seedCandidate(t, r, "cand-1", "role-1", domain.StatusSourced)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.UpdateCandidateStatus(ctx, "cand-1", domain.StatusSourced, domain.StatusContacted)
		}(i)
	}
	wg.Wait()
	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, repo.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want 1", wins)
	}
}

func TestFullFunnelPath(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedRole(t, r, "role-1")
	seedCandidate(t, r, "cand-1", "role-1", domain.StatusSourced)

	path := []string{
		domain.StatusContacted,
		domain.StatusInterested,
		domain.StatusScreened,
		domain.StatusInterviewing,
		domain.StatusOffered,
		domain.StatusHired,
	}
	from := domain.StatusSourced
	for _, to := range path {
		if err := r.UpdateCandidateStatus(ctx, "cand-1", from, to); err != nil {
			t.Fatalf("%s -> %s: %v", from, to, err)
		}
		from = to
	}
}

func TestInsertCandidateIfAbsent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedRole(t, r, "role-1")
	seedRole(t, r, "role-2")

	c := domain.Candidate{
		ID:        "cand-1",
		RoleID:    "role-1",
		Name:      "Jordan Reyes",
		PublicURL: "https://people.example.com/jordan-reyes",
		Status:    domain.StatusSourced,
		CreatedAt: "2024-01-01T00:00:00Z",
		UpdatedAt: "2024-01-01T00:00:00Z",
	}
	created, err := r.InsertCandidateIfAbsent(ctx, c)
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}
	// same lead resurfaced in a later cycle
	c.ID = "cand-1b"
	created, err = r.InsertCandidateIfAbsent(ctx, c)
	if err != nil || created {
		t.Fatalf("duplicate insert: created=%v err=%v", created, err)
	}
	// same URL under another role is a distinct candidate
	c.ID = "cand-2"
	c.RoleID = "role-2"
	created, err = r.InsertCandidateIfAbsent(ctx, c)
	if err != nil || !created {
		t.Fatalf("other-role insert: created=%v err=%v", created, err)
	}
}

func TestCountActiveByRole(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedRole(t, r, "role-1")
	seedCandidate(t, r, "c1", "role-1", domain.StatusSourced)
	seedCandidate(t, r, "c2", "role-1", domain.StatusInterviewing)
	seedCandidate(t, r, "c3", "role-1", domain.StatusHired)
	seedCandidate(t, r, "c4", "role-1", domain.StatusRejected)

	n, err := r.CountActiveByRole(ctx, "role-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("active = %d, want 2", n)
	}
}

func TestDeleteCandidateCascades(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedRole(t, r, "role-1")
	seedCandidate(t, r, "cand-1", "role-1", domain.StatusContacted)
	if err := r.UpsertOutreach(ctx, domain.Outreach{
		CandidateID: "cand-1",
		Provider:    "mock",
		Step:        1,
		UpdatedAt:   "2024-01-01T00:00:00Z",
	}); err != nil {
		t.Fatalf("upsert outreach: %v", err)
	}
	if err := r.DeleteCandidate(ctx, "cand-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetCandidate(ctx, "cand-1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("candidate survived: %v", err)
	}
	if _, err := r.GetOutreach(ctx, "cand-1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("outreach survived: %v", err)
	}
	if err := r.DeleteCandidate(ctx, "cand-1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestRoleUpdateAndFilters(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedRole(t, r, "role-1")
	seedRole(t, r, "role-2")

	paused := domain.RolePaused
	if err := r.UpdateRole(ctx, "role-2", repo.RoleUpdate{Status: &paused}); err != nil {
		t.Fatalf("update: %v", err)
	}
	open, err := r.ListOpenRoles(ctx)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 || open[0].ID != "role-1" {
		t.Fatalf("open roles = %+v", open)
	}
	all, err := r.ListRoles(ctx, repo.RoleFilters{TenantID: "acme"})
	if err != nil || len(all) != 2 {
		t.Fatalf("tenant filter: %d roles, err %v", len(all), err)
	}
}
