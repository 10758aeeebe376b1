package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"talentline/internal/config"
	"talentline/internal/db"
	"talentline/internal/domain"
	"talentline/internal/events"
	"talentline/internal/gateway"
	"talentline/internal/ingest"
	"talentline/internal/migrate"
	"talentline/internal/repo"
	"talentline/internal/sequencer"
)

var now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	Repo   repo.Repo
	Ingest ingest.Ingestor
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn, Now: func() time.Time { return now }}
	cfg := config.Default()
	seq := sequencer.New(cfg.Sequencer)
	ing := ingest.New(r, seq, gateway.New(cfg.Gateway, nil), nil)
	ing.Now = func() time.Time { return now }
	return testEnv{Repo: r, Ingest: ing, Ctx: context.Background()}
}

func (e testEnv) seed(t *testing.T, status string) {
	t.Helper()
	role := domain.Role{
		ID: "role-1", TenantID: "acme", Title: "Backend Engineer",
		Status: domain.RoleOpen, MinPipeline: 5,
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
	}
	if err := e.Repo.InsertRole(e.Ctx, role); err != nil {
		t.Fatalf("insert role: %v", err)
	}
	c := domain.Candidate{
		ID: "cand-1", RoleID: "role-1", Name: "Sam Chen", Status: status,
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
	}
	if err := e.Repo.InsertCandidate(e.Ctx, c); err != nil {
		t.Fatalf("insert candidate: %v", err)
	}
}

func TestIngestOpenedAdvancesSourced(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, domain.StatusSourced)

	if err := env.Ingest.Ingest(env.Ctx, "cand-1", domain.EventOpened, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	c, _ := env.Repo.GetCandidate(env.Ctx, "cand-1")
	if c.Status != domain.StatusContacted {
		t.Fatalf("status = %q, want contacted", c.Status)
	}
	log, err := env.Repo.ListEngagement(env.Ctx, "cand-1", 10)
	if err != nil || len(log) != 1 || log[0].Kind != domain.EventOpened {
		t.Fatalf("log = %+v, err = %v", log, err)
	}
}

func TestIngestRepliedParksOutreach(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, domain.StatusContacted)
	sent := "2024-01-01T00:00:00Z"
	next := "2024-01-03T00:00:00Z"
	if err := env.Repo.UpsertOutreach(env.Ctx, domain.Outreach{
		CandidateID: "cand-1", Provider: "mock", Step: 1,
		LastSentAt: &sent, NextSendAt: &next, UpdatedAt: sent,
	}); err != nil {
		t.Fatalf("seed outreach: %v", err)
	}

	if err := env.Ingest.Ingest(env.Ctx, "cand-1", domain.EventReplied, events.EventPayload{"channel": "email"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	c, _ := env.Repo.GetCandidate(env.Ctx, "cand-1")
	if c.Status != domain.StatusInterested {
		t.Fatalf("status = %q, want interested", c.Status)
	}
	o, err := env.Repo.GetOutreach(env.Ctx, "cand-1")
	if err != nil {
		t.Fatalf("get outreach: %v", err)
	}
	if o.NextSendAt != nil {
		t.Fatalf("sequence not parked: %+v", o)
	}
}

func TestIngestRepliedBooksMeeting(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, domain.StatusContacted)

	var mu sync.Mutex
	var booked []gateway.CreateMeetingRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/create_meeting" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req gateway.CreateMeetingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		booked = append(booked, req)
		mu.Unlock()
		json.NewEncoder(w).Encode(gateway.CreateMeetingResult{URL: "https://meet.example.com/book/x"})
	}))
	defer ts.Close()
	env.Ingest.Gateway = gateway.New(config.GatewayConfig{
		Mode:           "live",
		TimeoutSeconds: 5,
		Collaborators:  map[string]string{"meeting": ts.URL},
	}, nil)

	if err := env.Ingest.Ingest(env.Ctx, "cand-1", domain.EventReplied, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(booked) != 1 || booked[0].CandidateID != "cand-1" {
		t.Fatalf("meeting calls = %+v, want one for cand-1", booked)
	}
}

func TestIngestBouncedRejects(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, domain.StatusContacted)

	if err := env.Ingest.Ingest(env.Ctx, "cand-1", domain.EventBounced, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	c, _ := env.Repo.GetCandidate(env.Ctx, "cand-1")
	if c.Status != domain.StatusRejected {
		t.Fatalf("status = %q, want rejected", c.Status)
	}
}

func TestIngestOutOfOrderSignalKeepsEvent(t *testing.T) {
	env := newTestEnv(t)
	// bounced maps to rejected, which interviewing cannot reach
	env.seed(t, domain.StatusInterviewing)

	if err := env.Ingest.Ingest(env.Ctx, "cand-1", domain.EventBounced, nil); err != nil {
		t.Fatalf("ingest should absorb invalid transition: %v", err)
	}
	c, _ := env.Repo.GetCandidate(env.Ctx, "cand-1")
	if c.Status != domain.StatusInterviewing {
		t.Fatalf("status = %q, want interviewing", c.Status)
	}
	log, _ := env.Repo.ListEngagement(env.Ctx, "cand-1", 10)
	if len(log) != 1 {
		t.Fatalf("event not recorded: %+v", log)
	}
}

func TestIngestDuplicateSignalIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, domain.StatusSourced)

	for i := 0; i < 3; i++ {
		if err := env.Ingest.Ingest(env.Ctx, "cand-1", domain.EventOpened, nil); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}
	c, _ := env.Repo.GetCandidate(env.Ctx, "cand-1")
	if c.Status != domain.StatusContacted {
		t.Fatalf("status = %q, want contacted", c.Status)
	}
	log, _ := env.Repo.ListEngagement(env.Ctx, "cand-1", 10)
	if len(log) != 3 {
		t.Fatalf("all signals should be logged, got %d", len(log))
	}
}

func TestIngestRejectsMalformedInput(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, domain.StatusSourced)

	if err := env.Ingest.Ingest(env.Ctx, "", domain.EventOpened, nil); !errors.Is(err, ingest.ErrInvalidInput) {
		t.Fatalf("empty id: %v", err)
	}
	if err := env.Ingest.Ingest(env.Ctx, "cand-1", "clicked", nil); !errors.Is(err, ingest.ErrInvalidInput) {
		t.Fatalf("unknown kind: %v", err)
	}
	if err := env.Ingest.Ingest(env.Ctx, "ghost", domain.EventOpened, nil); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown candidate: %v", err)
	}
	if log, _ := env.Repo.ListEngagement(env.Ctx, "cand-1", 10); len(log) != 0 {
		t.Fatalf("rejected signals were logged: %+v", log)
	}
}
