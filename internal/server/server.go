package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"talentline/internal/domain"
	"talentline/internal/gateway"
	"talentline/internal/ingest"
	"talentline/internal/orchestrator"
	"talentline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Repo      repo.Repo
	Gateway   *gateway.Gateway
	Ingest    ingest.Ingestor
	Orch      *orchestrator.Orchestrator
	Runner    *orchestrator.Runner
	BasePath  string
	Now       func() time.Time
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"conflict"`
	Message string         `json:"message" example:"candidate status changed concurrently"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Talentline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	hcfg := huma.DefaultConfig("Talentline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerRoles(group, cfg)
	registerCandidates(group, cfg)
	registerEvents(group, cfg)
	registerCycles(group, cfg)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, repo.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, repo.ErrInvalidTransition):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(), nil)
	case errors.Is(err, ingest.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, gateway.ErrTimeout), errors.Is(err, gateway.ErrUnavailable):
		return newAPIError(http.StatusBadGateway, "upstream_unavailable", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusBadGateway:
		return "upstream_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Talentline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerRoles(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-role",
		Method:        http.MethodPost,
		Path:          "/roles",
		Summary:       "Create role",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateRoleRequest `json:"body"`
	}) (*struct {
		Body RoleResponse `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if input.Body.TenantID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "tenant_id is required", nil)
		}
		role := domain.Role{
			ID:           uuid.NewString(),
			TenantID:     input.Body.TenantID,
			Title:        input.Body.Title,
			Requirements: input.Body.Requirements,
			Status:       domain.RoleOpen,
			MinPipeline:  input.Body.MinPipeline,
			CreatedAt:    cfg.now().UTC().Format(time.RFC3339),
			UpdatedAt:    cfg.now().UTC().Format(time.RFC3339),
		}
		if input.Body.ID != nil && *input.Body.ID != "" {
			role.ID = *input.Body.ID
		}
		if role.MinPipeline <= 0 {
			role.MinPipeline = 10
		}
		if err := cfg.Repo.InsertRole(ctx, role); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RoleResponse `json:"body"`
		}{Body: roleResponse(role)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-roles",
		Method:      http.MethodGet,
		Path:        "/roles",
		Summary:     "List roles",
	}, func(ctx context.Context, input *struct {
		TenantID string `query:"tenant_id"`
		Status   string `query:"status" enum:"open,paused,closed,"`
	}) (*struct {
		Body []RoleResponse `json:"body"`
	}, error) {
		items, err := cfg.Repo.ListRoles(ctx, repo.RoleFilters{TenantID: input.TenantID, Status: input.Status})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RoleResponse `json:"body"`
		}{Body: mapRoles(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-role",
		Method:      http.MethodGet,
		Path:        "/roles/{role_id}",
		Summary:     "Get role",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RoleID string `path:"role_id"`
	}) (*struct {
		Body RoleResponse `json:"body"`
	}, error) {
		role, err := cfg.Repo.GetRole(ctx, input.RoleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RoleResponse `json:"body"`
		}{Body: roleResponse(role)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-role",
		Method:      http.MethodPatch,
		Path:        "/roles/{role_id}",
		Summary:     "Update role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		RoleID string            `path:"role_id"`
		Body   UpdateRoleRequest `json:"body"`
	}) (*struct {
		Body RoleResponse `json:"body"`
	}, error) {
		if input.Body.Status != nil {
			switch *input.Body.Status {
			case domain.RoleOpen, domain.RolePaused, domain.RoleClosed:
			default:
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid role status", nil)
			}
		}
		err := cfg.Repo.UpdateRole(ctx, input.RoleID, repo.RoleUpdate{
			Title:        input.Body.Title,
			Requirements: input.Body.Requirements,
			Status:       input.Body.Status,
			MinPipeline:  input.Body.MinPipeline,
		})
		if err != nil {
			return nil, handleError(err)
		}
		role, err := cfg.Repo.GetRole(ctx, input.RoleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RoleResponse `json:"body"`
		}{Body: roleResponse(role)}, nil
	})
}

func registerCandidates(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-role-candidates",
		Method:      http.MethodGet,
		Path:        "/roles/{role_id}/candidates",
		Summary:     "List candidates for a role",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RoleID string `path:"role_id"`
	}) (*struct {
		Body []CandidateResponse `json:"body"`
	}, error) {
		if _, err := cfg.Repo.GetRole(ctx, input.RoleID); err != nil {
			return nil, handleError(err)
		}
		items, err := cfg.Repo.ListCandidatesByRole(ctx, input.RoleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CandidateResponse `json:"body"`
		}{Body: mapCandidates(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "upload-candidate",
		Method:        http.MethodPost,
		Path:          "/roles/{role_id}/candidates",
		Summary:       "Upload a candidate manually",
		Description:   "Adds a candidate in the sourced state. A supplied resume is scored immediately.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		RoleID string                 `path:"role_id"`
		Body   UploadCandidateRequest `json:"body"`
	}) (*struct {
		Body CandidateResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		role, err := cfg.Repo.GetRole(ctx, input.RoleID)
		if err != nil {
			return nil, handleError(err)
		}
		now := cfg.now().UTC().Format(time.RFC3339)
		c := domain.Candidate{
			ID:         uuid.NewString(),
			RoleID:     role.ID,
			Name:       input.Body.Name,
			Title:      input.Body.Title,
			Company:    input.Body.Company,
			Location:   input.Body.Location,
			Email:      input.Body.Email,
			ProfileURL: input.Body.ProfileURL,
			PublicURL:  input.Body.PublicURL,
			Status:     domain.StatusSourced,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := cfg.Repo.InsertCandidate(ctx, c); err != nil {
			return nil, handleError(err)
		}
		if input.Body.ResumeText != nil && *input.Body.ResumeText != "" {
			requirements := ""
			if role.Requirements != nil {
				requirements = *role.Requirements
			}
			score, err := cfg.Gateway.ScoreResume(ctx, c.ID, gateway.ScoreResumeRequest{
				RoleID:       role.ID,
				Requirements: requirements,
				ResumeText:   *input.Body.ResumeText,
			})
			if err != nil {
				return nil, handleError(err)
			}
			if err := cfg.Repo.UpdateCandidateScores(ctx, c.ID, repo.CandidateScores{
				Culture: score.CultureScore,
				Tech:    score.TechScore,
				Exp:     score.ExpScore,
				Fit:     score.FitScore,
			}); err != nil {
				return nil, handleError(err)
			}
		}
		c, err = cfg.Repo.GetCandidate(ctx, c.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CandidateResponse `json:"body"`
		}{Body: candidateResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-candidate",
		Method:      http.MethodGet,
		Path:        "/candidates/{candidate_id}",
		Summary:     "Get candidate",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CandidateID string `path:"candidate_id"`
	}) (*struct {
		Body CandidateResponse `json:"body"`
	}, error) {
		c, err := cfg.Repo.GetCandidate(ctx, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CandidateResponse `json:"body"`
		}{Body: candidateResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-candidate",
		Method:      http.MethodDelete,
		Path:        "/candidates/{candidate_id}",
		Summary:     "Delete candidate",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CandidateID string `path:"candidate_id"`
	}) (*struct{}, error) {
		if err := cfg.Repo.DeleteCandidate(ctx, input.CandidateID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-candidate",
		Method:      http.MethodPost,
		Path:        "/candidates/{candidate_id}/status",
		Summary:     "Advance candidate status",
		Description: "Compare-and-set transition. The expected current status must still hold.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		CandidateID string               `path:"candidate_id"`
		Body        AdvanceStatusRequest `json:"body"`
	}) (*struct {
		Body CandidateResponse `json:"body"`
	}, error) {
		if input.Body.From == "" || input.Body.To == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "from and to are required", nil)
		}
		if err := cfg.Repo.UpdateCandidateStatus(ctx, input.CandidateID, input.Body.From, input.Body.To); err != nil {
			return nil, handleError(err)
		}
		c, err := cfg.Repo.GetCandidate(ctx, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CandidateResponse `json:"body"`
		}{Body: candidateResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "candidate-engagement-log",
		Method:      http.MethodGet,
		Path:        "/candidates/{candidate_id}/events",
		Summary:     "Engagement log",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CandidateID string `path:"candidate_id"`
		Limit       int    `query:"limit" minimum:"0" maximum:"1000"`
	}) (*struct {
		Body []EngagementEventResponse `json:"body"`
	}, error) {
		if _, err := cfg.Repo.GetCandidate(ctx, input.CandidateID); err != nil {
			return nil, handleError(err)
		}
		items, err := cfg.Repo.ListEngagement(ctx, input.CandidateID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EngagementEventResponse `json:"body"`
		}{Body: mapEngagement(items)}, nil
	})
}

func registerEvents(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "ingest-event",
		Method:        http.MethodPost,
		Path:          "/events/{candidate_id}",
		Summary:       "Ingest engagement event",
		Description:   "Inbound notification from an outreach provider. Out-of-order and duplicate signals are absorbed.",
		DefaultStatus: http.StatusAccepted,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		CandidateID string             `path:"candidate_id"`
		Body        IngestEventRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if err := cfg.Ingest.Ingest(ctx, input.CandidateID, input.Body.Kind, input.Body.Payload); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "accepted"}}, nil
	})
}

func registerCycles(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "run-cycle",
		Method:      http.MethodPost,
		Path:        "/cycles",
		Summary:     "Run one orchestration cycle now",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body orchestrator.CycleSummary `json:"body"`
	}, error) {
		summary, err := cfg.Orch.RunCycle(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body orchestrator.CycleSummary `json:"body"`
		}{Body: summary}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "latest-cycle",
		Method:      http.MethodGet,
		Path:        "/cycles/latest",
		Summary:     "Latest cycle summary",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body orchestrator.CycleSummary `json:"body"`
	}, error) {
		if cfg.Runner == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no cycle has run", nil)
		}
		summary, ok := cfg.Runner.LastSummary()
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no cycle has run", nil)
		}
		return &struct {
			Body orchestrator.CycleSummary `json:"body"`
		}{Body: summary}, nil
	})
}
