package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"talentline/internal/domain"
)

// Repo is the candidate ledger: the authoritative record of role and
// candidate lifecycle state. All status writes go through a compare-and-swap
// so the orchestrator and the event ingestor can race safely.
type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("status changed concurrently")
	ErrInvalidTransition = errors.New("invalid status transition")
)

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// ValidTransition reports whether from -> to is an edge of the candidate
// state machine: forward along the happy path, or to rejected from the
// contacted/interested/screened states.
func ValidTransition(from, to string) bool {
	switch from {
	case domain.StatusSourced:
		return to == domain.StatusContacted
	case domain.StatusContacted:
		return to == domain.StatusInterested || to == domain.StatusRejected
	case domain.StatusInterested:
		return to == domain.StatusScreened || to == domain.StatusRejected
	case domain.StatusScreened:
		return to == domain.StatusInterviewing || to == domain.StatusRejected
	case domain.StatusInterviewing:
		return to == domain.StatusOffered
	case domain.StatusOffered:
		return to == domain.StatusHired
	}
	return false
}

// --- roles ---

func (r Repo) InsertRole(ctx context.Context, role domain.Role) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO roles(id,tenant_id,title,requirements,status,min_pipeline,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		role.ID, role.TenantID, role.Title, nullableStringPtr(role.Requirements), role.Status, role.MinPipeline, role.CreatedAt, role.UpdatedAt)
	return err
}

func (r Repo) GetRole(ctx context.Context, id string) (domain.Role, error) {
	var role domain.Role
	var requirements sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,title,requirements,status,min_pipeline,created_at,updated_at FROM roles WHERE id=?`, id).
		Scan(&role.ID, &role.TenantID, &role.Title, &requirements, &role.Status, &role.MinPipeline, &role.CreatedAt, &role.UpdatedAt)
	if err == sql.ErrNoRows {
		return role, ErrNotFound
	}
	if requirements.Valid {
		role.Requirements = &requirements.String
	}
	return role, err
}

type RoleFilters struct {
	TenantID string
	Status   string
}

func (r Repo) ListRoles(ctx context.Context, f RoleFilters) ([]domain.Role, error) {
	var clauses []string
	var args []any
	if f.TenantID != "" {
		clauses = append(clauses, "tenant_id=?")
		args = append(args, f.TenantID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,title,requirements,status,min_pipeline,created_at,updated_at FROM roles `+where+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Role
	for rows.Next() {
		var role domain.Role
		var requirements sql.NullString
		if err := rows.Scan(&role.ID, &role.TenantID, &role.Title, &requirements, &role.Status, &role.MinPipeline, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if requirements.Valid {
			role.Requirements = &requirements.String
		}
		res = append(res, role)
	}
	return res, rows.Err()
}

// ListOpenRoles returns orchestratable roles in ascending id order. The
// ordering is part of the cycle contract: deterministic, and no role starves
// under a time budget.
func (r Repo) ListOpenRoles(ctx context.Context) ([]domain.Role, error) {
	return r.ListRoles(ctx, RoleFilters{Status: domain.RoleOpen})
}

type RoleUpdate struct {
	Title        *string
	Requirements *string
	Status       *string
	MinPipeline  *int
}

func (r Repo) UpdateRole(ctx context.Context, id string, u RoleUpdate) error {
	var fields []string
	var args []any
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.Requirements != nil {
		fields = append(fields, "requirements=?")
		args = append(args, nullable(*u.Requirements))
	}
	if u.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *u.Status)
	}
	if u.MinPipeline != nil {
		fields = append(fields, "min_pipeline=?")
		args = append(args, *u.MinPipeline)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, r.now().UTC().Format(time.RFC3339), id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE roles SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- candidates ---

func scanCandidate(scan func(dest ...any) error) (domain.Candidate, error) {
	var c domain.Candidate
	var title, company, location, email, profileURL, publicURL, companyDomain sql.NullString
	var culture, tech, exp, fit sql.NullInt64
	err := scan(&c.ID, &c.RoleID, &c.Name, &title, &company, &location, &email, &profileURL, &publicURL, &companyDomain,
		&culture, &tech, &exp, &fit, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if title.Valid {
		c.Title = title.String
	}
	if company.Valid {
		c.Company = company.String
	}
	if location.Valid {
		c.Location = location.String
	}
	if email.Valid {
		c.Email = &email.String
	}
	if profileURL.Valid {
		c.ProfileURL = &profileURL.String
	}
	if publicURL.Valid {
		c.PublicURL = publicURL.String
	}
	if companyDomain.Valid {
		c.CompanyDomain = &companyDomain.String
	}
	c.CultureScore = intPtrFromNull(culture)
	c.TechScore = intPtrFromNull(tech)
	c.ExpScore = intPtrFromNull(exp)
	c.FitScore = intPtrFromNull(fit)
	return c, nil
}

const candidateColumns = `id,role_id,name,title,company,location,email,profile_url,public_url,company_domain,culture_score,tech_score,exp_score,fit_score,status,created_at,updated_at`

func (r Repo) InsertCandidate(ctx context.Context, c domain.Candidate) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO candidates(`+candidateColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.RoleID, c.Name, nullable(c.Title), nullable(c.Company), nullable(c.Location),
		nullableStringPtr(c.Email), nullableStringPtr(c.ProfileURL), nullable(c.PublicURL), nullableStringPtr(c.CompanyDomain),
		nullableIntPtr(c.CultureScore), nullableIntPtr(c.TechScore), nullableIntPtr(c.ExpScore), nullableIntPtr(c.FitScore),
		c.Status, c.CreatedAt, c.UpdatedAt)
	return err
}

// InsertCandidateIfAbsent inserts unless a candidate with the same role and
// public URL already exists, so re-sourcing the same lead is a no-op. It
// reports whether a row was created.
func (r Repo) InsertCandidateIfAbsent(ctx context.Context, c domain.Candidate) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO candidates(`+candidateColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.RoleID, c.Name, nullable(c.Title), nullable(c.Company), nullable(c.Location),
		nullableStringPtr(c.Email), nullableStringPtr(c.ProfileURL), nullable(c.PublicURL), nullableStringPtr(c.CompanyDomain),
		nullableIntPtr(c.CultureScore), nullableIntPtr(c.TechScore), nullableIntPtr(c.ExpScore), nullableIntPtr(c.FitScore),
		c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) GetCandidate(ctx context.Context, id string) (domain.Candidate, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id=?`, id)
	return scanCandidate(row.Scan)
}

func (r Repo) ListCandidatesByRole(ctx context.Context, roleID string) ([]domain.Candidate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE role_id=? ORDER BY id ASC`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// CountActiveByRole returns the pipeline depth: candidates of the role not in
// a terminal status.
func (r Repo) CountActiveByRole(ctx context.Context, roleID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM candidates WHERE role_id=? AND status NOT IN (?,?)`,
		roleID, domain.StatusHired, domain.StatusRejected).Scan(&n)
	return n, err
}

// UpdateCandidateStatus is a compare-and-swap on the stored status. It fails
// with ErrInvalidTransition when from -> to is not an edge of the state
// machine, and with ErrConflict when the stored status no longer equals from.
func (r Repo) UpdateCandidateStatus(ctx context.Context, id, from, to string) error {
	if !ValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE candidates SET status=?, updated_at=? WHERE id=? AND status=?`,
		to, r.now().UTC().Format(time.RFC3339), id, from)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists int
	if err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM candidates WHERE id=?`, id).Scan(&exists); err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	return ErrConflict
}

type CandidateScores struct {
	Culture int
	Tech    int
	Exp     int
	Fit     int
}

func (r Repo) UpdateCandidateScores(ctx context.Context, id string, s CandidateScores) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE candidates SET culture_score=?, tech_score=?, exp_score=?, fit_score=?, updated_at=? WHERE id=?`,
		s.Culture, s.Tech, s.Exp, s.Fit, r.now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCandidate removes a candidate; outreach and engagement rows cascade.
func (r Repo) DeleteCandidate(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM candidates WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- outreach ---

func (r Repo) GetOutreach(ctx context.Context, candidateID string) (domain.Outreach, error) {
	var o domain.Outreach
	var lastSent, nextSend, subject, body sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT candidate_id,provider,step,last_sent_at,next_send_at,failures,subject,body,updated_at FROM outreach WHERE candidate_id=?`, candidateID).
		Scan(&o.CandidateID, &o.Provider, &o.Step, &lastSent, &nextSend, &o.Failures, &subject, &body, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if lastSent.Valid {
		o.LastSentAt = &lastSent.String
	}
	if nextSend.Valid {
		o.NextSendAt = &nextSend.String
	}
	if subject.Valid {
		o.Subject = &subject.String
	}
	if body.Valid {
		o.Body = &body.String
	}
	return o, nil
}

// UpsertOutreach writes the single outreach row for a candidate. Step history
// is append-only through step increments, never through new rows.
func (r Repo) UpsertOutreach(ctx context.Context, o domain.Outreach) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO outreach(candidate_id,provider,step,last_sent_at,next_send_at,failures,subject,body,updated_at) VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT(candidate_id) DO UPDATE SET provider=excluded.provider, step=excluded.step, last_sent_at=excluded.last_sent_at,
next_send_at=excluded.next_send_at, failures=excluded.failures, subject=excluded.subject, body=excluded.body, updated_at=excluded.updated_at`,
		o.CandidateID, o.Provider, o.Step, nullableStringPtr(o.LastSentAt), nullableStringPtr(o.NextSendAt),
		o.Failures, nullableStringPtr(o.Subject), nullableStringPtr(o.Body), o.UpdatedAt)
	return err
}

// --- engagement events ---

func (r Repo) ListEngagement(ctx context.Context, candidateID string, limit int) ([]domain.EngagementEvent, error) {
	query := `SELECT id,ts,candidate_id,kind,payload_json FROM engagement_events WHERE candidate_id=? ORDER BY id DESC`
	args := []any{candidateID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EngagementEvent
	for rows.Next() {
		var e domain.EngagementEvent
		if err := rows.Scan(&e.ID, &e.TS, &e.CandidateID, &e.Kind, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtrFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
