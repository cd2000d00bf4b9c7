// Package pg persists cases in PostgreSQL. Per-case atomicity comes
// from a SELECT ... FOR UPDATE transaction around every mutation.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"kycdesk.org/internal/auth"
	"kycdesk.org/internal/cases"
	"kycdesk.org/internal/risk"
)

// Store implements cases.Store on a database/sql pool (pgx stdlib driver).
type Store struct {
	db *sql.DB
}

// New wraps the pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const caseColumns = `id, profile, status, creator_id, creator_name, created_at, updated_at,
documents, ocr_results, match_score, risk_score, risk_level, assessment, context_anomalies`

// Create inserts the case and its initial audit entries.
func (s *Store) Create(ctx context.Context, c *cases.Case) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}
	defer tx.Rollback()

	cols, err := encodeCase(c)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `insert into cases (`+caseColumns+`)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, cols.profile, c.Status, c.CreatorID, c.CreatorName, c.CreatedAt, c.UpdatedAt,
		cols.documents, cols.ocr, cols.matchScore, cols.riskScore, cols.riskLevel, cols.assessment, cols.contextAnomalies); err != nil {
		return fmt.Errorf("pg: insert case: %w", err)
	}
	if err := insertAudit(ctx, tx, c.ID, c.Audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pg: commit: %w", err)
	}
	return nil
}

// Get loads one case with its full audit trail.
func (s *Store) Get(ctx context.Context, id string) (*cases.Case, error) {
	row := s.db.QueryRowContext(ctx, `select `+caseColumns+` from cases where id = $1`, id)
	c, err := scanCase(row)
	if err != nil {
		return nil, err
	}
	c.Audit, err = s.loadAudit(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns matching cases, oldest first, trails included.
func (s *Store) List(ctx context.Context, f cases.Filter) ([]*cases.Case, error) {
	query := `select ` + caseColumns + ` from cases`
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.CreatorID != "" {
		args = append(args, f.CreatorID)
		conds = append(conds, fmt.Sprintf("creator_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: list cases: %w", err)
	}
	defer rows.Close()

	out := []*cases.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg: list cases: %w", err)
	}
	for _, c := range out {
		if c.Audit, err = s.loadAudit(ctx, s.db, c.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Update locks the case row, applies fn and persists the outcome. New
// audit entries are appended; existing ones are never touched.
func (s *Store) Update(ctx context.Context, id string, fn func(*cases.Case) error) (*cases.Case, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("pg: begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `select `+caseColumns+` from cases where id = $1 for update`, id)
	c, err := scanCase(row)
	if err != nil {
		return nil, err
	}
	if c.Audit, err = s.loadAudit(ctx, tx, id); err != nil {
		return nil, err
	}

	priorAudit := len(c.Audit)
	if err := fn(c); err != nil {
		return nil, err
	}

	cols, err := encodeCase(c)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `update cases set
profile = $2, status = $3, updated_at = $4, documents = $5, ocr_results = $6,
match_score = $7, risk_score = $8, risk_level = $9, assessment = $10, context_anomalies = $11
where id = $1`,
		c.ID, cols.profile, c.Status, c.UpdatedAt, cols.documents, cols.ocr,
		cols.matchScore, cols.riskScore, cols.riskLevel, cols.assessment, cols.contextAnomalies); err != nil {
		return nil, fmt.Errorf("pg: update case: %w", err)
	}
	if len(c.Audit) < priorAudit {
		return nil, fmt.Errorf("pg: audit trail shrank for case %s", id)
	}
	if err := insertAudit(ctx, tx, c.ID, c.Audit[priorAudit:]); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("pg: commit: %w", err)
	}
	return c, nil
}

// Delete removes the case and its audit entries.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `delete from case_audit where case_id = $1`, id); err != nil {
		return fmt.Errorf("pg: delete audit: %w", err)
	}
	res, err := tx.ExecContext(ctx, `delete from cases where id = $1`, id)
	if err != nil {
		return fmt.Errorf("pg: delete case: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pg: delete case: %w", err)
	}
	if n == 0 {
		return cases.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pg: commit: %w", err)
	}
	return nil
}

// FindIdentifier searches the extracted fields of every other case for
// the normalized identifier value.
func (s *Store) FindIdentifier(ctx context.Context, field, value, excludeCaseID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `select c.id
from cases c, jsonb_each(c.ocr_results) d
where c.id <> $1
  and upper(regexp_replace(coalesce(d.value->'fields'->>$2, ''), '[^A-Za-z0-9]', '', 'g')) = $3
limit 1`, excludeCaseID, field, value).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", cases.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("pg: find identifier: %w", err)
	}
	return id, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) loadAudit(ctx context.Context, q querier, caseID string) ([]cases.AuditEntry, error) {
	rows, err := q.QueryContext(ctx, `select entry_id, ts, user_id, user_name, role, action, comments
from case_audit where case_id = $1 order by seq`, caseID)
	if err != nil {
		return nil, fmt.Errorf("pg: load audit: %w", err)
	}
	defer rows.Close()

	out := []cases.AuditEntry{}
	for rows.Next() {
		var (
			e        cases.AuditEntry
			role     string
			action   string
			comments sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.UserID, &e.UserName, &role, &action, &comments); err != nil {
			return nil, fmt.Errorf("pg: scan audit: %w", err)
		}
		e.Role = auth.Role(role)
		e.Action = cases.Action(action)
		e.Comments = comments.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg: load audit: %w", err)
	}
	return out, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAudit(ctx context.Context, e execer, caseID string, entries []cases.AuditEntry) error {
	for _, entry := range entries {
		if _, err := e.ExecContext(ctx, `insert into case_audit
(case_id, entry_id, ts, user_id, user_name, role, action, comments)
values ($1, $2, $3, $4, $5, $6, $7, $8)`,
			caseID, entry.ID, entry.Timestamp, entry.UserID, entry.UserName,
			string(entry.Role), string(entry.Action), entry.Comments); err != nil {
			return fmt.Errorf("pg: insert audit: %w", err)
		}
	}
	return nil
}

type encodedCase struct {
	profile          []byte
	documents        []byte
	ocr              []byte
	assessment       any
	contextAnomalies any
	matchScore       any
	riskScore        any
	riskLevel        any
}

func encodeCase(c *cases.Case) (encodedCase, error) {
	var (
		enc encodedCase
		err error
	)
	if enc.profile, err = json.Marshal(c.Profile); err != nil {
		return enc, fmt.Errorf("pg: encode profile: %w", err)
	}
	if enc.documents, err = json.Marshal(c.Documents); err != nil {
		return enc, fmt.Errorf("pg: encode documents: %w", err)
	}
	if enc.ocr, err = json.Marshal(c.OCR); err != nil {
		return enc, fmt.Errorf("pg: encode ocr results: %w", err)
	}
	if c.Assessment != nil {
		b, err := json.Marshal(c.Assessment)
		if err != nil {
			return enc, fmt.Errorf("pg: encode assessment: %w", err)
		}
		enc.assessment = b
	}
	if len(c.ContextAnomalies) > 0 {
		b, err := json.Marshal(c.ContextAnomalies)
		if err != nil {
			return enc, fmt.Errorf("pg: encode context anomalies: %w", err)
		}
		enc.contextAnomalies = b
	}
	if c.MatchScore != nil {
		enc.matchScore = *c.MatchScore
	}
	if c.RiskScore != nil {
		enc.riskScore = *c.RiskScore
	}
	if c.RiskLevel != "" {
		enc.riskLevel = string(c.RiskLevel)
	}
	return enc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*cases.Case, error) {
	var (
		c                cases.Case
		profile          []byte
		documents        []byte
		ocr              []byte
		assessment       []byte
		contextAnomalies []byte
		matchScore       sql.NullFloat64
		riskScore        sql.NullInt64
		riskLevel        sql.NullString
		status           string
		createdAt        time.Time
		updatedAt        time.Time
	)
	err := row.Scan(&c.ID, &profile, &status, &c.CreatorID, &c.CreatorName, &createdAt, &updatedAt,
		&documents, &ocr, &matchScore, &riskScore, &riskLevel, &assessment, &contextAnomalies)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cases.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: scan case: %w", err)
	}

	c.Status = cases.Status(status)
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	if err := json.Unmarshal(profile, &c.Profile); err != nil {
		return nil, fmt.Errorf("pg: decode profile: %w", err)
	}
	c.Documents = map[string]cases.Document{}
	if len(documents) > 0 {
		if err := json.Unmarshal(documents, &c.Documents); err != nil {
			return nil, fmt.Errorf("pg: decode documents: %w", err)
		}
	}
	c.OCR = map[string]cases.OCRResult{}
	if len(ocr) > 0 {
		if err := json.Unmarshal(ocr, &c.OCR); err != nil {
			return nil, fmt.Errorf("pg: decode ocr results: %w", err)
		}
	}
	if len(assessment) > 0 {
		var a risk.Assessment
		if err := json.Unmarshal(assessment, &a); err != nil {
			return nil, fmt.Errorf("pg: decode assessment: %w", err)
		}
		c.Assessment = &a
	}
	if len(contextAnomalies) > 0 {
		if err := json.Unmarshal(contextAnomalies, &c.ContextAnomalies); err != nil {
			return nil, fmt.Errorf("pg: decode context anomalies: %w", err)
		}
	}
	if matchScore.Valid {
		c.MatchScore = &matchScore.Float64
	}
	if riskScore.Valid {
		v := int(riskScore.Int64)
		c.RiskScore = &v
	}
	if riskLevel.Valid {
		c.RiskLevel = risk.Level(riskLevel.String)
	}
	return &c, nil
}
