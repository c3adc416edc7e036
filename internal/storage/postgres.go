package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/fmuoria/cv-inbox-screener/internal/models"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// Postgres stores records in PostgreSQL through lib/pq
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to url and verifies the connection
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("error opening db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to db: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Migrate creates the tables when they do not exist
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const createCV = `
INSERT INTO cvs (id, user_id, candidate_name, candidate_email, file_name, file_type, extracted_text, file_data, date_received, source)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

func (p *Postgres) CreateCV(ctx context.Context, cv *models.CVRecord) error {
	prepareCV(cv)

	_, err := p.db.ExecContext(ctx, createCV,
		cv.ID, cv.UserID, cv.CandidateName, cv.CandidateEmail, cv.FileName,
		cv.FileType, cv.ExtractedText, cv.FileData, cv.DateReceived, cv.Source)
	if err != nil {
		return fmt.Errorf("failed to insert cv: %w", err)
	}
	return nil
}

const listCVs = `
SELECT id, user_id, candidate_name, candidate_email, file_name, file_type, extracted_text, NULL::bytea, date_received, source
FROM cvs
WHERE user_id = $1
ORDER BY date_received DESC
`

func (p *Postgres) ListCVs(ctx context.Context, userID string) ([]models.CVRecord, error) {
	rows, err := p.db.QueryContext(ctx, listCVs, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cvs: %w", err)
	}
	defer rows.Close()

	var out []models.CVRecord
	for rows.Next() {
		cv, err := scanCV(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cv)
	}
	return out, rows.Err()
}

const getCV = `
SELECT id, user_id, candidate_name, candidate_email, file_name, file_type, extracted_text, file_data, date_received, source
FROM cvs
WHERE id = $1 AND user_id = $2
`

func (p *Postgres) GetCV(ctx context.Context, id, userID string) (*models.CVRecord, error) {
	cv, err := scanCV(p.db.QueryRowContext(ctx, getCV, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cv %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &cv, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCV(row rowScanner) (models.CVRecord, error) {
	var cv models.CVRecord
	err := row.Scan(&cv.ID, &cv.UserID, &cv.CandidateName, &cv.CandidateEmail, &cv.FileName,
		&cv.FileType, &cv.ExtractedText, &cv.FileData, &cv.DateReceived, &cv.Source)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return cv, fmt.Errorf("failed to scan cv: %w", err)
	}
	return cv, err
}

const updateExtractedText = `UPDATE cvs SET extracted_text = $3 WHERE id = $1 AND user_id = $2`

func (p *Postgres) UpdateExtractedText(ctx context.Context, id, userID, text string) error {
	res, err := p.db.ExecContext(ctx, updateExtractedText, id, userID, text)
	if err != nil {
		return fmt.Errorf("failed to update cv text: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("cv %s: %w", id, ErrNotFound)
	}
	return nil
}

func (p *Postgres) DeleteAllCVs(ctx context.Context, userID string) error {
	// Analyses are removed by ON DELETE CASCADE.
	if _, err := p.db.ExecContext(ctx, `DELETE FROM cvs WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete cvs: %w", err)
	}
	return nil
}

const createAnalysis = `
INSERT INTO analyses (id, user_id, cv_id, job_description, score, strengths, weaknesses, analyzed_at)
SELECT $1, $2, $3, $4, $5::integer, $6::text[], $7::text[], $8::timestamptz
WHERE EXISTS (SELECT 1 FROM cvs WHERE id = $3 AND user_id = $2)
`

func (p *Postgres) CreateAnalysis(ctx context.Context, a *models.AnalysisRecord) error {
	prepareAnalysis(a)

	res, err := p.db.ExecContext(ctx, createAnalysis,
		a.ID, a.UserID, a.CVID, a.JobDescription, a.Score,
		pq.Array(a.Strengths), pq.Array(a.Weaknesses), a.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("cv %s: %w", a.CVID, ErrNotFound)
	}
	return nil
}

const listAnalyses = `
SELECT id, user_id, cv_id, job_description, score, strengths, weaknesses, analyzed_at
FROM analyses
WHERE user_id = $1
ORDER BY analyzed_at DESC
`

func (p *Postgres) ListAnalyses(ctx context.Context, userID string) ([]models.AnalysisRecord, error) {
	rows, err := p.db.QueryContext(ctx, listAnalyses, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var out []models.AnalysisRecord
	for rows.Next() {
		var a models.AnalysisRecord
		if err := rows.Scan(&a.ID, &a.UserID, &a.CVID, &a.JobDescription, &a.Score,
			pq.Array(&a.Strengths), pq.Array(&a.Weaknesses), &a.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteAllAnalyses(ctx context.Context, userID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM analyses WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete analyses: %w", err)
	}
	return nil
}

const createFetchHistory = `
INSERT INTO fetch_history (id, user_id, source, cvs_count, fetched_at)
VALUES ($1, $2, $3, $4, $5)
`

func (p *Postgres) CreateFetchHistory(ctx context.Context, h *models.FetchHistory) error {
	prepareFetchHistory(h)

	if _, err := p.db.ExecContext(ctx, createFetchHistory, h.ID, h.UserID, h.Source, h.CVsCount, h.FetchedAt); err != nil {
		return fmt.Errorf("failed to insert fetch history: %w", err)
	}
	return nil
}

const listFetchHistory = `
SELECT id, user_id, source, cvs_count, fetched_at
FROM fetch_history
WHERE user_id = $1
ORDER BY fetched_at DESC
`

func (p *Postgres) ListFetchHistory(ctx context.Context, userID string) ([]models.FetchHistory, error) {
	rows, err := p.db.QueryContext(ctx, listFetchHistory, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fetch history: %w", err)
	}
	defer rows.Close()

	var out []models.FetchHistory
	for rows.Next() {
		var h models.FetchHistory
		if err := rows.Scan(&h.ID, &h.UserID, &h.Source, &h.CVsCount, &h.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fetch history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

const latestFetchBySource = `
SELECT id, user_id, source, cvs_count, fetched_at
FROM fetch_history
WHERE source = $1 AND user_id = $2
ORDER BY fetched_at DESC
LIMIT 1
`

func (p *Postgres) LatestFetchBySource(ctx context.Context, source, userID string) (*models.FetchHistory, error) {
	var h models.FetchHistory
	err := p.db.QueryRowContext(ctx, latestFetchBySource, source, userID).
		Scan(&h.ID, &h.UserID, &h.Source, &h.CVsCount, &h.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fetch history for %s: %w", source, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fetch history: %w", err)
	}
	return &h, nil
}

func (p *Postgres) DeleteUser(ctx context.Context, userID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM analyses WHERE user_id = $1`,
		`DELETE FROM cvs WHERE user_id = $1`,
		`DELETE FROM fetch_history WHERE user_id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, userID); err != nil {
			return fmt.Errorf("failed to delete user data: %w", err)
		}
	}

	return tx.Commit()
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
