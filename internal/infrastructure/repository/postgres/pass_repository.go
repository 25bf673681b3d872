package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
)

// PassRepository persists one audit row per settled verification pass.
type PassRepository struct {
	db *sql.DB
}

func NewPassRepository(db *sql.DB) *PassRepository {
	return &PassRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *PassRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026090101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS verification_passes (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	query TEXT NOT NULL,
	status TEXT NOT NULL,
	sub_questions INT NOT NULL,
	rejected_count INT NOT NULL,
	rethink_count INT NOT NULL,
	issue_count INT NOT NULL,
	elapsed_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verification_passes_run_id ON verification_passes (run_id);
CREATE INDEX IF NOT EXISTS idx_verification_passes_tenant_created ON verification_passes (tenant_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure verification_passes schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *PassRepository) RecordPass(ctx context.Context, rec domain.PassRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO verification_passes (id, run_id, tenant_id, query, status, sub_questions, rejected_count, rethink_count, issue_count, elapsed_ms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, rec.ID, rec.RunID, rec.TenantID, rec.Query, string(rec.Status), rec.SubQuestions, rec.RejectedCount, rec.RethinkCount, rec.IssueCount, rec.Elapsed.Milliseconds(), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("record pass: %w", err)
	}
	return nil
}

// RecentPasses returns the latest settled passes for a tenant, newest first.
func (r *PassRepository) RecentPasses(ctx context.Context, tenantID string, limit int) ([]domain.PassRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, run_id, tenant_id, query, status, sub_questions, rejected_count, rethink_count, issue_count, elapsed_ms, created_at
FROM verification_passes
WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2
`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent passes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PassRecord, 0)
	for rows.Next() {
		var rec domain.PassRecord
		var status string
		var elapsedMS int64
		if err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.TenantID,
			&rec.Query,
			&status,
			&rec.SubQuestions,
			&rec.RejectedCount,
			&rec.RethinkCount,
			&rec.IssueCount,
			&elapsedMS,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pass record: %w", err)
		}
		rec.Status = domain.VerificationStatus(status)
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pass records: %w", err)
	}
	return out, nil
}
