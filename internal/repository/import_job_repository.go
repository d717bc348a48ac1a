package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/fieldbook/internal/db"
	"github.com/rpattn/fieldbook/internal/domain"
)

// uniqueViolation is the Postgres error code raised when the partial unique
// index on bulk_import_jobs(user_id) rejects a second active job.
const uniqueViolation = "23505"

// importJobRepository implements ImportJobRepository over pgx.
type importJobRepository struct {
	db db.DBTX
}

// NewImportJobRepository creates a new import job repository.
func NewImportJobRepository(exec db.DBTX) ImportJobRepository {
	return &importJobRepository{db: exec}
}

func (r *importJobRepository) Create(ctx context.Context, job domain.BulkImportJob) (domain.BulkImportJob, error) {
	rowsJSON, err := json.Marshal(job.Rows)
	if err != nil {
		return domain.BulkImportJob{}, fmt.Errorf("failed to marshal job rows: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO bulk_import_jobs (id, user_id, category, data, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, user_id, category, data, created_at`,
		job.ID, job.UserID, job.Category, rowsJSON,
	)

	created, err := scanImportJob(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.BulkImportJob{}, domain.ErrActiveJobExists
		}
		return domain.BulkImportJob{}, fmt.Errorf("failed to create import job: %w", err)
	}
	return created, nil
}

func (r *importJobRepository) Get(ctx context.Context, id uuid.UUID) (domain.BulkImportJob, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, category, data, created_at
		FROM bulk_import_jobs
		WHERE id = $1`,
		id,
	)
	job, err := scanImportJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BulkImportJob{}, domain.ErrJobNotFound
	}
	return job, err
}

func (r *importJobRepository) FindActiveByUser(ctx context.Context, userID string) (domain.BulkImportJob, bool, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, category, data, created_at
		FROM bulk_import_jobs
		WHERE user_id = $1`,
		userID,
	)
	job, err := scanImportJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BulkImportJob{}, false, nil
	}
	if err != nil {
		return domain.BulkImportJob{}, false, err
	}
	return job, true, nil
}

func (r *importJobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteImportJob(ctx, r.db, id)
}

func (r *importJobRepository) DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return deleteImportJob(ctx, tx, id)
}

func deleteImportJob(ctx context.Context, exec db.DBTX, id uuid.UUID) error {
	tag, err := exec.Exec(ctx, `DELETE FROM bulk_import_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete import job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func scanImportJob(row pgx.Row) (domain.BulkImportJob, error) {
	var (
		job      domain.BulkImportJob
		rowsJSON []byte
	)
	if err := row.Scan(&job.ID, &job.UserID, &job.Category, &rowsJSON, &job.CreatedAt); err != nil {
		return domain.BulkImportJob{}, err
	}
	if err := json.Unmarshal(rowsJSON, &job.Rows); err != nil {
		return domain.BulkImportJob{}, fmt.Errorf("failed to unmarshal job rows: %w", err)
	}
	return job, nil
}
