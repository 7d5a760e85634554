package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"pixtools/internal/database"
)

// terminalStatuses is the set PruneBefore scopes deletion to (spec §4.3:
// "terminal jobs older than the cutoff").
var terminalStatuses = []string{
	string(StatusCompleted),
	string(StatusCompletedWebhookFailed),
	string(StatusFailed),
}

// PostgresStore is the sqlx-backed Store implementation.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore wraps an established database connection.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO jobs (
			id, status, operations, params, source_key, result_keys,
			archive_key, metadata, webhook_url, error, retry_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.Status, job.Operations, job.Params, job.SourceKey, job.ResultKeys,
		job.ArchiveKey, job.Metadata, job.WebhookURL, job.Error, job.RetryCount, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("jobstore: create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	var job Job
	query := `
		SELECT id, status, operations, params, source_key, result_keys,
		       archive_key, metadata, webhook_url, error, retry_count, created_at, updated_at
		FROM jobs WHERE id = $1`

	err := s.db.GetContext(ctx, &job, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: get job: %w", err)
	}
	return &job, nil
}

func (s *PostgresStore) Transition(ctx context.Context, id uuid.UUID, status Status) error {
	query := `UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("jobstore: transition job: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *PostgresStore) RecordResult(ctx context.Context, id uuid.UUID, tag OperationTag, key string) error {
	query := `UPDATE jobs SET result_keys = result_keys || $1::jsonb, updated_at = $2 WHERE id = $3`
	patch, err := ResultKeys{tag: key}.Value()
	if err != nil {
		return fmt.Errorf("jobstore: marshal result patch: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, patch, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("jobstore: record result: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *PostgresStore) RecordMetadata(ctx context.Context, id uuid.UUID, metadata Metadata) error {
	query := `UPDATE jobs SET metadata = metadata || $1::jsonb, updated_at = $2 WHERE id = $3`
	patch, err := metadata.Value()
	if err != nil {
		return fmt.Errorf("jobstore: marshal metadata patch: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, patch, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("jobstore: record metadata: %w", err)
	}
	return checkRowsAffected(res)
}

// Finalize is the idempotent terminal transition: the WHERE clause excludes
// rows already in a terminal status, so redelivered finalize tasks are no-ops
// (spec §4.7, invariant 1).
func (s *PostgresStore) Finalize(ctx context.Context, id uuid.UUID, status Status, jobErr *string) error {
	query := `
		UPDATE jobs SET status = $1, error = $2, updated_at = $3
		WHERE id = $4 AND status NOT IN ($5, $6, $7)`

	res, err := s.db.ExecContext(ctx, query,
		status, jobErr, time.Now().UTC(), id,
		StatusCompleted, StatusCompletedWebhookFailed, StatusFailed)
	if err != nil {
		return fmt.Errorf("jobstore: finalize job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobstore: finalize rows affected: %w", err)
	}
	if rows == 0 {
		// Either the job does not exist or it was already terminal; the
		// caller (finalizer) treats both as "nothing to do".
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

func (s *PostgresStore) MarkWebhookOutcome(ctx context.Context, id uuid.UUID, status Status, jobErr *string) error {
	query := `UPDATE jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`
	res, err := s.db.ExecContext(ctx, query, status, jobErr, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("jobstore: mark webhook outcome: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *PostgresStore) SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error {
	query := `UPDATE jobs SET archive_key = $1, updated_at = $2 WHERE id = $3`
	res, err := s.db.ExecContext(ctx, query, key, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("jobstore: set archive key: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *PostgresStore) IncrementRetry(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE jobs SET retry_count = retry_count + 1, updated_at = $1 WHERE id = $2`
	res, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("jobstore: increment retry: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *PostgresStore) PruneBefore(ctx context.Context, cutoff time.Time) ([]PrunedJob, error) {
	selectQuery := `SELECT id, source_key, result_keys, archive_key FROM jobs WHERE created_at < $1 AND status = ANY($2)`
	rows, err := s.db.QueryxContext(ctx, selectQuery, cutoff, pq.Array(terminalStatuses))
	if err != nil {
		return nil, fmt.Errorf("jobstore: select prune candidates: %w", err)
	}

	var pruned []PrunedJob
	for rows.Next() {
		var p PrunedJob
		var resultKeys ResultKeys
		if err := rows.Scan(&p.ID, &p.SourceKey, &resultKeys, &p.ArchiveKey); err != nil {
			rows.Close()
			return nil, fmt.Errorf("jobstore: scan prune candidate: %w", err)
		}
		p.ResultKeys = resultKeys
		pruned = append(pruned, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobstore: iterate prune candidates: %w", err)
	}
	rows.Close()

	if len(pruned) == 0 {
		return nil, nil
	}

	deleteQuery := `DELETE FROM jobs WHERE created_at < $1 AND status = ANY($2)`
	if _, err := s.db.ExecContext(ctx, deleteQuery, cutoff, pq.Array(terminalStatuses)); err != nil {
		return nil, fmt.Errorf("jobstore: delete pruned jobs: %w", err)
	}
	return pruned, nil
}

func checkRowsAffected(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobstore: rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
