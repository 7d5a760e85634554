package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixtools/internal/database"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewPostgresStore(&database.DB{DB: sqlxDB}), mock
}

func TestPostgresStore_Create(t *testing.T) {
	store, mock := newMockStore(t)
	job := NewJob("raw/abc.jpg", OperationList{OpJPG, OpMetadata}, ParamsByTag{}, nil)

	mock.ExpectExec("INSERT INTO jobs").WithArgs(
		job.ID, job.Status, job.Operations, job.Params, job.SourceKey, job.ResultKeys,
		job.ArchiveKey, job.Metadata, job.WebhookURL, job.Error, job.RetryCount, job.CreatedAt, job.UpdatedAt,
	).WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Create(context.Background(), job)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, status, operations").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := store.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_Finalize_NoopWhenAlreadyTerminal(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE jobs SET status").
		WithArgs(StatusFailed, (*string)(nil), sqlmock.AnyArg(), id,
			StatusCompleted, StatusCompletedWebhookFailed, StatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{
		"id", "status", "operations", "params", "source_key", "result_keys",
		"archive_key", "metadata", "webhook_url", "error", "retry_count", "created_at", "updated_at",
	}).AddRow(id, StatusCompleted, []byte("[]"), []byte("{}"), "raw/x", []byte("{}"),
		nil, []byte("{}"), nil, nil, 0, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, status, operations").WithArgs(id).WillReturnRows(rows)

	err := store.Finalize(context.Background(), id, StatusFailed, nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordResult(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE jobs SET result_keys").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.RecordResult(context.Background(), id, OpJPG, "processed/abc-jpg.jpg")
	assert.NoError(t, err)
}

func TestPostgresStore_PruneBefore(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Now().Add(-24 * time.Hour)
	id := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "source_key", "result_keys", "archive_key"}).
		AddRow(id, "raw/x.jpg", []byte(`{"jpg":"processed/x.jpg"}`), nil)
	mock.ExpectQuery("SELECT id, source_key, result_keys, archive_key").
		WithArgs(cutoff, pq.Array(terminalStatuses)).WillReturnRows(rows)
	mock.ExpectExec("DELETE FROM jobs").
		WithArgs(cutoff, pq.Array(terminalStatuses)).WillReturnResult(sqlmock.NewResult(0, 1))

	pruned, err := store.PruneBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	assert.Equal(t, "raw/x.jpg", pruned[0].SourceKey)
	assert.Equal(t, "processed/x.jpg", pruned[0].ResultKeys[OpJPG])
}
