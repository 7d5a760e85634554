package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixtools/internal/jobstore"
)

type fakeStore struct {
	pruned      []jobstore.PrunedJob
	pruneCutoff time.Time
}

func (f *fakeStore) Create(ctx context.Context, job *jobstore.Job) error { return nil }
func (f *fakeStore) Get(ctx context.Context, id uuid.UUID) (*jobstore.Job, error) {
	return nil, jobstore.ErrNotFound
}
func (f *fakeStore) Transition(ctx context.Context, id uuid.UUID, status jobstore.Status) error {
	return nil
}
func (f *fakeStore) RecordResult(ctx context.Context, id uuid.UUID, tag jobstore.OperationTag, key string) error {
	return nil
}
func (f *fakeStore) RecordMetadata(ctx context.Context, id uuid.UUID, metadata jobstore.Metadata) error {
	return nil
}
func (f *fakeStore) Finalize(ctx context.Context, id uuid.UUID, status jobstore.Status, jobErr *string) error {
	return nil
}
func (f *fakeStore) MarkWebhookOutcome(ctx context.Context, id uuid.UUID, status jobstore.Status, jobErr *string) error {
	return nil
}
func (f *fakeStore) SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error { return nil }
func (f *fakeStore) IncrementRetry(ctx context.Context, id uuid.UUID) error            { return nil }
func (f *fakeStore) PruneBefore(ctx context.Context, cutoff time.Time) ([]jobstore.PrunedJob, error) {
	f.pruneCutoff = cutoff
	return f.pruned, nil
}

type fakeGateway struct {
	deleted []string
}

func (f *fakeGateway) PutRaw(ctx context.Context, key string, data []byte, contentType string) error {
	return nil
}
func (f *fakeGateway) PutProcessed(ctx context.Context, key string, data []byte, contentType string) error {
	return nil
}
func (f *fakeGateway) Get(ctx context.Context, key string) ([]byte, error) { return nil, nil }
func (f *fakeGateway) Sign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "", nil
}
func (f *fakeGateway) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}
func (f *fakeGateway) Health(ctx context.Context) error { return nil }

func TestRunSweep_DeletesArtifactsOfPrunedJobs(t *testing.T) {
	archiveKey := "archives/job-1.zip"
	store := &fakeStore{
		pruned: []jobstore.PrunedJob{
			{
				ID:         uuid.New(),
				SourceKey:  "raw/job-1/source.png",
				ResultKeys: jobstore.ResultKeys{jobstore.OpJPG: "processed/job-1/jpg.jpg"},
				ArchiveKey: &archiveKey,
			},
		},
	}
	gw := &fakeGateway{}

	s := New(store, gw, time.Hour, 24*time.Hour)
	s.runSweep()

	assert.ElementsMatch(t, []string{"raw/job-1/source.png", "processed/job-1/jpg.jpg", archiveKey}, gw.deleted)
}

func TestRunSweep_NoPrunedJobsDeletesNothing(t *testing.T) {
	store := &fakeStore{}
	gw := &fakeGateway{}

	s := New(store, gw, time.Hour, 24*time.Hour)
	s.runSweep()

	assert.Empty(t, gw.deleted)
}

func TestStartStop_DoesNotBlock(t *testing.T) {
	store := &fakeStore{}
	gw := &fakeGateway{}

	s := New(store, gw, time.Hour, 24*time.Hour)
	require.NoError(t, s.Start("@every 1h"))
	s.Stop()
}
