package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("jobstore: job not found")

// Store is the persistence boundary every producer/consumer of Job state
// depends on. Only postgres.go implements it; the interface exists so
// worker/handlers tests can substitute a fake.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)

	// Transition moves a job to PROCESSING. Returns ErrNotFound if absent.
	Transition(ctx context.Context, id uuid.UUID, status Status) error

	// RecordResult stores the object-store key produced by one operation.
	RecordResult(ctx context.Context, id uuid.UUID, tag OperationTag, key string) error

	// RecordMetadata merges EXIF/dimension fields produced by the metadata operation.
	RecordMetadata(ctx context.Context, id uuid.UUID, metadata Metadata) error

	// Finalize performs the idempotent terminal transition (spec §4.7):
	// it is a no-op if the job is already terminal.
	Finalize(ctx context.Context, id uuid.UUID, status Status, jobErr *string) error

	// MarkWebhookOutcome unconditionally sets status (spec §4.7 step 8's
	// COMPLETED → COMPLETED_WEBHOOK_FAILED upgrade within the same
	// finalizer invocation that just wrote COMPLETED). Callers must only
	// invoke this immediately after their own Finalize call succeeded, so
	// no other writer can have raced them.
	MarkWebhookOutcome(ctx context.Context, id uuid.UUID, status Status, jobErr *string) error

	// SetArchiveKey records the bundle produced by the archive task.
	SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error

	// IncrementRetry bumps the retry counter, used by the broker's error handler.
	IncrementRetry(ctx context.Context, id uuid.UUID) error

	// PruneBefore deletes every terminal job (COMPLETED,
	// COMPLETED_WEBHOOK_FAILED, FAILED) created before cutoff, and returns
	// their source/result/archive keys for object-store cleanup. Jobs still
	// PENDING or PROCESSING are kept.
	PruneBefore(ctx context.Context, cutoff time.Time) ([]PrunedJob, error)
}

// PrunedJob carries the object-store keys of a job removed by PruneBefore,
// so the maintenance scheduler can also delete the underlying objects.
type PrunedJob struct {
	ID         uuid.UUID
	SourceKey  string
	ResultKeys ResultKeys
	ArchiveKey *string
}
