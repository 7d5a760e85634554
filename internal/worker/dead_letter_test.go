package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixtools/internal/jobstore"
	"pixtools/internal/tasks"
)

// With Redis unreachable, dead-lettering must not panic the error handler;
// it's a best-effort sink, not a delivery guarantee (spec §4.5).
func TestDeadLetter_UnreachableRedisDoesNotPanic(t *testing.T) {
	jobID := uuid.New()
	store := &finalizeStore{jobs: map[uuid.UUID]*jobstore.Job{
		jobID: {ID: jobID, Status: jobstore.StatusProcessing},
	}}
	s := &Server{
		store: store,
		rdb:   redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}),
	}

	payload, err := (tasks.ProcessOperationPayload{JobID: jobID.String(), Operation: jobstore.OpJPG}).Marshal()
	require.NoError(t, err)
	task := asynq.NewTask(tasks.TypeProcessOperation, payload)

	assert.NotPanics(t, func() {
		s.deadLetter(context.Background(), task, errors.New("permanent failure"))
	})
}

func TestDeadLetter_MissingJobIDSkipsIncrementRetry(t *testing.T) {
	store := &finalizeStore{jobs: map[uuid.UUID]*jobstore.Job{}}
	s := &Server{
		store: store,
		rdb:   redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}),
	}

	payload, err := (tasks.FanOutResult{Operation: jobstore.OpJPG, ErrorKind: "permanent"}).Marshal()
	require.NoError(t, err)
	task := asynq.NewTask(tasks.TypeFanOutResult, payload)

	assert.NotPanics(t, func() {
		s.deadLetter(context.Background(), task, errors.New("permanent failure"))
	})
	assert.Zero(t, store.retryIncrements)
}
