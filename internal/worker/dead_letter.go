package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"pixtools/internal/broker"
)

// deadLetterEnvelope is what gets pushed onto broker.DeadLetterKey: enough
// to replay or inspect a task that exhausted its retry budget without
// asynq's own (TTL-bounded) archive.
type deadLetterEnvelope struct {
	TaskType string `json:"task_type"`
	Payload  string `json:"payload"`
	Error    string `json:"error"`
}

// taskJobID is the job_id field every task payload but FanOutResult
// carries; extracting it generically lets deadLetter bump the retry
// counter without a type switch over every payload shape.
type taskJobID struct {
	JobID string `json:"job_id"`
}

// deadLetter implements spec §4.5/§7's PoisonMessage contract: once asynq's
// own retry budget is exhausted for a task, the task is pushed onto the
// dead-letter list so an operator can inspect or replay it, and the job's
// retry counter is bumped. Best-effort: a Redis or store failure here must
// not crash the worker process (spec §4.5 "no task is silently dropped",
// not "no task delivery ever fails").
func (s *Server) deadLetter(ctx context.Context, task *asynq.Task, taskErr error) {
	envelope := deadLetterEnvelope{
		TaskType: task.Type(),
		Payload:  string(task.Payload()),
		Error:    taskErr.Error(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		slog.Error("worker: marshal dead-letter envelope", slog.String("error", err.Error()))
		return
	}

	if err := s.rdb.LPush(ctx, broker.DeadLetterKey, body).Err(); err != nil {
		slog.Error("worker: push dead-letter entry failed",
			slog.String("task_type", task.Type()), slog.String("error", err.Error()))
	}

	var ref taskJobID
	if err := json.Unmarshal(task.Payload(), &ref); err != nil || ref.JobID == "" {
		return
	}
	jobID, err := uuid.Parse(ref.JobID)
	if err != nil {
		return
	}
	if err := s.store.IncrementRetry(ctx, jobID); err != nil {
		slog.Error("worker: increment retry counter failed",
			slog.String("job_id", ref.JobID), slog.String("error", err.Error()))
	}
}
