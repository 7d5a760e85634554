// Package broker implements the Broker Dispatcher component (spec §4.5):
// publishing task messages onto the standard/ml_inference queues and
// wiring the Chord plan's fan-out/join onto asynq's Group+Aggregator
// feature.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"pixtools/internal/dag"
	"pixtools/internal/tasks"
)

// Dispatcher publishes a Plan's steps to the broker.
type Dispatcher interface {
	Dispatch(ctx context.Context, plan dag.Plan, sourceKey, correlationID string) error
}

// AsynqDispatcher is the asynq-backed Dispatcher.
type AsynqDispatcher struct {
	client             *asynq.Client
	standardTaskTimeout time.Duration
	mlTaskTimeout       time.Duration
}

// NewAsynqDispatcher wraps an asynq client constructed from redis connection
// options shared with the worker server.
func NewAsynqDispatcher(client *asynq.Client, standardTimeout, mlTimeout time.Duration) *AsynqDispatcher {
	return &AsynqDispatcher{client: client, standardTaskTimeout: standardTimeout, mlTaskTimeout: mlTimeout}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, plan dag.Plan, sourceKey, correlationID string) error {
	switch plan.Kind {
	case dag.KindChain:
		return d.dispatchChain(ctx, plan, sourceKey, correlationID)
	case dag.KindChord:
		return d.dispatchChord(ctx, plan, sourceKey, correlationID)
	default:
		return fmt.Errorf("broker: unknown plan kind %d", plan.Kind)
	}
}

func (d *AsynqDispatcher) dispatchChain(ctx context.Context, plan dag.Plan, sourceKey, correlationID string) error {
	return d.enqueueStep(ctx, plan.JobID, plan.Chain, sourceKey, correlationID, 1)
}

// dispatchChord enqueues every sibling step as an ordinary process_operation
// task. Each sibling's worker handler, on completion, enqueues its own
// FanOutResult onto a shared asynq Group keyed by job ID (see
// EnqueueFanOutResult); the worker process's GroupAggregator (aggregator.go)
// collects those lightweight results and synthesizes the finalize task once
// the group closes.
func (d *AsynqDispatcher) dispatchChord(ctx context.Context, plan dag.Plan, sourceKey, correlationID string) error {
	for _, step := range plan.Chord {
		if err := d.enqueueStep(ctx, plan.JobID, step, sourceKey, correlationID, len(plan.Chord)); err != nil {
			return err
		}
	}
	return nil
}

func (d *AsynqDispatcher) enqueueStep(ctx context.Context, jobID string, step dag.Step, sourceKey, correlationID string, chordSize int) error {
	payload := tasks.ProcessOperationPayload{
		JobID:         jobID,
		Operation:     step.Operation,
		SourceKey:     sourceKey,
		Params:        step.Params,
		CorrelationID: correlationID,
		DispatchedAt:  time.Now().UTC().Format(time.RFC3339),
		ChordSize:     chordSize,
	}
	body, err := payload.Marshal()
	if err != nil {
		return fmt.Errorf("broker: marshal task payload: %w", err)
	}

	task := asynq.NewTask(tasks.TypeProcessOperation, body)
	queue := QueueFor(step.Operation)
	timeout := d.standardTaskTimeout
	if queue == QueueML {
		timeout = d.mlTaskTimeout
	}

	opts := []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(MaxRetry),
		asynq.Timeout(timeout),
		asynq.TaskID(fmt.Sprintf("%s:%s", jobID, step.Operation)),
	}

	if _, err := d.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("broker: enqueue %s for job %s: %w", step.Operation, jobID, err)
	}
	return nil
}

// EnqueueFinalize enqueues the join-point task directly, used by a Chain's
// single task handler once it completes (no Group/Aggregator involved). The
// singleton result is carried inline since there is no Group to aggregate.
func (d *AsynqDispatcher) EnqueueFinalize(ctx context.Context, jobID string, result tasks.FanOutResult) error {
	body, err := (tasks.FinalizePayload{JobID: jobID, Results: []tasks.FanOutResult{result}}).Marshal()
	if err != nil {
		return fmt.Errorf("broker: marshal finalize payload: %w", err)
	}
	task := asynq.NewTask(tasks.TypeFinalize, body)
	_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(QueueStandard), asynq.MaxRetry(MaxRetry))
	if err != nil {
		return fmt.Errorf("broker: enqueue finalize for job %s: %w", jobID, err)
	}
	return nil
}

// EnqueueFanOutResult is called by a chord sibling's worker handler on
// completion. The result joins the asynq Group keyed by jobID; once the
// group closes, GroupAggregator (aggregator.go) synthesizes the finalize
// task from every sibling's contribution.
func (d *AsynqDispatcher) EnqueueFanOutResult(ctx context.Context, jobID string, result tasks.FanOutResult) error {
	body, err := result.Marshal()
	if err != nil {
		return fmt.Errorf("broker: marshal fan-out result: %w", err)
	}
	task := asynq.NewTask(tasks.TypeFanOutResult, body)
	_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(QueueStandard), asynq.Group(jobID))
	if err != nil {
		return fmt.Errorf("broker: enqueue fan-out result for job %s: %w", jobID, err)
	}
	return nil
}

// EnqueueArchive enqueues the archive task after a successful finalize.
func (d *AsynqDispatcher) EnqueueArchive(ctx context.Context, jobID string) error {
	body, err := (tasks.ArchivePayload{JobID: jobID}).Marshal()
	if err != nil {
		return fmt.Errorf("broker: marshal archive payload: %w", err)
	}
	task := asynq.NewTask(tasks.TypeArchive, body)
	_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(QueueStandard), asynq.MaxRetry(MaxRetry))
	if err != nil {
		return fmt.Errorf("broker: enqueue archive for job %s: %w", jobID, err)
	}
	return nil
}
