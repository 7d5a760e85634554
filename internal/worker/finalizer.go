package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"pixtools/internal/jobstore"
	"pixtools/internal/tasks"
	"pixtools/internal/webhook"
)

// handleFinalize is the join-point task (spec §4.7): invoked once per job,
// either directly after a Chain's single task or as the Group's aggregation
// callback after every Chord sibling has reported in.
func (s *Server) handleFinalize(ctx context.Context, t *asynq.Task) error {
	var payload tasks.FinalizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("worker: unmarshal finalize payload: %w: %w", err, asynq.SkipRetry)
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return fmt.Errorf("worker: finalize job id %q: %w: %w", payload.JobID, err, asynq.SkipRetry)
	}

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		if err == jobstore.ErrNotFound {
			slog.Warn("finalize: job not found, dropping", slog.String("job_id", payload.JobID))
			return nil
		}
		return fmt.Errorf("worker: load job for finalize: %w", err)
	}

	// Step 1: idempotent re-invocation guard.
	if job.Status.IsTerminal() {
		slog.Info("finalize: job already terminal, skipping", slog.String("job_id", payload.JobID))
		return nil
	}

	var (
		successes   []tasks.FanOutResult
		failures    []tasks.FanOutResult
		metadataOut *tasks.FanOutResult
	)
	for _, r := range payload.Results {
		r := r
		if r.Operation == jobstore.OpMetadata {
			metadataOut = &r
			continue
		}
		if r.ErrorKind != "" {
			failures = append(failures, r)
		} else {
			successes = append(successes, r)
		}
	}

	if metadataOut != nil && metadataOut.ErrorKind == "" && len(metadataOut.Metadata) > 0 {
		if err := s.store.RecordMetadata(ctx, jobID, metadataOut.Metadata); err != nil {
			return fmt.Errorf("worker: record metadata: %w", err)
		}
	}

	imageProducingRequested := 0
	for _, op := range job.Operations {
		if op.IsImageProducing() {
			imageProducingRequested++
		}
	}

	if imageProducingRequested > 0 && len(successes) == 0 {
		errDesc := describeFailures(failures)
		if err := s.store.Finalize(ctx, jobID, jobstore.StatusFailed, &errDesc); err != nil {
			return fmt.Errorf("worker: finalize failed status: %w", err)
		}
		return nil
	}

	for _, r := range successes {
		if err := s.store.RecordResult(ctx, jobID, r.Operation, r.ResultKey); err != nil {
			return fmt.Errorf("worker: record result %s: %w", r.Operation, err)
		}
	}

	var errPtr *string
	if len(failures) > 0 {
		desc := describeFailures(failures)
		errPtr = &desc
	}

	if err := s.store.Finalize(ctx, jobID, jobstore.StatusCompleted, errPtr); err != nil {
		return fmt.Errorf("worker: finalize completed status: %w", err)
	}

	if len(successes) > 0 {
		if err := s.dispatcher.EnqueueArchive(ctx, payload.JobID); err != nil {
			slog.Error("finalize: enqueue archive failed, job stays COMPLETED without archive",
				slog.String("job_id", payload.JobID), slog.String("error", err.Error()))
		}
	}

	if job.WebhookURL != nil && *job.WebhookURL != "" {
		s.deliverWebhook(ctx, jobID, *job.WebhookURL, successes, metadataOut, errPtr)
	}

	return nil
}

func describeFailures(failures []tasks.FanOutResult) string {
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Operation, f.ErrorKind))
	}
	return strings.Join(parts, "; ")
}

func (s *Server) deliverWebhook(ctx context.Context, jobID uuid.UUID, target string, successes []tasks.FanOutResult, metadataOut *tasks.FanOutResult, errPtr *string) {
	resultURLs := make(map[jobstore.OperationTag]string, len(successes))
	for _, r := range successes {
		signed, err := s.objects.Sign(ctx, r.ResultKey, s.urlExpiry)
		if err != nil {
			slog.Warn("finalize: sign result url for webhook failed", slog.String("job_id", jobID.String()), slog.String("error", err.Error()))
			continue
		}
		resultURLs[r.Operation] = signed
	}

	payload := webhook.Payload{
		JobID:      jobID.String(),
		Status:     jobstore.StatusCompleted,
		ResultURLs: resultURLs,
	}
	if errPtr != nil {
		payload.Error = *errPtr
	}
	if metadataOut != nil && metadataOut.ErrorKind == "" {
		payload.Metadata = metadataOut.Metadata
	}

	outcome, err := s.webhook.Deliver(ctx, target, payload)
	if outcome != webhook.OutcomeOk {
		if err != nil {
			slog.Warn("finalize: webhook delivery failed", slog.String("job_id", jobID.String()), slog.String("error", err.Error()))
		}
		if finalizeErr := s.store.MarkWebhookOutcome(ctx, jobID, jobstore.StatusCompletedWebhookFailed, errPtr); finalizeErr != nil {
			slog.Error("finalize: mark webhook-failed status failed", slog.String("job_id", jobID.String()), slog.String("error", finalizeErr.Error()))
		}
	}
}
