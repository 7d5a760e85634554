package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"pixtools/internal/broker"
	"pixtools/internal/imageops"
	"pixtools/internal/jobstore"
	"pixtools/internal/objectstore"
	"pixtools/internal/tasks"
)

// handleProcessOperation runs one operation against the job's source image
// and hands the outcome to the finalizer, either directly (chain) or via
// the asynq Group (chord). It never writes jobstore state itself — workers
// mutate result_keys/metadata only indirectly, through the values they
// return to the finalizer (spec §3 "Ownership & lifecycle").
func (s *Server) handleProcessOperation(ctx context.Context, t *asynq.Task) error {
	start := time.Now()

	var payload tasks.ProcessOperationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("worker: unmarshal process_operation payload: %w: %w", err, asynq.SkipRetry)
	}

	queue := broker.QueueFor(payload.Operation)
	s.metrics.queueDepth.WithLabelValues(queue).Inc()
	defer s.metrics.queueDepth.WithLabelValues(queue).Dec()

	result := s.runOperation(ctx, payload)

	outcome := "success"
	if result.ErrorKind != "" {
		outcome = "failure"
	}
	s.metrics.taskDuration.WithLabelValues(string(payload.Operation), outcome).Observe(time.Since(start).Seconds())
	s.metrics.tasksTotal.WithLabelValues(string(payload.Operation), outcome).Inc()

	if payload.ChordSize <= 1 {
		return s.dispatcher.EnqueueFinalize(ctx, payload.JobID, result)
	}
	return s.dispatcher.EnqueueFanOutResult(ctx, payload.JobID, result)
}

func (s *Server) runOperation(ctx context.Context, payload tasks.ProcessOperationPayload) tasks.FanOutResult {
	result := tasks.FanOutResult{Operation: payload.Operation}

	source, err := s.objects.Get(ctx, payload.SourceKey)
	if err != nil {
		result.ErrorKind = objectstore.ClassifyError(err).String()
		return result
	}

	if payload.Operation == jobstore.OpMetadata {
		meta, err := imageops.ExtractMetadata(source)
		if err != nil {
			result.ErrorKind = "permanent"
			return result
		}
		result.Metadata = meta
		return result
	}

	var (
		encoded []byte
		ext     string
	)
	if payload.Operation == jobstore.OpDenoise {
		encoded, ext, err = imageops.Denoise(source)
	} else {
		encoded, ext, err = imageops.Convert(source, payload.Operation, payload.Params)
	}
	if err != nil {
		result.ErrorKind = "permanent"
		return result
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		result.ErrorKind = "permanent"
		return result
	}

	key := objectstore.ProcessedKey(jobID, payload.Operation, ext)
	if err := s.objects.PutProcessed(ctx, key, encoded, contentTypeFor(ext)); err != nil {
		result.ErrorKind = objectstore.ClassifyError(err).String()
		return result
	}

	result.ResultKey = key
	return result
}

func contentTypeFor(ext string) string {
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
