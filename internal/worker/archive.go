package worker

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"pixtools/internal/jobstore"
	"pixtools/internal/objectstore"
	"pixtools/internal/tasks"
)

// archiveFetchConcurrency bounds how many result objects are pulled from
// the gateway at once; a job has at most four image-producing operations
// (denoise plus the three conversion targets left once the same-format
// target is rejected at submission), so this is a ceiling rather than a
// real throttle.
const archiveFetchConcurrency = 4

type archiveEntry struct {
	tag  jobstore.OperationTag
	key  string
	data []byte
}

// handleArchive implements the Archive Task (spec §4.8). Failure here is
// non-fatal for the job as a whole: the job remains COMPLETED without an
// archive key, so a processing error must not retry into a permanent task
// failure that would alarm operators for something the client barely
// notices (a missing archive_url on poll).
func (s *Server) handleArchive(ctx context.Context, t *asynq.Task) error {
	var payload tasks.ArchivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("worker: unmarshal archive payload: %w: %w", err, asynq.SkipRetry)
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return fmt.Errorf("worker: archive job id %q: %w: %w", payload.JobID, err, asynq.SkipRetry)
	}

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		if err == jobstore.ErrNotFound {
			slog.Warn("archive: job not found, dropping", slog.String("job_id", payload.JobID))
			return nil
		}
		return fmt.Errorf("worker: load job for archive: %w", err)
	}

	if len(job.ResultKeys) == 0 {
		return nil
	}

	entries := s.fetchResultObjects(ctx, payload.JobID, job.ResultKeys)
	if len(entries) == 0 {
		return nil
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		entry, err := zw.Create(fmt.Sprintf("%s%s", e.tag, extOf(e.key)))
		if err != nil {
			zw.Close()
			return fmt.Errorf("worker: create zip entry for %s: %w", e.tag, err)
		}
		if _, err := entry.Write(e.data); err != nil {
			zw.Close()
			return fmt.Errorf("worker: write zip entry for %s: %w", e.tag, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("worker: close zip writer: %w", err)
	}

	archiveKey := objectstore.ArchiveKey(jobID)
	if err := s.objects.PutProcessed(ctx, archiveKey, buf.Bytes(), "application/zip"); err != nil {
		slog.Warn("archive: upload bundle failed, job remains COMPLETED without archive",
			slog.String("job_id", payload.JobID), slog.String("error", err.Error()))
		return nil
	}

	if err := s.store.SetArchiveKey(ctx, jobID, archiveKey); err != nil {
		return fmt.Errorf("worker: record archive key: %w", err)
	}
	return nil
}

// fetchResultObjects pulls every result key from the object store
// concurrently, bounded by archiveFetchConcurrency. A fetch failure drops
// that entry from the bundle rather than failing the whole task.
func (s *Server) fetchResultObjects(ctx context.Context, jobID string, resultKeys jobstore.ResultKeys) []archiveEntry {
	var (
		mu      sync.Mutex
		entries []archiveEntry
	)

	g, gCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, archiveFetchConcurrency)

	for tag, key := range resultKeys {
		tag, key := tag, key
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gCtx.Done():
				return nil
			}
			defer func() { <-sem }()

			data, err := s.objects.Get(gCtx, key)
			if err != nil {
				slog.Warn("archive: fetch result object failed, skipping entry",
					slog.String("job_id", jobID), slog.String("operation", string(tag)), slog.String("error", err.Error()))
				return nil
			}

			mu.Lock()
			entries = append(entries, archiveEntry{tag: tag, key: key, data: data})
			mu.Unlock()
			return nil
		})
	}
	g.Wait() // every goroutine above always returns nil; error case is unreachable

	return entries
}

func extOf(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '.' {
			return key[i:]
		}
	}
	return ""
}
