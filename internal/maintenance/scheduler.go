// Package maintenance runs the periodic sweep that deletes jobs (and their
// object-store artifacts) past retention, owning deletion exclusively
// (spec §3 "Ownership & lifecycle", spec §4.10).
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"pixtools/internal/jobstore"
	"pixtools/internal/objectstore"
)

// Scheduler wraps a cron job that prunes jobs older than Retention.
type Scheduler struct {
	cron      *cron.Cron
	store     jobstore.Store
	objects   objectstore.Gateway
	retention time.Duration
}

// New builds a Scheduler. retention controls how old a job must be before
// it is eligible. interval is not used by New: how often the sweep runs is
// set by the spec passed to Start.
func New(store jobstore.Store, objects objectstore.Gateway, interval, retention time.Duration) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:      c,
		store:     store,
		objects:   objects,
		retention: retention,
	}
}

// Start schedules the sweep at the given interval and returns immediately;
// the sweep itself runs on the cron goroutine.
func (s *Scheduler) Start(intervalSpec string) error {
	_, err := s.cron.AddFunc(intervalSpec, s.runSweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for any in-flight sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.retention)
	pruned, err := s.store.PruneBefore(ctx, cutoff)
	if err != nil {
		slog.Error("maintenance: prune query failed", slog.String("error", err.Error()))
		return
	}
	if len(pruned) == 0 {
		return
	}

	slog.Info("maintenance: pruning jobs", slog.Int("count", len(pruned)), slog.Time("cutoff", cutoff))
	for _, job := range pruned {
		s.deleteArtifacts(ctx, job)
	}
}

// deleteArtifacts best-effort deletes every object a pruned job referenced.
// A delete failure here does not resurrect the job record: the row is
// already gone, so a stray object is cleaned up (or expires via the
// bucket's own lifecycle rule) rather than blocking the sweep.
func (s *Scheduler) deleteArtifacts(ctx context.Context, job jobstore.PrunedJob) {
	keys := make([]string, 0, len(job.ResultKeys)+2)
	if job.SourceKey != "" {
		keys = append(keys, job.SourceKey)
	}
	for _, key := range job.ResultKeys {
		keys = append(keys, key)
	}
	if job.ArchiveKey != nil && *job.ArchiveKey != "" {
		keys = append(keys, *job.ArchiveKey)
	}

	for _, key := range keys {
		if err := s.objects.Delete(ctx, key); err != nil {
			slog.Warn("maintenance: delete artifact failed",
				slog.String("job_id", job.ID.String()), slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}
