package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meghashyamc/modsearch/db/kvdb"
	"github.com/meghashyamc/modsearch/db/searchdb"
)

var (
	ErrReindexInProgress = errors.New("reindex already in progress")
	ErrRunNotFound       = errors.New("reindex run not found")
)

const (
	jobFlush   = "flush"
	jobReindex = "reindex"
)

const (
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"
	TriggerCLI      = "cli"
)

type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run records the progress of one full reindex.
type Run struct {
	ID         string     `json:"id"`
	Trigger    string     `json:"trigger"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Scanned    int        `json:"scanned"`
	Indexed    int        `json:"indexed"`
	Skipped    int        `json:"skipped"`
	Removed    int        `json:"removed"`
	Error      string     `json:"error,omitempty"`
}

type FlushReport struct {
	Time     time.Time `json:"time"`
	Count    int       `json:"count"`
	Requeued int       `json:"requeued"`
	Error    string    `json:"error,omitempty"`
}

// ScheduleJobs registers the flush and full reindex tasks.
func (s *Service) ScheduleJobs(scheduler *Scheduler, flushInterval time.Duration, reindexInterval time.Duration) error {
	if err := scheduler.Schedule(jobFlush, flushInterval, func(ctx context.Context) {
		_, _ = s.Flush(ctx)
	}); err != nil {
		return err
	}

	return scheduler.Schedule(jobReindex, reindexInterval, func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, maxReindexTime)
		defer cancel()

		if _, err := s.Reindex(ctx, uuid.NewString(), TriggerSchedule, nil); errors.Is(err, ErrReindexInProgress) {
			s.logger.Warn("skipping scheduled reindex", "reason", err.Error())
		}
	})
}

// Flush writes everything in the creation queue to the search index. When the
// write fails the batch is put back, unless requeueing is switched off, and
// entries enqueued or removed since the drain take precedence. Documents
// removed while a successful write was in flight are deleted again.
func (s *Service) Flush(ctx context.Context) (FlushReport, error) {
	batch := s.queue.TakeBatch()
	docs := batch.Documents
	report := FlushReport{Time: time.Now().UTC(), Count: len(docs)}
	if len(docs) == 0 {
		s.queue.Release(batch)
		return report, nil
	}

	if err := s.index.Upsert(ctx, docs); err != nil {
		s.logger.Error("failed to flush creation queue", "count", len(docs), "err", err.Error())
		report.Error = err.Error()
		if s.requeueOnFailure {
			report.Requeued = s.queue.Requeue(batch)
			s.logger.Info("requeued documents after failed flush", "count", report.Requeued)
		} else {
			s.queue.Release(batch)
		}
		s.saveJobReport(jobFlush, report)
		return report, fmt.Errorf("failed to flush %d documents: %w", len(docs), err)
	}

	if removed := s.queue.Release(batch); len(removed) > 0 {
		if err := s.index.DeleteDocuments(ctx, removed); err != nil {
			s.logger.Error("could not delete documents removed during flush", "count", len(removed), "err", err.Error())
			report.Error = err.Error()
			s.saveJobReport(jobFlush, report)
			return report, fmt.Errorf("failed to delete %d documents removed during flush: %w", len(removed), err)
		}
		s.logger.Info("deleted documents removed during flush", "count", len(removed))
	}

	s.logger.Info("flushed creation queue", "count", len(docs))
	s.saveJobReport(jobFlush, report)
	return report, nil
}

// Reindex rebuilds this host's documents from the primary store and blocks
// until done. Only one reindex runs at a time.
func (s *Service) Reindex(ctx context.Context, runID string, trigger string, onProgress func(ImportStats)) (*Run, error) {
	if !s.reindexing.CompareAndSwap(false, true) {
		return nil, ErrReindexInProgress
	}
	defer s.reindexing.Store(false)

	return s.reindex(ctx, runID, trigger, onProgress)
}

// StartReindex runs a reindex in the background. Its progress can be read
// back with GetRun.
func (s *Service) StartReindex(runID string) error {
	if !s.reindexing.CompareAndSwap(false, true) {
		s.logger.Warn("request to reindex while a reindex is already in progress", "run_id", runID)
		return ErrReindexInProgress
	}

	s.saveRun(&Run{ID: runID, Trigger: TriggerAPI, Status: RunQueued, StartedAt: time.Now().UTC()})

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer s.reindexing.Store(false)

		ctx, cancel := context.WithTimeout(s.baseCtx, maxReindexTime)
		defer cancel()

		_, _ = s.reindex(ctx, runID, TriggerAPI, nil)
	}()

	return nil
}

func (s *Service) reindex(ctx context.Context, runID string, trigger string, onProgress func(ImportStats)) (*Run, error) {
	run := &Run{ID: runID, Trigger: trigger, Status: RunRunning, StartedAt: time.Now().UTC()}
	s.saveRun(run)
	s.logger.Info("starting full reindex", "run_id", runID, "trigger", trigger)

	// Listed before the snapshot so documents added while it runs are never
	// mistaken for stale ones.
	existing, err := s.index.DocumentIDs(ctx, s.mapper.HostTag())
	if err != nil {
		return s.failRun(run, fmt.Errorf("could not list indexed documents: %w", err))
	}

	seen := make(map[string]struct{}, len(existing))
	stats, err := s.importer.ImportAll(ctx, func(docs []searchdb.Document, stats ImportStats) error {
		if len(docs) > 0 {
			if err := s.index.Upsert(ctx, docs); err != nil {
				return fmt.Errorf("could not upsert snapshot batch: %w", err)
			}
		}
		for _, doc := range docs {
			seen[doc.ID] = struct{}{}
		}

		run.Scanned = stats.Scanned
		run.Skipped = stats.Skipped
		run.Indexed += len(docs)
		s.saveRun(run)
		if onProgress != nil {
			onProgress(stats)
		}
		return nil
	})
	run.Scanned = stats.Scanned
	run.Skipped = stats.Skipped
	if err != nil {
		// A partial snapshot must not remove anything.
		return s.failRun(run, err)
	}

	stale := make([]string, 0)
	for _, id := range existing {
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := s.index.DeleteDocuments(ctx, stale); err != nil {
			return s.failRun(run, fmt.Errorf("could not remove %d stale documents: %w", len(stale), err))
		}
	}
	run.Removed = len(stale)

	finished := time.Now().UTC()
	run.Status = RunSucceeded
	run.FinishedAt = &finished
	s.saveRun(run)
	s.saveJobReport(jobReindex, run)
	s.logger.Info("full reindex finished", "run_id", runID, "scanned", run.Scanned, "indexed", run.Indexed,
		"skipped", run.Skipped, "removed", run.Removed, "took", finished.Sub(run.StartedAt).String())

	return run, nil
}

func (s *Service) failRun(run *Run, err error) (*Run, error) {
	s.logger.Error("full reindex failed", "run_id", run.ID, "err", err.Error())

	finished := time.Now().UTC()
	run.Status = RunFailed
	run.FinishedAt = &finished
	run.Error = err.Error()
	s.saveRun(run)
	s.saveJobReport(jobReindex, run)

	return run, err
}

// GetRun returns the recorded state of a reindex run.
func (s *Service) GetRun(runID string) (*Run, error) {
	value, err := s.metadataStore.Get(kvdb.RunsBucket, runID)
	if errors.Is(err, kvdb.ErrNotFound) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("could not get run %s: %w", runID, err)
	}

	var run Run
	if err := json.Unmarshal([]byte(value), &run); err != nil {
		return nil, fmt.Errorf("invalid run record %s: %w", runID, err)
	}
	return &run, nil
}

func (s *Service) saveRun(run *Run) {
	data, err := json.Marshal(run)
	if err != nil {
		s.logger.Error("failed to marshal run", "run_id", run.ID, "err", err.Error())
		return
	}
	if err := s.metadataStore.Set(kvdb.RunsBucket, run.ID, string(data)); err != nil {
		s.logger.Error("failed to update run status", "run_id", run.ID, "status", string(run.Status), "err", err.Error())
	}
}

func (s *Service) saveJobReport(job string, report any) {
	data, err := json.Marshal(report)
	if err != nil {
		s.logger.Error("failed to marshal job report", "job", job, "err", err.Error())
		return
	}
	if err := s.metadataStore.Set(kvdb.JobsBucket, job, string(data)); err != nil {
		s.logger.Error("failed to save job report", "job", job, "err", err.Error())
	}
}

func (s *Service) loadJobReport(job string, report any) bool {
	value, err := s.metadataStore.Get(kvdb.JobsBucket, job)
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(value), report); err != nil {
		s.logger.Warn("ignoring unreadable job report", "job", job, "err", err.Error())
		return false
	}
	return true
}
