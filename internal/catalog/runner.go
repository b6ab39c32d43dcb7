package catalog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/clipforge/clipforge-agent/internal/export"
	"github.com/clipforge/clipforge-agent/internal/logging"
)

// Saver runs one save-all into dir.
type Saver interface {
	SaveAll(ctx context.Context, dir string) (export.Report, error)
}

// Runner executes queued export jobs one at a time.
type Runner struct {
	service      *Service
	repo         Repository
	saver        Saver
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
	wake         chan struct{}
}

func NewRunner(service *Service, repo Repository, saver Saver, logger *slog.Logger) *Runner {
	return &Runner{
		service:      service,
		repo:         repo,
		saver:        saver,
		logger:       logger,
		pollInterval: 2 * time.Second,
		wake:         make(chan struct{}, 1),
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
		case <-r.wake:
		}
		if !r.paused.Load() {
			r.processNextJob(ctx)
		}
	}
}

// Notify asks the runner to look for work without waiting for the next poll.
func (r *Runner) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
	r.Notify()
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) processNextJob(ctx context.Context) {
	jobs, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	job := jobs[0]
	logger := logging.WithJobID(r.logger, job.ID)
	logger.Info("processing job", "type", job.Type)

	switch job.Type {
	case JobTypeExport:
		r.processExportJob(ctx, job, logger)
	default:
		logger.Warn("unknown job type", "type", job.Type)
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "unknown job type")
	}
}

func (r *Runner) processExportJob(ctx context.Context, job *Job, logger *slog.Logger) {
	if r.saver == nil {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "no session configured")
		return
	}

	_, err := r.saver.SaveAll(WithJob(ctx, job.ID), job.Dir)
	if err == nil {
		logger.Info("export job completed")
		return
	}

	logger.Error("export job failed", "error", err)
	// the run may have been refused before it reached the journal
	current, getErr := r.repo.GetJob(context.Background(), job.ID)
	if getErr != nil || current == nil || current.Done() {
		return
	}
	r.repo.UpdateJobStatus(context.Background(), job.ID, JobStatusFailed, err.Error())
}

// GetActiveJobCount counts jobs that are queued or running.
func (r *Runner) GetActiveJobCount(ctx context.Context) int {
	jobs, err := r.repo.ListJobs(ctx, 100)
	if err != nil {
		return 0
	}
	count := 0
	for _, j := range jobs {
		if j.Status == JobStatusRunning || j.Status == JobStatusPending {
			count++
		}
	}
	return count
}
