package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/clipforge/clipforge-agent/internal/export"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/media"
)

const (
	fingerprintSize = 64 * 1024
	actionTimeout   = 2 * time.Second
)

// ErrJobNotFound is returned when a job id is unknown.
var ErrJobNotFound = errors.New("job not found")

type CatalogService interface {
	RecentVideos(ctx context.Context, limit int) ([]*Video, error)
	ForgetVideo(ctx context.Context, id string) error
	QueueExport(ctx context.Context, dir, videoPath string) (*Job, error)
	GetJobs(ctx context.Context, limit int) ([]*Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	Actions(ctx context.Context, limit int) ([]*ActionRecord, error)
}

// Service records what the session does: opened videos, export runs and a
// mirror of the action log.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

type jobKey struct{}

// WithJob tags ctx with a queued job so that the export it drives updates
// that job instead of creating a new one.
func WithJob(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobKey{}, id)
}

func jobFrom(ctx context.Context) string {
	id, _ := ctx.Value(jobKey{}).(string)
	return id
}

// VideoOpened upserts the video into the recent list.
func (s *Service) VideoOpened(ctx context.Context, h media.VideoHandle) error {
	absPath, err := filepath.Abs(h.Path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	fingerprint, err := computeFingerprint(absPath)
	if err != nil && s.logger != nil {
		s.logger.Warn("failed to fingerprint video", "path", logging.SanitizePath(absPath), "error", err)
	}

	now := s.now()
	v := &Video{
		ID:           NewID(),
		Path:         absPath,
		DisplayName:  filepath.Base(absPath),
		Fingerprint:  fingerprint,
		FPS:          h.FPS,
		FrameCount:   h.FrameCount,
		Width:        h.Width,
		Height:       h.Height,
		CreatedAt:    now,
		LastOpenedAt: now,
	}
	if err := s.repo.UpsertVideo(ctx, v); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("video recorded", "video_id", v.ID, "open_count", v.OpenCount)
	}
	return nil
}

// RecentVideos lists recently opened videos and whether they still exist.
func (s *Service) RecentVideos(ctx context.Context, limit int) ([]*Video, error) {
	videos, err := s.repo.ListVideos(ctx, limit)
	if err != nil {
		return nil, err
	}
	for _, v := range videos {
		_, err := os.Stat(v.Path)
		v.Present = err == nil
	}
	return videos, nil
}

// SaveDirSelected remembers dir as the save directory for the next start.
func (s *Service) SaveDirSelected(ctx context.Context, dir string) error {
	return s.repo.SetConfig(ctx, ConfigSaveDir, dir)
}

// LastSaveDir returns the save directory selected most recently.
func (s *Service) LastSaveDir(ctx context.Context) (string, error) {
	return s.repo.GetConfig(ctx, ConfigSaveDir)
}

func (s *Service) ForgetVideo(ctx context.Context, id string) error {
	return s.repo.DeleteVideo(ctx, id)
}

// QueueExport creates a pending export job for the Runner.
func (s *Service) QueueExport(ctx context.Context, dir, videoPath string) (*Job, error) {
	now := s.now()
	job := &Job{
		ID:        NewID(),
		Type:      JobTypeExport,
		Status:    JobStatusPending,
		VideoPath: videoPath,
		Dir:       dir,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("export job queued", "job_id", job.ID, "dir", logging.SanitizePath(dir))
	}
	return job, nil
}

// ExportStarted marks the queued job in ctx as running, or creates a
// running job for a direct save.
func (s *Service) ExportStarted(ctx context.Context, dir string, clipCount int) (string, error) {
	if id := jobFrom(ctx); id != "" {
		if err := s.repo.UpdateJobStatus(ctx, id, JobStatusRunning, ""); err != nil {
			return "", err
		}
		return id, nil
	}

	now := s.now()
	job := &Job{
		ID:        NewID(),
		Type:      JobTypeExport,
		Status:    JobStatusRunning,
		Dir:       dir,
		Total:     clipCount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// ExportFinished stores the outcome of a run.
func (s *Service) ExportFinished(ctx context.Context, id string, report export.Report, runErr error) error {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}

	job.Exported = len(report.Exported)
	job.Skipped = len(report.Skipped)
	job.Partial = len(report.Partial)
	job.Unresolved = len(report.Unresolved)
	job.Failed = len(report.Failed)
	job.Total = max(job.Total, len(report.Events))
	job.UpdatedAt = s.now()
	job.Status = JobStatusCompleted
	job.Error = ""
	if runErr != nil {
		job.Status = JobStatusFailed
		job.Error = runErr.Error()
	}

	if err := s.repo.FinishJob(ctx, job); err != nil {
		return err
	}

	if s.logger != nil {
		logging.WithJobID(s.logger, id).Info("export job finished",
			"status", job.Status,
			"exported", job.Exported,
			"skipped", job.Skipped,
			"partial", job.Partial,
		)
	}
	return nil
}

func (s *Service) GetJobs(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.ListJobs(ctx, limit)
}

func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// RecordAction mirrors one action log line into the database.
func (s *Service) RecordAction(a logging.Action) error {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	return s.repo.InsertAction(ctx, a.Message, a.Time)
}

func (s *Service) Actions(ctx context.Context, limit int) ([]*ActionRecord, error) {
	return s.repo.ListActions(ctx, limit)
}

func computeFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	lr := io.LimitReader(f, fingerprintSize)
	if _, err := io.Copy(h, lr); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
