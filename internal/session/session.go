// Package session ties the frame source, playback scheduler, clip store and
// exporter into the command/query surface used by the HTTP API and the tray.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/clipforge/clipforge-agent/internal/clips"
	"github.com/clipforge/clipforge-agent/internal/export"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/playback"
)

const defaultPreviewQuality = 80

// Journal is told about session milestones that outlive the process, such
// as recently opened videos and export runs.
type Journal interface {
	VideoOpened(ctx context.Context, h media.VideoHandle) error
	SaveDirSelected(ctx context.Context, dir string) error
	ExportStarted(ctx context.Context, dir string, clipCount int) (string, error)
	ExportFinished(ctx context.Context, id string, report export.Report, runErr error) error
}

type Options struct {
	Decoder media.Decoder
	Encoder media.Encoder
	Logger  *slog.Logger
	Actions *logging.ActionLog
	Journal Journal

	// SaveDir is the initial save directory. It is not validated.
	SaveDir string

	PreviewWidth   int
	PreviewHeight  int
	PreviewQuality int
}

// Session owns one open video, its playback position, the pending mark and
// the committed clips. All methods are safe for concurrent use.
type Session struct {
	logger   *slog.Logger
	source   *media.Source
	sched    *playback.Scheduler
	store    *clips.Store
	marker   *clips.Marker
	exporter *export.Exporter
	actions  *logging.ActionLog
	journal  Journal

	previewW, previewH, previewQ int

	// saveMu serializes SaveAll and LoadHistory, which both rewrite the store
	// or the save directory.
	saveMu sync.Mutex

	mu      sync.Mutex
	saveDir string
	saving  bool
}

// VideoInfo describes a freshly opened video.
type VideoInfo struct {
	media.VideoHandle
	Name     string `json:"name"`
	Duration string `json:"duration"`
}

// DirInfo describes the selected save directory.
type DirInfo struct {
	Dir              string `json:"dir"`
	HistoryAvailable bool   `json:"history_available"`
}

// Status is a snapshot of everything a UI needs to render.
type Status struct {
	playback.State
	SpeedLabel  string             `json:"speed_label"`
	Time        string             `json:"time"`
	Duration    string             `json:"duration"`
	Video       *media.VideoHandle `json:"video,omitempty"`
	Pending     *clips.Mark        `json:"pending,omitempty"`
	ClipCount   int                `json:"clip_count"`
	NextClip    string             `json:"next_clip"`
	SaveDir     string             `json:"save_dir,omitempty"`
	Saving      bool               `json:"saving"`
	HistoryFile bool               `json:"history_available"`
}

// Preview is one decoded frame scaled for display. JPEG is nil when the
// frame could not be decoded.
type Preview struct {
	Frame int    `json:"frame"`
	Time  string `json:"time"`
	JPEG  []byte `json:"-"`
}

// History is the outcome of LoadHistory.
type History struct {
	Found   bool             `json:"found"`
	Clips   []clips.Clip     `json:"clips"`
	Actions []logging.Action `json:"actions"`
}

func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logging.WithComponent(logger, "session")

	actions := opts.Actions
	if actions == nil {
		actions = logging.NewActionLog(logger)
	}
	if opts.SaveDir != "" {
		actions.SetDir(opts.SaveDir)
	}

	s := &Session{
		logger:   logger,
		source:   media.NewSource(opts.Decoder, opts.Encoder, logger),
		sched:    playback.NewScheduler(logger),
		store:    clips.NewStore(),
		exporter: export.NewExporter(logger, actions),
		actions:  actions,
		journal:  opts.Journal,
		previewW: opts.PreviewWidth,
		previewH: opts.PreviewHeight,
		previewQ: opts.PreviewQuality,
		saveDir:  opts.SaveDir,
	}
	if s.previewQ <= 0 {
		s.previewQ = defaultPreviewQuality
	}
	s.marker = clips.NewMarker(position{s}, s.store)

	actions.Record("Application started")
	return s
}

// position exposes the scheduler's frame to the marker.
type position struct{ s *Session }

func (p position) Current() (int, bool) {
	st := p.s.sched.State()
	return st.Frame, st.Loaded
}

func (p position) FramesToTime(frame int) string {
	return p.s.source.FramesToTime(frame)
}

// OpenVideo makes path the current video. On failure the previous video,
// if any, stays open.
func (s *Session) OpenVideo(ctx context.Context, path string) (VideoInfo, error) {
	h, err := s.source.Open(ctx, path)
	if err != nil {
		s.logger.Warn("failed to open video", "path", logging.SanitizePath(path), "error", err)
		return VideoInfo{}, err
	}

	s.sched.Load(h)
	s.marker.Clear()

	name := filepath.Base(path)
	s.actions.Record("Video loaded: %s (%d frames, %.2f FPS)", name, h.FrameCount, h.FPS)

	if s.journal != nil {
		if err := s.journal.VideoOpened(ctx, h); err != nil {
			s.logger.Warn("failed to record opened video", "error", err)
		}
	}
	return VideoInfo{VideoHandle: h, Name: name, Duration: h.Duration()}, nil
}

// Video returns the current video.
func (s *Session) Video() (media.VideoHandle, bool) {
	return s.source.Handle()
}

// Seek moves the playback position and returns the clamped frame.
func (s *Session) Seek(frame int) (int, error) {
	before := s.sched.Frame()
	got, err := s.sched.Seek(frame)
	if err != nil {
		return 0, err
	}
	if got != before {
		s.actions.Record("Seeked to %s", s.source.FramesToTime(got))
	}
	return got, nil
}

func (s *Session) Play() error {
	st := s.sched.State()
	if err := s.sched.Play(); err != nil {
		return err
	}
	if !st.Playing {
		s.actions.Record("Playback started at %s (%s)", s.source.FramesToTime(st.Frame), playback.SpeedLabel(st.Speed))
	}
	return nil
}

func (s *Session) Pause() {
	if !s.sched.State().Playing {
		return
	}
	s.sched.Pause()
	s.actions.Record("Playback paused at %s", s.source.FramesToTime(s.sched.Frame()))
}

// SetSpeed accepts any value in playback.Speeds.
func (s *Session) SetSpeed(v int) error {
	if err := s.sched.SetSpeed(v); err != nil {
		return err
	}
	s.actions.Record("Speed changed to %dx", v)
	return nil
}

func (s *Session) MarkStart() (clips.Mark, error) {
	m, err := s.marker.MarkStart()
	if err != nil {
		return clips.Mark{}, err
	}
	s.actions.Record("Start marked at %s", m.StartTime)
	return m, nil
}

func (s *Session) MarkEnd(md clips.Metadata) (clips.Clip, error) {
	c, err := s.marker.MarkEnd(md)
	if err != nil {
		return clips.Clip{}, err
	}
	s.actions.Record("Clip marked: %s (%s - %s)", c.Name, c.StartTime, c.EndTime)
	return c, nil
}

// ClearMark discards the pending start, if any.
func (s *Session) ClearMark() {
	if _, ok := s.marker.Pending(); !ok {
		return
	}
	s.marker.Clear()
	s.actions.Record("Mark cleared")
}

// DeleteClip removes a clip from the store. Files on disk are untouched.
func (s *Session) DeleteClip(name string) bool {
	if !s.store.Delete(name) {
		return false
	}
	s.actions.Record("Clip deleted: %s", name)
	return true
}

func (s *Session) ListClips() []clips.Clip {
	return s.store.List()
}

func (s *Session) Clip(name string) (clips.Clip, bool) {
	return s.store.Get(name)
}

// SetSaveDir selects the directory for exports, the ledger and the action
// log. It reports whether the directory already holds a ledger.
func (s *Session) SetSaveDir(dir string) (DirInfo, error) {
	if err := checkDir(dir); err != nil {
		return DirInfo{}, err
	}

	s.mu.Lock()
	s.saveDir = dir
	s.mu.Unlock()
	s.actions.SetDir(dir)
	s.actions.Record("Save directory set: %s", dir)

	if s.journal != nil {
		if err := s.journal.SaveDirSelected(context.Background(), dir); err != nil {
			s.logger.Warn("failed to remember save directory", "error", err)
		}
	}

	return DirInfo{Dir: dir, HistoryAvailable: clips.HasLedger(dir)}, nil
}

// SaveDir returns the selected save directory.
func (s *Session) SaveDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveDir
}

// SaveAll pauses playback and exports every clip into dir, or into the
// selected save directory when dir is empty.
func (s *Session) SaveAll(ctx context.Context, dir string) (export.Report, error) {
	if s.store.Len() == 0 {
		return export.Report{}, &clips.ValidationError{Reason: clips.ReasonNoClips}
	}
	dir, err := s.useDir(dir)
	if err != nil {
		return export.Report{}, err
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.Pause()
	s.setSaving(true)
	defer s.setSaving(false)

	runID := s.exportStarted(ctx, dir)
	report, err := s.exporter.SaveAll(ctx, s.source, s.store, dir)
	s.exportFinished(runID, report, err)
	return report, err
}

// LoadHistory replaces the clip list with the ledger in dir (or the
// selected save directory) and replays its action log. A directory without
// a ledger is not an error; History.Found reports it.
func (s *Session) LoadHistory(dir string) (History, error) {
	dir, err := s.useDir(dir)
	if err != nil {
		return History{}, err
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	found, err := s.store.Load(dir)
	if err != nil {
		s.actions.Record("Error loading history: %v", err)
		return History{}, err
	}
	if found {
		s.actions.Record("Loaded %d clips from history", s.store.Len())
	} else {
		s.actions.Record("No history file found")
	}

	replayed, err := logging.ReadActionLog(dir)
	if err != nil {
		s.logger.Warn("failed to read action log", "dir", logging.SanitizePath(dir), "error", err)
	} else if len(replayed) > 0 {
		s.actions.Replace(replayed)
	}

	return History{Found: found, Clips: s.store.List(), Actions: s.actions.History()}, nil
}

func (s *Session) Status() Status {
	st := s.sched.State()
	out := Status{
		State:      st,
		SpeedLabel: playback.SpeedLabel(st.Speed),
		Time:       media.FramesToTime(st.Frame, st.FPS),
		Duration:   media.FramesToTime(st.FrameCount, st.FPS),
		ClipCount:  s.store.Len(),
		NextClip:   s.store.NextName(),
	}
	if h, ok := s.source.Handle(); ok {
		out.Video = &h
	}
	if m, ok := s.marker.Pending(); ok {
		out.Pending = &m
	}

	s.mu.Lock()
	out.SaveDir = s.saveDir
	out.Saving = s.saving
	s.mu.Unlock()
	if out.SaveDir != "" {
		out.HistoryFile = clips.HasLedger(out.SaveDir)
	}
	return out
}

// Preview decodes frame, or the current frame when frame is negative,
// scaled to the preview size. Decode failures are logged and yield a
// Preview without an image.
func (s *Session) Preview(ctx context.Context, frame int) (Preview, error) {
	if frame < 0 {
		st := s.sched.State()
		if !st.Loaded {
			return Preview{}, clips.ErrNoVideo
		}
		frame = st.Frame
	}

	img, idx, err := s.source.Seek(ctx, frame)
	if err != nil {
		var de *media.DecodeError
		if errors.As(err, &de) {
			s.logger.Warn("preview decode failed", "frame", de.Frame, "error", de.Err)
			return Preview{Frame: idx, Time: s.source.FramesToTime(idx)}, nil
		}
		return Preview{}, err
	}

	data, err := media.EncodeJPEG(media.Thumbnail(img, s.previewW, s.previewH), s.previewQ)
	if err != nil {
		return Preview{}, fmt.Errorf("encode preview: %w", err)
	}
	return Preview{Frame: idx, Time: s.source.FramesToTime(idx), JPEG: data}, nil
}

// ActionHistory returns the actions recorded or replayed in this session.
func (s *Session) ActionHistory() []logging.Action {
	return s.actions.History()
}

// Actions exposes the action log for subscribers.
func (s *Session) Actions() *logging.ActionLog {
	return s.actions
}

// Observe forwards playback ticks to fn until the returned func is called.
func (s *Session) Observe(fn playback.Observer) func() {
	return s.sched.Observe(fn)
}

// Close stops playback and releases the decoder.
func (s *Session) Close() error {
	s.sched.Close()
	return s.source.Close()
}

func (s *Session) useDir(dir string) (string, error) {
	if dir == "" {
		dir = s.SaveDir()
	}
	if dir == "" {
		return "", &clips.ValidationError{Reason: clips.ReasonNoSaveDir}
	}
	if dir != s.SaveDir() {
		if _, err := s.SetSaveDir(dir); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func (s *Session) setSaving(v bool) {
	s.mu.Lock()
	s.saving = v
	s.mu.Unlock()
}

func (s *Session) exportStarted(ctx context.Context, dir string) string {
	if s.journal == nil {
		return ""
	}
	id, err := s.journal.ExportStarted(ctx, dir, s.store.Len())
	if err != nil {
		s.logger.Warn("failed to record export run", "error", err)
		return ""
	}
	return id
}

func (s *Session) exportFinished(id string, report export.Report, runErr error) {
	if s.journal == nil || id == "" {
		return
	}
	// the run context may already be cancelled
	if err := s.journal.ExportFinished(context.Background(), id, report, runErr); err != nil {
		s.logger.Warn("failed to finish export run", "job_id", id, "error", err)
	}
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return &clips.IOError{Op: "select", Path: dir, Err: err}
	}
	if !info.IsDir() {
		return &clips.IOError{Op: "select", Path: dir, Err: errors.New("not a directory")}
	}
	return nil
}
