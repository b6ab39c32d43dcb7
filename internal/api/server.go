package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipforge/clipforge-agent/internal/catalog"
	"github.com/clipforge/clipforge-agent/internal/clips"
	"github.com/clipforge/clipforge-agent/internal/export"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/playback"
	"github.com/clipforge/clipforge-agent/internal/session"
)

// SessionService is the part of session.Session the HTTP layer drives.
type SessionService interface {
	OpenVideo(ctx context.Context, path string) (session.VideoInfo, error)
	Video() (media.VideoHandle, bool)

	Seek(frame int) (int, error)
	Play() error
	Pause()
	SetSpeed(v int) error

	MarkStart() (clips.Mark, error)
	MarkEnd(md clips.Metadata) (clips.Clip, error)
	ClearMark()
	DeleteClip(name string) bool
	ListClips() []clips.Clip
	Clip(name string) (clips.Clip, bool)

	SetSaveDir(dir string) (session.DirInfo, error)
	SaveDir() string
	SaveAll(ctx context.Context, dir string) (export.Report, error)
	LoadHistory(dir string) (session.History, error)

	Status() session.Status
	Preview(ctx context.Context, frame int) (session.Preview, error)
	ActionHistory() []logging.Action
	Actions() *logging.ActionLog
	Observe(fn playback.Observer) func()
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port           int
	Session        SessionService
	CatalogService catalog.CatalogService
	PlaybackServer playback.FileService
	Repository     catalog.Repository
	Runner         *catalog.Runner
	Doctor         *media.CachedDoctor
	Logger         *slog.Logger
	StartTime      time.Time
	DeviceID       string
	Version        string

	// EventPing is the keep-alive interval of the events stream.
	EventPing time.Duration
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
