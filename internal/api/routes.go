package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge-agent/internal/catalog"
)

const defaultVersion = "0.1.0"

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/video", getVideoHandler(cfg))
		r.Post("/video", openVideoHandler(cfg))
		r.Get("/videos", recentVideosHandler(cfg))
		r.Delete("/videos/{id}", forgetVideoHandler(cfg))

		r.Post("/playback/seek", seekHandler(cfg))
		r.Post("/playback/play", playHandler(cfg))
		r.Post("/playback/pause", pauseHandler(cfg))
		r.Post("/playback/speed", speedHandler(cfg))
		r.Get("/playback/preview", previewHandler(cfg))

		r.Post("/marks/start", markStartHandler(cfg))
		r.Post("/marks/end", markEndHandler(cfg))
		r.Delete("/marks", clearMarkHandler(cfg))

		r.Get("/clips", listClipsHandler(cfg))
		r.Delete("/clips/{name}", deleteClipHandler(cfg))
		r.With(LoopbackGuard()).Get("/clips/{name}/file", clipFileHandler(cfg))

		r.Post("/savedir", saveDirHandler(cfg))
		r.Post("/save", saveHandler(cfg))
		r.Post("/history/load", loadHistoryHandler(cfg))
		r.Get("/history/log", historyLogHandler(cfg))

		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))

		r.Post("/export/edl", exportEDLHandler(cfg))
		r.Get("/events", eventsHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = defaultVersion
		}
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		resp := StatusResponse{State: "idle", Session: cfg.Session.Status()}
		switch {
		case resp.Session.Saving:
			resp.State = "saving"
		case resp.Session.Playing:
			resp.State = "playing"
		}

		if cfg.Runner != nil && cfg.Runner.IsPaused() && resp.State == "idle" {
			resp.State = "paused"
		}

		if cfg.Repository != nil {
			jobs, _ := cfg.Repository.ListJobs(ctx, 10)
			for _, j := range jobs {
				if j.Status == catalog.JobStatusRunning {
					jr := JobToResponse(j)
					resp.ActiveJob = &jr
					resp.JobsRunning++
				}
			}
			if len(jobs) > 0 && jobs[0].Status == catalog.JobStatusFailed {
				resp.LastError = jobs[0].Error
				if resp.State == "idle" {
					resp.State = "error"
				}
			}
		}

		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				resp.Media = &MediaStatusResponse{
					Ready:          caps.Ready(),
					FFmpegVersion:  caps.FFmpeg.Version,
					FFprobeVersion: caps.FFprobe.Version,
					VideoCodec:     caps.VideoCodec,
					HasEncoder:     caps.HasEncoder,
					LastProbeAt:    caps.ProbedAt.Format(time.RFC3339),
				}
			}
		}

		if r.URL.Query().Get("host") == "1" {
			resp.Host = hostStats(ctx, cfg.Logger)
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.CatalogService.GetJobs(r.Context(), queryInt(r, "limit", 50))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.CatalogService.GetJob(r.Context(), id)
		if err != nil {
			writeSessionError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
