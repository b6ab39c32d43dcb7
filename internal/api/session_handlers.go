package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge-agent/internal/clips"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/playback"
	"github.com/clipforge/clipforge-agent/internal/session"
)

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func openVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenVideoRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		info, err := cfg.Session.OpenVideo(r.Context(), req.Path)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, VideoResponse{Loaded: true, Video: &info})
	}
}

func getVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := cfg.Session.Video()
		if !ok {
			WriteJSON(w, http.StatusOK, VideoResponse{})
			return
		}
		info := session.VideoInfo{VideoHandle: h, Name: filepath.Base(h.Path), Duration: h.Duration()}
		WriteJSON(w, http.StatusOK, VideoResponse{Loaded: true, Video: &info})
	}
}

func recentVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videos, err := cfg.CatalogService.RecentVideos(r.Context(), queryInt(r, "limit", 20))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list videos", "INTERNAL_ERROR")
			return
		}

		resp := RecentVideosResponse{Videos: make([]RecentVideoResponse, len(videos))}
		for i, v := range videos {
			resp.Videos[i] = VideoToResponse(v)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func forgetVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.CatalogService.ForgetVideo(r.Context(), chi.URLParam(r, "id")); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func playbackResponse(st session.Status) PlaybackResponse {
	return PlaybackResponse{
		Frame:      st.Frame,
		Time:       st.Time,
		Playing:    st.Playing,
		Speed:      st.Speed,
		SpeedLabel: st.SpeedLabel,
	}
}

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if err := decodeBody(r, &req); err != nil || req.Frame == nil {
			WriteError(w, http.StatusBadRequest, "frame is required", "BAD_REQUEST")
			return
		}

		if _, err := cfg.Session.Seek(*req.Frame); err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, playbackResponse(cfg.Session.Status()))
	}
}

func playHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Session.Play(); err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, playbackResponse(cfg.Session.Status()))
	}
}

func pauseHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Session.Pause()
		WriteJSON(w, http.StatusOK, playbackResponse(cfg.Session.Status()))
	}
}

func speedHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SpeedRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if err := cfg.Session.SetSpeed(req.Speed); err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, playbackResponse(cfg.Session.Status()))
	}
}

// previewHandler serves one scaled frame as JPEG. ?frame= picks a frame,
// ?range=frames=a-b picks the first frame of a range, neither means the
// current position. A frame that cannot be decoded yields 204.
func previewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame := -1
		q := r.URL.Query()

		if v := q.Get("frame"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				WriteError(w, http.StatusBadRequest, "frame must be a non-negative integer", "BAD_REQUEST")
				return
			}
			frame = n
		} else if spec := q.Get("range"); spec != "" {
			h, ok := cfg.Session.Video()
			if !ok {
				writeSessionError(w, media.ErrNotOpen)
				return
			}
			fr, err := media.ParseFrameRange(spec, h.FrameCount)
			if errors.Is(err, media.ErrUnsatisfiable) {
				w.Header().Set("Content-Range", "frames */"+strconv.Itoa(h.FrameCount))
				WriteError(w, http.StatusRequestedRangeNotSatisfiable, err.Error(), "RANGE_NOT_SATISFIABLE")
				return
			}
			if err != nil {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
			frame = fr.Start
		}

		p, err := cfg.Session.Preview(r.Context(), frame)
		if err != nil {
			writeSessionError(w, err)
			return
		}

		w.Header().Set("X-Frame-Index", strconv.Itoa(p.Frame))
		w.Header().Set("X-Frame-Time", p.Time)
		w.Header().Set("Cache-Control", "no-store")
		if p.JPEG == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(p.JPEG)))
		w.WriteHeader(http.StatusOK)
		w.Write(p.JPEG)
	}
}

func markStartHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := cfg.Session.MarkStart()
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, MarkStartResponse{Mark: m})
	}
}

func markEndHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MarkEndRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		c, err := cfg.Session.MarkEnd(req.Metadata)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, c)
	}
}

func clearMarkHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Session.ClearMark()
		w.WriteHeader(http.StatusNoContent)
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := cfg.Session.ListClips()
		if list == nil {
			list = []clips.Clip{}
		}
		WriteJSON(w, http.StatusOK, ClipsResponse{Clips: list, NextClip: cfg.Session.Status().NextClip})
	}
}

func deleteClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !cfg.Session.DeleteClip(chi.URLParam(r, "name")) {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// clipFileHandler streams an exported clip from ?dir= or the save
// directory, with byte-range support.
func clipFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if _, ok := cfg.Session.Clip(name); !ok {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}

		dir := r.URL.Query().Get("dir")
		if dir == "" {
			dir = cfg.Session.SaveDir()
		}
		if dir == "" {
			writeSessionError(w, &clips.ValidationError{Reason: clips.ReasonNoSaveDir})
			return
		}

		if err := cfg.PlaybackServer.ServeClip(w, r, dir, name); err != nil {
			if errors.Is(err, playback.ErrInvalidName) {
				writeSessionError(w, err)
				return
			}
			cfg.Logger.Error("clip playback error", "error", err, "clip", name)
			WriteError(w, http.StatusInternalServerError, "failed to serve clip", "INTERNAL_ERROR")
		}
	}
}

func saveDirHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SaveDirRequest
		if err := decodeBody(r, &req); err != nil || req.Dir == "" {
			WriteError(w, http.StatusBadRequest, "dir is required", "BAD_REQUEST")
			return
		}

		info, err := cfg.Session.SetSaveDir(req.Dir)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, info)
	}
}

// saveHandler exports every clip. With async set and a job runner
// configured, the run is queued and 202 is returned with the job id.
func saveHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SaveRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.Async && cfg.Runner != nil {
			queueSave(cfg, w, r, req.Dir)
			return
		}

		report, err := cfg.Session.SaveAll(r.Context(), req.Dir)
		if err != nil {
			var ioErr *clips.IOError
			if errors.As(err, &ioErr) && ioErr.Op != "select" {
				// completed clips are still listed in the report
				WriteJSON(w, http.StatusInternalServerError, SaveResponse{
					Status: "failed",
					Dir:    cfg.Session.SaveDir(),
					Report: report,
					Error:  err.Error(),
					Code:   "IO_ERROR",
				})
				return
			}
			writeSessionError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, SaveResponse{Status: "ok", Dir: cfg.Session.SaveDir(), Report: report})
	}
}

func queueSave(cfg ServerConfig, w http.ResponseWriter, r *http.Request, dir string) {
	if len(cfg.Session.ListClips()) == 0 {
		writeSessionError(w, &clips.ValidationError{Reason: clips.ReasonNoClips})
		return
	}
	if dir == "" {
		dir = cfg.Session.SaveDir()
	}
	if dir == "" {
		writeSessionError(w, &clips.ValidationError{Reason: clips.ReasonNoSaveDir})
		return
	}

	var videoPath string
	if h, ok := cfg.Session.Video(); ok {
		videoPath = h.Path
	}

	job, err := cfg.CatalogService.QueueExport(r.Context(), dir, videoPath)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to queue export", "INTERNAL_ERROR")
		return
	}
	cfg.Runner.Notify()

	WriteJSON(w, http.StatusAccepted, QueuedSaveResponse{JobID: job.ID, Dir: dir})
}

func loadHistoryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HistoryRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		h, err := cfg.Session.LoadHistory(req.Dir)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		if h.Clips == nil {
			h.Clips = []clips.Clip{}
		}
		WriteJSON(w, http.StatusOK, h)
	}
}

// historyLogHandler returns this session's action history, or with
// ?source=catalog the actions mirrored into the database across runs.
func historyLogHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := ActionsResponse{Actions: []ActionResponse{}}

		if r.URL.Query().Get("source") == "catalog" {
			records, err := cfg.CatalogService.Actions(r.Context(), queryInt(r, "limit", 200))
			if err != nil {
				WriteError(w, http.StatusInternalServerError, "failed to list actions", "INTERNAL_ERROR")
				return
			}
			for _, a := range records {
				resp.Actions = append(resp.Actions, ActionToResponse(logging.Action{Time: a.RecordedAt, Message: a.Message}))
			}
			WriteJSON(w, http.StatusOK, resp)
			return
		}

		for _, a := range cfg.Session.ActionHistory() {
			resp.Actions = append(resp.Actions, ActionToResponse(a))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
