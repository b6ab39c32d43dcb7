package api

import (
	"time"

	"github.com/clipforge/clipforge-agent/internal/catalog"
	"github.com/clipforge/clipforge-agent/internal/clips"
	"github.com/clipforge/clipforge-agent/internal/export"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/session"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State       string               `json:"state"`
	LastError   string               `json:"last_error,omitempty"`
	Session     session.Status       `json:"session"`
	JobsRunning int                  `json:"jobs_running"`
	ActiveJob   *JobResponse         `json:"active_job,omitempty"`
	Media       *MediaStatusResponse `json:"media,omitempty"`
	Host        *HostResponse        `json:"host,omitempty"`
}

type MediaStatusResponse struct {
	Ready          bool   `json:"ready"`
	FFmpegVersion  string `json:"ffmpeg_version,omitempty"`
	FFprobeVersion string `json:"ffprobe_version,omitempty"`
	VideoCodec     string `json:"video_codec"`
	HasEncoder     bool   `json:"has_encoder"`
	LastProbeAt    string `json:"last_probe_at,omitempty"`
}

type HostResponse struct {
	CPUCount       int     `json:"cpu_count"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemTotal       uint64  `json:"mem_total"`
	MemUsedPercent float64 `json:"mem_used_percent"`
}

type OpenVideoRequest struct {
	Path string `json:"path"`
}

type VideoResponse struct {
	Loaded bool               `json:"loaded"`
	Video  *session.VideoInfo `json:"video,omitempty"`
}

type RecentVideoResponse struct {
	ID           string  `json:"id"`
	Path         string  `json:"path"`
	DisplayName  string  `json:"display_name"`
	FPS          float64 `json:"fps"`
	FrameCount   int     `json:"frame_count"`
	OpenCount    int     `json:"open_count"`
	Present      bool    `json:"present"`
	LastOpenedAt string  `json:"last_opened_at"`
}

type RecentVideosResponse struct {
	Videos []RecentVideoResponse `json:"videos"`
}

type SeekRequest struct {
	Frame *int `json:"frame"`
}

type SpeedRequest struct {
	Speed int `json:"speed"`
}

type PlaybackResponse struct {
	Frame      int    `json:"frame"`
	Time       string `json:"time"`
	Playing    bool   `json:"playing"`
	Speed      int    `json:"speed"`
	SpeedLabel string `json:"speed_label"`
}

type MarkStartResponse struct {
	Mark clips.Mark `json:"mark"`
}

type MarkEndRequest struct {
	clips.Metadata
}

type ClipsResponse struct {
	Clips    []clips.Clip `json:"clips"`
	NextClip string       `json:"next_clip"`
}

type SaveDirRequest struct {
	Dir string `json:"dir"`
}

type SaveRequest struct {
	Dir   string `json:"dir,omitempty"`
	Async bool   `json:"async,omitempty"`
}

type SaveResponse struct {
	Status string        `json:"status"`
	Dir    string        `json:"dir"`
	Report export.Report `json:"report"`
	Error  string        `json:"error,omitempty"`
	Code   string        `json:"code,omitempty"`
}

type QueuedSaveResponse struct {
	JobID string `json:"job_id"`
	Dir   string `json:"dir"`
}

type HistoryRequest struct {
	Dir string `json:"dir,omitempty"`
}

type ActionsResponse struct {
	Actions []ActionResponse `json:"actions"`
}

type ActionResponse struct {
	Time    string `json:"time"`
	Message string `json:"message"`
}

type JobResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Dir        string `json:"dir"`
	VideoPath  string `json:"video_path,omitempty"`
	Total      int    `json:"total"`
	Exported   int    `json:"exported"`
	Skipped    int    `json:"skipped"`
	Partial    int    `json:"partial"`
	Unresolved int    `json:"unresolved"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JobToResponse(j *catalog.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Type:       j.Type,
		Status:     j.Status,
		Dir:        j.Dir,
		VideoPath:  j.VideoPath,
		Total:      j.Total,
		Exported:   j.Exported,
		Skipped:    j.Skipped,
		Partial:    j.Partial,
		Unresolved: j.Unresolved,
		Failed:     j.Failed,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}

func VideoToResponse(v *catalog.Video) RecentVideoResponse {
	return RecentVideoResponse{
		ID:           v.ID,
		Path:         v.Path,
		DisplayName:  v.DisplayName,
		FPS:          v.FPS,
		FrameCount:   v.FrameCount,
		OpenCount:    v.OpenCount,
		Present:      v.Present,
		LastOpenedAt: v.LastOpenedAt.Format(time.RFC3339),
	}
}

func ActionToResponse(a logging.Action) ActionResponse {
	return ActionResponse{Time: a.Time.Format(time.RFC3339), Message: a.Message}
}
