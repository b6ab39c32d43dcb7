package catalog

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Video is a recently opened source video.
type Video struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	DisplayName  string    `json:"display_name"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	FPS          float64   `json:"fps"`
	FrameCount   int       `json:"frame_count"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	OpenCount    int       `json:"open_count"`
	Present      bool      `json:"present"`
	CreatedAt    time.Time `json:"created_at"`
	LastOpenedAt time.Time `json:"last_opened_at"`
}

const (
	JobTypeExport = "export"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is one save-all run against a directory.
type Job struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	VideoPath  string    `json:"video_path,omitempty"`
	Dir        string    `json:"dir"`
	Total      int       `json:"total"`
	Exported   int       `json:"exported"`
	Skipped    int       `json:"skipped"`
	Partial    int       `json:"partial"`
	Unresolved int       `json:"unresolved"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Done reports whether the job reached a final status.
func (j *Job) Done() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

type ActionRecord struct {
	ID         int64     `json:"id"`
	Message    string    `json:"message"`
	RecordedAt time.Time `json:"recorded_at"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

const (
	ConfigAuthToken = "auth_token"
	ConfigDeviceID  = "device_id"
	ConfigSaveDir   = "last_save_dir"
)

func NewID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
