// Package media provides random-access frame retrieval over a source video:
// probing container metadata, decoding single frames for preview, opening
// independent sequential cursors for export and encoding new files.
package media

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// VideoHandle describes an opened source video. It is immutable once opened.
type VideoHandle struct {
	Path       string  `json:"path"`
	FPS        float64 `json:"fps"`
	FrameCount int     `json:"frame_count"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// LastFrame returns the highest valid frame index, or -1 for an empty video.
func (h VideoHandle) LastFrame() int {
	return h.FrameCount - 1
}

// Clamp limits frame to [0, FrameCount-1].
func (h VideoHandle) Clamp(frame int) int {
	if frame > h.LastFrame() {
		frame = h.LastFrame()
	}
	if frame < 0 {
		frame = 0
	}
	return frame
}

// FramesToTime formats the elapsed time of frame as HH:MM:SS.mmm.
func (h VideoHandle) FramesToTime(frame int) string {
	return FramesToTime(frame, h.FPS)
}

// Duration formats the total length of the video.
func (h VideoHandle) Duration() string {
	return FramesToTime(h.FrameCount, h.FPS)
}

// FrameSeconds returns the presentation time of frame in seconds.
func (h VideoHandle) FrameSeconds(frame int) float64 {
	if h.FPS <= 0 {
		return 0
	}
	return float64(frame) / h.FPS
}

// FramesToTime converts a frame index to "HH:MM:SS.mmm", truncating to the
// millisecond. A non-positive fps yields "00:00:00.000".
func FramesToTime(frame int, fps float64) string {
	if fps <= 0 {
		return "00:00:00.000"
	}

	// 1e-9 absorbs binary residue such as 7/30*1000 = 233.33333333333331
	// without changing any truncation that a decimal computation would make.
	totalMs := int64(math.Floor(float64(frame)*1000/fps + 1e-9))
	if totalMs < 0 {
		totalMs = 0
	}

	ms := totalMs % 1000
	totalSeconds := totalMs / 1000
	seconds := totalSeconds % 60
	minutes := (totalSeconds % 3600) / 60
	hours := totalSeconds / 3600
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, ms)
}

// ParseFrameRate parses ffprobe rational rates such as "30000/1001" or "25".
func ParseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return 0
		}
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 || n < 0 {
		return 0
	}
	return n / d
}

// ErrNotOpen is returned by operations that need an opened video.
var ErrNotOpen = errors.New("no video loaded")

// OpenError reports a source that is missing or that the decoder cannot
// initialize.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// DecodeError reports that no frame could be produced at Frame.
type DecodeError struct {
	Frame int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame %d: %v", e.Frame, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
