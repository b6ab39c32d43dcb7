package media

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFramesToTime(t *testing.T) {
	tests := []struct {
		name  string
		frame int
		fps   float64
		want  string
	}{
		{"zero frame", 0, 30, "00:00:00.000"},
		{"one second", 30, 30, "00:00:01.000"},
		{"truncated ms", 45, 30, "00:00:01.500"},
		{"fraction truncates", 7, 30, "00:00:00.233"},
		{"ntsc", 1, 29.97, "00:00:00.033"},
		{"minute boundary", 1800, 30, "00:01:00.000"},
		{"over an hour", 3661 * 25, 25, "01:01:01.000"},
		{"zero fps", 100, 0, "00:00:00.000"},
		{"negative fps", 100, -5, "00:00:00.000"},
		{"clip end", 90, 30, "00:00:03.000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FramesToTime(tt.frame, tt.fps))
		})
	}
}

func TestVideoHandle_Clamp(t *testing.T) {
	h := VideoHandle{FPS: 30, FrameCount: 300}

	assert.Equal(t, 0, h.Clamp(-10))
	assert.Equal(t, 150, h.Clamp(150))
	assert.Equal(t, 299, h.Clamp(10000))

	empty := VideoHandle{FPS: 30}
	assert.Equal(t, 0, empty.Clamp(5))
}

func TestVideoHandle_Duration(t *testing.T) {
	h := VideoHandle{FPS: 30, FrameCount: 300}
	assert.Equal(t, "00:00:10.000", h.Duration())
	assert.Equal(t, "00:00:05.000", h.FramesToTime(150))
	assert.InDelta(t, 5.0, h.FrameSeconds(150), 1e-9)
}

func TestParseFrameRate(t *testing.T) {
	assert.Equal(t, 30.0, ParseFrameRate("30/1"))
	assert.InDelta(t, 29.97, ParseFrameRate("30000/1001"), 0.001)
	assert.Equal(t, 25.0, ParseFrameRate("25"))
	assert.Equal(t, 0.0, ParseFrameRate("0/0"))
	assert.Equal(t, 0.0, ParseFrameRate(""))
	assert.Equal(t, 0.0, ParseFrameRate("abc"))
}

func TestErrors_Unwrap(t *testing.T) {
	oe := &OpenError{Path: "/tmp/x.mp4", Err: os.ErrNotExist}
	assert.True(t, errors.Is(oe, os.ErrNotExist))
	assert.Contains(t, oe.Error(), "/tmp/x.mp4")

	de := &DecodeError{Frame: 12, Err: io.EOF}
	assert.True(t, errors.Is(de, io.EOF))
	assert.Equal(t, "decode frame 12: EOF", de.Error())
}
