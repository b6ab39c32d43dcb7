package media

import (
	"context"
	"image"
)

// ProbeResult is the container metadata reported for a source file.
type ProbeResult struct {
	Duration   float64
	Width      int
	Height     int
	Codec      string
	Bitrate    int64
	FrameRate  float64
	FrameCount int
	AudioCodec string
}

// Decoder probes sources and opens sequential frame readers over them.
type Decoder interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)

	// OpenReader returns a reader whose first frame is startFrame.
	OpenReader(ctx context.Context, h VideoHandle, startFrame int) (FrameReader, error)
}

// FrameReader yields consecutive frames. Next returns io.EOF once the
// source has no further frames.
type FrameReader interface {
	Next() (image.Image, error)
	Close() error
}

// Encoder creates new video files from a stream of frames.
type Encoder interface {
	Create(ctx context.Context, path string, fps float64, width, height int) (FrameWriter, error)
}

// FrameWriter appends frames to an output file. Close finalizes it.
type FrameWriter interface {
	WriteFrame(img image.Image) error
	Close() error
}
