package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"sync"
)

// maxPreviewSkip is how far ahead the preview cursor may be advanced by
// decoding and discarding frames before a fresh seek is cheaper.
const maxPreviewSkip = 48

// Source serves single-frame previews for the currently open video and
// hands out independent cursors and encoders for export. Preview state is
// never shared with export cursors.
type Source struct {
	dec    Decoder
	enc    Encoder
	logger *slog.Logger

	mu      sync.Mutex
	handle  *VideoHandle
	ctx     context.Context
	cancel  context.CancelFunc
	preview FrameReader
	next    int
}

// NewSource creates a Source with no video open.
func NewSource(dec Decoder, enc Encoder, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Source{dec: dec, enc: enc, logger: logger}
}

// Open probes path and makes it the current video. On failure the
// previously open video stays current.
func (s *Source) Open(ctx context.Context, path string) (VideoHandle, error) {
	if !fileExists(path) {
		return VideoHandle{}, &OpenError{Path: path, Err: os.ErrNotExist}
	}

	probe, err := s.dec.Probe(ctx, path)
	if err != nil {
		return VideoHandle{}, &OpenError{Path: path, Err: err}
	}
	if probe.Width <= 0 || probe.Height <= 0 {
		return VideoHandle{}, &OpenError{Path: path, Err: errors.New("no decodable video stream")}
	}

	h := VideoHandle{
		Path:       path,
		FPS:        probe.FrameRate,
		FrameCount: probe.FrameCount,
		Width:      probe.Width,
		Height:     probe.Height,
	}

	s.mu.Lock()
	s.closePreviewLocked()
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.handle = &h
	s.mu.Unlock()

	s.logger.Info("video opened",
		"frames", h.FrameCount,
		"fps", h.FPS,
		"width", h.Width,
		"height", h.Height,
		"codec", probe.Codec,
	)
	return h, nil
}

// Handle returns the current video, if any.
func (s *Source) Handle() (VideoHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return VideoHandle{}, false
	}
	return *s.handle, true
}

// Seek decodes the frame at index, clamped to the video bounds, and returns
// it together with the clamped index.
func (s *Source) Seek(ctx context.Context, frame int) (image.Image, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return nil, 0, ErrNotOpen
	}
	frame = s.handle.Clamp(frame)

	if s.preview == nil || frame < s.next || frame-s.next > maxPreviewSkip {
		s.closePreviewLocked()
		r, err := s.dec.OpenReader(s.ctx, *s.handle, frame)
		if err != nil {
			return nil, frame, &DecodeError{Frame: frame, Err: err}
		}
		s.preview = r
		s.next = frame
	}

	for s.next < frame {
		if _, err := s.preview.Next(); err != nil {
			s.closePreviewLocked()
			return nil, frame, &DecodeError{Frame: frame, Err: err}
		}
		s.next++
	}

	img, err := s.preview.Next()
	if err != nil {
		s.closePreviewLocked()
		return nil, frame, &DecodeError{Frame: frame, Err: err}
	}
	s.next = frame + 1
	return img, frame, nil
}

// OpenCursor opens an export cursor positioned at start. Each cursor owns
// its decoder; closing it does not affect previews.
func (s *Source) OpenCursor(ctx context.Context, start int) (FrameReader, error) {
	h, ok := s.Handle()
	if !ok {
		return nil, ErrNotOpen
	}
	r, err := s.dec.OpenReader(ctx, h, start)
	if err != nil {
		return nil, &DecodeError{Frame: start, Err: err}
	}
	return r, nil
}

// Create opens an encoder for path at the current video's rate and size.
func (s *Source) Create(ctx context.Context, path string) (FrameWriter, error) {
	h, ok := s.Handle()
	if !ok {
		return nil, ErrNotOpen
	}
	w, err := s.enc.Create(ctx, path, h.FPS, h.Width, h.Height)
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	return w, nil
}

// FramesToTime formats frame against the current video's rate. With no
// video open it returns "00:00:00.000".
func (s *Source) FramesToTime(frame int) string {
	h, _ := s.Handle()
	return h.FramesToTime(frame)
}

// Close releases the preview decoder and forgets the current video.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closePreviewLocked()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.handle = nil
	return nil
}

func (s *Source) closePreviewLocked() {
	if s.preview == nil {
		return
	}
	if err := s.preview.Close(); err != nil {
		s.logger.Debug("preview decoder close failed", "error", err)
	}
	s.preview = nil
	s.next = 0
}
