// Package mediatest provides in-memory decoders and encoders for tests.
// Frames are tiny RGBA images whose first pixel encodes the frame index.
package mediatest

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"sync"

	"github.com/clipforge/clipforge-agent/internal/media"
)

const frameSize = 4

// Frame renders the synthetic frame for index.
func Frame(index int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frameSize, frameSize))
	c := color.RGBA{R: uint8(index % 256), G: uint8(index / 256 % 256), B: uint8(index / 65536 % 256), A: 255}
	for y := 0; y < frameSize; y++ {
		for x := 0; x < frameSize; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// FrameIndex recovers the index encoded by Frame.
func FrameIndex(img image.Image) int {
	r, g, b, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	return int(r>>8) + int(g>>8)*256 + int(b>>8)*65536
}

// Decoder serves synthetic frames. Available limits how many frames can
// actually be decoded, simulating a file shorter than its reported count.
type Decoder struct {
	Result    media.ProbeResult
	ProbeErr  error
	OpenErr   error
	Available int

	mu     sync.Mutex
	opens  []int
	active int
}

// NewDecoder reports frames frames at fps and can decode all of them.
func NewDecoder(frames int, fps float64) *Decoder {
	return &Decoder{
		Result: media.ProbeResult{
			Width:      frameSize,
			Height:     frameSize,
			FrameRate:  fps,
			FrameCount: frames,
			Codec:      "fake",
		},
		Available: frames,
	}
}

func (d *Decoder) Probe(ctx context.Context, path string) (*media.ProbeResult, error) {
	if d.ProbeErr != nil {
		return nil, d.ProbeErr
	}
	res := d.Result
	return &res, nil
}

func (d *Decoder) OpenReader(ctx context.Context, h media.VideoHandle, startFrame int) (media.FrameReader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.opens = append(d.opens, startFrame)
	d.active++
	return &reader{dec: d, ctx: ctx, next: startFrame}, nil
}

// Opens returns the start frame of every reader opened so far.
func (d *Decoder) Opens() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.opens...)
}

// Active returns the number of readers not yet closed.
func (d *Decoder) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Decoder) available() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Available
}

type reader struct {
	dec    *Decoder
	ctx    context.Context
	next   int
	closed bool
}

func (r *reader) Next() (image.Image, error) {
	if r.closed {
		return nil, errors.New("reader closed")
	}
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	if r.next >= r.dec.available() {
		return nil, io.EOF
	}
	img := Frame(r.next)
	r.next++
	return img, nil
}

func (r *reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.dec.mu.Lock()
	r.dec.active--
	r.dec.mu.Unlock()
	return nil
}

// Encoder records written frames per output path and creates the output
// file on Close so existence checks behave as with a real encoder.
type Encoder struct {
	CreateErr error
	// FailAfter makes WriteFrame fail once this many frames were written
	// to a single output. Zero disables it.
	FailAfter int

	mu      sync.Mutex
	outputs map[string][]int
	order   []string
}

func NewEncoder() *Encoder {
	return &Encoder{outputs: make(map[string][]int)}
}

func (e *Encoder) Create(ctx context.Context, path string, fps float64, width, height int) (media.FrameWriter, error) {
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%s already exists", path)
	}
	e.mu.Lock()
	e.order = append(e.order, path)
	e.outputs[path] = nil
	e.mu.Unlock()
	return &writer{enc: e, path: path}, nil
}

// Frames returns the frame indices written to path.
func (e *Encoder) Frames(path string) []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.outputs[path]...)
}

// Created returns output paths in creation order.
func (e *Encoder) Created() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

type writer struct {
	enc  *Encoder
	path string
	n    int
}

func (w *writer) WriteFrame(img image.Image) error {
	if w.enc.FailAfter > 0 && w.n >= w.enc.FailAfter {
		return errors.New("encoder failure")
	}
	w.enc.mu.Lock()
	w.enc.outputs[w.path] = append(w.enc.outputs[w.path], FrameIndex(img))
	w.enc.mu.Unlock()
	w.n++
	return nil
}

func (w *writer) Close() error {
	return os.WriteFile(w.path, []byte(fmt.Sprintf("frames=%d\n", w.n)), 0o644)
}
