// Package playback drives the current frame of the open video at a signed,
// wall-clock-paced speed and serves exported clips over HTTP.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clipforge/clipforge-agent/internal/media"
)

var (
	ErrNoVideo       = media.ErrNotOpen
	ErrZeroFrameRate = errors.New("video reports a frame rate of zero")
	ErrInvalidSpeed  = errors.New("invalid playback speed")
)

// Speeds lists every accepted playback speed.
var Speeds = []int{-16, -8, -4, -3, -2, -1, 1, 2, 3, 4, 8, 16}

// ValidSpeed reports whether v is an accepted playback speed.
func ValidSpeed(v int) bool {
	for _, s := range Speeds {
		if s == v {
			return true
		}
	}
	return false
}

// SpeedLabel renders a speed with its direction, e.g. "→ 2x" or "← 4x".
func SpeedLabel(v int) string {
	if v < 0 {
		return fmt.Sprintf("← %dx", -v)
	}
	return fmt.Sprintf("→ %dx", v)
}

// Interval is the pause between ticks: 1000/(fps*|speed|) whole
// milliseconds, never less than one. It is zero when fps or speed is zero.
func Interval(fps float64, speed int) time.Duration {
	if fps <= 0 || speed == 0 {
		return 0
	}
	ms := int64(1000 / (fps * math.Abs(float64(speed))))
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

// State is a snapshot of the playback position.
type State struct {
	Loaded     bool    `json:"loaded"`
	Frame      int     `json:"frame"`
	Speed      int     `json:"speed"`
	Playing    bool    `json:"playing"`
	FrameCount int     `json:"frame_count"`
	FPS        float64 `json:"fps"`
}

// Tick is delivered to observers whenever the position or the playing
// flag changes.
type Tick struct {
	Frame   int  `json:"frame"`
	Playing bool `json:"playing"`
}

// Observer receives ticks. It runs on the scheduler's goroutine or the
// caller's and must not block.
type Observer func(Tick)

// Scheduler owns the playback position. Every mutation happens under mu,
// and the advance loop checks its generation before each write so that no
// tick lands after Pause, Load or Close has returned.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	handle  media.VideoHandle
	loaded  bool
	frame   int
	speed   int
	playing bool
	gen     uint64
	stop    chan struct{}

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int

	wg     sync.WaitGroup
	active atomic.Int32
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		logger:    logger,
		speed:     1,
		observers: make(map[int]Observer),
	}
}

// Load stops playback and resets the position for a newly opened video.
func (s *Scheduler) Load(h media.VideoHandle) {
	s.mu.Lock()
	s.stopLocked()
	s.handle = h
	s.loaded = true
	s.frame = 0
	s.speed = 1
	s.mu.Unlock()

	s.notify(Tick{Frame: 0, Playing: false})
}

// Unload stops playback and forgets the video.
func (s *Scheduler) Unload() {
	s.mu.Lock()
	s.stopLocked()
	s.handle = media.VideoHandle{}
	s.loaded = false
	s.frame = 0
	s.mu.Unlock()
}

// Play starts the advance loop. It is a no-op while already playing.
func (s *Scheduler) Play() error {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return ErrNoVideo
	}
	if s.handle.FPS <= 0 {
		s.mu.Unlock()
		return ErrZeroFrameRate
	}
	if s.playing {
		s.mu.Unlock()
		return nil
	}

	s.playing = true
	s.gen++
	gen := s.gen
	stop := make(chan struct{})
	s.stop = stop
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Debug("playback started", "speed", s.Speed())
	go s.loop(gen, stop)
	return nil
}

// Pause stops the advance loop. It returns once no further tick can be
// applied; it does not wait for the goroutine to exit.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	wasPlaying := s.playing
	s.stopLocked()
	frame := s.frame
	s.mu.Unlock()

	if wasPlaying {
		s.notify(Tick{Frame: frame, Playing: false})
	}
}

// Seek moves the position, clamped to the video bounds, and returns the
// frame actually set. A running loop continues from the new position.
func (s *Scheduler) Seek(frame int) (int, error) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return 0, ErrNoVideo
	}
	s.frame = s.handle.Clamp(frame)
	frame = s.frame
	playing := s.playing
	s.mu.Unlock()

	s.notify(Tick{Frame: frame, Playing: playing})
	return frame, nil
}

// SetSpeed changes the speed applied from the next tick onward.
func (s *Scheduler) SetSpeed(v int) error {
	if !ValidSpeed(v) {
		return fmt.Errorf("%w: %d", ErrInvalidSpeed, v)
	}
	s.mu.Lock()
	s.speed = v
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) Speed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// Frame returns the current position.
func (s *Scheduler) Frame() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Loaded:     s.loaded,
		Frame:      s.frame,
		Speed:      s.speed,
		Playing:    s.playing,
		FrameCount: s.handle.FrameCount,
		FPS:        s.handle.FPS,
	}
}

// Observe registers fn for every tick and returns a func that removes it.
func (s *Scheduler) Observe(fn Observer) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// Close stops playback and waits for the advance loop to exit.
func (s *Scheduler) Close() {
	s.Unload()
	s.wg.Wait()
}

func (s *Scheduler) stopLocked() {
	s.gen++
	s.playing = false
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Scheduler) loop(gen uint64, stop <-chan struct{}) {
	defer s.wg.Done()
	s.active.Add(1)
	defer s.active.Add(-1)

	for {
		tick, interval, ok := s.advance(gen)
		if !ok {
			return
		}
		s.notify(tick)
		if !tick.Playing {
			return
		}

		timer := time.NewTimer(interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// advance applies one tick if gen is still current.
func (s *Scheduler) advance(gen uint64) (Tick, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || !s.playing {
		return Tick{}, 0, false
	}

	next := s.frame + s.speed
	last := s.handle.LastFrame()
	switch {
	case next > last:
		next = max(last, 0)
		s.stopLocked()
	case next < 0:
		next = 0
		s.stopLocked()
	}
	s.frame = next

	if !s.playing {
		s.logger.Debug("playback reached bound", "frame", next)
	}
	return Tick{Frame: next, Playing: s.playing}, Interval(s.handle.FPS, s.speed), true
}

func (s *Scheduler) notify(t Tick) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for _, fn := range s.observers {
		fn(t)
	}
}
