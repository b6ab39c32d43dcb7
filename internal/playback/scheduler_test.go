package playback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge-agent/internal/media"
)

func handle(frames int, fps float64) media.VideoHandle {
	return media.VideoHandle{Path: "in.mp4", FPS: fps, FrameCount: frames, Width: 4, Height: 4}
}

// collect records every tick and signals when playback stops.
type collector struct {
	mu      sync.Mutex
	frames  []int
	stopped chan struct{}
	once    sync.Once
}

func newCollector(s *Scheduler) *collector {
	c := &collector{stopped: make(chan struct{})}
	s.Observe(func(t Tick) {
		c.mu.Lock()
		c.frames = append(c.frames, t.Frame)
		c.mu.Unlock()
		if !t.Playing {
			c.once.Do(func() { close(c.stopped) })
		}
	})
	return c
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not stop")
	}
}

func (c *collector) seen() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.frames...)
}

func TestInterval(t *testing.T) {
	tests := []struct {
		fps   float64
		speed int
		want  time.Duration
	}{
		{30, 1, 33 * time.Millisecond},
		{30, -1, 33 * time.Millisecond},
		{30, 2, 16 * time.Millisecond},
		{25, 4, 10 * time.Millisecond},
		{30, 16, 2 * time.Millisecond},
		{2000, 16, time.Millisecond},
		{0, 1, 0},
	}

	for _, tt := range tests {
		if got := Interval(tt.fps, tt.speed); got != tt.want {
			t.Errorf("Interval(%v, %d) = %v, want %v", tt.fps, tt.speed, got, tt.want)
		}
	}
}

func TestValidSpeed(t *testing.T) {
	for _, v := range []int{1, 2, 3, 4, 8, 16, -1, -2, -3, -4, -8, -16} {
		assert.True(t, ValidSpeed(v), "speed %d", v)
	}
	for _, v := range []int{0, 5, 6, 7, 32, -5, -32} {
		assert.False(t, ValidSpeed(v), "speed %d", v)
	}
}

func TestSpeedLabel(t *testing.T) {
	assert.Equal(t, "→ 2x", SpeedLabel(2))
	assert.Equal(t, "← 16x", SpeedLabel(-16))
}

func TestScheduler_PlayRefusals(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	assert.ErrorIs(t, s.Play(), ErrNoVideo)
	_, err := s.Seek(10)
	assert.ErrorIs(t, err, ErrNoVideo)

	s.Load(handle(100, 0))
	assert.ErrorIs(t, s.Play(), ErrZeroFrameRate)
	assert.False(t, s.State().Playing)
}

func TestScheduler_SetSpeed(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	require.NoError(t, s.SetSpeed(-8))
	assert.Equal(t, -8, s.Speed())

	err := s.SetSpeed(5)
	assert.True(t, errors.Is(err, ErrInvalidSpeed))
	assert.Equal(t, -8, s.Speed())
}

func TestScheduler_LoadResets(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	s.Load(handle(300, 30))
	_, err := s.Seek(120)
	require.NoError(t, err)
	require.NoError(t, s.SetSpeed(4))

	s.Load(handle(50, 25))
	st := s.State()
	assert.Equal(t, State{Loaded: true, Frame: 0, Speed: 1, FrameCount: 50, FPS: 25}, st)
}

func TestScheduler_SeekClamps(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()
	s.Load(handle(300, 30))

	got, err := s.Seek(1000)
	require.NoError(t, err)
	assert.Equal(t, 299, got)

	got, err = s.Seek(-1)
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestScheduler_AutoStopAtEnd(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()
	s.Load(handle(50, 2000))
	require.NoError(t, s.SetSpeed(16))

	c := newCollector(s)
	require.NoError(t, s.Play())
	c.wait(t)

	assert.Equal(t, []int{16, 32, 48, 49}, c.seen())
	st := s.State()
	assert.False(t, st.Playing)
	assert.Equal(t, 49, st.Frame)
}

func TestScheduler_AutoStopAtStart(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()
	s.Load(handle(300, 2000))
	_, err := s.Seek(20)
	require.NoError(t, err)
	require.NoError(t, s.SetSpeed(-8))

	c := newCollector(s)
	require.NoError(t, s.Play())
	c.wait(t)

	assert.Equal(t, []int{12, 4, 0}, c.seen())
	assert.Equal(t, 0, s.Frame())
}

func TestScheduler_PlayIsIdempotent(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()
	s.Load(handle(1000, 1))

	require.NoError(t, s.Play())
	require.NoError(t, s.Play())
	require.NoError(t, s.Play())

	require.Eventually(t, func() bool { return s.active.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), s.active.Load())

	s.Pause()
	require.NoError(t, s.Play())
	s.Pause()
}

func TestScheduler_SeekDuringPlayIsNotClobbered(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()
	// one frame per second: the loop ticks once, then sleeps
	s.Load(handle(1000, 1))

	first := make(chan int, 8)
	s.Observe(func(t Tick) { first <- t.Frame })
	require.NoError(t, s.Play())
	assert.Equal(t, 1, <-first)

	_, err := s.Seek(500)
	require.NoError(t, err)
	s.Pause()

	time.Sleep(20 * time.Millisecond)
	st := s.State()
	assert.Equal(t, 500, st.Frame)
	assert.False(t, st.Playing)
}

func TestScheduler_NoTickAfterPause(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()
	s.Load(handle(100000, 1000))

	require.NoError(t, s.Play())
	time.Sleep(15 * time.Millisecond)
	s.Pause()
	frozen := s.Frame()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, s.Frame())
	require.Eventually(t, func() bool { return s.active.Load() == 0 }, time.Second, time.Millisecond)
}

func TestScheduler_BoundsUnderSpeedChanges(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()
	const frames = 120
	s.Load(handle(frames, 2000))

	var mu sync.Mutex
	var outOfRange []int
	s.Observe(func(t Tick) {
		if t.Frame < 0 || t.Frame > frames-1 {
			mu.Lock()
			outOfRange = append(outOfRange, t.Frame)
			mu.Unlock()
		}
	})

	speeds := []int{16, -3, 8, -16, 4, 2, -1, 16, -8, 3}
	for round := 0; round < 5; round++ {
		for _, v := range speeds {
			require.NoError(t, s.SetSpeed(v))
			_ = s.Play()
			time.Sleep(time.Millisecond)
			st := s.State()
			assert.GreaterOrEqual(t, st.Frame, 0)
			assert.LessOrEqual(t, st.Frame, frames-1)
		}
	}
	s.Pause()

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, outOfRange)
}

func TestScheduler_CloseStopsLoop(t *testing.T) {
	s := NewScheduler(nil)
	s.Load(handle(100000, 1000))
	require.NoError(t, s.Play())

	s.Close()
	assert.Equal(t, int32(0), s.active.Load())
	assert.ErrorIs(t, s.Play(), ErrNoVideo)
}
