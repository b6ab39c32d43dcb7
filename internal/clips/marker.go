package clips

import (
	"sync"

	"github.com/clipforge/clipforge-agent/internal/media"
)

// Position is the read-only view of the playback position a Marker needs.
type Position interface {
	// Current returns the current frame and false when no video is open.
	Current() (int, bool)
	FramesToTime(frame int) string
}

// Mark is a pending start point.
type Mark struct {
	StartFrame int    `json:"start_frame"`
	StartTime  string `json:"start_time"`
}

// Marker turns a start/end pair at the current position into a committed
// clip. States: idle (no pending mark) and marking (start captured).
type Marker struct {
	pos   Position
	store *Store

	mu      sync.Mutex
	pending *Mark
}

func NewMarker(pos Position, store *Store) *Marker {
	return &Marker{pos: pos, store: store}
}

// MarkStart captures the current position, replacing any earlier start.
func (m *Marker) MarkStart() (Mark, error) {
	frame, ok := m.pos.Current()
	if !ok {
		return Mark{}, ErrNoVideo
	}
	mark := Mark{StartFrame: frame, StartTime: m.pos.FramesToTime(frame)}

	m.mu.Lock()
	m.pending = &mark
	m.mu.Unlock()
	return mark, nil
}

// MarkEnd commits a clip from the pending start to the current position.
// On failure the pending mark is unchanged.
func (m *Marker) MarkEnd(md Metadata) (Clip, error) {
	frame, ok := m.pos.Current()
	if !ok {
		return Clip{}, ErrNoVideo
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return Clip{}, &ValidationError{Reason: ReasonNoStart}
	}
	// above 1000 fps two frames can share a millisecond timestamp
	endTime := m.pos.FramesToTime(frame)
	if frame <= m.pending.StartFrame || endTime == m.pending.StartTime {
		return Clip{}, &ValidationError{Reason: ReasonEndNotAfter}
	}

	c := m.store.AppendNext(Clip{
		StartTime: m.pending.StartTime,
		EndTime:   endTime,
		Metadata:  md,
		Frames:    &media.FrameRange{Start: m.pending.StartFrame, End: frame},
	})
	m.pending = nil
	return c, nil
}

// Clear discards the pending mark. It is idempotent.
func (m *Marker) Clear() {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
}

// Pending returns the pending mark, if any.
func (m *Marker) Pending() (Mark, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return Mark{}, false
	}
	return *m.pending, true
}
