package clips

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge-agent/internal/media"
)

type fakePosition struct {
	frame  int
	loaded bool
	fps    float64
}

func (p *fakePosition) Current() (int, bool) { return p.frame, p.loaded }

func (p *fakePosition) FramesToTime(frame int) string { return media.FramesToTime(frame, p.fps) }

func newMarker() (*Marker, *fakePosition, *Store) {
	pos := &fakePosition{loaded: true, fps: 30}
	store := NewStore()
	return NewMarker(pos, store), pos, store
}

func TestMarker_NoVideo(t *testing.T) {
	m, pos, _ := newMarker()
	pos.loaded = false

	_, err := m.MarkStart()
	assert.ErrorIs(t, err, ErrNoVideo)

	_, err = m.MarkEnd(Metadata{})
	assert.ErrorIs(t, err, ErrNoVideo)
}

func TestMarker_EndWithoutStart(t *testing.T) {
	m, pos, store := newMarker()
	pos.frame = 90

	_, err := m.MarkEnd(Metadata{ActionClass: "kick"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonNoStart, ve.Reason)
	assert.Equal(t, 0, store.Len())
}

func TestMarker_EndNotAfterStartKeepsMark(t *testing.T) {
	m, pos, store := newMarker()
	pos.frame = 90
	_, err := m.MarkStart()
	require.NoError(t, err)

	for _, f := range []int{90, 30} {
		pos.frame = f
		_, err = m.MarkEnd(Metadata{})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, "frame %d", f)
		assert.Equal(t, ReasonEndNotAfter, ve.Reason)
	}

	mark, ok := m.Pending()
	require.True(t, ok)
	assert.Equal(t, 90, mark.StartFrame)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, "clip_1.mp4", store.NextName())
}

func TestMarker_CommitsClip(t *testing.T) {
	m, pos, store := newMarker()

	pos.frame = 30
	mark, err := m.MarkStart()
	require.NoError(t, err)
	assert.Equal(t, "00:00:01.000", mark.StartTime)

	pos.frame = 90
	c, err := m.MarkEnd(Metadata{ActionClass: "kick", Team: "home"})
	require.NoError(t, err)

	assert.Equal(t, "clip_1.mp4", c.Name)
	assert.Equal(t, "00:00:01.000", c.StartTime)
	assert.Equal(t, "00:00:03.000", c.EndTime)
	assert.Equal(t, "kick", c.ActionClass)
	assert.Equal(t, "home", c.Team)
	require.True(t, c.HasFrames())
	assert.Equal(t, 61, c.Frames.Len())

	assert.Equal(t, "clip_2.mp4", store.NextName())
	assert.Equal(t, []Clip{c}, store.List())

	_, ok := m.Pending()
	assert.False(t, ok, "commit returns to idle")
}

func TestMarker_StartOverwrites(t *testing.T) {
	m, pos, _ := newMarker()
	pos.frame = 10
	_, _ = m.MarkStart()
	pos.frame = 40
	_, _ = m.MarkStart()

	mark, ok := m.Pending()
	require.True(t, ok)
	assert.Equal(t, 40, mark.StartFrame)
}

func TestMarker_ClearIsIdempotent(t *testing.T) {
	m, pos, store := newMarker()
	m.Clear()

	pos.frame = 10
	_, _ = m.MarkStart()
	m.Clear()
	m.Clear()

	pos.frame = 50
	_, err := m.MarkEnd(Metadata{})
	assert.True(t, IsValidation(err))
	assert.Equal(t, 0, store.Len())
}

func TestMarker_SameMillisecondRejected(t *testing.T) {
	m, pos, _ := newMarker()
	pos.fps = 3000
	pos.frame = 0
	_, _ = m.MarkStart()

	pos.frame = 2
	_, err := m.MarkEnd(Metadata{})
	assert.True(t, IsValidation(err))

	pos.frame = 3
	c, err := m.MarkEnd(Metadata{})
	require.NoError(t, err)
	assert.Equal(t, "00:00:00.001", c.EndTime)
}

func TestMarker_NamesNeverReused(t *testing.T) {
	m, pos, store := newMarker()
	mark := func(start, end int) Clip {
		pos.frame = start
		_, err := m.MarkStart()
		require.NoError(t, err)
		pos.frame = end
		c, err := m.MarkEnd(Metadata{})
		require.NoError(t, err)
		return c
	}

	first := mark(0, 10)
	second := mark(20, 30)
	assert.True(t, store.Delete(second.Name))
	third := mark(40, 50)

	assert.Equal(t, "clip_1.mp4", first.Name)
	assert.Equal(t, "clip_3.mp4", third.Name)
}

func TestErrors(t *testing.T) {
	pe := &ParseError{Path: "ledger.csv", Line: 3, Err: errors.New("bad quote")}
	assert.Equal(t, "parse ledger.csv line 3: bad quote", pe.Error())

	ioe := &IOError{Op: "persist", Path: "/x", Err: errors.New("disk full")}
	assert.Equal(t, "persist /x: disk full", ioe.Error())
	assert.False(t, IsValidation(ioe))
}
