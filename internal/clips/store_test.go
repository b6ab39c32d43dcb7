package clips

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge-agent/internal/media"
)

func sampleClips() []Clip {
	return []Clip{
		{
			Name: "clip_1.mp4", StartTime: "00:00:01.000", EndTime: "00:00:03.000",
			Metadata: Metadata{ActionClass: "kick", Description: "corner, left side", Team: "home", Equipment: "ball"},
			Frames:   &media.FrameRange{Start: 30, End: 90},
		},
		{
			Name: "clip_2.mp4", StartTime: "00:00:04.500", EndTime: "00:00:06.033",
			Metadata: Metadata{ActionClass: "pass", Description: `said "go"`},
		},
	}
}

func withoutFrames(clips []Clip) []Clip {
	out := make([]Clip, len(clips))
	for i, c := range clips {
		c.Frames = nil
		out[i] = c
	}
	return out
}

func TestClipIndex(t *testing.T) {
	tests := []struct {
		name   string
		want   int
		wantOK bool
	}{
		{"clip_1.mp4", 1, true},
		{"clip_42.mp4", 42, true},
		{"clip_x.mp4", 0, false},
		{"clip_3.avi", 0, false},
		{"take_3.mp4", 0, false},
		{"clip_-1.mp4", 0, false},
	}
	for _, tt := range tests {
		got, ok := ClipIndex(tt.name)
		assert.Equal(t, tt.wantOK, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestStore_AppendDeleteList(t *testing.T) {
	s := NewStore()
	for _, c := range sampleClips() {
		s.Append(c)
	}
	assert.Equal(t, "clip_3.mp4", s.NextName())

	assert.False(t, s.Delete("clip_9.mp4"))
	assert.True(t, s.Delete("clip_1.mp4"))

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, "clip_2.mp4", list[0].Name)

	list[0].Name = "mutated"
	_, ok := s.Get("clip_2.mp4")
	assert.True(t, ok, "List returns a copy")
}

func TestStore_PersistWritesLedger(t *testing.T) {
	dir := t.TempDir()
	s := NewStore()
	for _, c := range sampleClips() {
		s.Append(c)
	}
	require.NoError(t, s.Persist(dir))

	data, err := os.ReadFile(filepath.Join(dir, LedgerFilename))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "S.No,Clip Name,Action Class ID,Start Time Stamp,End Time Stamp,Description,Team,Equipment", lines[0])
	assert.Equal(t, `1,clip_1.mp4,kick,00:00:01.000,00:00:03.000,"corner, left side",home,ball`, lines[1])
	assert.Equal(t, `2,clip_2.mp4,pass,00:00:04.500,00:00:06.033,"said ""go""",,`, lines[2])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestStore_PersistIsFullRewrite(t *testing.T) {
	dir := t.TempDir()
	s := NewStore()
	for _, c := range sampleClips() {
		s.Append(c)
	}
	require.NoError(t, s.Persist(dir))
	require.NoError(t, s.Persist(dir))
	s.Delete("clip_1.mp4")
	require.NoError(t, s.Persist(dir))

	loaded := NewStore()
	ok, err := loaded.Load(dir)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, loaded.Len())
	assert.Equal(t, "clip_2.mp4", loaded.List()[0].Name)
}

func TestStore_PersistRoundTrip(t *testing.T) {
	dir := t.TempDir()

	empty := NewStore()
	ok, err := empty.Load(dir)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "clip_1.mp4", empty.NextName())

	s := NewStore()
	for _, c := range sampleClips() {
		s.Append(c)
	}
	require.NoError(t, s.Persist(dir))

	loaded := NewStore()
	ok, err = loaded.Load(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, withoutFrames(sampleClips()), loaded.List())
	for _, c := range loaded.List() {
		assert.False(t, c.HasFrames())
	}
}

func TestStore_LoadRecomputesCounter(t *testing.T) {
	dir := t.TempDir()
	ledger := "S.No,Clip Name,Action Class ID,Start Time Stamp,End Time Stamp,Description,Team,Equipment\n" +
		"1,clip_2.mp4,a,00:00:01.000,00:00:02.000,,,\n" +
		"2,clip_5.mp4,b,00:00:03.000,00:00:04.000,,,\n" +
		"3,renamed.mp4,c,00:00:05.000,00:00:06.000,,,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, LedgerFilename), []byte(ledger), 0o644))

	s := NewStore()
	s.AppendNext(Clip{StartTime: "x", EndTime: "y"})

	ok, err := s.Load(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, s.Len(), "load replaces, never merges into, the session")
	assert.Equal(t, "clip_6.mp4", s.NextName())

	c := s.AppendNext(Clip{})
	assert.Equal(t, "clip_6.mp4", c.Name)
}

func TestStore_LoadEmptyLedgerResetsCounter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewStore().Persist(dir))

	s := NewStore()
	s.AppendNext(Clip{})
	ok, err := s.Load(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "clip_1.mp4", s.NextName())
}

func TestStore_LoadReorderedColumns(t *testing.T) {
	dir := t.TempDir()
	ledger := "Clip Name,Team,Equipment,Description,End Time Stamp,Start Time Stamp,Action Class ID\n" +
		"clip_1.mp4,away,net,,00:00:02.000,00:00:01.000,save\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, LedgerFilename), []byte(ledger), 0o644))

	s := NewStore()
	_, err := s.Load(dir)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	c := s.List()[0]
	assert.Equal(t, "save", c.ActionClass)
	assert.Equal(t, "00:00:01.000", c.StartTime)
	assert.Equal(t, "away", c.Team)
}

func TestStore_LoadParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		ledger string
	}{
		{"empty file", ""},
		{"missing column", "S.No,Clip Name,Action Class ID,Start Time Stamp,End Time Stamp,Description,Team\n1,clip_1.mp4,a,x,y,,\n"},
		{"short row", "S.No,Clip Name,Action Class ID,Start Time Stamp,End Time Stamp,Description,Team,Equipment\n1,clip_1.mp4,a\n"},
		{"bad quoting", "S.No,Clip Name,Action Class ID,Start Time Stamp,End Time Stamp,Description,Team,Equipment\n1,\"clip_1.mp4,a,x,y,,,\n"},
		{"empty name", "S.No,Clip Name,Action Class ID,Start Time Stamp,End Time Stamp,Description,Team,Equipment\n1,,a,x,y,,,\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, LedgerFilename), []byte(tt.ledger), 0o644))

			s := NewStore()
			s.Append(sampleClips()[0])

			_, err := s.Load(dir)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, 1, s.Len(), "failed load leaves the store untouched")
		})
	}
}

func TestStore_PersistMissingDir(t *testing.T) {
	s := NewStore()
	err := s.Persist(filepath.Join(t.TempDir(), "missing"))
	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
	assert.Equal(t, "persist", ioe.Op)
}

func TestHasLedger(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, HasLedger(dir))
	assert.False(t, HasLedger(""))
	require.NoError(t, NewStore().Persist(dir))
	assert.True(t, HasLedger(dir))
}
