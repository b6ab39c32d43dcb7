package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge-agent/internal/clips"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/media/mediatest"
)

type fixture struct {
	src     *media.Source
	dec     *mediatest.Decoder
	enc     *mediatest.Encoder
	store   *clips.Store
	actions *logging.ActionLog
	exp     *Exporter
	dir     string
}

func newFixture(t *testing.T, frames int, fps float64) *fixture {
	t.Helper()
	in := filepath.Join(t.TempDir(), "match.mp4")
	require.NoError(t, os.WriteFile(in, []byte("video"), 0o644))

	dec := mediatest.NewDecoder(frames, fps)
	enc := mediatest.NewEncoder()
	src := media.NewSource(dec, enc, nil)
	_, err := src.Open(context.Background(), in)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	actions := logging.NewActionLog(nil)
	return &fixture{
		src:     src,
		dec:     dec,
		enc:     enc,
		store:   clips.NewStore(),
		actions: actions,
		exp:     NewExporter(nil, actions),
		dir:     t.TempDir(),
	}
}

func (f *fixture) add(start, end int, md clips.Metadata) clips.Clip {
	return f.store.AppendNext(clips.Clip{
		StartTime: media.FramesToTime(start, 30),
		EndTime:   media.FramesToTime(end, 30),
		Metadata:  md,
		Frames:    &media.FrameRange{Start: start, End: end},
	})
}

func (f *fixture) messages() []string {
	var out []string
	for _, a := range f.actions.History() {
		out = append(out, a.Message)
	}
	return out
}

func seq(from, to int) []int {
	var out []int
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestSaveAll_ExportsExactRange(t *testing.T) {
	f := newFixture(t, 300, 30)
	c := f.add(30, 90, clips.Metadata{ActionClass: "kick"})

	report, err := f.exp.SaveAll(context.Background(), f.src, f.store, f.dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"clip_1.mp4"}, report.Exported)
	assert.Empty(t, report.Skipped)
	assert.Empty(t, report.Partial)

	out := filepath.Join(f.dir, c.Name)
	got := f.enc.Frames(out)
	assert.Len(t, got, 61)
	assert.Equal(t, seq(30, 90), got)
	assert.FileExists(t, out)

	loaded := clips.NewStore()
	ok, err := loaded.Load(f.dir)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, loaded.Len())
	assert.Equal(t, "clip_1.mp4", loaded.List()[0].Name)
	assert.Equal(t, filepath.Join(f.dir, clips.LedgerFilename), report.LedgerPath)

	assert.Equal(t, 0, f.dec.Active(), "export cursors are released")
	assert.Equal(t, []string{"Clip saved: clip_1.mp4", "CSV exported: clips_metadata.csv"}, f.messages())
}

func TestSaveAll_SkipsExistingOutputs(t *testing.T) {
	f := newFixture(t, 300, 30)
	f.add(30, 90, clips.Metadata{})

	_, err := f.exp.SaveAll(context.Background(), f.src, f.store, f.dir)
	require.NoError(t, err)
	out := filepath.Join(f.dir, "clip_1.mp4")
	before, err := os.ReadFile(out)
	require.NoError(t, err)

	f.add(100, 110, clips.Metadata{})
	report, err := f.exp.SaveAll(context.Background(), f.src, f.store, f.dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"clip_1.mp4"}, report.Skipped)
	assert.Equal(t, []string{"clip_2.mp4"}, report.Exported)

	after, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, before, after, "first output is never rewritten")
	assert.Equal(t, 1, countCreates(f.enc.Created(), out))

	loaded := clips.NewStore()
	_, err = loaded.Load(f.dir)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len(), "skipped clips stay in the ledger")
}

func countCreates(paths []string, target string) int {
	n := 0
	for _, p := range paths {
		if p == target {
			n++
		}
	}
	return n
}

func TestSaveAll_PartialWhenSourceRunsOut(t *testing.T) {
	f := newFixture(t, 300, 30)
	f.dec.Available = 250
	f.add(200, 280, clips.Metadata{})
	f.add(10, 20, clips.Metadata{})

	report, err := f.exp.SaveAll(context.Background(), f.src, f.store, f.dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"clip_1.mp4"}, report.Partial)
	assert.Equal(t, []string{"clip_2.mp4"}, report.Exported, "later clips still export")
	assert.Equal(t, seq(200, 249), f.enc.Frames(filepath.Join(f.dir, "clip_1.mp4")))

	ev := report.Events[0]
	assert.Equal(t, EventPartial, ev.Kind)
	assert.Equal(t, 50, ev.Frames)
	assert.Equal(t, 81, ev.Expected)
	assert.NotEmpty(t, ev.Error)
	assert.Contains(t, f.messages(), "Clip partially saved: clip_1.mp4 (50 of 81 frames)")
	assert.Equal(t, 0, f.dec.Active())
}

func TestSaveAll_NoFramesLeavesNoFile(t *testing.T) {
	f := newFixture(t, 300, 30)
	f.dec.Available = 100
	f.add(150, 160, clips.Metadata{})

	report, err := f.exp.SaveAll(context.Background(), f.src, f.store, f.dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"clip_1.mp4"}, report.Partial)
	assert.NoFileExists(t, filepath.Join(f.dir, "clip_1.mp4"))
}

func TestSaveAll_UnresolvedReloadedClips(t *testing.T) {
	f := newFixture(t, 300, 30)
	f.store.Append(clips.Clip{Name: "clip_4.mp4", StartTime: "00:00:01.000", EndTime: "00:00:02.000"})

	report, err := f.exp.SaveAll(context.Background(), f.src, f.store, f.dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"clip_4.mp4"}, report.Unresolved)
	assert.Empty(t, f.enc.Created())
	assert.True(t, clips.HasLedger(f.dir))
}

func TestSaveAll_WriteFailureAborts(t *testing.T) {
	f := newFixture(t, 300, 30)
	f.add(0, 10, clips.Metadata{})
	f.add(20, 40, clips.Metadata{})
	f.add(50, 60, clips.Metadata{})
	f.enc.FailAfter = 15

	report, err := f.exp.SaveAll(context.Background(), f.src, f.store, f.dir)
	var ioe *clips.IOError
	require.ErrorAs(t, err, &ioe)

	assert.Equal(t, []string{"clip_1.mp4"}, report.Exported)
	assert.Equal(t, []string{"clip_2.mp4"}, report.Failed)
	assert.FileExists(t, filepath.Join(f.dir, "clip_1.mp4"), "completed clips stay on disk")
	assert.NoFileExists(t, filepath.Join(f.dir, "clip_2.mp4"))
	assert.NoFileExists(t, filepath.Join(f.dir, "clip_3.mp4"))
	assert.False(t, clips.HasLedger(f.dir))
	assert.Equal(t, 0, f.dec.Active())
}

func TestSaveAll_Preconditions(t *testing.T) {
	f := newFixture(t, 300, 30)
	f.add(0, 10, clips.Metadata{})

	_, err := f.exp.SaveAll(context.Background(), f.src, f.store, filepath.Join(f.dir, "missing"))
	var ioe *clips.IOError
	assert.ErrorAs(t, err, &ioe)

	require.NoError(t, f.src.Close())
	_, err = f.exp.SaveAll(context.Background(), f.src, f.store, f.dir)
	assert.True(t, errors.Is(err, clips.ErrNoVideo))
}

func TestSaveAll_Cancelled(t *testing.T) {
	f := newFixture(t, 300, 30)
	f.add(0, 10, clips.Metadata{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.exp.SaveAll(ctx, f.src, f.store, f.dir)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, clips.HasLedger(f.dir))
}
