package media_test

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/media/mediatest"
)

func videoFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake"), 0o644))
	return path
}

func openSource(t *testing.T, frames int, fps float64) (*media.Source, *mediatest.Decoder) {
	t.Helper()
	dec := mediatest.NewDecoder(frames, fps)
	src := media.NewSource(dec, mediatest.NewEncoder(), nil)
	_, err := src.Open(context.Background(), videoFile(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	return src, dec
}

func TestSource_OpenMissingFile(t *testing.T) {
	src := media.NewSource(mediatest.NewDecoder(10, 30), mediatest.NewEncoder(), nil)

	_, err := src.Open(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"))
	var oe *media.OpenError
	require.ErrorAs(t, err, &oe)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, ok := src.Handle()
	assert.False(t, ok)
}

func TestSource_OpenProbeFailureKeepsPrevious(t *testing.T) {
	dec := mediatest.NewDecoder(300, 30)
	src := media.NewSource(dec, mediatest.NewEncoder(), nil)
	first := videoFile(t)
	_, err := src.Open(context.Background(), first)
	require.NoError(t, err)

	dec.ProbeErr = errors.New("moov atom not found")
	_, err = src.Open(context.Background(), videoFile(t))
	var oe *media.OpenError
	require.ErrorAs(t, err, &oe)

	h, ok := src.Handle()
	require.True(t, ok)
	assert.Equal(t, first, h.Path)
}

func TestSource_Handle(t *testing.T) {
	src, _ := openSource(t, 300, 30)

	h, ok := src.Handle()
	require.True(t, ok)
	assert.Equal(t, 300, h.FrameCount)
	assert.Equal(t, 30.0, h.FPS)
	assert.Equal(t, "00:00:10.000", h.Duration())
	assert.Equal(t, "00:00:01.000", src.FramesToTime(30))
}

func TestSource_SeekClamps(t *testing.T) {
	src, _ := openSource(t, 300, 30)

	img, frame, err := src.Seek(context.Background(), 5000)
	require.NoError(t, err)
	assert.Equal(t, 299, frame)
	assert.Equal(t, 299, mediatest.FrameIndex(img))

	img, frame, err = src.Seek(context.Background(), -3)
	require.NoError(t, err)
	assert.Equal(t, 0, frame)
	assert.Equal(t, 0, mediatest.FrameIndex(img))
}

func TestSource_SeekReusesPreviewCursor(t *testing.T) {
	src, dec := openSource(t, 300, 30)
	ctx := context.Background()

	for _, f := range []int{10, 11, 12, 20} {
		img, got, err := src.Seek(ctx, f)
		require.NoError(t, err)
		assert.Equal(t, f, got)
		assert.Equal(t, f, mediatest.FrameIndex(img))
	}
	assert.Equal(t, []int{10}, dec.Opens(), "short forward steps decode through")

	_, _, err := src.Seek(ctx, 5)
	require.NoError(t, err)
	_, _, err = src.Seek(ctx, 250)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 5, 250}, dec.Opens())
	assert.Equal(t, 1, dec.Active())
}

func TestSource_SeekPastDecodableEnd(t *testing.T) {
	src, dec := openSource(t, 300, 30)
	dec.Available = 100

	_, _, err := src.Seek(context.Background(), 200)
	var de *media.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 200, de.Frame)
	assert.Equal(t, 0, dec.Active())

	img, _, err := src.Seek(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 50, mediatest.FrameIndex(img))
}

func TestSource_NotOpen(t *testing.T) {
	src := media.NewSource(mediatest.NewDecoder(10, 30), mediatest.NewEncoder(), nil)

	_, _, err := src.Seek(context.Background(), 0)
	assert.ErrorIs(t, err, media.ErrNotOpen)

	_, err = src.OpenCursor(context.Background(), 0)
	assert.ErrorIs(t, err, media.ErrNotOpen)

	_, err = src.Create(context.Background(), "x.mp4")
	assert.ErrorIs(t, err, media.ErrNotOpen)

	assert.Equal(t, "00:00:00.000", src.FramesToTime(100))
}

func TestSource_CursorIndependentOfPreview(t *testing.T) {
	src, _ := openSource(t, 300, 30)
	ctx := context.Background()

	_, _, err := src.Seek(ctx, 100)
	require.NoError(t, err)

	cur, err := src.OpenCursor(ctx, 30)
	require.NoError(t, err)
	defer cur.Close()

	var got []int
	for i := 0; i < 3; i++ {
		img, err := cur.Next()
		require.NoError(t, err)
		got = append(got, mediatest.FrameIndex(img))
	}
	assert.Equal(t, []int{30, 31, 32}, got)

	img, frame, err := src.Seek(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, 101, frame)
	assert.Equal(t, 101, mediatest.FrameIndex(img))
}

func TestSource_CloseReleasesPreview(t *testing.T) {
	src, dec := openSource(t, 300, 30)

	_, _, err := src.Seek(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, dec.Active())

	require.NoError(t, src.Close())
	assert.Equal(t, 0, dec.Active())
	_, ok := src.Handle()
	assert.False(t, ok)
}

func TestThumbnail(t *testing.T) {
	big := image.NewRGBA(image.Rect(0, 0, 1920, 1080))
	thumb := media.Thumbnail(big, 640, 360)
	assert.Equal(t, 640, thumb.Bounds().Dx())
	assert.Equal(t, 360, thumb.Bounds().Dy())

	tall := image.NewRGBA(image.Rect(0, 0, 720, 1440))
	thumb = media.Thumbnail(tall, 640, 360)
	assert.Equal(t, 180, thumb.Bounds().Dx())
	assert.Equal(t, 360, thumb.Bounds().Dy())

	small := mediatest.Frame(3)
	assert.Same(t, small, media.Thumbnail(small, 640, 360))

	data, err := media.EncodeJPEG(thumb, 80)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])
}
