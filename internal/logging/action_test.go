package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAction_String(t *testing.T) {
	a := Action{Time: time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local), Message: "Clip marked: clip_1.mp4"}
	assert.Equal(t, "[2026-03-04 05:06:07] Clip marked: clip_1.mp4", a.String())
}

func TestActionLog_AppendsToDir(t *testing.T) {
	dir := t.TempDir()
	l := NewActionLog(nil)
	l.now = fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local))

	l.Record("before dir")
	l.SetDir(dir)
	l.Record("Speed changed to %dx", -4)
	l.Record("Start marked at %s", "00:00:01.000")

	data, err := os.ReadFile(filepath.Join(dir, ActionLogFilename))
	require.NoError(t, err)
	assert.Equal(t,
		"[2026-01-02 03:04:05] Speed changed to -4x\n[2026-01-02 03:04:05] Start marked at 00:00:01.000\n",
		string(data))

	assert.Len(t, l.History(), 3)
}

func TestActionLog_UnwritableDirDoesNotFail(t *testing.T) {
	l := NewActionLog(nil)
	l.SetDir(filepath.Join(t.TempDir(), "missing", "nested"))

	a := l.Record("still recorded")
	assert.Equal(t, "still recorded", a.Message)
	assert.Len(t, l.History(), 1)
}

func TestActionLog_Subscribe(t *testing.T) {
	l := NewActionLog(nil)
	ch, cancel := l.Subscribe(4)

	l.Record("one")
	l.Record("two")

	assert.Equal(t, "one", (<-ch).Message)
	assert.Equal(t, "two", (<-ch).Message)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	l.Record("after cancel")
}

type recordingSink struct{ got []string }

func (s *recordingSink) RecordAction(a Action) error {
	s.got = append(s.got, a.Message)
	return nil
}

func TestActionLog_Sink(t *testing.T) {
	l := NewActionLog(nil)
	sink := &recordingSink{}
	l.AddSink(sink)

	l.Record("Clip deleted: %s", "clip_3.mp4")
	assert.Equal(t, []string{"Clip deleted: clip_3.mp4"}, sink.got)
}

func TestReadActionLog(t *testing.T) {
	dir := t.TempDir()

	actions, err := ReadActionLog(dir)
	require.NoError(t, err)
	assert.Empty(t, actions)

	content := strings.Join([]string{
		"[2026-01-02 03:04:05] Application started",
		"",
		"free-form line",
		"[2026-01-02 03:04:09] Clip saved: clip_1.mp4",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ActionLogFilename), []byte(content), 0o644))

	actions, err = ReadActionLog(dir)
	require.NoError(t, err)
	require.Len(t, actions, 3)

	assert.Equal(t, "Application started", actions[0].Message)
	assert.Equal(t, 5, actions[0].Time.Second())
	assert.Equal(t, "free-form line", actions[1].Message)
	assert.True(t, actions[1].Time.IsZero())
	assert.Equal(t, "[2026-01-02 03:04:09] Clip saved: clip_1.mp4", actions[2].String())
}
