package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/clipforge/clipforge-agent/internal/catalog"
	"github.com/clipforge/clipforge-agent/internal/clips"
	"github.com/clipforge/clipforge-agent/internal/export"
	"github.com/clipforge/clipforge-agent/internal/session"
)

const refreshInterval = 250 * time.Millisecond

// Controls is the part of the session the tray menu drives.
type Controls interface {
	Status() session.Status
	Play() error
	Pause()
	MarkStart() (clips.Mark, error)
	MarkEnd(md clips.Metadata) (clips.Clip, error)
	ClearMark()
	SaveAll(ctx context.Context, dir string) (export.Report, error)
}

type Tray struct {
	session Controls
	runner  *catalog.Runner
	logger  *slog.Logger

	statusItem *systray.MenuItem
	clipsItem  *systray.MenuItem
	playItem   *systray.MenuItem
	markItem   *systray.MenuItem
	endItem    *systray.MenuItem
	clearItem  *systray.MenuItem
	saveItem   *systray.MenuItem
	jobsItem   *systray.MenuItem

	mu   sync.Mutex
	stop chan struct{}

	onQuit func()
}

type TrayConfig struct {
	Session Controls
	Runner  *catalog.Runner
	Logger  *slog.Logger
	OnQuit  func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		session: cfg.Session,
		runner:  cfg.Runner,
		logger:  cfg.Logger,
		onQuit:  cfg.OnQuit,
		stop:    make(chan struct{}),
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes())
	systray.SetTitle("ClipForge")
	systray.SetTooltip("ClipForge Agent")

	t.statusItem = systray.AddMenuItem("No video loaded", "Playback position")
	t.statusItem.Disable()

	t.clipsItem = systray.AddMenuItem("Clips: 0", "Marked clips")
	t.clipsItem.Disable()

	systray.AddSeparator()

	t.playItem = systray.AddMenuItem("Play", "Start or pause playback")
	t.markItem = systray.AddMenuItem("Mark Start", "Mark the start of a clip at the current frame")
	t.endItem = systray.AddMenuItem("Mark End", "Commit the clip at the current frame")
	t.clearItem = systray.AddMenuItem("Clear Mark", "Discard the pending start")
	t.saveItem = systray.AddMenuItem("Save All Clips", "Export every clip to the save directory")

	systray.AddSeparator()

	t.jobsItem = systray.AddMenuItem("Pause Exports", "Pause queued export jobs")
	if t.runner == nil {
		t.jobsItem.Hide()
	}

	quitItem := systray.AddMenuItem("Quit", "Quit ClipForge Agent")

	go t.refreshLoop()

	go func() {
		for {
			select {
			case <-t.playItem.ClickedCh:
				t.togglePlay()
			case <-t.markItem.ClickedCh:
				if _, err := t.session.MarkStart(); err != nil {
					t.logger.Warn("mark start from tray failed", "error", err)
				}
			case <-t.endItem.ClickedCh:
				if _, err := t.session.MarkEnd(clips.Metadata{}); err != nil {
					t.logger.Warn("mark end from tray failed", "error", err)
				}
			case <-t.clearItem.ClickedCh:
				t.session.ClearMark()
			case <-t.saveItem.ClickedCh:
				go t.saveAll()
			case <-t.jobsItem.ClickedCh:
				t.togglePause()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
			t.refresh()
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	close(t.stop)
	t.logger.Info("system tray exiting")
}

func (t *Tray) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.session.Status()
	t.statusItem.SetTitle(statusTitle(st))
	t.clipsItem.SetTitle(clipsTitle(st))
	t.playItem.SetTitle(playTitle(st))

	setEnabled(t.playItem, st.Loaded && !st.Saving)
	setEnabled(t.markItem, st.Loaded)
	setEnabled(t.endItem, st.Pending != nil)
	setEnabled(t.clearItem, st.Pending != nil)
	setEnabled(t.saveItem, st.ClipCount > 0 && st.SaveDir != "" && !st.Saving)
}

func setEnabled(item *systray.MenuItem, on bool) {
	if on {
		item.Enable()
	} else {
		item.Disable()
	}
}

func (t *Tray) togglePlay() {
	if t.session.Status().Playing {
		t.session.Pause()
		return
	}
	if err := t.session.Play(); err != nil {
		t.logger.Warn("play from tray failed", "error", err)
	}
}

func (t *Tray) saveAll() {
	report, err := t.session.SaveAll(context.Background(), "")
	if err != nil {
		t.logger.Error("save from tray failed", "error", err)
		return
	}
	t.logger.Info("save from tray finished", "exported", len(report.Exported), "skipped", len(report.Skipped))
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.jobsItem.SetTitle("Pause Exports")
	} else {
		t.runner.Pause()
		t.jobsItem.SetTitle("Resume Exports")
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}

func statusTitle(st session.Status) string {
	if !st.Loaded {
		return "No video loaded"
	}
	if st.Saving {
		return "Saving clips..."
	}
	state := "Paused"
	if st.Playing {
		state = "Playing"
	}
	return fmt.Sprintf("%s %s / %s (%s)", state, st.Time, st.Duration, st.SpeedLabel)
}

func clipsTitle(st session.Status) string {
	if st.Pending != nil {
		return fmt.Sprintf("Clips: %d (marking from %s)", st.ClipCount, st.Pending.StartTime)
	}
	return fmt.Sprintf("Clips: %d", st.ClipCount)
}

func playTitle(st session.Status) string {
	if st.Playing {
		return "Pause"
	}
	return "Play"
}
