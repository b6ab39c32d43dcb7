package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/clipforge/clipforge-agent/internal/clips"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/media"
)

// frameBuffer bounds how far decoding may run ahead of encoding.
const frameBuffer = 8

// Source is the part of media.Source the exporter borrows per run.
type Source interface {
	Handle() (media.VideoHandle, bool)
	OpenCursor(ctx context.Context, start int) (media.FrameReader, error)
	Create(ctx context.Context, path string) (media.FrameWriter, error)
}

// Ledger is the clip sequence being exported.
type Ledger interface {
	List() []clips.Clip
	Persist(dir string) error
}

// Recorder receives operator-visible action lines.
type Recorder interface {
	Record(format string, args ...any) logging.Action
}

// Exporter writes each marked range to its own file and then regenerates
// the ledger. It keeps no state between runs.
type Exporter struct {
	logger  *slog.Logger
	actions Recorder
}

func NewExporter(logger *slog.Logger, actions Recorder) *Exporter {
	if logger == nil {
		logger = logging.Discard()
	}
	if actions == nil {
		actions = logging.NewActionLog(logger)
	}
	return &Exporter{logger: logger, actions: actions}
}

// SaveAll exports every clip in ledger order into dir. Existing outputs are
// skipped, never overwritten. A source that runs out early produces a
// partial export and the run continues. A write failure aborts the run with
// an *clips.IOError; files already completed stay on disk. The ledger is
// persisted once, after all clips, including skipped ones.
func (e *Exporter) SaveAll(ctx context.Context, src Source, ledger Ledger, dir string) (Report, error) {
	var report Report

	info, err := os.Stat(dir)
	if err != nil {
		return report, &clips.IOError{Op: "export", Path: dir, Err: err}
	}
	if !info.IsDir() {
		return report, &clips.IOError{Op: "export", Path: dir, Err: errors.New("not a directory")}
	}

	h, ok := src.Handle()
	if !ok {
		return report, clips.ErrNoVideo
	}

	for _, c := range ledger.List() {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		ev, err := e.exportClip(ctx, src, h, c, dir)
		report.add(ev)
		if err != nil {
			e.actions.Record("Error saving clips: %v", err)
			return report, err
		}
	}

	if err := ledger.Persist(dir); err != nil {
		e.actions.Record("Error saving clips: %v", err)
		return report, err
	}
	report.LedgerPath = filepath.Join(dir, clips.LedgerFilename)
	e.actions.Record("CSV exported: %s", clips.LedgerFilename)

	e.logger.Info("export complete",
		"exported", len(report.Exported),
		"skipped", len(report.Skipped),
		"partial", len(report.Partial),
		"unresolved", len(report.Unresolved),
	)
	return report, nil
}

func (e *Exporter) exportClip(ctx context.Context, src Source, h media.VideoHandle, c clips.Clip, dir string) (Event, error) {
	out := filepath.Join(dir, c.Name)
	logger := logging.WithClip(e.logger, c.Name)

	if _, err := os.Stat(out); err == nil {
		e.actions.Record("Clip already exists, skipped: %s", c.Name)
		return Event{Clip: c.Name, Kind: EventSkipped}, nil
	}

	if !c.HasFrames() {
		e.actions.Record("Clip not saved, frame range unknown: %s", c.Name)
		return Event{Clip: c.Name, Kind: EventUnresolved}, nil
	}

	start := c.Frames.Start
	end := min(c.Frames.End, h.LastFrame())
	expected := c.Frames.Len()

	written, decodeErr, err := e.pipe(ctx, src, start, end, out)
	if err != nil {
		_ = os.Remove(out)
		logger.Error("clip export failed", "frames", written, "error", err)
		return Event{Clip: c.Name, Kind: EventFailed, Frames: written, Expected: expected, Error: err.Error()}, err
	}

	ev := Event{Clip: c.Name, Frames: written, Expected: expected}
	if written < expected {
		ev.Kind = EventPartial
		if decodeErr != nil {
			ev.Error = decodeErr.Error()
		}
		logger.Warn("source exhausted before clip end",
			"frames", written, "expected", expected, "error", decodeErr)
		e.actions.Record("Clip partially saved: %s (%d of %d frames)", c.Name, written, expected)
		return ev, nil
	}

	ev.Kind = EventExported
	logger.Info("clip exported", "frames", written)
	e.actions.Record("Clip saved: %s", c.Name)
	return ev, nil
}

// pipe decodes [start, end] on one goroutine and encodes on another. The
// output file is created on the first decoded frame, so a range that yields
// nothing leaves no file behind. decodeErr is the reason decoding stopped
// early, if it did; err is a write failure or cancellation.
func (e *Exporter) pipe(ctx context.Context, src Source, start, end int, out string) (written int, decodeErr, err error) {
	g, gctx := errgroup.WithContext(ctx)
	frames := make(chan image.Image, frameBuffer)

	g.Go(func() error {
		defer close(frames)

		cur, err := src.OpenCursor(gctx, start)
		if err != nil {
			decodeErr = err
			return nil
		}
		defer cur.Close()

		for i := start; i <= end; i++ {
			img, err := cur.Next()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				decodeErr = &media.DecodeError{Frame: i, Err: err}
				return nil
			}
			select {
			case frames <- img:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		var w media.FrameWriter
		for img := range frames {
			if w == nil {
				var err error
				w, err = src.Create(ctx, out)
				if err != nil {
					return &clips.IOError{Op: "create", Path: out, Err: err}
				}
			}
			if err := w.WriteFrame(img); err != nil {
				_ = w.Close()
				return &clips.IOError{Op: "write", Path: out, Err: err}
			}
			written++
		}
		if w == nil {
			return nil
		}
		if err := w.Close(); err != nil {
			return &clips.IOError{Op: "finalize", Path: out, Err: err}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return written, decodeErr, err
	}
	if ctx.Err() != nil {
		return written, decodeErr, fmt.Errorf("export cancelled: %w", ctx.Err())
	}
	return written, decodeErr, nil
}
