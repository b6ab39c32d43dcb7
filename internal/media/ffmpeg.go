package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxStderrBytes = 8 * 1024

// FFmpegConfig holds binary paths and output encoding settings.
type FFmpegConfig struct {
	FFmpegPath  string
	FFprobePath string
	VideoCodec  string
	CRF         int
	Logger      *slog.Logger
}

// FFmpeg decodes and encodes through ffprobe/ffmpeg subprocesses, moving
// frames as raw RGBA over pipes.
type FFmpeg struct {
	cfg FFmpegConfig
}

// NewFFmpeg creates an FFmpeg with defaults applied to empty fields.
func NewFFmpeg(cfg FFmpegConfig) *FFmpeg {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.VideoCodec == "" {
		cfg.VideoCodec = "libx264"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FFmpeg{cfg: cfg}
}

// Probe reads container and first video stream metadata with ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}

	cmd := exec.CommandContext(ctx, f.cfg.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-count_packets",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe probeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return probe.result()
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		NbFrames   string `json:"nb_frames"`
		NbPackets  string `json:"nb_read_packets"`
		Duration   string `json:"duration"`
	} `json:"streams"`
}

func (p probeOutput) result() (*ProbeResult, error) {
	res := &ProbeResult{}
	if dur, err := strconv.ParseFloat(p.Format.Duration, 64); err == nil {
		res.Duration = dur
	}
	if br, err := strconv.ParseInt(p.Format.BitRate, 10, 64); err == nil {
		res.Bitrate = br
	}

	found := false
	for _, s := range p.Streams {
		switch s.CodecType {
		case "video":
			if found {
				continue
			}
			found = true
			res.Width = s.Width
			res.Height = s.Height
			res.Codec = s.CodecName
			res.FrameRate = ParseFrameRate(s.RFrameRate)
			if n, err := strconv.Atoi(s.NbFrames); err == nil {
				res.FrameCount = n
			} else if n, err := strconv.Atoi(s.NbPackets); err == nil {
				res.FrameCount = n
			}
			if res.FrameCount == 0 {
				dur := res.Duration
				if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > 0 {
					dur = d
				}
				res.FrameCount = int(math.Round(dur * res.FrameRate))
			}
		case "audio":
			if res.AudioCodec == "" {
				res.AudioCodec = s.CodecName
			}
		}
	}
	if !found {
		return nil, errors.New("no video stream")
	}
	return res, nil
}

// OpenReader starts an ffmpeg process decoding from startFrame onward.
// The seek lands half a frame early so that timestamp rounding can never
// skip the requested frame.
func (f *FFmpeg) OpenReader(ctx context.Context, h VideoHandle, startFrame int) (FrameReader, error) {
	if h.Width <= 0 || h.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", h.Width, h.Height)
	}

	seek := 0.0
	if startFrame > 0 && h.FPS > 0 {
		seek = (float64(startFrame) - 0.5) / h.FPS
	}

	args := []string{"-v", "error"}
	if seek > 0 {
		args = append(args, "-ss", strconv.FormatFloat(seek, 'f', 6, 64))
	}
	args = append(args,
		"-i", h.Path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	)

	cmd := exec.CommandContext(ctx, f.cfg.FFmpegPath, args...)
	stderr := &tailBuffer{limit: maxStderrBytes}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	f.cfg.Logger.Debug("decoder started", "start_frame", startFrame, "seek", seek)

	return &rawReader{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		width:  h.Width,
		height: h.Height,
	}, nil
}

type rawReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	width  int
	height int

	closeOnce sync.Once
}

func (r *rawReader) Next() (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	if _, err := io.ReadFull(r.stdout, img.Pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if tail := strings.TrimSpace(r.stderr.String()); tail != "" {
				return nil, fmt.Errorf("%w: %s", io.EOF, truncate(tail, 512))
			}
			return nil, io.EOF
		}
		return nil, err
	}
	return img, nil
}

func (r *rawReader) Close() error {
	r.closeOnce.Do(func() {
		if r.cmd.ProcessState == nil && r.cmd.Process != nil {
			_ = r.cmd.Process.Kill()
		}
		_ = r.stdout.Close()
		// a killed decoder always exits non-zero
		_ = r.cmd.Wait()
	})
	return nil
}

// Create starts an ffmpeg encoder reading raw RGBA frames from stdin.
// Existing files are never overwritten.
func (f *FFmpeg) Create(ctx context.Context, path string, fps float64, width, height int) (FrameWriter, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("invalid frame rate %v", fps)
	}

	cmd := exec.CommandContext(ctx, f.cfg.FFmpegPath, f.encodeArgs(path, fps, width, height)...)
	stderr := &tailBuffer{limit: maxStderrBytes}
	cmd.Stderr = stderr
	cmd.Stdout = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	return &rawWriter{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		bounds: image.Rect(0, 0, width, height),
		logger: f.cfg.Logger,
		path:   path,
		start:  time.Now(),
	}, nil
}

func (f *FFmpeg) encodeArgs(path string, fps float64, width, height int) []string {
	args := []string{
		"-n",
		"-v", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-an",
		"-c:v", f.cfg.VideoCodec,
		"-pix_fmt", "yuv420p",
	}
	if f.cfg.VideoCodec == "libx264" {
		args = append(args, "-crf", strconv.Itoa(f.cfg.CRF), "-preset", "medium")
	}
	return append(args, path)
}

type rawWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	bounds image.Rectangle
	logger *slog.Logger
	path   string
	start  time.Time
	frames int
	closed bool
}

func (w *rawWriter) WriteFrame(img image.Image) error {
	if w.closed {
		return errors.New("writer closed")
	}
	b := img.Bounds()
	if b.Dx() != w.bounds.Dx() || b.Dy() != w.bounds.Dy() {
		return fmt.Errorf("frame size %dx%d does not match output %dx%d",
			b.Dx(), b.Dy(), w.bounds.Dx(), w.bounds.Dy())
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*4 || rgba.Rect.Min != (image.Point{}) {
		rgba = image.NewRGBA(w.bounds)
		draw.Draw(rgba, w.bounds, img, b.Min, draw.Src)
	}
	if _, err := w.stdin.Write(rgba.Pix); err != nil {
		return fmt.Errorf("write raw error: %w: %s", err, truncate(w.stderr.String(), 512))
	}
	w.frames++
	return nil
}

func (w *rawWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.stdin.Close()
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w: %s", err, truncate(w.stderr.String(), 512))
	}
	w.logger.Debug("encoder finished",
		"output", w.path,
		"frames", w.frames,
		"duration_ms", time.Since(w.start).Milliseconds(),
	)
	return nil
}

// ToolInfo describes one external binary.
type ToolInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities reports which external tools the agent can use.
type Capabilities struct {
	FFmpeg     ToolInfo  `json:"ffmpeg"`
	FFprobe    ToolInfo  `json:"ffprobe"`
	VideoCodec string    `json:"video_codec"`
	HasEncoder bool      `json:"has_encoder"`
	ProbedAt   time.Time `json:"probed_at"`
}

// Ready reports whether both decoding and encoding are possible.
func (c *Capabilities) Ready() bool {
	return c.FFmpeg.Available && c.FFprobe.Available && c.HasEncoder
}

// RunDoctor checks the configured binaries and the configured encoder.
func (f *FFmpeg) RunDoctor(ctx context.Context) (*Capabilities, error) {
	caps := &Capabilities{VideoCodec: f.cfg.VideoCodec}
	caps.FFmpeg = toolInfo(ctx, f.cfg.FFmpegPath)
	caps.FFprobe = toolInfo(ctx, f.cfg.FFprobePath)

	if caps.FFmpeg.Available {
		out, err := exec.CommandContext(ctx, caps.FFmpeg.Path, "-hide_banner", "-encoders").Output()
		if err != nil {
			return nil, fmt.Errorf("list encoders: %w", err)
		}
		caps.HasEncoder = bytes.Contains(out, []byte(" "+f.cfg.VideoCodec+" "))
	}
	caps.ProbedAt = time.Now()

	f.cfg.Logger.Info("doctor probe complete",
		"ffmpeg", caps.FFmpeg.Available,
		"ffprobe", caps.FFprobe.Available,
		"encoder", f.cfg.VideoCodec,
		"has_encoder", caps.HasEncoder,
	)
	return caps, nil
}

func toolInfo(ctx context.Context, bin string) ToolInfo {
	path, err := exec.LookPath(bin)
	if err != nil {
		return ToolInfo{Error: err.Error()}
	}
	info := ToolInfo{Available: true, Path: path}
	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		info.Error = err.Error()
		return info
	}
	first, _, _ := strings.Cut(string(out), "\n")
	info.Version = strings.TrimSpace(first)
	return info
}

// tailBuffer keeps only the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(p)
	t.buf.Write(p)
	if t.buf.Len() > t.limit {
		b := t.buf.Bytes()
		tail := append([]byte(nil), b[len(b)-t.limit:]...)
		t.buf.Reset()
		t.buf.Write(tail)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// fileExists reports whether path names an existing file.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
