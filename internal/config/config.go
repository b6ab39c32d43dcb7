// Package config provides configuration management for the ClipForge agent.
// Configuration is layered: defaults, an optional YAML file, an optional .env
// file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort     = 8797
	DefaultLogLevel = "info"
	DefaultDataDir  = ".clipforge"

	DefaultFFmpegPath    = "ffmpeg"
	DefaultFFprobePath   = "ffprobe"
	DefaultVideoCodec    = "libx264"
	DefaultCRF           = 18
	DefaultPreviewWidth  = 640
	DefaultPreviewHeight = 360

	// Environment variable names
	EnvConfigFile  = "CLIPFORGE_CONFIG"
	EnvPort        = "CLIPFORGE_PORT"
	EnvLogLevel    = "CLIPFORGE_LOG_LEVEL"
	EnvDataDir     = "CLIPFORGE_DATA_DIR"
	EnvSaveDir     = "CLIPFORGE_SAVE_DIR"
	EnvFFmpegPath  = "CLIPFORGE_FFMPEG"
	EnvFFprobePath = "CLIPFORGE_FFPROBE"
	EnvHeadless    = "CLIPFORGE_HEADLESS"
	EnvVideoCodec  = "CLIPFORGE_VIDEO_CODEC"
	EnvCRF         = "CLIPFORGE_CRF"

	// DefaultConfigFile is looked up in the working directory when
	// CLIPFORGE_CONFIG is not set.
	DefaultConfigFile = "clipforge.yaml"

	// Database filename
	DBFilename = "clipforge.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	SaveDir() string
	FFmpegPath() string
	FFprobePath() string
	Headless() bool
	VideoCodec() string
	CRF() int
	PreviewSize() (width, height int)
}

// fileConfig mirrors the YAML document.
type fileConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`
	SaveDir  string `yaml:"save_dir"`
	Headless *bool  `yaml:"headless"`

	FFmpeg struct {
		BinaryPath string `yaml:"binary_path"`
		ProbePath  string `yaml:"probe_path"`
		VideoCodec string `yaml:"video_codec"`
		CRF        int    `yaml:"crf"`
	} `yaml:"ffmpeg"`

	Preview struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"preview"`
}

// EnvConfig holds the resolved configuration.
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	saveDir  string
	headless bool

	ffmpegPath  string
	ffprobePath string
	videoCodec  string
	crf         int

	previewWidth  int
	previewHeight int
}

// New creates an EnvConfig with defaults, then applies the YAML file, the
// .env file and environment variable overrides in that order.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		dataDir:       defaultDataDir(),
		ffmpegPath:    DefaultFFmpegPath,
		ffprobePath:   DefaultFFprobePath,
		videoCodec:    DefaultVideoCodec,
		crf:           DefaultCRF,
		previewWidth:  DefaultPreviewWidth,
		previewHeight: DefaultPreviewHeight,
	}

	path := os.Getenv(EnvConfigFile)
	if path == "" {
		path = DefaultConfigFile
	}
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}

	_ = godotenv.Load() // .env never overrides variables already set

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Port != 0 {
		if err := validPort(fc.Port); err != nil {
			return fmt.Errorf("invalid port in %s: %w", path, err)
		}
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.DataDir != "" {
		c.dataDir = fc.DataDir
	}
	if fc.SaveDir != "" {
		c.saveDir = fc.SaveDir
	}
	if fc.Headless != nil {
		c.headless = *fc.Headless
	}
	if fc.FFmpeg.BinaryPath != "" {
		c.ffmpegPath = fc.FFmpeg.BinaryPath
	}
	if fc.FFmpeg.ProbePath != "" {
		c.ffprobePath = fc.FFmpeg.ProbePath
	}
	if fc.FFmpeg.VideoCodec != "" {
		c.videoCodec = fc.FFmpeg.VideoCodec
	}
	if fc.FFmpeg.CRF != 0 {
		c.crf = fc.FFmpeg.CRF
	}
	if fc.Preview.Width > 0 && fc.Preview.Height > 0 {
		c.previewWidth = fc.Preview.Width
		c.previewHeight = fc.Preview.Height
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if err := validPort(port); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		c.dataDir = dd
	}
	if sd := os.Getenv(EnvSaveDir); sd != "" {
		c.saveDir = sd
	}
	if fp := os.Getenv(EnvFFmpegPath); fp != "" {
		c.ffmpegPath = fp
	}
	if fp := os.Getenv(EnvFFprobePath); fp != "" {
		c.ffprobePath = fp
	}
	if vc := os.Getenv(EnvVideoCodec); vc != "" {
		c.videoCodec = vc
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = headless
	}

	if v := os.Getenv(EnvCRF); v != "" {
		crf, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCRF, err)
		}
		if crf < 0 || crf > 51 {
			return fmt.Errorf("invalid %s: crf must be between 0 and 51", EnvCRF)
		}
		c.crf = crf
	}
	return nil
}

func validPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// SaveDir returns the default clip save directory, empty when unset.
func (c *EnvConfig) SaveDir() string {
	return c.saveDir
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) VideoCodec() string {
	return c.videoCodec
}

func (c *EnvConfig) CRF() int {
	return c.crf
}

// PreviewSize returns the thumbnail dimensions used for preview frames.
func (c *EnvConfig) PreviewSize() (int, int) {
	return c.previewWidth, c.previewHeight
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
