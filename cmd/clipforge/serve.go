package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/api"
	"github.com/clipforge/clipforge-agent/internal/catalog"
	"github.com/clipforge/clipforge-agent/internal/config"
	"github.com/clipforge/clipforge-agent/internal/db"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/playback"
	"github.com/clipforge/clipforge-agent/internal/session"
	"github.com/clipforge/clipforge-agent/internal/ui"
)

const doctorTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		headless bool
		video    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent with its local HTTP API and system tray",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), headless, video)
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "run without the system tray")
	cmd.Flags().StringVar(&video, "video", "", "video to open at startup")
	return cmd
}

func run(out io.Writer, forceHeadless bool, video string) error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting clipforge agent", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	deviceID, err := ensureSecret(repo, catalog.ConfigDeviceID, 16)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureSecret(repo, catalog.ConfigAuthToken, 32)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintf(out, "║  %-57s║\n", "CLIPFORGE AGENT v"+config.Version)
	fmt.Fprintln(out, "╠═══════════════════════════════════════════════════════════╣")
	fmt.Fprintf(out, "║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Fprintf(out, "║  Auth Token: %-45s ║\n", authToken)
	fmt.Fprintf(out, "║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Fprintln(out, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	ffmpeg := media.NewFFmpeg(media.FFmpegConfig{
		FFmpegPath:  cfg.FFmpegPath(),
		FFprobePath: cfg.FFprobePath(),
		VideoCodec:  cfg.VideoCodec(),
		CRF:         cfg.CRF(),
		Logger:      logger,
	})

	doctor := media.NewCachedDoctor(ffmpeg, logger)
	initCtx, initCancel := context.WithTimeout(context.Background(), doctorTimeout)
	if caps, err := doctor.Refresh(initCtx); err != nil {
		logger.Warn("initial doctor probe failed", "error", err)
	} else if !caps.Ready() {
		logger.Warn("ffmpeg toolchain incomplete, opening and exporting will fail",
			"ffmpeg", caps.FFmpeg.Available,
			"ffprobe", caps.FFprobe.Available,
			"encoder", caps.HasEncoder,
		)
	} else {
		logger.Info("ffmpeg toolchain detected", "ffmpeg", caps.FFmpeg.Version, "codec", caps.VideoCodec)
	}
	initCancel()

	catalogSvc := catalog.NewService(repo, logger)

	actions := logging.NewActionLog(logger)
	actions.AddSink(catalogSvc)

	saveDir := cfg.SaveDir()
	if saveDir == "" {
		if last, err := catalogSvc.LastSaveDir(context.Background()); err == nil {
			if fi, statErr := os.Stat(last); statErr == nil && fi.IsDir() {
				saveDir = last
			}
		}
	}

	previewW, previewH := cfg.PreviewSize()
	sess := session.New(session.Options{
		Decoder:       ffmpeg,
		Encoder:       ffmpeg,
		Logger:        logger,
		Actions:       actions,
		Journal:       catalogSvc,
		SaveDir:       saveDir,
		PreviewWidth:  previewW,
		PreviewHeight: previewH,
	})
	defer sess.Close()

	if saveDir != "" {
		logger.Info("using save directory", "dir", saveDir)
	}

	if video != "" {
		openCtx, openCancel := context.WithTimeout(context.Background(), doctorTimeout)
		if _, err := sess.OpenVideo(openCtx, video); err != nil {
			logger.Warn("failed to open startup video", "path", video, "error", err)
		}
		openCancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := catalog.NewRunner(catalogSvc, repo, sess, logger)
	go runner.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Session:        sess,
		CatalogService: catalogSvc,
		PlaybackServer: playback.NewServer(logger),
		Repository:     repo,
		Runner:         runner,
		Doctor:         doctor,
		Logger:         logger,
		StartTime:      startTime,
		DeviceID:       deviceID,
		Version:        config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if forceHeadless || cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Session: sess,
			Runner:  runner,
			Logger:  logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// ensureSecret returns the hex value stored under key, generating and
// storing n random bytes on first use.
func ensureSecret(repo catalog.Repository, key string, n int) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	value := hex.EncodeToString(buf)

	if err := repo.SetConfig(ctx, key, value); err != nil {
		return "", err
	}
	return value, nil
}
