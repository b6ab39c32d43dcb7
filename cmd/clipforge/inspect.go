package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/clips"
	"github.com/clipforge/clipforge-agent/internal/config"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/media"
)

func newFFmpeg(cfg config.Config) *media.FFmpeg {
	return media.NewFFmpeg(media.FFmpegConfig{
		FFmpegPath:  cfg.FFmpegPath(),
		FFprobePath: cfg.FFprobePath(),
		VideoCodec:  cfg.VideoCodec(),
		CRF:         cfg.CRF(),
		Logger:      logging.Discard(),
	})
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <video>",
		Short: "Print frame rate, frame count and duration of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ffmpeg := newFFmpeg(cfg)

			ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
			defer cancel()

			src := media.NewSource(ffmpeg, ffmpeg, logging.Discard())
			defer src.Close()

			h, err := src.Open(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "file:      %s\n", filepath.Base(h.Path))
			fmt.Fprintf(out, "size:      %dx%d\n", h.Width, h.Height)
			fmt.Fprintf(out, "fps:       %.3f\n", h.FPS)
			fmt.Fprintf(out, "frames:    %d\n", h.FrameCount)
			fmt.Fprintf(out, "duration:  %s\n", h.Duration())
			return nil
		},
	}
}

func newLedgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger <dir>",
		Short: "List the clips recorded in a save directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := clips.NewStore()
			found, err := store.Load(args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no %s in %s", clips.LedgerFilename, args[0])
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTART\tEND\tACTION\tTEAM\tEQUIPMENT\tDESCRIPTION")
			for _, c := range store.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					c.Name, c.StartTime, c.EndTime, c.ActionClass, c.Team, c.Equipment, c.Description)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d clips, next %s\n", store.Len(), store.NextName())
			return nil
		},
	}
}

func newLogCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "log <dir>",
		Short: "Print the action log of a save directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := logging.ReadActionLog(args[0])
			if err != nil {
				return err
			}
			if tail > 0 && len(actions) > tail {
				actions = actions[len(actions)-tail:]
			}
			for _, a := range actions {
				fmt.Fprintln(cmd.OutOrStdout(), a.String())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "print only the last n actions")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the ffmpeg toolchain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
			defer cancel()

			caps, err := newFFmpeg(cfg).RunDoctor(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(caps)
			}

			for _, tool := range []struct {
				name string
				info media.ToolInfo
			}{
				{"ffmpeg", caps.FFmpeg},
				{"ffprobe", caps.FFprobe},
			} {
				if tool.info.Available {
					fmt.Fprintf(out, "%-8s ok       %s\n", tool.name, tool.info.Version)
				} else {
					fmt.Fprintf(out, "%-8s missing  %s\n", tool.name, tool.info.Error)
				}
			}
			fmt.Fprintf(out, "%-8s %-8s %s\n", "encoder", yesNo(caps.HasEncoder), caps.VideoCodec)
			fmt.Fprintf(out, "probed at %s\n", caps.ProbedAt.Format(time.RFC3339))

			if !caps.Ready() {
				return fmt.Errorf("ffmpeg toolchain is not ready")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print capabilities as JSON")
	return cmd
}

func yesNo(ok bool) string {
	if ok {
		return "ok"
	}
	return "missing"
}
