// Package cli implements the pippin-studio command-line interface.
//
// The CLI exposes a single render command that consumes a scene-timeline
// file plus a run directory of generated assets and produces the per-scene
// and final video artifacts. Logging uses charmbracelet/log; --verbose
// enables debug output.
package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/0xBoji/pippin-studio/internal/assets"
	"github.com/0xBoji/pippin-studio/internal/config"
	"github.com/0xBoji/pippin-studio/internal/engine"
	"github.com/0xBoji/pippin-studio/internal/system"
	"github.com/0xBoji/pippin-studio/internal/timeline"
)

func newLogger(level charmlog.Level) *charmlog.Logger {
	return charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// Execute runs the pippin CLI. The context cancels in-flight renders on
// interrupt.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:          "pippin",
		Short:        "Pippin Studio renders animated storybook scenes to video",
		Long:         `Pippin Studio turns declarative scene timelines and animated vector sprites into H.264 videos: per-scene clips, a concatenated program and vertical/horizontal crops.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newRenderCmd(&verbose))
	return root.ExecuteContext(ctx)
}

func newRenderCmd(verbose *bool) *cobra.Command {
	var (
		timelinePath string
		runDir       string
		configPath   string
		fps          int
		workers      int
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render scene timelines into video artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := charmlog.InfoLevel
			if *verbose {
				level = charmlog.DebugLevel
			}
			logger := newLogger(level)

			if !system.FFmpegAvailable() {
				return fmt.Errorf("ffmpeg not found in PATH")
			}

			cfg := config.Default()
			if configPath != "" {
				var err error
				if cfg, err = config.Load(configPath); err != nil {
					return err
				}
			}
			if fps > 0 {
				cfg.FPS = fps
			}
			if workers > 0 {
				cfg.Workers = workers
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			var rc *assets.RunContext
			var err error
			if runDir != "" {
				rc, err = assets.OpenRunContext(runDir)
			} else {
				rc, err = assets.NewRunContext(cfg.OutputDir)
			}
			if err != nil {
				return err
			}
			logger.Info("run ready", "run_id", rc.RunID, "dir", rc.RunDir)

			timelines, err := timeline.ReadTimelines(timelinePath)
			if err != nil {
				return err
			}

			pipe := engine.New(cfg, rc, logger)
			result, err := pipe.RenderProgram(cmd.Context(), timelines)
			if err != nil {
				return err
			}

			for id, p := range result.SceneVideos {
				logger.Info("scene artifact", "scene", id, "path", p)
			}
			if result.FinalVideo != "" {
				logger.Info("final video", "path", result.FinalVideo)
			} else {
				logger.Warn("no final video produced; per-scene videos remain")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&timelinePath, "timeline", "t", "", "scene timelines JSON file (required)")
	cmd.Flags().StringVar(&runDir, "run-dir", "", "existing run directory with generated assets")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "render settings YAML file")
	cmd.Flags().IntVar(&fps, "fps", 0, "override output frame rate")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent scene renders (0 = auto)")
	_ = cmd.MarkFlagRequired("timeline")

	return cmd
}
