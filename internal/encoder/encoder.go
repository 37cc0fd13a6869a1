// Package encoder persists ordered frame sequences and drives the external
// ffmpeg process that turns them into H.264 video files.
package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// Failure classification for one encode call. Callers treat any of these as
// fatal for the scene's video but may continue with other scenes.
var (
	// ErrEmptyInput means encode was called with no frames.
	ErrEmptyInput = errors.New("no frames to encode")
	// ErrEmptyOutput means ffmpeg exited cleanly but produced a missing or
	// zero-length file.
	ErrEmptyOutput = errors.New("encoder produced empty output")
	// ErrTimeout means the encode exceeded its context deadline.
	ErrTimeout = errors.New("encoder timed out")
)

// ProcessError reports a non-zero ffmpeg exit.
type ProcessError struct {
	ExitCode int
	Stderr   string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("ffmpeg exited with code %d: %s", e.ExitCode, e.Stderr)
}

// Encoder writes frames to scratch storage and invokes ffmpeg with a fixed,
// quality-oriented parameter set tuned for animated content.
type Encoder struct {
	FPS    int
	CRF    int
	Preset string
	FFmpeg string // binary name or path
	Log    *log.Logger
}

func New(fps int, logger *log.Logger) *Encoder {
	return &Encoder{
		FPS:    fps,
		CRF:    18,
		Preset: "medium",
		FFmpeg: "ffmpeg",
		Log:    logger,
	}
}

// Encode writes each frame to an index-padded file (lexical order equals
// numeric order, as required by ffmpeg's numbered-input pattern), runs one
// non-interactive ffmpeg invocation and validates the output.
//
// The scratch directory and every frame file are removed on all exit paths.
// If the encode fails after a partial output file appeared, the partial
// file is deleted so callers never observe a truncated artifact.
func (e *Encoder) Encode(ctx context.Context, frames [][]byte, outputPath string) (err error) {
	if len(frames) == 0 {
		return ErrEmptyInput
	}

	tmpDir, err := os.MkdirTemp("", "pippin_frames_")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)
	defer func() {
		if err != nil {
			os.Remove(outputPath)
		}
	}()

	for i, frame := range frames {
		framePath := filepath.Join(tmpDir, fmt.Sprintf("frame_%06d.png", i+1))
		if err := os.WriteFile(framePath, frame, 0644); err != nil {
			return fmt.Errorf("write frame %d: %w", i+1, err)
		}
		if (i+1)%10 == 0 {
			e.Log.Debug("saved frames", "done", i+1, "total", len(frames))
		}
	}

	width, height, err := frameDimensions(frames[0])
	if err != nil {
		return err
	}
	// 4:2:0 chroma subsampling needs even dimensions.
	width = (width / 2) * 2
	height = (height / 2) * 2

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	args := e.buildArgs(tmpDir, width, height, outputPath)
	cmd := exec.CommandContext(ctx, e.FFmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.Log.Debug("encoding video", "frames", len(frames), "size", fmt.Sprintf("%dx%d", width, height), "output", outputPath)

	if runErr := cmd.Run(); runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %s", ErrTimeout, outputPath)
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &ProcessError{ExitCode: exitCode, Stderr: stderr.String()}
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyOutput, outputPath)
	}

	return nil
}

// buildArgs assembles the fixed encode argument vector: near-visually-
// lossless H.264 with a keyframe interval of five seconds of frames,
// constant-frame-rate output and fast-start metadata placement.
func (e *Encoder) buildArgs(tmpDir string, width, height int, outputPath string) []string {
	return []string{
		"-y",
		"-framerate", fmt.Sprintf("%d", e.FPS),
		"-i", filepath.Join(tmpDir, "frame_%06d.png"),
		"-vf", fmt.Sprintf("scale=%d:%d,format=yuv420p", width, height),
		"-vsync", "cfr",
		"-g", fmt.Sprintf("%d", e.FPS*5),
		"-bf", "2",
		"-vcodec", "libx264",
		"-preset", e.Preset,
		"-crf", fmt.Sprintf("%d", e.CRF),
		"-movflags", "+faststart",
		"-tune", "animation",
		"-profile:v", "high",
		"-level", "4.1",
		outputPath,
	}
}

func frameDimensions(frame []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(frame))
	if err != nil {
		return 0, 0, fmt.Errorf("read frame dimensions: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
