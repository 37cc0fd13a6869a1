// Package assembly performs the post-encode steps: muxing narration audio
// into scene videos, concatenating scenes into one program and deriving
// fixed-aspect crops.
package assembly

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// Assembler wraps the ffmpeg invocations shared by all post-assembly steps.
type Assembler struct {
	FFmpeg string
	Log    *log.Logger
}

func New(logger *log.Logger) *Assembler {
	return &Assembler{FFmpeg: "ffmpeg", Log: logger}
}

func (a *Assembler) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, a.FFmpeg, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %v: %w, output: %s", args[:min(len(args), 4)], err, out.String())
	}
	return nil
}

// Mux combines a silent scene video with its narration audio. The video
// stream is copied unmodified, audio is re-encoded to AAC, and the result
// is truncated to the shorter input so trailing silence or video is dropped
// rather than padded.
func (a *Assembler) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}
	return a.run(ctx, []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outputPath,
	})
}

// Concatenate joins scene videos in order by stream copy, via a generated
// list file in scratchDir consumed by ffmpeg's concat demuxer.
func (a *Assembler) Concatenate(ctx context.Context, scenePaths []string, outputPath, scratchDir string) error {
	if len(scenePaths) == 0 {
		return fmt.Errorf("concatenate: no scene videos")
	}

	listPath := filepath.Join(scratchDir, "inputs.txt")
	var list bytes.Buffer
	for _, p := range scenePaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("concatenate: %w", err)
		}
		fmt.Fprintf(&list, "file '%s'\n", abs)
	}
	if err := os.WriteFile(listPath, list.Bytes(), 0644); err != nil {
		return fmt.Errorf("concatenate: %w", err)
	}
	defer os.Remove(listPath)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}
	return a.run(ctx, []string{
		"-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	})
}

// CropVertical derives a 9:16 crop from a square source by taking a
// horizontally centered sub-rectangle of full height. The audio stream is
// copied unmodified.
func (a *Assembler) CropVertical(ctx context.Context, inputPath, outputPath string, canvas int) error {
	w := even(canvas * 9 / 16)
	return a.crop(ctx, inputPath, outputPath, w, canvas)
}

// CropHorizontal derives a 16:9 crop by taking a vertically centered
// sub-rectangle of full width.
func (a *Assembler) CropHorizontal(ctx context.Context, inputPath, outputPath string, canvas int) error {
	h := even(canvas * 9 / 16)
	return a.crop(ctx, inputPath, outputPath, canvas, h)
}

func (a *Assembler) crop(ctx context.Context, inputPath, outputPath string, w, h int) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}
	return a.run(ctx, []string{
		"-y",
		"-i", inputPath,
		"-vf", fmt.Sprintf("crop=%d:%d:(iw-%d)/2:(ih-%d)/2", w, h, w, h),
		"-c:a", "copy",
		outputPath,
	})
}

func even(n int) int {
	return (n / 2) * 2
}
