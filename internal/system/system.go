// Package system wraps host-level concerns: locating the external media
// tools, probing media durations and sizing worker pools.
package system

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// FFmpegAvailable reports whether the external encoder binary is reachable.
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// AudioDuration probes a media file's duration in seconds via ffprobe.
func AudioDuration(path string) (float64, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &duration); err != nil {
		return 0, fmt.Errorf("ffprobe %s: unexpected output %q", path, out)
	}
	return duration, nil
}

// DefaultWorkers picks a scene-render concurrency level from the host's
// physical cores, backing off when less than two gigabytes of memory are
// available since each in-flight scene holds its full frame sequence.
func DefaultWorkers() int {
	workers, err := cpu.Counts(false)
	if err != nil || workers < 1 {
		workers = runtime.NumCPU()
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		if vm.Available < 2<<30 && workers > 2 {
			workers = 2
		}
	}

	if workers < 1 {
		workers = 1
	}
	return workers
}
