// Package assets resolves the on-disk layout of one render run. A
// RunContext is an explicit value passed into components instead of a
// process-wide asset manager, so there is no shared mutable state.
package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// MissingAssetError marks a required input file that does not exist. Fatal
// for the scene that needs it, never retried.
type MissingAssetError struct {
	Kind string // "background", "sprite", "animation", ...
	Path string
}

func (e *MissingAssetError) Error() string {
	return fmt.Sprintf("missing %s asset: %s", e.Kind, e.Path)
}

// subdirs created for every run.
var subdirs = []string{
	"characters",
	"backgrounds",
	"animations",
	"metadata",
	"scenes/svg",
	"scenes/audio",
	"scenes/video",
	"scenes/video_with_sound",
	"final_video",
}

// RunContext holds the resolved directory layout for one run. All artifact
// paths are deterministic given the run directory and scene ids, so a rerun
// safely overwrites its own outputs.
type RunContext struct {
	RunID  string
	RunDir string
}

// NewRunContext creates a fresh run directory under baseDir and initializes
// its layout and metadata record.
func NewRunContext(baseDir string) (*RunContext, error) {
	runID := fmt.Sprintf("run_%s_%s",
		time.Now().Format("20060102_150405"),
		uuid.NewString()[:8])

	rc := &RunContext{RunID: runID, RunDir: filepath.Join(baseDir, runID)}
	if err := rc.initialize(); err != nil {
		return nil, err
	}
	return rc, nil
}

// OpenRunContext reuses an existing run directory, creating any missing
// subdirectories.
func OpenRunContext(runDir string) (*RunContext, error) {
	rc := &RunContext{RunID: filepath.Base(runDir), RunDir: runDir}
	if err := rc.initialize(); err != nil {
		return nil, err
	}
	return rc, nil
}

func (rc *RunContext) initialize() error {
	for _, d := range subdirs {
		if err := os.MkdirAll(filepath.Join(rc.RunDir, d), 0755); err != nil {
			return fmt.Errorf("initialize run dir: %w", err)
		}
	}

	meta := map[string]string{
		"run_id":     rc.RunID,
		"created_at": time.Now().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(rc.RunDir, "metadata", "metadata.json"), data, 0644)
}

// Path joins a known asset subdirectory with a filename.
func (rc *RunContext) Path(kind, filename string) string {
	return filepath.Join(rc.RunDir, kind, filename)
}

// CharacterSprite is the base sprite file for a character, by safe name.
func (rc *RunContext) CharacterSprite(safeName string) string {
	return rc.Path("characters", safeName+".svg")
}

// AnimationSprite is the sprite file carrying one named animation of a
// character.
func (rc *RunContext) AnimationSprite(safeName, animation string) string {
	return rc.Path("animations", safeName+"_"+animation+".svg")
}

func (rc *RunContext) SceneSVG(sceneID int) string {
	return rc.Path("scenes/svg", fmt.Sprintf("scene_%d.svg", sceneID))
}

func (rc *RunContext) SceneVideo(sceneID int) string {
	return rc.Path("scenes/video", fmt.Sprintf("scene_%d.mp4", sceneID))
}

func (rc *RunContext) SceneMuxedVideo(sceneID int) string {
	return rc.Path("scenes/video_with_sound", fmt.Sprintf("scene_%d.mp4", sceneID))
}

func (rc *RunContext) SceneAudio(sceneID int) string {
	return rc.Path("scenes/audio", fmt.Sprintf("scene_%d.mp3", sceneID))
}

func (rc *RunContext) FinalVideo() string {
	return rc.Path("final_video", "final_video.mp4")
}

func (rc *RunContext) FinalVerticalCrop() string {
	return rc.Path("final_video", "final_video_9x16.mp4")
}

func (rc *RunContext) FinalHorizontalCrop() string {
	return rc.Path("final_video", "final_video_16x9.mp4")
}
