// Package timeline holds the declarative movement data that drives character
// placement during scene rendering, and the resolver that samples it at a
// given render time.
package timeline

import (
	"encoding/json"
	"fmt"
	"os"
)

// Canvas dimensions shared by backgrounds, overlays and characters.
const (
	CanvasWidth  = 1024
	CanvasHeight = 1024
)

// Point is a position in canvas space.
type Point struct {
	X float64
	Y float64
}

// Segment is one time-bounded interpolation unit of a character's motion.
// Immutable once constructed; the resolver reads it once per frame.
type Segment struct {
	CharacterName string    `json:"character_name"`
	StartTime     float64   `json:"start_time"`
	EndTime       float64   `json:"end_time"`
	StartPosition []float64 `json:"start_position"`
	EndPosition   []float64 `json:"end_position"`
	StartScale    float64   `json:"start_scale"`
	EndScale      float64   `json:"end_scale"`
	AnimationName string    `json:"animation_name"`
}

// SceneTimeline describes one scene: its duration and the ordered movement
// segments for every character in it.
type SceneTimeline struct {
	SceneID        int       `json:"scene_id"`
	Duration       float64   `json:"duration"`
	BackgroundPath string    `json:"background_path"`
	NarrationText  string    `json:"narration_text"`
	AudioPath      string    `json:"audio_path,omitempty"`
	Movements      []Segment `json:"movements"`
}

// SegmentsFor returns the segments belonging to one character, preserving
// their original order.
func (tl *SceneTimeline) SegmentsFor(name string) []Segment {
	var segs []Segment
	for _, m := range tl.Movements {
		if m.CharacterName == name {
			segs = append(segs, m)
		}
	}
	return segs
}

// CharacterNames returns the distinct character names in first-appearance
// order. This order is load-bearing: the compositor layers characters in it.
func (tl *SceneTimeline) CharacterNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range tl.Movements {
		if !seen[m.CharacterName] {
			seen[m.CharacterName] = true
			names = append(names, m.CharacterName)
		}
	}
	return names
}

// ValidationError reports a timeline that failed boundary validation.
type ValidationError struct {
	SceneID int
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("timeline for scene %d: invalid %s: %s", e.SceneID, e.Field, e.Reason)
}

// Validate checks the structural invariants of external timeline data.
// Inputs missing required fields are rejected here, at the boundary,
// instead of being silently defaulted mid-pipeline.
func (tl *SceneTimeline) Validate() error {
	if tl.Duration <= 0 {
		return &ValidationError{SceneID: tl.SceneID, Field: "duration", Reason: "must be > 0"}
	}
	for i, m := range tl.Movements {
		field := fmt.Sprintf("movements[%d]", i)
		if m.CharacterName == "" {
			return &ValidationError{SceneID: tl.SceneID, Field: field + ".character_name", Reason: "empty"}
		}
		if m.EndTime < m.StartTime {
			return &ValidationError{SceneID: tl.SceneID, Field: field, Reason: fmt.Sprintf("end_time %.3f before start_time %.3f", m.EndTime, m.StartTime)}
		}
		if len(m.StartPosition) != 2 {
			return &ValidationError{SceneID: tl.SceneID, Field: field + ".start_position", Reason: "must have exactly 2 components"}
		}
		if len(m.EndPosition) != 2 {
			return &ValidationError{SceneID: tl.SceneID, Field: field + ".end_position", Reason: "must have exactly 2 components"}
		}
		if m.StartScale <= 0 || m.EndScale <= 0 {
			return &ValidationError{SceneID: tl.SceneID, Field: field, Reason: "scale must be positive"}
		}
	}
	return nil
}

// ReadTimelines loads a list of scene timelines from a JSON file and
// validates every scene.
func ReadTimelines(path string) ([]SceneTimeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timelines: %w", err)
	}

	var timelines []SceneTimeline
	if err := json.Unmarshal(data, &timelines); err != nil {
		return nil, fmt.Errorf("parse timelines: %w", err)
	}

	for i := range timelines {
		if err := timelines[i].Validate(); err != nil {
			return nil, err
		}
	}
	return timelines, nil
}

// WriteTimelines persists scene timelines as JSON, matching the format
// consumed by ReadTimelines.
func WriteTimelines(timelines []SceneTimeline, path string) error {
	data, err := json.MarshalIndent(timelines, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
