package timeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleTimelines = `[
  {
    "scene_id": 0,
    "duration": 5.0,
    "background_path": "scene_0_background.png",
    "narration_text": "Pippin hopped across the meadow.",
    "movements": [
      {
        "character_name": "Pippin",
        "start_time": 0.0,
        "end_time": 1.0,
        "start_position": [512, 716],
        "end_position": [512, 716],
        "start_scale": 0.01,
        "end_scale": 1.0,
        "animation_name": null
      },
      {
        "character_name": "Pippin",
        "start_time": 1.0,
        "end_time": 2.0,
        "start_position": [512, 716],
        "end_position": [512, 616],
        "start_scale": 1.0,
        "end_scale": 1.0,
        "animation_name": "hop"
      }
    ]
  }
]`

func writeTimelineFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene_movements.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadTimelines(t *testing.T) {
	timelines, err := ReadTimelines(writeTimelineFile(t, sampleTimelines))
	if err != nil {
		t.Fatalf("ReadTimelines: %v", err)
	}
	if len(timelines) != 1 {
		t.Fatalf("got %d timelines, want 1", len(timelines))
	}

	tl := timelines[0]
	if tl.Duration != 5.0 {
		t.Errorf("duration = %v, want 5.0", tl.Duration)
	}
	if len(tl.Movements) != 2 {
		t.Fatalf("got %d movements, want 2", len(tl.Movements))
	}
	// A JSON null animation_name must stay empty (the idle pose).
	if tl.Movements[0].AnimationName != "" {
		t.Errorf("movement 0 animation = %q, want idle", tl.Movements[0].AnimationName)
	}
	if tl.Movements[1].AnimationName != "hop" {
		t.Errorf("movement 1 animation = %q, want hop", tl.Movements[1].AnimationName)
	}
}

func TestReadTimelinesRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"zero duration", `[{"scene_id":1,"duration":0,"movements":[]}]`},
		{"missing character name", `[{"scene_id":1,"duration":2,"movements":[
			{"character_name":"","start_time":0,"end_time":1,
			 "start_position":[0,0],"end_position":[1,1],"start_scale":1,"end_scale":1}]}]`},
		{"short position", `[{"scene_id":1,"duration":2,"movements":[
			{"character_name":"a","start_time":0,"end_time":1,
			 "start_position":[0],"end_position":[1,1],"start_scale":1,"end_scale":1}]}]`},
		{"reversed times", `[{"scene_id":1,"duration":2,"movements":[
			{"character_name":"a","start_time":2,"end_time":1,
			 "start_position":[0,0],"end_position":[1,1],"start_scale":1,"end_scale":1}]}]`},
		{"zero scale", `[{"scene_id":1,"duration":2,"movements":[
			{"character_name":"a","start_time":0,"end_time":1,
			 "start_position":[0,0],"end_position":[1,1],"start_scale":0,"end_scale":1}]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTimelines(writeTimelineFile(t, tt.json))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("error type = %T, want *ValidationError", err)
			}
		})
	}
}

func TestCharacterNamesOrder(t *testing.T) {
	tl := SceneTimeline{
		SceneID:  1,
		Duration: 2,
		Movements: []Segment{
			{CharacterName: "owl"},
			{CharacterName: "pippin"},
			{CharacterName: "owl"},
		},
	}
	names := tl.CharacterNames()
	if len(names) != 2 || names[0] != "owl" || names[1] != "pippin" {
		t.Errorf("names = %v, want [owl pippin]", names)
	}
	if got := len(tl.SegmentsFor("owl")); got != 2 {
		t.Errorf("owl segments = %d, want 2", got)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	in := []SceneTimeline{{
		SceneID:  3,
		Duration: 4.5,
		Movements: []Segment{{
			CharacterName: "Pippin",
			StartTime:     0, EndTime: 4.5,
			StartPosition: []float64{256, 700}, EndPosition: []float64{768, 700},
			StartScale: 1, EndScale: 1,
			AnimationName: "fly",
		}},
	}}
	if err := WriteTimelines(in, path); err != nil {
		t.Fatal(err)
	}
	out, err := ReadTimelines(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].SceneID != 3 || out[0].Movements[0].AnimationName != "fly" {
		t.Errorf("round trip mismatch: %+v", out)
	}
}
