package timeline

import "math"

// minSegmentSpan guards the divide by zero on instantaneous segments.
const minSegmentSpan = 1e-9

// State is the resolved placement of a character at one render time.
type State struct {
	Position  Point
	Scale     float64
	Animation string  // empty means idle/base pose
	Progress  float64 // normalized time within the selected segment, in [0,1]
}

// centerState is the fallback for characters with no usable movement data.
func centerState() State {
	return State{
		Position: Point{X: CanvasWidth / 2, Y: CanvasHeight / 2},
		Scale:    1.0,
		Progress: 1.0,
	}
}

// Resolve samples a character's movement segments at renderTime.
//
// The first segment whose time range contains renderTime wins. When no
// segment matches — renderTime before the first start, after every end, or a
// malformed list — the last segment is used so that trailing frames hold the
// final pose instead of vanishing. An empty list resolves to canvas center
// at scale 1.
func Resolve(segments []Segment, renderTime float64) State {
	if len(segments) == 0 {
		return centerState()
	}

	// Segment intervals are half-open so that at a shared boundary the
	// later segment wins; only the final segment keeps its end instant.
	seg := segments[len(segments)-1]
	for i, s := range segments {
		last := i == len(segments)-1
		if s.StartTime <= renderTime && (renderTime < s.EndTime || (last && renderTime <= s.EndTime)) {
			seg = s
			break
		}
	}

	if len(seg.StartPosition) != 2 || len(seg.EndPosition) != 2 {
		return centerState()
	}

	span := seg.EndTime - seg.StartTime
	var t float64
	if span <= minSegmentSpan {
		t = 1.0
	} else {
		t = (renderTime - seg.StartTime) / span
		t = math.Max(0, math.Min(t, 1))
	}

	return State{
		Position: Point{
			X: lerp(seg.StartPosition[0], seg.EndPosition[0], t),
			Y: lerp(seg.StartPosition[1], seg.EndPosition[1], t),
		},
		Scale:     lerp(seg.StartScale, seg.EndScale, t),
		Animation: seg.AnimationName,
		Progress:  t,
	}
}

// lerp performs linear interpolation between a and b.
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
