package sprite

import (
	"fmt"
	"image"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Animator rasterizes sprites at a fixed canvas resolution.
type Animator struct {
	Width  int
	Height int
	Log    *log.Logger
}

// NewAnimator returns an animator targeting the shared 1024x1024 canvas.
func NewAnimator(logger *log.Logger) *Animator {
	return &Animator{Width: 1024, Height: 1024, Log: logger}
}

// Sprite is a parsed vector drawing with its animation directives. The
// parsed tree is read-only; Sample never mutates it, so one Sprite can feed
// concurrent clip renders.
type Sprite struct {
	Path       string
	root       *Element
	directives []Directive
	anim       *Animator
}

// Load reads and parses a sprite file.
func (a *Animator) Load(path string) (*Sprite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load sprite %s: %w", path, err)
	}
	sp, err := a.LoadString(string(data))
	if err != nil {
		return nil, fmt.Errorf("load sprite %s: %w", path, err)
	}
	sp.Path = path
	return sp, nil
}

// LoadString parses sprite markup held in memory, such as a composed scene
// document.
func (a *Animator) LoadString(svg string) (*Sprite, error) {
	root, err := parseDocument(strings.NewReader(svg))
	if err != nil {
		return nil, err
	}
	return &Sprite{
		root:       root,
		directives: collectDirectives(root),
		anim:       a,
	}, nil
}

// Duration reports the sprite's natural animation length: the longest
// directive duration, or three seconds for a static sprite.
func (s *Sprite) Duration() float64 {
	max := 0.0
	for _, d := range s.directives {
		if d.Duration > max {
			max = d.Duration
		}
	}
	if max == 0 {
		return 3.0
	}
	return max
}

// Sample rasterizes the sprite as it looks at playbackTime, with a
// transparent background.
//
// Each directive maps playbackTime onto its own keyframe list: looping
// directives wrap modulo their duration, finite ones clamp to their end.
// Directives with fewer than two keyframes are inert, and keyframe values
// that fail to parse leave the base attribute untouched for this frame.
func (s *Sprite) Sample(playbackTime float64) (*image.RGBA, error) {
	o := newOverlay()

	for i := range s.directives {
		d := &s.directives[i]
		o.skip[d.elem] = true

		if len(d.Values) < 2 || d.Attribute == "" {
			continue
		}

		local := playbackTime
		if d.Indefinite {
			local = math.Mod(playbackTime, d.Duration)
		} else if local > d.Duration {
			local = d.Duration
		}

		segments := len(d.Values) - 1
		pos := local / d.Duration * float64(segments)
		idx := int(math.Floor(pos))
		if idx < 0 {
			idx = 0
		}
		if idx > segments-1 {
			idx = segments - 1
		}
		factor := pos - float64(idx)

		start, okA := parseKeyValue(d.Values[idx])
		end, okB := parseKeyValue(d.Values[idx+1])
		if !okA || !okB {
			s.anim.Log.Warn("skipping unparseable keyframe value",
				"sprite", s.Path, "attribute", d.Attribute, "keyframe", idx)
			continue
		}

		resolved, ok := interpolate(start, end, factor)
		if !ok {
			s.anim.Log.Warn("skipping mismatched keyframe value types",
				"sprite", s.Path, "attribute", d.Attribute, "keyframe", idx)
			continue
		}

		formatted, ok := d.format(resolved)
		if !ok {
			s.anim.Log.Warn("skipping unformattable directive value",
				"sprite", s.Path, "attribute", d.Attribute, "transform", d.Transform)
			continue
		}

		o.set(d.parent, d.Attribute, formatted)
	}

	return s.rasterize(serialize(s.root, o))
}

func (s *Sprite) rasterize(svg string) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(strings.NewReader(svg), oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("rasterize sprite %s: %w", s.Path, err)
	}

	w, h := s.anim.Width, s.anim.Height
	icon.SetTarget(0, 0, float64(w), float64(h))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)
	return img, nil
}

// Clip is a pre-rendered ordered raster sequence covering one playback of a
// sprite.
type Clip []*image.RGBA

// FrameAt maps a segment-local normalized time onto the clip's own frames,
// so a clip timed differently from its movement segment still plays edge to
// edge over the segment.
func (c Clip) FrameAt(progress float64) *image.RGBA {
	if len(c) == 0 {
		return nil
	}
	idx := int(math.Round(progress * float64(len(c)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(c) {
		idx = len(c) - 1
	}
	return c[idx]
}

// RenderClip samples the sprite once per frame at the given fps over
// duration, producing the clip cached for compositing.
func (s *Sprite) RenderClip(duration float64, fps int) (Clip, error) {
	frameCount := int(duration * float64(fps))
	if frameCount < 1 {
		frameCount = 1
	}

	clip := make(Clip, 0, frameCount)
	for i := 0; i < frameCount; i++ {
		frame, err := s.Sample(float64(i) / float64(fps))
		if err != nil {
			return nil, fmt.Errorf("render clip frame %d: %w", i, err)
		}
		clip = append(clip, frame)
	}
	return clip, nil
}
