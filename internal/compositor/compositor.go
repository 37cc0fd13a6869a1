// Package compositor assembles final scene frames: background, optional
// animated overlay and characters, alpha-blended back to front.
package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"

	"github.com/charmbracelet/log"
	xdraw "golang.org/x/image/draw"

	"github.com/0xBoji/pippin-studio/internal/sprite"
	"github.com/0xBoji/pippin-studio/internal/system"
	"github.com/0xBoji/pippin-studio/internal/timeline"
)

// Character is one renderable character: its movement segments and its
// pre-rendered clips keyed by animation name. The empty key is the idle
// clip used when a segment names no animation.
type Character struct {
	Name     string
	Segments []timeline.Segment
	Clips    map[string]sprite.Clip
}

// Scene is everything needed to composite one scene's frames.
type Scene struct {
	Background *image.RGBA // canvas-sized, opaque
	Overlay    sprite.Clip // optional; clamped to its last frame when shorter than the scene
	Characters []Character // layered in slice order
	Duration   float64
}

// Compositor renders scenes at a fixed frame rate. The frame canvas is
// recycled through an image pool: each frame owns its buffer exclusively
// until its PNG encoding completes, then releases it.
type Compositor struct {
	FPS  int
	Log  *log.Logger
	pool *system.ImagePool
}

func New(fps int, logger *log.Logger) *Compositor {
	return &Compositor{FPS: fps, Log: logger, pool: system.NewImagePool()}
}

// LoadBackground decodes a raster background once and stretches it onto an
// opaque canvas-sized RGBA buffer.
func LoadBackground(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode background %s: %w", path, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, timeline.CanvasWidth, timeline.CanvasHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	// Backgrounds are opaque regardless of source alpha.
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xFF
	}
	return dst, nil
}

// RenderFrames composites every frame of the scene and returns one PNG byte
// buffer per frame, in strictly increasing frame-index order. The context
// is checked between frames so a cancelled render stops promptly.
func (c *Compositor) RenderFrames(ctx context.Context, scene *Scene) ([][]byte, error) {
	if scene.Background == nil {
		return nil, fmt.Errorf("render frames: scene has no background")
	}

	totalFrames := int(math.Round(scene.Duration * float64(c.FPS)))
	frames := make([][]byte, 0, totalFrames)

	for idx := 0; idx < totalFrames; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame := c.pool.Get(scene.Background.Bounds())
		copy(frame.Pix, scene.Background.Pix)
		renderTime := float64(idx) / float64(c.FPS)

		if len(scene.Overlay) > 0 {
			oi := idx
			if oi >= len(scene.Overlay) {
				oi = len(scene.Overlay) - 1
			}
			blendOver(frame, scene.Overlay[oi], 0, 0)
		}

		for _, ch := range scene.Characters {
			if err := c.renderCharacter(frame, &ch, renderTime); err != nil {
				return nil, err
			}
		}

		var buf bytes.Buffer
		err := png.Encode(&buf, frame)
		c.pool.Put(frame)
		if err != nil {
			return nil, fmt.Errorf("encode frame %d: %w", idx, err)
		}
		frames = append(frames, buf.Bytes())

		if (idx+1)%30 == 0 || idx+1 == totalFrames {
			c.Log.Debug("composited frames", "done", idx+1, "total", totalFrames)
		}
	}

	return frames, nil
}

func (c *Compositor) renderCharacter(frame *image.RGBA, ch *Character, renderTime float64) error {
	st := timeline.Resolve(ch.Segments, renderTime)

	clip, ok := ch.Clips[st.Animation]
	if !ok {
		if st.Animation != "" {
			c.Log.Warn("no clip for animation, using idle", "character", ch.Name, "animation", st.Animation)
		}
		clip = ch.Clips[""]
	}

	raster := clip.FrameAt(st.Progress)
	if raster == nil {
		return nil
	}

	w := int(float64(raster.Bounds().Dx()) * st.Scale)
	h := int(float64(raster.Bounds().Dy()) * st.Scale)
	if w < 1 || h < 1 {
		// A near-zero scale degenerates to nothing; contribute no pixels.
		return nil
	}
	if w != raster.Bounds().Dx() || h != raster.Bounds().Dy() {
		scaled := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), raster, raster.Bounds(), xdraw.Src, nil)
		raster = scaled
	}

	blendOver(frame, raster, int(st.Position.X)-w/2, int(st.Position.Y)-h/2)
	return nil
}

// blendOver composites src onto dst at offset (x, y) with the over
// operator. Sprite rasters carry alpha-premultiplied channels (image.RGBA
// semantics), so the blend is src + dst*(1-a) per channel; multiplying src
// by alpha again would darken every semi-transparent pixel. Only the
// intersection with the destination bounds is touched; fully off-canvas
// sources contribute nothing.
func blendOver(dst, src *image.RGBA, x, y int) {
	inter := image.Rect(x, y, x+src.Bounds().Dx(), y+src.Bounds().Dy()).Intersect(dst.Bounds())
	if inter.Empty() {
		return
	}

	for dy := inter.Min.Y; dy < inter.Max.Y; dy++ {
		di := dst.PixOffset(inter.Min.X, dy)
		si := src.PixOffset(inter.Min.X-x, dy-y)
		for dx := inter.Min.X; dx < inter.Max.X; dx++ {
			a := float64(src.Pix[si+3]) / 255.0
			if a > 0 {
				// Resampling can overshoot a channel past its alpha, so clamp.
				dst.Pix[di+0] = uint8(math.Min(255, float64(src.Pix[si+0])+float64(dst.Pix[di+0])*(1-a)))
				dst.Pix[di+1] = uint8(math.Min(255, float64(src.Pix[si+1])+float64(dst.Pix[di+1])*(1-a)))
				dst.Pix[di+2] = uint8(math.Min(255, float64(src.Pix[si+2])+float64(dst.Pix[di+2])*(1-a)))
			}
			di += 4
			si += 4
		}
	}
}

