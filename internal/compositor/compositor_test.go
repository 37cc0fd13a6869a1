package compositor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/0xBoji/pippin-studio/internal/sprite"
	"github.com/0xBoji/pippin-studio/internal/timeline"
)

func solidRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func canvasBackground(c color.RGBA) *image.RGBA {
	return solidRGBA(timeline.CanvasWidth, timeline.CanvasHeight, c)
}

func testCompositor(fps int) *Compositor {
	return New(fps, log.New(io.Discard))
}

func decodeFrame(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return img
}

func TestRenderFramesCount(t *testing.T) {
	tests := []struct {
		duration float64
		fps      int
		want     int
	}{
		{1.0, 30, 30},
		{2.5, 30, 75},
		{0.5, 24, 12},
		{1.0, 1, 1},
	}
	for _, tt := range tests {
		scene := &Scene{Background: canvasBackground(color.RGBA{10, 20, 30, 255}), Duration: tt.duration}
		frames, err := testCompositor(tt.fps).RenderFrames(context.Background(), scene)
		if err != nil {
			t.Fatal(err)
		}
		if len(frames) != tt.want {
			t.Errorf("duration %v at %d fps: got %d frames, want %d", tt.duration, tt.fps, len(frames), tt.want)
		}
	}
}

func TestRenderFramesRequiresBackground(t *testing.T) {
	_, err := testCompositor(30).RenderFrames(context.Background(), &Scene{Duration: 1})
	if err == nil {
		t.Fatal("expected error for scene without background")
	}
}

func TestRenderFramesCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scene := &Scene{Background: canvasBackground(color.RGBA{0, 0, 0, 255}), Duration: 10}
	if _, err := testCompositor(30).RenderFrames(ctx, scene); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBlendOverTransparentLeavesDst(t *testing.T) {
	dst := solidRGBA(16, 16, color.RGBA{100, 150, 200, 255})
	want := make([]byte, len(dst.Pix))
	copy(want, dst.Pix)

	src := image.NewRGBA(image.Rect(0, 0, 16, 16)) // fully transparent
	blendOver(dst, src, 0, 0)

	if !bytes.Equal(dst.Pix, want) {
		t.Error("transparent source changed destination pixels")
	}
}

func TestBlendOverOpaqueReplaces(t *testing.T) {
	dst := solidRGBA(16, 16, color.RGBA{0, 0, 0, 255})
	src := solidRGBA(4, 4, color.RGBA{255, 128, 64, 255})
	blendOver(dst, src, 6, 6)

	got := dst.RGBAAt(7, 7)
	if got.R != 255 || got.G != 128 || got.B != 64 {
		t.Errorf("blended pixel = %v, want fully replaced by opaque source", got)
	}
	if edge := dst.RGBAAt(0, 0); edge.R != 0 {
		t.Errorf("pixel outside source rect changed: %v", edge)
	}
}

func TestBlendOverHalfAlpha(t *testing.T) {
	dst := solidRGBA(8, 8, color.RGBA{0, 0, 0, 255})
	// 50% white in premultiplied form: channels already carry the alpha.
	src := solidRGBA(8, 8, color.RGBA{128, 128, 128, 128})
	blendOver(dst, src, 0, 0)

	// 128 + 0 * (1 - 128/255) = 128.
	if got := dst.RGBAAt(4, 4); got.R != 128 {
		t.Errorf("half-alpha blend over black R = %d, want 128", got.R)
	}

	gray := solidRGBA(8, 8, color.RGBA{100, 100, 100, 255})
	blendOver(gray, src, 0, 0)
	// 128 + 100 * (1 - 128/255) = 177.8, truncated to 177.
	if got := gray.RGBAAt(4, 4); got.R != 177 {
		t.Errorf("half-alpha blend over gray R = %d, want 177", got.R)
	}
}

func TestBlendOverRasterizedOpacity(t *testing.T) {
	// A 50% white sprite over black must come out near half brightness. The
	// rasterizer emits premultiplied pixels; blending them as if they were
	// straight alpha would land near a quarter instead.
	sp, err := sprite.NewAnimator(log.New(io.Discard)).LoadString(
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 1024 1024"><rect x="0" y="0" width="1024" height="1024" fill="#ffffff" fill-opacity="0.5"/></svg>`)
	if err != nil {
		t.Fatal(err)
	}
	raster, err := sp.Sample(0)
	if err != nil {
		t.Fatal(err)
	}

	dst := canvasBackground(color.RGBA{0, 0, 0, 255})
	blendOver(dst, raster, 0, 0)

	got := dst.RGBAAt(512, 512)
	if got.R < 120 || got.R > 135 {
		t.Errorf("50%% white over black R = %d, want about 127", got.R)
	}
}

func TestBlendOverOffCanvas(t *testing.T) {
	dst := solidRGBA(16, 16, color.RGBA{50, 50, 50, 255})
	want := make([]byte, len(dst.Pix))
	copy(want, dst.Pix)

	blendOver(dst, solidRGBA(4, 4, color.RGBA{255, 0, 0, 255}), -100, -100)
	if !bytes.Equal(dst.Pix, want) {
		t.Error("off-canvas source changed destination pixels")
	}
}

func TestRenderCharacterNearZeroScale(t *testing.T) {
	bg := canvasBackground(color.RGBA{10, 10, 10, 255})
	want := make([]byte, len(bg.Pix))
	copy(want, bg.Pix)

	ch := Character{
		Name: "pippin",
		Segments: []timeline.Segment{{
			CharacterName: "pippin",
			StartTime:     0, EndTime: 1,
			StartPosition: []float64{512, 512}, EndPosition: []float64{512, 512},
			StartScale: 0.0001, EndScale: 0.0001,
		}},
		Clips: map[string]sprite.Clip{"": {solidRGBA(100, 100, color.RGBA{255, 0, 0, 255})}},
	}
	scene := &Scene{Background: bg, Characters: []Character{ch}, Duration: 1.0 / 30.0}

	frames, err := testCompositor(30).RenderFrames(context.Background(), scene)
	if err != nil {
		t.Fatal(err)
	}
	img := decodeFrame(t, frames[0]).(*image.RGBA)
	if !bytes.Equal(img.Pix, want) {
		t.Error("a degenerate scale should contribute no pixels")
	}
}

func TestRenderCharacterSegmentSelection(t *testing.T) {
	// Two back-to-back segments with distinct clips: at a time inside the
	// second segment the wave clip must be drawn, not the idle clip.
	idle := solidRGBA(40, 40, color.RGBA{0, 255, 0, 255})
	wave := solidRGBA(40, 40, color.RGBA{255, 0, 0, 255})
	ch := Character{
		Name: "pippin",
		Segments: []timeline.Segment{
			{
				CharacterName: "pippin",
				StartTime:     0, EndTime: 0.5,
				StartPosition: []float64{512, 512}, EndPosition: []float64{512, 512},
				StartScale: 1, EndScale: 1,
			},
			{
				CharacterName: "pippin",
				StartTime:     0.5, EndTime: 1,
				StartPosition: []float64{512, 512}, EndPosition: []float64{512, 512},
				StartScale: 1, EndScale: 1,
				AnimationName: "wave",
			},
		},
		Clips: map[string]sprite.Clip{"": {idle}, "wave": {wave}},
	}
	scene := &Scene{
		Background: canvasBackground(color.RGBA{0, 0, 0, 255}),
		Characters: []Character{ch},
		Duration:   1,
	}

	frames, err := testCompositor(30).RenderFrames(context.Background(), scene)
	if err != nil {
		t.Fatal(err)
	}

	// Frame 10 is at t=0.333, inside the first segment.
	early := decodeFrame(t, frames[10])
	if c := color.RGBAModel.Convert(early.At(512, 512)).(color.RGBA); c.G != 255 || c.R != 0 {
		t.Errorf("frame 10 center = %v, want idle green", c)
	}
	// Frame 20 is at t=0.667, inside the wave segment.
	late := decodeFrame(t, frames[20])
	if c := color.RGBAModel.Convert(late.At(512, 512)).(color.RGBA); c.R != 255 || c.G != 0 {
		t.Errorf("frame 20 center = %v, want wave red", c)
	}
}

func TestRenderCharacterMissingAnimationFallsBackToIdle(t *testing.T) {
	idle := solidRGBA(40, 40, color.RGBA{0, 255, 0, 255})
	ch := Character{
		Name: "pippin",
		Segments: []timeline.Segment{{
			CharacterName: "pippin",
			StartTime:     0, EndTime: 1,
			StartPosition: []float64{512, 512}, EndPosition: []float64{512, 512},
			StartScale: 1, EndScale: 1,
			AnimationName: "missing",
		}},
		Clips: map[string]sprite.Clip{"": {idle}},
	}
	scene := &Scene{
		Background: canvasBackground(color.RGBA{0, 0, 0, 255}),
		Characters: []Character{ch},
		Duration:   1.0 / 30.0,
	}

	frames, err := testCompositor(30).RenderFrames(context.Background(), scene)
	if err != nil {
		t.Fatal(err)
	}
	img := decodeFrame(t, frames[0])
	if c := color.RGBAModel.Convert(img.At(512, 512)).(color.RGBA); c.G != 255 {
		t.Errorf("center = %v, want idle fallback green", c)
	}
}

func TestOverlayClampsToLastFrame(t *testing.T) {
	// A one-frame overlay over a two-frame scene: both frames show it.
	overlayFrame := image.NewRGBA(image.Rect(0, 0, timeline.CanvasWidth, timeline.CanvasHeight))
	overlayFrame.SetRGBA(100, 100, color.RGBA{255, 255, 0, 255})

	scene := &Scene{
		Background: canvasBackground(color.RGBA{0, 0, 0, 255}),
		Overlay:    sprite.Clip{overlayFrame},
		Duration:   1,
	}
	frames, err := testCompositor(2).RenderFrames(context.Background(), scene)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	last := decodeFrame(t, frames[1])
	if c := color.RGBAModel.Convert(last.At(100, 100)).(color.RGBA); c.R != 255 || c.G != 255 {
		t.Errorf("overlay pixel on clamped frame = %v, want yellow", c)
	}
}

func TestLoadBackgroundStretchesAndOpaque(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bg.png")
	small := solidRGBA(64, 32, color.RGBA{120, 60, 30, 255})
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, small); err != nil {
		t.Fatal(err)
	}
	f.Close()

	bg, err := LoadBackground(path)
	if err != nil {
		t.Fatal(err)
	}
	if bg.Bounds().Dx() != timeline.CanvasWidth || bg.Bounds().Dy() != timeline.CanvasHeight {
		t.Errorf("bounds = %v, want canvas size", bg.Bounds())
	}
	for i := 3; i < len(bg.Pix); i += 4 {
		if bg.Pix[i] != 0xFF {
			t.Fatalf("background not opaque at byte %d", i)
		}
	}
}

func TestLoadBackgroundMissing(t *testing.T) {
	if _, err := LoadBackground(filepath.Join(t.TempDir(), "absent.png")); err == nil {
		t.Fatal("expected error for missing background")
	}
}
