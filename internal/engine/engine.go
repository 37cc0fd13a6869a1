// Package engine orchestrates the render pipeline: timelines in, per-scene
// videos and the concatenated program out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/0xBoji/pippin-studio/internal/assembly"
	"github.com/0xBoji/pippin-studio/internal/assets"
	"github.com/0xBoji/pippin-studio/internal/composer"
	"github.com/0xBoji/pippin-studio/internal/compositor"
	"github.com/0xBoji/pippin-studio/internal/config"
	"github.com/0xBoji/pippin-studio/internal/encoder"
	"github.com/0xBoji/pippin-studio/internal/sprite"
	"github.com/0xBoji/pippin-studio/internal/system"
	"github.com/0xBoji/pippin-studio/internal/timeline"
)

// Pipeline renders a full program from scene timelines and on-disk assets.
type Pipeline struct {
	Config *config.Config
	Run    *assets.RunContext
	Log    *log.Logger

	animator   *sprite.Animator
	composer   *composer.Composer
	compositor *compositor.Compositor
	encoder    *encoder.Encoder
	assembler  *assembly.Assembler
}

func New(cfg *config.Config, rc *assets.RunContext, logger *log.Logger) *Pipeline {
	anim := sprite.NewAnimator(logger)
	anim.Width = cfg.CanvasSize
	anim.Height = cfg.CanvasSize

	enc := encoder.New(cfg.FPS, logger)
	enc.CRF = cfg.CRF
	enc.Preset = cfg.Preset

	return &Pipeline{
		Config:     cfg,
		Run:        rc,
		Log:        logger,
		animator:   anim,
		composer:   composer.New(logger),
		compositor: compositor.New(cfg.FPS, logger),
		encoder:    enc,
		assembler:  assembly.New(logger),
	}
}

// Result lists the artifacts a program render produced. FinalVideo and the
// crops are empty when concatenation failed; per-scene videos survive that.
type Result struct {
	SceneVideos    map[int]string
	FinalVideo     string
	VerticalCrop   string
	HorizontalCrop string
}

// RenderProgram renders every scene (concurrently, bounded by the worker
// setting), muxes narration, concatenates the scenes in timeline order and
// derives the fixed-aspect crops.
//
// A scene that fails is logged and dropped; remaining scenes continue. An
// error is returned only when no scene could be rendered at all.
func (p *Pipeline) RenderProgram(ctx context.Context, timelines []timeline.SceneTimeline) (*Result, error) {
	if len(timelines) == 0 {
		return nil, errors.New("render program: no scene timelines")
	}

	workers := p.Config.Workers
	if workers <= 0 {
		workers = system.DefaultWorkers()
	}

	start := time.Now()
	result := &Result{SceneVideos: make(map[int]string, len(timelines))}

	paths := make([]string, len(timelines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range timelines {
		tl := &timelines[i]
		idx := i
		g.Go(func() error {
			videoPath, err := p.RenderScene(gctx, tl)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.Log.Error("scene render failed", "scene", tl.SceneID, "err", err)
				return nil
			}
			paths[idx] = videoPath
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var scenePaths []string
	for i := range timelines {
		if paths[i] != "" {
			result.SceneVideos[timelines[i].SceneID] = paths[i]
			scenePaths = append(scenePaths, paths[i])
		}
	}
	if len(scenePaths) == 0 {
		return nil, errors.New("render program: every scene failed")
	}

	p.Log.Info("scenes rendered", "count", len(scenePaths), "elapsed", time.Since(start).Round(time.Millisecond))

	scratch, err := os.MkdirTemp("", "pippin_concat_")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(scratch)

	finalPath := p.Run.FinalVideo()
	if err := p.assembler.Concatenate(ctx, scenePaths, finalPath, scratch); err != nil {
		// Non-fatal: the per-scene artifacts stand on their own.
		p.Log.Error("concatenation failed, keeping per-scene videos", "err", err)
		return result, nil
	}
	result.FinalVideo = finalPath

	if err := p.assembler.CropVertical(ctx, finalPath, p.Run.FinalVerticalCrop(), p.Config.CanvasSize); err != nil {
		p.Log.Warn("vertical crop failed", "err", err)
	} else {
		result.VerticalCrop = p.Run.FinalVerticalCrop()
	}
	if err := p.assembler.CropHorizontal(ctx, finalPath, p.Run.FinalHorizontalCrop(), p.Config.CanvasSize); err != nil {
		p.Log.Warn("horizontal crop failed", "err", err)
	} else {
		result.HorizontalCrop = p.Run.FinalHorizontalCrop()
	}

	return result, nil
}

// RenderScene renders one scene end to end and returns its final per-scene
// artifact: the muxed video when narration audio exists, the silent video
// otherwise.
func (p *Pipeline) RenderScene(ctx context.Context, tl *timeline.SceneTimeline) (string, error) {
	sceneStart := time.Now()

	background, err := p.loadBackground(tl)
	if err != nil {
		return "", err
	}

	characters, spritePaths, err := p.prepareCharacters(ctx, tl)
	if err != nil {
		return "", err
	}

	overlay, err := p.renderOverlay(tl, spritePaths)
	if err != nil {
		return "", err
	}

	scene := &compositor.Scene{
		Background: background,
		Overlay:    overlay,
		Characters: characters,
		Duration:   tl.Duration,
	}
	frames, err := p.compositor.RenderFrames(ctx, scene)
	if err != nil {
		return "", fmt.Errorf("scene %d: %w", tl.SceneID, err)
	}

	videoPath := p.Run.SceneVideo(tl.SceneID)
	encodeCtx := ctx
	if p.Config.EncodeTimeout > 0 {
		var cancel context.CancelFunc
		encodeCtx, cancel = context.WithTimeout(ctx, time.Duration(p.Config.EncodeTimeout*float64(time.Second)))
		defer cancel()
	}
	if err := p.encoder.Encode(encodeCtx, frames, videoPath); err != nil {
		return "", fmt.Errorf("scene %d: %w", tl.SceneID, err)
	}

	p.Log.Info("scene rendered", "scene", tl.SceneID,
		"frames", len(frames), "elapsed", time.Since(sceneStart).Round(time.Millisecond))

	audioPath := p.resolveAudio(tl)
	if audioPath == "" {
		return videoPath, nil
	}

	if audioDur, err := system.AudioDuration(audioPath); err != nil {
		p.Log.Debug("audio duration probe failed", "scene", tl.SceneID, "audio", audioPath, "err", err)
	} else if audioDur > tl.Duration {
		p.Log.Warn("narration outlasts scene, mux truncates to the shorter stream",
			"scene", tl.SceneID, "audio_s", audioDur, "video_s", tl.Duration)
	}

	muxedPath := p.Run.SceneMuxedVideo(tl.SceneID)
	if err := p.assembler.Mux(ctx, videoPath, audioPath, muxedPath); err != nil {
		// The silent video remains a valid artifact.
		p.Log.Error("mux failed, using silent video", "scene", tl.SceneID, "err", err)
		return videoPath, nil
	}
	return muxedPath, nil
}

func (p *Pipeline) loadBackground(tl *timeline.SceneTimeline) (*image.RGBA, error) {
	path := tl.BackgroundPath
	if path == "" {
		return nil, &assets.MissingAssetError{Kind: "background", Path: "(unset)"}
	}
	if _, err := os.Stat(path); err != nil {
		alt := p.Run.Path("backgrounds", filepath.Base(path))
		if _, altErr := os.Stat(alt); altErr != nil {
			return nil, &assets.MissingAssetError{Kind: "background", Path: path}
		}
		path = alt
	}
	bg, err := compositor.LoadBackground(path)
	if err != nil {
		return nil, fmt.Errorf("scene %d: %w", tl.SceneID, err)
	}
	return bg, nil
}

// prepareCharacters loads every character's base sprite and pre-renders all
// clips the timeline references. Clip rendering is independent across
// characters and runs in parallel.
func (p *Pipeline) prepareCharacters(ctx context.Context, tl *timeline.SceneTimeline) ([]compositor.Character, map[string]string, error) {
	names := tl.CharacterNames()
	characters := make([]compositor.Character, len(names))
	spritePaths := make(map[string]string, len(names))

	for _, name := range names {
		path := p.Run.CharacterSprite(composer.SafeName(name))
		if _, err := os.Stat(path); err != nil {
			return nil, nil, &assets.MissingAssetError{Kind: "sprite", Path: path}
		}
		spritePaths[name] = path
	}

	g, _ := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			ch, err := p.renderCharacterClips(tl, name, spritePaths[name])
			if err != nil {
				return err
			}
			characters[i] = *ch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return characters, spritePaths, nil
}

func (p *Pipeline) renderCharacterClips(tl *timeline.SceneTimeline, name, basePath string) (*compositor.Character, error) {
	base, err := p.animator.Load(basePath)
	if err != nil {
		return nil, err
	}

	clips := make(map[string]sprite.Clip)
	// Clips cover at least the full scene so a looping animation keeps
	// looping instead of playing once, stretched over the segment.
	idle, err := base.RenderClip(math.Max(tl.Duration, base.Duration()), p.Config.FPS)
	if err != nil {
		return nil, fmt.Errorf("character %s: %w", name, err)
	}
	clips[""] = idle

	for _, seg := range tl.SegmentsFor(name) {
		anim := seg.AnimationName
		if anim == "" {
			continue
		}
		if _, done := clips[anim]; done {
			continue
		}
		animPath := p.Run.AnimationSprite(composer.SafeName(name), anim)
		animSprite, err := p.animator.Load(animPath)
		if err != nil {
			// Fall back to the idle clip rather than failing the scene.
			p.Log.Warn("animation sprite unavailable, using idle",
				"character", name, "animation", anim, "err", err)
			continue
		}
		clip, err := animSprite.RenderClip(math.Max(tl.Duration, animSprite.Duration()), p.Config.FPS)
		if err != nil {
			return nil, fmt.Errorf("character %s animation %s: %w", name, anim, err)
		}
		clips[anim] = clip
	}

	return &compositor.Character{
		Name:     name,
		Segments: tl.SegmentsFor(name),
		Clips:    clips,
	}, nil
}

// renderOverlay composes the scene SVG, persists it as an artifact and
// renders it into the scene-length overlay clip.
func (p *Pipeline) renderOverlay(tl *timeline.SceneTimeline, spritePaths map[string]string) (sprite.Clip, error) {
	svg, err := p.composer.Compose(tl, spritePaths, p.Config.AmbientFX)
	if err != nil {
		return nil, err
	}

	svgPath := p.Run.SceneSVG(tl.SceneID)
	if err := os.WriteFile(svgPath, []byte(svg), 0644); err != nil {
		return nil, fmt.Errorf("save scene svg: %w", err)
	}

	overlaySprite, err := p.animator.LoadString(svg)
	if err != nil {
		return nil, fmt.Errorf("scene %d overlay: %w", tl.SceneID, err)
	}
	overlaySprite.Path = svgPath
	return overlaySprite.RenderClip(tl.Duration, p.Config.FPS)
}

// resolveAudio locates the scene's narration audio: an explicit path from
// the timeline, or the conventional per-scene file in the run layout.
func (p *Pipeline) resolveAudio(tl *timeline.SceneTimeline) string {
	candidates := []string{}
	if tl.AudioPath != "" {
		candidates = append(candidates, tl.AudioPath)
	}
	candidates = append(candidates, p.Run.SceneAudio(tl.SceneID))

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Size() > 0 {
			return c
		}
	}
	return ""
}
