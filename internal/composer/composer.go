// Package composer assembles per-scene overlay documents: every character's
// sprite definitions merged into one SVG, instanced per movement segment,
// with ambient particle effects. The composed document is itself a sprite
// and is rendered into the scene-overlay clip by the sprite package.
package composer

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/0xBoji/pippin-studio/internal/timeline"
)

const svgHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
	`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="1024" height="1024" viewBox="0 0 1024 1024">` + "\n"

// Composer builds scene overlay SVGs.
type Composer struct {
	Log *log.Logger
}

func New(logger *log.Logger) *Composer {
	return &Composer{Log: logger}
}

// Compose builds the scene document for one timeline. spritePaths maps
// character names to their base sprite files; characters without a sprite
// are skipped with a warning. ambient enables the particle effects layer.
//
// Output is deterministic for a given timeline: the particle layout is
// seeded by the scene id.
func (c *Composer) Compose(tl *timeline.SceneTimeline, spritePaths map[string]string, ambient bool) (string, error) {
	var sb strings.Builder
	sb.WriteString(svgHeader)

	sb.WriteString("<defs>\n")
	for _, name := range tl.CharacterNames() {
		path, ok := spritePaths[name]
		if !ok {
			c.Log.Warn("no sprite for character, skipping", "scene", tl.SceneID, "character", name)
			continue
		}
		defs, err := extractDefs(path)
		if err != nil {
			return "", fmt.Errorf("compose scene %d: %w", tl.SceneID, err)
		}
		sb.WriteString(defs)
	}
	sb.WriteString("</defs>\n")

	for _, m := range tl.Movements {
		if _, ok := spritePaths[m.CharacterName]; !ok {
			continue
		}
		writeInstance(&sb, m)
	}

	if ambient {
		writeParticles(&sb, rand.New(rand.NewSource(int64(tl.SceneID))), tl.Duration)
	}

	sb.WriteString("</svg>\n")
	return sb.String(), nil
}

// extractDefs returns the inner markup of the sprite's defs block. Sprites
// without a defs block contribute nothing.
func extractDefs(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s := string(data)
	open := strings.Index(s, "<defs>")
	if open == -1 {
		return "", nil
	}
	end := strings.Index(s, "</defs>")
	if end == -1 || end < open {
		return "", fmt.Errorf("unterminated defs block in %s", path)
	}
	return s[open+len("<defs>") : end], nil
}

// writeInstance emits one character instance group for a movement segment.
// Segments carrying an animation name additionally get an animateMotion
// along a shallow quadratic arc from start to end position.
func writeInstance(sb *strings.Builder, m timeline.Segment) {
	safe := SafeName(m.CharacterName)
	fmt.Fprintf(sb, `<g id="%s_instance" transform="translate(%g,%g) scale(1)">`+"\n",
		safe, m.StartPosition[0], m.StartPosition[1])
	fmt.Fprintf(sb, `<g><use xlink:href="#%s_base_character"/>`, safe)

	if m.AnimationName != "" {
		dur := m.EndTime - m.StartTime
		dx := m.EndPosition[0] - m.StartPosition[0]
		dy := m.EndPosition[1] - m.StartPosition[1]
		dist := math.Hypot(dx, dy)
		arc := math.Min(50, dist*0.2)
		cx := dx / 2
		cy := math.Min(0, dy) - arc
		fmt.Fprintf(sb,
			`<animateMotion dur="%gs" begin="%gs" fill="freeze" calcMode="spline" keySplines="0.42 0 0.58 1" path="M 0,0 Q %g,%g %g,%g"/>`,
			dur, m.StartTime, cx, cy, dx, dy)
	}

	sb.WriteString("</g>\n</g>\n")
}

// writeParticles emits the ambient effects layer: five drifting, fading,
// pulsing dots.
func writeParticles(sb *strings.Builder, r *rand.Rand, duration float64) {
	sb.WriteString(`<g id="particles">` + "\n")
	for i := 0; i < 5; i++ {
		x := r.Intn(1000)
		y := r.Intn(1000)
		dx := r.Intn(101) - 50
		dy := r.Intn(101) - 50
		pulse := 1.2 + r.Float64()*0.3

		fmt.Fprintf(sb, `<g id="particle_%d"><circle cx="%d" cy="%d" r="5" fill="#FFD700" opacity="0.8">`+"\n", i, x, y)
		fmt.Fprintf(sb, `<animate attributeName="opacity" values="0.8;0.2;0.8" dur="%gs" repeatCount="indefinite"/>`+"\n", duration)
		sb.WriteString("</circle>\n")
		fmt.Fprintf(sb, `<animateTransform attributeName="transform" type="translate" values="0,0;%d,%d" dur="%gs" repeatCount="indefinite" additive="sum"/>`+"\n", dx, dy, duration)
		fmt.Fprintf(sb, `<animateTransform attributeName="transform" type="scale" values="1;%.2f;1" dur="%gs" repeatCount="indefinite" additive="sum"/>`+"\n", pulse, duration*1.2)
		sb.WriteString("</g>\n")
	}
	sb.WriteString("</g>\n")
}

// SafeName converts a character name into an identifier safe for SVG ids
// and filenames.
func SafeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	var b strings.Builder
	for _, r := range s {
		if r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 50 {
		out = out[:50]
	}
	return out
}
