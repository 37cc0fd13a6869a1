package sprite

import (
	"fmt"
	"strconv"
	"strings"
)

// Directive is one declarative animation embedded in a sprite: a time-keyed
// modification of a single attribute on its parent element. The directive
// element itself is a modifier, not a drawable.
type Directive struct {
	Attribute  string   // attributeName
	Transform  string   // translate, scale, rotate; empty for plain animate
	Values     []string // raw keyframe values, in order
	Duration   float64  // seconds
	Indefinite bool     // repeatCount="indefinite"

	parent *Element // element the resolved value is written onto
	elem   *Element // the directive element, skipped at serialization
}

// collectDirectives walks the tree and extracts every animate /
// animateTransform element together with its parent.
func collectDirectives(root *Element) []Directive {
	var out []Directive
	var walk func(el *Element)
	walk = func(el *Element) {
		for _, child := range el.Children {
			if child.Name == "animate" || child.Name == "animateTransform" {
				d := Directive{
					Attribute: child.Attr("attributeName"),
					Duration:  parseDur(child.Attr("dur")),
					parent:    el,
					elem:      child,
				}
				if child.Name == "animateTransform" {
					d.Transform = child.Attr("type")
				}
				if rc := child.Attr("repeatCount"); rc == "indefinite" {
					d.Indefinite = true
				}
				if vs := child.Attr("values"); vs != "" {
					for _, v := range strings.Split(vs, ";") {
						if v = strings.TrimSpace(v); v != "" {
							d.Values = append(d.Values, v)
						}
					}
				} else if from, to := child.Attr("from"), child.Attr("to"); from != "" && to != "" {
					d.Values = []string{strings.TrimSpace(from), strings.TrimSpace(to)}
				}
				out = append(out, d)
			}
			walk(child)
		}
	}
	walk(root)
	return out
}

// parseDur converts an SVG duration string ("2s", "500ms", "1.5") to
// seconds. Unparseable or absent durations default to one second.
func parseDur(s string) float64 {
	s = strings.TrimSpace(s)
	var scale = 1.0
	switch {
	case strings.HasSuffix(s, "ms"):
		s, scale = s[:len(s)-2], 0.001
	case strings.HasSuffix(s, "s"):
		s = s[:len(s)-1]
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d <= 0 {
		return 1.0
	}
	return d * scale
}

// valueKind discriminates the parse result of one keyframe value.
type valueKind int

const (
	kindScalar valueKind = iota
	kindPair
	kindColor
)

// keyValue is one parsed keyframe value.
type keyValue struct {
	kind   valueKind
	scalar float64
	pair   [2]float64
	rgb    [3]int
	pivot  string // trailing "cx cy" of a rotate value, carried verbatim
}

// parseKeyValue classifies a raw keyframe value as a hex color, a numeric
// scalar, a 2-tuple, or — for three numeric fields — a scalar with a rotate
// pivot. Anything else is unparseable and returns false.
func parseKeyValue(raw string) (keyValue, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return keyValue{}, false
	}

	if strings.HasPrefix(raw, "#") {
		rgb, ok := parseHexColor(raw)
		if !ok {
			return keyValue{}, false
		}
		return keyValue{kind: kindColor, rgb: rgb}, true
	}

	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
	nums := make([]float64, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return keyValue{}, false
		}
		nums = append(nums, n)
	}

	switch len(nums) {
	case 1:
		return keyValue{kind: kindScalar, scalar: nums[0]}, true
	case 2:
		return keyValue{kind: kindPair, pair: [2]float64{nums[0], nums[1]}}, true
	case 3:
		// rotate keyframe "angle cx cy": the angle interpolates, the pivot
		// is carried through from the bracketing keyframe unchanged.
		return keyValue{
			kind:   kindScalar,
			scalar: nums[0],
			pivot:  fields[1] + " " + fields[2],
		}, true
	}
	return keyValue{}, false
}

func parseHexColor(s string) ([3]int, bool) {
	if len(s) != 7 {
		return [3]int{}, false
	}
	var rgb [3]int
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseInt(s[1+i*2:3+i*2], 16, 32)
		if err != nil {
			return [3]int{}, false
		}
		rgb[i] = int(v)
	}
	return rgb, true
}

// interpolate blends two keyframe values of the same kind at factor t.
// Colors interpolate per channel in integer space with truncation.
func interpolate(a, b keyValue, t float64) (keyValue, bool) {
	if a.kind != b.kind {
		return keyValue{}, false
	}
	switch a.kind {
	case kindScalar:
		return keyValue{kind: kindScalar, scalar: lerp(a.scalar, b.scalar, t), pivot: a.pivot}, true
	case kindPair:
		return keyValue{kind: kindPair, pair: [2]float64{
			lerp(a.pair[0], b.pair[0], t),
			lerp(a.pair[1], b.pair[1], t),
		}}, true
	case kindColor:
		var rgb [3]int
		for i := 0; i < 3; i++ {
			rgb[i] = a.rgb[i] + int(float64(b.rgb[i]-a.rgb[i])*t)
		}
		return keyValue{kind: kindColor, rgb: rgb}, true
	}
	return keyValue{}, false
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// format renders a resolved value back into attribute syntax for the
// directive's target attribute. Returns false for combinations that have no
// sensible attribute form (for example a color on animateTransform); those
// directive contributions are skipped for the frame.
func (d *Directive) format(v keyValue) (string, bool) {
	if d.Transform != "" {
		switch d.Transform {
		case "translate":
			if v.kind == kindPair {
				return fmt.Sprintf("translate(%s,%s)", fnum(v.pair[0]), fnum(v.pair[1])), true
			}
			if v.kind == kindScalar {
				return fmt.Sprintf("translate(%s)", fnum(v.scalar)), true
			}
		case "scale":
			if v.kind == kindPair {
				return fmt.Sprintf("scale(%s,%s)", fnum(v.pair[0]), fnum(v.pair[1])), true
			}
			if v.kind == kindScalar {
				return fmt.Sprintf("scale(%s)", fnum(v.scalar)), true
			}
		case "rotate":
			if v.kind == kindScalar {
				if v.pivot != "" {
					return fmt.Sprintf("rotate(%s %s)", fnum(v.scalar), v.pivot), true
				}
				return fmt.Sprintf("rotate(%s)", fnum(v.scalar)), true
			}
		}
		return "", false
	}

	switch v.kind {
	case kindColor:
		return fmt.Sprintf("#%02x%02x%02x", v.rgb[0], v.rgb[1], v.rgb[2]), true
	case kindScalar:
		return fnum(v.scalar), true
	case kindPair:
		return fnum(v.pair[0]) + " " + fnum(v.pair[1]), true
	}
	return "", false
}

// fnum formats a float compactly and deterministically, so sampling the
// same time twice yields byte-identical documents.
func fnum(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
