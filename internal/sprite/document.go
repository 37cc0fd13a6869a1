// Package sprite parses vector sprite documents, samples their embedded
// declarative animations at arbitrary playback times and rasterizes the
// result into RGBA frames.
package sprite

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Attr is one attribute of a document element. Order is preserved so that
// serializing the same document twice yields identical bytes.
type Attr struct {
	Name  string
	Value string
}

// Element is a node of a parsed sprite document. The tree is treated as
// immutable after parsing: per-frame attribute values are supplied through
// an overlay at serialization time, never written back into the tree, so
// clips for different frames can be rendered from the same sprite
// concurrently.
type Element struct {
	Name     string
	Attrs    []Attr
	Children []*Element
	Text     string
}

// Attr returns the value of the named attribute, or "" if absent.
func (e *Element) Attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// parseDocument builds an Element tree from SVG markup. Namespace prefixes
// are dropped: the renderer cares about local names only.
func parseDocument(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)

	var root *Element
	var stack []*Element

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse sprite document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: t.Name.Local}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				el.Attrs = append(el.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("parse sprite document: multiple root elements")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("parse sprite document: unbalanced end tag %q", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				text := strings.TrimSpace(string(t))
				if text != "" {
					stack[len(stack)-1].Text += text
				}
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("parse sprite document: no root element")
	}
	if root.Name != "svg" {
		return nil, fmt.Errorf("parse sprite document: root element is %q, want svg", root.Name)
	}
	return root, nil
}

// overlay carries attribute values resolved for one frame, keyed by target
// element. Elements in the skip set are not serialized at all; this is how
// animation directives are removed from the static per-frame document.
type overlay struct {
	attrs map[*Element]map[string]string
	skip  map[*Element]bool
}

func newOverlay() *overlay {
	return &overlay{
		attrs: make(map[*Element]map[string]string),
		skip:  make(map[*Element]bool),
	}
}

func (o *overlay) set(el *Element, name, value string) {
	m, ok := o.attrs[el]
	if !ok {
		m = make(map[string]string)
		o.attrs[el] = m
	}
	m[name] = value
}

// serialize writes the document as standalone SVG markup with the overlay
// applied. The base tree is not touched.
func serialize(root *Element, o *overlay) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	writeElement(&sb, root, o, true)
	return sb.String()
}

func writeElement(sb *strings.Builder, el *Element, o *overlay, isRoot bool) {
	if o != nil && o.skip[el] {
		return
	}

	sb.WriteByte('<')
	sb.WriteString(el.Name)
	if isRoot {
		sb.WriteString(` xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink"`)
	}

	var resolved map[string]string
	if o != nil {
		resolved = o.attrs[el]
	}
	written := make(map[string]bool)
	for _, a := range el.Attrs {
		v := a.Value
		if rv, ok := resolved[a.Name]; ok {
			v = rv
		}
		writeAttr(sb, a.Name, v)
		written[a.Name] = true
	}
	// Resolved attributes the base element never carried (e.g. a transform
	// introduced by a directive) are appended in sorted order for
	// deterministic output.
	if len(resolved) > 0 {
		for _, name := range sortedKeys(resolved) {
			if !written[name] {
				writeAttr(sb, name, resolved[name])
			}
		}
	}

	if len(el.Children) == 0 && el.Text == "" {
		sb.WriteString("/>")
		return
	}

	sb.WriteByte('>')
	if el.Text != "" {
		xml.EscapeText(sb, []byte(el.Text))
	}
	for _, child := range el.Children {
		writeElement(sb, child, o, false)
	}
	sb.WriteString("</")
	sb.WriteString(el.Name)
	sb.WriteByte('>')
}

func writeAttr(sb *strings.Builder, name, value string) {
	sb.WriteByte(' ')
	// xlink:href survives namespace stripping as a plain href; oksvg accepts
	// both spellings.
	sb.WriteString(name)
	sb.WriteString(`="`)
	xml.EscapeText(sb, []byte(value))
	sb.WriteByte('"')
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
