/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"image/color"
	"regexp"
	"strconv"
	"strings"

	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"comicstrip/internal/render"
)

// The canvas rasterizer understands the subset of inline CSS the composer emits:
// box sizes, padding, margins, borders, backgrounds, text color/size/weight/alignment,
// two-dimensional grids with repeat(N, 1fr) columns and centered flex boxes.

const (
	sideTop = iota
	sideRight
	sideBottom
	sideLeft
)

type borderSide struct {
	width float64
	style string
	color color.RGBA
}

func (b borderSide) visible() bool { return b.width > 0 && b.style != "none" && b.style != "hidden" }

type computedStyle struct {
	display string

	width       float64
	height      float64
	widthPct    float64
	heightPct   float64
	padding     [4]float64
	marginTop   float64
	marginBot   float64
	marginRight float64
	border      [4]borderSide
	radius      float64

	background    color.RGBA
	hasBackground bool
	color         color.RGBA
	fontSize      float64
	bold          bool
	family        string
	align         string

	gridCols    int
	gap         float64
	center      bool
	objectFit   string
	positionAbs bool
}

var (
	black = color.RGBA{0, 0, 0, 0xff}
	white = color.RGBA{0xff, 0xff, 0xff, 0xff}

	namedColors = map[string]color.RGBA{
		"black":  black,
		"white":  white,
		"red":    {0xff, 0, 0, 0xff},
		"green":  {0, 0x80, 0, 0xff},
		"blue":   {0, 0, 0xff, 0xff},
		"gray":   {0x80, 0x80, 0x80, 0xff},
		"grey":   {0x80, 0x80, 0x80, 0xff},
		"silver": {0xc0, 0xc0, 0xc0, 0xff},
	}

	reRepeat = regexp.MustCompile(`^repeat\(\s*(\d+)\s*,`)
	reRGB    = regexp.MustCompile(`^rgba?\(\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)`)
)

const baseFontSize = 16.0

// rootStyle is the inherited style of the document body.
func rootStyle(scale float64) computedStyle {
	return computedStyle{display: "block", color: black, fontSize: baseFontSize * scale, align: "left"}
}

type declaration struct {
	prop, value string
}

// declarations parses an inline style attribute in source order. A declaration
// shadowed by an earlier !important one for the same property is dropped.
func declarations(style string) []declaration {
	if strings.TrimSpace(style) == "" {
		return nil
	}
	decls, err := parser.ParseDeclarations(style)
	if err != nil {
		return nil
	}
	var out []declaration
	important := map[string]bool{}
	for _, d := range decls {
		prop := strings.ToLower(strings.TrimSpace(d.Property))
		if important[prop] && !d.Important {
			continue
		}
		if d.Important {
			important[prop] = true
		}
		out = append(out, declaration{prop: prop, value: strings.TrimSpace(d.Value)})
	}
	return out
}

func lookup(decls []declaration, prop string) (string, bool) {
	v, ok := "", false
	for _, d := range decls {
		if d.prop == prop {
			v, ok = d.value, true
		}
	}
	return v, ok
}

// computeStyle resolves n's style from user agent defaults, inheritance from parent and
// its inline style. Lengths are returned in device pixels.
func computeStyle(n *html.Node, parent computedStyle, scale float64) computedStyle {
	st := computedStyle{
		display:  "block",
		color:    parent.color,
		fontSize: parent.fontSize,
		bold:     parent.bold,
		family:   parent.family,
		align:    parent.align,
	}
	switch n.DataAtom {
	case atom.Span, atom.Strong, atom.B, atom.Em, atom.I, atom.A, atom.Br:
		st.display = "inline"
	case atom.Img:
		st.display = "inline-block"
	}
	switch n.DataAtom {
	case atom.Strong, atom.B:
		st.bold = true
	case atom.H1:
		st.bold = true
		st.fontSize = parent.fontSize * 2
		st.marginTop, st.marginBot = 0.67*st.fontSize, 0.67*st.fontSize
	case atom.H2:
		st.bold = true
		st.fontSize = parent.fontSize * 1.5
		st.marginTop, st.marginBot = 0.83*st.fontSize, 0.83*st.fontSize
	case atom.P:
		st.marginBot = 0.5 * st.fontSize
	}

	style, _ := render.Attr(n, "style")
	d := declarations(style)

	// font-size first so em lengths below resolve against it
	if v, ok := lookup(d, "font-size"); ok {
		if px, pct, ok := parseLength(v, parent.fontSize, scale); ok {
			if pct > 0 {
				px = parent.fontSize * pct
			}
			st.fontSize = px
			if n.DataAtom == atom.H2 {
				st.marginTop, st.marginBot = 0.83*st.fontSize, 0.83*st.fontSize
			}
		}
	}
	for _, decl := range d {
		v := decl.value
		switch decl.prop {
		case "display":
			st.display = v
			if v == "flex" || v == "inline-flex" {
				st.display = "block"
			}
		case "width":
			st.width, st.widthPct, _ = parseLength(v, st.fontSize, scale)
		case "height":
			st.height, st.heightPct, _ = parseLength(v, st.fontSize, scale)
		case "padding":
			st.padding = parseBox(v, st.fontSize, scale)
		case "padding-top":
			st.padding[sideTop], _, _ = parseLength(v, st.fontSize, scale)
		case "padding-right":
			st.padding[sideRight], _, _ = parseLength(v, st.fontSize, scale)
		case "padding-bottom":
			st.padding[sideBottom], _, _ = parseLength(v, st.fontSize, scale)
		case "padding-left":
			st.padding[sideLeft], _, _ = parseLength(v, st.fontSize, scale)
		case "margin":
			m := parseBox(v, st.fontSize, scale)
			st.marginTop, st.marginRight, st.marginBot = m[sideTop], m[sideRight], m[sideBottom]
		case "margin-top":
			st.marginTop, _, _ = parseLength(v, st.fontSize, scale)
		case "margin-bottom":
			st.marginBot, _, _ = parseLength(v, st.fontSize, scale)
		case "margin-right":
			st.marginRight, _, _ = parseLength(v, st.fontSize, scale)
		case "border":
			b := parseBorder(v, st.fontSize, scale)
			st.border = [4]borderSide{b, b, b, b}
		case "border-top":
			st.border[sideTop] = parseBorder(v, st.fontSize, scale)
		case "border-right":
			st.border[sideRight] = parseBorder(v, st.fontSize, scale)
		case "border-bottom":
			st.border[sideBottom] = parseBorder(v, st.fontSize, scale)
		case "border-left":
			st.border[sideLeft] = parseBorder(v, st.fontSize, scale)
		case "border-radius":
			st.radius, _, _ = parseLength(v, st.fontSize, scale)
		case "background-color", "background":
			if c, ok := parseColor(v); ok {
				st.background, st.hasBackground = c, c.A > 0
			}
		case "color":
			if c, ok := parseColor(v); ok {
				st.color = c
			}
		case "font-weight":
			st.bold = v == "bold" || v == "bolder" || (len(v) == 3 && v >= "600")
		case "font-family":
			st.family = firstFamily(v)
		case "text-align":
			st.align = v
		case "grid-template-columns":
			st.gridCols = gridColumns(v)
		case "gap", "grid-gap":
			if f := strings.Fields(v); len(f) > 0 {
				st.gap, _, _ = parseLength(f[0], st.fontSize, scale)
			}
		case "justify-content":
			st.center = st.center || v == "center"
		case "object-fit":
			st.objectFit = v
		case "position":
			st.positionAbs = v == "absolute" || v == "fixed"
		}
	}
	return st
}

// parseLength returns a length in device pixels, or a fraction for percentages.
func parseLength(v string, fontSize, scale float64) (px, pct float64, ok bool) {
	v = strings.TrimSpace(strings.ToLower(v))
	switch {
	case v == "0":
		return 0, 0, true
	case strings.HasSuffix(v, "px"):
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
		return f * scale, 0, err == nil
	case strings.HasSuffix(v, "em"):
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSuffix(v, "em"), "r"), 64)
		if strings.HasSuffix(v, "rem") {
			return f * baseFontSize * scale, 0, err == nil
		}
		return f * fontSize, 0, err == nil
	case strings.HasSuffix(v, "%"):
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
		return 0, f / 100, err == nil
	}
	return 0, 0, false
}

func parseBox(v string, fontSize, scale float64) [4]float64 {
	var vals []float64
	for _, f := range strings.Fields(v) {
		px, _, _ := parseLength(f, fontSize, scale)
		vals = append(vals, px)
	}
	switch len(vals) {
	case 1:
		return [4]float64{vals[0], vals[0], vals[0], vals[0]}
	case 2:
		return [4]float64{vals[0], vals[1], vals[0], vals[1]}
	case 3:
		return [4]float64{vals[0], vals[1], vals[2], vals[1]}
	case 4:
		return [4]float64{vals[0], vals[1], vals[2], vals[3]}
	}
	return [4]float64{}
}

func parseBorder(v string, fontSize, scale float64) borderSide {
	b := borderSide{style: "solid", color: black}
	for _, f := range strings.Fields(strings.ToLower(v)) {
		if px, _, ok := parseLength(f, fontSize, scale); ok {
			b.width = px
			continue
		}
		switch f {
		case "none", "hidden", "solid", "dashed", "dotted", "double":
			b.style = f
			continue
		}
		if c, ok := parseColor(f); ok {
			b.color = c
		}
	}
	if b.width == 0 && b.style != "none" {
		b.width = scale
	}
	return b
}

func parseColor(v string) (color.RGBA, bool) {
	v = strings.TrimSpace(strings.ToLower(v))
	if c, ok := namedColors[v]; ok {
		return c, true
	}
	if v == "transparent" {
		return color.RGBA{}, true
	}
	if m := reRGB.FindStringSubmatch(v); m != nil {
		r, _ := strconv.Atoi(m[1])
		g, _ := strconv.Atoi(m[2])
		b, _ := strconv.Atoi(m[3])
		return color.RGBA{uint8(r), uint8(g), uint8(b), 0xff}, true
	}
	if !strings.HasPrefix(v, "#") {
		return color.RGBA{}, false
	}
	hex := v[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, false
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{uint8(n >> 16), uint8(n >> 8), uint8(n), 0xff}, true
}

func gridColumns(v string) int {
	if m := reRepeat.FindStringSubmatch(v); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return len(strings.Fields(v))
}

func firstFamily(v string) string {
	first := strings.Split(v, ",")[0]
	return strings.Trim(strings.TrimSpace(first), `'"`)
}
