/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

// Text measurement and line breaking behind small interfaces so the raster
// exporters can swap font engines: basicfont for deterministic tests, OpenType
// faces for real output.

import (
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// FontSpec describes a requested font.
type FontSpec struct {
	Family string // logical family name
	SizePt float32
	Weight int // 100..900
	Italic bool
}

// Bold reports whether the spec asks for a bold weight.
func (f FontSpec) Bold() bool { return f.Weight >= 600 }

// Metrics provides font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float32
}

// SpanBox turns a span into an atomic inline box with padding and background,
// like an inline-block badge. It is never broken across lines.
type SpanBox struct {
	PadX, PadY  float32
	MarginRight float32
	Radius      float32
	Background  color.RGBA
}

// Span is a run of text with the same font/style.
type Span struct {
	Text  string
	Font  FontSpec
	Color color.RGBA
	Box   *SpanBox
}

// Line is a single laid out line with width and ascent/descent.
type Line struct {
	Spans   []Span
	Width   float32
	Ascent  float32
	Descent float32
	LineGap float32
}

// Height is the advance from this line to the next one.
func (l Line) Height() float32 { return l.Ascent + l.Descent + l.LineGap }

// TextBox is the result of laying out text into a box width.
type TextBox struct {
	Lines   []Line
	Width   float32
	Height  float32
	Metrics Metrics
}

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// Layouter performs line-breaking and measurement.
type Layouter interface {
	Layout(spans []Span, maxWidth float32) (TextBox, error)
}

// BasicProvider uses x/image/basicfont Face7x13 for deterministic tests.
type BasicProvider struct{}

func (BasicProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	f := basicfont.Face7x13
	m := f.Metrics()
	return f, Metrics{
		Ascent:  float32(m.Ascent.Round()),
		Descent: float32(m.Descent.Round()),
		LineGap: float32(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
	}
}

// WordWrapLayouter breaks on spaces and explicit newlines; it does not perform
// shaping or hyphenation. Each span is measured with its own face and line
// metrics grow to the tallest span on the line.
type WordWrapLayouter struct{ Provider Provider }

func NewWordWrap(provider Provider) *WordWrapLayouter { return &WordWrapLayouter{Provider: provider} }

func (l *WordWrapLayouter) Layout(spans []Span, maxWidth float32) (TextBox, error) {
	if l.Provider == nil {
		l.Provider = BasicProvider{}
	}
	var first FontSpec
	if len(spans) > 0 {
		first = spans[0].Font
	}
	_, base := l.Provider.Resolve(first)
	box := TextBox{Metrics: base}

	var cur Line
	grow := func(met Metrics, padY float32) {
		if a := met.Ascent + padY; a > cur.Ascent {
			cur.Ascent = a
		}
		if d := met.Descent + padY; d > cur.Descent {
			cur.Descent = d
		}
		if met.LineGap > cur.LineGap {
			cur.LineGap = met.LineGap
		}
	}
	addLine := func() {
		if cur.Ascent == 0 && cur.Descent == 0 {
			grow(base, 0)
		}
		box.Lines = append(box.Lines, cur)
		if cur.Width > box.Width {
			box.Width = cur.Width
		}
		box.Height += cur.Height()
		cur = Line{}
	}
	fits := func(w float32) bool {
		return maxWidth <= 0 || cur.Width == 0 || cur.Width+w <= maxWidth
	}

	for _, sp := range spans {
		if sp.Text == "" {
			continue
		}
		face, met := l.Provider.Resolve(sp.Font)
		drawer := &font.Drawer{Face: face}

		if sp.Box != nil {
			w := advance(drawer, sp.Text) + 2*sp.Box.PadX + sp.Box.MarginRight
			if !fits(w) {
				addLine()
			}
			cur.Spans = append(cur.Spans, sp)
			cur.Width += w
			grow(met, sp.Box.PadY)
			continue
		}

		start := 0
		for i := 0; i <= len(sp.Text); i++ {
			if i < len(sp.Text) && sp.Text[i] != ' ' && sp.Text[i] != '\n' {
				continue
			}
			word := sp.Text[start:i]
			sep := byte(0)
			if i < len(sp.Text) {
				sep = sp.Text[i]
			}
			w := advance(drawer, word)
			if word != "" && !fits(w) {
				addLine()
			}
			if word != "" {
				cur.Spans = append(cur.Spans, Span{Text: word, Font: sp.Font, Color: sp.Color})
				cur.Width += w
				grow(met, 0)
			}
			switch sep {
			case ' ':
				if cur.Width > 0 {
					cur.Spans = append(cur.Spans, Span{Text: " ", Font: sp.Font, Color: sp.Color})
					cur.Width += advance(drawer, " ")
				}
			case '\n':
				addLine()
			}
			start = i + 1
		}
	}
	if len(cur.Spans) > 0 || len(box.Lines) == 0 {
		addLine()
	}
	return box, nil
}

// SpanWidth returns the horizontal advance of a laid out span including box padding.
func SpanWidth(provider Provider, sp Span) float32 {
	if provider == nil {
		provider = BasicProvider{}
	}
	face, _ := provider.Resolve(sp.Font)
	w := advance(&font.Drawer{Face: face}, sp.Text)
	if sp.Box != nil {
		w += 2*sp.Box.PadX + sp.Box.MarginRight
	}
	return w
}

func advance(d *font.Drawer, s string) float32 {
	return float32(d.MeasureString(s)) / 64 // fixed.Int26_6 to px
}

// Measure provides a quick way to measure text width/height without line-breaks.
func Measure(provider Provider, spans []Span) (w, h float32) {
	if provider == nil {
		provider = BasicProvider{}
	}
	_, met := provider.Resolve(FontSpec{})
	var width float32
	for _, sp := range spans {
		width += SpanWidth(provider, Span{Text: sp.Text, Font: sp.Font})
	}
	return width, met.Ascent + met.Descent
}
