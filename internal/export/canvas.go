/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"comicstrip/internal/render"
	"comicstrip/internal/textlayout"
)

// maxCanvasSide bounds either side of the output bitmap.
const maxCanvasSide = 32000

// CanvasRasterizer lays out and paints export trees in pure Go. It supports the
// block, grid and inline text layout used by the export composition.
type CanvasRasterizer struct {
	Provider textlayout.Provider

	// faces from one provider are not safe for concurrent drawing
	mu sync.Mutex
}

// NewCanvasRasterizer uses the bundled Go fonts, falling back to basicfont.
func NewCanvasRasterizer() (*CanvasRasterizer, error) {
	lib, err := textlayout.GoFonts()
	if err != nil {
		return nil, fmt.Errorf("load fonts: %w", err)
	}
	return &CanvasRasterizer{Provider: textlayout.OTProvider{Lib: lib, DefaultFamily: textlayout.FamilyGo}}, nil
}

type layoutBox struct {
	st   computedStyle
	x, y float64
	w, h float64

	kids []*layoutBox

	text  *textlayout.TextBox
	textX float64
	textY float64
	textW float64
	img   image.Image
}

type canvasLayout struct {
	provider textlayout.Provider
	wrap     *textlayout.WordWrapLayouter
	images   map[string]image.Image
	scale    float64
}

// Rasterize implements Rasterizer.
func (r *CanvasRasterizer) Rasterize(ctx context.Context, f Frame, scale float64) (image.Image, error) {
	if f.Root == nil {
		return nil, errors.New("canvas: nothing to rasterize")
	}
	if f.Stage != nil && !f.Stage.Attached(f.Root) {
		return nil, errors.New("canvas: tree is not attached")
	}
	if scale <= 0 {
		scale = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	provider := r.Provider
	if provider == nil {
		provider = textlayout.BasicProvider{}
	}
	cl := &canvasLayout{provider: provider, wrap: textlayout.NewWordWrap(provider), images: f.Images, scale: scale}

	root := cl.block(f.Root, rootStyle(scale), 0, 0, 0)
	w, h := int(math.Ceil(root.w)), int(math.Ceil(root.h))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("canvas: empty layout %dx%d", w, h)
	}
	if w > maxCanvasSide || h > maxCanvasSide {
		return nil, fmt.Errorf("canvas: layout %dx%d exceeds %d px", w, h, maxCanvasSide)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)
	cl.paint(dst, root)
	return dst, nil
}

func isElement(n *html.Node) bool { return n.Type == html.ElementNode }

func isInline(n *html.Node, parent computedStyle, scale float64) bool {
	if n.Type == html.TextNode {
		return true
	}
	if !isElement(n) || n.DataAtom == atom.Img {
		return false
	}
	d := computeStyle(n, parent, scale).display
	return d == "inline" || d == "inline-block"
}

// block lays out n as a block box at (x, y). availW <= 0 means shrink to the
// style width.
func (cl *canvasLayout) block(n *html.Node, parent computedStyle, x, y, availW float64) *layoutBox {
	st := computeStyle(n, parent, cl.scale)
	b := &layoutBox{st: st, x: x, y: y}

	hor := st.padding[sideLeft] + st.padding[sideRight] + st.border[sideLeft].width + st.border[sideRight].width
	ver := st.padding[sideTop] + st.padding[sideBottom] + st.border[sideTop].width + st.border[sideBottom].width
	switch {
	case st.width > 0:
		b.w = st.width + hor
	case st.widthPct > 0 && availW > 0:
		b.w = availW * st.widthPct
	default:
		b.w = availW
	}
	cx := x + st.border[sideLeft].width + st.padding[sideLeft]
	cy := y + st.border[sideTop].width + st.padding[sideTop]
	cw := math.Max(0, b.w-hor)
	ch := 0.0
	if st.height > 0 {
		ch = st.height
	}

	var contentH float64
	if st.gridCols > 0 {
		contentH = cl.grid(b, n, cx, cy, cw)
	} else {
		contentH = cl.flow(b, n, cx, cy, cw, ch)
	}
	if st.height > 0 {
		b.h = st.height + ver
	} else {
		b.h = contentH + ver
	}
	return b
}

func (cl *canvasLayout) grid(b *layoutBox, n *html.Node, cx, cy, cw float64) float64 {
	cols := b.st.gridCols
	gap := b.st.gap
	colW := (cw - gap*float64(cols-1)) / float64(cols)

	var items []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isElement(c) {
			items = append(items, c)
		}
	}
	rowY := cy
	for i := 0; i < len(items); i += cols {
		var row []*layoutBox
		rowH := 0.0
		for j := 0; j < cols && i+j < len(items); j++ {
			kid := cl.block(items[i+j], b.st, cx+float64(j)*(colW+gap), rowY, colW)
			row = append(row, kid)
			rowH = math.Max(rowH, kid.h)
		}
		// grid items stretch to the row height
		for _, kid := range row {
			kid.h = rowH
		}
		b.kids = append(b.kids, row...)
		rowY += rowH + gap
	}
	if len(items) == 0 {
		return 0
	}
	return rowY - gap - cy
}

func (cl *canvasLayout) flow(b *layoutBox, n *html.Node, cx, cy, cw, ch float64) float64 {
	curY := cy
	var inline []*html.Node
	flush := func() {
		if len(inline) == 0 {
			return
		}
		if t := cl.inline(b.st, inline, cw); t != nil {
			b.kids = append(b.kids, &layoutBox{st: b.st, x: cx, y: curY, w: cw, h: float64(t.Height),
				text: t, textX: cx, textY: curY, textW: cw})
			curY += float64(t.Height)
		}
		inline = inline[:0]
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case isElement(c) && c.DataAtom == atom.Img:
			flush()
			img := cl.replaced(c, b.st, cx, curY, cw, ch)
			b.kids = append(b.kids, img)
			curY += img.h
		case isInline(c, b.st, cl.scale):
			inline = append(inline, c)
		case isElement(c):
			flush()
			kst := computeStyle(c, b.st, cl.scale)
			curY += kst.marginTop
			kid := cl.block(c, b.st, cx, curY, cw)
			b.kids = append(b.kids, kid)
			curY += kid.h + kst.marginBot
		}
	}
	flush()
	return curY - cy
}

// replaced lays out an image inside a content box of width cw and, when the parent
// has a fixed height, height ch.
func (cl *canvasLayout) replaced(n *html.Node, parent computedStyle, x, y, cw, ch float64) *layoutBox {
	st := computeStyle(n, parent, cl.scale)
	src, _ := render.Attr(n, "src")
	img := cl.images[src]
	b := &layoutBox{st: st, x: x, y: y, img: img}

	switch {
	case st.width > 0:
		b.w = st.width
	case st.widthPct > 0:
		b.w = cw * st.widthPct
	case img != nil:
		b.w = math.Min(cw, float64(img.Bounds().Dx())*cl.scale)
	default:
		b.w = cw
	}
	switch {
	case st.height > 0:
		b.h = st.height
	case st.heightPct > 0 && ch > 0:
		b.h = ch * st.heightPct
	case img != nil && img.Bounds().Dx() > 0:
		b.h = b.w * float64(img.Bounds().Dy()) / float64(img.Bounds().Dx())
	}
	if parent.center && b.w < cw {
		b.x = x + (cw-b.w)/2
	}
	if parent.center && ch > 0 && b.h < ch {
		b.y = y + (ch-b.h)/2
	}
	return b
}

var reSpaces = regexp.MustCompile(`\s+`)

// inline lays out a run of inline nodes as one paragraph.
func (cl *canvasLayout) inline(parent computedStyle, nodes []*html.Node, cw float64) *textlayout.TextBox {
	var spans []textlayout.Span
	var walk func(n *html.Node, st computedStyle)
	walk = func(n *html.Node, st computedStyle) {
		switch {
		case n.Type == html.TextNode:
			txt := reSpaces.ReplaceAllString(n.Data, " ")
			if txt != "" {
				spans = append(spans, textlayout.Span{Text: txt, Font: fontSpec(st), Color: st.color})
			}
		case isElement(n) && n.DataAtom == atom.Br:
			spans = append(spans, textlayout.Span{Text: "\n", Font: fontSpec(st), Color: st.color})
		case isElement(n):
			kst := computeStyle(n, st, cl.scale)
			if kst.display == "inline-block" && (kst.hasBackground || kst.padding != [4]float64{}) {
				spans = append(spans, textlayout.Span{
					Text:  strings.TrimSpace(reSpaces.ReplaceAllString(render.TextContent(n), " ")),
					Font:  fontSpec(kst),
					Color: kst.color,
					Box: &textlayout.SpanBox{
						PadX:        float32(kst.padding[sideLeft]),
						PadY:        float32(kst.padding[sideTop]),
						MarginRight: float32(kst.marginRight),
						Radius:      float32(kst.radius),
						Background:  kst.background,
					},
				})
				return
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c, kst)
			}
		}
	}
	for _, n := range nodes {
		walk(n, parent)
	}
	spans = trimSpans(spans)
	if len(spans) == 0 {
		return nil
	}
	box, err := cl.wrap.Layout(spans, float32(cw))
	if err != nil {
		return nil
	}
	return &box
}

// trimSpans drops leading and trailing whitespace of a paragraph.
func trimSpans(spans []textlayout.Span) []textlayout.Span {
	for len(spans) > 0 && spans[0].Box == nil {
		spans[0].Text = strings.TrimLeft(spans[0].Text, " ")
		if spans[0].Text != "" {
			break
		}
		spans = spans[1:]
	}
	for len(spans) > 0 && spans[len(spans)-1].Box == nil {
		last := &spans[len(spans)-1]
		last.Text = strings.TrimRight(last.Text, " ")
		if last.Text != "" {
			break
		}
		spans = spans[:len(spans)-1]
	}
	return spans
}

func fontSpec(st computedStyle) textlayout.FontSpec {
	w := 400
	if st.bold {
		w = 700
	}
	return textlayout.FontSpec{Family: st.family, SizePt: float32(st.fontSize), Weight: w}
}

func (cl *canvasLayout) paint(dst *image.RGBA, b *layoutBox) {
	r := rectOf(b.x, b.y, b.w, b.h)
	if b.st.hasBackground && b.text == nil && b.img == nil {
		fillRounded(dst, r, b.st.radius, b.st.background)
	}
	if b.img != nil {
		drawContain(dst, r, b.img)
	}
	if b.text != nil {
		cl.paintText(dst, b)
	}
	for _, k := range b.kids {
		cl.paint(dst, k)
	}
	if b.text == nil && b.img == nil {
		strokeBorders(dst, r, b.st)
	}
}

func (cl *canvasLayout) paintText(dst *image.RGBA, b *layoutBox) {
	y := b.textY
	for _, ln := range b.text.Lines {
		x := b.textX
		switch b.st.align {
		case "center":
			x += (b.textW - float64(ln.Width)) / 2
		case "right":
			x += b.textW - float64(ln.Width)
		}
		baseline := y + float64(ln.Ascent)
		for _, sp := range ln.Spans {
			face, met := cl.provider.Resolve(sp.Font)
			w := float64(textlayout.SpanWidth(cl.provider, sp))
			tx := x
			if sp.Box != nil {
				bg := rectOf(x, baseline-float64(met.Ascent+sp.Box.PadY),
					w-float64(sp.Box.MarginRight), float64(met.Ascent+met.Descent+2*sp.Box.PadY))
				fillRounded(dst, bg, float64(sp.Box.Radius), sp.Box.Background)
				tx += float64(sp.Box.PadX)
			}
			drawString(dst, face, sp.Text, tx, baseline, sp.Color)
			x += w
		}
		y += float64(ln.Height())
	}
}

func drawString(dst *image.RGBA, face font.Face, s string, x, baseline float64, c color.RGBA) {
	if strings.TrimSpace(s) == "" {
		return
	}
	if c.A == 0 {
		c = black
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(baseline * 64)},
	}
	d.DrawString(s)
}

func rectOf(x, y, w, h float64) image.Rectangle {
	return image.Rect(int(math.Round(x)), int(math.Round(y)), int(math.Round(x+w)), int(math.Round(y+h)))
}

// drawContain scales img into r preserving its aspect ratio, centered.
func drawContain(dst *image.RGBA, r image.Rectangle, img image.Image) {
	sb := img.Bounds()
	if sb.Dx() <= 0 || sb.Dy() <= 0 || r.Dx() <= 0 || r.Dy() <= 0 {
		return
	}
	k := math.Min(float64(r.Dx())/float64(sb.Dx()), float64(r.Dy())/float64(sb.Dy()))
	w, h := int(math.Round(float64(sb.Dx())*k)), int(math.Round(float64(sb.Dy())*k))
	x0 := r.Min.X + (r.Dx()-w)/2
	y0 := r.Min.Y + (r.Dy()-h)/2
	draw.ApproxBiLinear.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), img, sb, draw.Over, nil)
}

// insideRounded reports whether pixel (px, py) lies in r with corner radius rad.
func insideRounded(px, py int, r image.Rectangle, rad float64) bool {
	if !image.Pt(px, py).In(r) {
		return false
	}
	if rad <= 0 {
		return true
	}
	fx, fy := float64(px)+0.5, float64(py)+0.5
	minX, minY := float64(r.Min.X)+rad, float64(r.Min.Y)+rad
	maxX, maxY := float64(r.Max.X)-rad, float64(r.Max.Y)-rad
	dx, dy := 0.0, 0.0
	if fx < minX {
		dx = minX - fx
	} else if fx > maxX {
		dx = fx - maxX
	}
	if fy < minY {
		dy = minY - fy
	} else if fy > maxY {
		dy = fy - maxY
	}
	return dx*dx+dy*dy <= rad*rad
}

func fillRounded(dst *image.RGBA, r image.Rectangle, rad float64, c color.RGBA) {
	clip := r.Intersect(dst.Bounds())
	if rad <= 0 {
		draw.Draw(dst, clip, image.NewUniform(c), image.Point{}, draw.Over)
		return
	}
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		for x := clip.Min.X; x < clip.Max.X; x++ {
			if insideRounded(x, y, r, rad) {
				dst.SetRGBA(x, y, c)
			}
		}
	}
}

func strokeBorders(dst *image.RGBA, r image.Rectangle, st computedStyle) {
	b := st.border
	uniform := b[sideTop] == b[sideRight] && b[sideTop] == b[sideBottom] && b[sideTop] == b[sideLeft]
	if uniform && b[sideTop].visible() && st.radius > 0 {
		bw := int(math.Round(b[sideTop].width))
		inner := r.Inset(bw)
		innerRad := math.Max(0, st.radius-float64(bw))
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				if insideRounded(x, y, r, st.radius) && !insideRounded(x, y, inner, innerRad) {
					dst.SetRGBA(x, y, b[sideTop].color)
				}
			}
		}
		return
	}
	for side, s := range b {
		if !s.visible() {
			continue
		}
		bw := int(math.Max(1, math.Round(s.width)))
		var band image.Rectangle
		switch side {
		case sideTop:
			band = image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+bw)
		case sideBottom:
			band = image.Rect(r.Min.X, r.Max.Y-bw, r.Max.X, r.Max.Y)
		case sideLeft:
			band = image.Rect(r.Min.X, r.Min.Y, r.Min.X+bw, r.Max.Y)
		case sideRight:
			band = image.Rect(r.Max.X-bw, r.Min.Y, r.Max.X, r.Max.Y)
		}
		band = band.Intersect(dst.Bounds())
		if s.style != "dashed" && s.style != "dotted" {
			draw.Draw(dst, band, image.NewUniform(s.color), image.Point{}, draw.Src)
			continue
		}
		dash := 3 * bw
		if s.style == "dotted" {
			dash = bw
		}
		horizontal := side == sideTop || side == sideBottom
		for y := band.Min.Y; y < band.Max.Y; y++ {
			for x := band.Min.X; x < band.Max.X; x++ {
				pos := y - band.Min.Y
				if horizontal {
					pos = x - band.Min.X
				}
				if (pos/dash)%2 == 0 {
					dst.SetRGBA(x, y, s.color)
				}
			}
		}
	}
}
