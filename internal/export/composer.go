/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export flattens rendered panels into a single downloadable artifact.
//
// The composer builds an independent, always-expanded HTML tree from the panel
// views, attaches it off-screen, waits until every image has loaded or fallen back
// to the placeholder, and hands the tree to a Rasterizer. PNG is the primary
// artifact; PDF and CBZ reuse the same composition.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	applog "comicstrip/internal/log"
	"comicstrip/internal/render"
)

const (
	// DefaultFilename is the download name of the PNG artifact.
	DefaultFilename = "my-comic-strip.png"
	// DefaultTitle heads the export composition.
	DefaultTitle = "My AI Comic Strip"
	DefaultWidth = 900
	DefaultScale = 2.0
)

// ErrNoPanels is returned when there is nothing to export.
var ErrNoPanels = errors.New("no panels to export")

// Frame is what a Rasterizer paints: the attached tree plus the decoded images it
// references, keyed by src.
type Frame struct {
	Stage  *Stage
	Root   *html.Node
	Images map[string]image.Image
}

// Rasterizer turns an attached node tree into a bitmap at the given pixel density.
type Rasterizer interface {
	Rasterize(ctx context.Context, f Frame, scale float64) (image.Image, error)
}

// Composer builds and rasterizes export compositions.
type Composer struct {
	Rasterizer Rasterizer
	Loader     *Loader
	Title      string
	Width      int
	Scale      float64
	// Settle is an optional extra delay after the image barrier.
	Settle time.Duration
	// Stage receives the off-screen tree; a fresh one is used when nil.
	Stage *Stage
}

// NewComposer returns a composer with the default title, width and scale.
func NewComposer(r Rasterizer, l *Loader) *Composer {
	return &Composer{Rasterizer: r, Loader: l, Title: DefaultTitle, Width: DefaultWidth, Scale: DefaultScale}
}

func (c *Composer) title() string {
	if c.Title == "" {
		return DefaultTitle
	}
	return c.Title
}

func (c *Composer) width() int {
	if c.Width <= 0 {
		return DefaultWidth
	}
	return c.Width
}

func (c *Composer) scale() float64 {
	if c.Scale <= 0 {
		return DefaultScale
	}
	return c.Scale
}

// Build creates the export tree for views. Each panel reuses the image source
// currently shown on screen and always carries its full dialogue, whatever the
// on-screen toggle state.
func (c *Composer) Build(views []*render.PanelView) *html.Node {
	container := render.El(atom.Div,
		"class", "for-download",
		"style", "background-color: white; padding: 20px; width: "+strconv.Itoa(c.width())+"px; position: absolute; left: -9999px; top: 0",
	)
	title := render.Append(render.El(atom.H2,
		"style", "text-align: center; font-family: Bangers, cursive; font-size: 24px; margin-bottom: 20px",
	), render.Text(c.title()))
	grid := render.El(atom.Div, "style", "display: grid; grid-template-columns: repeat(2, 1fr); gap: 20px")

	for _, pv := range views {
		grid.AppendChild(exportPanel(pv))
	}
	return render.Append(container, title, grid)
}

func exportPanel(pv *render.PanelView) *html.Node {
	panel := render.El(atom.Div, "class", "export-panel",
		"style", "border: 2px solid black; border-radius: 8px; overflow: hidden; background-color: #fff")

	imgBox := render.El(atom.Div,
		"style", "border-bottom: 2px solid black; height: 300px; overflow: hidden; display: flex; align-items: center; justify-content: center; background-color: #f5f5f5")
	imgBox.AppendChild(render.El(atom.Img,
		"src", pv.ImageSrc(),
		"crossorigin", "anonymous",
		"style", "width: 100%; height: 100%; object-fit: contain"))

	content := render.El(atom.Div, "style", "padding: 15px")
	scene := render.Append(render.El(atom.Div, "style", "font-weight: bold; margin-bottom: 10px; color: #333"),
		render.Append(render.El(atom.Span,
			"style", "display: inline-block; background-color: #4a6fa5; color: white; padding: 2px 8px; border-radius: 4px; margin-right: 8px",
		), render.Text(strconv.Itoa(pv.Index))),
		render.Text(strings.TrimSpace(pv.Panel.SceneDescription)),
	)
	dialogue := render.El(atom.Div, "class", "export-dialogue",
		"style", "font-family: 'Comic Neue', cursive; border-top: 1px dashed #ccc; padding-top: 10px; margin-top: 10px")
	render.Append(dialogue, render.DialogueNodes(pv.Lines)...)

	render.Append(content, scene, dialogue)
	return render.Append(panel, imgBox, content)
}

// Sources lists the distinct image sources referenced below root in document order.
func Sources(root *html.Node) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			if src, ok := render.Attr(n, "src"); ok && src != "" && !seen[src] {
				seen[src] = true
				out = append(out, src)
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(root)
	return out
}

// ComposeImage builds, attaches and rasterizes the composition for views. The tree is
// detached again before returning, on success and on failure.
func (c *Composer) ComposeImage(ctx context.Context, views []*render.PanelView) (image.Image, error) {
	if len(views) == 0 {
		return nil, ErrNoPanels
	}
	if c.Rasterizer == nil {
		return nil, fmt.Errorf("export: no rasterizer configured")
	}
	l := applog.WithOperation(applog.WithComponent("export"), "compose")
	start := time.Now()

	stage := c.Stage
	if stage == nil {
		stage = NewStage()
	}
	tree := c.Build(views)
	detach := stage.Attach(tree)
	defer detach()

	loader := c.Loader
	if loader == nil {
		loader = NewLoader(LoaderOptions{})
	}
	images := loader.LoadAll(ctx, Sources(tree))

	if c.Settle > 0 {
		t := time.NewTimer(c.Settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	img, err := c.Rasterizer.Rasterize(ctx, Frame{Stage: stage, Root: tree, Images: images}, c.scale())
	if err != nil {
		l.Error("rasterize failed", slog.Int("panels", len(views)), slog.Any("err", err))
		return nil, fmt.Errorf("rasterize: %w", err)
	}
	l.Info("composition rasterized",
		slog.Int("panels", len(views)),
		slog.Int("width", img.Bounds().Dx()),
		slog.Int("height", img.Bounds().Dy()),
		slog.Duration("took", time.Since(start)))
	return img, nil
}

// Compose renders views into PNG bytes.
func (c *Composer) Compose(ctx context.Context, views []*render.PanelView) ([]byte, error) {
	img, err := c.ComposeImage(ctx, views)
	if err != nil {
		return nil, err
	}
	return EncodePNG(img)
}
