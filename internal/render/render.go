/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package render projects accumulated panels into an HTML node tree with per-panel
// dialogue toggles and image loading state.
package render

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	"comicstrip/internal/domain"
	applog "comicstrip/internal/log"
	"comicstrip/internal/script"
)

// DefaultPlaceholder is shown when a panel has no image or its image cannot be loaded.
const DefaultPlaceholder = "/static/images/placeholder.png"

const (
	LabelShowDialogue = "Show Dialogue"
	LabelHideDialogue = "Hide Dialogue"

	hiddenClass = "hidden"
)

// ImageState tracks the display-time resolution of a panel image.
type ImageState int

const (
	ImagePending ImageState = iota
	ImageLoaded
	ImageFailed
)

// Resolver loads an image source, returning an error when it cannot be displayed.
type Resolver interface {
	Resolve(ctx context.Context, src string) error
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, src string) error

func (f ResolverFunc) Resolve(ctx context.Context, src string) error { return f(ctx, src) }

// PanelView is the rendered form of one panel.
type PanelView struct {
	Index int // 1-based display position
	Panel domain.Panel
	Lines []script.DialogueLine
	Root  *html.Node

	mu          sync.Mutex
	placeholder string
	imgBox      *html.Node
	img         *html.Node
	loading     *html.Node
	dialogue    *html.Node
	toggle      *html.Node
	expanded    bool
	state       ImageState
}

// View is the rendered panel list.
type View struct {
	Root   *html.Node
	Panels []*PanelView
	// ExportAvailable is true when at least one panel is rendered.
	ExportAvailable bool
}

// Renderer builds views.
type Renderer struct {
	Placeholder string
	// Concurrency bounds ResolveImages; <= 0 means one goroutine per image.
	Concurrency int
}

// NewRenderer returns a renderer using the default placeholder.
func NewRenderer() *Renderer {
	return &Renderer{Placeholder: DefaultPlaceholder, Concurrency: 4}
}

func (r *Renderer) placeholder() string {
	if r == nil || r.Placeholder == "" {
		return DefaultPlaceholder
	}
	return r.Placeholder
}

// Render builds a fresh view from the full panel list.
func (r *Renderer) Render(panels []domain.Panel) *View {
	v := &View{Root: El(atom.Div, "id", "comic-panels", "class", "comic-panels")}
	for i, p := range panels {
		pv := r.renderPanel(i+1, p)
		v.Panels = append(v.Panels, pv)
		v.Root.AppendChild(pv.Root)
	}
	v.ExportAvailable = len(v.Panels) > 0
	return v
}

// Update brings v in line with panels. Panel views for an unchanged prefix are kept
// together with their toggle and image state; new panels are appended. When the list
// shrank or an existing panel changed, the view is rebuilt. The returned view renders
// the same markup as Render(panels) apart from preserved per-panel UI state.
func (r *Renderer) Update(v *View, panels []domain.Panel) *View {
	if v == nil || len(panels) < len(v.Panels) {
		return r.Render(panels)
	}
	for i, pv := range v.Panels {
		if pv.Panel != panels[i] {
			return r.Render(panels)
		}
	}
	for i := len(v.Panels); i < len(panels); i++ {
		pv := r.renderPanel(i+1, panels[i])
		v.Panels = append(v.Panels, pv)
		v.Root.AppendChild(pv.Root)
	}
	v.ExportAvailable = len(v.Panels) > 0
	return v
}

func (r *Renderer) renderPanel(index int, p domain.Panel) *PanelView {
	pv := &PanelView{Index: index, Panel: p, placeholder: r.placeholder()}
	pv.Lines = script.ParseDialogue(p.Dialogue)

	pv.Root = El(atom.Div, "class", "comic-panel")

	src := p.Image
	if src == "" {
		src = pv.placeholder
	}
	pv.imgBox = El(atom.Div, "class", "panel-image")
	pv.loading = Append(El(atom.Div, "class", "loading-indicator"), El(atom.Div, "class", "spinner"))
	pv.img = El(atom.Img, "src", src, "alt", "Panel "+strconv.Itoa(index), "loading", "lazy")
	Append(pv.imgBox, pv.loading, pv.img)

	content := El(atom.Div, "class", "panel-content")
	scene := Append(El(atom.Div, "class", "panel-scene"),
		Append(El(atom.Span, "class", "panel-number"), Text(strconv.Itoa(index))),
		Text(" "+p.SceneDescription),
	)
	pv.dialogue = El(atom.Div, "class", "panel-dialogue "+hiddenClass)
	for _, n := range DialogueNodes(pv.Lines) {
		pv.dialogue.AppendChild(n)
	}
	pv.toggle = Append(El(atom.Button, "class", "more-details-btn", "data-panel", strconv.Itoa(index)), Text(LabelShowDialogue))
	Append(content, scene, pv.dialogue, pv.toggle)

	Append(pv.Root, pv.imgBox, content)
	return pv
}

// DialogueNodes renders parsed lines as paragraphs; speakers are emphasized.
func DialogueNodes(lines []script.DialogueLine) []*html.Node {
	out := make([]*html.Node, 0, len(lines))
	for _, l := range lines {
		para := El(atom.P)
		if l.HasSpeaker() {
			Append(para, Append(El(atom.Strong), Text(l.Speaker+":")), Text(" "+l.Text))
		} else {
			para.AppendChild(Text(l.Text))
		}
		out = append(out, para)
	}
	return out
}

// ToggleDialogue flips the dialogue between collapsed and expanded and returns the new
// expanded state. The button label follows.
func (pv *PanelView) ToggleDialogue() bool {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	pv.expanded = !pv.expanded
	if pv.expanded {
		RemoveClass(pv.dialogue, hiddenClass)
		SetText(pv.toggle, LabelHideDialogue)
	} else {
		AddClass(pv.dialogue, hiddenClass)
		SetText(pv.toggle, LabelShowDialogue)
	}
	return pv.expanded
}

// Expanded reports whether the dialogue is shown.
func (pv *PanelView) Expanded() bool {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	return pv.expanded
}

// ToggleLabel returns the current button label.
func (pv *PanelView) ToggleLabel() string {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	return TextContent(pv.toggle)
}

// ImageSrc returns the image source currently displayed.
func (pv *PanelView) ImageSrc() string {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	v, _ := Attr(pv.img, "src")
	return v
}

// ImageState returns the display-time image state.
func (pv *PanelView) ImageState() ImageState {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	return pv.state
}

// Loading reports whether the loading indicator is still attached.
func (pv *PanelView) Loading() bool {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	return pv.loading != nil && pv.loading.Parent != nil
}

// MarkLoaded records that the image resolved.
func (pv *PanelView) MarkLoaded() {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	pv.state = ImageLoaded
	pv.clearLoading()
}

// MarkFailed swaps in the placeholder.
func (pv *PanelView) MarkFailed() {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	pv.state = ImageFailed
	SetAttr(pv.img, "src", pv.placeholder)
	pv.clearLoading()
}

func (pv *PanelView) clearLoading() {
	if pv.loading != nil && pv.loading.Parent == pv.imgBox {
		pv.imgBox.RemoveChild(pv.loading)
	}
}

// ResolveImage loads the panel image with res. Failures fall back to the placeholder and
// are only logged.
func (pv *PanelView) ResolveImage(ctx context.Context, res Resolver) {
	src := pv.ImageSrc()
	if err := res.Resolve(ctx, src); err != nil {
		applog.WithComponent("render").Debug("panel image failed, using placeholder",
			slog.Int("panel", pv.Index), slog.String("src", src), slog.Any("err", err))
		pv.MarkFailed()
		return
	}
	pv.MarkLoaded()
}

// ResolveImages resolves every pending panel image concurrently and returns once each one
// has either loaded or failed.
func (r *Renderer) ResolveImages(ctx context.Context, v *View, res Resolver) {
	var g errgroup.Group
	if r != nil && r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}
	for _, pv := range v.Panels {
		if pv.ImageState() != ImagePending {
			continue
		}
		g.Go(func() error {
			pv.ResolveImage(ctx, res)
			return nil
		})
	}
	_ = g.Wait()
}

// HTML serializes the view.
func (v *View) HTML() (string, error) {
	return Render(v.Root)
}
