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
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html/atom"

	"comicstrip/internal/render"
)

func TestComposeAlwaysExpandsDialogue(t *testing.T) {
	views := sampleViews(t)
	for _, pv := range views {
		if pv.Expanded() {
			t.Fatalf("panel %d should start collapsed", pv.Index)
		}
	}
	r := &recordingRasterizer{}
	stage := NewStage()
	c := NewComposer(r, NewLoader(LoaderOptions{StaticDir: t.TempDir()}))
	c.Stage = stage
	data, err := c.Compose(context.Background(), views)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected png bytes")
	}
	if !r.attached {
		t.Fatalf("tree must be attached while rasterizing")
	}
	if stage.Len() != 0 {
		t.Fatalf("tree still attached after compose")
	}
	if r.scale != 2 {
		t.Fatalf("expected 2x scale, got %v", r.scale)
	}
	for _, want := range []string{
		">My AI Comic Strip</h2>",
		"grid-template-columns: repeat(2, 1fr)",
		"width: 900px",
		"left: -9999px",
		"<p><strong>Cat:</strong> Meow</p><p>The moon rises</p>",
		"<p><strong>Dog:</strong> Woof</p>",
		">3</span>Both asleep",
	} {
		if !strings.Contains(r.markup, want) {
			t.Fatalf("missing %q in export markup:\n%s", want, r.markup)
		}
	}
	if strings.Contains(r.markup, "panel-dialogue") || strings.Contains(r.markup, "Show Dialogue") {
		t.Fatalf("export must not carry on-screen toggle state:\n%s", r.markup)
	}
}

func TestComposeReusesOnScreenImageSource(t *testing.T) {
	views := sampleViews(t)
	views[0].MarkFailed() // on screen the placeholder replaced the broken image
	r := &recordingRasterizer{}
	c := NewComposer(r, NewLoader(LoaderOptions{StaticDir: t.TempDir()}))
	if _, err := c.Compose(context.Background(), views); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(r.markup, "red.png") {
		t.Fatalf("export re-resolved the original source:\n%s", r.markup)
	}
	if !strings.Contains(r.markup, `src="`+render.DefaultPlaceholder+`"`) {
		t.Fatalf("expected placeholder src in export")
	}
	// every referenced source has an image after the barrier
	for _, src := range Sources(c.Build(views)) {
		if r.images[src] == nil {
			t.Fatalf("no image for %s", src)
		}
	}
}

func TestComposeNoPanels(t *testing.T) {
	r := &recordingRasterizer{}
	_, err := NewComposer(r, nil).Compose(context.Background(), nil)
	if !errors.Is(err, ErrNoPanels) {
		t.Fatalf("expected ErrNoPanels, got %v", err)
	}
	if r.calls != 0 {
		t.Fatalf("rasterizer must not run without panels")
	}
}

func TestComposeDetachesOnRasterizerError(t *testing.T) {
	boom := errors.New("paint failed")
	r := &recordingRasterizer{err: boom}
	stage := NewStage()
	c := NewComposer(r, NewLoader(LoaderOptions{StaticDir: t.TempDir()}))
	c.Stage = stage
	_, err := c.Compose(context.Background(), sampleViews(t))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped rasterizer error, got %v", err)
	}
	if stage.Len() != 0 {
		t.Fatalf("tree left attached after failure")
	}
}

func TestComposeSettleHonoursContext(t *testing.T) {
	r := &recordingRasterizer{}
	c := NewComposer(r, NewLoader(LoaderOptions{StaticDir: t.TempDir()}))
	c.Settle = time.Hour
	stage := NewStage()
	c.Stage = stage
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Compose(ctx, sampleViews(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if r.calls != 0 || stage.Len() != 0 {
		t.Fatalf("cancelled compose should neither rasterize nor stay attached")
	}
}

func TestStageDetachIsIdempotent(t *testing.T) {
	s := NewStage()
	n := render.El(atom.Div)
	detach := s.Attach(n)
	if !s.Attached(n) || s.Len() != 1 {
		t.Fatalf("expected attached")
	}
	detach()
	detach()
	if s.Attached(n) || s.Len() != 0 {
		t.Fatalf("expected detached")
	}
	out, err := s.HTML()
	if err != nil || !strings.Contains(out, "<body") {
		t.Fatalf("unexpected document %q (%v)", out, err)
	}
}
