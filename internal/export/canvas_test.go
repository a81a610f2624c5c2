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
	"image/color"
	"path/filepath"
	"testing"

	"comicstrip/internal/textlayout"
)

func canvasComposer(t *testing.T, r *CanvasRasterizer) *Composer {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "images", "red.png"), 40, 20, color.RGBA{0xff, 0, 0, 0xff})
	return NewComposer(r, NewLoader(LoaderOptions{StaticDir: dir}))
}

func TestCanvasRasterizesComposition(t *testing.T) {
	c := canvasComposer(t, &CanvasRasterizer{Provider: textlayout.BasicProvider{}})
	img, err := c.ComposeImage(context.Background(), sampleViews(t))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	b := img.Bounds()
	// (900px width + 2*20px padding) at 2x
	if b.Dx() != 1880 {
		t.Fatalf("expected width 1880, got %d", b.Dx())
	}
	// two grid rows of 300px image boxes at 2x, at least
	if b.Dy() < 1200 {
		t.Fatalf("composition too short: %d", b.Dy())
	}
	for name, c := range map[string]color.RGBA{
		"panel image":       {0xff, 0, 0, 0xff},
		"number badge":      {0x4a, 0x6f, 0xa5, 0xff},
		"image placeholder": {0xf5, 0xf5, 0xf5, 0xff},
		"border":            {0, 0, 0, 0xff},
	} {
		if !hasColor(img, c) {
			t.Fatalf("%s color %v not found", name, c)
		}
	}
}

func TestCanvasWithGoFonts(t *testing.T) {
	r, err := NewCanvasRasterizer()
	if err != nil {
		t.Fatalf("new canvas: %v", err)
	}
	c := canvasComposer(t, r)
	c.Scale = 1
	img, err := c.ComposeImage(context.Background(), sampleViews(t)[:1])
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if img.Bounds().Dx() != 940 {
		t.Fatalf("expected width 940 at 1x, got %d", img.Bounds().Dx())
	}
}

func TestCanvasRequiresAttachedTree(t *testing.T) {
	c := NewComposer(nil, nil)
	tree := c.Build(sampleViews(t))
	_, err := (&CanvasRasterizer{}).Rasterize(context.Background(), Frame{Stage: NewStage(), Root: tree}, 2)
	if err == nil {
		t.Fatalf("expected error for detached tree")
	}
}
