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
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"comicstrip/internal/domain"
	"comicstrip/internal/render"
)

func sampleViews(t *testing.T) []*render.PanelView {
	t.Helper()
	v := render.NewRenderer().Render([]domain.Panel{
		{SceneDescription: "A cat on a roof", Dialogue: "Cat: Meow\nThe moon rises", Image: "/static/images/red.png"},
		{SceneDescription: "A dog below", Dialogue: "Dog: Woof"},
		{SceneDescription: "Both asleep", Dialogue: ""},
	})
	return v.Panels
}

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// recordingRasterizer captures what it was asked to paint.
type recordingRasterizer struct {
	mu       sync.Mutex
	attached bool
	markup   string
	scale    float64
	images   map[string]image.Image
	calls    int
	err      error
}

func (r *recordingRasterizer) Rasterize(_ context.Context, f Frame, scale float64) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.attached = f.Stage.Attached(f.Root)
	r.markup, _ = render.Render(f.Root)
	r.scale = scale
	r.images = f.Images
	if r.err != nil {
		return nil, r.err
	}
	return image.NewRGBA(image.Rect(0, 0, 40, 30)), nil
}

func hasColor(img image.Image, want color.RGBA) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if uint8(r>>8) == want.R && uint8(g>>8) == want.G && uint8(bl>>8) == want.B && uint8(a>>8) == want.A {
				return true
			}
		}
	}
	return false
}
