/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FamilyGo is the family name under which the bundled Go fonts are registered.
const FamilyGo = "Go"

// FontLibrary stores loaded OpenType fonts mapped by family/weight/italic.
// Named instances and variations beyond weight and italic are not supported.
type FontLibrary struct {
	mu    sync.RWMutex
	fonts map[fontKey]*opentype.Font
	faces map[faceKey]font.Face
}

type fontKey struct {
	family string
	weight int
	italic bool
}

type faceKey struct {
	font *opentype.Font
	size float32
	dpi  float64
}

func NewFontLibrary() *FontLibrary {
	return &FontLibrary{fonts: make(map[fontKey]*opentype.Font), faces: make(map[faceKey]font.Face)}
}

// GoFonts returns a library holding the Go font family (regular, bold, italic),
// embedded in golang.org/x/image so exports need no system fonts.
func GoFonts() (*FontLibrary, error) {
	fl := NewFontLibrary()
	for _, f := range []struct {
		weight int
		italic bool
		data   []byte
	}{
		{400, false, goregular.TTF},
		{700, false, gobold.TTF},
		{400, true, goitalic.TTF},
	} {
		if err := fl.LoadBytes(FamilyGo, f.weight, f.italic, f.data); err != nil {
			return nil, err
		}
	}
	return fl, nil
}

// LoadTTF loads a font file into the library under the given family/weight/italic.
func (fl *FontLibrary) LoadTTF(family string, weight int, italic bool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	return fl.LoadBytes(family, weight, italic, data)
}

// LoadBytes parses font data into the library.
func (fl *FontLibrary) LoadBytes(family string, weight int, italic bool, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %s: %w", family, err)
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.fonts == nil {
		fl.fonts = make(map[fontKey]*opentype.Font)
	}
	fl.fonts[fontKey{family: family, weight: weight, italic: italic}] = f
	return nil
}

func (fl *FontLibrary) find(spec FontSpec) *opentype.Font {
	if fl == nil {
		return nil
	}
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	weight := spec.Weight
	if weight == 0 {
		weight = 400
	}
	if f, ok := fl.fonts[fontKey{family: spec.Family, weight: weight, italic: spec.Italic}]; ok {
		return f
	}
	// same family, nearest weight bucket
	bucket := 400
	if spec.Bold() {
		bucket = 700
	}
	if f, ok := fl.fonts[fontKey{family: spec.Family, weight: bucket}]; ok {
		return f
	}
	for k, f := range fl.fonts {
		if k.family == spec.Family && !k.italic {
			return f
		}
	}
	return nil
}

func (fl *FontLibrary) face(f *opentype.Font, size float32, dpi float64) (font.Face, error) {
	k := faceKey{font: f, size: size, dpi: dpi}
	fl.mu.RLock()
	face, ok := fl.faces[k]
	fl.mu.RUnlock()
	if ok {
		return face, nil
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: float64(size), DPI: dpi, Hinting: font.HintingFull})
	if err != nil {
		return nil, err
	}
	fl.mu.Lock()
	if fl.faces == nil {
		fl.faces = make(map[faceKey]font.Face)
	}
	fl.faces[k] = face
	fl.mu.Unlock()
	return face, nil
}

// OTProvider resolves FontSpec using a FontLibrary and falls back to another Provider.
// Faces are cached per size. An unknown family resolves to DefaultFamily when set.
type OTProvider struct {
	Lib           *FontLibrary
	DPI           float64 // default 72 if zero
	DefaultFamily string
	Fallback      Provider
}

func (p OTProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	if spec.SizePt <= 0 {
		spec.SizePt = 12
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 72
	}

	if p.Lib != nil {
		f := p.Lib.find(spec)
		if f == nil && p.DefaultFamily != "" {
			alt := spec
			alt.Family = p.DefaultFamily
			f = p.Lib.find(alt)
		}
		if f != nil {
			if face, err := p.Lib.face(f, spec.SizePt, dpi); err == nil {
				m := face.Metrics()
				return face, Metrics{
					Ascent:  float32(m.Ascent.Round()),
					Descent: float32(m.Descent.Round()),
					LineGap: float32(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
				}
			}
		}
	}
	fb := p.Fallback
	if fb == nil {
		fb = BasicProvider{}
	}
	return fb.Resolve(spec)
}
