/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"image/color"
	"testing"
)

func TestWordWrap_Naive(t *testing.T) {
	l := NewWordWrap(BasicProvider{})
	box, err := l.Layout([]Span{{Text: "Hello world from Go", Font: FontSpec{}}}, 50)
	if err != nil {
		t.Fatalf("layout error: %v", err)
	}
	if len(box.Lines) < 2 {
		t.Fatalf("expected wrapping into multiple lines, got %d", len(box.Lines))
	}
	if box.Width <= 0 || box.Height <= 0 {
		t.Fatalf("expected positive box size: %+v", box)
	}
}

func TestWordWrap_NoWidthLimitSingleLine(t *testing.T) {
	box, _ := NewWordWrap(nil).Layout([]Span{{Text: "one two three"}}, 0)
	if len(box.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(box.Lines))
	}
}

func TestWordWrap_Newlines(t *testing.T) {
	box, _ := NewWordWrap(BasicProvider{}).Layout([]Span{{Text: "a\nb\nc"}}, 1000)
	if len(box.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(box.Lines))
	}
	if box.Height != 3*box.Lines[0].Height() {
		t.Fatalf("unexpected height %v", box.Height)
	}
}

func TestWordWrap_AtomicBoxSpan(t *testing.T) {
	badge := Span{Text: "12", Box: &SpanBox{PadX: 8, PadY: 2, MarginRight: 8, Background: color.RGBA{0x4a, 0x6f, 0xa5, 0xff}}}
	spans := []Span{badge, {Text: "scene text"}}
	box, _ := NewWordWrap(BasicProvider{}).Layout(spans, 0)
	if len(box.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(box.Lines))
	}
	ln := box.Lines[0]
	if ln.Spans[0].Box == nil || ln.Spans[0].Text != "12" {
		t.Fatalf("badge span lost: %+v", ln.Spans[0])
	}
	// 7px per glyph in Face7x13
	wantBadge := float32(2*7 + 16 + 8)
	if got := SpanWidth(BasicProvider{}, badge); got != wantBadge {
		t.Fatalf("badge width: got %v want %v", got, wantBadge)
	}
	if ln.Ascent <= box.Metrics.Ascent {
		t.Fatalf("badge padding should grow ascent: %v vs %v", ln.Ascent, box.Metrics.Ascent)
	}
}

func TestMeasure_Deterministic(t *testing.T) {
	w1, h1 := Measure(BasicProvider{}, []Span{{Text: "ABC"}})
	w2, h2 := Measure(BasicProvider{}, []Span{{Text: "A"}, {Text: "BC"}})
	if w1 != w2 || h1 != h2 {
		t.Fatalf("expected same measure, got w1=%v h1=%v vs w2=%v h2=%v", w1, h1, w2, h2)
	}
	if w1 != 21 {
		t.Fatalf("expected 21px for three glyphs, got %v", w1)
	}
}
