/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"strings"
	"testing"
)

func TestParseDialogueSpeakerAndNarration(t *testing.T) {
	got := ParseDialogue("Alice: Hello there\nJust narration\n\n")
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d: %+v", len(got), got)
	}
	if got[0] != (DialogueLine{Speaker: "Alice", Text: "Hello there"}) {
		t.Fatalf("unexpected first line: %+v", got[0])
	}
	if got[1] != (DialogueLine{Text: "Just narration"}) {
		t.Fatalf("unexpected second line: %+v", got[1])
	}
	if !got[0].HasSpeaker() || got[1].HasSpeaker() {
		t.Fatalf("HasSpeaker mismatch: %+v", got)
	}
}

func TestParseDialogueEmpty(t *testing.T) {
	for _, in := range []string{"", "\n\n", "   \n\t\n"} {
		if got := ParseDialogue(in); len(got) != 0 {
			t.Fatalf("ParseDialogue(%q) = %+v, want empty", in, got)
		}
	}
}

func TestParseDialogueColonPositions(t *testing.T) {
	cases := []struct {
		in      string
		speaker string
		text    string
	}{
		{":leading colon", "", ":leading colon"},
		{"A: short", "A", "short"},
		{"This is a very long sentence: with a colon", "", "This is a very long sentence: with a colon"},
		{"Nineteen chars name: hi", "Nineteen chars name", "hi"},
		{"Twenty chars name ab: hi", "", "Twenty chars name ab: hi"},
		{"  Bob  :   spaced out  ", "Bob", "spaced out"},
		{"Carol: time is 10:30", "Carol", "time is 10:30"},
		{"Dave:", "Dave", ""},
	}
	for _, c := range cases {
		got := ParseDialogue(c.in)
		if len(got) != 1 {
			t.Fatalf("%q: expected one line, got %+v", c.in, got)
		}
		if got[0].Speaker != c.speaker || got[0].Text != c.text {
			t.Fatalf("%q: got {%q %q}, want {%q %q}", c.in, got[0].Speaker, got[0].Text, c.speaker, c.text)
		}
	}
}

func TestParseDialogueCountsRunes(t *testing.T) {
	// 16 runes, 24 bytes
	got := ParseDialogue("Zoë Ünïcödé Ärßé: hallo")
	if len(got) != 1 || got[0].Speaker != "Zoë Ünïcödé Ärßé" {
		t.Fatalf("expected multi-byte speaker, got %+v", got)
	}
}

func TestParseDialoguePreservesOrder(t *testing.T) {
	got := ParseDialogue("A: one\nB: two\nthree\nC: four")
	want := []string{"one", "two", "three", "four"}
	if len(got) != len(want) {
		t.Fatalf("len mismatch: %+v", got)
	}
	for i := range want {
		if got[i].Text != want[i] {
			t.Fatalf("line %d: got %q want %q", i, got[i].Text, want[i])
		}
	}
}

func TestParseDialogueVeryLongLine(t *testing.T) {
	long := strings.Repeat("a", 2<<20)
	got := ParseDialogue("Alice: hi\n" + long + "\r\nBob: bye")
	if len(got) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(got))
	}
	if got[1].Speaker != "" || len(got[1].Text) != len(long) {
		t.Fatalf("long line mangled: speaker %q, %d bytes", got[1].Speaker, len(got[1].Text))
	}
	if got[2] != (DialogueLine{Speaker: "Bob", Text: "bye"}) {
		t.Fatalf("line after the long one: %+v", got[2])
	}
}

func TestSplitPanelsPanelMarkers(t *testing.T) {
	reply := `Here is your comic!

Panel 1:
Scene: A cat sits on a windowsill at dawn.
Dialogue: Cat: Another day, another nap.
Visual elements: warm orange light, curtains

Panel 2:
Setting: The kitchen, moments later.
Owner: Breakfast time!
Visual: steam rising from a bowl

Panel 3:
The cat ignores everyone and sleeps.`

	panels := SplitPanels(reply)
	if len(panels) != 3 {
		t.Fatalf("expected 3 panels, got %d: %+v", len(panels), panels)
	}
	if panels[0].SceneDescription != "Scene: A cat sits on a windowsill at dawn." {
		t.Fatalf("unexpected scene 1: %q", panels[0].SceneDescription)
	}
	if panels[0].Dialogue != "Dialogue: Cat: Another day, another nap." {
		t.Fatalf("unexpected dialogue 1: %q", panels[0].Dialogue)
	}
	if panels[0].VisualElements != "Visual elements: warm orange light, curtains" {
		t.Fatalf("unexpected visuals 1: %q", panels[0].VisualElements)
	}
	if panels[1].Dialogue != "Owner: Breakfast time!" {
		t.Fatalf("unexpected dialogue 2: %q", panels[1].Dialogue)
	}
	if panels[2].SceneDescription != "The cat ignores everyone and sleeps." {
		t.Fatalf("fallback scene should be the whole chunk, got %q", panels[2].SceneDescription)
	}
	if panels[2].Dialogue != "" || panels[2].VisualElements != "" {
		t.Fatalf("expected empty dialogue/visuals for panel 3, got %+v", panels[2])
	}
}

func TestSplitPanelsNumberedFallback(t *testing.T) {
	reply := "1. Scene: rooftop at night\nHero: Who goes there?\n2. Scene: alley below\nVillain: Nobody!"
	panels := SplitPanels(reply)
	if len(panels) != 2 {
		t.Fatalf("expected 2 panels, got %d: %+v", len(panels), panels)
	}
	if panels[1].Dialogue != "Villain: Nobody!" {
		t.Fatalf("unexpected dialogue: %q", panels[1].Dialogue)
	}
}

func TestSplitPanelsEmpty(t *testing.T) {
	if got := SplitPanels("   "); len(got) != 0 {
		t.Fatalf("expected no panels, got %+v", got)
	}
}
