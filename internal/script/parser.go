/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"comicstrip/internal/domain"
)

// ParseDialogue converts raw multi-line dialogue into ordered lines.
// Rules:
//   - every line is trimmed; lines that are empty after trimming are dropped.
//   - the first ':' at rune index i with 0 < i < MaxSpeakerPrefix splits the line
//     into Speaker (trimmed prefix) and Text (trimmed suffix).
//   - any other line becomes Text with no Speaker.
//
// It never fails; empty input yields an empty slice.
func ParseDialogue(raw string) []DialogueLine {
	out := []DialogueLine{}
	for _, l := range strings.Split(raw, "\n") {
		line := strings.TrimSpace(l)
		if line == "" {
			continue
		}
		out = append(out, parseLine(line))
	}
	return out
}

func parseLine(line string) DialogueLine {
	b := strings.IndexByte(line, ':')
	if b < 0 {
		return DialogueLine{Text: line}
	}
	i := utf8.RuneCountInString(line[:b])
	if i > 0 && i < MaxSpeakerPrefix {
		return DialogueLine{
			Speaker: strings.TrimSpace(line[:b]),
			Text:    strings.TrimSpace(line[b+1:]),
		}
	}
	return DialogueLine{Text: line}
}

var (
	reNumberedPanel = regexp.MustCompile(`\d+[\.\):]`)
	reLeadingMarker = regexp.MustCompile(`^\s*\d+\s*[:.)]\s*`)
)

// SplitPanels turns a free-form model reply into panels.
// The reply is split on the word "Panel"; when that marker is absent it falls back
// to numbered markers like "1." or "2)". Within each chunk:
//   - a line mentioning scene/setting/description becomes the scene description;
//   - a line mentioning dialogue, or a line holding a colon, is appended to the dialogue;
//   - a line mentioning visual/element becomes the visual elements.
//
// Visual lines are classified before the bare-colon rule so "Visual elements: ..." is not
// swallowed by the dialogue. A chunk with none of these keeps its whole text as scene.
func SplitPanels(content string) []domain.Panel {
	chunks := strings.Split(content, "Panel")
	if len(chunks) > 1 {
		// text before the first marker is a preamble, not a panel
		chunks = chunks[1:]
	} else {
		chunks = reNumberedPanel.Split(content, -1)
	}

	panels := []domain.Panel{}
	for _, c := range chunks {
		chunk := strings.TrimSpace(c)
		if chunk == "" {
			continue
		}
		chunk = strings.TrimSpace(reLeadingMarker.ReplaceAllString(chunk, ""))
		if chunk == "" {
			continue
		}

		var scene, visuals string
		var dialogue strings.Builder
		for _, raw := range strings.Split(chunk, "\n") {
			line := strings.TrimSpace(raw)
			if line == "" {
				continue
			}
			lower := strings.ToLower(line)
			switch {
			case strings.Contains(lower, "scene") || strings.Contains(lower, "setting") || strings.Contains(lower, "description"):
				scene = line
			case strings.Contains(lower, "dialogue"):
				dialogue.WriteString(line)
				dialogue.WriteString("\n")
			case strings.Contains(lower, "visual") || strings.Contains(lower, "element"):
				visuals = line
			case strings.Contains(line, ":"):
				dialogue.WriteString(line)
				dialogue.WriteString("\n")
			}
		}
		d := strings.TrimSpace(dialogue.String())
		if scene == "" {
			scene = chunk
		}
		panels = append(panels, domain.Panel{
			SceneDescription: scene,
			Dialogue:         d,
			VisualElements:   visuals,
		})
	}
	return panels
}
