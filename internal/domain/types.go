/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "strings"

// This file defines the data exchanged with the generation service and carried
// through rendering and export. Field names on the wire follow the service
// contract (snake_case).

// Panel is one unit of the comic strip as produced by the generation service.
// Panels are treated as immutable once received.
type Panel struct {
	SceneDescription string `json:"scene_description"`
	Dialogue         string `json:"dialogue"`
	VisualElements   string `json:"visual_elements"`
	// Image is a URI of the rendered illustration; empty means the placeholder is shown.
	Image string `json:"image,omitempty"`
}

// HasImage reports whether the panel references an illustration.
func (p Panel) HasImage() bool { return strings.TrimSpace(p.Image) != "" }

// GenerateRequest is the body of POST /generate-comic.
type GenerateRequest struct {
	InitialIdea string `json:"initial_idea"`
}

// GenerateResponse is the reply of POST /generate-comic.
type GenerateResponse struct {
	Success bool    `json:"success"`
	Panels  []Panel `json:"panels,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// ContinueRequest is the body of POST /continue-comic.
type ContinueRequest struct {
	CurrentStory string `json:"current_story"`
	UserChoice   string `json:"user_choice"`
}

// ContinueResponse is the reply of POST /continue-comic.
type ContinueResponse struct {
	Success   bool    `json:"success"`
	NewPanels []Panel `json:"new_panels,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// ClonePanels returns a copy of the slice so callers cannot alias accumulator state.
func ClonePanels(in []Panel) []Panel {
	if in == nil {
		return nil
	}
	out := make([]Panel, len(in))
	copy(out, in)
	return out
}
