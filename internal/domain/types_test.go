/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPanelWireNames(t *testing.T) {
	p := Panel{SceneDescription: "A dark alley", Dialogue: "CAT: Meow", VisualElements: "rain", Image: "/static/images/panel_1.png"}
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, key := range []string{`"scene_description"`, `"dialogue"`, `"visual_elements"`, `"image"`} {
		if !strings.Contains(s, key) {
			t.Fatalf("missing key %s in %s", key, s)
		}
	}

	var noImage Panel
	if err := json.Unmarshal([]byte(`{"scene_description":"x","dialogue":"","visual_elements":""}`), &noImage); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if noImage.HasImage() {
		t.Fatalf("panel without image reported HasImage")
	}
}

func TestClonePanelsDoesNotAlias(t *testing.T) {
	src := []Panel{{SceneDescription: "one"}, {SceneDescription: "two"}}
	cp := ClonePanels(src)
	cp[0].SceneDescription = "changed"
	if src[0].SceneDescription != "one" {
		t.Fatalf("clone aliases source slice")
	}
	if ClonePanels(nil) != nil {
		t.Fatalf("clone of nil should be nil")
	}
}
