/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"comicstrip/internal/render"
)

// Stage is the document an export tree is attached to while it is rasterized.
// Trees are placed off-screen by their own inline style; the stage only owns
// the document and the attach/detach lifecycle.
type Stage struct {
	mu   sync.Mutex
	doc  *html.Node
	body *html.Node
}

// NewStage returns an empty HTML document.
func NewStage() *Stage {
	doc := &html.Node{Type: html.DocumentNode}
	root := render.El(atom.Html)
	head := render.Append(render.El(atom.Head),
		render.El(atom.Meta, "charset", "utf-8"),
		render.Append(render.El(atom.Title), render.Text("comicstrip export")),
	)
	body := render.El(atom.Body, "style", "margin: 0; background-color: white")
	render.Append(root, head, body)
	doc.AppendChild(root)
	return &Stage{doc: doc, body: body}
}

// Attach appends n to the document body and returns the function that removes it again.
// The returned function is safe to call more than once.
func (s *Stage) Attach(n *html.Node) (detach func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body.AppendChild(n)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if n.Parent == s.body {
				s.body.RemoveChild(n)
			}
		})
	}
}

// Attached reports whether n currently hangs off the document body.
func (s *Stage) Attached(n *html.Node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return n.Parent == s.body
}

// Len returns the number of trees currently attached.
func (s *Stage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for c := s.body.FirstChild; c != nil; c = c.NextSibling {
		n++
	}
	return n
}

// HTML serializes the whole document.
func (s *Stage) HTML() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return render.Render(s.doc)
}
