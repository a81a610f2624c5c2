/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package ui drives the comic page: which sections are visible, the rendered panel
// list, and the generate/continue/download actions with their error handling.
package ui

import (
	"fmt"
	"sync"
)

// State is the top-level view state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateResult
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateResult:
		return "result"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Section names the top-level page regions; values double as element ids.
type Section string

const (
	SectionIdeaInput    Section = "idea-input"
	SectionLoading      Section = "loading"
	SectionComicDisplay Section = "comic-display"
	SectionErrorDisplay Section = "error-display"
	SectionDownload     Section = "download-btn"
)

// AllSections lists the regions in page order.
var AllSections = []Section{SectionIdeaInput, SectionLoading, SectionComicDisplay, SectionErrorDisplay, SectionDownload}

// Visibility maps each section to whether it is shown.
type Visibility map[Section]bool

// Visible reports whether s is shown.
func (v Visibility) Visible(s Section) bool { return v[s] }

// Sections computes section visibility. The loading section also covers a running
// export, which keeps the comic on screen.
func Sections(st State, exporting, exportAvailable bool) Visibility {
	v := Visibility{}
	switch st {
	case StateIdle:
		v[SectionIdeaInput] = true
	case StateLoading:
		v[SectionLoading] = true
	case StateResult:
		v[SectionComicDisplay] = true
		v[SectionDownload] = exportAvailable
		v[SectionLoading] = exporting
	case StateError:
		v[SectionErrorDisplay] = true
	}
	return v
}

// ErrTransition is returned for a move the state machine does not allow.
type ErrTransition struct {
	From, To State
}

func (e *ErrTransition) Error() string {
	return fmt.Sprintf("invalid ui transition %s -> %s", e.From, e.To)
}

// Machine is the view state machine:
//
//	idle -> loading -> result | error
//	result -> loading (continue)
//	any -> idle (new comic / try again)
type Machine struct {
	mu        sync.Mutex
	state     State
	errText   string
	notice    string
	exporting bool
}

// NewMachine starts in StateIdle.
func NewMachine() *Machine { return &Machine{} }

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ErrorText is the message shown in the error section.
func (m *Machine) ErrorText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errText
}

// Notice is an inline message that does not change the state (input validation, export alert).
func (m *Machine) Notice() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notice
}

// Exporting reports whether a download is being prepared.
func (m *Machine) Exporting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exporting
}

// Start enters StateLoading for a generate or continue request.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateIdle, StateResult:
	default:
		return &ErrTransition{From: m.state, To: StateLoading}
	}
	m.state = StateLoading
	m.notice = ""
	m.errText = ""
	return nil
}

// Succeed shows the comic.
func (m *Machine) Succeed() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoading {
		return &ErrTransition{From: m.state, To: StateResult}
	}
	m.state = StateResult
	return nil
}

// Fail shows msg in the error section.
func (m *Machine) Fail(msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoading {
		return &ErrTransition{From: m.state, To: StateError}
	}
	m.state = StateError
	m.errText = msg
	return nil
}

// Abort returns from StateLoading to prev without an error, used when a request was
// superseded by a reset or never started.
func (m *Machine) Abort(prev State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateLoading {
		m.state = prev
	}
}

// Reset returns to the idea input and clears all messages.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.errText = ""
	m.notice = ""
	m.exporting = false
}

// SetNotice sets or clears the inline notice.
func (m *Machine) SetNotice(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notice = msg
}

// BeginExport marks a download as running. Only a shown comic can be exported.
func (m *Machine) BeginExport() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateResult || m.exporting {
		return &ErrTransition{From: m.state, To: StateResult}
	}
	m.exporting = true
	m.notice = ""
	return nil
}

// EndExport clears the export loading indicator.
func (m *Machine) EndExport() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exporting = false
}
