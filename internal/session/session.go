/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package session owns the state of one comic being built: the ordered panels and the
// running story transcript that is sent back to the generation service on every
// continuation. All mutations are all-or-nothing per request.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"comicstrip/internal/domain"
)

var (
	// ErrEmptyIdea is returned when a comic is started without an idea.
	ErrEmptyIdea = errors.New("empty idea")
	// ErrEmptyChoice is returned when a continuation is requested without text.
	ErrEmptyChoice = errors.New("empty continuation")
	// ErrNoNewPanels is returned when a continuation batch carries no panels.
	ErrNoNewPanels = errors.New("no new content produced")
	// ErrBusy is returned when a request is started while another one is in flight.
	ErrBusy = errors.New("a request is already in progress")
	// ErrDiscarded is returned when the session was reset while a request was in flight;
	// the request result is dropped.
	ErrDiscarded = errors.New("session was reset during the request")
	// ErrPanicked is recorded as the last error when the service call panicked.
	ErrPanicked = errors.New("request panicked")
)

// Phase is the request state of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRequesting
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRequesting:
		return "requesting"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// GenerateFunc produces the first batch of panels for an idea.
type GenerateFunc func(ctx context.Context, idea string) ([]domain.Panel, error)

// ContinueFunc produces a continuation batch given the current transcript and the
// user's choice.
type ContinueFunc func(ctx context.Context, story, choice string) ([]domain.Panel, error)

// Session is safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	id         string
	panels     []domain.Panel
	transcript string
	phase      Phase
	lastErr    error
	// epoch increments on Reset so that in-flight results from before the reset are dropped
	epoch uint64
}

// New returns an empty session.
func New() *Session {
	return &Session{id: uuid.NewString()}
}

// ID identifies the session in logs and crash reports. It changes on Reset.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Reset clears panels and transcript. A request still in flight will not be applied.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panels = nil
	s.transcript = ""
	s.phase = PhaseIdle
	s.lastErr = nil
	s.epoch++
	s.id = uuid.NewString()
}

// InitializeWithIdea seeds the transcript with the idea.
func (s *Session) InitializeWithIdea(idea string) error {
	if strings.TrimSpace(idea) == "" {
		return ErrEmptyIdea
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseRequesting {
		return ErrBusy
	}
	s.transcript = idea
	return nil
}

// AppendGenerated replaces the panels with the first generated batch and rebuilds the
// transcript from the idea. It returns ErrBusy while a request is in flight.
func (s *Session) AppendGenerated(idea string, panels []domain.Panel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseRequesting {
		return ErrBusy
	}
	s.applyGenerated(idea, panels)
	return nil
}

// AppendContinuation appends a continuation batch. An empty batch returns ErrNoNewPanels
// and leaves the session untouched; so does ErrBusy while a request is in flight.
func (s *Session) AppendContinuation(choice string, newPanels []domain.Panel) error {
	if len(newPanels) == 0 {
		return ErrNoNewPanels
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseRequesting {
		return ErrBusy
	}
	s.applyContinuation(choice, newPanels)
	return nil
}

func (s *Session) applyGenerated(idea string, panels []domain.Panel) {
	s.panels = domain.ClonePanels(panels)
	s.transcript = idea + "\n\n" + RenderTranscript(panels)
}

func (s *Session) applyContinuation(choice string, newPanels []domain.Panel) {
	merged := make([]domain.Panel, 0, len(s.panels)+len(newPanels))
	merged = append(merged, s.panels...)
	merged = append(merged, newPanels...)
	s.panels = merged
	s.transcript += "\n\nContinuation: " + choice + "\n\n" + RenderTranscript(newPanels)
}

// Generate runs fn for the trimmed idea and applies the result as the first batch.
// Only one Generate or Continue may run at a time; overlapping calls get ErrBusy.
// On any failure the session is left as it was before the call.
func (s *Session) Generate(ctx context.Context, idea string, fn GenerateFunc) ([]domain.Panel, error) {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return nil, ErrEmptyIdea
	}
	epoch, _, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer s.recoverRequest(epoch)
	panels, err := fn(ctx, idea)

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return nil, ErrDiscarded
	}
	if err != nil {
		s.fail(err)
		return nil, err
	}
	s.applyGenerated(idea, panels)
	s.phase = PhaseIdle
	return domain.ClonePanels(s.panels), nil
}

// Continue sends the current transcript and the trimmed choice to fn and appends the
// returned batch. An empty batch is a failure (ErrNoNewPanels).
func (s *Session) Continue(ctx context.Context, choice string, fn ContinueFunc) ([]domain.Panel, error) {
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return nil, ErrEmptyChoice
	}
	epoch, story, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer s.recoverRequest(epoch)
	newPanels, err := fn(ctx, story, choice)

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return nil, ErrDiscarded
	}
	if err == nil && len(newPanels) == 0 {
		err = ErrNoNewPanels
	}
	if err != nil {
		s.fail(err)
		return nil, err
	}
	s.applyContinuation(choice, newPanels)
	s.phase = PhaseIdle
	return domain.ClonePanels(s.panels), nil
}

func (s *Session) begin() (uint64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseRequesting {
		return 0, "", ErrBusy
	}
	s.phase = PhaseRequesting
	s.lastErr = nil
	return s.epoch, s.transcript, nil
}

// recoverRequest marks the request failed when fn panics and re-panics, so a recovered
// panic further up does not leave the session stuck in PhaseRequesting.
func (s *Session) recoverRequest(epoch uint64) {
	r := recover()
	if r == nil {
		return
	}
	s.mu.Lock()
	if epoch == s.epoch && s.phase == PhaseRequesting {
		s.fail(fmt.Errorf("%w: %v", ErrPanicked, r))
	}
	s.mu.Unlock()
	panic(r)
}

func (s *Session) fail(err error) {
	s.phase = PhaseFailed
	s.lastErr = err
}

// Panels returns a copy of the accumulated panels in append order.
func (s *Session) Panels() []domain.Panel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ClonePanels(s.panels)
}

// Len returns the number of accumulated panels.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.panels)
}

// Transcript returns the running story text.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// Phase returns the request state and the error of the last failed request, if any.
func (s *Session) Phase() (Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase, s.lastErr
}

// RenderTranscript formats a batch of panels for the transcript. Numbering starts at 1
// within the batch, independent of the panels' position in the session.
func RenderTranscript(panels []domain.Panel) string {
	parts := make([]string, 0, len(panels))
	for i, p := range panels {
		parts = append(parts, fmt.Sprintf("Panel %d:\nScene: %s\nDialogue: %s\nVisuals: %s",
			i+1, p.SceneDescription, p.Dialogue, p.VisualElements))
	}
	return strings.Join(parts, "\n\n")
}
