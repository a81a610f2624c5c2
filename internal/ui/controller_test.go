/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"
	"testing"
	"time"

	"comicstrip/internal/client"
	"comicstrip/internal/domain"
	"comicstrip/internal/export"
	"comicstrip/internal/metrics"
	"comicstrip/internal/session"
	"comicstrip/internal/storage"
)

type fakeService struct {
	mu       sync.Mutex
	gen      []domain.Panel
	cont     []domain.Panel
	err      error
	stories  []string
	choices  []string
	blockGen chan struct{}
}

func (f *fakeService) Generate(ctx context.Context, idea string) ([]domain.Panel, error) {
	if f.blockGen != nil {
		<-f.blockGen
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.gen, nil
}

func (f *fakeService) Continue(ctx context.Context, story, choice string) ([]domain.Panel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stories = append(f.stories, story)
	f.choices = append(f.choices, choice)
	if f.err != nil {
		return nil, f.err
	}
	return f.cont, nil
}

type flatRasterizer struct {
	err   error
	calls int
}

func (r *flatRasterizer) Rasterize(ctx context.Context, f export.Frame, scale float64) (image.Image, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img, nil
}

type exportLog struct{ got []storage.Export }

func (l *exportLog) RecordExport(ctx context.Context, e storage.Export) (int64, error) {
	l.got = append(l.got, e)
	return int64(len(l.got)), nil
}

func panel(n string) domain.Panel {
	return domain.Panel{SceneDescription: "Scene " + n, Dialogue: "Cat: hello " + n, VisualElements: "a cat", Image: "/static/images/panel_" + n + ".png"}
}

func newTestController(t *testing.T, svc *fakeService, r *flatRasterizer) *Controller {
	t.Helper()
	comp := export.NewComposer(r, export.NewLoader(export.LoaderOptions{StaticDir: t.TempDir()}))
	c := NewController(svc, comp)
	c.Metrics = metrics.New()
	return c
}

func TestControllerGenerateShowsComic(t *testing.T) {
	svc := &fakeService{gen: []domain.Panel{panel("1"), panel("2"), panel("3")}}
	c := newTestController(t, svc, &flatRasterizer{})
	if err := c.Generate(context.Background(), "a cat learns to fly"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if c.Machine().State() != StateResult {
		t.Fatalf("expected result, got %s", c.Machine().State())
	}
	v := c.View()
	if v == nil || len(v.Panels) != 3 || !v.ExportAvailable {
		t.Fatalf("expected three rendered panels, got %+v", v)
	}
	if c.Session.Len() != 3 {
		t.Fatalf("session holds %d panels", c.Session.Len())
	}
}

func TestControllerEmptyIdeaIsInline(t *testing.T) {
	svc := &fakeService{}
	c := newTestController(t, svc, &flatRasterizer{})
	err := c.Generate(context.Background(), "   \n")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if c.Machine().State() != StateIdle {
		t.Fatalf("state changed on validation: %s", c.Machine().State())
	}
	if c.Machine().Notice() != MsgEmptyIdea {
		t.Fatalf("unexpected notice %q", c.Machine().Notice())
	}
}

func TestControllerContinueAppendsAndSendsTranscript(t *testing.T) {
	svc := &fakeService{gen: []domain.Panel{panel("1")}, cont: []domain.Panel{panel("2"), panel("3")}}
	c := newTestController(t, svc, &flatRasterizer{})
	ctx := context.Background()
	if err := c.Generate(ctx, "idea"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	first := c.View().Panels[0]
	if !first.ToggleDialogue() {
		t.Fatalf("toggle should expand")
	}
	if err := c.Continue(ctx, "  the dog arrives "); err != nil {
		t.Fatalf("continue: %v", err)
	}
	v := c.View()
	if len(v.Panels) != 3 {
		t.Fatalf("expected 3 panels, got %d", len(v.Panels))
	}
	if v.Panels[0] != first || !first.Expanded() {
		t.Fatalf("existing panel view should be kept with its toggle state")
	}
	if len(svc.stories) != 1 || !strings.Contains(svc.stories[0], "Scene 1") {
		t.Fatalf("transcript not sent: %v", svc.stories)
	}
}

func TestControllerEmptyChoiceKeepsComic(t *testing.T) {
	svc := &fakeService{gen: []domain.Panel{panel("1")}}
	c := newTestController(t, svc, &flatRasterizer{})
	ctx := context.Background()
	_ = c.Generate(ctx, "idea")
	if err := c.Continue(ctx, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if c.Machine().State() != StateResult || c.Machine().Notice() != MsgEmptyChoice {
		t.Fatalf("unexpected state %s notice %q", c.Machine().State(), c.Machine().Notice())
	}
	if len(svc.choices) != 0 {
		t.Fatalf("service called for empty choice")
	}
}

func TestControllerServiceErrorShowsMessage(t *testing.T) {
	svc := &fakeService{err: &client.ServiceError{Message: "quota exceeded", Status: 200}}
	c := newTestController(t, svc, &flatRasterizer{})
	err := c.Generate(context.Background(), "idea")
	var ue *Error
	if !errors.As(err, &ue) || ue.Kind != KindService {
		t.Fatalf("expected service error, got %v", err)
	}
	if c.Machine().State() != StateError || c.Machine().ErrorText() != "quota exceeded" {
		t.Fatalf("unexpected error view %s %q", c.Machine().State(), c.Machine().ErrorText())
	}
	if c.Session.Len() != 0 {
		t.Fatalf("session must stay empty")
	}
}

func TestControllerEmptyContinuation(t *testing.T) {
	svc := &fakeService{gen: []domain.Panel{panel("1")}}
	c := newTestController(t, svc, &flatRasterizer{})
	ctx := context.Background()
	_ = c.Generate(ctx, "idea")
	err := c.Continue(ctx, "more")
	if Classify(err) != KindEmptyResult {
		t.Fatalf("expected empty result, got %v", err)
	}
	if c.Machine().ErrorText() != MsgNoNewPanels {
		t.Fatalf("unexpected text %q", c.Machine().ErrorText())
	}
	if c.Session.Len() != 1 {
		t.Fatalf("panels must be unchanged, got %d", c.Session.Len())
	}
}

func TestControllerTryAgainResets(t *testing.T) {
	svc := &fakeService{err: errors.New("network down")}
	c := newTestController(t, svc, &flatRasterizer{})
	_ = c.Generate(context.Background(), "idea")
	if c.Machine().ErrorText() != "network down" {
		t.Fatalf("unexpected text %q", c.Machine().ErrorText())
	}
	c.NewComic()
	if c.Machine().State() != StateIdle || c.View() != nil || c.Session.Len() != 0 {
		t.Fatalf("new comic did not reset")
	}
}

func TestControllerBusyWhileLoading(t *testing.T) {
	svc := &fakeService{gen: []domain.Panel{panel("1")}, blockGen: make(chan struct{})}
	c := newTestController(t, svc, &flatRasterizer{})
	done := make(chan error, 1)
	go func() { done <- c.Generate(context.Background(), "idea") }()
	for c.Machine().State() != StateLoading {
		time.Sleep(time.Millisecond)
	}
	err := c.Generate(context.Background(), "other idea")
	if Classify(err) != KindBusy {
		t.Fatalf("expected busy, got %v", err)
	}
	close(svc.blockGen)
	if err := <-done; err != nil {
		t.Fatalf("first generate: %v", err)
	}
	if c.Machine().State() != StateResult {
		t.Fatalf("expected result, got %s", c.Machine().State())
	}
}

func TestControllerDownloadAndLedger(t *testing.T) {
	svc := &fakeService{gen: []domain.Panel{panel("1"), panel("2")}}
	r := &flatRasterizer{}
	c := newTestController(t, svc, r)
	led := &exportLog{}
	c.Ledger = led
	ctx := context.Background()
	_ = c.Generate(ctx, "idea")
	a, err := c.Download(ctx)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if a.Filename != export.DefaultFilename || a.ContentType != "image/png" || len(a.Data) == 0 {
		t.Fatalf("unexpected artifact %s %s %d", a.Filename, a.ContentType, len(a.Data))
	}
	if len(led.got) != 1 || led.got[0].Format != export.FormatPNG || led.got[0].Session != c.Session.ID() {
		t.Fatalf("export not recorded: %+v", led.got)
	}
	if c.Machine().Exporting() || c.Machine().State() != StateResult {
		t.Fatalf("export indicator not cleared")
	}
}

func TestControllerDownloadFailureKeepsComic(t *testing.T) {
	svc := &fakeService{gen: []domain.Panel{panel("1")}}
	c := newTestController(t, svc, &flatRasterizer{err: errors.New("gpu lost")})
	ctx := context.Background()
	_ = c.Generate(ctx, "idea")
	_, err := c.Download(ctx)
	if !errors.Is(err, ErrExport) {
		t.Fatalf("expected export error, got %v", err)
	}
	if c.Machine().State() != StateResult || c.Machine().Notice() != MsgExportFailed {
		t.Fatalf("comic should stay with a notice, got %s %q", c.Machine().State(), c.Machine().Notice())
	}
	if c.Machine().Exporting() {
		t.Fatalf("export indicator not cleared")
	}
}

func TestControllerDownloadWithoutComic(t *testing.T) {
	c := newTestController(t, &fakeService{}, &flatRasterizer{})
	if _, err := c.Download(context.Background()); !errors.Is(err, ErrExport) {
		t.Fatalf("expected export error, got %v", err)
	}
}

func TestControllerTogglePanel(t *testing.T) {
	svc := &fakeService{gen: []domain.Panel{panel("1"), panel("2")}}
	c := newTestController(t, svc, &flatRasterizer{})
	if _, err := c.TogglePanel(1); err == nil {
		t.Fatalf("toggle without a comic should fail")
	}
	_ = c.Generate(context.Background(), "idea")
	open, err := c.TogglePanel(2)
	if err != nil || !open {
		t.Fatalf("expected panel 2 expanded, got %v %v", open, err)
	}
	if c.View().Panels[0].Expanded() {
		t.Fatalf("panel 1 must stay collapsed")
	}
	if _, err := c.TogglePanel(3); err == nil {
		t.Fatalf("out of range toggle should fail")
	}
}

func TestClassify(t *testing.T) {
	cases := map[error]Kind{
		nil:                    KindNone,
		session.ErrEmptyIdea:   KindValidation,
		session.ErrBusy:        KindBusy,
		session.ErrDiscarded:   KindDiscarded,
		session.ErrNoNewPanels: KindEmptyResult,
		export.ErrNoPanels:     KindExport,
		errors.New("x"):        KindService,
	}
	for err, want := range cases {
		if got := Classify(err); got != want {
			t.Fatalf("Classify(%v) = %v, want %v", err, got, want)
		}
	}
}

type panicService struct{ fakeService }

func (p *panicService) Generate(ctx context.Context, idea string) ([]domain.Panel, error) {
	panic("backend exploded")
}

func TestControllerPanicLeavesErrorView(t *testing.T) {
	svc := &panicService{}
	c := NewController(svc, nil)
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected the panic to reach the caller")
			}
		}()
		_ = c.Generate(context.Background(), "a cat")
	}()
	if c.Machine().State() != StateError || c.Machine().ErrorText() != MsgGenerateError {
		t.Fatalf("expected error view, got %s %q", c.Machine().State(), c.Machine().ErrorText())
	}

	c.Service = &fakeService{gen: []domain.Panel{panel("1")}}
	c.NewComic()
	if err := c.Generate(context.Background(), "a cat"); err != nil {
		t.Fatalf("generate after panic: %v", err)
	}
	if c.Machine().State() != StateResult {
		t.Fatalf("expected result, got %s", c.Machine().State())
	}
}
