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
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"comicstrip/internal/domain"
	"comicstrip/internal/export"
	applog "comicstrip/internal/log"
	"comicstrip/internal/metrics"
	"comicstrip/internal/render"
	"comicstrip/internal/session"
	"comicstrip/internal/storage"
	"comicstrip/internal/telemetry"
)

// Service is the generation backend: the HTTP client or the in-process generator.
type Service interface {
	Generate(ctx context.Context, idea string) ([]domain.Panel, error)
	Continue(ctx context.Context, story, choice string) ([]domain.Panel, error)
}

// ServiceFuncs adapts two functions to Service.
type ServiceFuncs struct {
	GenerateFn session.GenerateFunc
	ContinueFn session.ContinueFunc
}

func (s ServiceFuncs) Generate(ctx context.Context, idea string) ([]domain.Panel, error) {
	return s.GenerateFn(ctx, idea)
}

func (s ServiceFuncs) Continue(ctx context.Context, story, choice string) ([]domain.Panel, error) {
	return s.ContinueFn(ctx, story, choice)
}

// ExportLedger records produced downloads.
type ExportLedger interface {
	RecordExport(ctx context.Context, e storage.Export) (int64, error)
}

// Controller ties the session, the renderer and the exporter to the view state.
// Only Service, Session and Renderer are required.
type Controller struct {
	Service  Service
	Session  *session.Session
	Renderer *render.Renderer
	Composer *export.Composer
	// Images resolves panel images after rendering; nil leaves them pending.
	Images    render.Resolver
	Metrics   *metrics.Recorder
	Telemetry *telemetry.Client
	Ledger    ExportLedger

	machine *Machine
	mu      sync.Mutex
	view    *render.View
}

// NewController returns a controller in StateIdle with an empty session.
func NewController(svc Service, comp *export.Composer) *Controller {
	return &Controller{
		Service:  svc,
		Session:  session.New(),
		Renderer: render.NewRenderer(),
		Composer: comp,
		machine:  NewMachine(),
	}
}

func (c *Controller) log(op string) *slog.Logger {
	return applog.WithOperation(applog.WithComponent("ui"), op).With(slog.String("session", c.Session.ID()))
}

// Machine exposes the view state machine.
func (c *Controller) Machine() *Machine { return c.machine }

// Generate validates idea, requests the first panels and shows them.
func (c *Controller) Generate(ctx context.Context, idea string) error {
	if strings.TrimSpace(idea) == "" {
		return c.invalid(metrics.OpGenerate, session.ErrEmptyIdea)
	}
	return c.run(ctx, metrics.OpGenerate, func(ctx context.Context) ([]domain.Panel, error) {
		return c.Session.Generate(ctx, idea, c.Service.Generate)
	})
}

// Continue validates choice, requests the next panels and appends them.
func (c *Controller) Continue(ctx context.Context, choice string) error {
	if strings.TrimSpace(choice) == "" {
		return c.invalid(metrics.OpContinue, session.ErrEmptyChoice)
	}
	return c.run(ctx, metrics.OpContinue, func(ctx context.Context) ([]domain.Panel, error) {
		return c.Session.Continue(ctx, choice, c.Service.Continue)
	})
}

func (c *Controller) run(ctx context.Context, op string, call func(context.Context) ([]domain.Panel, error)) error {
	l := c.log(op)
	prev := c.machine.State()
	before := c.Session.Len()
	start := time.Now()

	if err := c.machine.Start(); err != nil {
		if prev == StateLoading {
			return &Error{Kind: KindBusy, Message: MsgBusy, Err: session.ErrBusy}
		}
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			msg := MsgGenerateError
			if op == metrics.OpContinue {
				msg = MsgContinueError
			}
			_ = c.machine.Fail(msg)
			c.Metrics.Observe(op, metrics.OutcomeError, time.Since(start))
			panic(r)
		}
	}()
	ctx = applog.ContextWithSession(ctx, c.Session.ID())
	panels, err := call(ctx)
	if err != nil {
		return c.failed(l, op, prev, start, err)
	}

	c.mu.Lock()
	c.view = c.Renderer.Update(c.view, panels)
	view := c.view
	c.mu.Unlock()
	if c.Images != nil {
		c.Renderer.ResolveImages(ctx, view, c.resolver())
	}
	if err := c.machine.Succeed(); err != nil {
		// A reset raced the request after the session applied it.
		l.Debug("result dropped", slog.Any("err", err))
		c.mu.Lock()
		if c.Session.Len() == 0 {
			c.view = nil
		}
		c.mu.Unlock()
		return nil
	}
	added := len(panels) - before
	if op == metrics.OpGenerate {
		added = len(panels)
	}
	c.Metrics.Observe(op, metrics.OutcomeOK, time.Since(start))
	c.Metrics.Panels(op, added)
	c.event(op, added)
	l.Info("panels shown", slog.Int("added", added), slog.Int("total", len(panels)))
	return nil
}

// invalid reports an input error inline without touching the view state.
func (c *Controller) invalid(op string, err error) error {
	msg := MsgEmptyIdea
	if op == metrics.OpContinue {
		msg = MsgEmptyChoice
	}
	c.machine.SetNotice(msg)
	c.Metrics.Observe(op, metrics.OutcomeInvalid, 0)
	return &Error{Kind: KindValidation, Message: msg, Err: err}
}

func (c *Controller) failed(l *slog.Logger, op string, prev State, start time.Time, err error) error {
	kind := Classify(err)
	switch kind {
	case KindValidation:
		c.machine.Abort(prev)
		return c.invalid(op, err)
	case KindBusy:
		c.machine.Abort(prev)
		return &Error{Kind: kind, Message: MsgBusy, Err: err}
	case KindDiscarded:
		l.Debug("request discarded by reset")
		return &Error{Kind: kind, Message: "", Err: err}
	}
	def := MsgGenerateError
	if op == metrics.OpContinue {
		def = MsgContinueError
	}
	msg := serviceMessage(err, def)
	if kind == KindEmptyResult {
		msg = MsgNoNewPanels
	}
	_ = c.machine.Fail(msg)
	c.Metrics.Observe(op, metrics.OutcomeError, time.Since(start))
	l.Warn("request failed", slog.String("message", msg), slog.Any("err", err))
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (c *Controller) resolver() render.Resolver {
	return render.ResolverFunc(func(ctx context.Context, src string) error {
		err := c.Images.Resolve(ctx, src)
		c.Metrics.Image(err != nil)
		return err
	})
}

func (c *Controller) event(op string, panels int) {
	if c.Telemetry == nil {
		return
	}
	name := telemetry.EventComicGenerated
	if op == metrics.OpContinue {
		name = telemetry.EventComicContinued
	}
	c.Telemetry.Event(name, map[string]any{"panels": panels})
}

// NewComic clears the session and returns to the idea input. It is also the
// "try again" action of the error view.
func (c *Controller) NewComic() {
	c.Session.Reset()
	c.mu.Lock()
	c.view = nil
	c.mu.Unlock()
	c.machine.Reset()
}

// TogglePanel flips the dialogue of the panel at 1-based position n and reports
// whether it is now expanded.
func (c *Controller) TogglePanel(n int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == nil || n < 1 || n > len(c.view.Panels) {
		return false, fmt.Errorf("no panel %d", n)
	}
	return c.view.Panels[n-1].ToggleDialogue(), nil
}

// View returns the current rendered panel list, or nil before the first result.
func (c *Controller) View() *render.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// PanelsHTML serializes the shown panels, or returns "" before the first result.
func (c *Controller) PanelsHTML() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == nil {
		return "", nil
	}
	return c.view.HTML()
}

// Download composes the shown panels into the PNG download. Failures leave the
// comic on screen and surface MsgExportFailed as a notice.
func (c *Controller) Download(ctx context.Context) (export.Artifact, error) {
	arts, err := c.Export(ctx, export.BatchOptions{Formats: []string{export.FormatPNG}})
	if err != nil {
		return export.Artifact{}, err
	}
	return arts[0], nil
}

// Export composes the shown panels in the requested formats.
func (c *Controller) Export(ctx context.Context, opt export.BatchOptions) ([]export.Artifact, error) {
	l := c.log("export")
	start := time.Now()
	view := c.View()
	if err := c.machine.BeginExport(); err != nil {
		return nil, c.exportFailed(l, start, err)
	}
	defer c.machine.EndExport()
	if view == nil || len(view.Panels) == 0 {
		return nil, c.exportFailed(l, start, export.ErrNoPanels)
	}
	if c.Composer == nil {
		return nil, c.exportFailed(l, start, errors.New("no exporter configured"))
	}
	if opt.Transcript == "" {
		opt.Transcript = c.Session.Transcript()
	}
	arts, err := c.Composer.Batch(ctx, view.Panels, opt)
	if err != nil {
		return nil, c.exportFailed(l, start, err)
	}
	c.Metrics.Observe(metrics.OpExport, metrics.OutcomeOK, time.Since(start))
	for _, a := range arts {
		c.Metrics.Export(formatOf(a), len(a.Data))
		if c.Ledger != nil {
			if _, err := c.Ledger.RecordExport(ctx, storage.Export{Format: formatOf(a), Filename: a.Filename, Size: int64(len(a.Data)), Session: c.Session.ID()}); err != nil {
				l.Warn("record export failed", slog.Any("err", err))
			}
		}
	}
	if c.Telemetry != nil {
		c.Telemetry.Event(telemetry.EventComicExported, map[string]any{"panels": len(view.Panels), "artifacts": len(arts)})
	}
	return arts, nil
}

func (c *Controller) exportFailed(l *slog.Logger, start time.Time, err error) error {
	c.machine.SetNotice(MsgExportFailed)
	c.Metrics.Observe(metrics.OpExport, metrics.OutcomeError, time.Since(start))
	l.Error("export failed", slog.Any("err", err))
	return &Error{Kind: KindExport, Message: MsgExportFailed, Err: err}
}

func formatOf(a export.Artifact) string {
	switch a.ContentType {
	case "application/pdf":
		return export.FormatPDF
	case "application/vnd.comicbook+zip":
		return export.FormatCBZ
	default:
		return export.FormatPNG
	}
}
