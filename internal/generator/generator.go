/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package generator is the generation backend behind /generate-comic and /continue-comic:
// it asks a text model for the panels, illustrates each one and stores the images in the
// static directory.
package generator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"comicstrip/internal/domain"
	applog "comicstrip/internal/log"
	"comicstrip/internal/script"
	"comicstrip/internal/storage"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	generateSystem = "You are a creative comic strip writer. Create a 3-panel comic strip based on the given idea."
	continueSystem = "You are a creative comic strip writer. Continue the comic strip based on the user's choice."

	// PlaceholderFile is never removed when old panel images are cleared.
	PlaceholderFile = "placeholder.png"
	// DefaultImagesURL is the public path the image directory is served under.
	DefaultImagesURL = "/static/images/"
)

// ErrNoPanels is returned when the model reply contains nothing that splits into panels.
var ErrNoPanels = errors.New("model reply contained no panels")

// Writer produces the panel script.
type Writer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Image is an illustration reference: a URL to download or inline base64 data.
type Image struct {
	URL string
	B64 string
}

// Illustrator produces one illustration per prompt.
type Illustrator interface {
	Illustrate(ctx context.Context, prompt string) (Image, error)
}

// AssetLedger records the files written to the image directory.
type AssetLedger interface {
	RecordAsset(ctx context.Context, a storage.Asset) error
	DeleteAssets(ctx context.Context, prefix string, keep ...string) (int64, error)
}

// Generator turns ideas and choices into illustrated panels.
type Generator struct {
	Writer      Writer
	Illustrator Illustrator
	// ImagesDir receives the downloaded illustrations.
	ImagesDir string
	// ImagesURL prefixes the file name in Panel.Image.
	ImagesURL string
	// Ledger is optional.
	Ledger AssetLedger
	// Limiter spaces out image requests; nil means no limit.
	Limiter *rate.Limiter
	// Concurrency caps parallel illustrations; <= 0 means one per panel.
	Concurrency int
	// Download fetches image URLs.
	Download *http.Client
	// Now is the clock used for file names.
	Now func() time.Time
}

// New returns a Generator writing into imagesDir.
func New(w Writer, il Illustrator, imagesDir string) *Generator {
	return &Generator{
		Writer:      w,
		Illustrator: il,
		ImagesDir:   imagesDir,
		ImagesURL:   DefaultImagesURL,
		Download:    &http.Client{Timeout: 60 * time.Second},
		Now:         time.Now,
	}
}

// GeneratePrompt is the user message asking for the first three panels.
func GeneratePrompt(idea string) string {
	return fmt.Sprintf("Create a 3-panel comic strip based on this idea: %s. For each panel, provide: 1) Scene description, 2) Character dialogue, 3) Visual elements to include", idea)
}

// ContinuePrompt is the user message asking for two more panels.
func ContinuePrompt(story, choice string) string {
	return fmt.Sprintf("Here's the current comic strip: %s\n\nThe reader wants the story to continue with: %s\n\nCreate 2 more panels for the comic strip. For each panel, provide: 1) Scene description, 2) Character dialogue, 3) Visual elements to include", story, choice)
}

// ImagePrompt is the illustration prompt for one scene.
func ImagePrompt(scene string) string {
	return "Create a comic panel illustration for: " + scene
}

// GenerateComic clears the previous strip's images and produces the first panels for idea.
func (g *Generator) GenerateComic(ctx context.Context, idea string) ([]domain.Panel, error) {
	l := applog.WithOperation(applog.WithComponent("generator"), "generate")
	g.ClearOldImages(ctx)
	content, err := g.Writer.Complete(ctx, generateSystem, GeneratePrompt(idea))
	if err != nil {
		l.Error("text completion failed", slog.Any("err", err))
		return nil, err
	}
	panels := script.SplitPanels(content)
	if len(panels) == 0 {
		return nil, ErrNoPanels
	}
	if err := g.illustrate(ctx, panels, "panel_"); err != nil {
		l.Error("illustration failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("comic generated", slog.Int("panels", len(panels)))
	return panels, nil
}

// ContinueComic produces the next panels for the story so far.
func (g *Generator) ContinueComic(ctx context.Context, story, choice string) ([]domain.Panel, error) {
	l := applog.WithOperation(applog.WithComponent("generator"), "continue")
	content, err := g.Writer.Complete(ctx, continueSystem, ContinuePrompt(story, choice))
	if err != nil {
		l.Error("text completion failed", slog.Any("err", err))
		return nil, err
	}
	panels := script.SplitPanels(content)
	if len(panels) == 0 {
		return nil, ErrNoPanels
	}
	if err := g.illustrate(ctx, panels, "panel_cont_"); err != nil {
		l.Error("illustration failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("comic continued", slog.Int("panels", len(panels)))
	return panels, nil
}

// illustrate fills panels[i].Image in place. Any failure fails the whole batch.
func (g *Generator) illustrate(ctx context.Context, panels []domain.Panel, prefix string) error {
	if err := os.MkdirAll(g.ImagesDir, 0o755); err != nil {
		return fmt.Errorf("create images dir: %w", err)
	}
	stamp := g.now().Unix()
	eg, egCtx := errgroup.WithContext(ctx)
	if g.Concurrency > 0 {
		eg.SetLimit(g.Concurrency)
	}
	for i := range panels {
		eg.Go(func() error {
			if g.Limiter != nil {
				if err := g.Limiter.Wait(egCtx); err != nil {
					return err
				}
			}
			img, err := g.Illustrator.Illustrate(egCtx, ImagePrompt(panels[i].SceneDescription))
			if err != nil {
				return fmt.Errorf("panel %d illustration: %w", i+1, err)
			}
			name := fmt.Sprintf("%s%d_%d.png", prefix, i+1, stamp)
			if err := g.store(egCtx, img, name); err != nil {
				return fmt.Errorf("panel %d image: %w", i+1, err)
			}
			panels[i].Image = g.imagesURL() + name
			if g.Ledger != nil {
				sid, _ := applog.SessionFromContext(ctx)
				if err := g.Ledger.RecordAsset(egCtx, storage.Asset{Path: name, Kind: storage.KindPanelImage, Panel: i + 1, Session: sid}); err != nil {
					applog.WithComponent("generator").Warn("record asset failed", slog.String("file", name), slog.Any("err", err))
				}
			}
			return nil
		})
	}
	return eg.Wait()
}

func (g *Generator) store(ctx context.Context, img Image, name string) error {
	var data []byte
	switch {
	case img.B64 != "":
		b, err := base64.StdEncoding.DecodeString(img.B64)
		if err != nil {
			return fmt.Errorf("decode image data: %w", err)
		}
		data = b
	case img.URL != "":
		b, err := g.fetch(ctx, img.URL)
		if err != nil {
			return err
		}
		data = b
	default:
		return errors.New("illustration has neither url nor data")
	}
	path := filepath.Join(g.ImagesDir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (g *Generator) fetch(ctx context.Context, url string) ([]byte, error) {
	hc := g.Download
	if hc == nil {
		hc = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download %s: %s", url, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

// ClearOldImages removes panel_*.png from the image directory, keeping the placeholder.
// Failures are logged and never stop generation.
func (g *Generator) ClearOldImages(ctx context.Context) int {
	l := applog.WithOperation(applog.WithComponent("generator"), "clear_images")
	matches, err := filepath.Glob(filepath.Join(g.ImagesDir, "panel_*.png"))
	if err != nil {
		l.Warn("glob failed", slog.Any("err", err))
		return 0
	}
	removed := 0
	for _, m := range matches {
		if filepath.Base(m) == PlaceholderFile {
			continue
		}
		if err := os.Remove(m); err != nil {
			l.Warn("delete failed", slog.String("file", m), slog.Any("err", err))
			continue
		}
		removed++
	}
	if g.Ledger != nil {
		if _, err := g.Ledger.DeleteAssets(ctx, "panel_", PlaceholderFile); err != nil {
			l.Warn("ledger cleanup failed", slog.Any("err", err))
		}
	}
	l.Debug("cleared old panel images", slog.Int("count", removed))
	return removed
}

func (g *Generator) imagesURL() string {
	u := g.ImagesURL
	if u == "" {
		u = DefaultImagesURL
	}
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
