/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"comicstrip/internal/cache"
	"comicstrip/internal/client"
	"comicstrip/internal/config"
	"comicstrip/internal/export"
	"comicstrip/internal/generator"
	applog "comicstrip/internal/log"
	"comicstrip/internal/storage"
	"comicstrip/internal/ui"
)

// closers collects resources released when a command ends.
type closers []io.Closer

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			applog.WithComponent("cli").Warn("close failed", slog.Any("err", err))
		}
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openLedger(ctx context.Context, cfg config.AppConfig) (*storage.Ledger, error) {
	return storage.Open(ctx, storage.Options{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Dir:    cfg.StorageDir(),
	})
}

// newGenerator builds the in-process generator from the generator section.
func newGenerator(cfg config.AppConfig, apiKey string, ledger *storage.Ledger) (*generator.Generator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("no API key: set CS_API_KEY or run 'comicstrip config set-key'")
	}
	gc := cfg.Generator
	ai := generator.NewOpenAI(generator.OpenAIOptions{
		BaseURL:      gc.BaseURL,
		APIKey:       apiKey,
		TextModel:    gc.TextModel,
		ImageModel:   gc.ImageModel,
		ImageSize:    gc.ImageSize,
		ImageQuality: gc.ImageQuality,
		Timeout:      time.Duration(gc.TimeoutMs) * time.Millisecond,
	})
	g := generator.New(ai, ai, cfg.ImagesDir())
	g.Concurrency = gc.Concurrency
	if gc.RateIntervalMs > 0 {
		g.Limiter = rate.NewLimiter(rate.Every(time.Duration(gc.RateIntervalMs)*time.Millisecond), 1)
	}
	if ledger != nil {
		g.Ledger = ledger
	}
	return g, nil
}

// newService returns the HTTP client when a service URL is configured, the
// in-process generator otherwise.
func newService(cfg config.AppConfig, gen *generator.Generator) (ui.Service, error) {
	if cfg.Service.BaseURL != "" {
		return client.NewClient(cfg.Service.BaseURL, "", cfg.ServiceTimeout()), nil
	}
	if gen == nil {
		return nil, errors.New("no generation backend: configure service.base_url or an API key")
	}
	return ui.ServiceFuncs{GenerateFn: gen.GenerateComic, ContinueFn: gen.ContinueComic}, nil
}

// newComposer builds the exporter; the returned closer shuts down a launched browser.
func newComposer(cfg config.AppConfig, loader *export.Loader) (*export.Composer, io.Closer, error) {
	ec := cfg.Export
	var (
		r      export.Rasterizer
		closer io.Closer = nopCloser{}
	)
	switch ec.Rasterizer {
	case "browser":
		b := &export.BrowserRasterizer{Bin: ec.BrowserBin}
		r, closer = b, b
	case "", "canvas":
		c, err := export.NewCanvasRasterizer()
		if err != nil {
			return nil, nil, err
		}
		r = c
	default:
		return nil, nil, fmt.Errorf("unknown rasterizer %q", ec.Rasterizer)
	}
	comp := export.NewComposer(r, loader)
	comp.Title = ec.Title
	comp.Width = ec.Width
	comp.Scale = float64(ec.Scale)
	comp.Settle = time.Duration(ec.SettleMs) * time.Millisecond
	return comp, closer, nil
}

func newLoader(cfg config.AppConfig, baseURL string) *export.Loader {
	return export.NewLoader(export.LoaderOptions{
		StaticDir:   cfg.Server.StaticDir,
		BaseURL:     baseURL,
		AllowRemote: cfg.Export.AllowRemote,
	})
}

func newArtifactStore(ctx context.Context, cfg config.AppConfig) (cache.ArtifactStore, error) {
	switch cfg.Cache.Backend {
	case "redis":
		s := cache.NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cache.WithTTL(cfg.CacheTTL()))
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Cache.RedisAddr, err)
		}
		return s, nil
	case "", "memory":
		return cache.NewMemoryStore(cfg.CacheTTL()), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
