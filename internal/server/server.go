/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package server exposes the generation endpoints and the server-rendered comic page.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"comicstrip/internal/cache"
	"comicstrip/internal/domain"
	applog "comicstrip/internal/log"
	"comicstrip/internal/metrics"
	"comicstrip/internal/ui"
)

// Generator produces panels for the JSON endpoints.
type Generator interface {
	GenerateComic(ctx context.Context, idea string) ([]domain.Panel, error)
	ContinueComic(ctx context.Context, story, choice string) ([]domain.Panel, error)
}

// Server holds the handlers' dependencies. Generator backs the JSON API; UI and
// Artifacts back the page. Either half may be nil, in which case its routes are
// not mounted.
type Server struct {
	Generator Generator
	UI        *ui.Controller
	Artifacts cache.ArtifactStore
	Metrics   *metrics.Recorder
	// StaticDir is served under /static/ and holds the generated images.
	StaticDir string
	// MaxBody caps request bodies; 0 means 1 MiB.
	MaxBody int64
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}
	if s.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(s.StaticDir))))
	}
	if s.Generator != nil {
		r.Post("/generate-comic", s.generateComic)
		r.Post("/continue-comic", s.continueComic)
	}
	if s.UI != nil {
		r.Get("/", s.page)
		r.Route("/ui", func(r chi.Router) {
			r.Post("/generate", s.uiGenerate)
			r.Post("/continue", s.uiContinue)
			r.Post("/new", s.uiNew)
			r.Post("/download", s.uiDownload)
			r.Post("/panels/{n}/toggle", s.uiToggle)
		})
		r.Get("/download/{token}", s.download)
	}
	return r
}

func (s *Server) maxBody() int64 {
	if s.MaxBody <= 0 {
		return 1 << 20
	}
	return s.MaxBody
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		applog.WithComponent("server").Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("took", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	applog.WithComponent("server").Info("listening", slog.String("addr", addr))
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
