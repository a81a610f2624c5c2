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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"comicstrip/internal/generator"
	applog "comicstrip/internal/log"
	"comicstrip/internal/metrics"
	"comicstrip/internal/server"
	"comicstrip/internal/telemetry"
	"comicstrip/internal/ui"
)

func newServeCmd(e *env) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the comic page and the generation API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				e.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, e)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :5000)")
	return cmd
}

func serve(ctx context.Context, e *env) error {
	l := applog.WithOperation(applog.WithComponent("cli"), "serve")
	cfg := e.cfg
	var res closers
	defer res.Close()

	if err := os.MkdirAll(cfg.ImagesDir(), 0o755); err != nil {
		return fmt.Errorf("ensure images dir: %w", err)
	}
	ledger, err := openLedger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	res = append(res, ledger)

	rec := metrics.New()
	srv := &server.Server{Metrics: rec, StaticDir: cfg.Server.StaticDir}

	// The JSON API needs the generator itself; the page may talk to a remote service.
	var gen *generator.Generator
	if e.apiKey != "" {
		if gen, err = newGenerator(cfg, e.apiKey, ledger); err != nil {
			return err
		}
		srv.Generator = gen
	} else {
		l.Warn("no API key configured; /generate-comic and /continue-comic are disabled")
	}

	svc, err := newService(cfg, gen)
	if err != nil {
		l.Warn("comic page disabled", slog.Any("err", err))
	} else {
		loader := newLoader(cfg, cfg.Service.BaseURL)
		comp, closer, err := newComposer(cfg, loader)
		if err != nil {
			return err
		}
		res = append(res, closer)
		store, err := newArtifactStore(ctx, cfg)
		if err != nil {
			return err
		}
		res = append(res, store)

		ctl := ui.NewController(svc, comp)
		ctl.Images = loader
		ctl.Metrics = rec
		ctl.Telemetry = telemetry.Default()
		ctl.Ledger = ledger
		e.active.set(ctl.Session)
		srv.UI = ctl
		srv.Artifacts = store
	}

	l.Info("starting server",
		slog.String("addr", cfg.Server.Addr),
		slog.String("static", cfg.Server.StaticDir),
		slog.String("ledger", ledger.Driver()),
		slog.Bool("api", srv.Generator != nil),
		slog.Bool("page", srv.UI != nil))
	return server.ListenAndServe(ctx, cfg.Server.Addr, srv.Handler())
}
