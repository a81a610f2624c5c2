/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"comicstrip/internal/domain"
	applog "comicstrip/internal/log"
	"comicstrip/internal/metrics"
	"comicstrip/internal/wire"
)

// generateComic handles POST /generate-comic. Generation failures are reported
// in the body with success=false and status 200; only malformed requests get 400.
func (s *Server) generateComic(w http.ResponseWriter, r *http.Request) {
	l := applog.WithOperation(applog.WithComponent("server"), metrics.OpGenerate)
	start := time.Now()
	var req domain.GenerateRequest
	if !s.decode(w, r, wire.GenerateRequest, &req) {
		s.Metrics.Observe(metrics.OpGenerate, metrics.OutcomeInvalid, time.Since(start))
		return
	}
	panels, err := s.Generator.GenerateComic(r.Context(), req.InitialIdea)
	if err != nil {
		l.Error("generate failed", slog.Any("err", err))
		s.Metrics.Observe(metrics.OpGenerate, metrics.OutcomeError, time.Since(start))
		writeJSON(w, http.StatusOK, domain.GenerateResponse{Success: false, Error: err.Error()})
		return
	}
	s.Metrics.Observe(metrics.OpGenerate, metrics.OutcomeOK, time.Since(start))
	s.Metrics.Panels(metrics.OpGenerate, len(panels))
	l.Info("comic generated", slog.Int("panels", len(panels)))
	writeJSON(w, http.StatusOK, domain.GenerateResponse{Success: true, Panels: panels})
}

// continueComic handles POST /continue-comic.
func (s *Server) continueComic(w http.ResponseWriter, r *http.Request) {
	l := applog.WithOperation(applog.WithComponent("server"), metrics.OpContinue)
	start := time.Now()
	var req domain.ContinueRequest
	if !s.decode(w, r, wire.ContinueRequest, &req) {
		s.Metrics.Observe(metrics.OpContinue, metrics.OutcomeInvalid, time.Since(start))
		return
	}
	panels, err := s.Generator.ContinueComic(r.Context(), req.CurrentStory, req.UserChoice)
	if err != nil {
		l.Error("continue failed", slog.Any("err", err))
		s.Metrics.Observe(metrics.OpContinue, metrics.OutcomeError, time.Since(start))
		writeJSON(w, http.StatusOK, domain.ContinueResponse{Success: false, Error: err.Error()})
		return
	}
	s.Metrics.Observe(metrics.OpContinue, metrics.OutcomeOK, time.Since(start))
	s.Metrics.Panels(metrics.OpContinue, len(panels))
	l.Info("comic continued", slog.Int("panels", len(panels)))
	writeJSON(w, http.StatusOK, domain.ContinueResponse{Success: true, NewPanels: panels})
}

// decode reads and validates the body into v. It writes the 400 reply itself and
// reports false when the request cannot be used.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, k wire.Kind, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody()))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody("could not read request body"))
		return false
	}
	if err := wire.Validate(k, body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

func errorBody(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.WithComponent("server").Error("response encode failed", slog.Any("err", err))
	}
}
