/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"comicstrip/internal/config"
	"comicstrip/internal/domain"
	"comicstrip/internal/session"
	"comicstrip/internal/ui"
	"comicstrip/internal/version"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd(&env{active: &sessionRef{}})
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "comicstrip "+version.String() {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestSessionRefFollowsActiveSession(t *testing.T) {
	ref := &sessionRef{}
	if ref.ID() != "" || ref.Len() != 0 || ref.Transcript() != "" {
		t.Fatalf("empty ref should report nothing")
	}
	s := session.New()
	s.AppendGenerated("idea", []domain.Panel{{SceneDescription: "A", Dialogue: "Cat: hi"}})
	ref.set(s)
	if ref.ID() != s.ID() || ref.Len() != 1 || !strings.Contains(ref.Transcript(), "Cat: hi") {
		t.Fatalf("ref does not follow the session")
	}
}

func TestTranscriptMarkdown(t *testing.T) {
	md := transcriptMarkdown("My Strip", []domain.Panel{
		{SceneDescription: "A cat on a roof", Dialogue: "Cat: I can fly!\nThe wind howls.", VisualElements: "full moon"},
		{SceneDescription: "The cat falls"},
	})
	for _, want := range []string{
		"# My Strip",
		"## Panel 1",
		"> **Cat:** I can fly!",
		"> The wind howls.",
		"*full moon*",
		"## Panel 2",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("missing %q in:\n%s", want, md)
		}
	}
}

func TestUserErrorPrefersDisplayMessage(t *testing.T) {
	err := userError(&ui.Error{Kind: ui.KindService, Message: "quota exceeded", Err: context.DeadlineExceeded})
	if err.Error() != "quota exceeded" {
		t.Fatalf("unexpected message %q", err)
	}
	if userError(context.Canceled) != context.Canceled {
		t.Fatalf("plain errors pass through")
	}
}

func TestNewServiceNeedsBackend(t *testing.T) {
	cfg := config.Defaults()
	if _, err := newService(cfg, nil); err == nil {
		t.Fatalf("expected an error without service URL or generator")
	}
	cfg.Service.BaseURL = "http://localhost:5000"
	if _, err := newService(cfg, nil); err != nil {
		t.Fatalf("client service: %v", err)
	}
}

func TestNewComposerRejectsUnknownRasterizer(t *testing.T) {
	cfg := config.Defaults()
	cfg.Export.Rasterizer = "laser"
	if _, _, err := newComposer(cfg, newLoader(cfg, "")); err == nil {
		t.Fatalf("expected error")
	}
}
