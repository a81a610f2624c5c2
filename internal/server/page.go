/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"comicstrip/internal/cache"
	"comicstrip/internal/export"
	applog "comicstrip/internal/log"
	"comicstrip/internal/ui"
)

// pageData feeds pageTemplate.
type pageData struct {
	Show      ui.Visibility
	Loading   bool
	Notice    string
	ErrorText string
	Panels    template.HTML
}

func (d pageData) Hidden(s string) bool { return !d.Show.Visible(ui.Section(s)) }

var pageTmpl = template.Must(template.New("page").Parse(pageTemplate))

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  {{if .Loading}}<meta http-equiv="refresh" content="2">{{end}}
  <title>AI Comic Strip Generator</title>
  <link rel="stylesheet" href="/static/css/style.css">
</head>
<body>
  <div class="container">
    <h1>AI Comic Strip Generator</h1>
    {{if .Notice}}<div class="notice" role="alert">{{.Notice}}</div>{{end}}

    <section id="idea-input"{{if .Hidden "idea-input"}} class="hidden"{{end}}>
      <form method="post" action="/ui/generate">
        <textarea id="initial-idea" name="idea" placeholder="Describe your comic strip idea..."></textarea>
        <button id="generate-btn" type="submit">Generate Comic</button>
      </form>
    </section>

    <section id="loading"{{if .Hidden "loading"}} class="hidden"{{end}}>
      <div class="spinner"></div>
      <p>Creating your comic...</p>
    </section>

    <section id="comic-display"{{if .Hidden "comic-display"}} class="hidden"{{end}}>
      {{.Panels}}
      <form method="post" action="/ui/continue">
        <textarea id="continuation-idea" name="choice" placeholder="What happens next?"></textarea>
        <button id="continue-btn" type="submit">Continue Story</button>
      </form>
      <form method="post" action="/ui/download"{{if .Hidden "download-btn"}} class="hidden"{{end}}>
        <button id="download-btn" type="submit">Download Comic</button>
      </form>
      <form method="post" action="/ui/new">
        <button id="new-comic-btn" type="submit">New Comic</button>
      </form>
    </section>

    <section id="error-display"{{if .Hidden "error-display"}} class="hidden"{{end}}>
      <p id="error-text">{{.ErrorText}}</p>
      <form method="post" action="/ui/new">
        <button id="try-again-btn" type="submit">Try Again</button>
      </form>
    </section>
  </div>
  <script>
    document.querySelectorAll('.more-details-btn').forEach(function (btn) {
      btn.addEventListener('click', function () {
        fetch('/ui/panels/' + btn.dataset.panel + '/toggle', {method: 'POST'})
          .then(function () { window.location.reload(); });
      });
    });
  </script>
</body>
</html>`

// page renders the current UI state.
func (s *Server) page(w http.ResponseWriter, _ *http.Request) {
	m := s.UI.Machine()
	st := m.State()
	view := s.UI.View()
	data := pageData{
		Show:      ui.Sections(st, m.Exporting(), view != nil && view.ExportAvailable && s.Artifacts != nil),
		Loading:   st == ui.StateLoading,
		Notice:    m.Notice(),
		ErrorText: m.ErrorText(),
	}
	if st == ui.StateResult {
		h, err := s.UI.PanelsHTML()
		if err != nil {
			applog.WithComponent("server").Error("render panels failed", slog.Any("err", err))
			http.Error(w, "could not render comic", http.StatusInternalServerError)
			return
		}
		// The panel markup is built node by node from escaped text.
		data.Panels = template.HTML(h)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, data); err != nil {
		applog.WithComponent("server").Error("page render failed", slog.Any("err", err))
	}
}

func backToPage(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// uiGenerate runs the generate action. The outcome is shown by the page, so every
// result redirects back to it. A client that gives up waiting does not cancel the
// request; the result is there on the next page load.
func (s *Server) uiGenerate(w http.ResponseWriter, r *http.Request) {
	if err := s.UI.Generate(context.WithoutCancel(r.Context()), r.FormValue("idea")); err != nil {
		applog.WithComponent("server").Debug("ui generate", slog.Any("err", err))
	}
	backToPage(w, r)
}

func (s *Server) uiContinue(w http.ResponseWriter, r *http.Request) {
	if err := s.UI.Continue(context.WithoutCancel(r.Context()), r.FormValue("choice")); err != nil {
		applog.WithComponent("server").Debug("ui continue", slog.Any("err", err))
	}
	backToPage(w, r)
}

func (s *Server) uiNew(w http.ResponseWriter, r *http.Request) {
	s.UI.NewComic()
	backToPage(w, r)
}

// uiToggle flips one panel's dialogue; n is the 1-based panel position.
func (s *Server) uiToggle(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if _, err := s.UI.TogglePanel(n); err != nil {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uiDownload composes the PNG, parks it in the artifact store and redirects to its
// download URL. On failure the page shows the export notice over the comic.
func (s *Server) uiDownload(w http.ResponseWriter, r *http.Request) {
	l := applog.WithOperation(applog.WithComponent("server"), "download")
	if s.Artifacts == nil {
		http.NotFound(w, r)
		return
	}
	a, err := s.UI.Download(context.WithoutCancel(r.Context()))
	if err != nil {
		backToPage(w, r)
		return
	}
	token, err := s.Artifacts.Put(r.Context(), a)
	if err != nil {
		l.Error("store artifact failed", slog.Any("err", err))
		s.UI.Machine().SetNotice(ui.MsgExportFailed)
		backToPage(w, r)
		return
	}
	http.Redirect(w, r, "/download/"+token, http.StatusSeeOther)
}

// download serves a stored artifact as an attachment.
func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	if s.Artifacts == nil {
		http.NotFound(w, r)
		return
	}
	a, err := s.Artifacts.Get(r.Context(), chi.URLParam(r, "token"))
	if errors.Is(err, cache.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		applog.WithComponent("server").Error("load artifact failed", slog.Any("err", err))
		http.Error(w, "download unavailable", http.StatusInternalServerError)
		return
	}
	if err := export.Deliver(w, a); err != nil {
		applog.WithComponent("server").Warn("deliver artifact failed", slog.Any("err", err))
	}
}
