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
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"comicstrip/internal/domain"
	"comicstrip/internal/export"
	"comicstrip/internal/generator"
	"comicstrip/internal/script"
	"comicstrip/internal/telemetry"
	"comicstrip/internal/ui"
)

type makeOptions struct {
	idea       string
	choices    []string
	out        string
	formats    []string
	preset     string
	title      string
	transcript bool
}

func newMakeCmd(e *env) *cobra.Command {
	var o makeOptions
	cmd := &cobra.Command{
		Use:   "make",
		Short: "Generate a comic strip and export it",
		Example: `  comicstrip make --idea "a cat who wants to fly"
  comicstrip make --idea "a robot chef" --continue "the kitchen catches fire" --format png,pdf,cbz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return makeComic(cmd.Context(), e, o, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.idea, "idea", "", "comic idea")
	f.StringArrayVar(&o.choices, "continue", nil, "what happens next; repeat to continue several times")
	f.StringVarP(&o.out, "out", "o", ".", "output directory")
	f.StringSliceVar(&o.formats, "format", nil, "export formats: png, pdf, cbz (default from preset, png)")
	f.StringVar(&o.preset, "preset", "", "export preset: web or print")
	f.StringVar(&o.title, "title", "", "title printed in PDF and CBZ metadata")
	f.BoolVar(&o.transcript, "transcript", false, "print the story to the terminal")
	_ = cmd.MarkFlagRequired("idea")
	return cmd
}

func makeComic(ctx context.Context, e *env, o makeOptions, out io.Writer) error {
	cfg := e.cfg
	var res closers
	defer res.Close()

	ledger, err := openLedger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	res = append(res, ledger)

	var gen *generator.Generator
	if cfg.Service.BaseURL == "" {
		if gen, err = newGenerator(cfg, e.apiKey, ledger); err != nil {
			return err
		}
	}
	svc, err := newService(cfg, gen)
	if err != nil {
		return err
	}
	// Panel images are served by the remote service when one is used.
	loader := newLoader(cfg, cfg.Service.BaseURL)
	comp, closer, err := newComposer(cfg, loader)
	if err != nil {
		return err
	}
	res = append(res, closer)

	ctl := ui.NewController(svc, comp)
	ctl.Images = loader
	ctl.Telemetry = telemetry.Default()
	ctl.Ledger = ledger
	e.active.set(ctl.Session)

	if err := ctl.Generate(ctx, o.idea); err != nil {
		return userError(err)
	}
	for _, c := range o.choices {
		if err := ctl.Continue(ctx, c); err != nil {
			return userError(err)
		}
	}
	fmt.Fprintf(out, "Generated %d panels.\n", ctl.Session.Len())

	if o.transcript {
		title := o.title
		if title == "" {
			title = cfg.Export.Title
		}
		fmt.Fprint(out, renderMarkdown(transcriptMarkdown(title, ctl.Session.Panels())))
	}

	arts, err := ctl.Export(ctx, export.BatchOptions{
		Preset:  export.PresetName(o.preset),
		Formats: o.formats,
		Title:   o.title,
	})
	if err != nil {
		return userError(err)
	}
	for _, a := range arts {
		p, err := export.WriteFile(o.out, a)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s (%d bytes)\n", p, len(a.Data))
	}
	return nil
}

// userError prefers the message a user would see in the page.
func userError(err error) error {
	var ue *ui.Error
	if errors.As(err, &ue) && ue.Message != "" {
		return errors.New(ue.Message)
	}
	return err
}

// transcriptMarkdown lays the story out as markdown, one section per panel.
func transcriptMarkdown(title string, panels []domain.Panel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	for i, p := range panels {
		fmt.Fprintf(&b, "## Panel %d\n\n%s\n\n", i+1, strings.TrimSpace(p.SceneDescription))
		for _, l := range script.ParseDialogue(p.Dialogue) {
			if l.HasSpeaker() {
				fmt.Fprintf(&b, "> **%s:** %s\n>\n", l.Speaker, l.Text)
			} else {
				fmt.Fprintf(&b, "> %s\n>\n", l.Text)
			}
		}
		if v := strings.TrimSpace(p.VisualElements); v != "" {
			fmt.Fprintf(&b, "\n*%s*\n", v)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return md
	}
	s, err := r.Render(md)
	if err != nil {
		return md
	}
	return s
}
