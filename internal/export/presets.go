/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"comicstrip/internal/render"
)

// PresetName represents a named export preset.
type PresetName string

const (
	PresetWeb   PresetName = "web"
	PresetPrint PresetName = "print"
)

// Format names accepted by Batch.
const (
	FormatPNG = "png"
	FormatPDF = "pdf"
	FormatCBZ = "cbz"
)

// BatchOptions controls a multi-format export of one composition.
// Formats wins over the preset's defaults. CBZ archives hold the full strip
// followed by one page per panel.
type BatchOptions struct {
	Preset     PresetName
	Formats    []string
	Title      string
	Transcript string
}

// Batch composes views once and encodes the result in every requested format.
func (c *Composer) Batch(ctx context.Context, views []*render.PanelView, opt BatchOptions) ([]Artifact, error) {
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	for i := range formats {
		formats[i] = strings.ToLower(strings.TrimSpace(formats[i]))
		switch formats[i] {
		case FormatPNG, FormatPDF, FormatCBZ:
		default:
			return nil, fmt.Errorf("unknown format: %s", formats[i])
		}
	}

	strip, err := c.ComposeImage(ctx, views)
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(DefaultFilename, ".png")

	var out []Artifact
	for _, f := range formats {
		switch f {
		case FormatPNG:
			data, err := EncodePNG(strip)
			if err != nil {
				return nil, err
			}
			out = append(out, PNGArtifact(data))
		case FormatPDF:
			var buf bytes.Buffer
			if err := WritePDF(&buf, strip, PDFOptions{Title: opt.Title, Transcript: opt.Transcript, Scale: c.scale()}); err != nil {
				return nil, fmt.Errorf("pdf: %w", err)
			}
			out = append(out, Artifact{Filename: base + ".pdf", ContentType: "application/pdf", Data: buf.Bytes()})
		case FormatCBZ:
			pages := []image.Image{strip}
			for _, pv := range views {
				pg, err := c.ComposeImage(ctx, []*render.PanelView{pv})
				if err != nil {
					return nil, fmt.Errorf("cbz panel %d: %w", pv.Index, err)
				}
				pages = append(pages, pg)
			}
			var buf bytes.Buffer
			if err := WriteCBZ(&buf, pages, CBZOptions{Title: opt.Title, Summary: opt.Transcript}); err != nil {
				return nil, fmt.Errorf("cbz: %w", err)
			}
			out = append(out, Artifact{Filename: base + ".cbz", ContentType: "application/vnd.comicbook+zip", Data: buf.Bytes()})
		}
	}
	return out, nil
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetWeb:
		return []string{FormatPNG, FormatCBZ}
	case PresetPrint:
		return []string{FormatPDF, FormatPNG}
	default:
		return []string{FormatPNG}
	}
}
