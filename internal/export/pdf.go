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
	"fmt"
	"image"
	"io"

	"github.com/jung-kurt/gofpdf"

	"comicstrip/internal/version"
)

// PDFOptions controls PDF export behavior.
// The composition is placed on a single page sized to the bitmap (1 CSS px = 0.75 pt).
// When Transcript is set it follows on A4 pages in Helvetica.
type PDFOptions struct {
	Title      string
	Author     string
	Transcript string
	// Scale is the pixel density the bitmap was rasterized at.
	Scale float64
}

// WritePDF writes img (and optionally the transcript) as a PDF document.
func WritePDF(w io.Writer, img image.Image, opt PDFOptions) error {
	if img == nil {
		return fmt.Errorf("pdf: no image")
	}
	scale := opt.Scale
	if scale <= 0 {
		scale = DefaultScale
	}
	title := opt.Title
	if title == "" {
		title = DefaultTitle
	}
	b := img.Bounds()
	pageW := float64(b.Dx()) / scale * 0.75
	pageH := float64(b.Dy()) / scale * 0.75

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	pdf.SetTitle(title, true)
	if opt.Author != "" {
		pdf.SetAuthor(opt.Author, true)
	}
	pdf.SetCreator("comicstrip "+version.String(), true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	data, err := EncodePNG(img)
	if err != nil {
		return err
	}
	imgOpt := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("strip", imgOpt, bytes.NewReader(data))
	pdf.AddPage()
	pdf.ImageOptions("strip", 0, 0, pageW, pageH, false, imgOpt, 0, "")

	if opt.Transcript != "" {
		tr := pdf.UnicodeTranslatorFromDescriptor("")
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: 595.28, Ht: 841.89})
		pdf.SetMargins(48, 48, 48)
		pdf.SetAutoPageBreak(true, 48)
		pdf.SetXY(48, 48)
		pdf.SetFont("Helvetica", "B", 16)
		pdf.CellFormat(0, 24, tr(title), "", 1, "L", false, 0, "")
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 15, tr(opt.Transcript), "", "L", false)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
