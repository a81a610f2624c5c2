/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"io"
)

// CBZOptions carries the ComicInfo.xml metadata.
type CBZOptions struct {
	Series  string
	Title   string
	Writer  string
	Summary string
}

type comicInfo struct {
	XMLName          xml.Name `xml:"ComicInfo"`
	XSI              string   `xml:"xmlns:xsi,attr"`
	Series           string   `xml:"Series"`
	Title            string   `xml:"Title"`
	Number           int      `xml:"Number"`
	PageCount        int      `xml:"PageCount"`
	Writer           string   `xml:"Writer,omitempty"`
	Summary          string   `xml:"Summary,omitempty"`
	ReadingDirection string   `xml:"ReadingDirection"`
}

// WriteCBZ packages pages as PNG images into a CBZ (ZIP) archive and adds a
// ComicInfo.xml manifest for reader compatibility.
func WriteCBZ(w io.Writer, pages []image.Image, opt CBZOptions) error {
	if len(pages) == 0 {
		return ErrNoPanels
	}
	zw := zip.NewWriter(w)

	pad := len(fmt.Sprint(len(pages)))
	for i, pg := range pages {
		data, err := EncodePNG(pg)
		if err != nil {
			return err
		}
		// PNG is already deflated
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: fmt.Sprintf("%0*d.png", pad, i+1), Method: zip.Store})
		if err != nil {
			return fmt.Errorf("zip add image: %w", err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("zip add image: %w", err)
		}
	}

	manifest, err := buildComicInfoXML(opt, len(pages))
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}
	fw, err := zw.Create("ComicInfo.xml")
	if err != nil {
		return fmt.Errorf("zip add manifest: %w", err)
	}
	if _, err := fw.Write(manifest); err != nil {
		return fmt.Errorf("zip add manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

func buildComicInfoXML(opt CBZOptions, pageCount int) ([]byte, error) {
	title := opt.Title
	if title == "" {
		title = DefaultTitle
	}
	series := opt.Series
	if series == "" {
		series = title
	}
	info := comicInfo{
		XSI:              "http://www.w3.org/2001/XMLSchema-instance",
		Series:           series,
		Title:            title,
		Number:           1,
		PageCount:        pageCount,
		Writer:           opt.Writer,
		Summary:          opt.Summary,
		ReadingDirection: "LeftToRight",
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(info); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
