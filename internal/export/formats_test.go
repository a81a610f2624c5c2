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
	"context"
	"image"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteCBZ(t *testing.T) {
	pages := []image.Image{image.NewRGBA(image.Rect(0, 0, 8, 8)), image.NewRGBA(image.Rect(0, 0, 4, 4))}
	var buf bytes.Buffer
	if err := WriteCBZ(&buf, pages, CBZOptions{Title: "Cats & Dogs", Summary: "Panel 1:\nScene: <roof>"}); err != nil {
		t.Fatalf("write cbz: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	names := map[string]*zip.File{}
	for _, f := range zr.File {
		names[f.Name] = f
	}
	for _, want := range []string{"1.png", "2.png", "ComicInfo.xml"} {
		if names[want] == nil {
			t.Fatalf("missing %s in archive", want)
		}
	}
	rc, err := names["ComicInfo.xml"].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = rc.Close() }()
	b, _ := io.ReadAll(rc)
	xml := string(b)
	for _, want := range []string{
		"<PageCount>2</PageCount>",
		"<Title>Cats &amp; Dogs</Title>",
		"<Series>Cats &amp; Dogs</Series>",
		"&lt;roof&gt;",
		"<ReadingDirection>LeftToRight</ReadingDirection>",
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("manifest missing %q:\n%s", want, xml)
		}
	}
	if err := WriteCBZ(io.Discard, nil, CBZOptions{}); err == nil {
		t.Fatalf("expected error for empty archive")
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	if err := WritePDF(&buf, img, PDFOptions{Title: "Strip", Transcript: "Panel 1:\nScene: café"}); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("not a pdf")
	}
	if err := WritePDF(io.Discard, nil, PDFOptions{}); err == nil {
		t.Fatalf("expected error without image")
	}
}

func TestBatchFormats(t *testing.T) {
	r := &recordingRasterizer{}
	c := NewComposer(r, NewLoader(LoaderOptions{StaticDir: t.TempDir()}))
	views := sampleViews(t)
	arts, err := c.Batch(context.Background(), views, BatchOptions{Preset: PresetWeb, Transcript: "story"})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(arts) != 2 || arts[0].Filename != DefaultFilename || arts[1].Filename != "my-comic-strip.cbz" {
		t.Fatalf("unexpected artifacts: %+v", arts)
	}
	// strip plus one composition per panel
	if r.calls != 1+len(views) {
		t.Fatalf("expected %d rasterizations, got %d", 1+len(views), r.calls)
	}

	arts, err = c.Batch(context.Background(), views, BatchOptions{Formats: []string{" PDF "}})
	if err != nil || len(arts) != 1 || arts[0].ContentType != "application/pdf" {
		t.Fatalf("pdf batch: %+v %v", arts, err)
	}
	if _, err := c.Batch(context.Background(), views, BatchOptions{Formats: []string{"gif"}}); err == nil {
		t.Fatalf("expected unknown format error")
	}
}

func TestDeliverAndWriteFile(t *testing.T) {
	a := PNGArtifact([]byte("\x89PNG\r\n\x1a\nrest"))
	rec := httptest.NewRecorder()
	if err := Deliver(rec, a); err != nil {
		t.Fatal(err)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="my-comic-strip.png"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if rec.Header().Get("Content-Type") != "image/png" || rec.Body.Len() != len(a.Data) {
		t.Fatalf("unexpected response headers/body")
	}

	dir := t.TempDir()
	p, err := WriteFile(filepath.Join(dir, "out"), a)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p) != "my-comic-strip.png" {
		t.Fatalf("unexpected path %s", p)
	}
	if b, _ := os.ReadFile(p); !bytes.Equal(b, a.Data) {
		t.Fatalf("file content mismatch")
	}
}
