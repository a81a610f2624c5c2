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
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/net/html"

	applog "comicstrip/internal/log"
	"comicstrip/internal/render"
)

const exportRootAttr = "data-export-root"

// ErrNoBrowser is returned when no Chromium binary can be found.
var ErrNoBrowser = errors.New("no chromium binary found")

// BrowserRasterizer paints export trees with a headless Chromium driven over the
// DevTools protocol. Images are inlined as data URIs so the page needs no network
// access.
type BrowserRasterizer struct {
	// Bin is the browser executable; it is looked up when empty.
	Bin string
	// ControlURL connects to an already running browser instead of launching one.
	ControlURL string
	NoSandbox  bool

	mu      sync.Mutex
	browser *rod.Browser
}

func (b *BrowserRasterizer) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}
	u := b.ControlURL
	if u == "" {
		bin := b.Bin
		if bin == "" {
			p, ok := launcher.LookPath()
			if !ok {
				return nil, ErrNoBrowser
			}
			bin = p
		}
		l := launcher.New().Bin(bin).Headless(true)
		if b.NoSandbox {
			l = l.NoSandbox(true)
		}
		var err error
		u, err = l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}
	br := rod.New().ControlURL(u)
	if err := br.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	b.browser = br
	applog.WithComponent("export").Info("headless browser connected", slog.String("control_url", u))
	return br, nil
}

// Rasterize implements Rasterizer.
func (b *BrowserRasterizer) Rasterize(ctx context.Context, f Frame, scale float64) (image.Image, error) {
	if f.Root == nil {
		return nil, errors.New("browser: nothing to rasterize")
	}
	doc, err := documentFor(f)
	if err != nil {
		return nil, err
	}
	br, err := b.connect()
	if err != nil {
		return nil, err
	}
	page, err := br.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()
	page = page.Context(ctx)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: 1280, Height: 900, DeviceScaleFactor: scale,
	}); err != nil {
		return nil, fmt.Errorf("viewport: %w", err)
	}
	if err := page.SetDocumentContent(doc); err != nil {
		return nil, fmt.Errorf("set content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	el, err := page.Element("[" + exportRootAttr + "]")
	if err != nil {
		return nil, fmt.Errorf("find export root: %w", err)
	}
	// bring the off-screen tree into the capture area
	if _, err := el.Eval(`() => { this.style.left = '0px'; this.style.top = '0px' }`); err != nil {
		return nil, fmt.Errorf("position export root: %w", err)
	}
	buf, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return img, nil
}

// documentFor serializes a standalone page holding a copy of the export tree with
// every image inlined.
func documentFor(f Frame) (string, error) {
	root := render.Clone(f.Root)
	render.SetAttr(root, exportRootAttr, "1")
	if err := inlineImages(root, f.Images); err != nil {
		return "", err
	}
	tree, err := render.Render(root)
	if err != nil {
		return "", fmt.Errorf("serialize export tree: %w", err)
	}
	return `<!DOCTYPE html><html><head><meta charset="utf-8"></head><body style="margin: 0; background-color: white">` +
		tree + `</body></html>`, nil
}

func inlineImages(root *html.Node, images map[string]image.Image) error {
	encoded := map[string]string{}
	var walkErr error
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if walkErr != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "img" {
			src, _ := render.Attr(n, "src")
			if img, ok := images[src]; ok {
				uri, done := encoded[src]
				if !done {
					data, err := EncodePNG(img)
					if err != nil {
						walkErr = err
						return
					}
					uri = "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
					encoded[src] = uri
				}
				render.SetAttr(n, "src", uri)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return walkErr
}

// Close shuts down the browser connection.
func (b *BrowserRasterizer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}
