/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"  // decoder registration
	_ "image/jpeg" // decoder registration
	_ "image/png"  // decoder registration
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	_ "golang.org/x/image/webp" // decoder registration
	"golang.org/x/sync/errgroup"

	applog "comicstrip/internal/log"
	"comicstrip/internal/render"
)

// ErrRemoteDisabled is returned for absolute http(s) sources when remote loading is off.
var ErrRemoteDisabled = errors.New("cross-origin image loading disabled")

// ErrUnsupportedSource is returned for sources that are neither data URIs, http(s)
// URLs nor paths under the static prefix, such as file:// URIs.
var ErrUnsupportedSource = errors.New("unsupported image source")

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Client *http.Client
	// StaticPrefix and StaticDir map URL paths such as /static/images/x.png to files.
	StaticPrefix string
	StaticDir    string
	// BaseURL resolves relative sources over HTTP. Static paths are fetched from it
	// first and read from StaticDir only when that fails.
	BaseURL string
	// AllowRemote permits absolute http(s) sources.
	AllowRemote bool
	Placeholder string
	Concurrency int
	MaxBytes    int64
	CacheTTL    time.Duration
}

// Loader fetches and decodes panel images. Decoded images are cached by src, so
// the view and the export composition share one resolution per image.
type Loader struct {
	opt   LoaderOptions
	cache *gocache.Cache
}

// NewLoader applies defaults to opt.
func NewLoader(opt LoaderOptions) *Loader {
	if opt.Client == nil {
		opt.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opt.StaticPrefix == "" {
		opt.StaticPrefix = "/static/"
	}
	if opt.Placeholder == "" {
		opt.Placeholder = render.DefaultPlaceholder
	}
	if opt.Concurrency <= 0 {
		opt.Concurrency = 4
	}
	if opt.MaxBytes <= 0 {
		opt.MaxBytes = 20 << 20
	}
	if opt.CacheTTL <= 0 {
		opt.CacheTTL = 30 * time.Minute
	}
	return &Loader{opt: opt, cache: gocache.New(opt.CacheTTL, 2*opt.CacheTTL)}
}

// Resolve loads src and reports whether it can be displayed.
func (l *Loader) Resolve(ctx context.Context, src string) error {
	_, err := l.Load(ctx, src)
	return err
}

// Load returns the decoded image for src.
func (l *Loader) Load(ctx context.Context, src string) (image.Image, error) {
	if v, ok := l.cache.Get(src); ok {
		return v.(image.Image), nil
	}
	rc, err := l.open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	img, _, err := image.Decode(io.LimitReader(rc, l.opt.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", shortSrc(src), err)
	}
	l.cache.SetDefault(src, img)
	return img, nil
}

// LoadAll resolves every source concurrently and returns once each one has either
// decoded or been replaced by the placeholder image.
func (l *Loader) LoadAll(ctx context.Context, srcs []string) map[string]image.Image {
	out := make(map[string]image.Image, len(srcs))
	imgs := make([]image.Image, len(srcs))
	var g errgroup.Group
	g.SetLimit(l.opt.Concurrency)
	for i, src := range srcs {
		g.Go(func() error {
			img, err := l.Load(ctx, src)
			if err != nil {
				applog.WithComponent("export").Debug("image unavailable, using placeholder",
					slog.String("src", shortSrc(src)), slog.Any("err", err))
				img = l.PlaceholderImage(ctx)
			}
			imgs[i] = img
			return nil
		})
	}
	_ = g.Wait()
	for i, src := range srcs {
		out[src] = imgs[i]
	}
	return out
}

// PlaceholderImage returns the configured placeholder, or a flat grey tile when it
// cannot be loaded either.
func (l *Loader) PlaceholderImage(ctx context.Context) image.Image {
	if img, err := l.Load(ctx, l.opt.Placeholder); err == nil {
		return img
	}
	tile := image.NewRGBA(image.Rect(0, 0, 16, 16))
	draw.Draw(tile, tile.Bounds(), image.NewUniform(color.RGBA{0xf5, 0xf5, 0xf5, 0xff}), image.Point{}, draw.Src)
	return tile
}

// open reads src from a data URI, over http(s), or from a /static/ path. A relative
// path goes to BaseURL first when one is set, since the images were written by that
// service, and then to StaticDir. Other schemes and bare filesystem paths are refused.
func (l *Loader) open(ctx context.Context, src string) (io.ReadCloser, error) {
	switch {
	case src == "":
		return nil, errors.New("empty image source")
	case strings.HasPrefix(src, "data:"):
		return decodeDataURI(src)
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		if !l.opt.AllowRemote && !l.sameOrigin(src) {
			return nil, ErrRemoteDisabled
		}
		return l.fetch(ctx, src)
	case !strings.HasPrefix(src, "/") || strings.HasPrefix(src, "//"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, shortSrc(src))
	}

	local := l.opt.StaticDir != "" && strings.HasPrefix(src, l.opt.StaticPrefix)
	if l.opt.BaseURL == "" {
		if !local {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, src)
		}
		return l.openStatic(src)
	}
	rc, err := l.fetchRelative(ctx, src)
	if err == nil || !local {
		return rc, err
	}
	rc, lerr := l.openStatic(src)
	if lerr != nil {
		return nil, err
	}
	return rc, nil
}

func (l *Loader) openStatic(src string) (io.ReadCloser, error) {
	rel := strings.TrimPrefix(src, l.opt.StaticPrefix)
	p := filepath.Join(l.opt.StaticDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(p, filepath.Clean(l.opt.StaticDir)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("image path escapes static dir: %s", src)
	}
	return os.Open(p)
}

func (l *Loader) fetchRelative(ctx context.Context, src string) (io.ReadCloser, error) {
	base, err := url.Parse(l.opt.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	ref, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("image src: %w", err)
	}
	return l.fetch(ctx, base.ResolveReference(ref).String())
}

func (l *Loader) sameOrigin(src string) bool {
	if l.opt.BaseURL == "" {
		return false
	}
	a, err1 := url.Parse(l.opt.BaseURL)
	b, err2 := url.Parse(src)
	return err1 == nil && err2 == nil && a.Scheme == b.Scheme && a.Host == b.Host
}

func (l *Loader) fetch(ctx context.Context, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.opt.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", u, resp.StatusCode)
	}
	return resp.Body, nil
}

func decodeDataURI(src string) (io.ReadCloser, error) {
	comma := strings.IndexByte(src, ',')
	if comma < 0 {
		return nil, errors.New("malformed data uri")
	}
	meta, payload := src[len("data:"):comma], src[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		p, err := url.PathUnescape(payload)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(strings.NewReader(p)), nil
	}
	return io.NopCloser(base64.NewDecoder(base64.StdEncoding, strings.NewReader(payload))), nil
}

func shortSrc(src string) string {
	if strings.HasPrefix(src, "data:") && len(src) > 32 {
		return src[:32] + "..."
	}
	return src
}
