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
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

// Artifact is an exported file ready to be delivered.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// PNGArtifact wraps PNG bytes under the default download name.
func PNGArtifact(data []byte) Artifact {
	return Artifact{Filename: DefaultFilename, ContentType: "image/png", Data: data}
}

// EncodePNG encodes img with the default compression.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Deliver writes a as a file download.
func Deliver(w http.ResponseWriter, a Artifact) error {
	name := a.Filename
	if name == "" {
		name = DefaultFilename
	}
	ct := a.ContentType
	if ct == "" {
		ct = http.DetectContentType(a.Data)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(name))
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(a.Data)
	return err
}

// WriteFile stores a under dir using its filename and returns the path written.
func WriteFile(dir string, a Artifact) (string, error) {
	name := a.Filename
	if name == "" {
		name = DefaultFilename
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure out dir: %w", err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, a.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return p, nil
}
