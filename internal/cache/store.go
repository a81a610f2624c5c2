/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package cache holds export artifacts between the web UI's download action and the
// browser fetching /download/{token}.
package cache

import (
	"context"
	"errors"
	"time"

	"comicstrip/internal/export"

	"github.com/google/uuid"
)

// DefaultTTL bounds how long a prepared download stays fetchable.
const DefaultTTL = 10 * time.Minute

// ErrNotFound is returned for unknown or expired tokens.
var ErrNotFound = errors.New("artifact not found or expired")

// ArtifactStore keeps artifacts under opaque tokens.
type ArtifactStore interface {
	Put(ctx context.Context, a export.Artifact) (string, error)
	Get(ctx context.Context, token string) (export.Artifact, error)
	Close() error
}

func newToken() string { return uuid.NewString() }

func validToken(token string) bool {
	_, err := uuid.Parse(token)
	return err == nil
}
