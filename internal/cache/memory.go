/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cache

import (
	"context"
	"time"

	"comicstrip/internal/export"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is the in-process ArtifactStore used by a single server.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore creates a store whose entries expire after ttl (DefaultTTL when <= 0).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{c: gocache.New(ttl, ttl/2)}
}

func (m *MemoryStore) Put(_ context.Context, a export.Artifact) (string, error) {
	tok := newToken()
	m.c.SetDefault(tok, a)
	return tok, nil
}

func (m *MemoryStore) Get(_ context.Context, token string) (export.Artifact, error) {
	if !validToken(token) {
		return export.Artifact{}, ErrNotFound
	}
	v, ok := m.c.Get(token)
	if !ok {
		return export.Artifact{}, ErrNotFound
	}
	return v.(export.Artifact), nil
}

// Len reports the number of live entries.
func (m *MemoryStore) Len() int { return m.c.ItemCount() }

func (m *MemoryStore) Close() error {
	m.c.Flush()
	return nil
}
