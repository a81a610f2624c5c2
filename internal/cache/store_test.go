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
	"testing"
	"time"

	"comicstrip/internal/export"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleArtifact() export.Artifact {
	return export.Artifact{
		Filename:    export.DefaultFilename,
		ContentType: "image/png",
		Data:        []byte{0x89, 'P', 'N', 'G', 0x00, 0xff},
	}
}

func runStoreContract(t *testing.T, s ArtifactStore) {
	t.Helper()
	ctx := context.Background()

	tok, err := s.Put(ctx, sampleArtifact())
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	got, err := s.Get(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, sampleArtifact(), got)

	tok2, err := s.Put(ctx, sampleArtifact())
	require.NoError(t, err)
	assert.NotEqual(t, tok, tok2, "tokens must be unique")

	_, err = s.Get(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreContract(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()
	runStoreContract(t, s)
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStoreExpires(t *testing.T) {
	s := NewMemoryStore(20 * time.Millisecond)
	defer s.Close()
	tok, err := s.Put(context.Background(), sampleArtifact())
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = s.Get(context.Background(), tok)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreContract(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, WithPrefix("test:"))
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))
	runStoreContract(t, s)
}

func TestRedisStoreExpires(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s := NewRedisStore(mr.Addr(), "", 0, WithTTL(time.Minute))
	defer s.Close()

	tok, err := s.Put(context.Background(), sampleArtifact())
	require.NoError(t, err)
	assert.True(t, mr.Exists("comicstrip:artifact:"+tok))
	assert.Equal(t, time.Minute, mr.TTL("comicstrip:artifact:"+tok))

	mr.FastForward(2 * time.Minute)
	_, err = s.Get(context.Background(), tok)
	assert.ErrorIs(t, err, ErrNotFound)
}
