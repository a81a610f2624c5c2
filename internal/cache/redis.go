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
	"errors"
	"fmt"
	"time"

	"comicstrip/internal/export"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares artifacts between server replicas.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type Option func(*RedisStore)

// WithTTL sets the artifact expiration.
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore connects to addr.
func NewRedisStore(addr, password string, db int, opts ...Option) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb, opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, opts ...Option) *RedisStore {
	s := &RedisStore{client: client, prefix: "comicstrip:artifact:", ttl: DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(token string) string { return s.prefix + token }

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Put(ctx context.Context, a export.Artifact) (string, error) {
	tok := newToken()
	k := s.key(tok)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, map[string]any{
		"filename":     a.Filename,
		"content_type": a.ContentType,
		"data":         a.Data,
	})
	pipe.Expire(ctx, k, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store artifact in redis: %w", err)
	}
	return tok, nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (export.Artifact, error) {
	if !validToken(token) {
		return export.Artifact{}, ErrNotFound
	}
	vals, err := s.client.HGetAll(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return export.Artifact{}, ErrNotFound
		}
		return export.Artifact{}, fmt.Errorf("get artifact from redis: %w", err)
	}
	data, ok := vals["data"]
	if !ok {
		return export.Artifact{}, ErrNotFound
	}
	return export.Artifact{
		Filename:    vals["filename"],
		ContentType: vals["content_type"],
		Data:        []byte(data),
	}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
