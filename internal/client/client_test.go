/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comicstrip/internal/domain"
)

func serve(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "tok", 5*time.Second)
}

func TestGenerateSuccess(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-comic", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var req domain.GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a cat", req.InitialIdea)
		_, _ = w.Write([]byte(`{"success":true,"panels":[{"scene_description":"S1","dialogue":"Cat: hi","visual_elements":"V1","image":"/static/images/p1.png"},{"scene_description":"S2","dialogue":"","visual_elements":""}]}`))
	})
	panels, err := c.Generate(context.Background(), "a cat")
	require.NoError(t, err)
	require.Len(t, panels, 2)
	assert.Equal(t, "S1", panels[0].SceneDescription)
	assert.Equal(t, "/static/images/p1.png", panels[0].Image)
	assert.False(t, panels[1].HasImage())
}

func TestContinueSendsStoryAndChoice(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/continue-comic", r.URL.Path)
		var req domain.ContinueRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "story so far", req.CurrentStory)
		assert.Equal(t, "the dog arrives", req.UserChoice)
		_, _ = w.Write([]byte(`{"success":true,"new_panels":[{"scene_description":"S3"}]}`))
	})
	panels, err := c.Continue(context.Background(), "story so far", "the dog arrives")
	require.NoError(t, err)
	require.Len(t, panels, 1)
	assert.Equal(t, "S3", panels[0].SceneDescription)
}

func TestServiceRefusalUsesServiceMessage(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"rate limited"}`))
	})
	_, err := c.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrService))
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "rate limited", se.Message)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
}

func TestServiceRefusalDefaultMessage(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	})
	_, err := c.Continue(context.Background(), "s", "c")
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Failed to continue comic", se.Message)
}

func TestMalformedAndTransportFailures(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`)) // panels missing
	})
	_, err := c.Generate(context.Background(), "x")
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, DefaultGenerateError, se.Message)

	c = serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	_, err = c.Continue(context.Background(), "s", "c")
	require.True(t, errors.As(err, &se))
	assert.Equal(t, DefaultContinueError, se.Message)
	assert.Equal(t, http.StatusBadGateway, se.Status)

	dead := NewClient("http://127.0.0.1:1", "", time.Second)
	_, err = dead.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrService)
}

func TestEmptyContinuationIsReturnedAsIs(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"new_panels":[]}`))
	})
	panels, err := c.Continue(context.Background(), "s", "c")
	require.NoError(t, err)
	assert.Empty(t, panels)
}
