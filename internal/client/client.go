/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package client talks to the comic generation service over its two JSON endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"comicstrip/internal/domain"
	applog "comicstrip/internal/log"
	"comicstrip/internal/wire"
)

// Messages shown when the service gives no reason of its own.
const (
	DefaultGenerateError = "Failed to generate comic. Please try again."
	DefaultContinueError = "Failed to continue the comic. Please try again."
)

// ErrService marks any failure of the generation service: success=false, a transport
// error, a non-2xx status or a malformed body.
var ErrService = errors.New("generation service failure")

// ServiceError carries the user-facing message of a service failure.
type ServiceError struct {
	Message string
	Status  int
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Is(target error) bool { return target == ErrService }

// Client calls POST /generate-comic and POST /continue-comic.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
	maxBody int64
}

// NewClient creates a new client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: timeout},
		maxBody: 10 << 20,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

func (c *Client) postJSON(ctx context.Context, path string, reqBody any, kind wire.Kind) ([]byte, int, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return nil, 0, err
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read %s: %w", u.Path, err)
	}
	if err := wire.Validate(kind, body); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, resp.StatusCode, fmt.Errorf("server %s %s: %s", http.MethodPost, u.Path, resp.Status)
		}
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) fail(op, def string, status int, err error) error {
	applog.WithOperation(applog.WithComponent("client"), op).Warn("service call failed",
		slog.Int("status", status), slog.Any("err", err))
	return &ServiceError{Message: def, Status: status, Err: err}
}

func (c *Client) refused(op, msg, def string, status int) error {
	if msg == "" {
		msg = def
	}
	applog.WithOperation(applog.WithComponent("client"), op).Warn("service reported failure",
		slog.Int("status", status), slog.String("error", msg))
	return &ServiceError{Message: msg, Status: status}
}

// Generate asks the service for the first panels of a comic.
func (c *Client) Generate(ctx context.Context, idea string) ([]domain.Panel, error) {
	body, status, err := c.postJSON(ctx, "/generate-comic", domain.GenerateRequest{InitialIdea: idea}, wire.GenerateResponse)
	if err != nil {
		return nil, c.fail("generate", DefaultGenerateError, status, err)
	}
	var resp domain.GenerateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.fail("generate", DefaultGenerateError, status, err)
	}
	if !resp.Success {
		return nil, c.refused("generate", resp.Error, "Failed to generate comic", status)
	}
	return resp.Panels, nil
}

// Continue asks the service for the next panels given the story so far.
// An empty batch is returned as-is; the session decides what that means.
func (c *Client) Continue(ctx context.Context, story, choice string) ([]domain.Panel, error) {
	req := domain.ContinueRequest{CurrentStory: story, UserChoice: choice}
	body, status, err := c.postJSON(ctx, "/continue-comic", req, wire.ContinueResponse)
	if err != nil {
		return nil, c.fail("continue", DefaultContinueError, status, err)
	}
	var resp domain.ContinueResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.fail("continue", DefaultContinueError, status, err)
	}
	if !resp.Success {
		return nil, c.refused("continue", resp.Error, "Failed to continue comic", status)
	}
	return resp.NewPanels, nil
}
