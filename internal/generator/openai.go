/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Defaults match the hosted OpenAI API.
const (
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultTextModel    = "gpt-4"
	DefaultImageModel   = "dall-e-3"
	DefaultImageSize    = "1024x1024"
	DefaultImageQuality = "standard"
)

// OpenAIOptions configures the OpenAI-compatible Writer and Illustrator.
type OpenAIOptions struct {
	BaseURL      string
	APIKey       string
	TextModel    string
	ImageModel   string
	ImageSize    string
	ImageQuality string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

func (o OpenAIOptions) withDefaults() OpenAIOptions {
	if strings.TrimSpace(o.BaseURL) == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.TextModel == "" {
		o.TextModel = DefaultTextModel
	}
	if o.ImageModel == "" {
		o.ImageModel = DefaultImageModel
	}
	if o.ImageSize == "" {
		o.ImageSize = DefaultImageSize
	}
	if o.ImageQuality == "" {
		o.ImageQuality = DefaultImageQuality
	}
	if o.HTTPClient == nil {
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		o.HTTPClient = &http.Client{Timeout: timeout}
	}
	return o
}

// OpenAI implements Writer with chat completions and Illustrator with image generation.
type OpenAI struct {
	opt OpenAIOptions
}

// NewOpenAI returns a client for an OpenAI-compatible endpoint.
func NewOpenAI(opt OpenAIOptions) *OpenAI {
	return &OpenAI{opt: opt.withDefaults()}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type imageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
	N       int    `json:"n"`
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a system and a user message and returns the first choice's content.
func (c *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model: c.opt.TextModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Illustrate requests one image for prompt.
func (c *OpenAI) Illustrate(ctx context.Context, prompt string) (Image, error) {
	req := imageRequest{
		Model:   c.opt.ImageModel,
		Prompt:  prompt,
		Size:    c.opt.ImageSize,
		Quality: c.opt.ImageQuality,
		N:       1,
	}
	var resp imageResponse
	if err := c.post(ctx, "/images/generations", req, &resp); err != nil {
		return Image{}, err
	}
	if len(resp.Data) == 0 {
		return Image{}, errors.New("image generation returned no data")
	}
	return Image{URL: resp.Data[0].URL, B64: resp.Data[0].B64JSON}, nil
}

func (c *OpenAI) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opt.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opt.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opt.APIKey)
	}
	resp, err := c.opt.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
			return fmt.Errorf("%s: %s", path, ae.Error.Message)
		}
		return fmt.Errorf("%s: %s", path, resp.Status)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
