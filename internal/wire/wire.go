/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package wire holds the JSON schemas of the generation endpoints and validates
// payloads against them. Both the HTTP client and the server use it.
package wire

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Kind names a payload schema.
type Kind string

const (
	GenerateRequest  Kind = "generate_request"
	GenerateResponse Kind = "generate_response"
	ContinueRequest  Kind = "continue_request"
	ContinueResponse Kind = "continue_response"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	compileOnce sync.Once
	compiled    map[Kind]*gojsonschema.Schema
	compileErr  error
)

func schemas() (map[Kind]*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = map[Kind]*gojsonschema.Schema{}
		for _, k := range []Kind{GenerateRequest, GenerateResponse, ContinueRequest, ContinueResponse} {
			raw, err := schemaFS.ReadFile("schemas/" + string(k) + ".json")
			if err != nil {
				compileErr = fmt.Errorf("read schema %s: %w", k, err)
				return
			}
			s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", k, err)
				return
			}
			compiled[k] = s
		}
	})
	return compiled, compileErr
}

// ValidationError lists the schema violations of a payload.
type ValidationError struct {
	Kind     Kind
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Kind, strings.Join(e.Problems, "; "))
}

// Validate checks body against the schema for k.
func Validate(k Kind, body []byte) error {
	all, err := schemas()
	if err != nil {
		return err
	}
	s, ok := all[k]
	if !ok {
		return fmt.Errorf("unknown schema %q", k)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		// not JSON at all
		return &ValidationError{Kind: k, Problems: []string{err.Error()}}
	}
	if res.Valid() {
		return nil
	}
	ve := &ValidationError{Kind: k}
	for _, re := range res.Errors() {
		ve.Problems = append(ve.Problems, re.String())
	}
	return ve
}
