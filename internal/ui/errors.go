/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"errors"

	"comicstrip/internal/client"
	"comicstrip/internal/export"
	"comicstrip/internal/session"
)

// User-facing messages.
const (
	MsgEmptyIdea     = "Please enter an idea for your comic strip."
	MsgEmptyChoice   = "Please enter what you want to happen next."
	MsgNoNewPanels   = "No new panels were generated"
	MsgExportFailed  = "There was an error downloading your comic. Please try again."
	MsgBusy          = "A request is already running. Please wait."
	MsgGenerateError = client.DefaultGenerateError
	MsgContinueError = client.DefaultContinueError
)

// ErrValidation marks input rejected before any request was made.
var ErrValidation = errors.New("invalid input")

// ErrExport marks a failed download; the comic stays on screen.
var ErrExport = errors.New("export failed")

// Kind is the error class that decides how a failure is shown.
type Kind int

const (
	KindNone Kind = iota
	// KindValidation: inline message, nothing changes.
	KindValidation
	// KindService: error view, session unchanged.
	KindService
	// KindEmptyResult: a continuation without panels, shown like a service failure.
	KindEmptyResult
	// KindExport: alert, comic stays.
	KindExport
	// KindBusy: another request is running; ignored by the view.
	KindBusy
	// KindDiscarded: the session was reset while the request ran.
	KindDiscarded
)

// Error is what the controller returns; Message is ready for display.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrExport:
		return e.Kind == KindExport
	}
	return false
}

// Classify maps an error from the session, client, generator or exporter to a Kind.
func Classify(err error) Kind {
	var ue *Error
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &ue):
		return ue.Kind
	case errors.Is(err, session.ErrEmptyIdea), errors.Is(err, session.ErrEmptyChoice):
		return KindValidation
	case errors.Is(err, session.ErrBusy):
		return KindBusy
	case errors.Is(err, session.ErrDiscarded):
		return KindDiscarded
	case errors.Is(err, session.ErrNoNewPanels):
		return KindEmptyResult
	case errors.Is(err, export.ErrNoPanels):
		return KindExport
	default:
		return KindService
	}
}

// serviceMessage picks the text for a failed generate/continue: the service's own
// message when it gave one, the error text for in-process failures, def otherwise.
func serviceMessage(err error, def string) string {
	var se *client.ServiceError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return def
}
