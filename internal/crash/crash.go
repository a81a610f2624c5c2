/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic in the CLI or server into a crash report that includes
// the strip written so far, so the user's story survives the failure.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "comicstrip/internal/log"
	"comicstrip/internal/telemetry"
	"comicstrip/internal/version"
)

// Session is the part of the comic session a crash report captures.
type Session interface {
	ID() string
	Len() int
	Transcript() string
}

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// ReportDir receives crash reports; empty means os.TempDir().
var ReportDir string

// Recover captures a panic, logs it with the stack, writes a report with the current
// transcript and exits with code 2.
//
// Usage: defer crash.Recover(sess)
func Recover(sess Session) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, err := writeReport(sess, r, stack)
		if err != nil {
			l.Error("write crash report failed", slog.Any("err", err))
		}
		_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
		_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
		exitFn(2)
	}
}

func writeReport(sess Session, panicVal any, stack []byte) (string, error) {
	dir := ReportDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("comicstrip-crash-%s.log", stamp))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "comicstrip crash report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	// The upload carries no story text.
	telemetry.UploadCrash(buf.Bytes())

	if sess != nil {
		_, _ = fmt.Fprintf(&buf, "\nSession: %s (%d panels)\n", sess.ID(), sess.Len())
		if t := sess.Transcript(); t != "" {
			_, _ = fmt.Fprintf(&buf, "\nTranscript:\n%s\n", t)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return path, err
	}
	return path, nil
}
