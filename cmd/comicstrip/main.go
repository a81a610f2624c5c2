/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"comicstrip/internal/config"
	"comicstrip/internal/crash"
	applog "comicstrip/internal/log"
	"comicstrip/internal/session"
	"comicstrip/internal/telemetry"
	"comicstrip/internal/version"
)

// sessionRef points the crash handler at whichever session the command is using.
type sessionRef struct {
	mu sync.Mutex
	s  *session.Session
}

func (r *sessionRef) set(s *session.Session) {
	r.mu.Lock()
	r.s = s
	r.mu.Unlock()
}

func (r *sessionRef) get() *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}

func (r *sessionRef) ID() string {
	if s := r.get(); s != nil {
		return s.ID()
	}
	return ""
}

func (r *sessionRef) Len() int {
	if s := r.get(); s != nil {
		return s.Len()
	}
	return 0
}

func (r *sessionRef) Transcript() string {
	if s := r.get(); s != nil {
		return s.Transcript()
	}
	return ""
}

// env is what every command needs after startup.
type env struct {
	cfg    config.AppConfig
	apiKey string
	active *sessionRef
}

func main() {
	applog.Init(applog.FromEnv())
	e := &env{active: &sessionRef{}}
	defer crash.Recover(e.active)

	if err := newRootCmd(e).Execute(); err != nil {
		applog.WithComponent("cli").Debug("command failed", slog.Any("err", err))
		telemetry.Default().Close()
		os.Exit(1)
	}
	telemetry.Default().Close()
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:          "comicstrip",
		Short:        "AI comic strip generator",
		Long:         "comicstrip turns a one-line idea into an illustrated comic strip, continues the story on request and exports it as PNG, PDF or CBZ.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, key, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			e.cfg, e.apiKey = cfg, key
			applog.Init(applog.Options{
				Level:     cfg.Logging.Level,
				Format:    cfg.Logging.Format,
				AddSource: cfg.Logging.Source,
				File:      cfg.Logging.File,
			})
			telemetry.Configure(cfg.General.TelemetryOptIn)
			crash.ReportDir = filepath.Join(cfg.StorageDir(), "crash")
			applog.WithComponent("cli").Debug("start", slog.String("cmd", cmd.Name()))
			return nil
		},
	}
	root.AddCommand(newServeCmd(e), newMakeCmd(e), newConfigCmd(e), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// No config needed.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "comicstrip", version.String())
		},
	}
}
