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
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"instory/internal/backend"
	"instory/internal/crash"
	"instory/internal/reader"
	"instory/internal/telemetry"
	"instory/internal/vector"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authoring and reading API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			repo, files, err := a.openStores(ctx)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, repo.Close()) }()

			sc, rc := a.cfg.Server, a.cfg.Reader
			if addr != "" {
				sc.Addr = addr
			}
			if sc.AuthSecret == "" {
				a.log.Warn("no auth secret configured; using the development secret")
			}
			fonts, err := a.fonts(nil)
			if err != nil {
				return err
			}
			srv := backend.New(backend.Config{
				Addr:          sc.Addr,
				AuthSecret:    sc.AuthSecret,
				TokenTTL:      sc.TokenTTL,
				BundleTTL:     sc.BundleTTL,
				SessionTTL:    sc.SessionTTL,
				KeepRevisions: sc.KeepRevisions,
				Viewport:      vector.Size{W: rc.ViewportWidth, H: rc.ViewportHeight},
				FocusPadding:  rc.FocusPadding,
				DefaultMode:   reader.Mode(rc.DefaultMode),
				OnReaderEvent: telemetry.Default().ReaderObserver(),
				OnPanic:       crash.PanicReporter(crash.Dir()),
				Fonts:         fonts,
			}, repo, files)
			a.log.Info("serving", slog.String("addr", sc.Addr), slog.String("dialect", sc.DBDialect))
			fmt.Fprintf(cmd.OutOrStdout(), "InStory listening on %s\n", sc.Addr)
			start := time.Now()
			err = srv.ListenAndServe(ctx)
			a.log.Info("server stopped", slog.Duration("uptime", time.Since(start)))
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, _, err := a.openStores(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", a.cfg.Server.DBDialect)
			return repo.Close()
		},
	}
}
