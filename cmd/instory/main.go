/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Command instory serves, imports and exports interactive comics.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"instory/internal/blob"
	"instory/internal/config"
	"instory/internal/crash"
	applog "instory/internal/log"
	"instory/internal/storage"
	"instory/internal/telemetry"
	"instory/internal/version"
)

const telemetryFlush = 2 * time.Second

// app carries what every command needs after flags are parsed.
type app struct {
	configPath string
	dsn        string
	dialect    string
	logLevel   string

	resolvedConfig string
	token          string

	cfg config.AppConfig
	out io.Writer
	in  io.Reader
	log *slog.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "instory",
		Short:         "Author, publish and read interactive comics",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(a.out)
	root.SetIn(a.in)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: per-user config.yaml)")
	root.PersistentFlags().StringVar(&a.dsn, "db", "", "database file or URL (overrides server.dsn)")
	root.PersistentFlags().StringVar(&a.dialect, "dialect", "", "database dialect: sqlite or postgres")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newVersionCmd(a),
		newServeCmd(a),
		newMigrateCmd(a),
		newStoriesCmd(a),
		newExportCmd(a),
		newBundleCmd(a),
		newImportCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newConfigCmd(a),
		newReadCmd(a),
	)
	return root
}

// setup loads the configuration and initializes logging and telemetry.
func (a *app) setup(cmd *cobra.Command) error {
	var (
		cfg  config.AppConfig
		path = a.configPath
		err  error
	)
	if path == "" {
		if path, err = config.ConfigPath(); err != nil {
			return err
		}
		cfg, a.token, err = config.Load()
	} else {
		cfg, err = config.LoadFile(path)
		a.token, _ = config.LoadToken()
	}
	if err != nil {
		return err
	}
	a.resolvedConfig = path
	if a.dsn != "" {
		cfg.Server.DSN = a.dsn
	}
	if a.dialect != "" {
		cfg.Server.DBDialect = a.dialect
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	a.cfg = cfg

	applog.Init(applog.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, AddSource: cfg.Logging.Source, File: cfg.Logging.File})
	a.log = applog.WithComponent("cli").With(slog.String("cmd", cmd.Name()))

	tc := telemetry.FromEnv()
	tc.OptIn = tc.OptIn || cfg.General.TelemetryOptIn
	telemetry.SetDefault(telemetry.New(tc))
	if cfg.General.CrashUpload {
		if n, err := crash.UploadPending(crash.Dir(), telemetry.Default()); err != nil {
			a.log.Warn("crash upload failed", slog.Any("err", err))
		} else if n > 0 {
			a.log.Info("crash reports uploaded", slog.Int("count", n))
		}
	}
	return nil
}

// openStores opens the database and the file store of the configured server.
func (a *app) openStores(ctx context.Context) (*storage.Repository, *blob.Store, error) {
	repo, err := storage.Open(ctx, storage.Options{Dialect: storage.Dialect(a.cfg.Server.DBDialect), DSN: a.cfg.Server.DSN})
	if err != nil {
		return nil, nil, err
	}
	opts := []blob.Option{blob.WithRateLimit(a.cfg.Server.UploadsPerSecond, 4)}
	if a.cfg.Server.MaxUploadMB > 0 {
		opts = append(opts, blob.WithMaxBytes(int64(a.cfg.Server.MaxUploadMB)<<20))
	}
	files, err := blob.NewStore(filepath.Clean(a.cfg.Server.FilesDir), a.cfg.Server.PublicURL, opts...)
	if err != nil {
		_ = repo.Close()
		return nil, nil, err
	}
	return repo, files, nil
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}

func main() {
	defer crash.Recover(crash.Dir())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{out: os.Stdout, in: os.Stdin}
	err := newRootCmd(a).ExecuteContext(ctx)
	stop()
	flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlush)
	telemetry.Default().Flush(flushCtx)
	cancel()
	telemetry.Default().Close()
	_ = applog.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
