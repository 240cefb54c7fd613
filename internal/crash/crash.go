/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash writes crash reports for panics and hands them to telemetry.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/multierr"

	applog "instory/internal/log"
	"instory/internal/telemetry"
	"instory/internal/version"
)

const sentSuffix = ".sent"

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// uploader receives finished reports.
var uploader = func(report []byte) { telemetry.UploadCrash(report) }

// Dir returns the default report directory, falling back to the temp dir.
func Dir() string {
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "instory", "crash")
	}
	return os.TempDir()
}

// Recover captures a panic, logs it with a stacktrace, writes a report
// into dir and exits with code 2.
//
// Usage: defer crash.Recover(dir)
func Recover(dir string) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, err := Report(dir, r, stack)
		if err != nil {
			l.Error("crash report failed", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		exitFn(2)
	}
}

// Report writes a crash report for panicVal into dir and offers it for
// upload. It returns the report path.
func Report(dir string, panicVal any, stack []byte) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("crash dir: %w", err)
	}
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("crash-%s-%d.log", now.Format("20060102-150405"), now.Nanosecond()))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "InStory Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", now.Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, fmt.Errorf("create report: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, multierr.Append(fmt.Errorf("write report: %w", err), f.Close())
	}
	if err := multierr.Append(f.Sync(), f.Close()); err != nil {
		return path, fmt.Errorf("close report: %w", err)
	}
	uploader(buf.Bytes())
	return path, nil
}

// UploadPending offers reports a previous run left in dir to c and marks
// them as sent. It returns how many were offered.
func UploadPending(dir string, c *telemetry.Client) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "crash-*.log"))
	if err != nil {
		return 0, err
	}
	var errs error
	n := 0
	for _, p := range matches {
		data, err := os.ReadFile(p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		c.UploadCrash(data)
		n++
		if err := os.Rename(p, p+sentSuffix); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return n, errs
}

// PanicReporter returns a hook for recovered server panics that writes a
// report into dir without exiting.
func PanicReporter(dir string) func(any, []byte) {
	return func(v any, stack []byte) {
		l := applog.WithComponent("crash")
		p, err := Report(dir, v, stack)
		if err != nil {
			l.Error("crash report failed", slog.Any("err", err))
			return
		}
		l.Warn("handler panic reported", slog.String("path", p), slog.String("panic", strings.TrimSpace(fmt.Sprint(v))))
	}
}
