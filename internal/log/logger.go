/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log sets up the slog logger shared by the server and the CLI.
// Console output is a compact one-line format or JSON; an optional JSON file
// is rotated by lumberjack. Records logged with a context created by
// ContextWith carry that context's attrs (request, story, session ids).
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	lj "gopkg.in/natefinch/lumberjack.v2"

	"instory/internal/version"
)

// Options controls Init. FromEnv reads them from
// INSTORY_LOG_LEVEL (debug|info|warn|error), INSTORY_LOG_FORMAT (console|json),
// INSTORY_LOG_FILE and INSTORY_LOG_SOURCE.
type Options struct {
	Level     string
	Format    string // console or json
	AddSource bool
	// File enables a rotated JSON log next to the console output.
	File       string
	MaxSizeMB  int // default 10
	MaxBackups int // default 3
	// Output receives console records; stderr when nil.
	Output io.Writer
}

var (
	mu     sync.RWMutex
	logger *slog.Logger
	level  = new(slog.LevelVar)
	file   io.Closer
)

// L returns the application logger, initializing it from the environment
// on first use.
func L() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(FromEnv())
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the application logger and slog's default. A file opened by
// a previous Init is closed.
func Init(opts Options) {
	level.Set(parseLevel(opts.Level))
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}

	var console slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		console = slog.NewJSONHandler(out, hopts)
	} else {
		console = &lineHandler{mu: new(sync.Mutex), w: out, source: opts.AddSource}
	}
	handlers := []slog.Handler{console}

	var rotated *lj.Logger
	if path := strings.TrimSpace(opts.File); path != "" {
		rotated = &lj.Logger{
			Filename:   path,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     28,
			Compress:   true,
		}
		handlers = append(handlers, slog.NewJSONHandler(rotated, hopts))
	}

	var h slog.Handler = fanout(handlers)
	if len(handlers) == 1 {
		h = handlers[0]
	}
	l := slog.New(&ctxHandler{next: h}).With(
		slog.String("app", "instory"),
		slog.String("ver", version.Version),
	)

	mu.Lock()
	prev := file
	logger = l
	file = nil
	if rotated != nil {
		file = rotated
	}
	mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	slog.SetDefault(l)
}

// SetLevel changes the level of the current logger without rebuilding it.
func SetLevel(s string) { level.Set(parseLevel(s)) }

// Close closes the rotated log file, if any.
func Close() error {
	mu.Lock()
	f := file
	file = nil
	mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

// FromEnv builds Options from INSTORY_LOG_* variables.
func FromEnv() Options {
	src, _ := strconv.ParseBool(getenv("INSTORY_LOG_SOURCE", "false"))
	return Options{
		Level:     getenv("INSTORY_LOG_LEVEL", "info"),
		Format:    getenv("INSTORY_LOG_FORMAT", "console"),
		AddSource: src,
		File:      os.Getenv("INSTORY_LOG_FILE"),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// WithComponent returns a logger tagged with component=name.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation tags l with op=op.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var err error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			err = multierr.Append(err, h.Handle(ctx, r.Clone()))
		}
	}
	return err
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

type ctxKey struct{}

// ContextWith returns a copy of ctx whose log records also carry attrs.
// Attrs accumulate across calls.
func ContextWith(ctx context.Context, attrs ...slog.Attr) context.Context {
	prev, _ := ctx.Value(ctxKey{}).([]slog.Attr)
	all := append(append(make([]slog.Attr, 0, len(prev)+len(attrs)), prev...), attrs...)
	return context.WithValue(ctx, ctxKey{}, all)
}

// ctxHandler adds the attrs stored by ContextWith.
type ctxHandler struct{ next slog.Handler }

func (h *ctxHandler) Enabled(ctx context.Context, l slog.Level) bool { return h.next.Enabled(ctx, l) }

func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if attrs, _ := ctx.Value(ctxKey{}).([]slog.Attr); len(attrs) > 0 {
			r = r.Clone()
			r.AddAttrs(attrs...)
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{next: h.next.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{next: h.next.WithGroup(name)}
}

// lineHandler writes "15:04:05.000 INF msg key=value ..." lines. The level
// comes from the package LevelVar unless minLevel is set.
type lineHandler struct {
	mu       *sync.Mutex
	w        io.Writer
	source   bool
	minLevel slog.Leveler
	prefix   string // dotted group path
	attrs    string // preformatted attrs from WithAttrs
}

func (h *lineHandler) Enabled(_ context.Context, l slog.Level) bool {
	lv := slog.Leveler(level)
	if h.minLevel != nil {
		lv = h.minLevel
	}
	return l >= lv.Level()
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(levelTag(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	if h.source {
		if r.PC != 0 {
			f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
			b.WriteString(" src=")
			b.WriteString(f.File)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(f.Line))
		}
	}
	b.WriteByte('\n')
	if h.mu != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
	}
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	for _, a := range attrs {
		writeAttr(&b, h.prefix, a)
	}
	c := *h
	c.attrs += b.String()
	return &c
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix += name + "."
	return &c
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, g := range a.Value.Group() {
			writeAttr(b, p, g)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(formatValue(a.Value))
}

func levelTag(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DBG"
	case l < slog.LevelWarn:
		return "INF"
	case l < slog.LevelError:
		return "WRN"
	}
	return "ERR"
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	}
	return v.String()
}
