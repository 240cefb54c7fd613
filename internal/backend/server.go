/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package backend serves the InStory HTTP API: authoring endpoints behind
// bearer tokens, the public reader bundle, server-side reading sessions and
// uploaded files.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/multierr"

	"instory/internal/blob"
	"instory/internal/editor"
	"instory/internal/flow"
	applog "instory/internal/log"
	"instory/internal/reader"
	"instory/internal/storage"
	"instory/internal/textlayout"
	"instory/internal/undo"
	"instory/internal/vector"
	"instory/internal/version"
)

// Config holds server configuration.
type Config struct {
	Addr       string // http bind address, e.g., ":8080"
	AuthSecret string
	TokenTTL   time.Duration
	// BundleTTL is how long a published reader bundle is cached.
	BundleTTL time.Duration
	// SessionTTL expires idle reading sessions.
	SessionTTL time.Duration
	// Viewport and FocusPadding shape the focus-mode transform of session snapshots.
	Viewport     vector.Size
	FocusPadding float64
	DefaultMode  reader.Mode
	RowTolerance float64
	// KeepRevisions bounds the published revisions kept per story.
	KeepRevisions int
	// PositionDebounce delays flow-editor position writes.
	PositionDebounce time.Duration
	// OnReaderEvent observes navigation of every reading session.
	OnReaderEvent func(storyID string, ev reader.Event)
	// OnPanic receives recovered handler panics with their stack.
	OnPanic func(v any, stack []byte)
	// Fonts measures overlay text in the editor; nil uses the bitmap face.
	Fonts textlayout.Provider
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.AuthSecret == "" {
		c.AuthSecret = "dev-secret-change-me"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.BundleTTL <= 0 {
		c.BundleTTL = 5 * time.Minute
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 2 * time.Hour
	}
	if c.Viewport == (vector.Size{}) {
		c.Viewport = vector.Size{W: 1280, H: 800}
	}
	if c.FocusPadding <= 0 {
		c.FocusPadding = 24
	}
	if c.DefaultMode == "" {
		c.DefaultMode = reader.ModeFocus
	}
	if c.RowTolerance <= 0 {
		c.RowTolerance = vector.DefaultRowTolerance
	}
	if c.KeepRevisions <= 0 {
		c.KeepRevisions = 20
	}
	if c.PositionDebounce <= 0 {
		c.PositionDebounce = flow.DefaultDebounce
	}
}

// Server wires the repository, file store and editing engines to HTTP.
type Server struct {
	cfg     Config
	repo    *storage.Repository
	blobs   *blob.Store
	edit    *editor.Editor
	bundles *cache.Cache
	reads   *sessionStore
	log     *slog.Logger
	now     func() time.Time

	flowMu sync.Mutex
	flows  map[string]*flow.Editor
}

func New(cfg Config, repo *storage.Repository, blobs *blob.Store) *Server {
	cfg.setDefaults()
	s := &Server{
		cfg:     cfg,
		repo:    repo,
		blobs:   blobs,
		bundles: cache.New(cfg.BundleTTL, 2*cfg.BundleTTL),
		log:     applog.WithComponent("backend"),
		now:     time.Now,
		flows:   map[string]*flow.Editor{},
	}
	s.edit = editor.New(repo, undo.Config{MaxBytes: 32 * 1024 * 1024, MaxPerScene: 50, MinInterval: 300 * time.Millisecond},
		editor.WithRowTolerance(cfg.RowTolerance), editor.WithLayouter(textlayout.NewWordWrap(cfg.Fonts)))
	s.reads = newSessionStore(cfg.SessionTTL, s.now)
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.repo.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(version.String()))
	})
	mux.HandleFunc("POST /api/auth/token", s.handleToken)

	s.routeStories(mux)
	s.routeScenes(mux)
	s.routeTexts(mux)
	s.routeFlow(mux)
	s.routeReader(mux)

	mux.HandleFunc("POST /api/uploads/{bucket}", s.withAuth(s.handleUpload))
	if s.blobs != nil {
		mux.Handle("GET "+blob.URLPrefix, s.blobs.Handler())
	}
	return s.recoverer(mux)
}

// recoverer turns a handler panic into a 500 so one bad request does not
// take the server down.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.log.ErrorContext(r.Context(), "handler panic", slog.String("path", r.URL.Path), slog.Any("panic", v))
				if s.cfg.OnPanic != nil {
					s.cfg.OnPanic(v, debug.Stack())
				}
				writeError(w, http.StatusInternalServerError, errors.New("internal error"))
			}
		}()
		ctx := applog.ContextWith(r.Context(), slog.String("method", r.Method), slog.String("path", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and flushes pending editor writes.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("instory server listening", slog.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return multierr.Append(err, s.Close(context.Background()))
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	return multierr.Append(err, s.Close(shutdownCtx))
}

// Close writes pending flow-editor positions and ends all reading sessions.
func (s *Server) Close(ctx context.Context) error {
	s.flowMu.Lock()
	flows := s.flows
	s.flows = map[string]*flow.Editor{}
	s.flowMu.Unlock()
	var err error
	for id, fe := range flows {
		if cerr := fe.Close(ctx); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("flush positions of story %s: %w", id, cerr))
		}
	}
	s.reads.closeAll()
	return err
}

// flowEditor returns the flow editor of a story, creating it on first use.
func (s *Server) flowEditor(storyID string) *flow.Editor {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	if fe, ok := s.flows[storyID]; ok {
		return fe
	}
	fe := flow.NewEditor(s.repo, storyID,
		flow.WithDebounce(s.cfg.PositionDebounce),
		flow.WithErrorHandler(func(err error) {
			s.log.Warn("position write failed", slog.String("story_id", storyID), slog.Any("err", err))
		}))
	s.flows[storyID] = fe
	return fe
}

// changed records an edit of a story: its updated_at moves and its cached
// reader bundle is dropped.
func (s *Server) changed(ctx context.Context, storyID string) {
	s.bundles.Delete(storyID)
	if err := s.repo.Touch(ctx, storyID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.WarnContext(ctx, "touch story failed", slog.String("story_id", storyID), slog.Any("err", err))
	}
}
