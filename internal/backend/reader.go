/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"instory/internal/audio"
	"instory/internal/domain"
	"instory/internal/reader"
	"instory/internal/storage"
	"instory/internal/vector"
)

var errSessionNotFound = errors.New("reading session not found")

func (s *Server) routeReader(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/read/{storyID}", s.handleBundle)
	mux.HandleFunc("POST /api/read/{storyID}/sessions", s.handleStartSession)
	mux.HandleFunc("GET /api/read/sessions/{sid}", s.handleSessionState)
	mux.HandleFunc("POST /api/read/sessions/{sid}/{action}", s.handleSessionAction)
	mux.HandleFunc("DELETE /api/read/sessions/{sid}", s.handleEndSession)
}

// Bundle is everything a client needs to read a story offline.
type Bundle struct {
	*domain.StoryGraph
	// ClipPaths maps panel ids to their CSS clip-path.
	ClipPaths     map[string]string `json:"clip_paths"`
	LanguageNames []languageView    `json:"language_names"`
	Revision      string            `json:"revision,omitempty"`
}

// readable returns the graph readers see: the newest published revision,
// or the live rows of a story published without one.
func (s *Server) readable(ctx context.Context, storyID string) (*Bundle, error) {
	if v, ok := s.bundles.Get(storyID); ok {
		return v.(*Bundle), nil
	}
	st, err := s.repo.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !st.IsPublished {
		return nil, fmt.Errorf("story %s is not published: %w", storyID, storage.ErrNotFound)
	}
	b := &Bundle{}
	rev, err := s.repo.LatestRevision(ctx, storyID)
	switch {
	case err == nil && rev.Graph != nil:
		b.StoryGraph, b.Revision = rev.Graph, rev.ID
		// title and cover edits show without republishing
		b.Story = st
	case err == nil || errors.Is(err, storage.ErrNotFound):
		if b.StoryGraph, err = s.repo.LoadStoryGraph(ctx, storyID); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	b.ClipPaths = make(map[string]string, len(b.Panels))
	for _, p := range b.Panels {
		b.ClipPaths[p.ID] = vector.ClipPath(p)
	}
	b.LanguageNames = languageViews(b.StoryGraph.Languages)
	s.bundles.SetDefault(storyID, b)
	return b, nil
}

// GET /api/read/{storyID} is public for published stories.
func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	b, err := s.readable(r.Context(), r.PathValue("storyID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, b)
}

// readingSession is one reader's server-side session with its audio.
type readingSession struct {
	mu       sync.Mutex
	id       string
	storyID  string
	ctrl     *reader.Controller
	audio    *audio.Manager
	viewport vector.Size
	lastUsed time.Time
}

// SessionView is the response of every session call.
type SessionView struct {
	ID               string                `json:"id"`
	Action           reader.Action         `json:"action,omitempty"`
	Snapshot         reader.Snapshot       `json:"snapshot"`
	Audio            []audio.TrackState    `json:"audio"`
	History          []reader.HistoryEntry `json:"history"`
	Fullscreen       bool                  `json:"fullscreen"`
	LanguageMenuOpen bool                  `json:"language_menu_open"`
	Muted            bool                  `json:"muted"`
	ExitRequested    bool                  `json:"exit_requested"`
	Languages        []languageView        `json:"languages"`
}

func (rs *readingSession) view(padding float64, action reader.Action) SessionView {
	c := rs.ctrl
	return SessionView{
		ID:               rs.id,
		Action:           action,
		Snapshot:         c.Session.Snapshot(c.Language, rs.viewport, padding),
		Audio:            rs.audio.States(),
		History:          c.Session.History(),
		Fullscreen:       c.Fullscreen,
		LanguageMenuOpen: c.LanguageMenuOpen,
		Muted:            c.Muted,
		ExitRequested:    c.ExitRequested,
		Languages:        languageViews(c.Session.Graph().Languages),
	}
}

type sessionStore struct {
	mu  sync.Mutex
	m   map[string]*readingSession
	ttl time.Duration
	now func() time.Time
}

func newSessionStore(ttl time.Duration, now func() time.Time) *sessionStore {
	return &sessionStore{m: map[string]*readingSession{}, ttl: ttl, now: now}
}

func (st *sessionStore) add(rs *readingSession) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.expireLocked()
	st.m[rs.id] = rs
}

func (st *sessionStore) get(id string) (*readingSession, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.expireLocked()
	rs, ok := st.m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errSessionNotFound, id)
	}
	return rs, nil
}

func (st *sessionStore) remove(id string) bool {
	st.mu.Lock()
	rs, ok := st.m[id]
	delete(st.m, id)
	st.mu.Unlock()
	if ok {
		rs.audio.Close()
	}
	return ok
}

func (st *sessionStore) expireLocked() {
	cutoff := st.now().Add(-st.ttl)
	for id, rs := range st.m {
		rs.mu.Lock()
		idle := rs.lastUsed.Before(cutoff)
		rs.mu.Unlock()
		if idle {
			delete(st.m, id)
			rs.audio.Close()
		}
	}
}

func (st *sessionStore) closeAll() {
	st.mu.Lock()
	all := st.m
	st.m = map[string]*readingSession{}
	st.mu.Unlock()
	for _, rs := range all {
		rs.audio.Close()
	}
}

func (st *sessionStore) len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.m)
}

// POST /api/read/{storyID}/sessions with optional
// { "mode": "focus", "language": "de", "viewport": { "w": 1280, "h": 800 } }.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Mode     reader.Mode `json:"mode"`
		Language string      `json:"language"`
		Viewport vector.Size `json:"viewport"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	b, err := s.readable(r.Context(), r.PathValue("storyID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if in.Mode == "" {
		in.Mode = s.cfg.DefaultMode
	}
	sess, err := reader.NewSession(b.StoryGraph, in.Mode)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rs := &readingSession{
		id:       uuid.NewString(),
		storyID:  b.Story.ID,
		viewport: in.Viewport,
		lastUsed: s.now(),
	}
	if rs.viewport.W <= 0 || rs.viewport.H <= 0 {
		rs.viewport = s.cfg.Viewport
	}
	rs.audio = audio.NewManager(b.Audio, audio.NewStatePlayer,
		audio.WithLogger(s.log.With(slog.String("session", rs.id))))
	rs.ctrl = reader.NewController(sess, b.DefaultLanguage(), rs.audio)
	rs.audio.Update(sess.Scene().ID, sess.CurrentPanel().ID)
	if in.Language != "" {
		if err := rs.ctrl.SetLanguage(in.Language); err != nil {
			rs.audio.Close()
			s.fail(w, r, err)
			return
		}
	}
	storyID := rs.storyID
	if s.cfg.OnReaderEvent != nil {
		rs.ctrl.OnEvent = func(ev reader.Event) { s.cfg.OnReaderEvent(storyID, ev) }
		s.cfg.OnReaderEvent(storyID, reader.Event{Kind: reader.EventRestarted, SceneID: sess.Scene().ID})
	}
	s.reads.add(rs)
	s.log.InfoContext(r.Context(), "reading session started", slog.String("session", rs.id), slog.String("story_id", storyID))
	writeJSON(w, http.StatusCreated, rs.view(s.cfg.FocusPadding, reader.ActionNone))
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	rs, err := s.reads.get(r.PathValue("sid"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.lastUsed = s.now()
	writeJSON(w, http.StatusOK, rs.view(s.cfg.FocusPadding, reader.ActionNone))
}

// sessionInput is the union of the action bodies.
type sessionInput struct {
	ChoiceID string      `json:"choice_id"`
	Mode     reader.Mode `json:"mode"`
	Key      string      `json:"key"`
	Language string      `json:"language"`
	Muted    *bool       `json:"muted"`
	Volume   *float64    `json:"volume"`
	Viewport vector.Size `json:"viewport"`
}

// POST /api/read/sessions/{sid}/{action} where action is one of next,
// choose, restart, mode, key, language, mute, volume or viewport.
func (s *Server) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	rs, err := s.reads.get(r.PathValue("sid"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var in sessionInput
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.lastUsed = s.now()
	c := rs.ctrl
	action := reader.ActionNone
	switch r.PathValue("action") {
	case "next":
		action, err = reader.ActionNext, c.Next()
	case "choose":
		if in.ChoiceID == "" {
			err = badRequestf("choice_id is required")
			break
		}
		err = c.Choose(in.ChoiceID)
	case "restart":
		err = c.Restart()
	case "mode":
		if in.Mode == "" {
			c.Session.ToggleMode()
			action = reader.ActionToggleMode
			break
		}
		err = c.Session.SetMode(in.Mode)
	case "key":
		action, err = c.HandleKey(in.Key)
	case "language":
		err = c.SetLanguage(in.Language)
	case "mute":
		muted := !c.Muted
		if in.Muted != nil {
			muted = *in.Muted
		}
		c.SetMuted(muted)
	case "volume":
		if in.Volume == nil {
			err = badRequestf("volume is required")
			break
		}
		rs.audio.SetMaster(*in.Volume)
	case "viewport":
		if in.Viewport.W <= 0 || in.Viewport.H <= 0 {
			err = badRequestf("viewport needs a positive size")
			break
		}
		rs.viewport = in.Viewport
	default:
		err = badRequestf("unknown action %q", r.PathValue("action"))
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs.view(s.cfg.FocusPadding, action))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if !s.reads.remove(r.PathValue("sid")) {
		s.fail(w, r, fmt.Errorf("%w: %s", errSessionNotFound, r.PathValue("sid")))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
