/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"instory/internal/audio"
	"instory/internal/blob"
	"instory/internal/domain"
	"instory/internal/reader"
	"instory/internal/storage"
	"instory/internal/vector"
)

type testEnv struct {
	srv    *Server
	ts     *httptest.Server
	repo   *storage.Repository
	mu     sync.Mutex
	events []reader.Event
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := storage.Open(ctx, storage.Options{Dialect: storage.SQLite, DSN: filepath.Join(dir, "api.sqlite")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	blobs, err := blob.NewStore(filepath.Join(dir, "files"), "")
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	env := &testEnv{repo: repo}
	env.srv = New(Config{
		AuthSecret:       "test-secret",
		PositionDebounce: 10 * time.Millisecond,
		OnReaderEvent: func(_ string, ev reader.Event) {
			env.mu.Lock()
			env.events = append(env.events, ev)
			env.mu.Unlock()
		},
	}, repo, blobs)
	env.ts = httptest.NewServer(env.srv.Handler())
	t.Cleanup(func() {
		env.ts.Close()
		_ = env.srv.Close(context.Background())
		_ = repo.Close()
	})
	return env
}

func (e *testEnv) token(t *testing.T, subject string) string {
	t.Helper()
	tok, err := NewClient(e.ts.URL, "").IssueToken(context.Background(), subject, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok.Token
}

// call sends a JSON request and decodes a JSON response into out when out is not nil.
func (e *testEnv) call(t *testing.T, token, method, path string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) mustCall(t *testing.T, token, method, path string, body, out any, want int) {
	t.Helper()
	if got := e.call(t, token, method, path, body, out); got != want {
		t.Fatalf("%s %s: status %d, want %d", method, path, got, want)
	}
}

// buildStory creates a published two-scene story: the first scene offers a
// labeled choice leading to the second.
func (e *testEnv) buildStory(t *testing.T, tok string) (domain.Story, domain.Choice) {
	t.Helper()
	var st domain.Story
	e.mustCall(t, tok, "POST", "/api/stories", map[string]any{"title": "The Door"}, &st, http.StatusCreated)
	e.mustCall(t, tok, "POST", "/api/stories/"+st.ID+"/languages",
		map[string]any{"language_code": "en", "is_default": true}, nil, http.StatusCreated)
	e.mustCall(t, tok, "POST", "/api/stories/"+st.ID+"/languages",
		map[string]any{"language_code": "de"}, nil, http.StatusCreated)

	var scenes [2]domain.Scene
	for i := range scenes {
		e.mustCall(t, tok, "POST", "/api/stories/"+st.ID+"/scenes",
			map[string]any{"title": fmt.Sprintf("Scene %d", i+1), "image_width": 1000, "image_height": 800}, &scenes[i], http.StatusCreated)
	}
	for _, sc := range scenes {
		var pv panelView
		e.mustCall(t, tok, "POST", "/api/stories/"+st.ID+"/scenes/"+sc.ID+"/panels", map[string]any{
			"gesture": map[string]any{"tool": vector.ToolRectangle, "points": []vector.Pt{{X: 0, Y: 0}, {X: 400, Y: 300}}},
		}, &pv, http.StatusCreated)
		e.mustCall(t, tok, "POST", "/api/stories/"+st.ID+"/panels/"+pv.ID+"/texts",
			map[string]any{"text": "Hello"}, nil, http.StatusCreated)
	}
	var c domain.Choice
	e.mustCall(t, tok, "POST", "/api/stories/"+st.ID+"/choices", map[string]any{
		"scene_id": scenes[0].ID, "target_scene_id": scenes[1].ID, "text": "Open it",
	}, &c, http.StatusCreated)
	e.mustCall(t, tok, "PATCH", "/api/stories/"+st.ID, map[string]any{"is_published": true}, &st, http.StatusOK)
	return st, c
}

func TestHealthAndVersion(t *testing.T) {
	env := newTestEnv(t)
	for _, p := range []string{"/healthz", "/readyz", "/version"} {
		if got := env.call(t, "", "GET", p, nil, nil); got != http.StatusOK {
			t.Errorf("GET %s = %d", p, got)
		}
	}
}

func TestAuthoringRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	if got := env.call(t, "", "POST", "/api/stories", map[string]any{"title": "x"}, nil); got != http.StatusUnauthorized {
		t.Fatalf("create without token = %d", got)
	}
	if got := env.call(t, "garbage.token", "POST", "/api/stories", map[string]any{"title": "x"}, nil); got != http.StatusUnauthorized {
		t.Fatalf("create with bad token = %d", got)
	}
}

func TestStoriesAreScopedToAuthor(t *testing.T) {
	env := newTestEnv(t)
	ann, bob := env.token(t, "ann"), env.token(t, "bob")
	var st domain.Story
	env.mustCall(t, ann, "POST", "/api/stories", map[string]any{"title": "Mine", "author_id": "bob"}, &st, http.StatusCreated)
	if st.AuthorID != "ann" {
		t.Fatalf("author = %q, want ann", st.AuthorID)
	}
	if got := env.call(t, bob, "GET", "/api/stories/"+st.ID, nil, nil); got != http.StatusNotFound {
		t.Fatalf("foreign story = %d, want 404", got)
	}
	if got := env.call(t, bob, "DELETE", "/api/stories/"+st.ID, nil, nil); got != http.StatusNotFound {
		t.Fatalf("foreign delete = %d, want 404", got)
	}
	var mine []domain.Story
	env.mustCall(t, bob, "GET", "/api/stories", nil, &mine, http.StatusOK)
	if len(mine) != 0 {
		t.Fatalf("bob sees %d stories", len(mine))
	}
	// unpublished stories are not readable
	if got := env.call(t, "", "GET", "/api/read/"+st.ID, nil, nil); got != http.StatusNotFound {
		t.Fatalf("unpublished bundle = %d, want 404", got)
	}
}

func TestPublishAndRead(t *testing.T) {
	env := newTestEnv(t)
	ann := env.token(t, "ann")
	st, choice := env.buildStory(t, ann)
	ctx := context.Background()
	cl := NewClient(env.ts.URL+"/", "")

	pub, err := cl.ListPublished(ctx)
	if err != nil {
		t.Fatalf("list published: %v", err)
	}
	if len(pub) != 1 || pub[0].ID != st.ID {
		t.Fatalf("published = %+v", pub)
	}

	b, err := cl.GetReaderBundle(ctx, st.ID)
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	if b.Revision == "" {
		t.Fatal("bundle is not served from a revision")
	}
	if len(b.Scenes) != 2 || len(b.Panels) != 2 || len(b.ClipPaths) != 2 {
		t.Fatalf("bundle has %d scenes, %d panels, %d clip paths", len(b.Scenes), len(b.Panels), len(b.ClipPaths))
	}
	if b.StoryGraph.DefaultLanguage() != "en" {
		t.Fatalf("default language = %q", b.StoryGraph.DefaultLanguage())
	}

	v, err := cl.StartSession(ctx, st.ID, reader.ModeFocus, "", vector.Size{W: 800, H: 600})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if v.Snapshot.SceneID != b.Scenes[0].ID || v.Snapshot.Language != "en" {
		t.Fatalf("start snapshot = %+v", v.Snapshot)
	}
	if v.Snapshot.Transform == "" {
		t.Fatal("focus mode has no transform")
	}

	v, err = cl.Step(ctx, v.ID, "next", nil)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := []reader.ChoiceView{{ID: choice.ID, Text: "Open it"}}
	if diff := cmp.Diff(want, v.Snapshot.Choices); diff != "" {
		t.Fatalf("choices mismatch (-want +got):\n%s", diff)
	}

	// a second next while choosing is a conflict
	_, err = cl.Step(ctx, v.ID, "next", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("next while choosing: %v", err)
	}

	v, err = cl.Step(ctx, v.ID, "choose", map[string]string{"choice_id": choice.ID})
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if v.Snapshot.SceneID != b.Scenes[1].ID || len(v.History) != 1 {
		t.Fatalf("after choose: scene %s history %d", v.Snapshot.SceneID, len(v.History))
	}
	v, err = cl.Step(ctx, v.ID, "next", nil)
	if err != nil {
		t.Fatalf("next to end: %v", err)
	}
	if !v.Snapshot.Ended {
		t.Fatal("story did not end")
	}

	v, err = cl.Step(ctx, v.ID, "language", map[string]string{"language": "de"})
	if err != nil || v.Snapshot.Language != "de" {
		t.Fatalf("language: %v %q", err, v.Snapshot.Language)
	}
	if _, err = cl.Step(ctx, v.ID, "language", map[string]string{"language": "fr"}); !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("unknown language: %v", err)
	}
	v, err = cl.Step(ctx, v.ID, "key", map[string]string{"key": "f"})
	if err != nil || !v.Fullscreen {
		t.Fatalf("fullscreen key: %v %+v", err, v)
	}
	v, err = cl.Step(ctx, v.ID, "restart", nil)
	if err != nil || v.Snapshot.SceneID != b.Scenes[0].ID || len(v.History) != 0 {
		t.Fatalf("restart: %v %+v", err, v.Snapshot)
	}

	env.mu.Lock()
	kinds := make([]reader.EventKind, len(env.events))
	for i, ev := range env.events {
		kinds[i] = ev.Kind
	}
	env.mu.Unlock()
	wantKinds := []reader.EventKind{reader.EventRestarted, reader.EventShowChoices, reader.EventSceneChanged, reader.EventEnded, reader.EventRestarted}
	if diff := cmp.Diff(wantKinds, kinds); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	if err := cl.EndSession(ctx, v.ID); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if _, err := cl.Step(ctx, v.ID, "next", nil); !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("step after end: %v", err)
	}
}

func TestBundleFollowsRepublish(t *testing.T) {
	env := newTestEnv(t)
	ann := env.token(t, "ann")
	st, _ := env.buildStory(t, ann)

	var before Bundle
	env.mustCall(t, "", "GET", "/api/read/"+st.ID, nil, &before, http.StatusOK)

	var extra domain.Scene
	env.mustCall(t, ann, "POST", "/api/stories/"+st.ID+"/scenes", map[string]any{"title": "Draft"}, &extra, http.StatusCreated)
	var cached Bundle
	env.mustCall(t, "", "GET", "/api/read/"+st.ID, nil, &cached, http.StatusOK)
	if len(cached.Scenes) != 2 {
		t.Fatalf("unpublished edit leaked to readers: %d scenes", len(cached.Scenes))
	}

	env.mustCall(t, ann, "PATCH", "/api/stories/"+st.ID, map[string]any{"is_published": true}, nil, http.StatusOK)
	var after Bundle
	env.mustCall(t, "", "GET", "/api/read/"+st.ID, nil, &after, http.StatusOK)
	if len(after.Scenes) != 3 || after.Revision == before.Revision {
		t.Fatalf("republish: %d scenes, revision %s -> %s", len(after.Scenes), before.Revision, after.Revision)
	}
	var revs []storage.Revision
	env.mustCall(t, ann, "GET", "/api/stories/"+st.ID+"/revisions", nil, &revs, http.StatusOK)
	if len(revs) != 2 {
		t.Fatalf("revisions = %d, want 2", len(revs))
	}
}

func TestPanelUndoRedo(t *testing.T) {
	env := newTestEnv(t)
	ann := env.token(t, "ann")
	var st domain.Story
	env.mustCall(t, ann, "POST", "/api/stories", map[string]any{"title": "Edit"}, &st, http.StatusCreated)
	var sc domain.Scene
	env.mustCall(t, ann, "POST", "/api/stories/"+st.ID+"/scenes", map[string]any{"image_width": 1000, "image_height": 800}, &sc, http.StatusCreated)
	base := "/api/stories/" + st.ID + "/scenes/" + sc.ID
	env.mustCall(t, ann, "POST", base+"/panels", map[string]any{
		"panel": domain.Panel{Shape: domain.ShapeRectangle, X: 10, Y: 10, Width: 100, Height: 100},
	}, nil, http.StatusCreated)

	var h historyView
	env.mustCall(t, ann, "POST", base+"/undo", nil, &h, http.StatusOK)
	if len(h.Panels) != 0 || !h.CanRedo {
		t.Fatalf("after undo: %d panels, can redo %v", len(h.Panels), h.CanRedo)
	}
	env.mustCall(t, ann, "POST", base+"/redo", nil, &h, http.StatusOK)
	if len(h.Panels) != 1 || h.Panels[0].ClipPath == "" {
		t.Fatalf("after redo: %+v", h.Panels)
	}
	if got := env.call(t, ann, "POST", base+"/panels", map[string]any{
		"gesture": map[string]any{"tool": "lasso", "points": []vector.Pt{{X: 0, Y: 0}}},
	}, nil); got != http.StatusBadRequest {
		t.Fatalf("bad gesture = %d", got)
	}
}

func TestDuplicateFlowIsConflict(t *testing.T) {
	env := newTestEnv(t)
	ann := env.token(t, "ann")
	var st domain.Story
	env.mustCall(t, ann, "POST", "/api/stories", map[string]any{"title": "Flow"}, &st, http.StatusCreated)
	var a, b domain.Scene
	env.mustCall(t, ann, "POST", "/api/stories/"+st.ID+"/scenes", map[string]any{}, &a, http.StatusCreated)
	env.mustCall(t, ann, "POST", "/api/stories/"+st.ID+"/scenes", map[string]any{}, &b, http.StatusCreated)
	link := map[string]any{"scene_id": a.ID, "target_scene_id": b.ID}
	env.mustCall(t, ann, "POST", "/api/stories/"+st.ID+"/choices", link, nil, http.StatusCreated)
	if got := env.call(t, ann, "POST", "/api/stories/"+st.ID+"/choices", link, nil); got != http.StatusConflict {
		t.Fatalf("second unconditional flow = %d, want 409", got)
	}
}

func TestUnknownSessionAction(t *testing.T) {
	env := newTestEnv(t)
	ann := env.token(t, "ann")
	st, _ := env.buildStory(t, ann)
	var v SessionView
	env.mustCall(t, "", "POST", "/api/read/"+st.ID+"/sessions", nil, &v, http.StatusCreated)
	if got := env.call(t, "", "POST", "/api/read/sessions/"+v.ID+"/fly", nil, nil); got != http.StatusBadRequest {
		t.Fatalf("unknown action = %d", got)
	}
	if got := env.call(t, "", "POST", "/api/read/"+st.ID+"/sessions", map[string]any{"mode": "scroll"}, nil); got != http.StatusBadRequest {
		t.Fatalf("bad mode = %d", got)
	}
}

func TestSessionsExpire(t *testing.T) {
	now := time.Unix(1000, 0)
	st := newSessionStore(time.Minute, func() time.Time { return now })
	st.add(&readingSession{id: "a", lastUsed: now, audio: audio.NewManager(nil, audio.NewStatePlayer)})
	now = now.Add(30 * time.Second)
	if _, err := st.get("a"); err != nil {
		t.Fatalf("session expired early: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := st.get("a"); !errors.Is(err, errSessionNotFound) {
		t.Fatalf("idle session = %v, want not found", err)
	}
	if st.len() != 0 {
		t.Fatalf("len = %d", st.len())
	}
}

func TestVerifyToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok, err := signToken("s", "ann", now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if sub, err := verifyToken("s", tok, now); err != nil || sub != "ann" {
		t.Fatalf("valid token: %q %v", sub, err)
	}
	if _, err := verifyToken("other", tok, now); !errors.Is(err, errUnauthorized) {
		t.Fatalf("wrong secret: %v", err)
	}
	if _, err := verifyToken("s", tok, now.Add(2*time.Minute)); !errors.Is(err, errUnauthorized) {
		t.Fatalf("expired: %v", err)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", storage.ErrNotFound), http.StatusNotFound},
		{domain.ErrDuplicateFlow, http.StatusConflict},
		{reader.ErrAwaitingChoice, http.StatusConflict},
		{reader.ErrInvalidMode, http.StatusBadRequest},
		{blob.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Errorf("statusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
