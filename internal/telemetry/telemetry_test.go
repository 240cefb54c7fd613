/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"instory/internal/reader"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

type sink struct {
	mu      sync.Mutex
	events  []map[string]any
	crashes [][]byte
	srv     *httptest.Server
}

func newSink(t *testing.T) *sink {
	t.Helper()
	s := &sink{}
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		s.mu.Lock()
		s.events = append(s.events, m)
		s.mu.Unlock()
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.crashes = append(s.crashes, b)
		s.mu.Unlock()
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *sink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		out = append(out, e["name"].(string))
	}
	return out
}

func TestClient_EventAndUploadCrash(t *testing.T) {
	s := newSink(t)
	c := New(Config{OptIn: true, EventsURL: s.srv.URL + "/events", CrashURL: s.srv.URL + "/crash", Timeout: 2 * time.Second})
	defer c.Close()

	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}
	c.Event("started", map[string]any{"k": "v"})
	c.UploadCrash([]byte("STACKTRACE"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Flush(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) != 1 {
		t.Fatalf("expected one event, got %d", len(s.events))
	}
	if s.events[0]["name"] != "started" || s.events[0]["k"] != "v" {
		t.Fatalf("event = %v", s.events[0])
	}
	if _, ok := s.events[0]["ts"].(string); !ok {
		t.Fatalf("missing ts field")
	}
	if len(s.crashes) != 1 || string(s.crashes[0]) != "STACKTRACE" {
		t.Fatalf("crashes = %q", s.crashes)
	}
}

func TestReaderObserver(t *testing.T) {
	s := newSink(t)
	c := New(Config{OptIn: true, EventsURL: s.srv.URL + "/events"})
	defer c.Close()

	observe := c.ReaderObserver()
	observe("st", reader.Event{Kind: reader.EventRestarted, SceneID: "a"})
	observe("st", reader.Event{Kind: reader.EventAdvanced, SceneID: "a", PanelIndex: 1})
	observe("st", reader.Event{Kind: reader.EventShowChoices, SceneID: "a"})
	observe("st", reader.Event{Kind: reader.EventSceneChanged, SceneID: "b", ChoiceID: "c1"})
	observe("st", reader.Event{Kind: reader.EventSceneChanged, SceneID: "c"})
	observe("st", reader.Event{Kind: reader.EventEnded, SceneID: "c"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Flush(ctx)

	if diff := cmp.Diff([]string{"story_started", "choice_selected", "story_ended"}, s.names()); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events[1]["choice_id"] != "c1" || s.events[1]["story_id"] != "st" {
		t.Errorf("choice event = %v", s.events[1])
	}
}

func TestRateLimitDropsExcess(t *testing.T) {
	s := newSink(t)
	c := New(Config{OptIn: true, EventsURL: s.srv.URL + "/events", EventsPerSecond: 1})
	defer c.Close()
	for i := 0; i < 10; i++ {
		c.Event("tick", nil)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Flush(ctx)
	if n := len(s.names()); n != 3 {
		t.Errorf("sent %d events, want burst of 3", n)
	}
}

func TestEnabled_DefaultClientAndFromEnv(t *testing.T) {
	t.Setenv("INSTORY_TELEMETRY_OPT_IN", "true")
	t.Setenv("INSTORY_TELEMETRY_URL", "http://127.0.0.1:0")
	t.Setenv("INSTORY_CRASH_UPLOAD_URL", "")
	t.Setenv("INSTORY_TELEMETRY_TIMEOUT_MS", "100")

	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL == "" || cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("FromEnv did not parse correctly: %+v", cfg)
	}

	SetDefault(New(cfg))
	defer SetDefault(nil)
	if !Enabled() {
		t.Fatalf("default Enabled should be true with env config")
	}
}

func TestDisabledClientSendsNothing(t *testing.T) {
	s := newSink(t)
	off := New(Config{EventsURL: s.srv.URL + "/events", CrashURL: s.srv.URL + "/crash"})
	defer off.Close()
	on := New(Config{OptIn: true, EventsURL: s.srv.URL + "/events"})
	defer on.Close()

	if off.Enabled() {
		t.Fatal("client without opt-in reports enabled")
	}
	off.Event("story_started", nil)
	off.UploadCrash([]byte("report"))
	on.Event("", nil)
	on.UploadCrash([]byte("no crash url"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	off.Flush(ctx)
	on.Flush(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) != 0 || len(s.crashes) != 0 {
		t.Fatalf("events=%v crashes=%q", s.events, s.crashes)
	}
}

func TestUnreachableEndpointDoesNotBlock(t *testing.T) {
	c := New(Config{
		OptIn:        true,
		EventsURL:    "http://127.0.0.1:1/events",
		CrashURL:     "http://127.0.0.1:1/crash",
		Timeout:      50 * time.Millisecond,
		DebugLogging: true,
	})
	defer c.Close()
	c.Event("story_ended", map[string]any{"story_id": "s"})
	c.UploadCrash([]byte("panic: boom"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Flush(ctx)
	if ctx.Err() != nil {
		t.Fatal("flush did not finish after failed sends")
	}
}

func TestClosedClientDropsWork(t *testing.T) {
	c := New(Config{OptIn: true, EventsURL: "http://127.0.0.1:1/events", CrashURL: "http://127.0.0.1:1/crash"})
	c.Close()
	c.Close()
	c.Event("late", nil)
	c.UploadCrash([]byte("late"))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	c.Flush(ctx)
	if ctx.Err() != nil {
		t.Fatal("flush waited for dropped work")
	}
}
