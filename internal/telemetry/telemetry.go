/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry provides a tiny, privacy‑respecting, opt‑in event sender
// for anonymous reading metrics and optional crash uploads.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	applog "instory/internal/log"
	"instory/internal/reader"
	"instory/internal/version"
)

// Config holds runtime configuration for telemetry and crash uploads.
// All telemetry is strictly opt‑in and disabled by default.
//
// Environment variables (read by FromEnv):
// - INSTORY_TELEMETRY_OPT_IN: "1", "true", "yes" to enable metrics
// - INSTORY_TELEMETRY_URL: URL to POST JSON events to
// - INSTORY_CRASH_UPLOAD_URL: URL to POST crash reports to
// - INSTORY_TELEMETRY_TIMEOUT_MS: optional request timeout, default 1500ms
// - INSTORY_TELEMETRY_DEBUG: if set, logs event send attempts
//
// If no URLs are set, events are dropped (no‑ops), even if opt‑in is true.
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
	// EventsPerSecond caps the send rate; excess events are dropped. Defaults to 10.
	EventsPerSecond float64
}

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv("INSTORY_TELEMETRY_OPT_IN")),
		EventsURL:    strings.TrimSpace(os.Getenv("INSTORY_TELEMETRY_URL")),
		CrashURL:     strings.TrimSpace(os.Getenv("INSTORY_CRASH_UPLOAD_URL")),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv("INSTORY_TELEMETRY_DEBUG") != "",
	}
	if ms := strings.TrimSpace(os.Getenv("INSTORY_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil {
			cfg.Timeout = v
		}
	}
	return cfg
}

func parseBool(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// Client is a minimal async sender; it drops events silently on errors.
// Event never blocks; the queue is bounded.
type Client struct {
	cfg     Config
	log     *slog.Logger
	cli     *http.Client
	limiter *rate.Limiter
	q       chan any
	once    sync.Once
	closed  chan struct{}
	wg      sync.WaitGroup
	pending sync.WaitGroup
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Default returns the package‑level client, creating it from env when first used.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// SetDefault installs c as the default client and closes the previous one.
func SetDefault(c *Client) {
	defaultMu.Lock()
	old := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	if old != nil && old != c {
		old.Close()
	}
}

// New constructs a client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	if cfg.EventsPerSecond <= 0 {
		cfg.EventsPerSecond = 10
	}
	c := &Client{
		cfg:     cfg,
		log:     applog.WithComponent("telemetry"),
		cli:     &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.EventsPerSecond), 2*int(cfg.EventsPerSecond)+1),
		q:       make(chan any, 64),
		closed:  make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

// Enabled reports whether anonymous telemetry is enabled and an endpoint is configured.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Enabled reports whether anonymous telemetry is enabled using the default client.
func Enabled() bool { return Default().Enabled() }

// Event posts a small JSON event if enabled. Safe to call from anywhere.
// props must not carry personal data.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	select {
	case <-c.closed:
		return
	default:
	}
	if !c.limiter.Allow() {
		return
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		payload[k] = v
	}
	c.pending.Add(1)
	select {
	case c.q <- payload:
	default:
		c.pending.Done()
	}
}

// Event using default client.
func Event(name string, props map[string]any) { Default().Event(name, props) }

// ReaderObserver turns reader navigation into events: story_started,
// choice_selected and story_ended.
func (c *Client) ReaderObserver() func(storyID string, ev reader.Event) {
	return func(storyID string, ev reader.Event) {
		props := map[string]any{"story_id": storyID, "scene_id": ev.SceneID}
		switch {
		case ev.Kind == reader.EventRestarted:
			c.Event("story_started", props)
		case ev.Kind == reader.EventSceneChanged && ev.ChoiceID != "":
			props["choice_id"] = ev.ChoiceID
			c.Event("choice_selected", props)
		case ev.Kind == reader.EventEnded:
			c.Event("story_ended", props)
		}
	}
}

// Flush waits until queued events and crash uploads are sent or ctx ends.
func (c *Client) Flush(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Close stops the background goroutine after in‑flight sends finish.
func (c *Client) Close() {
	c.once.Do(func() { close(c.closed) })
	c.wg.Wait()
}

func (c *Client) loop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.closed:
			for {
				select {
				case <-c.q:
					c.pending.Done()
				default:
					return
				}
			}
		case item := <-c.q:
			c.post(c.cfg.EventsURL, "application/json", mustJSON(item), "event")
			c.pending.Done()
		}
	}
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry send failed", slog.String("kind", what), slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if c.cfg.DebugLogging {
		c.log.Debug("telemetry sent", slog.String("kind", what), slog.Int("status", resp.StatusCode))
	}
}

// UploadCrash posts an already‑serialized crash report to the configured crash URL if opt‑in.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	select {
	case <-c.closed:
		return
	default:
	}
	c.wg.Add(1)
	c.pending.Add(1)
	go func(b []byte) {
		defer c.wg.Done()
		defer c.pending.Done()
		c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", b, "crash")
	}(append([]byte(nil), report...))
}

// UploadCrash using default client.
func UploadCrash(report []byte) { Default().UploadCrash(report) }
