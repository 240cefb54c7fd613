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
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"instory/internal/domain"
	"instory/internal/reader"
	"instory/internal/vector"
)

// Client is a small HTTP client for the InStory API, used by the CLI.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL string, token string) *Client {
	b := strings.TrimRight(baseURL, "/")
	return &Client{
		BaseURL: b,
		Token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SkipTLSVerify disables certificate checks, for servers with self-signed
// development certificates.
func (c *Client) SkipTLSVerify() {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	c.client.Transport = tr
}

// SetTimeout changes the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.client.Timeout = d
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		return fmt.Errorf("%s %s: %w", method, u.Path, &APIError{Status: resp.StatusCode, Message: e.Error})
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// Token is an issued bearer token.
type Token struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken asks the server for a token for subject.
func (c *Client) IssueToken(ctx context.Context, subject string, ttl time.Duration) (Token, error) {
	var t Token
	in := map[string]any{"subject": subject, "ttl_seconds": int64(ttl / time.Second)}
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/token", in, &t)
	return t, err
}

// ListStories returns the caller's stories, or the published catalog when
// the client has no token.
func (c *Client) ListStories(ctx context.Context) ([]domain.Story, error) {
	var list []domain.Story
	if err := c.doJSON(ctx, http.MethodGet, "/api/stories", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ListPublished returns the published catalog.
func (c *Client) ListPublished(ctx context.Context) ([]domain.Story, error) {
	var list []domain.Story
	if err := c.doJSON(ctx, http.MethodGet, "/api/stories?published=1", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetReaderBundle fetches the reading bundle of a published story.
func (c *Client) GetReaderBundle(ctx context.Context, storyID string) (*Bundle, error) {
	var b Bundle
	if err := c.doJSON(ctx, http.MethodGet, "/api/read/"+url.PathEscape(storyID), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// StartSession opens a server-side reading session.
func (c *Client) StartSession(ctx context.Context, storyID string, mode reader.Mode, lang string, viewport vector.Size) (SessionView, error) {
	var v SessionView
	in := map[string]any{"mode": mode, "language": lang, "viewport": viewport}
	err := c.doJSON(ctx, http.MethodPost, "/api/read/"+url.PathEscape(storyID)+"/sessions", in, &v)
	return v, err
}

// Step runs a session action such as "next" or "choose". body may be nil.
func (c *Client) Step(ctx context.Context, sessionID, action string, body any) (SessionView, error) {
	var v SessionView
	err := c.doJSON(ctx, http.MethodPost, "/api/read/sessions/"+url.PathEscape(sessionID)+"/"+url.PathEscape(action), body, &v)
	return v, err
}

// EndSession discards a reading session.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/read/sessions/"+url.PathEscape(sessionID), nil, nil)
}
