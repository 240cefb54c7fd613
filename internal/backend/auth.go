/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var errUnauthorized = errors.New("unauthorized")

// DefaultTokenTTL is used when a token request does not ask for a lifetime.
const DefaultTokenTTL = time.Hour

// MaxTokenTTL caps requested token lifetimes.
const MaxTokenTTL = 30 * 24 * time.Hour

type tokenClaims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"` // unix seconds
}

func signToken(secret, subject string, exp time.Time) (string, error) {
	claims := tokenClaims{Sub: subject, Exp: exp.Unix()}
	b, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(b)
	sig := h.Sum(nil)
	payload := base64.RawURLEncoding.EncodeToString(b)
	signature := base64.RawURLEncoding.EncodeToString(sig)
	return payload + "." + signature, nil
}

func verifyToken(secret, token string, now time.Time) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: invalid token format", errUnauthorized)
	}
	payloadB, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: invalid token payload", errUnauthorized)
	}
	sigB, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: invalid token signature", errUnauthorized)
	}
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(payloadB)
	if !hmac.Equal(h.Sum(nil), sigB) {
		return "", fmt.Errorf("%w: bad signature", errUnauthorized)
	}
	var claims tokenClaims
	if err := json.Unmarshal(payloadB, &claims); err != nil {
		return "", fmt.Errorf("%w: bad claims", errUnauthorized)
	}
	if claims.Exp < now.Unix() {
		return "", fmt.Errorf("%w: token expired", errUnauthorized)
	}
	if claims.Sub == "" {
		claims.Sub = "dev"
	}
	return claims.Sub, nil
}

// bearer extracts the token of an Authorization header.
func bearer(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "bearer "
	if !strings.HasPrefix(strings.ToLower(auth), prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}

// withAuth requires a valid bearer token and passes its subject on.
func (s *Server) withAuth(next func(w http.ResponseWriter, r *http.Request, subject string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		sub, err := verifyToken(s.cfg.AuthSecret, token, s.now())
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next(w, r, sub)
	}
}

// subjectOf returns the token subject when a valid token is present.
func (s *Server) subjectOf(r *http.Request) (string, bool) {
	token, ok := bearer(r)
	if !ok {
		return "", false
	}
	sub, err := verifyToken(s.cfg.AuthSecret, token, s.now())
	return sub, err == nil
}

// POST /api/auth/token: { "subject": "name", "ttl_seconds": 3600 } -> { token, expires_at }
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject    string `json:"subject"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if req.Subject == "" {
		req.Subject = "dev"
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = s.cfg.TokenTTL
	}
	ttl = min(ttl, MaxTokenTTL)
	exp := s.now().Add(ttl)
	tok, err := signToken(s.cfg.AuthSecret, req.Subject, exp)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      tok,
		"subject":    req.Subject,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}
