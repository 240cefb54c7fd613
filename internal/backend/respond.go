/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"instory/internal/blob"
	"instory/internal/domain"
	"instory/internal/editor"
	"instory/internal/reader"
	"instory/internal/storage"
)

const maxJSONBody = 1 << 20

var errBadRequest = errors.New("bad request")

func badRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// decodeJSON reads a size-limited JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

// statusFor maps package errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, blob.ErrNotFound), errors.Is(err, errSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateFlow),
		errors.Is(err, reader.ErrAwaitingChoice), errors.Is(err, reader.ErrStoryEnded),
		errors.Is(err, reader.ErrNotChoosing), errors.Is(err, reader.ErrUnknownChoice),
		errors.Is(err, reader.ErrNoStartScene), errors.Is(err, reader.ErrEmptyScene),
		errors.Is(err, reader.ErrSceneNotFound):
		return http.StatusConflict
	case errors.Is(err, blob.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest), errors.Is(err, domain.ErrInvalid),
		errors.Is(err, blob.ErrUnknownBucket), errors.Is(err, blob.ErrWrongKind),
		errors.Is(err, reader.ErrInvalidMode), errors.Is(err, reader.ErrNoLanguage),
		errors.Is(err, editor.ErrNoShape):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server errors are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("err", err))
	}
	writeError(w, status, err)
}
