/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/multierr"

	"instory/internal/domain"
)

// SearchQuery finds text boxes of a story by their content.
// Text is matched case-insensitively as a substring. Language, SceneID and
// BubbleTypes are optional filters. Limit/Offset paginate; Limit defaults to 100.
type SearchQuery struct {
	StoryID     string
	Text        string
	Language    string
	SceneID     string
	BubbleTypes []domain.BubbleType
	Limit       int
	Offset      int
}

// SearchResult is one matching text content with its location.
// Snippet marks the first match with [ ].
type SearchResult struct {
	PanelTextID  string `json:"panel_text_id"`
	PanelID      string `json:"panel_id"`
	SceneID      string `json:"scene_id"`
	SceneTitle   string `json:"scene_title"`
	LanguageCode string `json:"language_code"`
	BubbleType   string `json:"bubble_type"`
	Text         string `json:"text"`
	Snippet      string `json:"snippet"`
}

// SearchTexts runs q against the story's text contents, ordered by scene,
// panel and text order.
func (r *Repository) SearchTexts(ctx context.Context, q SearchQuery) (_ []SearchResult, err error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT t.id, p.id, s.id, s.title, c.language_code, t.bubble_type, c.text
		FROM panel_text_contents c
		JOIN panel_texts t ON t.id = c.panel_text_id
		JOIN panels p ON p.id = t.panel_id
		JOIN scenes s ON s.id = p.scene_id
		WHERE s.story_id = ?`)
	args = append(args, q.StoryID)
	if s := strings.TrimSpace(q.Text); s != "" {
		sb.WriteString(` AND lower(c.text) LIKE ?`)
		args = append(args, likeContains(strings.ToLower(s)))
	}
	if q.Language != "" {
		sb.WriteString(` AND c.language_code = ?`)
		args = append(args, q.Language)
	}
	if q.SceneID != "" {
		sb.WriteString(` AND s.id = ?`)
		args = append(args, q.SceneID)
	}
	if len(q.BubbleTypes) > 0 {
		sb.WriteString(` AND t.bubble_type IN (` + placeholders(len(q.BubbleTypes)) + `)`)
		for _, b := range q.BubbleTypes {
			args = append(args, string(b))
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	sb.WriteString(` ORDER BY s.order_index, p.order_index, t.order_index, c.language_code LIMIT ? OFFSET ?`)
	args = append(args, limit, max(q.Offset, 0))

	rows, err := r.db.QueryContext(ctx, r.rebind(sb.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()
	out := []SearchResult{}
	for rows.Next() {
		var res SearchResult
		if err := rows.Scan(&res.PanelTextID, &res.PanelID, &res.SceneID, &res.SceneTitle, &res.LanguageCode, &res.BubbleType, &res.Text); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		res.Snippet = snippet(res.Text, strings.TrimSpace(q.Text), 10)
		out = append(out, res)
	}
	return out, rows.Err()
}

// snippet returns up to context runes around the first case-insensitive
// match of needle, with the match bracketed.
func snippet(text, needle string, context int) string {
	if needle == "" {
		return text
	}
	lower := strings.ToLower(text)
	i := strings.Index(lower, strings.ToLower(needle))
	if i < 0 || len(lower) != len(text) {
		return text
	}
	j := i + len(needle)
	start, end := i, j
	for n := 0; n < context && start > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	for n := 0; n < context && end < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}
	var b strings.Builder
	if start > 0 {
		b.WriteString("…")
	}
	b.WriteString(text[start:i] + "[" + text[i:j] + "]" + text[j:end])
	if end < len(text) {
		b.WriteString("…")
	}
	return b.String()
}

func likeContains(s string) string { return "%" + s + "%" }

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
