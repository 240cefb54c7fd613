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
	"database/sql"
	"fmt"

	"go.uber.org/multierr"

	"instory/internal/domain"
)

// AddLanguage adds a language to a story. A default language clears the
// default flag of the others; the first language is always the default.
func (r *Repository) AddLanguage(ctx context.Context, l domain.StoryLanguage) (domain.StoryLanguage, error) {
	code, err := domain.NormalizeLanguage(l.LanguageCode)
	if err != nil {
		return domain.StoryLanguage{}, err
	}
	l.LanguageCode = code
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM story_languages WHERE story_id = ? AND language_code <> ?`), l.StoryID, l.LanguageCode).Scan(&n); err != nil {
			return fmt.Errorf("count languages: %w", err)
		}
		if n == 0 {
			l.IsDefault = true
		}
		if l.IsDefault {
			if _, err := tx.ExecContext(ctx, r.rebind(`UPDATE story_languages SET is_default = ? WHERE story_id = ?`), false, l.StoryID); err != nil {
				return fmt.Errorf("clear default language: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM story_languages WHERE story_id = ? AND language_code = ?`), l.StoryID, l.LanguageCode); err != nil {
			return fmt.Errorf("replace language: %w", err)
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO story_languages (story_id, language_code, is_default) VALUES (?, ?, ?)`), l.StoryID, l.LanguageCode, l.IsDefault); err != nil {
			return fmt.Errorf("insert language: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.StoryLanguage{}, err
	}
	return l, nil
}

// ListLanguages returns the languages of a story, default first.
func (r *Repository) ListLanguages(ctx context.Context, storyID string) (_ []domain.StoryLanguage, err error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT story_id, language_code, is_default FROM story_languages WHERE story_id = ? ORDER BY is_default DESC, language_code`), storyID)
	if err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()
	out := []domain.StoryLanguage{}
	for rows.Next() {
		var l domain.StoryLanguage
		if err := rows.Scan(&l.StoryID, &l.LanguageCode, &l.IsDefault); err != nil {
			return nil, fmt.Errorf("scan language: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// RemoveLanguage drops a language and the story's text contents in it.
func (r *Repository) RemoveLanguage(ctx context.Context, storyID, code string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM panel_text_contents WHERE language_code = ? AND panel_text_id IN (
			SELECT t.id FROM panel_texts t JOIN panels p ON p.id = t.panel_id JOIN scenes s ON s.id = p.scene_id WHERE s.story_id = ?)`), code, storyID); err != nil {
			return fmt.Errorf("delete language contents: %w", err)
		}
		return r.exec(ctx, tx, "remove language", `DELETE FROM story_languages WHERE story_id = ? AND language_code = ?`, storyID, code)
	})
}
