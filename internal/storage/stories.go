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
	"log/slog"

	"go.uber.org/multierr"

	"instory/internal/domain"
)

const storyCols = `id, title, description, is_published, author_id, cover_url, created_at, updated_at`

func scanStory(row interface{ Scan(...any) error }) (domain.Story, error) {
	var s domain.Story
	err := row.Scan(&s.ID, &s.Title, &s.Description, &s.IsPublished, &s.AuthorID, &s.CoverURL,
		dbTime{&s.CreatedAt}, dbTime{&s.UpdatedAt})
	return s, err
}

// StoryFilter narrows ListStories.
type StoryFilter struct {
	AuthorID      string
	PublishedOnly bool
}

func (r *Repository) CreateStory(ctx context.Context, s domain.Story) (domain.Story, error) {
	if err := s.Validate(); err != nil {
		return domain.Story{}, err
	}
	if s.ID == "" {
		s.ID = r.newID()
	}
	now := r.now()
	s.CreatedAt, s.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, r.rebind(`INSERT INTO stories (`+storyCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		s.ID, s.Title, s.Description, s.IsPublished, s.AuthorID, s.CoverURL, r.ts(now), r.ts(now))
	if err != nil {
		return domain.Story{}, fmt.Errorf("insert story: %w", err)
	}
	r.log.Info("story created", slog.String("story_id", s.ID))
	return s, nil
}

func (r *Repository) GetStory(ctx context.Context, id string) (domain.Story, error) {
	s, err := scanStory(r.db.QueryRowContext(ctx, r.rebind(`SELECT `+storyCols+` FROM stories WHERE id = ?`), id))
	if err != nil {
		return domain.Story{}, notFound("get story", err)
	}
	return s, nil
}

// ListStories returns stories, most recently updated first.
func (r *Repository) ListStories(ctx context.Context, f StoryFilter) (_ []domain.Story, err error) {
	q := `SELECT ` + storyCols + ` FROM stories WHERE 1 = 1`
	var args []any
	if f.AuthorID != "" {
		q += ` AND author_id = ?`
		args = append(args, f.AuthorID)
	}
	if f.PublishedOnly {
		q += ` AND is_published = ?`
		args = append(args, true)
	}
	q += ` ORDER BY updated_at DESC, id`
	rows, err := r.db.QueryContext(ctx, r.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()
	out := []domain.Story{}
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateStory writes title, description, cover and publish state.
func (r *Repository) UpdateStory(ctx context.Context, s domain.Story) (domain.Story, error) {
	if err := s.Validate(); err != nil {
		return domain.Story{}, err
	}
	s.UpdatedAt = r.now()
	if err := r.exec(ctx, r.db, "update story",
		`UPDATE stories SET title = ?, description = ?, is_published = ?, cover_url = ?, updated_at = ? WHERE id = ?`,
		s.Title, s.Description, s.IsPublished, s.CoverURL, r.ts(s.UpdatedAt), s.ID); err != nil {
		return domain.Story{}, err
	}
	return r.GetStory(ctx, s.ID)
}

// Touch bumps updated_at of a story after a change to any of its rows.
func (r *Repository) Touch(ctx context.Context, storyID string) error {
	return r.exec(ctx, r.db, "touch story", `UPDATE stories SET updated_at = ? WHERE id = ?`, r.ts(r.now()), storyID)
}

// DeleteStory removes a story and every row that belongs to it.
func (r *Repository) DeleteStory(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		scenes := `SELECT id FROM scenes WHERE story_id = ?`
		panels := `SELECT id FROM panels WHERE scene_id IN (` + scenes + `)`
		texts := `SELECT id FROM panel_texts WHERE panel_id IN (` + panels + `)`
		steps := []string{
			`DELETE FROM panel_text_contents WHERE panel_text_id IN (` + texts + `)`,
			`DELETE FROM panel_texts WHERE panel_id IN (` + panels + `)`,
			`DELETE FROM story_audio WHERE story_id = ?`,
			`DELETE FROM story_revisions WHERE story_id = ?`,
			`DELETE FROM scene_positions WHERE story_id = ?`,
			`DELETE FROM choices WHERE scene_id IN (` + scenes + `)`,
			`DELETE FROM panels WHERE scene_id IN (` + scenes + `)`,
			`DELETE FROM scenes WHERE story_id = ?`,
			`DELETE FROM story_languages WHERE story_id = ?`,
		}
		for _, q := range steps {
			if _, err := tx.ExecContext(ctx, r.rebind(q), id); err != nil {
				return fmt.Errorf("delete story rows: %w", err)
			}
		}
		if err := r.exec(ctx, tx, "delete story", `DELETE FROM stories WHERE id = ?`, id); err != nil {
			return err
		}
		r.log.Info("story deleted", slog.String("story_id", id))
		return nil
	})
}
