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

const sceneCols = `id, story_id, title, image_url, image_width, image_height, order_index, is_start_scene, is_decision_scene, created_at`

func scanScene(row interface{ Scan(...any) error }) (domain.Scene, error) {
	var s domain.Scene
	err := row.Scan(&s.ID, &s.StoryID, &s.Title, &s.ImageURL, &s.ImageWidth, &s.ImageHeight, &s.OrderIndex,
		&s.IsStartScene, &s.IsDecisionScene, dbTime{&s.CreatedAt})
	return s, err
}

// CreateScene appends a scene to its story. The first scene of a story
// becomes its start scene.
func (r *Repository) CreateScene(ctx context.Context, s domain.Scene) (domain.Scene, error) {
	if err := s.Validate(); err != nil {
		return domain.Scene{}, err
	}
	if s.ID == "" {
		s.ID = r.newID()
	}
	s.CreatedAt = r.now()
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var count, next int
		if err := tx.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*), COALESCE(MAX(order_index) + 1, 0) FROM scenes WHERE story_id = ?`), s.StoryID).Scan(&count, &next); err != nil {
			return fmt.Errorf("next scene index: %w", err)
		}
		s.OrderIndex = next
		if count == 0 {
			s.IsStartScene = true
		}
		if s.IsStartScene && count > 0 {
			if _, err := tx.ExecContext(ctx, r.rebind(`UPDATE scenes SET is_start_scene = ? WHERE story_id = ?`), false, s.StoryID); err != nil {
				return fmt.Errorf("clear start scene: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO scenes (`+sceneCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			s.ID, s.StoryID, s.Title, s.ImageURL, s.ImageWidth, s.ImageHeight, s.OrderIndex, s.IsStartScene, s.IsDecisionScene, r.ts(s.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert scene: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Scene{}, err
	}
	return s, nil
}

func (r *Repository) GetScene(ctx context.Context, id string) (domain.Scene, error) {
	s, err := scanScene(r.db.QueryRowContext(ctx, r.rebind(`SELECT `+sceneCols+` FROM scenes WHERE id = ?`), id))
	if err != nil {
		return domain.Scene{}, notFound("get scene", err)
	}
	return s, nil
}

// ListScenes returns the scenes of a story in order index order.
func (r *Repository) ListScenes(ctx context.Context, storyID string) ([]domain.Scene, error) {
	return r.listScenes(ctx, r.db, storyID)
}

func (r *Repository) listScenes(ctx context.Context, q querier, storyID string) (_ []domain.Scene, err error) {
	rows, err := q.QueryContext(ctx, r.rebind(`SELECT `+sceneCols+` FROM scenes WHERE story_id = ? ORDER BY order_index, created_at`), storyID)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()
	out := []domain.Scene{}
	for rows.Next() {
		s, err := scanScene(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateScene writes title, image and order. Start and decision flags have
// their own setters.
func (r *Repository) UpdateScene(ctx context.Context, s domain.Scene) (domain.Scene, error) {
	if err := s.Validate(); err != nil {
		return domain.Scene{}, err
	}
	if err := r.exec(ctx, r.db, "update scene",
		`UPDATE scenes SET title = ?, image_url = ?, image_width = ?, image_height = ?, order_index = ? WHERE id = ?`,
		s.Title, s.ImageURL, s.ImageWidth, s.ImageHeight, s.OrderIndex, s.ID); err != nil {
		return domain.Scene{}, err
	}
	return r.GetScene(ctx, s.ID)
}

// SetStartScene makes sceneID the only start scene of its story.
func (r *Repository) SetStartScene(ctx context.Context, sceneID string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var storyID string
		if err := tx.QueryRowContext(ctx, r.rebind(`SELECT story_id FROM scenes WHERE id = ?`), sceneID).Scan(&storyID); err != nil {
			return notFound("set start scene", err)
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`UPDATE scenes SET is_start_scene = ? WHERE story_id = ?`), false, storyID); err != nil {
			return fmt.Errorf("clear start scene: %w", err)
		}
		return r.exec(ctx, tx, "set start scene", `UPDATE scenes SET is_start_scene = ? WHERE id = ?`, true, sceneID)
	})
}

func (r *Repository) SetDecisionScene(ctx context.Context, sceneID string, decision bool) error {
	return r.exec(ctx, r.db, "set decision scene", `UPDATE scenes SET is_decision_scene = ? WHERE id = ?`, decision, sceneID)
}

// DeleteScene removes a scene with its panels, texts, audio, position and
// every choice leading into or out of it. Deleting the start scene hands
// the start flag to the remaining scene with the lowest order index.
func (r *Repository) DeleteScene(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var (
			storyID  string
			wasStart bool
		)
		if err := tx.QueryRowContext(ctx, r.rebind(`SELECT story_id, is_start_scene FROM scenes WHERE id = ?`), id).Scan(&storyID, &wasStart); err != nil {
			return notFound("delete scene", err)
		}
		panels := `SELECT id FROM panels WHERE scene_id = ?`
		texts := `SELECT id FROM panel_texts WHERE panel_id IN (` + panels + `)`
		steps := []struct {
			q    string
			args []any
		}{
			{`DELETE FROM panel_text_contents WHERE panel_text_id IN (` + texts + `)`, []any{id}},
			{`DELETE FROM panel_texts WHERE panel_id IN (` + panels + `)`, []any{id}},
			{`DELETE FROM story_audio WHERE scene_id = ? OR panel_id IN (` + panels + `)`, []any{id, id}},
			{`DELETE FROM panels WHERE scene_id = ?`, []any{id}},
			{`DELETE FROM choices WHERE scene_id = ? OR target_scene_id = ?`, []any{id, id}},
			{`DELETE FROM scene_positions WHERE scene_id = ?`, []any{id}},
		}
		for _, s := range steps {
			if _, err := tx.ExecContext(ctx, r.rebind(s.q), s.args...); err != nil {
				return fmt.Errorf("delete scene rows: %w", err)
			}
		}
		if err := r.exec(ctx, tx, "delete scene", `DELETE FROM scenes WHERE id = ?`, id); err != nil {
			return err
		}
		if wasStart {
			// The first remaining scene inherits the start flag.
			if _, err := tx.ExecContext(ctx, r.rebind(`UPDATE scenes SET is_start_scene = ? WHERE id =
				(SELECT id FROM scenes WHERE story_id = ? ORDER BY order_index, created_at, id LIMIT 1)`), true, storyID); err != nil {
				return fmt.Errorf("move start scene: %w", err)
			}
		}
		return r.syncDecisionFlags(ctx, tx, storyID)
	})
}

// syncDecisionFlags clears the decision flag of scenes left without a
// labeled choice.
func (r *Repository) syncDecisionFlags(ctx context.Context, q querier, storyID string) error {
	_, err := q.ExecContext(ctx, r.rebind(`UPDATE scenes SET is_decision_scene = ?
		WHERE story_id = ? AND is_decision_scene = ?
		AND NOT EXISTS (SELECT 1 FROM choices c WHERE c.scene_id = scenes.id AND TRIM(c.text) <> '')`),
		false, storyID, true)
	if err != nil {
		return fmt.Errorf("sync decision flags: %w", err)
	}
	return nil
}
