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

// UpsertScenePositions writes flow-editor node coordinates in one transaction.
func (r *Repository) UpsertScenePositions(ctx context.Context, positions []domain.ScenePosition) error {
	if len(positions) == 0 {
		return nil
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range positions {
			storyID := p.StoryID
			if storyID == "" {
				if err := tx.QueryRowContext(ctx, r.rebind(`SELECT story_id FROM scenes WHERE id = ?`), p.SceneID).Scan(&storyID); err != nil {
					return notFound("position scene", err)
				}
			}
			_, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO scene_positions (scene_id, story_id, x, y) VALUES (?, ?, ?, ?)
				ON CONFLICT (scene_id) DO UPDATE SET x = excluded.x, y = excluded.y, story_id = excluded.story_id`),
				p.SceneID, storyID, p.X, p.Y)
			if err != nil {
				return fmt.Errorf("upsert position: %w", err)
			}
		}
		return nil
	})
}

// ListScenePositions returns the persisted node coordinates of a story.
func (r *Repository) ListScenePositions(ctx context.Context, storyID string) (_ []domain.ScenePosition, err error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT scene_id, story_id, x, y FROM scene_positions WHERE story_id = ? ORDER BY scene_id`), storyID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()
	out := []domain.ScenePosition{}
	for rows.Next() {
		var p domain.ScenePosition
		if err := rows.Scan(&p.SceneID, &p.StoryID, &p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
