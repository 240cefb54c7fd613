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
	"strings"

	"go.uber.org/multierr"

	"instory/internal/domain"
)

const choiceCols = `id, scene_id, target_scene_id, text, order_index, created_at`

func scanChoice(row interface{ Scan(...any) error }) (domain.Choice, error) {
	var c domain.Choice
	err := row.Scan(&c.ID, &c.SceneID, &c.TargetSceneID, &c.Text, &c.OrderIndex, dbTime{&c.CreatedAt})
	return c, err
}

// checkFlow rejects a second unconditional choice from sceneID. except is a
// choice id ignored in the count.
func (r *Repository) checkFlow(ctx context.Context, q querier, sceneID, except string) error {
	var n int
	if err := q.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM choices WHERE scene_id = ? AND id <> ? AND TRIM(text) = ''`), sceneID, except).Scan(&n); err != nil {
		return fmt.Errorf("count flow choices: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("scene %s: %w", sceneID, ErrDuplicateFlow)
	}
	return nil
}

// CreateChoice inserts an edge. A negative OrderIndex appends it.
func (r *Repository) CreateChoice(ctx context.Context, c domain.Choice) (domain.Choice, error) {
	if err := c.Validate(); err != nil {
		return domain.Choice{}, err
	}
	c.Text = strings.TrimSpace(c.Text)
	if c.ID == "" {
		c.ID = r.newID()
	}
	c.CreatedAt = r.now()
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if c.IsUnconditional() {
			if err := r.checkFlow(ctx, tx, c.SceneID, c.ID); err != nil {
				return err
			}
		}
		if c.OrderIndex < 0 {
			if err := tx.QueryRowContext(ctx, r.rebind(`SELECT COALESCE(MAX(order_index) + 1, 0) FROM choices WHERE scene_id = ?`), c.SceneID).Scan(&c.OrderIndex); err != nil {
				return fmt.Errorf("next choice index: %w", err)
			}
		}
		return r.insertChoice(ctx, tx, c)
	})
	if err != nil {
		return domain.Choice{}, err
	}
	return c, nil
}

func (r *Repository) insertChoice(ctx context.Context, q querier, c domain.Choice) error {
	_, err := q.ExecContext(ctx, r.rebind(`INSERT INTO choices (`+choiceCols+`) VALUES (?, ?, ?, ?, ?, ?)`),
		c.ID, c.SceneID, c.TargetSceneID, c.Text, c.OrderIndex, r.ts(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert choice: %w", err)
	}
	return nil
}

func (r *Repository) GetChoice(ctx context.Context, id string) (domain.Choice, error) {
	c, err := scanChoice(r.db.QueryRowContext(ctx, r.rebind(`SELECT `+choiceCols+` FROM choices WHERE id = ?`), id))
	if err != nil {
		return domain.Choice{}, notFound("get choice", err)
	}
	return c, nil
}

// ListChoicesFrom returns the outgoing choices of a scene in order.
func (r *Repository) ListChoicesFrom(ctx context.Context, sceneID string) ([]domain.Choice, error) {
	return r.queryChoices(ctx, r.db, `SELECT `+choiceCols+` FROM choices WHERE scene_id = ? ORDER BY order_index, created_at`, sceneID)
}

// ListChoices returns every choice of a story.
func (r *Repository) ListChoices(ctx context.Context, storyID string) ([]domain.Choice, error) {
	return r.queryChoices(ctx, r.db, `SELECT `+choiceCols+` FROM choices
		WHERE scene_id IN (SELECT id FROM scenes WHERE story_id = ?) ORDER BY scene_id, order_index, created_at`, storyID)
}

func (r *Repository) queryChoices(ctx context.Context, q querier, query string, args ...any) (_ []domain.Choice, err error) {
	rows, err := q.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list choices: %w", err)
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()
	out := []domain.Choice{}
	for rows.Next() {
		c, err := scanChoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan choice: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateChoice changes label, target and order. Clearing the label is
// subject to the same single-flow rule as creation.
func (r *Repository) UpdateChoice(ctx context.Context, c domain.Choice) (domain.Choice, error) {
	if err := c.Validate(); err != nil {
		return domain.Choice{}, err
	}
	c.Text = strings.TrimSpace(c.Text)
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if c.IsUnconditional() {
			if err := r.checkFlow(ctx, tx, c.SceneID, c.ID); err != nil {
				return err
			}
		}
		return r.exec(ctx, tx, "update choice", `UPDATE choices SET target_scene_id = ?, text = ?, order_index = ? WHERE id = ? AND scene_id = ?`,
			c.TargetSceneID, c.Text, c.OrderIndex, c.ID, c.SceneID)
	})
	if err != nil {
		return domain.Choice{}, err
	}
	return r.GetChoice(ctx, c.ID)
}

func (r *Repository) DeleteChoice(ctx context.Context, id string) error {
	return r.exec(ctx, r.db, "delete choice", `DELETE FROM choices WHERE id = ?`, id)
}
