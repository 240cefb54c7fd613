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
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"instory/internal/domain"
)

const panelCols = `id, scene_id, shape, x, y, width, height, points, brush_strokes, center_x, center_y, radius_x, radius_y, order_index, created_at`

func scanPanel(row interface{ Scan(...any) error }) (domain.Panel, error) {
	var (
		p              domain.Panel
		points, stroke []byte
	)
	err := row.Scan(&p.ID, &p.SceneID, &p.Shape, &p.X, &p.Y, &p.Width, &p.Height, dbJSON{&points}, dbJSON{&stroke},
		&p.CenterX, &p.CenterY, &p.RadiusX, &p.RadiusY, &p.OrderIndex, dbTime{&p.CreatedAt})
	if err != nil {
		return p, err
	}
	if len(points) > 0 {
		if err := json.Unmarshal(points, &p.Points); err != nil {
			return p, fmt.Errorf("decode points: %w", err)
		}
	}
	if len(stroke) > 0 {
		if err := json.Unmarshal(stroke, &p.BrushStrokes); err != nil {
			return p, fmt.Errorf("decode brush strokes: %w", err)
		}
	}
	return p, nil
}

func jsonArg[T any](v []T) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func panelArgs(p domain.Panel) ([]any, error) {
	points, err := jsonArg(p.Points)
	if err != nil {
		return nil, fmt.Errorf("encode points: %w", err)
	}
	stroke, err := jsonArg(p.BrushStrokes)
	if err != nil {
		return nil, fmt.Errorf("encode brush strokes: %w", err)
	}
	return []any{p.Shape, p.X, p.Y, p.Width, p.Height, points, stroke, p.CenterX, p.CenterY, p.RadiusX, p.RadiusY, p.OrderIndex}, nil
}

// CreatePanel inserts a panel. A negative OrderIndex appends it after the
// last panel of its scene.
func (r *Repository) CreatePanel(ctx context.Context, p domain.Panel) (domain.Panel, error) {
	if err := p.Validate(); err != nil {
		return domain.Panel{}, err
	}
	if p.ID == "" {
		p.ID = r.newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if p.OrderIndex < 0 {
			if err := tx.QueryRowContext(ctx, r.rebind(`SELECT COALESCE(MAX(order_index) + 1, 0) FROM panels WHERE scene_id = ?`), p.SceneID).Scan(&p.OrderIndex); err != nil {
				return fmt.Errorf("next panel index: %w", err)
			}
		}
		return r.insertPanel(ctx, tx, p)
	})
	if err != nil {
		return domain.Panel{}, err
	}
	return p, nil
}

func (r *Repository) insertPanel(ctx context.Context, q querier, p domain.Panel) error {
	args, err := panelArgs(p)
	if err != nil {
		return err
	}
	args = append([]any{p.ID, p.SceneID}, append(args, r.ts(p.CreatedAt))...)
	if _, err := q.ExecContext(ctx, r.rebind(`INSERT INTO panels (`+panelCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`), args...); err != nil {
		return fmt.Errorf("insert panel: %w", err)
	}
	return nil
}

func (r *Repository) GetPanel(ctx context.Context, id string) (domain.Panel, error) {
	p, err := scanPanel(r.db.QueryRowContext(ctx, r.rebind(`SELECT `+panelCols+` FROM panels WHERE id = ?`), id))
	if err != nil {
		return domain.Panel{}, notFound("get panel", err)
	}
	return p, nil
}

// ListPanels returns the panels of a scene in reading order.
func (r *Repository) ListPanels(ctx context.Context, sceneID string) ([]domain.Panel, error) {
	return r.queryPanels(ctx, r.db, `SELECT `+panelCols+` FROM panels WHERE scene_id = ? ORDER BY order_index, created_at`, sceneID)
}

func (r *Repository) queryPanels(ctx context.Context, q querier, query string, args ...any) (_ []domain.Panel, err error) {
	rows, err := q.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list panels: %w", err)
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()
	out := []domain.Panel{}
	for rows.Next() {
		p, err := scanPanel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan panel: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) UpdatePanel(ctx context.Context, p domain.Panel) (domain.Panel, error) {
	if err := p.Validate(); err != nil {
		return domain.Panel{}, err
	}
	args, err := panelArgs(p)
	if err != nil {
		return domain.Panel{}, err
	}
	if err := r.exec(ctx, r.db, "update panel",
		`UPDATE panels SET shape = ?, x = ?, y = ?, width = ?, height = ?, points = ?, brush_strokes = ?,
		center_x = ?, center_y = ?, radius_x = ?, radius_y = ?, order_index = ? WHERE id = ?`,
		append(args, p.ID)...); err != nil {
		return domain.Panel{}, err
	}
	return r.GetPanel(ctx, p.ID)
}

// ReorderPanels writes the order index of each panel in one transaction.
func (r *Repository) ReorderPanels(ctx context.Context, panels []domain.Panel) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range panels {
			if err := r.exec(ctx, tx, "reorder panel", `UPDATE panels SET order_index = ? WHERE id = ?`, p.OrderIndex, p.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplacePanels makes the stored panels of a scene equal to panels. Texts
// and audio of panels that disappear are removed with them.
func (r *Repository) ReplacePanels(ctx context.Context, sceneID string, panels []domain.Panel) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		current, err := r.queryPanels(ctx, tx, `SELECT `+panelCols+` FROM panels WHERE scene_id = ?`, sceneID)
		if err != nil {
			return err
		}
		keep := map[string]bool{}
		for _, p := range panels {
			keep[p.ID] = true
		}
		for _, p := range current {
			if !keep[p.ID] {
				if err := r.deletePanel(ctx, tx, p.ID); err != nil {
					return err
				}
			}
		}
		for _, p := range panels {
			p.SceneID = sceneID
			if err := p.Validate(); err != nil {
				return err
			}
			args, err := panelArgs(p)
			if err != nil {
				return err
			}
			err = r.exec(ctx, tx, "replace panel",
				`UPDATE panels SET shape = ?, x = ?, y = ?, width = ?, height = ?, points = ?, brush_strokes = ?,
				center_x = ?, center_y = ?, radius_x = ?, radius_y = ?, order_index = ? WHERE id = ? AND scene_id = ?`,
				append(args, p.ID, sceneID)...)
			switch {
			case errors.Is(err, ErrNotFound):
				if p.CreatedAt.IsZero() {
					p.CreatedAt = r.now()
				}
				if err := r.insertPanel(ctx, tx, p); err != nil {
					return err
				}
			case err != nil:
				return err
			}
		}
		return nil
	})
}

func (r *Repository) DeletePanel(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error { return r.deletePanel(ctx, tx, id) })
}

func (r *Repository) deletePanel(ctx context.Context, q querier, id string) error {
	steps := []string{
		`DELETE FROM panel_text_contents WHERE panel_text_id IN (SELECT id FROM panel_texts WHERE panel_id = ?)`,
		`DELETE FROM panel_texts WHERE panel_id = ?`,
		`DELETE FROM story_audio WHERE panel_id = ?`,
	}
	for _, s := range steps {
		if _, err := q.ExecContext(ctx, r.rebind(s), id); err != nil {
			return fmt.Errorf("delete panel rows: %w", err)
		}
	}
	return r.exec(ctx, q, "delete panel", `DELETE FROM panels WHERE id = ?`, id)
}
