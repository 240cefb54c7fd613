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

const textCols = `id, panel_id, position_x, position_y, width, bubble_type, style, order_index`

func scanText(row interface{ Scan(...any) error }) (domain.PanelText, error) {
	var (
		t     domain.PanelText
		style []byte
	)
	if err := row.Scan(&t.ID, &t.PanelID, &t.PositionX, &t.PositionY, &t.Width, &t.BubbleType, dbJSON{&style}, &t.OrderIndex); err != nil {
		return t, err
	}
	t.Style = domain.DefaultTextStyle()
	if len(style) > 0 {
		if err := json.Unmarshal(style, &t.Style); err != nil {
			return t, fmt.Errorf("decode style: %w", err)
		}
	}
	return t, nil
}

// CreateText inserts a text box. A zero style gets the default style; a
// negative OrderIndex appends it.
func (r *Repository) CreateText(ctx context.Context, t domain.PanelText) (domain.PanelText, error) {
	if t.BubbleType == "" {
		t.BubbleType = domain.BubbleSpeech
	}
	if err := t.Validate(); err != nil {
		return domain.PanelText{}, err
	}
	if t.ID == "" {
		t.ID = r.newID()
	}
	if t.Style == (domain.TextStyle{}) {
		t.Style = domain.DefaultTextStyle()
	}
	style, err := json.Marshal(t.Style)
	if err != nil {
		return domain.PanelText{}, fmt.Errorf("encode style: %w", err)
	}
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		if t.OrderIndex < 0 {
			if err := tx.QueryRowContext(ctx, r.rebind(`SELECT COALESCE(MAX(order_index) + 1, 0) FROM panel_texts WHERE panel_id = ?`), t.PanelID).Scan(&t.OrderIndex); err != nil {
				return fmt.Errorf("next text index: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO panel_texts (`+textCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			t.ID, t.PanelID, t.PositionX, t.PositionY, t.Width, t.BubbleType, string(style), t.OrderIndex)
		if err != nil {
			return fmt.Errorf("insert text: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.PanelText{}, err
	}
	return t, nil
}

func (r *Repository) GetText(ctx context.Context, id string) (domain.PanelText, error) {
	t, err := scanText(r.db.QueryRowContext(ctx, r.rebind(`SELECT `+textCols+` FROM panel_texts WHERE id = ?`), id))
	if err != nil {
		return domain.PanelText{}, notFound("get text", err)
	}
	return t, nil
}

// ListTexts returns the text boxes of a panel in order.
func (r *Repository) ListTexts(ctx context.Context, panelID string) ([]domain.PanelText, error) {
	return r.queryTexts(ctx, `SELECT `+textCols+` FROM panel_texts WHERE panel_id = ? ORDER BY order_index`, panelID)
}

// ListStoryTexts returns all text boxes of a story.
func (r *Repository) ListStoryTexts(ctx context.Context, storyID string) ([]domain.PanelText, error) {
	return r.queryTexts(ctx, `SELECT `+textCols+` FROM panel_texts WHERE panel_id IN (
		SELECT p.id FROM panels p JOIN scenes s ON s.id = p.scene_id WHERE s.story_id = ?) ORDER BY panel_id, order_index`, storyID)
}

func (r *Repository) queryTexts(ctx context.Context, query string, args ...any) (_ []domain.PanelText, err error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list texts: %w", err)
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()
	out := []domain.PanelText{}
	for rows.Next() {
		t, err := scanText(rows)
		if err != nil {
			return nil, fmt.Errorf("scan text: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateText(ctx context.Context, t domain.PanelText) (domain.PanelText, error) {
	if err := t.Validate(); err != nil {
		return domain.PanelText{}, err
	}
	style, err := json.Marshal(t.Style)
	if err != nil {
		return domain.PanelText{}, fmt.Errorf("encode style: %w", err)
	}
	if err := r.exec(ctx, r.db, "update text",
		`UPDATE panel_texts SET position_x = ?, position_y = ?, width = ?, bubble_type = ?, style = ?, order_index = ? WHERE id = ?`,
		t.PositionX, t.PositionY, t.Width, t.BubbleType, string(style), t.OrderIndex, t.ID); err != nil {
		return domain.PanelText{}, err
	}
	return r.GetText(ctx, t.ID)
}

func (r *Repository) DeleteText(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM panel_text_contents WHERE panel_text_id = ?`), id); err != nil {
			return fmt.Errorf("delete text contents: %w", err)
		}
		return r.exec(ctx, tx, "delete text", `DELETE FROM panel_texts WHERE id = ?`, id)
	})
}

const contentCols = `id, panel_text_id, language_code, text, style_overrides`

func scanContent(row interface{ Scan(...any) error }) (domain.PanelTextContent, error) {
	var (
		c   domain.PanelTextContent
		ovr []byte
	)
	if err := row.Scan(&c.ID, &c.PanelTextID, &c.LanguageCode, &c.Text, dbJSON{&ovr}); err != nil {
		return c, err
	}
	if len(ovr) > 0 && string(ovr) != "null" {
		var o domain.TextOverrides
		if err := json.Unmarshal(ovr, &o); err != nil {
			return c, fmt.Errorf("decode overrides: %w", err)
		}
		if !o.IsZero() {
			c.Overrides = &o
		}
	}
	return c, nil
}

// PutContent inserts or replaces the text of a box in one language.
func (r *Repository) PutContent(ctx context.Context, c domain.PanelTextContent) (domain.PanelTextContent, error) {
	code, err := domain.NormalizeLanguage(c.LanguageCode)
	if err != nil {
		return domain.PanelTextContent{}, err
	}
	c.LanguageCode = code
	if err := c.Validate(); err != nil {
		return domain.PanelTextContent{}, err
	}
	var ovr any
	if c.Overrides != nil && !c.Overrides.IsZero() {
		b, err := json.Marshal(c.Overrides)
		if err != nil {
			return domain.PanelTextContent{}, fmt.Errorf("encode overrides: %w", err)
		}
		ovr = string(b)
	}
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx, r.rebind(`SELECT id FROM panel_text_contents WHERE panel_text_id = ? AND language_code = ?`), c.PanelTextID, c.LanguageCode).Scan(&existing)
		switch {
		case err == nil:
			c.ID = existing
			_, err = tx.ExecContext(ctx, r.rebind(`UPDATE panel_text_contents SET text = ?, style_overrides = ? WHERE id = ?`), c.Text, ovr, c.ID)
		case errors.Is(err, sql.ErrNoRows):
			if c.ID == "" {
				c.ID = r.newID()
			}
			_, err = tx.ExecContext(ctx, r.rebind(`INSERT INTO panel_text_contents (`+contentCols+`) VALUES (?, ?, ?, ?, ?)`), c.ID, c.PanelTextID, c.LanguageCode, c.Text, ovr)
		}
		if err != nil {
			return fmt.Errorf("put content: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.PanelTextContent{}, err
	}
	return c, nil
}

// ListContents returns every language of a text box.
func (r *Repository) ListContents(ctx context.Context, panelTextID string) ([]domain.PanelTextContent, error) {
	return r.queryContents(ctx, `SELECT `+contentCols+` FROM panel_text_contents WHERE panel_text_id = ? ORDER BY language_code`, panelTextID)
}

// ListStoryContents returns every text content of a story.
func (r *Repository) ListStoryContents(ctx context.Context, storyID string) ([]domain.PanelTextContent, error) {
	return r.queryContents(ctx, `SELECT `+contentCols+` FROM panel_text_contents WHERE panel_text_id IN (
		SELECT t.id FROM panel_texts t JOIN panels p ON p.id = t.panel_id JOIN scenes s ON s.id = p.scene_id WHERE s.story_id = ?)
		ORDER BY panel_text_id, language_code`, storyID)
}

func (r *Repository) queryContents(ctx context.Context, query string, args ...any) (_ []domain.PanelTextContent, err error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list contents: %w", err)
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()
	out := []domain.PanelTextContent{}
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteContent(ctx context.Context, panelTextID, lang string) error {
	return r.exec(ctx, r.db, "delete content", `DELETE FROM panel_text_contents WHERE panel_text_id = ? AND language_code = ?`, panelTextID, lang)
}
