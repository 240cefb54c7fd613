/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"fmt"

	"instory/internal/domain"
	"instory/internal/textlayout"
	"instory/internal/vector"
)

// Placement asks for a new text overlay. Text is the initial content in
// Language; Anchor, when set, is the point the author clicked relative to
// the panel's bounding box.
type Placement struct {
	Text     domain.PanelText `json:"panel_text"`
	Content  string           `json:"text"`
	Language string           `json:"language_code"`
	Anchor   *vector.Pt       `json:"anchor,omitempty"`
	RTL      bool             `json:"rtl,omitempty"`
}

// PlaceText creates an overlay at a free spot of its panel, avoiding the
// overlays already there. Positions are relative to the panel's bounding box.
func (e *Editor) PlaceText(ctx context.Context, pl Placement) (domain.PanelText, error) {
	t := pl.Text
	if err := t.Validate(); err != nil {
		return domain.PanelText{}, err
	}
	if t.BubbleType == "" {
		t.BubbleType = domain.BubbleSpeech
	}
	if t.Style == (domain.TextStyle{}) {
		t.Style = textlayout.PresetFor(t.BubbleType)
	}
	panel, err := e.store.GetPanel(ctx, t.PanelID)
	if err != nil {
		return domain.PanelText{}, err
	}
	obstacles, err := e.textBoxes(ctx, t.PanelID, "")
	if err != nil {
		return domain.PanelText{}, err
	}
	w, h, err := textlayout.MeasureBox(e.layouter, t.Style, textlayout.RenderedText(pl.Content, t.BubbleType), t.Width)
	if err != nil {
		return domain.PanelText{}, fmt.Errorf("measure text: %w", err)
	}
	box := vector.Bounds(panel)
	opts := vector.PlacementOptions{RTL: pl.RTL, Padding: placementPad}
	if pl.Anchor != nil {
		opts.Anchor, opts.HasAnchor = *pl.Anchor, true
	}
	spot, _ := vector.SuggestTextPlacement(vector.R(0, 0, box.W, box.H), vector.Size{W: w, H: h}, obstacles, opts)
	t.PositionX = vector.FloatRound(spot.X+placementPad, 2)
	t.PositionY = vector.FloatRound(spot.Y+placementPad, 2)
	t.Width = vector.FloatRound(min(w, max(0, spot.W-2*placementPad)), 2)
	t.OrderIndex = -1
	if pl.Content != "" && pl.Language == "" {
		return domain.PanelText{}, fmt.Errorf("%w: text content needs a language", domain.ErrInvalid)
	}
	created, err := e.store.CreateText(ctx, t)
	if err != nil {
		return domain.PanelText{}, err
	}
	if pl.Content != "" {
		c := domain.PanelTextContent{PanelTextID: created.ID, LanguageCode: pl.Language, Text: pl.Content}
		if _, err := e.store.PutContent(ctx, c); err != nil {
			return created, fmt.Errorf("store text content: %w", err)
		}
	}
	return created, nil
}

// SnapText moves an overlay to (x, y) and snaps it to the panel edges and
// to sibling overlays. It returns the stored overlay and the guides to draw.
func (e *Editor) SnapText(ctx context.Context, textID string, x, y float64) (domain.PanelText, []vector.GuideLine, error) {
	t, err := e.store.GetText(ctx, textID)
	if err != nil {
		return domain.PanelText{}, nil, err
	}
	panel, err := e.store.GetPanel(ctx, t.PanelID)
	if err != nil {
		return domain.PanelText{}, nil, err
	}
	siblings, err := e.textBoxes(ctx, t.PanelID, t.ID)
	if err != nil {
		return domain.PanelText{}, nil, err
	}
	_, h, err := e.measure(ctx, t)
	if err != nil {
		return domain.PanelText{}, nil, err
	}
	box := vector.Bounds(panel)
	anchors := []vector.Anchor{{Rect: vector.R(0, 0, box.W, box.H), Weight: 2}}
	for _, r := range siblings {
		anchors = append(anchors, vector.Anchor{Rect: r, Weight: 1})
	}
	snapped, guides := vector.ComputeSmartGuides(vector.R(x, y, t.Width, h), anchors, e.snap)
	t.PositionX, t.PositionY = snapped.X, snapped.Y
	stored, err := e.store.UpdateText(ctx, t)
	if err != nil {
		return domain.PanelText{}, nil, err
	}
	return stored, guides, nil
}

// textBoxes returns the boxes of a panel's overlays except skip.
func (e *Editor) textBoxes(ctx context.Context, panelID, skip string) ([]vector.Rect, error) {
	texts, err := e.store.ListTexts(ctx, panelID)
	if err != nil {
		return nil, err
	}
	var out []vector.Rect
	for _, t := range texts {
		if t.ID == skip {
			continue
		}
		w, h, err := e.measure(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, vector.R(t.PositionX, t.PositionY, w, h))
	}
	return out, nil
}

// measure sizes an overlay by its longest translation.
func (e *Editor) measure(ctx context.Context, t domain.PanelText) (float64, float64, error) {
	contents, err := e.store.ListContents(ctx, t.ID)
	if err != nil {
		return 0, 0, err
	}
	longest := ""
	for _, c := range contents {
		if len(c.Text) > len(longest) {
			longest = c.Text
		}
	}
	w, h, err := textlayout.MeasureBox(e.layouter, t.Style, textlayout.RenderedText(longest, t.BubbleType), t.Width)
	if err != nil {
		return 0, 0, fmt.Errorf("measure text %s: %w", t.ID, err)
	}
	return w, h, nil
}
