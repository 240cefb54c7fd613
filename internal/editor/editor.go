/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor applies scene-editor gestures to stored panels and text
// overlays. Every panel edit first records the scene's panel list so it can
// be undone.
package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"instory/internal/domain"
	applog "instory/internal/log"
	"instory/internal/textlayout"
	"instory/internal/undo"
	"instory/internal/vector"
)

// ErrNoShape is returned when a gesture does not produce a usable panel.
var ErrNoShape = errors.New("gesture did not produce a panel")

// placementPad is the clearance kept around a suggested text box.
const placementPad = 8.0

// Store is the persistence the editor needs.
type Store interface {
	ListPanels(ctx context.Context, sceneID string) ([]domain.Panel, error)
	GetPanel(ctx context.Context, id string) (domain.Panel, error)
	CreatePanel(ctx context.Context, p domain.Panel) (domain.Panel, error)
	UpdatePanel(ctx context.Context, p domain.Panel) (domain.Panel, error)
	ReorderPanels(ctx context.Context, panels []domain.Panel) error
	ReplacePanels(ctx context.Context, sceneID string, panels []domain.Panel) error
	DeletePanel(ctx context.Context, id string) error

	GetText(ctx context.Context, id string) (domain.PanelText, error)
	ListTexts(ctx context.Context, panelID string) ([]domain.PanelText, error)
	CreateText(ctx context.Context, t domain.PanelText) (domain.PanelText, error)
	UpdateText(ctx context.Context, t domain.PanelText) (domain.PanelText, error)
	ListContents(ctx context.Context, panelTextID string) ([]domain.PanelTextContent, error)
	PutContent(ctx context.Context, c domain.PanelTextContent) (domain.PanelTextContent, error)
}

// Option configures an Editor.
type Option func(*Editor)

func WithClock(now func() time.Time) Option { return func(e *Editor) { e.now = now } }

// WithRowTolerance sets how far panel centers may differ vertically and
// still count as one row when reordering.
func WithRowTolerance(v float64) Option { return func(e *Editor) { e.rowTolerance = v } }

func WithLayouter(l textlayout.Layouter) Option { return func(e *Editor) { e.layouter = l } }

func WithSnap(o vector.SnapOptions) Option { return func(e *Editor) { e.snap = o } }

// Editor is shared by all scenes of a server. Edits are serialized so a
// recorded state always matches the rows it was read from.
type Editor struct {
	store        Store
	undo         *undo.Manager
	now          func() time.Time
	rowTolerance float64
	layouter     textlayout.Layouter
	snap         vector.SnapOptions
	log          *slog.Logger

	mu sync.Mutex
}

func New(store Store, cfg undo.Config, opts ...Option) *Editor {
	e := &Editor{
		store:        store,
		undo:         undo.NewManager(cfg),
		now:          time.Now,
		rowTolerance: vector.DefaultRowTolerance,
		layouter:     textlayout.NewWordWrap(nil),
		snap:         vector.SnapOptions{Threshold: 6, SnapToEdges: true, SnapToCenters: true},
		log:          applog.WithComponent("editor"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Gesture is recorded pointer input for one drawing tool. Rectangle,
// ellipse and brush gestures are a drag through Points; polygon points are
// clicks and the last one is the closing double click.
type Gesture struct {
	Tool      vector.Tool `json:"tool"`
	Points    []vector.Pt `json:"points"`
	BrushSize float64     `json:"brush_size,omitempty"`
}

// Draw replays a gesture through a Drawer and appends the resulting panel.
func (e *Editor) Draw(ctx context.Context, sceneID string, g Gesture) (domain.Panel, error) {
	if len(g.Points) == 0 {
		return domain.Panel{}, ErrNoShape
	}
	d := vector.NewDrawer(sceneID, g.Tool)
	if g.BrushSize > 0 {
		d.BrushSize = g.BrushSize
	}
	var (
		p  domain.Panel
		ok bool
	)
	last := g.Points[len(g.Points)-1]
	switch g.Tool {
	case vector.ToolPolygon:
		for _, pt := range g.Points[:len(g.Points)-1] {
			d.Click(pt)
		}
		p, ok = d.DoubleClick(last)
	case vector.ToolRectangle, vector.ToolEllipse, vector.ToolBrush:
		d.PointerDown(g.Points[0])
		for _, pt := range g.Points[1:] {
			d.PointerMove(pt)
		}
		p, ok = d.PointerUp(last)
	default:
		return domain.Panel{}, fmt.Errorf("%w: unknown tool %q", domain.ErrInvalid, g.Tool)
	}
	if !ok {
		return domain.Panel{}, ErrNoShape
	}
	return e.InsertPanel(ctx, p)
}

// InsertPanel appends p after the last panel of its scene.
func (e *Editor) InsertPanel(ctx context.Context, p domain.Panel) (domain.Panel, error) {
	if err := p.Validate(); err != nil {
		return domain.Panel{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkpoint(ctx, p.SceneID); err != nil {
		return domain.Panel{}, err
	}
	p.ID = ""
	p.OrderIndex = -1
	created, err := e.store.CreatePanel(ctx, p)
	if err != nil {
		return domain.Panel{}, fmt.Errorf("insert panel: %w", err)
	}
	e.log.Debug("panel inserted", slog.String("scene_id", p.SceneID), slog.String("panel_id", created.ID), slog.Int("order", created.OrderIndex))
	return created, nil
}

// MovePanel shifts a panel by (dx, dy) in scene image pixels.
func (e *Editor) MovePanel(ctx context.Context, panelID string, dx, dy float64) (domain.Panel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.store.GetPanel(ctx, panelID)
	if err != nil {
		return domain.Panel{}, err
	}
	if err := e.checkpoint(ctx, p.SceneID); err != nil {
		return domain.Panel{}, err
	}
	return e.store.UpdatePanel(ctx, vector.TranslatePanel(p, dx, dy))
}

// DeletePanel removes a panel with its texts and audio. Undo brings the
// panel back but not its texts.
func (e *Editor) DeletePanel(ctx context.Context, panelID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.store.GetPanel(ctx, panelID)
	if err != nil {
		return err
	}
	if err := e.checkpoint(ctx, p.SceneID); err != nil {
		return err
	}
	return e.store.DeletePanel(ctx, panelID)
}

// Reorder rewrites the order of a scene's panels into reading order.
func (e *Editor) Reorder(ctx context.Context, sceneID string, rtl bool) ([]domain.Panel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	panels, err := e.store.ListPanels(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if err := e.push(sceneID, panels); err != nil {
		return nil, err
	}
	sorted := vector.SortReadingOrder(panels, rtl, e.rowTolerance)
	if err := e.store.ReorderPanels(ctx, sorted); err != nil {
		return nil, fmt.Errorf("reorder panels: %w", err)
	}
	return sorted, nil
}

// Undo restores the scene's panels to the state before the last edit. ok
// is false when there is nothing to undo.
func (e *Editor) Undo(ctx context.Context, sceneID string) (_ []domain.Panel, ok bool, err error) {
	return e.travel(ctx, sceneID, e.undo.Undo)
}

func (e *Editor) Redo(ctx context.Context, sceneID string) (_ []domain.Panel, ok bool, err error) {
	return e.travel(ctx, sceneID, e.undo.Redo)
}

// History reports whether undo and redo are available for a scene.
func (e *Editor) History(sceneID string) (canUndo, canRedo bool) {
	return e.undo.CanUndo(sceneID), e.undo.CanRedo(sceneID)
}

// Forget drops the history of a deleted scene.
func (e *Editor) Forget(sceneID string) { e.undo.ClearScene(sceneID) }

func (e *Editor) travel(ctx context.Context, sceneID string, step func(undo.Snapshot) (undo.Snapshot, bool)) ([]domain.Panel, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, err := e.capture(ctx, sceneID)
	if err != nil {
		return nil, false, err
	}
	s, ok := step(cur)
	if !ok {
		return nil, false, nil
	}
	var panels []domain.Panel
	if err := json.Unmarshal(s.Blob, &panels); err != nil {
		return nil, false, fmt.Errorf("decode panel snapshot: %w", err)
	}
	if err := e.store.ReplacePanels(ctx, sceneID, panels); err != nil {
		return nil, false, fmt.Errorf("restore panels: %w", err)
	}
	out, err := e.store.ListPanels(ctx, sceneID)
	return out, true, err
}

func (e *Editor) capture(ctx context.Context, sceneID string) (undo.Snapshot, error) {
	panels, err := e.store.ListPanels(ctx, sceneID)
	if err != nil {
		return undo.Snapshot{}, err
	}
	return e.snapshot(sceneID, panels)
}

func (e *Editor) snapshot(sceneID string, panels []domain.Panel) (undo.Snapshot, error) {
	blob, err := json.Marshal(panels)
	if err != nil {
		return undo.Snapshot{}, fmt.Errorf("encode panel snapshot: %w", err)
	}
	return undo.Snapshot{SceneID: sceneID, Blob: blob, TS: e.now()}, nil
}

func (e *Editor) checkpoint(ctx context.Context, sceneID string) error {
	s, err := e.capture(ctx, sceneID)
	if err != nil {
		return err
	}
	e.undo.Push(s)
	return nil
}

func (e *Editor) push(sceneID string, panels []domain.Panel) error {
	s, err := e.snapshot(sceneID, panels)
	if err != nil {
		return err
	}
	e.undo.Push(s)
	return nil
}
