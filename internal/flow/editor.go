/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"instory/internal/domain"
	applog "instory/internal/log"
)

// DefaultDebounce is how long node moves settle before they are written.
const DefaultDebounce = 500 * time.Millisecond

// ErrClosed is returned by an editor after Close.
var ErrClosed = errors.New("flow editor closed")

// Store is the persistence the flow editor needs.
type Store interface {
	UpsertScenePositions(ctx context.Context, positions []domain.ScenePosition) error
	CreateChoice(ctx context.Context, c domain.Choice) (domain.Choice, error)
	GetChoice(ctx context.Context, id string) (domain.Choice, error)
	DeleteChoice(ctx context.Context, id string) error
	ListChoicesFrom(ctx context.Context, sceneID string) ([]domain.Choice, error)
	SetDecisionScene(ctx context.Context, sceneID string, decision bool) error
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Option configures an Editor.
type Option func(*Editor)

func WithDebounce(d time.Duration) Option { return func(e *Editor) { e.debounce = d } }
func WithScheduler(s Scheduler) Option    { return func(e *Editor) { e.sched = s } }

// WithErrorHandler receives failures of background position writes.
func WithErrorHandler(f func(error)) Option { return func(e *Editor) { e.onError = f } }

// Editor applies flow-editor gestures of one story to a Store. Node moves
// are collected and written together once they have been quiet for the
// debounce interval; every moved node is written, not only the last one.
type Editor struct {
	store    Store
	storyID  string
	debounce time.Duration
	sched    Scheduler
	onError  func(error)
	log      *slog.Logger

	mu      sync.Mutex
	pending map[string]domain.ScenePosition
	timer   Timer
	gen     uint64 // bumped on every reschedule and flush; stale callbacks compare it
	closed  bool
}

func NewEditor(store Store, storyID string, opts ...Option) *Editor {
	e := &Editor{
		store:    store,
		storyID:  storyID,
		debounce: DefaultDebounce,
		sched:    realScheduler{},
		pending:  map[string]domain.ScenePosition{},
		log:      applog.WithComponent("flow").With(slog.String("story_id", storyID)),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// MoveNodes records new node positions and restarts the debounce timer.
func (e *Editor) MoveNodes(moves ...domain.ScenePosition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	for _, m := range moves {
		m.StoryID = e.storyID
		e.pending[m.SceneID] = m
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.timer = e.sched.AfterFunc(e.debounce, func() { e.fire(gen) })
	return nil
}

// Pending returns the moves not yet written, by scene id.
func (e *Editor) Pending() []domain.ScenePosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sortedPositions(e.pending)
}

// fire flushes on behalf of the timer scheduled as gen. A callback that
// already ran when a newer move stopped its timer finds a newer gen and
// leaves the moves to the live timer.
func (e *Editor) fire(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.flush(ctx, gen); err != nil {
		e.log.Error("save node positions", slog.Any("err", err))
		if e.onError != nil {
			e.onError(err)
		}
	}
}

// Flush writes pending moves now. Failed moves stay pending so the next
// flush retries them unless newer moves replaced them.
func (e *Editor) Flush(ctx context.Context) error { return e.flush(ctx, 0) }

// flush writes pending moves; a non-zero gen must still be current.
func (e *Editor) flush(ctx context.Context, gen uint64) error {
	e.mu.Lock()
	if gen != 0 && gen != e.gen {
		e.mu.Unlock()
		return nil
	}
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	batch := sortedPositions(e.pending)
	e.pending = map[string]domain.ScenePosition{}
	e.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	if err := e.store.UpsertScenePositions(ctx, batch); err != nil {
		e.mu.Lock()
		for _, p := range batch {
			if _, newer := e.pending[p.SceneID]; !newer {
				e.pending[p.SceneID] = p
			}
		}
		e.mu.Unlock()
		return fmt.Errorf("upsert positions: %w", err)
	}
	e.log.Debug("saved node positions", slog.Int("count", len(batch)))
	return nil
}

// Close flushes pending moves and rejects further ones.
func (e *Editor) Close(ctx context.Context) error {
	err := e.Flush(ctx)
	e.mu.Lock()
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()
	return err
}

// Connect draws an edge from source to target. A non-empty label makes it a
// decision and flags the source scene as a decision scene; an empty label
// is the normal flow, of which a scene has at most one.
func (e *Editor) Connect(ctx context.Context, sourceID, targetID, label string) (domain.Choice, error) {
	label = strings.TrimSpace(label)
	c := domain.Choice{SceneID: sourceID, TargetSceneID: targetID, Text: label}
	if err := c.Validate(); err != nil {
		return domain.Choice{}, err
	}
	existing, err := e.store.ListChoicesFrom(ctx, sourceID)
	if err != nil {
		return domain.Choice{}, fmt.Errorf("list choices: %w", err)
	}
	for _, x := range existing {
		if label == "" && x.IsUnconditional() {
			return domain.Choice{}, domain.ErrDuplicateFlow
		}
		c.OrderIndex = max(c.OrderIndex, x.OrderIndex+1)
	}
	created, err := e.store.CreateChoice(ctx, c)
	if err != nil {
		return domain.Choice{}, fmt.Errorf("create choice: %w", err)
	}
	if label != "" {
		if err := e.store.SetDecisionScene(ctx, sourceID, true); err != nil {
			return created, fmt.Errorf("flag decision scene: %w", err)
		}
	}
	e.log.Info("connected scenes", slog.String("source", sourceID), slog.String("target", targetID), slog.Bool("decision", label != ""))
	return created, nil
}

// Disconnect removes an edge. When no labeled choice remains on the source
// scene it is no longer a decision scene.
func (e *Editor) Disconnect(ctx context.Context, choiceID string) error {
	c, err := e.store.GetChoice(ctx, choiceID)
	if err != nil {
		return fmt.Errorf("get choice: %w", err)
	}
	if err := e.store.DeleteChoice(ctx, choiceID); err != nil {
		return fmt.Errorf("delete choice: %w", err)
	}
	rest, err := e.store.ListChoicesFrom(ctx, c.SceneID)
	if err != nil {
		return fmt.Errorf("list choices: %w", err)
	}
	for _, x := range rest {
		if !x.IsUnconditional() {
			return nil
		}
	}
	if err := e.store.SetDecisionScene(ctx, c.SceneID, false); err != nil {
		return fmt.Errorf("clear decision scene: %w", err)
	}
	return nil
}

// ApplyAutoLayout computes a layered layout and replaces any pending moves
// with it.
func (e *Editor) ApplyAutoLayout(ctx context.Context, scenes []domain.Scene, choices []domain.Choice) ([]domain.ScenePosition, error) {
	positions := AutoLayout(scenes, choices)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	e.pending = map[string]domain.ScenePosition{}
	for _, p := range positions {
		p.StoryID = e.storyID
		e.pending[p.SceneID] = p
	}
	e.mu.Unlock()
	if err := e.Flush(ctx); err != nil {
		return nil, err
	}
	return positions, nil
}

func sortedPositions(m map[string]domain.ScenePosition) []domain.ScenePosition {
	out := make([]domain.ScenePosition, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SceneID < out[j].SceneID })
	return out
}
