/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package reader implements the reading state machine: which scene and panel
// is shown, which panels are revealed, and how choices move between scenes.
package reader

import (
	"errors"
	"fmt"
	"sort"

	"instory/internal/domain"
)

// Mode is the navigation mode of a reading session.
type Mode string

const (
	// ModeFocus zooms to one panel at a time.
	ModeFocus Mode = "focus"
	// ModePanelToPanel shows the whole scene and unmasks panels progressively.
	ModePanelToPanel Mode = "panel-to-panel"
)

func (m Mode) Valid() bool { return m == ModeFocus || m == ModePanelToPanel }

var (
	ErrNoStartScene   = errors.New("story has no start scene")
	ErrSceneNotFound  = errors.New("scene not found")
	ErrEmptyScene     = errors.New("scene has no panels")
	ErrStoryEnded     = errors.New("story has ended")
	ErrAwaitingChoice = errors.New("waiting for a choice")
	ErrNotChoosing    = errors.New("no choice is offered")
	ErrUnknownChoice  = errors.New("choice is not offered")
	ErrInvalidMode    = errors.New("invalid reading mode")
	ErrNoLanguage     = errors.New("language is not available")
)

// EventKind says what a navigation step did.
type EventKind string

const (
	EventAdvanced     EventKind = "advanced"
	EventShowChoices  EventKind = "show_choices"
	EventSceneChanged EventKind = "scene_changed"
	EventEnded        EventKind = "ended"
	EventRestarted    EventKind = "restarted"
)

// Event describes the position after a navigation step.
type Event struct {
	Kind       EventKind `json:"kind"`
	SceneID    string    `json:"scene_id"`
	PanelIndex int       `json:"panel_index"`
	ChoiceID   string    `json:"choice_id,omitempty"`
}

// HistoryEntry is a position saved before a choice was followed.
type HistoryEntry struct {
	SceneID    string `json:"scene_id"`
	PanelIndex int    `json:"panel_index"`
	Revealed   []int  `json:"revealed"`
}

// Session is one reader's position in a story. It is not safe for concurrent
// use; callers that share a session serialize access.
type Session struct {
	g        *domain.StoryGraph
	mode     Mode
	scene    domain.Scene
	panels   []domain.Panel
	panel    int
	revealed map[int]bool
	history  []HistoryEntry
	ended    bool
	choices  []domain.Choice // labeled choices on offer, nil when not choosing
}

// NewSession opens the story at its start scene.
func NewSession(g *domain.StoryGraph, mode Mode) (*Session, error) {
	if g == nil {
		return nil, ErrNoStartScene
	}
	if mode == "" {
		mode = ModeFocus
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	s := &Session{g: g, mode: mode}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) start() error {
	start, ok := s.g.StartScene()
	if !ok {
		return ErrNoStartScene
	}
	return s.enter(start.ID)
}

// enter switches to the first panel of a scene. The session is unchanged on error.
func (s *Session) enter(sceneID string) error {
	sc, ok := s.g.SceneByID(sceneID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSceneNotFound, sceneID)
	}
	panels := s.g.PanelsOf(sceneID)
	if len(panels) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyScene, sceneID)
	}
	s.scene = sc
	s.panels = panels
	s.panel = 0
	s.revealed = map[int]bool{0: true}
	s.choices = nil
	s.ended = false
	return nil
}

// GoNext moves forward. On the last panel of a scene it offers the labeled
// choices if there are any, follows the unconditional choice if there is
// one, and otherwise ends the story.
func (s *Session) GoNext() (Event, error) {
	switch {
	case s.ended:
		return s.event(EventEnded, ""), ErrStoryEnded
	case s.choices != nil:
		return s.event(EventShowChoices, ""), ErrAwaitingChoice
	}
	if s.panel < len(s.panels)-1 {
		s.panel++
		if s.mode == ModePanelToPanel {
			s.revealed[s.panel] = true
		}
		return s.event(EventAdvanced, ""), nil
	}

	var labeled []domain.Choice
	var flow *domain.Choice
	for _, c := range s.g.ChoicesFrom(s.scene.ID) {
		if c.IsUnconditional() {
			if flow == nil {
				flow = &c
			}
			continue
		}
		labeled = append(labeled, c)
	}
	switch {
	case len(labeled) > 0:
		s.choices = labeled
		return s.event(EventShowChoices, ""), nil
	case flow != nil:
		if err := s.enter(flow.TargetSceneID); err != nil {
			return s.event(EventAdvanced, ""), err
		}
		return s.event(EventSceneChanged, flow.ID), nil
	default:
		s.ended = true
		return s.event(EventEnded, ""), nil
	}
}

// Choose follows one of the offered choices. The current position is pushed
// on the history stack first.
func (s *Session) Choose(choiceID string) (Event, error) {
	if s.choices == nil {
		return s.event(EventAdvanced, ""), ErrNotChoosing
	}
	var picked *domain.Choice
	for i := range s.choices {
		if s.choices[i].ID == choiceID {
			picked = &s.choices[i]
			break
		}
	}
	if picked == nil {
		return s.event(EventShowChoices, ""), fmt.Errorf("%w: %s", ErrUnknownChoice, choiceID)
	}
	entry := HistoryEntry{SceneID: s.scene.ID, PanelIndex: s.panel, Revealed: s.Revealed()}
	target := *picked
	if err := s.enter(target.TargetSceneID); err != nil {
		return s.event(EventShowChoices, ""), err
	}
	s.history = append(s.history, entry)
	return s.event(EventSceneChanged, target.ID), nil
}

// Restart returns to the start scene and clears the history.
func (s *Session) Restart() (Event, error) {
	if err := s.start(); err != nil {
		return s.event(EventRestarted, ""), err
	}
	s.history = nil
	return s.event(EventRestarted, ""), nil
}

// SetMode switches the navigation mode keeping the current panel. Entering
// panel-to-panel reveals every panel up to the current one.
func (s *Session) SetMode(m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, m)
	}
	s.mode = m
	if m == ModePanelToPanel {
		for i := 0; i <= s.panel; i++ {
			s.revealed[i] = true
		}
	}
	return nil
}

// ToggleMode switches between the two modes.
func (s *Session) ToggleMode() Mode {
	next := ModePanelToPanel
	if s.mode == ModePanelToPanel {
		next = ModeFocus
	}
	_ = s.SetMode(next)
	return next
}

func (s *Session) event(k EventKind, choiceID string) Event {
	return Event{Kind: k, SceneID: s.scene.ID, PanelIndex: s.panel, ChoiceID: choiceID}
}

func (s *Session) Graph() *domain.StoryGraph { return s.g }
func (s *Session) Mode() Mode                { return s.mode }
func (s *Session) Scene() domain.Scene       { return s.scene }
func (s *Session) PanelIndex() int           { return s.panel }
func (s *Session) PanelCount() int           { return len(s.panels) }
func (s *Session) Ended() bool               { return s.ended }
func (s *Session) Choosing() bool            { return s.choices != nil }

// Panels returns the panels of the current scene in reading order.
func (s *Session) Panels() []domain.Panel { return append([]domain.Panel(nil), s.panels...) }

// CurrentPanel returns the panel being read.
func (s *Session) CurrentPanel() domain.Panel { return s.panels[s.panel] }

// Choices returns the labeled choices on offer.
func (s *Session) Choices() []domain.Choice { return append([]domain.Choice(nil), s.choices...) }

// IsRevealed reports whether panel i is unmasked.
func (s *Session) IsRevealed(i int) bool { return s.revealed[i] }

// Revealed returns the revealed panel indexes in ascending order.
func (s *Session) Revealed() []int {
	out := make([]int, 0, len(s.revealed))
	for i := range s.revealed {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// History returns a copy of the history stack, oldest first.
func (s *Session) History() []HistoryEntry {
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}
