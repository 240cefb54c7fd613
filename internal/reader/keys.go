/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package reader

import (
	"fmt"
	"slices"
	"strings"
)

// Action is what a key press asks the reader to do.
type Action string

const (
	ActionNone         Action = ""
	ActionNext         Action = "next"
	ActionFullscreen   Action = "fullscreen"
	ActionToggleMode   Action = "toggle_mode"
	ActionLanguageMenu Action = "language_menu"
	ActionToggleMute   Action = "toggle_mute"
	ActionEscape       Action = "escape"
)

// Keymap maps KeyboardEvent.key values to actions. Letter keys are matched
// case-insensitively. ArrowLeft and ArrowUp are deliberately unmapped since
// the reader only moves forward.
type Keymap map[string]Action

// DefaultKeymap returns the reader's keyboard shortcuts.
func DefaultKeymap() Keymap {
	return Keymap{
		"ArrowRight": ActionNext,
		"ArrowDown":  ActionNext,
		" ":          ActionNext,
		"Spacebar":   ActionNext,
		"Enter":      ActionNext,
		"f":          ActionFullscreen,
		"m":          ActionToggleMode,
		"l":          ActionLanguageMenu,
		"s":          ActionToggleMute,
		"Escape":     ActionEscape,
	}
}

// Lookup returns the action bound to key.
func (k Keymap) Lookup(key string) Action {
	if a, ok := k[key]; ok {
		return a
	}
	if len(key) == 1 {
		return k[strings.ToLower(key)]
	}
	return ActionNone
}

// AudioSink receives the reading position and mute state; the audio
// manager implements it.
type AudioSink interface {
	Update(sceneID, panelID string)
	SetMuted(muted bool)
}

// Controller couples a session with the reader's overlay state and applies
// key presses to both.
type Controller struct {
	Session *Session
	Keys    Keymap
	Audio   AudioSink
	// OnEvent, when set, observes every navigation event.
	OnEvent func(Event)

	Fullscreen       bool
	LanguageMenuOpen bool
	Muted            bool
	ExitRequested    bool
	Language         string
}

// NewController wraps a session. lang is the initial text language, usually
// the story default.
func NewController(s *Session, lang string, audio AudioSink) *Controller {
	c := &Controller{Session: s, Keys: DefaultKeymap(), Audio: audio, Language: lang}
	c.syncAudio()
	return c
}

// HandleKey applies one key press and returns the action it mapped to.
func (c *Controller) HandleKey(key string) (Action, error) {
	a := c.Keys.Lookup(key)
	switch a {
	case ActionNext:
		return a, c.Next()
	case ActionFullscreen:
		c.Fullscreen = !c.Fullscreen
	case ActionToggleMode:
		c.Session.ToggleMode()
	case ActionLanguageMenu:
		c.LanguageMenuOpen = !c.LanguageMenuOpen
	case ActionToggleMute:
		c.SetMuted(!c.Muted)
	case ActionEscape:
		// the choice list stays open: choosing is the only way forward
		switch {
		case c.LanguageMenuOpen:
			c.LanguageMenuOpen = false
		case c.Fullscreen:
			c.Fullscreen = false
		default:
			c.ExitRequested = true
		}
	}
	return a, nil
}

// Next advances the session and updates audio.
func (c *Controller) Next() error {
	ev, err := c.Session.GoNext()
	if err != nil {
		return err
	}
	c.emit(ev)
	return nil
}

// Choose follows a choice and updates audio.
func (c *Controller) Choose(choiceID string) error {
	ev, err := c.Session.Choose(choiceID)
	if err != nil {
		return err
	}
	c.emit(ev)
	return nil
}

// Restart goes back to the start scene.
func (c *Controller) Restart() error {
	ev, err := c.Session.Restart()
	if err != nil {
		return err
	}
	c.ExitRequested = false
	c.emit(ev)
	return nil
}

// SetLanguage switches the text language and closes the language menu.
func (c *Controller) SetLanguage(code string) error {
	var avail []string
	for _, l := range c.Session.Graph().Languages {
		avail = append(avail, l.LanguageCode)
	}
	if len(avail) > 0 && !slices.Contains(avail, code) {
		return fmt.Errorf("%w: %q", ErrNoLanguage, code)
	}
	c.Language = code
	c.LanguageMenuOpen = false
	return nil
}

func (c *Controller) SetMuted(m bool) {
	c.Muted = m
	if c.Audio != nil {
		c.Audio.SetMuted(m)
	}
}

func (c *Controller) emit(ev Event) {
	c.syncAudio()
	if c.OnEvent != nil {
		c.OnEvent(ev)
	}
}

func (c *Controller) syncAudio() {
	if c.Audio == nil || c.Session.Ended() {
		return
	}
	c.Audio.Update(c.Session.Scene().ID, c.Session.CurrentPanel().ID)
}
