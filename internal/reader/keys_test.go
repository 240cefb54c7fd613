/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package reader

import "testing"

type fakeAudio struct {
	positions []string
	muted     bool
}

func (f *fakeAudio) Update(sceneID, panelID string) {
	f.positions = append(f.positions, sceneID+"/"+panelID)
}
func (f *fakeAudio) SetMuted(m bool) { f.muted = m }

func TestKeymap_Lookup(t *testing.T) {
	km := DefaultKeymap()
	tests := map[string]Action{
		"ArrowRight": ActionNext,
		"ArrowDown":  ActionNext,
		" ":          ActionNext,
		"Enter":      ActionNext,
		"ArrowLeft":  ActionNone,
		"ArrowUp":    ActionNone,
		"F":          ActionFullscreen,
		"f":          ActionFullscreen,
		"M":          ActionToggleMode,
		"l":          ActionLanguageMenu,
		"S":          ActionToggleMute,
		"Escape":     ActionEscape,
		"x":          ActionNone,
	}
	for key, want := range tests {
		if got := km.Lookup(key); got != want {
			t.Errorf("Lookup(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestController_KeysDriveSessionAndAudio(t *testing.T) {
	s := mustSession(t, ModeFocus)
	audio := &fakeAudio{}
	var events []Event
	c := NewController(s, "en", audio)
	c.OnEvent = func(ev Event) { events = append(events, ev) }

	if _, err := c.HandleKey("ArrowRight"); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := c.HandleKey("ArrowLeft"); err != nil || s.PanelIndex() != 1 {
		t.Fatalf("ArrowLeft must not navigate back")
	}
	if len(audio.positions) != 2 || audio.positions[1] != "s1/p1b" {
		t.Fatalf("unexpected audio updates %v", audio.positions)
	}
	if len(events) != 1 || events[0].Kind != EventAdvanced {
		t.Fatalf("unexpected events %+v", events)
	}

	c.HandleKey("s")
	if !c.Muted || !audio.muted {
		t.Fatalf("S must mute")
	}
	c.HandleKey("m")
	if s.Mode() != ModePanelToPanel {
		t.Fatalf("M must switch mode")
	}
}

func TestController_EscapeClosesOverlaysInOrder(t *testing.T) {
	c := NewController(mustSession(t, ModeFocus), "en", nil)
	c.HandleKey("f")
	c.HandleKey("l")
	if !c.Fullscreen || !c.LanguageMenuOpen {
		t.Fatalf("expected fullscreen and language menu")
	}
	c.HandleKey("Escape")
	if c.LanguageMenuOpen || !c.Fullscreen {
		t.Fatalf("first escape closes the language menu")
	}
	c.HandleKey("Escape")
	if c.Fullscreen || c.ExitRequested {
		t.Fatalf("second escape leaves fullscreen")
	}
	c.HandleKey("Escape")
	if !c.ExitRequested {
		t.Fatalf("third escape requests exit")
	}
}

func TestController_EscapeDoesNotCloseChoices(t *testing.T) {
	s := mustSession(t, ModeFocus)
	c := NewController(s, "en", nil)
	for !s.Choosing() {
		if err := c.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	c.HandleKey("Escape")
	if !s.Choosing() {
		t.Fatalf("choice list must stay open")
	}
	if err := c.Choose("right"); err != nil || s.Scene().ID != "s4" {
		t.Fatalf("Choose: %v", err)
	}
}

func TestController_SetLanguage(t *testing.T) {
	c := NewController(mustSession(t, ModeFocus), "en", nil)
	c.LanguageMenuOpen = true
	if err := c.SetLanguage("de"); err != nil || c.Language != "de" || c.LanguageMenuOpen {
		t.Fatalf("SetLanguage(de): %v %+v", err, c)
	}
	if err := c.SetLanguage("fr"); err == nil {
		t.Fatalf("unavailable language must be rejected")
	}
}
