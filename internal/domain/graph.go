/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "sort"

// StoryGraph is a whole story loaded for reading, exporting or bundling.
type StoryGraph struct {
	Story     Story              `json:"story"`
	Languages []StoryLanguage    `json:"languages"`
	Scenes    []Scene            `json:"scenes"`
	Panels    []Panel            `json:"panels"`
	Choices   []Choice           `json:"choices"`
	Texts     []PanelText        `json:"panel_texts"`
	Contents  []PanelTextContent `json:"panel_text_contents"`
	Audio     []StoryAudio       `json:"audio"`
	Positions []ScenePosition    `json:"scene_positions"`
}

// SceneByID returns the scene with the given id.
func (g *StoryGraph) SceneByID(id string) (Scene, bool) {
	for _, s := range g.Scenes {
		if s.ID == id {
			return s, true
		}
	}
	return Scene{}, false
}

// StartScene returns the scene flagged as start. When none is flagged the
// lowest order index wins so legacy stories still open.
func (g *StoryGraph) StartScene() (Scene, bool) {
	if len(g.Scenes) == 0 {
		return Scene{}, false
	}
	for _, s := range g.Scenes {
		if s.IsStartScene {
			return s, true
		}
	}
	best := g.Scenes[0]
	for _, s := range g.Scenes[1:] {
		if s.OrderIndex < best.OrderIndex {
			best = s
		}
	}
	return best, true
}

// PanelsOf returns the panels of a scene in reading order.
func (g *StoryGraph) PanelsOf(sceneID string) []Panel {
	var out []Panel
	for _, p := range g.Panels {
		if p.SceneID == sceneID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

// ChoicesFrom returns the outgoing choices of a scene ordered by order index.
func (g *StoryGraph) ChoicesFrom(sceneID string) []Choice {
	var out []Choice
	for _, c := range g.Choices {
		if c.SceneID == sceneID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

// TextsOf returns the text overlays of a panel ordered by order index.
func (g *StoryGraph) TextsOf(panelID string) []PanelText {
	var out []PanelText
	for _, t := range g.Texts {
		if t.PanelID == panelID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

// ContentFor returns the content row of a text overlay in the given language.
func (g *StoryGraph) ContentFor(textID, lang string) (PanelTextContent, bool) {
	for _, c := range g.Contents {
		if c.PanelTextID == textID && c.LanguageCode == lang {
			return c, true
		}
	}
	return PanelTextContent{}, false
}

// DefaultLanguage returns the story's default language code.
func (g *StoryGraph) DefaultLanguage() string { return DefaultLanguageOf(g.Languages) }
