/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package reader

import (
	"instory/internal/domain"
	"instory/internal/textlayout"
	"instory/internal/vector"
)

// PanelView is one panel of the current scene as a client renders it.
type PanelView struct {
	ID         string                 `json:"id"`
	OrderIndex int                    `json:"order_index"`
	Box        domain.Rect            `json:"box"`
	ClipPath   string                 `json:"clip_path"`
	Revealed   bool                   `json:"revealed"`
	Current    bool                   `json:"current"`
	Texts      []textlayout.Effective `json:"texts,omitempty"`
}

// ChoiceView is a labeled choice on offer.
type ChoiceView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Snapshot is the JSON view of a session.
type Snapshot struct {
	StoryID    string       `json:"story_id"`
	Mode       Mode         `json:"mode"`
	Language   string       `json:"language"`
	SceneID    string       `json:"scene_id"`
	SceneTitle string       `json:"scene_title"`
	ImageURL   string       `json:"image_url"`
	ImageSize  vector.Size  `json:"image_size"`
	PanelIndex int          `json:"panel_index"`
	PanelCount int          `json:"panel_count"`
	Revealed   []int        `json:"revealed"`
	Panels     []PanelView  `json:"panels"`
	Choices    []ChoiceView `json:"choices,omitempty"`
	Ended      bool         `json:"ended"`
	// Transform is the CSS matrix zooming the current panel into the
	// viewport in focus mode, or fitting the scene in panel-to-panel mode.
	Transform string `json:"transform,omitempty"`
}

// Snapshot renders the session for lang. Texts are resolved for the current
// panel in focus mode and for every revealed panel otherwise. A zero
// viewport leaves Transform empty.
func (s *Session) Snapshot(lang string, viewport vector.Size, padding float64) Snapshot {
	if lang == "" {
		lang = s.g.DefaultLanguage()
	}
	snap := Snapshot{
		StoryID:    s.g.Story.ID,
		Mode:       s.mode,
		Language:   lang,
		SceneID:    s.scene.ID,
		SceneTitle: s.scene.Title,
		ImageURL:   s.scene.ImageURL,
		ImageSize:  vector.Size{W: float64(s.scene.ImageWidth), H: float64(s.scene.ImageHeight)},
		PanelIndex: s.panel,
		PanelCount: len(s.panels),
		Revealed:   s.Revealed(),
		Ended:      s.ended,
	}
	for i, p := range s.panels {
		pv := PanelView{
			ID:         p.ID,
			OrderIndex: p.OrderIndex,
			Box:        vector.Bounds(p).Domain(),
			ClipPath:   vector.ClipPath(p),
			Revealed:   s.revealed[i],
			Current:    i == s.panel,
		}
		if pv.Current || (s.mode == ModePanelToPanel && pv.Revealed) {
			pv.Texts = textlayout.ResolvePanel(s.g, p.ID, lang)
			for j := range pv.Texts {
				pv.Texts[j].Text = textlayout.RenderedText(pv.Texts[j].Text, pv.Texts[j].BubbleType)
			}
		}
		snap.Panels = append(snap.Panels, pv)
	}
	for _, c := range s.choices {
		snap.Choices = append(snap.Choices, ChoiceView{ID: c.ID, Text: c.Text})
	}
	if viewport.W > 0 && viewport.H > 0 {
		var m vector.Affine2D
		if s.mode == ModeFocus {
			m = vector.FocusTransform(vector.Bounds(s.panels[s.panel]), viewport, padding)
		} else {
			m = vector.ScaleToView(snap.ImageSize, viewport)
		}
		snap.Transform = vector.CSSMatrix(m)
	}
	return snap
}
