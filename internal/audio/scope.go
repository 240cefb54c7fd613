/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package audio decides which story audio clips play at a reading position
// and drives their playback with delayed starts and fades.
package audio

import (
	"slices"

	"instory/internal/domain"
)

// EffectiveVolume is the element volume of a clip: the stored volume (up to
// 2.0 for boosted gain) times the master volume, clamped to [0,1]. Muting
// forces 0 without touching the stored volume.
func EffectiveVolume(volume, master float64, muted bool) float64 {
	if muted {
		return 0
	}
	return clamp01(volume * master)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Applies reports whether a clip's scope covers the reading position.
func Applies(a domain.StoryAudio, sceneID, panelID string) bool {
	switch a.Scope() {
	case domain.ScopePanel:
		return *a.PanelID == panelID
	case domain.ScopeScene:
		return *a.SceneID == sceneID
	default:
		return true
	}
}

// Persistent reports whether a clip keeps playing across scene changes once
// started: story-scoped looping tracks.
func Persistent(a domain.StoryAudio) bool {
	return a.Scope() == domain.ScopeStory && a.Loop
}

// Desired returns the ids of autoplay clips that apply at the position, in
// input order.
func Desired(audios []domain.StoryAudio, sceneID, panelID string) []string {
	var out []string
	for _, a := range audios {
		if a.Autoplay && Applies(a, sceneID, panelID) {
			out = append(out, a.ID)
		}
	}
	return out
}

// Plan is the difference between what plays and what should play.
type Plan struct {
	Start []string
	Stop  []string
}

// Transition plans a position change. Active clips that are no longer
// desired stop, unless they are persistent; desired clips that are not
// active start.
func Transition(active, desired []string, audios []domain.StoryAudio) Plan {
	byID := make(map[string]domain.StoryAudio, len(audios))
	for _, a := range audios {
		byID[a.ID] = a
	}
	var p Plan
	for _, id := range active {
		if slices.Contains(desired, id) {
			continue
		}
		if a, ok := byID[id]; ok && Persistent(a) {
			continue
		}
		p.Stop = append(p.Stop, id)
	}
	for _, id := range desired {
		if !slices.Contains(active, id) {
			p.Start = append(p.Start, id)
		}
	}
	return p
}
