/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "time"

// AudioScope is the level at which a clip is attached and auto-managed.
type AudioScope string

const (
	ScopeStory AudioScope = "story"
	ScopeScene AudioScope = "scene"
	ScopePanel AudioScope = "panel"
)

// AudioKind is an informational layer tag used by the editor listing.
type AudioKind string

const (
	AudioBackground AudioKind = "background"
	AudioSFX        AudioKind = "sfx"
	AudioVoice      AudioKind = "voice"
)

// MaxAudioVolume is the boosted-gain ceiling of a stored volume.
const MaxAudioVolume = 2.0

// StoryAudio is a clip scoped to a story, a scene, or a panel. SceneID and
// PanelID are nullable; both nil means story-wide.
type StoryAudio struct {
	ID           string    `json:"id"`
	StoryID      string    `json:"story_id"`
	SceneID      *string   `json:"scene_id"`
	PanelID      *string   `json:"panel_id"`
	Name         string    `json:"name"`
	Kind         AudioKind `json:"audio_type,omitempty"`
	AudioURL     string    `json:"audio_url"`
	Volume       float64   `json:"volume"`
	Loop         bool      `json:"loop"`
	Autoplay     bool      `json:"autoplay"`
	FadeInMs     int       `json:"fade_in_ms"`
	FadeOutMs    int       `json:"fade_out_ms"`
	StartDelayMs int       `json:"start_delay_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// Scope derives the attachment level from the nullable foreign keys.
func (a StoryAudio) Scope() AudioScope {
	switch {
	case a.PanelID != nil && *a.PanelID != "":
		return ScopePanel
	case a.SceneID != nil && *a.SceneID != "":
		return ScopeScene
	default:
		return ScopeStory
	}
}

func (a StoryAudio) FadeIn() time.Duration  { return time.Duration(a.FadeInMs) * time.Millisecond }
func (a StoryAudio) FadeOut() time.Duration { return time.Duration(a.FadeOutMs) * time.Millisecond }
func (a StoryAudio) StartDelay() time.Duration {
	return time.Duration(a.StartDelayMs) * time.Millisecond
}

func (a StoryAudio) Validate() error {
	if a.StoryID == "" {
		return invalidf("audio requires story_id")
	}
	if a.AudioURL == "" {
		return invalidf("audio requires audio_url")
	}
	if a.Volume < 0 || a.Volume > MaxAudioVolume {
		return invalidf("audio volume %.2f outside [0, %.1f]", a.Volume, MaxAudioVolume)
	}
	if a.FadeInMs < 0 || a.FadeOutMs < 0 || a.StartDelayMs < 0 {
		return invalidf("audio fades and delay must be non-negative")
	}
	if a.PanelID != nil && *a.PanelID != "" && (a.SceneID == nil || *a.SceneID == "") {
		return invalidf("panel-scoped audio requires scene_id")
	}
	return nil
}
