/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package audio

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"instory/internal/domain"
)

func ptr(s string) *string { return &s }

func clips() []domain.StoryAudio {
	return []domain.StoryAudio{
		{ID: "bg", StoryID: "st", Volume: 1, Loop: true, Autoplay: true},
		{ID: "wind", StoryID: "st", SceneID: ptr("s1"), Volume: 1, Loop: true, Autoplay: true},
		{ID: "bang", StoryID: "st", SceneID: ptr("s1"), PanelID: ptr("p2"), Volume: 1.5, Autoplay: true},
		{ID: "manual", StoryID: "st", SceneID: ptr("s1"), Volume: 1},
		{ID: "once", StoryID: "st", Volume: 1, Autoplay: true},
	}
}

func TestEffectiveVolume(t *testing.T) {
	tests := []struct {
		vol, master float64
		muted       bool
		want        float64
	}{
		{1, 1, false, 1},
		{2, 1, false, 1},
		{1.5, 0.5, false, 0.75},
		{0.5, 0.5, false, 0.25},
		{2, 0, false, 0},
		{-1, 1, false, 0},
		{1, 1, true, 0},
		{2, 1, true, 0},
	}
	for _, tc := range tests {
		got := EffectiveVolume(tc.vol, tc.master, tc.muted)
		if got != tc.want {
			t.Errorf("EffectiveVolume(%v, %v, %v) = %v, want %v", tc.vol, tc.master, tc.muted, got, tc.want)
		}
		if got < 0 || got > 1 {
			t.Errorf("volume %v escapes [0,1]", got)
		}
	}
}

func TestApplies(t *testing.T) {
	c := clips()
	if !Applies(c[0], "anything", "") {
		t.Fatalf("story scope applies everywhere")
	}
	if !Applies(c[1], "s1", "p1") || Applies(c[1], "s2", "p1") {
		t.Fatalf("scene scope mismatch")
	}
	if !Applies(c[2], "s1", "p2") || Applies(c[2], "s1", "p1") {
		t.Fatalf("panel scope mismatch")
	}
}

func TestDesired(t *testing.T) {
	got := Desired(clips(), "s1", "p2")
	if diff := cmp.Diff([]string{"bg", "wind", "bang", "once"}, got); diff != "" {
		t.Fatalf("desired mismatch (-want +got):\n%s", diff)
	}
	got = Desired(clips(), "s2", "p9")
	if diff := cmp.Diff([]string{"bg", "once"}, got); diff != "" {
		t.Fatalf("desired mismatch (-want +got):\n%s", diff)
	}
}

func TestTransition(t *testing.T) {
	c := clips()
	p := Transition([]string{"bg", "wind", "bang"}, Desired(c, "s2", "p9"), c)
	want := Plan{Start: []string{"once"}, Stop: []string{"wind", "bang"}}
	if diff := cmp.Diff(want, p, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
	// story-scoped loops persist even when not desired
	p = Transition([]string{"bg", "once"}, nil, c)
	if diff := cmp.Diff([]string{"once"}, p.Stop); diff != "" {
		t.Fatalf("persistent loop must not stop: %s", diff)
	}
}
