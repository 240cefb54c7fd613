/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"instory/internal/domain"
)

func TestBuildStoryGraph(t *testing.T) {
	s, errs := Parse(woods)
	if len(errs) != 0 {
		t.Fatal(errs)
	}
	g, err := Build(s, Options{AuthorID: "alice"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if g.Story.Title != "Into the Woods" || g.Story.AuthorID != "alice" || g.Story.IsPublished {
		t.Errorf("story = %+v", g.Story)
	}
	if diff := cmp.Diff([]domain.StoryLanguage{{StoryID: g.Story.ID, LanguageCode: "de", IsDefault: true}}, g.Languages); diff != "" {
		t.Errorf("languages (-want +got):\n%s", diff)
	}
	start, ok := g.StartScene()
	if !ok || start.Title != "Forest Edge" || !start.IsDecisionScene {
		t.Fatalf("start scene = %+v", start)
	}

	panels := g.PanelsOf(start.ID)
	if len(panels) != 2 {
		t.Fatalf("panels = %d", len(panels))
	}
	want := []domain.Rect{{X: 20, Y: 20, Width: 470, Height: 760}, {X: 510, Y: 20, Width: 470, Height: 760}}
	for i, p := range panels {
		if diff := cmp.Diff(want[i], p.Box()); diff != "" {
			t.Errorf("panel %d box (-want +got):\n%s", i, diff)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("panel %d: %v", i, err)
		}
	}

	texts := g.TextsOf(panels[1].ID)
	var bubbles []domain.BubbleType
	for _, tx := range texts {
		bubbles = append(bubbles, tx.BubbleType)
		if tx.PositionX != textInset || tx.Width != maxTextW {
			t.Errorf("text box = %+v", tx)
		}
	}
	if diff := cmp.Diff([]domain.BubbleType{domain.BubbleNarration, domain.BubbleThought, domain.BubbleSFX}, bubbles); diff != "" {
		t.Errorf("bubbles (-want +got):\n%s", diff)
	}
	for i := 1; i < len(texts); i++ {
		if texts[i].PositionY <= texts[i-1].PositionY {
			t.Errorf("text %d not below text %d", i, i-1)
		}
	}
	if c, ok := g.ContentFor(texts[2].ID, "de"); !ok || c.Text != "KRAK" {
		t.Errorf("sfx content = %+v", c)
	}

	choices := g.ChoicesFrom(start.ID)
	if len(choices) != 3 {
		t.Fatalf("choices = %+v", choices)
	}
	deep, _ := g.SceneByID(choices[0].TargetSceneID)
	home, _ := g.SceneByID(choices[1].TargetSceneID)
	if deep.Title != "Deep Woods" || home.Title != "Home" || choices[2].TargetSceneID != home.ID || !choices[2].IsUnconditional() {
		t.Errorf("choice targets = %+v", choices)
	}
	if len(g.Positions) != 3 {
		t.Errorf("positions = %d", len(g.Positions))
	}
}

func TestBuildErrors(t *testing.T) {
	s, _ := Parse("# A\n-> B\n-> A\n* Go -> Missing\n# B\n# b\n")
	_, err := Build(s, Options{})
	if err == nil || !strings.Contains(err.Error(), `duplicate scene title "b"`) {
		t.Fatalf("err = %v", err)
	}

	s, _ = Parse("# A\n-> B\n-> A\n* Go -> Missing\n# B\n")
	_, err = Build(s, Options{})
	var perr Error
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "line 3:1: scene \"A\" already continues elsewhere") || !strings.Contains(msg, `line 4:1: unknown scene "Missing"`) {
		t.Errorf("err = %v", msg)
	}

	if _, err := Build(Script{}, Options{}); err == nil {
		t.Error("empty outline built")
	}
	if _, err := Build(Script{Language: "??", Scenes: []Scene{{Title: "A"}}}, Options{}); err == nil {
		t.Error("bad language accepted")
	}
}
