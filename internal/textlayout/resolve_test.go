/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"instory/internal/domain"
)

func baseText() domain.PanelText {
	return domain.PanelText{
		ID: "t1", PanelID: "p1", PositionX: 10, PositionY: 20, Width: 150,
		BubbleType: domain.BubbleSpeech, Style: domain.DefaultTextStyle(),
	}
}

func f(v float64) *float64 { return &v }

func TestResolve_NoOverridesKeepsBase(t *testing.T) {
	base := baseText()
	for _, c := range []*domain.PanelTextContent{nil, {PanelTextID: "t1", LanguageCode: "en", Text: "Hi"}} {
		e := Resolve(base, c)
		if e.PositionX != base.PositionX || e.PositionY != base.PositionY || e.Width != base.Width || e.BubbleType != base.BubbleType {
			t.Fatalf("geometry changed without overrides: %+v", e)
		}
		if diff := cmp.Diff(base.Style, e.Style); diff != "" {
			t.Fatalf("style changed without overrides (-base +got):\n%s", diff)
		}
	}
}

func TestResolve_SetThenClearOverride(t *testing.T) {
	base := baseText()
	bt := domain.BubbleShout
	color := "#ff0000"
	c := domain.PanelTextContent{PanelTextID: "t1", LanguageCode: "de", Text: "Hallo"}
	c.Overrides = &domain.TextOverrides{PositionX: f(99), Width: f(80), BubbleType: &bt, Style: domain.StylePatch{Color: &color}}

	e := Resolve(base, &c)
	if e.PositionX != 99 || e.PositionY != 20 || e.Width != 80 || e.BubbleType != domain.BubbleShout || e.Style.Color != "#ff0000" {
		t.Fatalf("overrides not applied: %+v", e)
	}
	if e.Style.FontSize != base.Style.FontSize {
		t.Fatalf("unset style key must keep base value")
	}

	c.Overrides = nil
	back := Resolve(base, &c)
	want := Resolve(base, nil)
	want.Language, want.Text = "de", "Hallo"
	if diff := cmp.Diff(want, back); diff != "" {
		t.Fatalf("clearing overrides did not restore base (-want +got):\n%s", diff)
	}
}

func TestResolve_OverridesFromStoredJSON(t *testing.T) {
	raw := `{"id":"c1","panel_text_id":"t1","language_code":"fr","text":"Salut",
		"style_overrides":{"__position_y":5,"__bubble_type":"thought","fontSize":22}}`
	var c domain.PanelTextContent
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	e := Resolve(baseText(), &c)
	if e.PositionY != 5 || e.PositionX != 10 || e.BubbleType != domain.BubbleThought || e.Style.FontSize != 22 {
		t.Fatalf("unexpected resolution %+v", e)
	}
}

func TestBackground(t *testing.T) {
	st := domain.DefaultTextStyle()
	st.BackgroundColor = "#ff8000"
	st.BackgroundOpacity = 0.5
	tests := []struct {
		name   string
		style  domain.TextStyle
		bubble domain.BubbleType
		want   string
	}{
		{"speech", st, domain.BubbleSpeech, "rgba(255, 128, 0, 0.5)"},
		{"sfx", st, domain.BubbleSFX, "transparent"},
		{"none", st, domain.BubbleNone, "transparent"},
		{"zero opacity", func() domain.TextStyle { s := st; s.BackgroundOpacity = 0; return s }(), domain.BubbleSpeech, "transparent"},
		{"short hex", func() domain.TextStyle { s := st; s.BackgroundColor = "#fff"; s.BackgroundOpacity = 1; return s }(), domain.BubbleNarration, "rgba(255, 255, 255, 1)"},
		{"named color", func() domain.TextStyle { s := st; s.BackgroundColor = "white"; return s }(), domain.BubbleSpeech, "white"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Background(tc.style, tc.bubble); got != tc.want {
				t.Fatalf("Background = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBubbleRules(t *testing.T) {
	if RenderedText("watch out!", domain.BubbleShout) != "WATCH OUT!" {
		t.Fatalf("shout must uppercase")
	}
	if RenderedText("hmm", domain.BubbleThought) != "hmm" {
		t.Fatalf("thought must keep case")
	}
	st := domain.DefaultTextStyle()
	st.BorderRadius = 4
	if BorderRadius(st, domain.BubbleThought) != PillRadius {
		t.Fatalf("thought must be a pill")
	}
	if BorderRadius(st, domain.BubbleSpeech) != "4px" {
		t.Fatalf("speech keeps configured radius")
	}
	if Border(st, domain.BubbleWhisper) != "2px dashed #000000" {
		t.Fatalf("unexpected whisper border %q", Border(st, domain.BubbleWhisper))
	}
}

func TestResolveForLanguage_Fallback(t *testing.T) {
	t1 := baseText()
	t2 := baseText()
	t2.ID, t2.OrderIndex = "t2", 1
	t3 := baseText()
	t3.ID, t3.OrderIndex = "t3", 2
	contents := []domain.PanelTextContent{
		{PanelTextID: "t1", LanguageCode: "en", Text: "Hello"},
		{PanelTextID: "t1", LanguageCode: "de", Text: "Hallo"},
		{PanelTextID: "t2", LanguageCode: "en", Text: "Bye"},
	}
	got := ResolveForLanguage([]domain.PanelText{t3, t2, t1}, contents, "de", "en")
	if len(got) != 3 {
		t.Fatalf("expected 3 overlays, got %d", len(got))
	}
	if got[0].Text != "Hallo" || got[0].Language != "de" {
		t.Fatalf("expected German text first, got %+v", got[0])
	}
	if got[1].Text != "Bye" || got[1].Language != "en" {
		t.Fatalf("expected fallback to English, got %+v", got[1])
	}
	if got[2].Text != "" {
		t.Fatalf("expected empty text without any row, got %+v", got[2])
	}
}

func TestCSS(t *testing.T) {
	e := Resolve(baseText(), nil)
	css := CSS(e)
	if css["left"] != "10px" || css["top"] != "20px" || css["width"] != "150px" {
		t.Fatalf("unexpected geometry css %v", css)
	}
	if css["background"] != "rgba(255, 255, 255, 1)" || css["fontSize"] != "16px" || css["lineHeight"] != "1.2" {
		t.Fatalf("unexpected style css %v", css)
	}
}

func TestPresetFor(t *testing.T) {
	if st := PresetFor(domain.BubbleSFX); Background(st, domain.BubbleSpeech) != "transparent" {
		t.Fatalf("sfx preset should have no background")
	}
	if PresetFor(domain.BubbleShout).FontWeight != "bold" {
		t.Fatalf("shout preset should be bold")
	}
	if len(ListBubbleTypes()) != 7 {
		t.Fatalf("expected 7 bubble types")
	}
}
