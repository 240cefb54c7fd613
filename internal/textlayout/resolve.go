/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"instory/internal/domain"
)

// Effective is a text overlay after the per-language overrides are applied.
type Effective struct {
	PanelTextID string            `json:"panel_text_id"`
	Language    string            `json:"language"`
	Text        string            `json:"text"`
	PositionX   float64           `json:"position_x"`
	PositionY   float64           `json:"position_y"`
	Width       float64           `json:"width"`
	BubbleType  domain.BubbleType `json:"bubble_type"`
	Style       domain.TextStyle  `json:"style"`
	OrderIndex  int               `json:"order_index"`
}

// Resolve applies the overrides of content to base. Every override field
// replaces the base value only when present; a nil content or nil override
// object leaves the base values exactly as they are.
func Resolve(base domain.PanelText, content *domain.PanelTextContent) Effective {
	e := Effective{
		PanelTextID: base.ID,
		PositionX:   base.PositionX,
		PositionY:   base.PositionY,
		Width:       base.Width,
		BubbleType:  base.BubbleType,
		Style:       base.Style,
		OrderIndex:  base.OrderIndex,
	}
	if e.BubbleType == "" {
		e.BubbleType = domain.BubbleSpeech
	}
	if content == nil {
		return e
	}
	e.Language = content.LanguageCode
	e.Text = content.Text
	if o := content.Overrides; o != nil {
		if o.PositionX != nil {
			e.PositionX = *o.PositionX
		}
		if o.PositionY != nil {
			e.PositionY = *o.PositionY
		}
		if o.Width != nil {
			e.Width = *o.Width
		}
		if o.BubbleType != nil {
			e.BubbleType = *o.BubbleType
		}
		e.Style = o.Style.Apply(e.Style)
	}
	return e
}

// ResolveForLanguage resolves every overlay in order for lang. An overlay
// without a row in lang uses its fallback language row, and renders empty
// when it has neither.
func ResolveForLanguage(texts []domain.PanelText, contents []domain.PanelTextContent, lang, fallback string) []Effective {
	byKey := make(map[[2]string]*domain.PanelTextContent, len(contents))
	for i := range contents {
		c := &contents[i]
		byKey[[2]string{c.PanelTextID, c.LanguageCode}] = c
	}
	sorted := append([]domain.PanelText(nil), texts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OrderIndex < sorted[j].OrderIndex })
	out := make([]Effective, 0, len(sorted))
	for _, t := range sorted {
		c := byKey[[2]string{t.ID, lang}]
		if c == nil && fallback != "" {
			c = byKey[[2]string{t.ID, fallback}]
		}
		out = append(out, Resolve(t, c))
	}
	return out
}

// ResolvePanel resolves the overlays of one panel of a loaded story.
func ResolvePanel(g *domain.StoryGraph, panelID, lang string) []Effective {
	return ResolveForLanguage(g.TextsOf(panelID), g.Contents, lang, g.DefaultLanguage())
}

// RenderedText is the text as displayed: shout bubbles are uppercased.
func RenderedText(text string, b domain.BubbleType) string {
	if b == domain.BubbleShout {
		return strings.ToUpper(text)
	}
	return text
}

// Background returns the CSS background of an overlay: transparent for sfx
// and none bubbles or zero opacity, otherwise rgba() of backgroundColor.
func Background(st domain.TextStyle, b domain.BubbleType) string {
	if b == domain.BubbleSFX || b == domain.BubbleNone || st.BackgroundOpacity <= 0 {
		return "transparent"
	}
	op := min(st.BackgroundOpacity, 1)
	r, g, bl, ok := ParseHex(st.BackgroundColor)
	if !ok {
		return st.BackgroundColor
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", r, g, bl, strconv.FormatFloat(op, 'f', -1, 64))
}

// BorderRadius returns the CSS border radius; thought bubbles are pills.
func BorderRadius(st domain.TextStyle, b domain.BubbleType) string {
	if b == domain.BubbleThought {
		return PillRadius
	}
	return px(st.BorderRadius)
}

// Border returns the CSS border shorthand. sfx and none draw no border,
// whispers are dashed.
func Border(st domain.TextStyle, b domain.BubbleType) string {
	if b == domain.BubbleSFX || b == domain.BubbleNone || st.BorderWidth <= 0 {
		return "none"
	}
	kind := "solid"
	if b == domain.BubbleWhisper {
		kind = "dashed"
	}
	color := st.BorderColor
	if color == "" {
		color = "#000000"
	}
	return px(st.BorderWidth) + " " + kind + " " + color
}

// CSS returns the inline style a client applies to the overlay element.
// Positions are relative to the panel's bounding box.
func CSS(e Effective) map[string]string {
	st := e.Style
	m := map[string]string{
		"position":      "absolute",
		"left":          px(e.PositionX),
		"top":           px(e.PositionY),
		"background":    Background(st, e.BubbleType),
		"border":        Border(st, e.BubbleType),
		"borderRadius":  BorderRadius(st, e.BubbleType),
		"whiteSpace":    "pre-wrap",
		"overflowWrap":  "break-word",
		"pointerEvents": "none",
		"boxSizing":     "border-box",
		"fontFamily":    st.FontFamily,
		"fontWeight":    st.FontWeight,
		"fontStyle":     st.FontStyle,
		"color":         st.Color,
		"textAlign":     st.TextAlign,
	}
	if e.Width > 0 {
		m["width"] = px(e.Width)
	}
	if st.FontSize > 0 {
		m["fontSize"] = px(st.FontSize)
	}
	if st.Padding > 0 {
		m["padding"] = px(st.Padding)
	}
	if st.LineHeight > 0 {
		m["lineHeight"] = strconv.FormatFloat(st.LineHeight, 'f', -1, 64)
	}
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	return m
}

func px(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) + "px" }

// ParseHex parses #rgb and #rrggbb colors.
func ParseHex(s string) (r, g, b int, ok bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), true
}
