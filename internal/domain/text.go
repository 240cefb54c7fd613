/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"strings"
)

// BubbleType selects how a text overlay is framed.
type BubbleType string

const (
	BubbleSpeech    BubbleType = "speech"
	BubbleThought   BubbleType = "thought"
	BubbleShout     BubbleType = "shout"
	BubbleWhisper   BubbleType = "whisper"
	BubbleNarration BubbleType = "narration"
	BubbleSFX       BubbleType = "sfx"
	BubbleNone      BubbleType = "none"
)

func (b BubbleType) Valid() bool {
	switch b {
	case BubbleSpeech, BubbleThought, BubbleShout, BubbleWhisper, BubbleNarration, BubbleSFX, BubbleNone:
		return true
	}
	return false
}

// TextStyle is the visual style of a text overlay. Keys follow the camelCase
// names the web client stores in the style column.
type TextStyle struct {
	FontFamily        string  `json:"fontFamily,omitempty"`
	FontSize          float64 `json:"fontSize,omitempty"`
	FontWeight        string  `json:"fontWeight,omitempty"`
	FontStyle         string  `json:"fontStyle,omitempty"`
	Color             string  `json:"color,omitempty"`
	TextAlign         string  `json:"textAlign,omitempty"`
	BackgroundColor   string  `json:"backgroundColor,omitempty"`
	BackgroundOpacity float64 `json:"backgroundOpacity"`
	BorderColor       string  `json:"borderColor,omitempty"`
	BorderWidth       float64 `json:"borderWidth,omitempty"`
	BorderRadius      float64 `json:"borderRadius,omitempty"`
	Padding           float64 `json:"padding,omitempty"`
	LineHeight        float64 `json:"lineHeight,omitempty"`
}

// DefaultTextStyle is applied to newly created overlays.
func DefaultTextStyle() TextStyle {
	return TextStyle{
		FontFamily:        "Comic Neue",
		FontSize:          16,
		FontWeight:        "normal",
		FontStyle:         "normal",
		Color:             "#000000",
		TextAlign:         "center",
		BackgroundColor:   "#ffffff",
		BackgroundOpacity: 1,
		BorderColor:       "#000000",
		BorderWidth:       2,
		BorderRadius:      16,
		Padding:           8,
		LineHeight:        1.2,
	}
}

// StylePatch is a sparse TextStyle: only non-nil fields override the base.
type StylePatch struct {
	FontFamily        *string  `json:"fontFamily,omitempty"`
	FontSize          *float64 `json:"fontSize,omitempty"`
	FontWeight        *string  `json:"fontWeight,omitempty"`
	FontStyle         *string  `json:"fontStyle,omitempty"`
	Color             *string  `json:"color,omitempty"`
	TextAlign         *string  `json:"textAlign,omitempty"`
	BackgroundColor   *string  `json:"backgroundColor,omitempty"`
	BackgroundOpacity *float64 `json:"backgroundOpacity,omitempty"`
	BorderColor       *string  `json:"borderColor,omitempty"`
	BorderWidth       *float64 `json:"borderWidth,omitempty"`
	BorderRadius      *float64 `json:"borderRadius,omitempty"`
	Padding           *float64 `json:"padding,omitempty"`
	LineHeight        *float64 `json:"lineHeight,omitempty"`
}

// Apply returns base with every set field of the patch applied.
func (p StylePatch) Apply(base TextStyle) TextStyle {
	out := base
	setS := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setS(&out.FontFamily, p.FontFamily)
	setF(&out.FontSize, p.FontSize)
	setS(&out.FontWeight, p.FontWeight)
	setS(&out.FontStyle, p.FontStyle)
	setS(&out.Color, p.Color)
	setS(&out.TextAlign, p.TextAlign)
	setS(&out.BackgroundColor, p.BackgroundColor)
	setF(&out.BackgroundOpacity, p.BackgroundOpacity)
	setS(&out.BorderColor, p.BorderColor)
	setF(&out.BorderWidth, p.BorderWidth)
	setF(&out.BorderRadius, p.BorderRadius)
	setF(&out.Padding, p.Padding)
	setF(&out.LineHeight, p.LineHeight)
	return out
}

// IsZero reports whether no field is set.
func (p StylePatch) IsZero() bool { return p == StylePatch{} }

// Override keys stored next to style keys in the overrides object.
const (
	OverridePositionX  = "__position_x"
	OverridePositionY  = "__position_y"
	OverrideWidth      = "__width"
	OverrideBubbleType = "__bubble_type"
)

// TextOverrides is the per-language override of a text overlay. On the wire
// it is one flat object mixing the "__"-prefixed position keys with style keys.
type TextOverrides struct {
	PositionX  *float64
	PositionY  *float64
	Width      *float64
	BubbleType *BubbleType
	Style      StylePatch
}

func (o TextOverrides) IsZero() bool {
	return o.PositionX == nil && o.PositionY == nil && o.Width == nil && o.BubbleType == nil && o.Style.IsZero()
}

func (o TextOverrides) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(o.Style)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if o.PositionX != nil {
		m[OverridePositionX] = *o.PositionX
	}
	if o.PositionY != nil {
		m[OverridePositionY] = *o.PositionY
	}
	if o.Width != nil {
		m[OverrideWidth] = *o.Width
	}
	if o.BubbleType != nil {
		m[OverrideBubbleType] = string(*o.BubbleType)
	}
	return json.Marshal(m)
}

func (o *TextOverrides) UnmarshalJSON(b []byte) error {
	*o = TextOverrides{}
	if strings.TrimSpace(string(b)) == "null" {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	num := func(key string) (*float64, error) {
		v, ok := raw[key]
		if !ok || string(v) == "null" {
			return nil, nil
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return nil, invalidf("override %s: %v", key, err)
		}
		return &f, nil
	}
	var err error
	if o.PositionX, err = num(OverridePositionX); err != nil {
		return err
	}
	if o.PositionY, err = num(OverridePositionY); err != nil {
		return err
	}
	if o.Width, err = num(OverrideWidth); err != nil {
		return err
	}
	if v, ok := raw[OverrideBubbleType]; ok && string(v) != "null" {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return invalidf("override %s: %v", OverrideBubbleType, err)
		}
		bt := BubbleType(s)
		o.BubbleType = &bt
	}
	return json.Unmarshal(b, &o.Style)
}

// PanelText is a positioned, styled text box on a panel. The text itself
// lives in one PanelTextContent row per language.
type PanelText struct {
	ID         string     `json:"id"`
	PanelID    string     `json:"panel_id"`
	PositionX  float64    `json:"position_x"`
	PositionY  float64    `json:"position_y"`
	Width      float64    `json:"width"`
	BubbleType BubbleType `json:"bubble_type"`
	Style      TextStyle  `json:"style"`
	OrderIndex int        `json:"order_index"`
}

func (t PanelText) Validate() error {
	if t.PanelID == "" {
		return invalidf("panel text requires panel_id")
	}
	if t.BubbleType != "" && !t.BubbleType.Valid() {
		return invalidf("unknown bubble type %q", t.BubbleType)
	}
	if t.Width < 0 {
		return invalidf("panel text width must be non-negative")
	}
	return nil
}

// PanelTextContent is the text of a PanelText in one language, with an
// optional sparse override of position, width, bubble type and style.
type PanelTextContent struct {
	ID           string         `json:"id"`
	PanelTextID  string         `json:"panel_text_id"`
	LanguageCode string         `json:"language_code"`
	Text         string         `json:"text"`
	Overrides    *TextOverrides `json:"style_overrides,omitempty"`
}

func (c PanelTextContent) Validate() error {
	if c.PanelTextID == "" {
		return invalidf("text content requires panel_text_id")
	}
	if _, err := NormalizeLanguage(c.LanguageCode); err != nil {
		return err
	}
	if c.Overrides != nil && c.Overrides.BubbleType != nil && !c.Overrides.BubbleType.Valid() {
		return invalidf("unknown override bubble type %q", *c.Overrides.BubbleType)
	}
	return nil
}
