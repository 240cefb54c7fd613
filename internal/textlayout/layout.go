/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

// Text measurement and line breaking behind small interfaces so the server
// can estimate overlay box sizes with whatever fonts are registered.

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"instory/internal/domain"
)

// FontSpec describes a requested font. Size is in CSS pixels.
type FontSpec struct {
	Family string
	Size   float64
	Weight int // 100..900
	Italic bool
}

// SpecFor derives the font request of a text style.
func SpecFor(st domain.TextStyle) FontSpec {
	return FontSpec{
		Family: st.FontFamily,
		Size:   st.FontSize,
		Weight: parseWeight(st.FontWeight),
		Italic: st.FontStyle == "italic" || st.FontStyle == "oblique",
	}
}

func parseWeight(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return 400
	case "bold":
		return 700
	case "lighter":
		return 300
	case "bolder":
		return 800
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return 400
}

// Metrics provides font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float64
}

// Span is a run of text with the same font.
type Span struct {
	Text string
	Font FontSpec
}

// Line is a single laid out line.
type Line struct {
	Spans   []Span
	Width   float64
	Ascent  float64
	Descent float64
}

// TextBox is the result of laying out text into a box width.
type TextBox struct {
	Lines   []Line
	Width   float64
	Height  float64
	Metrics Metrics
}

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// Layouter performs line-breaking and measurement.
type Layouter interface {
	Layout(spans []Span, maxWidth float64) (TextBox, error)
}

// BasicProvider uses x/image/basicfont Face7x13 for deterministic tests.
type BasicProvider struct{}

func (BasicProvider) Resolve(FontSpec) (font.Face, Metrics) {
	f := basicfont.Face7x13
	return f, metricsOf(f)
}

func metricsOf(f font.Face) Metrics {
	m := f.Metrics()
	return Metrics{
		Ascent:  float64(m.Ascent.Round()),
		Descent: float64(m.Descent.Round()),
		LineGap: float64(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
	}
}

// WordWrapLayouter breaks on spaces and newlines; it does not shape or
// hyphenate. A single word wider than the box gets a line of its own.
type WordWrapLayouter struct{ Provider Provider }

func NewWordWrap(provider Provider) *WordWrapLayouter { return &WordWrapLayouter{Provider: provider} }

func (l *WordWrapLayouter) Layout(spans []Span, maxWidth float64) (TextBox, error) {
	if l.Provider == nil {
		l.Provider = BasicProvider{}
	}
	var spec FontSpec
	if len(spans) > 0 {
		spec = spans[0].Font
	}
	face, met := l.Provider.Resolve(spec)
	drawer := &font.Drawer{Face: face}
	cur := Line{Ascent: met.Ascent, Descent: met.Descent}
	box := TextBox{Metrics: met}
	addLine := func() {
		box.Lines = append(box.Lines, cur)
		box.Width = math.Max(box.Width, cur.Width)
		box.Height += met.Ascent + met.Descent + met.LineGap
		cur = Line{Ascent: met.Ascent, Descent: met.Descent}
	}
	for _, sp := range spans {
		if sp.Text == "" {
			continue
		}
		start := 0
		for i := 0; i <= len(sp.Text); i++ {
			if i < len(sp.Text) && sp.Text[i] != ' ' && sp.Text[i] != '\n' {
				continue
			}
			word := sp.Text[start:i]
			sep := byte(0)
			if i < len(sp.Text) {
				sep = sp.Text[i]
			}
			w := advance(drawer, word)
			if maxWidth > 0 && cur.Width > 0 && cur.Width+w > maxWidth {
				addLine()
			}
			if word != "" {
				cur.Spans = append(cur.Spans, Span{Text: word, Font: sp.Font})
				cur.Width += w
			}
			switch sep {
			case ' ':
				cur.Spans = append(cur.Spans, Span{Text: " ", Font: sp.Font})
				cur.Width += advance(drawer, " ")
			case '\n':
				addLine()
			}
			start = i + 1
		}
	}
	if len(cur.Spans) > 0 || len(box.Lines) == 0 {
		addLine()
	}
	return box, nil
}

func advance(d *font.Drawer, s string) float64 {
	return float64(d.MeasureString(s) >> 6) // fixed.Int26_6 to px
}

// Measure returns the single-line width and line height of the spans.
func Measure(provider Provider, spans []Span) (w, h float64) {
	if provider == nil {
		provider = BasicProvider{}
	}
	var met Metrics
	for i, sp := range spans {
		face, m := provider.Resolve(sp.Font)
		if i == 0 {
			met = m
		}
		w += advance(&font.Drawer{Face: face}, sp.Text)
	}
	if len(spans) == 0 {
		_, met = provider.Resolve(FontSpec{})
	}
	return w, met.Ascent + met.Descent
}

// MeasureBox estimates the rendered size of an overlay: the text is wrapped
// to the overlay width minus padding and each line takes fontSize*lineHeight.
// A zero width lays the text out on as few lines as its newlines allow.
func MeasureBox(l Layouter, st domain.TextStyle, text string, width float64) (float64, float64, error) {
	if l == nil {
		l = NewWordWrap(nil)
	}
	inner := width - 2*st.Padding
	if width <= 0 {
		inner = 0
	}
	box, err := l.Layout([]Span{{Text: text, Font: SpecFor(st)}}, math.Max(inner, 0))
	if err != nil {
		return 0, 0, err
	}
	lineH := st.FontSize * st.LineHeight
	if lineH <= 0 {
		lineH = box.Metrics.Ascent + box.Metrics.Descent + box.Metrics.LineGap
	}
	w := width
	if w <= 0 {
		w = box.Width + 2*st.Padding
	}
	return w, float64(len(box.Lines))*lineH + 2*st.Padding, nil
}
