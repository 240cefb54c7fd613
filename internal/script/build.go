/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"instory/internal/domain"
	"instory/internal/textlayout"
)

const (
	gutter     = 20.0
	textInset  = 10.0
	textGap    = 8.0
	maxTextW   = 320.0
	nodeStride = 260.0
)

// Options controls how an outline becomes a story.
type Options struct {
	// Canvas is the scene size panels are laid out on. Defaults to 1000x800.
	Width, Height float64
	// Language is used when the outline has no "Language:" line. Defaults to en.
	Language string
	AuthorID string
}

// Build turns a parsed outline into an unpublished story graph. Each scene
// gets its panels in a grid and one text box per lettered line. Choice
// targets are matched against scene titles, case-insensitively.
func Build(s Script, opt Options) (*domain.StoryGraph, error) {
	if opt.Width <= 0 || opt.Height <= 0 {
		opt.Width, opt.Height = 1000, 800
	}
	if len(s.Scenes) == 0 {
		return nil, Error{Message: "outline has no scenes"}
	}
	lang := s.Language
	if lang == "" {
		lang = opt.Language
	}
	if lang == "" {
		lang = "en"
	}
	code, err := domain.NormalizeLanguage(lang)
	if err != nil {
		return nil, Error{Message: err.Error()}
	}
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = s.Scenes[0].Title
	}

	storyID := uuid.NewString()
	g := &domain.StoryGraph{
		Story:     domain.Story{ID: storyID, Title: title, AuthorID: opt.AuthorID},
		Languages: []domain.StoryLanguage{{StoryID: storyID, LanguageCode: code, IsDefault: true}},
	}

	var errs error
	byTitle := map[string]string{}
	for i, sc := range s.Scenes {
		key := strings.ToLower(sc.Title)
		if _, dup := byTitle[key]; dup {
			errs = multierr.Append(errs, Error{Line: sc.LineNo, Column: 1, Message: fmt.Sprintf("duplicate scene title %q", sc.Title)})
			continue
		}
		id := uuid.NewString()
		byTitle[key] = id
		g.Scenes = append(g.Scenes, domain.Scene{
			ID:           id,
			StoryID:      storyID,
			Title:        sc.Title,
			ImageURL:     sc.ImageURL,
			OrderIndex:   i,
			IsStartScene: i == 0,
		})
		g.Positions = append(g.Positions, domain.ScenePosition{
			SceneID: id, StoryID: storyID,
			X: float64(i%4) * nodeStride, Y: float64(i/4) * nodeStride * 0.7,
		})
	}
	if errs != nil {
		return nil, errs
	}

	for i, sc := range s.Scenes {
		sceneID := g.Scenes[i].ID
		for pi, box := range grid(len(sc.Panels), opt.Width, opt.Height) {
			panelID := uuid.NewString()
			g.Panels = append(g.Panels, domain.Panel{
				ID: panelID, SceneID: sceneID, Shape: domain.ShapeRectangle,
				X: box.X, Y: box.Y, Width: box.Width, Height: box.Height, OrderIndex: pi,
			})
			g.Texts, g.Contents = letter(g.Texts, g.Contents, panelID, code, box, sc.Panels[pi].Lines)
		}

		flow := false
		for ci, c := range sc.Choices {
			target, ok := byTitle[strings.ToLower(c.Target)]
			if !ok {
				errs = multierr.Append(errs, Error{Line: c.LineNo, Column: 1, Message: fmt.Sprintf("unknown scene %q", c.Target)})
				continue
			}
			if c.Label == "" {
				if flow {
					errs = multierr.Append(errs, Error{Line: c.LineNo, Column: 1, Message: fmt.Sprintf("scene %q already continues elsewhere", sc.Title)})
					continue
				}
				flow = true
			} else {
				g.Scenes[i].IsDecisionScene = true
			}
			g.Choices = append(g.Choices, domain.Choice{
				ID: uuid.NewString(), SceneID: sceneID, TargetSceneID: target, Text: c.Label, OrderIndex: ci,
			})
		}
	}
	if errs != nil {
		return nil, errs
	}
	return g, nil
}

// grid splits the canvas into n equal panels, row by row.
func grid(n int, w, h float64) []domain.Rect {
	if n == 0 {
		return nil
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	cw := (w - gutter*float64(cols+1)) / float64(cols)
	ch := (h - gutter*float64(rows+1)) / float64(rows)
	out := make([]domain.Rect, 0, n)
	for i := 0; i < n; i++ {
		c, r := i%cols, i/cols
		out = append(out, domain.Rect{
			X:     gutter + float64(c)*(cw+gutter),
			Y:     gutter + float64(r)*(ch+gutter),
			Width: cw, Height: ch,
		})
	}
	return out
}

// letter stacks one text box per line down the left edge of a panel.
// Positions are relative to the panel box.
func letter(texts []domain.PanelText, contents []domain.PanelTextContent, panelID, lang string, box domain.Rect, lines []Line) ([]domain.PanelText, []domain.PanelTextContent) {
	width := math.Min(box.Width-2*textInset, maxTextW)
	y := textInset
	for i, ln := range lines {
		bubble := bubbleFor(ln)
		style := styleFor(bubble)
		id := uuid.NewString()
		texts = append(texts, domain.PanelText{
			ID: id, PanelID: panelID, PositionX: textInset, PositionY: y,
			Width: width, BubbleType: bubble, Style: style, OrderIndex: i,
		})
		contents = append(contents, domain.PanelTextContent{ID: uuid.NewString(), PanelTextID: id, LanguageCode: lang, Text: ln.Text})
		if _, h, err := textlayout.MeasureBox(nil, style, textlayout.RenderedText(ln.Text, bubble), width); err == nil {
			y += h + textGap
		} else {
			y += style.FontSize*style.LineHeight + 2*style.Padding + textGap
		}
	}
	return texts, contents
}

func bubbleFor(ln Line) domain.BubbleType {
	switch ln.Type {
	case LineCaption:
		return domain.BubbleNarration
	case LineSFX:
		return domain.BubbleSFX
	}
	switch ln.Manner {
	case "thought", "thinks", "thinking":
		return domain.BubbleThought
	case "shout", "shouts", "yell":
		return domain.BubbleShout
	case "whisper", "whispers":
		return domain.BubbleWhisper
	}
	return domain.BubbleSpeech
}

func styleFor(b domain.BubbleType) domain.TextStyle {
	st := domain.DefaultTextStyle()
	switch b {
	case domain.BubbleNarration:
		st.BackgroundColor = "#fff6c8"
		st.BorderRadius = 0
		st.TextAlign = "left"
	case domain.BubbleSFX:
		st.FontSize = 28
		st.FontWeight = "bold"
		st.Color = "#c81e1e"
		st.BackgroundOpacity = 0
		st.BorderWidth = 0
	case domain.BubbleShout:
		st.FontWeight = "bold"
	case domain.BubbleWhisper:
		st.FontStyle = "italic"
	}
	return st
}
