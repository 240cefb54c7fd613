/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders stories to files that work offline: PDF
// storyboards, SVG and PNG scene sheets and CBZ comic archives.
package export

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"sort"
	"strings"

	_ "golang.org/x/image/webp"

	"instory/internal/blob"
	"instory/internal/domain"
	"instory/internal/textlayout"
	"instory/internal/vector"
)

var (
	// ErrNoImage is returned by an ImageSource for URLs it cannot serve.
	ErrNoImage = errors.New("scene image is not available")
	// ErrUnknownScene is returned when Options.Scenes names a scene the story lacks.
	ErrUnknownScene = errors.New("scene is not part of the story")
)

// defaultCanvas is used for scenes without an image or panels.
var defaultCanvas = vector.Size{W: 1000, H: 800}

// ImageSource opens scene images by URL.
type ImageSource interface {
	OpenImage(url string) (io.ReadCloser, error)
}

type blobImages struct{ s *blob.Store }

// BlobImages serves scene images from a file store.
func BlobImages(s *blob.Store) ImageSource { return blobImages{s} }

func (b blobImages) OpenImage(u string) (io.ReadCloser, error) {
	bucket, key, ok := b.s.ParseURL(u)
	if !ok || bucket != blob.SceneImages {
		return nil, fmt.Errorf("%w: %s", ErrNoImage, u)
	}
	return b.s.Open(bucket, key)
}

// Options are shared by all exporters.
type Options struct {
	// Language selects the text translation; empty means the story default.
	Language string
	// Images draws scene images under the panels when set.
	Images ImageSource
	// Scenes restricts the export to these scene ids. Empty exports all.
	Scenes []string
	// Outlines draws panel outlines and reading order numbers.
	Outlines bool
	// Fonts measures and draws text; nil uses the built-in bitmap face.
	Fonts textlayout.Provider
}

func (o Options) fonts() textlayout.Provider {
	if o.Fonts == nil {
		return textlayout.BasicProvider{}
	}
	return o.Fonts
}

func (o Options) language(g *domain.StoryGraph) string {
	if o.Language != "" {
		return o.Language
	}
	return g.DefaultLanguage()
}

// scenes returns the selected scenes in story order, start scene first.
func (o Options) scenes(g *domain.StoryGraph) ([]domain.Scene, error) {
	out := append([]domain.Scene(nil), g.Scenes...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsStartScene != out[j].IsStartScene {
			return out[i].IsStartScene
		}
		return out[i].OrderIndex < out[j].OrderIndex
	})
	if len(o.Scenes) == 0 {
		return out, nil
	}
	picked := make([]domain.Scene, 0, len(o.Scenes))
	for _, id := range o.Scenes {
		sc, ok := g.SceneByID(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownScene, id)
		}
		picked = append(picked, sc)
	}
	return picked, nil
}

// canvasSize is the scene image size, or the extent of its panels.
func canvasSize(g *domain.StoryGraph, sc domain.Scene) vector.Size {
	if sc.ImageWidth > 0 && sc.ImageHeight > 0 {
		return vector.Size{W: float64(sc.ImageWidth), H: float64(sc.ImageHeight)}
	}
	panels := g.PanelsOf(sc.ID)
	if len(panels) == 0 {
		return defaultCanvas
	}
	r := vector.Bounds(panels[0])
	for _, p := range panels[1:] {
		r = r.Union(vector.Bounds(p))
	}
	return vector.Size{W: max(r.X+r.W, 1), H: max(r.Y+r.H, 1)}
}

// sceneImage decodes the scene image, or returns nil when there is none.
func (o Options) sceneImage(sc domain.Scene) (image.Image, error) {
	if o.Images == nil || sc.ImageURL == "" {
		return nil, nil
	}
	rc, err := o.Images.OpenImage(sc.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("open image of scene %s: %w", sc.ID, err)
	}
	defer rc.Close()
	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decode image of scene %s: %w", sc.ID, err)
	}
	return img, nil
}

// overlay is a resolved text in scene coordinates.
type overlay struct {
	textlayout.Effective
	Box  vector.Rect
	Text string
}

// overlays resolves the texts of a panel for lang and lays them out.
func overlays(g *domain.StoryGraph, p domain.Panel, lang string, fonts textlayout.Provider) []overlay {
	b := vector.Bounds(p)
	layouter := textlayout.NewWordWrap(fonts)
	var out []overlay
	for _, e := range textlayout.ResolvePanel(g, p.ID, lang) {
		text := textlayout.RenderedText(e.Text, e.BubbleType)
		if text == "" {
			continue
		}
		w, h, err := textlayout.MeasureBox(layouter, e.Style, text, e.Width)
		if err != nil {
			continue
		}
		out = append(out, overlay{
			Effective: e,
			Box:       vector.R(b.X+e.PositionX, b.Y+e.PositionY, w, h),
			Text:      text,
		})
	}
	return out
}

// wrap breaks an overlay's text into lines that fit its box.
func wrap(o overlay) []string {
	box, err := textlayout.NewWordWrap(nil).Layout(
		[]textlayout.Span{{Text: o.Text, Font: textlayout.SpecFor(o.Style)}},
		max(o.Box.W-2*o.Style.Padding, 0))
	if err != nil {
		return []string{o.Text}
	}
	lines := make([]string, 0, len(box.Lines))
	for _, l := range box.Lines {
		var sb strings.Builder
		for _, sp := range l.Spans {
			sb.WriteString(sp.Text)
		}
		lines = append(lines, strings.TrimSpace(sb.String()))
	}
	return lines
}

type rgb struct{ R, G, B int }

func hexColor(s string, def rgb) rgb {
	if r, g, b, ok := textlayout.ParseHex(s); ok {
		return rgb{r, g, b}
	}
	return def
}

var (
	black = rgb{0, 0, 0}
	white = rgb{255, 255, 255}
	guide = rgb{220, 40, 40}
)
