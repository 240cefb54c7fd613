/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the relational data model of InStory. Each type maps to one
// table; JSON tags use the column names so rows round-trip through the HTTP API
// and the story bundle unchanged.

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid marks validation failures. Callers test with errors.Is.
var ErrInvalid = errors.New("invalid")

// ErrDuplicateFlow is returned when a scene would get a second
// unconditional choice.
var ErrDuplicateFlow = errors.New("scene already has an unconditional choice")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Story is the root of an interactive comic.
type Story struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	IsPublished bool      `json:"is_published"`
	AuthorID    string    `json:"author_id"`
	CoverURL    string    `json:"cover_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s Story) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return invalidf("story title is required")
	}
	return nil
}

// Scene is one illustrated page of a story.
type Scene struct {
	ID              string    `json:"id"`
	StoryID         string    `json:"story_id"`
	Title           string    `json:"title,omitempty"`
	ImageURL        string    `json:"image_url,omitempty"`
	ImageWidth      int       `json:"image_width,omitempty"`
	ImageHeight     int       `json:"image_height,omitempty"`
	OrderIndex      int       `json:"order_index"`
	IsStartScene    bool      `json:"is_start_scene"`
	IsDecisionScene bool      `json:"is_decision_scene"`
	CreatedAt       time.Time `json:"created_at"`
}

func (s Scene) Validate() error {
	if s.StoryID == "" {
		return invalidf("scene requires story_id")
	}
	if s.ImageWidth < 0 || s.ImageHeight < 0 {
		return invalidf("scene image dimensions must be non-negative")
	}
	return nil
}

// ShapeKind enumerates the panel outlines an author can draw.
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapePolygon   ShapeKind = "polygon"
	ShapeEllipse   ShapeKind = "ellipse"
	ShapeBrush     ShapeKind = "brush"
)

func (k ShapeKind) Valid() bool {
	switch k {
	case ShapeRectangle, ShapePolygon, ShapeEllipse, ShapeBrush:
		return true
	}
	return false
}

// Point is a vertex of a freeform polygon in scene image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BrushPoint is one sampled pointer position of a brush stroke.
// Size is the brush diameter at that sample.
type BrushPoint struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size"`
}

// Rect is an axis-aligned box in scene image coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Panel is a drawn sub-region of a scene. X/Y/Width/Height always hold the
// bounding box; the remaining geometry fields depend on Shape.
type Panel struct {
	ID           string       `json:"id"`
	SceneID      string       `json:"scene_id"`
	Shape        ShapeKind    `json:"shape"`
	X            float64      `json:"x"`
	Y            float64      `json:"y"`
	Width        float64      `json:"width"`
	Height       float64      `json:"height"`
	Points       []Point      `json:"points,omitempty"`
	BrushStrokes []BrushPoint `json:"brush_strokes,omitempty"`
	CenterX      float64      `json:"center_x,omitempty"`
	CenterY      float64      `json:"center_y,omitempty"`
	RadiusX      float64      `json:"radius_x,omitempty"`
	RadiusY      float64      `json:"radius_y,omitempty"`
	OrderIndex   int          `json:"order_index"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Box returns the panel bounding box.
func (p Panel) Box() Rect { return Rect{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height} }

func (p Panel) Validate() error {
	if p.SceneID == "" {
		return invalidf("panel requires scene_id")
	}
	if !p.Shape.Valid() {
		return invalidf("unknown panel shape %q", p.Shape)
	}
	if p.Width < 0 || p.Height < 0 {
		return invalidf("panel size must be non-negative")
	}
	switch p.Shape {
	case ShapePolygon:
		if len(p.Points) < 3 {
			return invalidf("polygon panel needs at least 3 points, got %d", len(p.Points))
		}
	case ShapeBrush:
		if len(p.BrushStrokes) == 0 {
			return invalidf("brush panel has no stroke samples")
		}
	case ShapeEllipse:
		if p.RadiusX <= 0 || p.RadiusY <= 0 {
			return invalidf("ellipse panel needs positive radii")
		}
	default:
		if p.Width == 0 || p.Height == 0 {
			return invalidf("rectangle panel has zero area")
		}
	}
	return nil
}

// Choice is a directed edge between scenes. An empty Text is the
// unconditional "normal flow" successor; otherwise the reader shows it as a
// decision option.
type Choice struct {
	ID            string    `json:"id"`
	SceneID       string    `json:"scene_id"`
	TargetSceneID string    `json:"target_scene_id"`
	Text          string    `json:"text"`
	OrderIndex    int       `json:"order_index"`
	CreatedAt     time.Time `json:"created_at"`
}

func (c Choice) IsUnconditional() bool { return strings.TrimSpace(c.Text) == "" }

func (c Choice) Validate() error {
	if c.SceneID == "" || c.TargetSceneID == "" {
		return invalidf("choice requires scene_id and target_scene_id")
	}
	return nil
}

// StoryLanguage lists a language a story is translated into.
type StoryLanguage struct {
	StoryID      string `json:"story_id"`
	LanguageCode string `json:"language_code"`
	IsDefault    bool   `json:"is_default"`
}

// ScenePosition is the persisted flow-editor coordinate of a scene node.
type ScenePosition struct {
	SceneID string  `json:"scene_id"`
	StoryID string  `json:"story_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}
