/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import (
	"math"

	"instory/internal/domain"
)

// Tool selects how pointer input is interpreted by a Drawer.
type Tool string

const (
	ToolSelect    Tool = "select"
	ToolRectangle Tool = "rectangle"
	ToolEllipse   Tool = "ellipse"
	ToolPolygon   Tool = "polygon"
	ToolBrush     Tool = "brush"
)

// DefaultMinSpacing is the minimum distance between two recorded brush samples.
const DefaultMinSpacing = 2.0

// Drawer turns pointer events into panel geometry for one scene. Rectangle,
// ellipse and brush panels are drag gestures finished on pointer up; freeform
// panels collect clicked points and are closed by a double click.
//
// A Drawer is owned by a single input loop and is not safe for concurrent use.
type Drawer struct {
	SceneID    string
	Tool       Tool
	BrushSize  float64
	MinSpacing float64

	dragging bool
	start    Pt
	current  Pt
	points   []Pt
	samples  []domain.BrushPoint
}

func NewDrawer(sceneID string, tool Tool) *Drawer {
	return &Drawer{SceneID: sceneID, Tool: tool, BrushSize: DefaultBrushSize, MinSpacing: DefaultMinSpacing}
}

// SetTool switches tools and drops any gesture in progress.
func (d *Drawer) SetTool(t Tool) {
	d.Cancel()
	d.Tool = t
}

// Active reports whether a gesture is in progress.
func (d *Drawer) Active() bool { return d.dragging || len(d.points) > 0 }

func (d *Drawer) PointerDown(p Pt) {
	switch d.Tool {
	case ToolRectangle, ToolEllipse:
		d.dragging = true
		d.start, d.current = p, p
	case ToolBrush:
		d.dragging = true
		d.samples = d.samples[:0]
		d.addSample(p, true)
	}
}

func (d *Drawer) PointerMove(p Pt) {
	if !d.dragging {
		if d.Tool == ToolPolygon {
			d.current = p
		}
		return
	}
	switch d.Tool {
	case ToolRectangle, ToolEllipse:
		d.current = p
	case ToolBrush:
		d.addSample(p, false)
	}
}

// PointerUp finishes a drag gesture. ok is false when nothing usable was
// drawn (no gesture, zero-area box).
func (d *Drawer) PointerUp(p Pt) (panel domain.Panel, ok bool) {
	if !d.dragging {
		return domain.Panel{}, false
	}
	d.dragging = false
	var err error
	switch d.Tool {
	case ToolRectangle:
		panel, err = RectPanel(d.SceneID, d.start, p)
	case ToolEllipse:
		panel, err = EllipsePanel(d.SceneID, d.start, p)
	case ToolBrush:
		d.addSample(p, false)
		panel, err = BrushPanel(d.SceneID, d.samples)
		d.samples = nil
	default:
		return domain.Panel{}, false
	}
	return panel, err == nil
}

// Click adds a vertex to a freeform panel. A click on the previous vertex is
// ignored, since a double click is delivered as two clicks first.
func (d *Drawer) Click(p Pt) {
	if d.Tool != ToolPolygon {
		return
	}
	if n := len(d.points); n > 0 && samePoint(d.points[n-1], p) {
		return
	}
	d.points = append(d.points, p)
	d.current = p
}

// DoubleClick closes a freeform panel. Fewer than 3 distinct points discard it.
func (d *Drawer) DoubleClick(p Pt) (domain.Panel, bool) {
	if d.Tool != ToolPolygon {
		return domain.Panel{}, false
	}
	d.Click(p)
	pts := d.points
	d.points = nil
	panel, err := PolygonPanel(d.SceneID, pts)
	return panel, err == nil
}

// Cancel drops the gesture in progress.
func (d *Drawer) Cancel() {
	d.dragging = false
	d.points = nil
	d.samples = nil
}

// Preview returns the outline of the gesture in progress for rubber-band rendering.
func (d *Drawer) Preview() []Pt {
	switch d.Tool {
	case ToolRectangle, ToolEllipse:
		if !d.dragging {
			return nil
		}
		return rectCorners(Normalize(d.start, d.current))
	case ToolPolygon:
		if len(d.points) == 0 {
			return nil
		}
		return append(append([]Pt(nil), d.points...), d.current)
	case ToolBrush:
		return BrushOutline(d.samples)
	}
	return nil
}

func (d *Drawer) addSample(p Pt, force bool) {
	if n := len(d.samples); n > 0 && !force {
		last := d.samples[n-1]
		if math.Hypot(p.X-last.X, p.Y-last.Y) < d.MinSpacing {
			return
		}
	}
	size := d.BrushSize
	if size <= 0 {
		size = DefaultBrushSize
	}
	d.samples = append(d.samples, domain.BrushPoint{X: p.X, Y: p.Y, Size: size})
}

func samePoint(a, b Pt) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9
}
