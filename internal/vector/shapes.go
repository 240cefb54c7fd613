/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

// Panel shape encodings and their render descriptors. A panel is rendered as
// a cut-out of the full scene image, so every shape reduces to a CSS
// clip-path in scene image pixels.

import (
	"errors"
	"math"
	"strings"

	"instory/internal/domain"
)

// DefaultBrushSize is the diameter used for samples recorded without one.
const DefaultBrushSize = 20.0

// ellipseSegments controls the polygon approximation of ellipses for exporters.
const ellipseSegments = 48

var (
	ErrTooFewPoints = errors.New("freeform panel needs at least 3 points")
	ErrEmptyStroke  = errors.New("brush panel needs at least one sample")
	ErrZeroArea     = errors.New("panel has zero area")
)

// RectPanel builds a rectangle panel from two drag corners.
func RectPanel(sceneID string, a, b Pt) (domain.Panel, error) {
	box := Normalize(a, b)
	if box.W == 0 || box.H == 0 {
		return domain.Panel{}, ErrZeroArea
	}
	return domain.Panel{SceneID: sceneID, Shape: domain.ShapeRectangle, X: box.X, Y: box.Y, Width: box.W, Height: box.H}, nil
}

// EllipsePanel builds an ellipse inscribed in the drag box; it stores the
// center and radii next to the bounding box.
func EllipsePanel(sceneID string, a, b Pt) (domain.Panel, error) {
	box := Normalize(a, b)
	if box.W == 0 || box.H == 0 {
		return domain.Panel{}, ErrZeroArea
	}
	c := box.Center()
	return domain.Panel{
		SceneID: sceneID, Shape: domain.ShapeEllipse,
		X: box.X, Y: box.Y, Width: box.W, Height: box.H,
		CenterX: c.X, CenterY: c.Y, RadiusX: box.W / 2, RadiusY: box.H / 2,
	}, nil
}

// PolygonPanel builds a freeform panel; the bounding box is the min/max of the points.
func PolygonPanel(sceneID string, pts []Pt) (domain.Panel, error) {
	if len(pts) < 3 {
		return domain.Panel{}, ErrTooFewPoints
	}
	box := BoundsOf(pts)
	if box.W == 0 || box.H == 0 {
		return domain.Panel{}, ErrZeroArea
	}
	dp := make([]domain.Point, len(pts))
	for i, p := range pts {
		dp[i] = domain.Point{X: p.X, Y: p.Y}
	}
	return domain.Panel{SceneID: sceneID, Shape: domain.ShapePolygon, X: box.X, Y: box.Y, Width: box.W, Height: box.H, Points: dp}, nil
}

// BrushPanel builds a brush panel; its bounding box covers the stroke ribbon.
func BrushPanel(sceneID string, samples []domain.BrushPoint) (domain.Panel, error) {
	if len(samples) == 0 {
		return domain.Panel{}, ErrEmptyStroke
	}
	box := BoundsOf(BrushOutline(samples))
	return domain.Panel{
		SceneID: sceneID, Shape: domain.ShapeBrush,
		X: box.X, Y: box.Y, Width: box.W, Height: box.H,
		BrushStrokes: append([]domain.BrushPoint(nil), samples...),
	}, nil
}

// BrushOutline converts stroke samples into a ribbon polygon. Each sample is
// offset by half its diameter along the normal of the local tangent, which is
// estimated from the neighboring samples. The outline lists the top offsets
// followed by the bottom offsets in reverse. A single sample yields a square.
func BrushOutline(samples []domain.BrushPoint) []Pt {
	n := len(samples)
	if n == 0 {
		return nil
	}
	radius := func(s domain.BrushPoint) float64 {
		if s.Size <= 0 {
			return DefaultBrushSize / 2
		}
		return s.Size / 2
	}
	if n == 1 {
		s := samples[0]
		r := radius(s)
		return []Pt{{s.X - r, s.Y - r}, {s.X + r, s.Y - r}, {s.X + r, s.Y + r}, {s.X - r, s.Y + r}}
	}
	top := make([]Pt, 0, n)
	bottom := make([]Pt, 0, n)
	for i, s := range samples {
		prev := samples[max(i-1, 0)]
		next := samples[min(i+1, n-1)]
		dx, dy := next.X-prev.X, next.Y-prev.Y
		l := math.Hypot(dx, dy)
		nx, ny := 0.0, -1.0
		if l > 0 {
			nx, ny = -dy/l, dx/l
		}
		r := radius(s)
		top = append(top, Pt{s.X + nx*r, s.Y + ny*r})
		bottom = append(bottom, Pt{s.X - nx*r, s.Y - ny*r})
	}
	out := top
	for i := len(bottom) - 1; i >= 0; i-- {
		out = append(out, bottom[i])
	}
	return out
}

// Bounds recomputes a panel's bounding box from its shape geometry.
func Bounds(p domain.Panel) Rect {
	switch p.Shape {
	case domain.ShapeEllipse:
		return Rect{X: p.CenterX - p.RadiusX, Y: p.CenterY - p.RadiusY, W: 2 * p.RadiusX, H: 2 * p.RadiusY}
	case domain.ShapePolygon:
		return BoundsOf(points(p.Points))
	case domain.ShapeBrush:
		return BoundsOf(BrushOutline(p.BrushStrokes))
	default:
		return Rect{X: p.X, Y: p.Y, W: p.Width, H: p.Height}
	}
}

// Outline returns a polygon approximating the panel shape.
func Outline(p domain.Panel) []Pt {
	switch p.Shape {
	case domain.ShapeEllipse:
		out := make([]Pt, ellipseSegments)
		for i := range out {
			a := 2 * math.Pi * float64(i) / ellipseSegments
			out[i] = Pt{p.CenterX + p.RadiusX*math.Cos(a), p.CenterY + p.RadiusY*math.Sin(a)}
		}
		return out
	case domain.ShapePolygon:
		return points(p.Points)
	case domain.ShapeBrush:
		return BrushOutline(p.BrushStrokes)
	default:
		return rectCorners(Rect{X: p.X, Y: p.Y, W: p.Width, H: p.Height})
	}
}

// ClipPath returns the CSS clip-path that cuts the panel out of the scene image.
func ClipPath(p domain.Panel) string {
	if p.Shape == domain.ShapeEllipse {
		return "ellipse(" + px(p.RadiusX) + " " + px(p.RadiusY) + " at " + px(p.CenterX) + " " + px(p.CenterY) + ")"
	}
	return polygonCSS(Outline(p), px)
}

// ClipPathRelative is ClipPath in percentages of the scene image size, for
// clients that render the image scaled. It returns "" for a zero-sized image.
func ClipPathRelative(p domain.Panel, imageW, imageH float64) string {
	if imageW <= 0 || imageH <= 0 {
		return ""
	}
	pctX := func(v float64) string { return Num(v/imageW*100) + "%" }
	pctY := func(v float64) string { return Num(v/imageH*100) + "%" }
	if p.Shape == domain.ShapeEllipse {
		return "ellipse(" + pctX(p.RadiusX) + " " + pctY(p.RadiusY) + " at " + pctX(p.CenterX) + " " + pctY(p.CenterY) + ")"
	}
	pts := Outline(p)
	parts := make([]string, len(pts))
	for i, pt := range pts {
		parts[i] = pctX(pt.X) + " " + pctY(pt.Y)
	}
	return "polygon(" + strings.Join(parts, ", ") + ")"
}

// SVGPath returns the panel outline as path geometry; ellipses use two arcs.
func SVGPath(p domain.Panel) Path {
	if p.Shape == domain.ShapeEllipse {
		var path Path
		path.MoveTo(p.CenterX-p.RadiusX, p.CenterY)
		path.ArcTo(p.RadiusX, p.RadiusY, p.CenterX+p.RadiusX, p.CenterY)
		path.ArcTo(p.RadiusX, p.RadiusY, p.CenterX-p.RadiusX, p.CenterY)
		path.Close()
		return path
	}
	return Polygon(Outline(p))
}

func polygonCSS(pts []Pt, f func(float64) string) string {
	parts := make([]string, len(pts))
	for i, pt := range pts {
		parts[i] = f(pt.X) + " " + f(pt.Y)
	}
	return "polygon(" + strings.Join(parts, ", ") + ")"
}

func px(v float64) string { return Num(v) + "px" }

func points(dp []domain.Point) []Pt {
	out := make([]Pt, len(dp))
	for i, p := range dp {
		out[i] = Pt{p.X, p.Y}
	}
	return out
}

func rectCorners(r Rect) []Pt {
	return []Pt{{r.X, r.Y}, {r.X + r.W, r.Y}, {r.X + r.W, r.Y + r.H}, {r.X, r.Y + r.H}}
}

// TranslatePanel moves every coordinate of a panel by (dx, dy).
func TranslatePanel(p domain.Panel, dx, dy float64) domain.Panel {
	p.X += dx
	p.Y += dy
	if p.Shape == domain.ShapeEllipse {
		p.CenterX += dx
		p.CenterY += dy
	}
	if len(p.Points) > 0 {
		pts := make([]domain.Point, len(p.Points))
		for i, q := range p.Points {
			pts[i] = domain.Point{X: q.X + dx, Y: q.Y + dy}
		}
		p.Points = pts
	}
	if len(p.BrushStrokes) > 0 {
		bs := make([]domain.BrushPoint, len(p.BrushStrokes))
		for i, q := range p.BrushStrokes {
			bs[i] = domain.BrushPoint{X: q.X + dx, Y: q.Y + dy, Size: q.Size}
		}
		p.BrushStrokes = bs
	}
	return p
}
