/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import (
	"testing"

	"instory/internal/domain"
)

func TestDrawer_RectangleDrag(t *testing.T) {
	d := NewDrawer("s1", ToolRectangle)
	d.PointerDown(Pt{100, 80})
	d.PointerMove(Pt{40, 20})
	if pv := d.Preview(); len(pv) != 4 || pv[0] != (Pt{40, 20}) {
		t.Fatalf("unexpected preview %v", pv)
	}
	p, ok := d.PointerUp(Pt{40, 20})
	if !ok {
		t.Fatalf("expected a panel")
	}
	if p.Shape != domain.ShapeRectangle || p.X != 40 || p.Y != 20 || p.Width != 60 || p.Height != 60 || p.SceneID != "s1" {
		t.Fatalf("unexpected panel %+v", p)
	}
	if d.Active() {
		t.Fatalf("drawer should be idle after pointer up")
	}
}

func TestDrawer_ClickWithoutDragDiscarded(t *testing.T) {
	d := NewDrawer("s1", ToolEllipse)
	d.PointerDown(Pt{10, 10})
	if _, ok := d.PointerUp(Pt{10, 10}); ok {
		t.Fatalf("zero-area ellipse must be discarded")
	}
}

func TestDrawer_PolygonClosedOnDoubleClick(t *testing.T) {
	d := NewDrawer("s1", ToolPolygon)
	d.Click(Pt{0, 0})
	d.Click(Pt{50, 0})
	d.Click(Pt{50, 40})
	// the two clicks of a double click arrive first
	d.Click(Pt{0, 40})
	d.Click(Pt{0, 40})
	p, ok := d.DoubleClick(Pt{0, 40})
	if !ok {
		t.Fatalf("expected a polygon")
	}
	if len(p.Points) != 4 {
		t.Fatalf("expected 4 distinct points, got %v", p.Points)
	}
	if p.Width != 50 || p.Height != 40 {
		t.Fatalf("unexpected bounds %+v", p)
	}
}

func TestDrawer_PolygonTooFewPointsDiscarded(t *testing.T) {
	d := NewDrawer("s1", ToolPolygon)
	d.Click(Pt{0, 0})
	d.Click(Pt{10, 10})
	if _, ok := d.DoubleClick(Pt{10, 10}); ok {
		t.Fatalf("polygon with 2 points must be discarded")
	}
	if d.Active() {
		t.Fatalf("points should be cleared after discard")
	}
}

func TestDrawer_BrushMinSpacing(t *testing.T) {
	d := NewDrawer("s1", ToolBrush)
	d.BrushSize = 6
	d.PointerDown(Pt{0, 0})
	d.PointerMove(Pt{0.5, 0})
	d.PointerMove(Pt{5, 0})
	d.PointerMove(Pt{5.5, 0})
	p, ok := d.PointerUp(Pt{10, 0})
	if !ok {
		t.Fatalf("expected brush panel")
	}
	if len(p.BrushStrokes) != 3 {
		t.Fatalf("expected 3 samples after spacing filter, got %v", p.BrushStrokes)
	}
	for _, s := range p.BrushStrokes {
		if s.Size != 6 {
			t.Fatalf("sample size not recorded: %+v", s)
		}
	}
}

func TestDrawer_SetToolCancels(t *testing.T) {
	d := NewDrawer("s1", ToolPolygon)
	d.Click(Pt{1, 1})
	d.SetTool(ToolRectangle)
	if d.Active() {
		t.Fatalf("switching tools should cancel the gesture")
	}
}
