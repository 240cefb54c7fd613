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
	"sort"

	"instory/internal/domain"
)

// DefaultRowTolerance is the vertical distance within which panel centers
// count as the same row.
const DefaultRowTolerance = 50.0

// SortReadingOrder returns a copy of panels sorted into reading order with
// OrderIndex rewritten to 0..n-1. Panels are grouped into rows by the
// vertical center of their bounding box; a panel joins the current row when
// its center lies within tolerance of the row's first panel. Rows run top to
// bottom, panels inside a row left to right, or right to left when rtl is set.
func SortReadingOrder(panels []domain.Panel, rtl bool, tolerance float64) []domain.Panel {
	if tolerance <= 0 {
		tolerance = DefaultRowTolerance
	}
	type item struct {
		p      domain.Panel
		cx, cy float64
	}
	items := make([]item, len(panels))
	for i, p := range panels {
		c := Bounds(p).Center()
		items[i] = item{p: p, cx: c.X, cy: c.Y}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].cy < items[j].cy })

	var rows [][]item
	for _, it := range items {
		if n := len(rows); n > 0 && math.Abs(it.cy-rows[n-1][0].cy) <= tolerance {
			rows[n-1] = append(rows[n-1], it)
			continue
		}
		rows = append(rows, []item{it})
	}

	out := make([]domain.Panel, 0, len(panels))
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool {
			if rtl {
				return row[i].cx > row[j].cx
			}
			return row[i].cx < row[j].cx
		})
		for _, it := range row {
			it.p.OrderIndex = len(out)
			out = append(out, it.p)
		}
	}
	return out
}

// HitTest returns the index of the topmost panel whose bounding box contains
// p. Later panels in reading order are drawn on top. Precise shape containment
// is not checked.
func HitTest(panels []domain.Panel, p Pt) (int, bool) {
	best := -1
	for i, pnl := range panels {
		if !Bounds(pnl).Contains(p) {
			continue
		}
		if best < 0 || pnl.OrderIndex >= panels[best].OrderIndex {
			best = i
		}
	}
	return best, best >= 0
}
