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
)

// PlacementOptions controls where a new text box is suggested inside a panel.
//
// Padding is added around the measured text size to form the box.
// Margin is the clearance kept from the panel edges.
// GridStep is the search granularity; smaller steps find tighter fits.
// When HasAnchor is set, candidates whose center is closest to Anchor are
// tried first (the point the author clicked).
type PlacementOptions struct {
	RTL       bool
	Padding   float64
	Margin    float64
	GridStep  float64
	Anchor    Pt
	HasAnchor bool
}

// SuggestTextPlacement proposes a box for a new text overlay inside panel that
// avoids the boxes of existing overlays. The first collision-free candidate
// in reading order wins; otherwise the least overlapping one. The result
// includes padding and stays within the panel inset by Margin. The second
// return value is the number of candidates evaluated.
func SuggestTextPlacement(panel Rect, content Size, obstacles []Rect, opts PlacementOptions) (Rect, int) {
	if opts.Padding <= 0 {
		opts.Padding = 8
	}
	if opts.Margin <= 0 {
		opts.Margin = 8
	}
	if opts.GridStep <= 0 {
		opts.GridStep = 8
	}

	inner := panel.Inset(opts.Margin, opts.Margin)
	bw := math.Min(math.Max(0, content.W+2*opts.Padding), math.Max(0, inner.W))
	bh := math.Min(math.Max(0, content.H+2*opts.Padding), math.Max(0, inner.H))

	x0, y0 := inner.X, inner.Y
	x1 := math.Max(x0, inner.X+inner.W-bw)
	y1 := math.Max(y0, inner.Y+inner.H-bh)

	var candidates []Rect
	for y := y0; ; y += opts.GridStep {
		y = math.Min(y, y1)
		if opts.RTL {
			for x := x1; ; x -= opts.GridStep {
				x = math.Max(x, x0)
				candidates = append(candidates, R(FloatRound(x, 3), FloatRound(y, 3), FloatRound(bw, 3), FloatRound(bh, 3)))
				if x == x0 {
					break
				}
			}
		} else {
			for x := x0; ; x += opts.GridStep {
				x = math.Min(x, x1)
				candidates = append(candidates, R(FloatRound(x, 3), FloatRound(y, 3), FloatRound(bw, 3), FloatRound(bh, 3)))
				if x == x1 {
					break
				}
			}
		}
		if y == y1 {
			break
		}
	}

	if opts.HasAnchor {
		sort.SliceStable(candidates, func(i, j int) bool {
			di := dist(candidates[i].Center(), opts.Anchor)
			dj := dist(candidates[j].Center(), opts.Anchor)
			if di == dj {
				if candidates[i].Y == candidates[j].Y {
					return candidates[i].X < candidates[j].X
				}
				return candidates[i].Y < candidates[j].Y
			}
			return di < dj
		})
	}

	best := candidates[0]
	bestCost := math.Inf(1)
	attempts := 0
	for _, c := range candidates {
		attempts++
		ov := overlapArea(c, obstacles)
		if ov <= 0.0001 {
			best = c
			break
		}
		cost := ov * 10_000
		if opts.HasAnchor {
			cost += dist(c.Center(), opts.Anchor)
		}
		// prefer higher boxes, then the side reading starts from
		cost += c.Y * 0.01
		if opts.RTL {
			cost += (inner.X + inner.W - (c.X + c.W)) * 0.001
		} else {
			cost += c.X * 0.001
		}
		if cost < bestCost {
			bestCost = cost
			best = c
		}
	}
	return clampTo(best, inner), attempts
}

func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.W && r.X+r.W > o.X && r.Y < o.Y+o.H && r.Y+r.H > o.Y
}

// Intersection returns the overlapping rect, or the zero Rect.
func (r Rect) Intersection(o Rect) Rect {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.X+r.W, o.X+o.W)
	y1 := math.Min(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return R(x0, y0, x1-x0, y1-y0)
}

func dist(a, b Pt) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

func clampTo(r Rect, bounds Rect) Rect {
	r.X = math.Max(r.X, bounds.X)
	r.Y = math.Max(r.Y, bounds.Y)
	if r.X+r.W > bounds.X+bounds.W {
		r.X = bounds.X + bounds.W - r.W
	}
	if r.Y+r.H > bounds.Y+bounds.H {
		r.Y = bounds.Y + bounds.H - r.H
	}
	return r
}

func overlapArea(r Rect, obstacles []Rect) float64 {
	var sum float64
	for _, o := range obstacles {
		if in := r.Intersection(o); in.W > 0 && in.H > 0 {
			sum += in.W * in.H
		}
	}
	return sum
}
