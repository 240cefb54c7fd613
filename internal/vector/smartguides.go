/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import "math"

// SnapOptions selects the features a dragged text box aligns to.
type SnapOptions struct {
	// Threshold is the largest distance that still snaps. Default 6.
	Threshold     float64
	SnapToEdges   bool
	SnapToCenters bool
	// Margin adds candidates inset from each anchor edge, so a text box can
	// rest a fixed distance inside a panel border.
	Margin float64
}

// Anchor is a fixed box to align with: the panel or a sibling text box.
// Among candidates at the same distance the higher Weight wins.
type Anchor struct {
	Rect   Rect
	Weight float64
}

// GuideLine is the alignment line an editor draws while snapping.
// Orientation is "vertical" or "horizontal", Kind "edge", "margin" or "center".
type GuideLine struct {
	Orientation string
	Kind        string
	Position    float64
	From        Pt
	To          Pt
}

// axis projects rectangles onto X or Y.
type axis struct {
	orientation string
	lo, size    func(Rect) float64
}

var (
	axisX = axis{"vertical", func(r Rect) float64 { return r.X }, func(r Rect) float64 { return r.W }}
	axisY = axis{"horizontal", func(r Rect) float64 { return r.Y }, func(r Rect) float64 { return r.H }}
)

type snapCandidate struct {
	delta float64 // moving feature minus anchor feature
	score float64
	guide GuideLine
	ok    bool
}

// ComputeSmartGuides snaps moving to the closest anchor feature within the
// threshold, independently per axis, and returns the guides that caused it.
func ComputeSmartGuides(moving Rect, anchors []Anchor, opts SnapOptions) (Rect, []GuideLine) {
	if opts.Threshold <= 0 {
		opts.Threshold = 6
	}
	var guides []GuideLine
	snapped := moving
	if c := bestSnap(axisX, moving, anchors, opts); c.ok {
		snapped.X = FloatRound(moving.X-c.delta, 3)
		guides = append(guides, c.guide)
	}
	if c := bestSnap(axisY, moving, anchors, opts); c.ok {
		snapped.Y = FloatRound(moving.Y-c.delta, 3)
		guides = append(guides, c.guide)
	}
	return snapped, guides
}

func bestSnap(ax axis, moving Rect, anchors []Anchor, opts SnapOptions) snapCandidate {
	mLo := ax.lo(moving)
	mHi := mLo + ax.size(moving)
	mMid := mLo + ax.size(moving)/2

	var best snapCandidate
	try := func(a Anchor, movingAt, anchorAt float64, kind string) {
		delta := movingAt - anchorAt
		dist := math.Abs(delta)
		if dist > opts.Threshold {
			return
		}
		score := dist / max(1, a.Weight)
		if best.ok && score >= best.score {
			return
		}
		best = snapCandidate{delta: delta, score: score, guide: guideAt(ax, anchorAt, moving, a.Rect, kind), ok: true}
	}
	for _, a := range anchors {
		lo := ax.lo(a.Rect)
		hi := lo + ax.size(a.Rect)
		if opts.SnapToEdges {
			for _, at := range []float64{lo, hi} {
				try(a, mLo, at, "edge")
				try(a, mHi, at, "edge")
			}
		}
		if opts.Margin > 0 {
			try(a, mLo, lo+opts.Margin, "margin")
			try(a, mHi, hi-opts.Margin, "margin")
		}
		if opts.SnapToCenters {
			try(a, mMid, lo+ax.size(a.Rect)/2, "center")
		}
	}
	return best
}

// guideAt spans the guide across both boxes on the other axis.
func guideAt(ax axis, at float64, a, b Rect, kind string) GuideLine {
	at = FloatRound(at, 3)
	g := GuideLine{Orientation: ax.orientation, Kind: kind, Position: at}
	if ax.orientation == "vertical" {
		g.From = Pt{at, min(a.Y, b.Y)}
		g.To = Pt{at, max(a.Y+a.H, b.Y+b.H)}
	} else {
		g.From = Pt{min(a.X, b.X), at}
		g.To = Pt{max(a.X+a.W, b.X+b.W), at}
	}
	return g
}
