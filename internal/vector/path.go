/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import (
	"strconv"
	"strings"
)

// Path commands and shapes.

type PathOp uint8

const (
	MoveTo PathOp = iota
	LineTo
	ArcTo // elliptical arc (rx, ry, x, y), large-arc and sweep flags set
	Close
)

type PathCmd struct {
	Op   PathOp
	Data [4]float64
}

type Path struct{ Cmds []PathCmd }

func (p *Path) MoveTo(x, y float64) {
	p.Cmds = append(p.Cmds, PathCmd{Op: MoveTo, Data: [4]float64{x, y}})
}
func (p *Path) LineTo(x, y float64) {
	p.Cmds = append(p.Cmds, PathCmd{Op: LineTo, Data: [4]float64{x, y}})
}
func (p *Path) ArcTo(rx, ry, x, y float64) {
	p.Cmds = append(p.Cmds, PathCmd{Op: ArcTo, Data: [4]float64{rx, ry, x, y}})
}
func (p *Path) Close() { p.Cmds = append(p.Cmds, PathCmd{Op: Close}) }

// Polygon builds a closed path through the points.
func Polygon(pts []Pt) Path {
	var p Path
	for i, pt := range pts {
		if i == 0 {
			p.MoveTo(pt.X, pt.Y)
		} else {
			p.LineTo(pt.X, pt.Y)
		}
	}
	if len(pts) > 0 {
		p.Close()
	}
	return p
}

// Bounds returns an axis-aligned bounding box of the path endpoints.
// Arc bulges are not included; ellipse panels carry their own box.
func (p *Path) Bounds() Rect {
	var pts []Pt
	for _, c := range p.Cmds {
		switch c.Op {
		case MoveTo, LineTo:
			pts = append(pts, Pt{c.Data[0], c.Data[1]})
		case ArcTo:
			pts = append(pts, Pt{c.Data[2], c.Data[3]})
		}
	}
	return BoundsOf(pts)
}

// SVG renders the path as SVG path data.
func (p *Path) SVG() string {
	var b strings.Builder
	for i, c := range p.Cmds {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch c.Op {
		case MoveTo:
			b.WriteString("M " + Num(c.Data[0]) + " " + Num(c.Data[1]))
		case LineTo:
			b.WriteString("L " + Num(c.Data[0]) + " " + Num(c.Data[1]))
		case ArcTo:
			b.WriteString("A " + Num(c.Data[0]) + " " + Num(c.Data[1]) + " 0 1 0 " + Num(c.Data[2]) + " " + Num(c.Data[3]))
		case Close:
			b.WriteString("Z")
		}
	}
	return b.String()
}

// Num formats a coordinate with at most three decimals and no trailing zeros.
func Num(v float64) string {
	v = FloatRound(v, 3)
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
