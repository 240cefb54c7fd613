/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import "strconv"

// FocusTransform maps scene image coordinates so that box is scaled to fit the
// viewport minus padding on every side and centered in it. A degenerate box or
// viewport yields Identity.
func FocusTransform(box Rect, viewport Size, padding float64) Affine2D {
	availW := viewport.W - 2*padding
	availH := viewport.H - 2*padding
	if box.W <= 0 || box.H <= 0 || availW <= 0 || availH <= 0 {
		return Identity
	}
	s := min(availW/box.W, availH/box.H)
	c := box.Center()
	return Translate(viewport.W/2, viewport.H/2).Mul(Scale(s, s)).Mul(Translate(-c.X, -c.Y))
}

// ScaleToView fits the whole scene image into the viewport, as used by the
// panel-to-panel reading mode.
func ScaleToView(image Size, viewport Size) Affine2D {
	return FocusTransform(Rect{W: image.W, H: image.H}, viewport, 0)
}

// CSSMatrix renders the transform as a CSS matrix() value.
func CSSMatrix(m Affine2D) string {
	f := func(v float64) string { return strconv.FormatFloat(FloatRound(v, 6), 'f', -1, 64) }
	return "matrix(" + f(m.A) + ", " + f(m.B) + ", " + f(m.C) + ", " + f(m.D) + ", " + f(m.E) + ", " + f(m.F) + ")"
}
