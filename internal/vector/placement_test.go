/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import "testing"

func TestSuggestTextPlacement_TopLeft(t *testing.T) {
	panel := R(0, 0, 300, 200)
	pos, attempts := SuggestTextPlacement(panel, Size{W: 100, H: 60}, nil, PlacementOptions{})
	if attempts == 0 {
		t.Fatalf("expected attempts > 0")
	}
	// Margin=8, Padding=8
	if pos != R(8, 8, 116, 76) {
		t.Fatalf("unexpected placement %+v", pos)
	}
}

func TestSuggestTextPlacement_AvoidsExistingText(t *testing.T) {
	panel := R(0, 0, 300, 200)
	obstacles := []Rect{R(8, 8, 150, 100)}
	pos, _ := SuggestTextPlacement(panel, Size{W: 100, H: 60}, obstacles, PlacementOptions{})
	if pos.Y != 8 || pos.X != 160 {
		t.Fatalf("expected (160,8), got (%.1f,%.1f)", pos.X, pos.Y)
	}
	if pos.Intersects(obstacles[0]) {
		t.Fatalf("placement overlaps existing text")
	}
}

func TestSuggestTextPlacement_RTLStartsTopRight(t *testing.T) {
	pos, _ := SuggestTextPlacement(R(0, 0, 300, 200), Size{W: 100, H: 60}, nil, PlacementOptions{RTL: true})
	// inner.X=8, inner.W=284, bw=116 => x=176
	if pos.X != 176 || pos.Y != 8 {
		t.Fatalf("expected (176,8), got (%.1f,%.1f)", pos.X, pos.Y)
	}
}

func TestSuggestTextPlacement_StaysInsidePanel(t *testing.T) {
	panel := R(0, 0, 200, 120)
	inner := panel.Inset(8, 8)
	obstacles := []Rect{inner}
	pos, _ := SuggestTextPlacement(panel, Size{W: 400, H: 400}, obstacles, PlacementOptions{})
	if pos.X < inner.X || pos.Y < inner.Y || pos.X+pos.W > inner.X+inner.W || pos.Y+pos.H > inner.Y+inner.H {
		t.Fatalf("placement %+v escapes %+v", pos, inner)
	}
}
