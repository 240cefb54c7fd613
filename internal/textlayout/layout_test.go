/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"instory/internal/domain"
)

func TestWordWrap_Naive(t *testing.T) {
	l := NewWordWrap(BasicProvider{})
	box, err := l.Layout([]Span{{Text: "Hello world from Go"}}, 50)
	if err != nil {
		t.Fatalf("layout error: %v", err)
	}
	if len(box.Lines) < 2 {
		t.Fatalf("expected wrapping into multiple lines, got %d", len(box.Lines))
	}
	if box.Width <= 0 || box.Height <= 0 {
		t.Fatalf("expected positive box size: %+v", box)
	}
}

func TestWordWrap_Newlines(t *testing.T) {
	box, _ := NewWordWrap(nil).Layout([]Span{{Text: "a\nb\nc"}}, 0)
	if len(box.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(box.Lines))
	}
}

func TestMeasure_Deterministic(t *testing.T) {
	w1, h1 := Measure(BasicProvider{}, []Span{{Text: "ABC"}})
	w2, h2 := Measure(BasicProvider{}, []Span{{Text: "A"}, {Text: "BC"}})
	if w1 != w2 || h1 != h2 {
		t.Fatalf("expected same measure, got w1=%v h1=%v vs w2=%v h2=%v", w1, h1, w2, h2)
	}
	if w1 != 21 { // Face7x13 advances 7px
		t.Fatalf("unexpected width %v", w1)
	}
}

func TestMeasureBox_GrowsWithText(t *testing.T) {
	st := domain.DefaultTextStyle()
	_, h1, err := MeasureBox(nil, st, "short", 120)
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	_, h2, _ := MeasureBox(nil, st, "a much longer line of dialogue that needs to wrap", 120)
	if !(h2 > h1) {
		t.Fatalf("expected wrapped text to be taller: %v vs %v", h1, h2)
	}
	// one line: 16*1.2 + 2*8
	if math.Abs(h1-35.2) > 1e-9 {
		t.Fatalf("unexpected single line height %v", h1)
	}
}

func TestSpecFor(t *testing.T) {
	st := domain.DefaultTextStyle()
	st.FontWeight = "bold"
	st.FontStyle = "italic"
	spec := SpecFor(st)
	if spec.Weight != 700 || !spec.Italic || spec.Size != 16 || spec.Family != "Comic Neue" {
		t.Fatalf("unexpected spec %+v", spec)
	}
	st.FontWeight = "600"
	if SpecFor(st).Weight != 600 {
		t.Fatalf("numeric weight not parsed")
	}
}

func TestFontRegistry(t *testing.T) {
	reg := NewFontRegistry()
	if err := reg.Register("Broken", 400, false, []byte("not a font")); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := reg.Register("Go", 400, false, goregular.TTF); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !reg.Has("go") || reg.Has("Broken") {
		t.Fatalf("unexpected registry content %v", reg.Families())
	}
	if fams := reg.Families(); len(fams) != 1 || fams[0] != "go" {
		t.Fatalf("unexpected families %v", fams)
	}
	_, small := reg.Resolve(FontSpec{Family: "Go", Size: 12, Weight: 700})
	_, large := reg.Resolve(FontSpec{Family: "Go", Size: 48, Weight: 400})
	if !(large.Ascent > small.Ascent) {
		t.Fatalf("registered face should scale with size: %v vs %v", small, large)
	}
	_, fb := reg.Resolve(FontSpec{Family: "Unknown", Size: 48})
	_, basic := BasicProvider{}.Resolve(FontSpec{})
	if fb != basic {
		t.Fatalf("unknown family should fall back to the basic face")
	}
}

func TestLoadFontArgs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "go.ttf")
	if err := os.WriteFile(path, goregular.TTF, 0o600); err != nil {
		t.Fatal(err)
	}
	reg, err := LoadFontArgs([]string{"Go=" + path, "Go:bold:italic=" + path, "Mono:300= " + path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fams := reg.Families(); len(fams) != 2 || fams[0] != "go" || fams[1] != "mono" {
		t.Fatalf("families = %v", fams)
	}
	if reg.find(FontSpec{Family: "go", Weight: 700, Italic: true}) == nil {
		t.Fatal("bold italic face not registered")
	}

	for _, bad := range []string{"Go", "Go=", "Go:heavy=" + path, "Go:1000=" + path, ":400=" + path, "Go=" + path + ".missing"} {
		if _, err := LoadFontArgs([]string{bad}); err == nil {
			t.Errorf("LoadFontArgs(%q) succeeded", bad)
		}
	}
}
