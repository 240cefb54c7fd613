/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

// FontRegistry holds the font families loaded for a story. It is injected
// into whatever measures or renders text instead of living in a package
// level set, and it is safe for concurrent use.
type FontRegistry struct {
	mu    sync.RWMutex
	fonts map[fontKey]*opentype.Font

	// DPI of the faces handed out; 72 keeps font size equal to pixels.
	DPI      float64
	Fallback Provider
}

type fontKey struct {
	family string
	weight int
	italic bool
}

func NewFontRegistry() *FontRegistry {
	return &FontRegistry{fonts: make(map[fontKey]*opentype.Font), DPI: 72}
}

func normFamily(f string) string { return strings.ToLower(strings.TrimSpace(f)) }

// Register parses TTF/OTF data and stores it under family/weight/italic.
func (r *FontRegistry) Register(family string, weight int, italic bool, data []byte) error {
	if normFamily(family) == "" {
		return fmt.Errorf("register font: empty family")
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %s: %w", family, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fonts == nil {
		r.fonts = make(map[fontKey]*opentype.Font)
	}
	r.fonts[fontKey{family: normFamily(family), weight: weight, italic: italic}] = f
	return nil
}

// LoadFile registers a font file.
func (r *FontRegistry) LoadFile(family string, weight int, italic bool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	return r.Register(family, weight, italic, data)
}

// LoadArg registers a font given as family[:weight][:italic]=path, the
// form used by the --font flag and the general.fonts config key.
func (r *FontRegistry) LoadArg(arg string) error {
	name, path, ok := strings.Cut(arg, "=")
	if !ok || strings.TrimSpace(path) == "" {
		return fmt.Errorf("font %q: want family[:weight][:italic]=path", arg)
	}
	parts := strings.Split(name, ":")
	weight, italic := 400, false
	for _, p := range parts[1:] {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "italic" || p == "i":
			italic = true
		case p == "bold":
			weight = 700
		default:
			w, err := strconv.Atoi(p)
			if err != nil || w < 100 || w > 900 {
				return fmt.Errorf("font %q: bad weight or style %q", arg, p)
			}
			weight = w
		}
	}
	return r.LoadFile(parts[0], weight, italic, strings.TrimSpace(path))
}

// LoadFontArgs builds a registry from LoadArg entries.
func LoadFontArgs(args []string) (*FontRegistry, error) {
	r := NewFontRegistry()
	for _, a := range args {
		if err := r.LoadArg(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Has reports whether any face of the family is loaded.
func (r *FontRegistry) Has(family string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fam := normFamily(family)
	for k := range r.fonts {
		if k.family == fam {
			return true
		}
	}
	return false
}

// Families lists loaded families in sorted order.
func (r *FontRegistry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for k := range r.fonts {
		if !seen[k.family] {
			seen[k.family] = true
			out = append(out, k.family)
		}
	}
	sort.Strings(out)
	return out
}

// find picks the exact face, else the same family with the closest weight
// and matching slant.
func (r *FontRegistry) find(spec FontSpec) *opentype.Font {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fam := normFamily(spec.Family)
	if f, ok := r.fonts[fontKey{family: fam, weight: spec.Weight, italic: spec.Italic}]; ok {
		return f
	}
	var best *opentype.Font
	bestScore := -1
	for k, f := range r.fonts {
		if k.family != fam {
			continue
		}
		score := abs(k.weight - spec.Weight)
		if k.italic != spec.Italic {
			score += 1000
		}
		if bestScore < 0 || score < bestScore {
			best, bestScore = f, score
		}
	}
	return best
}

// Resolve implements Provider. Unknown families fall back to Fallback, or
// to the built-in bitmap face.
func (r *FontRegistry) Resolve(spec FontSpec) (font.Face, Metrics) {
	if spec.Size <= 0 {
		spec.Size = 16
	}
	dpi := r.DPI
	if dpi <= 0 {
		dpi = 72
	}
	if f := r.find(spec); f != nil {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: spec.Size, DPI: dpi, Hinting: font.HintingFull})
		if err == nil {
			return face, metricsOf(face)
		}
	}
	fb := r.Fallback
	if fb == nil {
		fb = BasicProvider{}
	}
	return fb.Resolve(spec)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
