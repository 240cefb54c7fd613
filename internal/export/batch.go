/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/multierr"

	"instory/internal/domain"
)

// PresetName represents a named export preset.
type PresetName string

const (
	PresetWeb   PresetName = "web"
	PresetPrint PresetName = "print"
)

// Formats lists the output formats BatchExport understands.
var Formats = []string{"pdf", "cbz", "png", "svg"}

// BatchOptions controls exporting one story into several formats.
//
// Output layout under OutDir (default "<story-slug>-<preset>"):
//   - <story-slug>.pdf and <story-slug>.cbz
//   - png/ and svg/ with one <nn>-<scene-slug> file per scene
type BatchOptions struct {
	Options
	Preset  PresetName
	Formats []string // empty means preset defaults
	OutDir  string
	Scale   float64 // raster scale; zero means preset default
	// IncludeOutlines, when set, overrides the preset's outline default.
	IncludeOutlines *bool
}

// BatchExport writes the story in every requested format and returns the
// created files. Formats are independent: a failing one does not stop the rest.
func BatchExport(g *domain.StoryGraph, opt BatchOptions) ([]string, error) {
	if g == nil || len(g.Scenes) == 0 {
		return nil, fmt.Errorf("story has no scenes")
	}
	formats := append([]string(nil), opt.Formats...)
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	for i := range formats {
		formats[i] = strings.ToLower(strings.TrimSpace(formats[i]))
	}
	name := slug.Make(g.Story.Title)
	if name == "" {
		name = "story"
	}
	base := opt.OutDir
	if base == "" {
		base = name + "-" + string(nonEmptyPreset(opt.Preset))
	}
	opt.Outlines = presetOutlines(opt.Preset)
	if opt.IncludeOutlines != nil {
		opt.Outlines = *opt.IncludeOutlines
	}
	ro := RasterOptions{Options: opt.Options, Scale: opt.Scale}
	if ro.Scale <= 0 {
		ro.Scale = presetScale(opt.Preset)
	}
	scenes, err := opt.scenes(g)
	if err != nil {
		return nil, err
	}

	var (
		files []string
		errs  error
	)
	write := func(path string, f func(io.Writer) error) {
		if err := writeFile(path, f); err != nil {
			errs = multierr.Append(errs, err)
			return
		}
		files = append(files, path)
	}
	for _, f := range formats {
		switch f {
		case "pdf":
			write(filepath.Join(base, name+".pdf"), func(w io.Writer) error { return WriteStoryboardPDF(w, g, opt.Options) })
		case "cbz":
			write(filepath.Join(base, name+".cbz"), func(w io.Writer) error { return WriteCBZ(w, g, ro) })
		case "png", "svg":
			for i, sc := range scenes {
				p := filepath.Join(base, f, sceneFileName(i, sc)+"."+f)
				id := sc.ID
				if f == "png" {
					write(p, func(w io.Writer) error { return WriteScenePNG(w, g, id, ro) })
				} else {
					write(p, func(w io.Writer) error { return WriteSceneSVG(w, g, id, opt.Options) })
				}
			}
		default:
			errs = multierr.Append(errs, fmt.Errorf("unknown format: %s", f))
		}
	}
	return files, errs
}

func sceneFileName(i int, sc domain.Scene) string {
	s := slug.Make(sc.Title)
	if s == "" {
		s = "scene"
	}
	return fmt.Sprintf("%02d-%s", i+1, s)
}

func writeFile(path string, f func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { err = multierr.Append(err, out.Close()) }()
	if err := f(out); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

func nonEmptyPreset(p PresetName) PresetName {
	if p == "" {
		return PresetWeb
	}
	return p
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetPrint:
		return []string{"pdf", "cbz"}
	default:
		return []string{"png", "svg"}
	}
}

func presetOutlines(p PresetName) bool {
	return p == PresetPrint
}

func presetScale(p PresetName) float64 {
	if p == PresetPrint {
		return 2
	}
	return 1
}
