/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"instory/internal/export"
	"instory/internal/textlayout"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		formats  []string
		out      string
		preset   string
		lang     string
		scenes   []string
		scale    float64
		outlines bool
		fontArgs []string
	)
	cmd := &cobra.Command{
		Use:   "export <story-id>",
		Short: "Export a story as PDF storyboard, SVG, PNG or CBZ",
		Long: `Exports one story from the local database.

With a single --format and --out the result is one file: a PDF storyboard,
a CBZ comic book, or the first selected scene as SVG or PNG. Otherwise the
story is exported in every requested format into the directory given by
--out, following the --preset (web: png and svg, print: pdf and cbz).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			repo, files, err := a.openStores(ctx)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, repo.Close()) }()
			g, err := repo.LoadStoryGraph(ctx, args[0])
			if err != nil {
				return err
			}
			fonts, err := a.fonts(fontArgs)
			if err != nil {
				return err
			}
			opt := export.Options{Language: lang, Images: export.BlobImages(files), Scenes: scenes, Outlines: outlines, Fonts: fonts}

			if len(formats) == 1 && out != "" && !isDir(out) {
				return writeOne(out, func(w io.Writer) error {
					switch strings.ToLower(formats[0]) {
					case "pdf":
						return export.WriteStoryboardPDF(w, g, opt)
					case "cbz":
						return export.WriteCBZ(w, g, export.RasterOptions{Options: opt, Scale: scale})
					case "svg", "png":
						id := ""
						if len(scenes) > 0 {
							id = scenes[0]
						} else if sc, ok := g.StartScene(); ok {
							id = sc.ID
						}
						if strings.EqualFold(formats[0], "svg") {
							return export.WriteSceneSVG(w, g, id, opt)
						}
						return export.WriteScenePNG(w, g, id, export.RasterOptions{Options: opt, Scale: scale})
					}
					return fmt.Errorf("unknown format: %s", formats[0])
				})
			}

			bo := export.BatchOptions{Options: opt, Preset: export.PresetName(preset), Formats: formats, OutDir: out, Scale: scale}
			if cmd.Flags().Changed("outlines") {
				bo.IncludeOutlines = &outlines
			}
			written, err := export.BatchExport(g, bo)
			for _, f := range written {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return err
		},
	}
	cmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "pdf, cbz, svg or png; repeat for several")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, or directory for several formats")
	cmd.Flags().StringVar(&preset, "preset", string(export.PresetWeb), "web or print")
	cmd.Flags().StringVar(&lang, "lang", "", "text language (story default when empty)")
	cmd.Flags().StringSliceVar(&scenes, "scene", nil, "scene ids to export (all when empty)")
	cmd.Flags().Float64Var(&scale, "scale", 0, "raster scale factor")
	cmd.Flags().BoolVar(&outlines, "outlines", false, "draw panel outlines and numbers")
	cmd.Flags().StringArrayVar(&fontArgs, "font", nil, "font file as family[:weight][:italic]=path; repeatable, adds to general.fonts")
	return cmd
}

// fonts loads general.fonts plus extra into a registry. It returns nil
// when no font is configured so callers keep the bitmap face.
func (a *app) fonts(extra []string) (textlayout.Provider, error) {
	args := append(append([]string(nil), a.cfg.General.Fonts...), extra...)
	if len(args) == 0 {
		return nil, nil
	}
	reg, err := textlayout.LoadFontArgs(args)
	if err != nil {
		return nil, err
	}
	a.log.Debug("fonts loaded", slog.Any("families", reg.Families()))
	return reg, nil
}

func isDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}

// writeOne writes a single output file, removing it again on failure.
func writeOne(path string, f func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := multierr.Append(f(fh), fh.Close()); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}
