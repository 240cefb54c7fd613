/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"instory/internal/domain"
	"instory/internal/textlayout"
	"instory/internal/vector"
)

// footerHeight is the band under each scene page listing its choices.
const footerHeight = 110.0

// WriteStoryboardPDF writes a storyboard of the story: a title page, then
// one page per scene with its panels, texts and where its choices lead.
// Units are scene pixels mapped 1:1 to points.
func WriteStoryboardPDF(w io.Writer, g *domain.StoryGraph, opt Options) error {
	scenes, err := opt.scenes(g)
	if err != nil {
		return err
	}
	lang := opt.language(g)

	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: 842, Ht: 595}})
	pdf.SetTitle(g.Story.Title, true)
	pdf.SetAuthor(g.Story.AuthorID, true)
	pdf.SetCreator("InStory", false)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 28)
	pdf.Text(60, 120, tr(g.Story.Title))
	pdf.SetFont("Helvetica", "", 12)
	y := 150.0
	if g.Story.Description != "" {
		pdf.SetXY(60, y)
		pdf.MultiCell(720, 16, tr(g.Story.Description), "", "L", false)
		y = pdf.GetY() + 12
	}
	var langs []string
	for _, l := range g.Languages {
		langs = append(langs, l.LanguageCode)
	}
	pdf.Text(60, y+12, tr(fmt.Sprintf("%d scenes, language %s of [%s]", len(scenes), lang, strings.Join(langs, ", "))))

	for _, sc := range scenes {
		if err := storyboardPage(pdf, tr, g, sc, lang, opt); err != nil {
			return err
		}
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func storyboardPage(pdf *gofpdf.Fpdf, tr func(string) string, g *domain.StoryGraph, sc domain.Scene, lang string, opt Options) error {
	size := canvasSize(g, sc)
	pdf.AddPageFormat("", gofpdf.SizeType{Wd: size.W, Ht: size.H + footerHeight})

	img, err := opt.sceneImage(sc)
	if err != nil {
		return err
	}
	if img != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("encode image of scene %s: %w", sc.ID, err)
		}
		name := "scene-" + sc.ID
		pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, &buf)
		pdf.ImageOptions(name, 0, 0, size.W, size.H, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	}

	panels := g.PanelsOf(sc.ID)
	if opt.Outlines || img == nil {
		setDrawColor(pdf, guide)
		pdf.SetLineWidth(2)
		pdf.SetFont("Helvetica", "B", 16)
		pdf.SetTextColor(guide.R, guide.G, guide.B)
		for i, p := range panels {
			pdf.Polygon(pdfPoints(vector.Outline(p)), "D")
			b := vector.Bounds(p)
			pdf.Text(b.X+6, b.Y+20, fmt.Sprint(i+1))
		}
	}
	for _, p := range panels {
		for _, o := range overlays(g, p, lang, opt.fonts()) {
			overlayPDF(pdf, tr, o)
		}
	}

	setDrawColor(pdf, black)
	pdf.SetLineWidth(0.5)
	pdf.Line(0, size.H, size.W, size.H)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 14)
	title := sc.Title
	if title == "" {
		title = "Untitled scene"
	}
	if sc.IsStartScene {
		title += " (start)"
	}
	pdf.Text(16, size.H+24, tr(title))
	pdf.SetFont("Helvetica", "", 11)
	y := size.H + 44
	for _, line := range choiceLines(g, sc) {
		if y > size.H+footerHeight-8 {
			break
		}
		pdf.Text(24, y, tr(line))
		y += 15
	}
	return pdf.Error()
}

// choiceLines describes where a scene leads.
func choiceLines(g *domain.StoryGraph, sc domain.Scene) []string {
	choices := g.ChoicesFrom(sc.ID)
	if len(choices) == 0 {
		return []string{"The end."}
	}
	lines := make([]string, 0, len(choices))
	for _, c := range choices {
		target := c.TargetSceneID
		if t, ok := g.SceneByID(c.TargetSceneID); ok && t.Title != "" {
			target = t.Title
		}
		if c.IsUnconditional() {
			lines = append(lines, "Continues to "+target)
			continue
		}
		lines = append(lines, fmt.Sprintf("%q leads to %s", c.Text, target))
	}
	return lines
}

func overlayPDF(pdf *gofpdf.Fpdf, tr func(string) string, o overlay) {
	st := o.Style
	r := o.Box
	if o.BubbleType != domain.BubbleSFX && o.BubbleType != domain.BubbleNone && st.BackgroundOpacity > 0 {
		bg := hexColor(st.BackgroundColor, white)
		pdf.SetAlpha(min(st.BackgroundOpacity, 1), "Normal")
		pdf.SetFillColor(bg.R, bg.G, bg.B)
		style := "F"
		if st.BorderWidth > 0 {
			setDrawColor(pdf, hexColor(st.BorderColor, black))
			pdf.SetLineWidth(st.BorderWidth)
			style = "FD"
		}
		if o.BubbleType == domain.BubbleThought {
			pdf.Ellipse(r.X+r.W/2, r.Y+r.H/2, r.W/2, r.H/2, 0, style)
		} else {
			pdf.RoundedRect(r.X, r.Y, r.W, r.H, min(st.BorderRadius, r.H/2), "1234", style)
		}
		pdf.SetAlpha(1, "Normal")
	}
	fc := hexColor(st.Color, black)
	pdf.SetTextColor(fc.R, fc.G, fc.B)
	fontStyle := ""
	if textlayout.SpecFor(st).Weight >= 600 {
		fontStyle += "B"
	}
	if st.FontStyle == "italic" {
		fontStyle += "I"
	}
	pdf.SetFont("Helvetica", fontStyle, max(st.FontSize, 6))
	lineH := st.FontSize * max(st.LineHeight, 1)
	y := r.Y + st.Padding + st.FontSize
	for _, line := range wrap(o) {
		s := tr(line)
		x := r.X + st.Padding
		switch st.TextAlign {
		case "center":
			x = r.X + (r.W-pdf.GetStringWidth(s))/2
		case "right":
			x = r.X + r.W - st.Padding - pdf.GetStringWidth(s)
		}
		pdf.Text(x, y, s)
		y += lineH
	}
}

func pdfPoints(pts []vector.Pt) []gofpdf.PointType {
	out := make([]gofpdf.PointType, len(pts))
	for i, p := range pts {
		out[i] = gofpdf.PointType{X: p.X, Y: p.Y}
	}
	return out
}

func setDrawColor(pdf *gofpdf.Fpdf, c rgb) {
	pdf.SetDrawColor(c.R, c.G, c.B)
}
