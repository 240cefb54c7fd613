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
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/h2non/filetype"

	"instory/internal/domain"
	"instory/internal/textlayout"
	"instory/internal/vector"
)

// WriteSceneSVG writes one scene as a standalone SVG: the scene image,
// then every panel clipped to its outline, then the text overlays in the
// chosen language. With an ImageSource the image is embedded as a data URI.
func WriteSceneSVG(w io.Writer, g *domain.StoryGraph, sceneID string, opt Options) error {
	sc, ok := g.SceneByID(sceneID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScene, sceneID)
	}
	size := canvasSize(g, sc)
	lang := opt.language(g)
	panels := g.PanelsOf(sc.ID)

	var buf bytes.Buffer
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(&buf, format, args...)
	}

	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<svg xmlns=\"http://www.w3.org/2000/svg\" version=\"1.1\" width=\"%s\" height=\"%s\" viewBox=\"0 0 %s %s\">\n",
		vector.Num(size.W), vector.Num(size.H), vector.Num(size.W), vector.Num(size.H))
	if sc.Title != "" {
		wf("  <title>%s</title>\n", escText(sc.Title))
	}
	wf("  <rect x=\"0\" y=\"0\" width=\"%s\" height=\"%s\" fill=\"#ffffff\"/>\n", vector.Num(size.W), vector.Num(size.H))

	href, err := opt.imageHref(sc)
	if err != nil {
		return err
	}
	if len(panels) > 0 {
		wf("  <defs>\n")
		for _, p := range panels {
			path := vector.SVGPath(p)
			wf("    <clipPath id=\"clip-%s\"><path d=\"%s\"/></clipPath>\n", escAttr(p.ID), path.SVG())
		}
		wf("  </defs>\n")
	}
	if href != "" {
		// the whole image dimmed, then each panel at full strength
		wf("  <image href=\"%s\" x=\"0\" y=\"0\" width=\"%s\" height=\"%s\" opacity=\"0.25\" preserveAspectRatio=\"none\"/>\n",
			escAttr(href), vector.Num(size.W), vector.Num(size.H))
		for _, p := range panels {
			wf("  <image href=\"%s\" x=\"0\" y=\"0\" width=\"%s\" height=\"%s\" clip-path=\"url(#clip-%s)\" preserveAspectRatio=\"none\"/>\n",
				escAttr(href), vector.Num(size.W), vector.Num(size.H), escAttr(p.ID))
		}
	}
	if opt.Outlines {
		gc := svgColor(guide)
		for i, p := range panels {
			path := vector.SVGPath(p)
			b := vector.Bounds(p)
			wf("  <path d=\"%s\" fill=\"none\" stroke=\"%s\" stroke-width=\"2\"/>\n", path.SVG(), gc)
			wf("  <text x=\"%s\" y=\"%s\" font-family=\"Helvetica, Arial, sans-serif\" font-size=\"18\" fill=\"%s\">%d</text>\n",
				vector.Num(b.X+6), vector.Num(b.Y+22), gc, i+1)
		}
	}
	for _, p := range panels {
		for _, o := range overlays(g, p, lang, opt.fonts()) {
			writeOverlaySVG(wf, o)
		}
	}
	wf("</svg>\n")
	if werr != nil {
		return fmt.Errorf("build svg: %w", werr)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

func writeOverlaySVG(wf func(string, ...any), o overlay) {
	st := o.Style
	r := o.Box
	if bg := textlayout.Background(st, o.BubbleType); bg != "transparent" {
		radius := st.BorderRadius
		if o.BubbleType == domain.BubbleThought {
			radius = r.H / 2
		}
		stroke := "none"
		if b := textlayout.Border(st, o.BubbleType); b != "none" {
			stroke = svgColor(hexColor(st.BorderColor, black))
		}
		dash := ""
		if o.BubbleType == domain.BubbleWhisper {
			dash = " stroke-dasharray=\"4 3\""
		}
		wf("  <rect x=\"%s\" y=\"%s\" width=\"%s\" height=\"%s\" rx=\"%s\" fill=\"%s\" fill-opacity=\"%s\" stroke=\"%s\" stroke-width=\"%s\"%s/>\n",
			vector.Num(r.X), vector.Num(r.Y), vector.Num(r.W), vector.Num(r.H), vector.Num(radius),
			svgColor(hexColor(st.BackgroundColor, white)), vector.Num(min(st.BackgroundOpacity, 1)),
			stroke, vector.Num(st.BorderWidth), dash)
	}
	anchor, x := "start", r.X+st.Padding
	switch st.TextAlign {
	case "center":
		anchor, x = "middle", r.X+r.W/2
	case "right":
		anchor, x = "end", r.X+r.W-st.Padding
	}
	family := st.FontFamily
	if family == "" {
		family = "Helvetica, Arial, sans-serif"
	}
	lineH := st.FontSize * max(st.LineHeight, 1)
	wf("  <text font-family=\"%s\" font-size=\"%s\" font-weight=\"%s\" font-style=\"%s\" fill=\"%s\" text-anchor=\"%s\">",
		escAttr(family), vector.Num(st.FontSize), escAttr(nonEmpty(st.FontWeight, "normal")), escAttr(nonEmpty(st.FontStyle, "normal")),
		svgColor(hexColor(st.Color, black)), anchor)
	y := r.Y + st.Padding + st.FontSize
	for _, line := range wrap(o) {
		wf("<tspan x=\"%s\" y=\"%s\">%s</tspan>", vector.Num(x), vector.Num(y), escText(line))
		y += lineH
	}
	wf("</text>\n")
}

// imageHref returns a data URI of the scene image, or its URL when no
// ImageSource is configured.
func (o Options) imageHref(sc domain.Scene) (string, error) {
	if sc.ImageURL == "" {
		return "", nil
	}
	if o.Images == nil {
		return sc.ImageURL, nil
	}
	rc, err := o.Images.OpenImage(sc.ImageURL)
	if err != nil {
		return "", fmt.Errorf("open image of scene %s: %w", sc.ID, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read image of scene %s: %w", sc.ID, err)
	}
	kind, err := filetype.Image(data)
	if err != nil || kind == filetype.Unknown {
		return "", fmt.Errorf("%w: %s is not an image", ErrNoImage, sc.ImageURL)
	}
	return "data:" + kind.MIME.Value + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func nonEmpty(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func svgColor(c rgb) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func escAttr(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch ch {
		case '"':
			out = append(out, '&', 'q', 'u', 'o', 't', ';')
		case '&':
			out = append(out, '&', 'a', 'm', 'p', ';')
		case '<':
			out = append(out, '&', 'l', 't', ';')
		case '\n':
			out = append(out, ' ')
		case '\r':
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}

func escText(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch ch {
		case '&':
			out = append(out, '&', 'a', 'm', 'p', ';')
		case '<':
			out = append(out, '&', 'l', 't', ';')
		case '>':
			out = append(out, '&', 'g', 't', ';')
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}
