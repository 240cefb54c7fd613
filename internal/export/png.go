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
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	rast "golang.org/x/image/vector"

	"instory/internal/domain"
	"instory/internal/textlayout"
	"instory/internal/vector"
)

// RasterOptions controls bitmap rendering.
type RasterOptions struct {
	Options
	// Scale multiplies the scene size. Zero means 1.
	Scale float64
}

func (o RasterOptions) scale() float64 {
	if o.Scale <= 0 {
		return 1
	}
	return o.Scale
}

// RenderScene rasterizes a scene: its image scaled to the canvas, areas
// outside every panel dimmed, optional outlines, then the text overlays.
func RenderScene(g *domain.StoryGraph, sceneID string, opt RasterOptions) (*image.RGBA, error) {
	sc, ok := g.SceneByID(sceneID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScene, sceneID)
	}
	k := opt.scale()
	size := canvasSize(g, sc)
	w, h := int(math.Ceil(size.W*k)), int(math.Ceil(size.H*k))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	src, err := opt.sceneImage(sc)
	if err != nil {
		return nil, err
	}
	panels := g.PanelsOf(sc.ID)
	if src != nil {
		scaled := imaging.Resize(src, w, h, imaging.Lanczos)
		draw.Draw(dst, dst.Bounds(), scaled, image.Point{}, draw.Src)
		if len(panels) > 0 {
			dimOutside(dst, panels, k)
		}
	}
	if opt.Outlines || src == nil {
		red := toRGBA(guide)
		for _, p := range panels {
			strokePolygon(dst, vector.Outline(p), k, max(2*k, 1), red)
		}
	}
	lang := opt.language(g)
	fonts := opt.fonts()
	for _, p := range panels {
		for _, o := range overlays(g, p, lang, fonts) {
			drawOverlay(dst, o, k, fonts)
		}
	}
	return dst, nil
}

// WriteScenePNG renders a scene and encodes it as PNG.
func WriteScenePNG(w io.Writer, g *domain.StoryGraph, sceneID string, opt RasterOptions) error {
	img, err := RenderScene(g, sceneID, opt)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func toRGBA(c rgb) color.RGBA {
	return color.RGBA{R: uint8(c.R), G: uint8(c.G), B: uint8(c.B), A: 255}
}

// dimOutside darkens every pixel not covered by a panel.
func dimOutside(dst *image.RGBA, panels []domain.Panel, k float64) {
	b := dst.Bounds()
	r := rast.NewRasterizer(b.Dx(), b.Dy())
	for _, p := range panels {
		addPolygon(r, vector.Outline(p), k)
	}
	inside := image.NewAlpha(b)
	r.Draw(inside, b, image.Opaque, image.Point{})
	shade := image.NewUniform(color.RGBA{A: 150})
	outside := image.NewAlpha(b)
	for i := range inside.Pix {
		outside.Pix[i] = 255 - inside.Pix[i]
	}
	draw.DrawMask(dst, b, shade, image.Point{}, outside, b.Min, draw.Over)
}

func addPolygon(r *rast.Rasterizer, pts []vector.Pt, k float64) {
	if len(pts) < 3 {
		return
	}
	r.MoveTo(float32(pts[0].X*k), float32(pts[0].Y*k))
	for _, p := range pts[1:] {
		r.LineTo(float32(p.X*k), float32(p.Y*k))
	}
	r.ClosePath()
}

// strokePolygon draws a closed outline as one quad per edge.
func strokePolygon(dst *image.RGBA, pts []vector.Pt, k, width float64, col color.RGBA) {
	if len(pts) < 2 {
		return
	}
	b := dst.Bounds()
	r := rast.NewRasterizer(b.Dx(), b.Dy())
	half := width / 2
	for i := range pts {
		a, c := pts[i], pts[(i+1)%len(pts)]
		ax, ay, cx, cy := a.X*k, a.Y*k, c.X*k, c.Y*k
		dx, dy := cx-ax, cy-ay
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		nx, ny := -dy/l*half, dx/l*half
		r.MoveTo(float32(ax+nx), float32(ay+ny))
		r.LineTo(float32(cx+nx), float32(cy+ny))
		r.LineTo(float32(cx-nx), float32(cy-ny))
		r.LineTo(float32(ax-nx), float32(ay-ny))
		r.ClosePath()
	}
	r.Draw(dst, b, image.NewUniform(col), image.Point{})
}

func drawOverlay(dst *image.RGBA, o overlay, k float64, fonts textlayout.Provider) {
	st := o.Style
	box := image.Rect(int(o.Box.X*k), int(o.Box.Y*k), int(math.Ceil((o.Box.X+o.Box.W)*k)), int(math.Ceil((o.Box.Y+o.Box.H)*k)))
	if o.BubbleType != domain.BubbleSFX && o.BubbleType != domain.BubbleNone && st.BackgroundOpacity > 0 {
		bg := toRGBA(hexColor(st.BackgroundColor, white))
		mask := image.NewUniform(color.Alpha{A: uint8(math.Round(min(st.BackgroundOpacity, 1) * 255))})
		draw.DrawMask(dst, box, image.NewUniform(bg), image.Point{}, mask, image.Point{}, draw.Over)
		if st.BorderWidth > 0 {
			border := toRGBA(hexColor(st.BorderColor, black))
			corners := []vector.Pt{
				{X: o.Box.X, Y: o.Box.Y}, {X: o.Box.X + o.Box.W, Y: o.Box.Y},
				{X: o.Box.X + o.Box.W, Y: o.Box.Y + o.Box.H}, {X: o.Box.X, Y: o.Box.Y + o.Box.H},
			}
			strokePolygon(dst, corners, k, max(st.BorderWidth*k, 1), border)
		}
	}
	spec := textlayout.SpecFor(st)
	spec.Size *= k
	face, met := fonts.Resolve(spec)
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(toRGBA(hexColor(st.Color, black))), Face: face}
	lineH := st.FontSize * max(st.LineHeight, 1) * k
	y := float64(box.Min.Y) + st.Padding*k + met.Ascent
	for _, line := range wrap(o) {
		lw := float64(d.MeasureString(line) >> 6)
		x := float64(box.Min.X) + st.Padding*k
		switch st.TextAlign {
		case "center":
			x = float64(box.Min.X) + (float64(box.Dx())-lw)/2
		case "right":
			x = float64(box.Max.X) - st.Padding*k - lw
		}
		d.Dot = fixed.P(int(x), int(y))
		d.DrawString(line)
		y += lineH
	}
}
