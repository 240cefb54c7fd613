/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/font/gofont/goregular"

	"instory/internal/domain"
	"instory/internal/textlayout"
	"instory/internal/vector"
)

func testGraph(t *testing.T) *domain.StoryGraph {
	t.Helper()
	p1, err := vector.RectPanel("s1", vector.Pt{X: 10, Y: 10}, vector.Pt{X: 210, Y: 160})
	if err != nil {
		t.Fatal(err)
	}
	p1.ID, p1.OrderIndex = "p1", 0
	p2, err := vector.EllipsePanel("s1", vector.Pt{X: 250, Y: 10}, vector.Pt{X: 390, Y: 150})
	if err != nil {
		t.Fatal(err)
	}
	p2.ID, p2.OrderIndex = "p2", 1
	p3, _ := vector.RectPanel("s2", vector.Pt{X: 0, Y: 0}, vector.Pt{X: 100, Y: 100})
	p3.ID = "p3"
	return &domain.StoryGraph{
		Story:     domain.Story{ID: "st", Title: "Tom & Jerry", Description: "A chase", AuthorID: "ann"},
		Languages: []domain.StoryLanguage{{StoryID: "st", LanguageCode: "en", IsDefault: true}, {StoryID: "st", LanguageCode: "de"}},
		Scenes: []domain.Scene{
			{ID: "s2", StoryID: "st", Title: "Ending", OrderIndex: 1},
			{ID: "s1", StoryID: "st", Title: "Opening", OrderIndex: 0, IsStartScene: true, IsDecisionScene: true, ImageURL: "/files/scene-images/a.png", ImageWidth: 400, ImageHeight: 200},
		},
		Panels:  []domain.Panel{p1, p2, p3},
		Choices: []domain.Choice{{ID: "c1", SceneID: "s1", TargetSceneID: "s2", Text: "Run"}},
		Texts: []domain.PanelText{
			{ID: "t1", PanelID: "p1", PositionX: 8, PositionY: 8, Width: 150, BubbleType: domain.BubbleShout, Style: textlayout.PresetFor(domain.BubbleShout)},
		},
		Contents: []domain.PanelTextContent{
			{ID: "c-en", PanelTextID: "t1", LanguageCode: "en", Text: "stop <now>"},
			{ID: "c-de", PanelTextID: "t1", LanguageCode: "de", Text: "halt"},
		},
	}
}

type fakeImages struct{ data []byte }

func (f fakeImages) OpenImage(u string) (io.ReadCloser, error) {
	if !strings.HasSuffix(u, "a.png") {
		return nil, ErrNoImage
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestWriteSceneSVG(t *testing.T) {
	g := testGraph(t)
	var buf bytes.Buffer
	if err := WriteSceneSVG(&buf, g, "s1", Options{Outlines: true}); err != nil {
		t.Fatalf("svg: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`viewBox="0 0 400 200"`,
		`<clipPath id="clip-p1">`,
		`<clipPath id="clip-p2">`,
		`href="/files/scene-images/a.png"`,
		"STOP &lt;NOW&gt;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("svg lacks %q", want)
		}
	}

	buf.Reset()
	if err := WriteSceneSVG(&buf, g, "s1", Options{Language: "de"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "HALT") {
		t.Error("german text missing")
	}
	if strings.Contains(buf.String(), "<path d=") && strings.Contains(buf.String(), `stroke="#dc2828"`) {
		t.Error("outlines drawn without Outlines")
	}
}

func TestWriteSceneSVGEmbedsImage(t *testing.T) {
	g := testGraph(t)
	var buf bytes.Buffer
	err := WriteSceneSVG(&buf, g, "s1", Options{Images: fakeImages{solidPNG(t, 4, 2, color.Black)}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `href="data:image/png;base64,`) {
		t.Fatal("image not embedded")
	}
	err = WriteSceneSVG(&buf, g, "s1", Options{Images: fakeImages{[]byte("not an image")}})
	if !errors.Is(err, ErrNoImage) {
		t.Fatalf("bad image = %v", err)
	}
}

func TestUnknownScene(t *testing.T) {
	g := testGraph(t)
	if err := WriteSceneSVG(io.Discard, g, "nope", Options{}); !errors.Is(err, ErrUnknownScene) {
		t.Fatalf("svg = %v", err)
	}
	if _, err := RenderScene(g, "nope", RasterOptions{}); !errors.Is(err, ErrUnknownScene) {
		t.Fatalf("png = %v", err)
	}
	if err := WriteStoryboardPDF(io.Discard, g, Options{Scenes: []string{"nope"}}); !errors.Is(err, ErrUnknownScene) {
		t.Fatalf("pdf = %v", err)
	}
}

func TestRenderSceneDimsOutsidePanels(t *testing.T) {
	g := testGraph(t)
	img, err := RenderScene(g, "s1", RasterOptions{Options: Options{Images: fakeImages{solidPNG(t, 40, 20, color.White)}}, Scale: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds().Size(); got != (image.Point{X: 200, Y: 100}) {
		t.Fatalf("size = %v", got)
	}
	inside := img.RGBAAt(90, 70)
	outside := img.RGBAAt(5, 95)
	if inside.R != 255 {
		t.Errorf("inside panel = %v, want white", inside)
	}
	if outside.R >= 200 {
		t.Errorf("outside panels = %v, want dimmed", outside)
	}
}

func TestRenderSceneWithoutImageDrawsOutlines(t *testing.T) {
	g := testGraph(t)
	img, err := RenderScene(g, "s2", RasterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	// top edge of the 100x100 panel
	if c := img.RGBAAt(50, 0); c.R < 200 || c.G > 100 {
		t.Errorf("outline pixel = %v", c)
	}
	if c := img.RGBAAt(50, 50); c != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("panel interior = %v", c)
	}
}

func TestRenderSceneUsesRegisteredFonts(t *testing.T) {
	g := testGraph(t)
	reg := textlayout.NewFontRegistry()
	if err := reg.Register(g.Texts[0].Style.FontFamily, 400, false, goregular.TTF); err != nil {
		t.Fatal(err)
	}
	plain, err := RenderScene(g, "s1", RasterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	styled, err := RenderScene(g, "s1", RasterOptions{Options: Options{Fonts: reg}})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(plain.Pix, styled.Pix) {
		t.Fatal("registered font did not change the rendered text")
	}
}

func TestWriteStoryboardPDF(t *testing.T) {
	g := testGraph(t)
	var buf bytes.Buffer
	if err := WriteStoryboardPDF(&buf, g, Options{Images: fakeImages{solidPNG(t, 8, 4, color.Gray{128})}}); err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatal("not a pdf")
	}
}

func TestChoiceLines(t *testing.T) {
	g := testGraph(t)
	s1, _ := g.SceneByID("s1")
	s2, _ := g.SceneByID("s2")
	if diff := cmp.Diff([]string{`"Run" leads to Ending`}, choiceLines(g, s1)); diff != "" {
		t.Errorf("s1 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"The end."}, choiceLines(g, s2)); diff != "" {
		t.Errorf("s2 (-want +got):\n%s", diff)
	}
}

func TestWriteCBZ(t *testing.T) {
	g := testGraph(t)
	var buf bytes.Buffer
	if err := WriteCBZ(&buf, g, RasterOptions{}); err != nil {
		t.Fatalf("cbz: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"001.png", "002.png", "ComicInfo.xml"}, names); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}
	rc, err := zr.File[2].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	info, _ := io.ReadAll(rc)
	for _, want := range []string{"<Title>Tom &amp; Jerry</Title>", "<PageCount>2</PageCount>", "<LanguageISO>en</LanguageISO>"} {
		if !strings.Contains(string(info), want) {
			t.Errorf("ComicInfo lacks %q", want)
		}
	}
}

func TestBatchExport(t *testing.T) {
	g := testGraph(t)
	dir := t.TempDir()
	files, err := BatchExport(g, BatchOptions{Formats: []string{"svg", "PDF", "gif"}, OutDir: dir})
	if err == nil || !strings.Contains(err.Error(), "unknown format: gif") {
		t.Fatalf("err = %v", err)
	}
	want := []string{
		filepath.Join(dir, "svg", "01-opening.svg"),
		filepath.Join(dir, "svg", "02-ending.svg"),
		filepath.Join(dir, "tom-and-jerry.pdf"),
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}
	for _, f := range files {
		if st, err := os.Stat(f); err != nil || st.Size() == 0 {
			t.Errorf("%s: %v", f, err)
		}
	}
}
