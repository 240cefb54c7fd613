/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image/png"
	"io"

	"instory/internal/domain"
)

// WriteCBZ writes a comic book archive with one PNG page per scene in story
// order plus a ComicInfo.xml. Branching is flattened: choices are not
// navigable in a CBZ reader.
func WriteCBZ(w io.Writer, g *domain.StoryGraph, opt RasterOptions) error {
	scenes, err := opt.scenes(g)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(w)
	for i, sc := range scenes {
		img, err := RenderScene(g, sc.ID, opt)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("encode page %d: %w", i+1, err)
		}
		// PNG is already compressed
		if err := addZipFile(zw, fmt.Sprintf("%03d.png", i+1), buf.Bytes(), zip.Store); err != nil {
			return fmt.Errorf("zip add page %d: %w", i+1, err)
		}
	}
	info, err := buildComicInfoXML(g, opt.language(g), len(scenes))
	if err != nil {
		return err
	}
	if err := addZipFile(zw, "ComicInfo.xml", []byte(info), zip.Deflate); err != nil {
		return fmt.Errorf("zip add manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

func addZipFile(zw *zip.Writer, name string, data []byte, method uint16) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func buildComicInfoXML(g *domain.StoryGraph, lang string, pageCount int) (string, error) {
	buf := &bytes.Buffer{}
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(buf, format, args...)
	}
	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<ComicInfo xmlns:xsi=\"http://www.w3.org/2001/XMLSchema-instance\">\n")
	wf("  <Title>%s</Title>\n", xmlEsc(g.Story.Title))
	wf("  <PageCount>%d</PageCount>\n", pageCount)
	if g.Story.AuthorID != "" {
		wf("  <Writer>%s</Writer>\n", xmlEsc(g.Story.AuthorID))
	}
	if g.Story.Description != "" {
		wf("  <Summary>%s</Summary>\n", xmlEsc(g.Story.Description))
	}
	if lang != "" {
		wf("  <LanguageISO>%s</LanguageISO>\n", xmlEsc(lang))
	}
	wf("  <ReadingDirection>LeftToRight</ReadingDirection>\n")
	wf("</ComicInfo>\n")
	if werr != nil {
		return "", fmt.Errorf("build xml: %w", werr)
	}
	return buf.String(), nil
}

func xmlEsc(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			out = append(out, '&', 'a', 'm', 'p', ';')
		case '<':
			out = append(out, '&', 'l', 't', ';')
		case '>':
			out = append(out, '&', 'g', 't', ';')
		case '"':
			out = append(out, '&', 'q', 'u', 'o', 't', ';')
		case '\'':
			out = append(out, '&', 'a', 'p', 'o', 's', ';')
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
