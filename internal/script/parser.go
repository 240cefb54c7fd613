/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"bufio"
	"regexp"
	"sort"
	"strings"
)

var (
	reScene     = regexp.MustCompile(`^(#+)\s*(.*)$`)
	reSceneAlt  = regexp.MustCompile(`^(?i)\s*Scene:\s*(.+)$`)
	reDirective = regexp.MustCompile(`^(?i)(title|language|image)\s*:\s*(.*)$`)
	reChoice    = regexp.MustCompile(`^(?:\*\s*(.*?)\s*)?->\s*(.*)$`)
	reName      = regexp.MustCompile(`^([A-Za-z0-9_\- ]{1,64}?)\s*(?:\(\s*([A-Za-z.]+)\s*\))?\s*:\s*(.*)$`)
	reBeat      = regexp.MustCompile(`^(?i)\s*(Panel\s*\d+|Beat)\b\s*(.*)$`)
	reTag       = regexp.MustCompile(`(?i)@([a-z0-9_\-]+)`)
)

// Parse parses a story outline.
//
//   - "Title:" and "Language:" before the first scene name the story and
//     the language of its text.
//   - Lines starting with "#" or "Scene:" introduce a scene. "Image:" inside
//     a scene sets its artwork URL.
//   - "Panel N" or "Beat" starts a panel; the rest of the line describes it.
//     Lettering before the first beat of a scene goes into an implicit panel.
//   - NAME: text is dialogue, NAME (thought): text picks the bubble.
//     CAPTION:/NARRATION: is a caption and SFX: a sound effect. Lines
//     indented by 2+ spaces continue the previous line.
//   - "* Label -> Target" offers a choice, "-> Target" continues without one.
//   - Lines starting with ';' are author notes.
func Parse(input string) (Script, []Error) {
	s := Script{Scenes: []Scene{}}
	var errs []Error

	scanner := bufio.NewScanner(strings.NewReader(input))
	lineNo := 0
	var cur *Scene
	var lastLine *Line

	scene := func() *Scene {
		if cur == nil {
			s.Scenes = append(s.Scenes, Scene{Title: "Untitled", LineNo: lineNo})
			cur = &s.Scenes[len(s.Scenes)-1]
		}
		return cur
	}
	panel := func() *Panel {
		sc := scene()
		if len(sc.Panels) == 0 {
			sc.Panels = append(sc.Panels, Panel{Label: "PANEL 1", LineNo: lineNo})
		}
		return &sc.Panels[len(sc.Panels)-1]
	}
	newScene := func(title string) {
		if title == "" {
			title = "Untitled"
		}
		s.Scenes = append(s.Scenes, Scene{Title: title, LineNo: lineNo})
		cur = &s.Scenes[len(s.Scenes)-1]
		lastLine = nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")

		if strings.HasPrefix(line, "  ") && lastLine != nil {
			if cont := strings.TrimSpace(line); cont != "" {
				lastLine.Text += "\n" + cont
				lastLine.Tags = mergeTags(lastLine.Tags, extractTags(cont))
			}
			continue
		}

		trim := strings.TrimSpace(line)
		if trim == "" {
			lastLine = nil
			continue
		}

		if m := reScene.FindStringSubmatch(trim); m != nil {
			newScene(strings.TrimSpace(m[2]))
			continue
		}
		if m := reSceneAlt.FindStringSubmatch(trim); m != nil {
			newScene(strings.TrimSpace(m[1]))
			continue
		}

		if strings.HasPrefix(trim, ";") {
			note := strings.TrimSpace(strings.TrimPrefix(trim, ";"))
			if cur != nil {
				cur.Notes = append(cur.Notes, note)
			}
			lastLine = nil
			continue
		}

		if m := reDirective.FindStringSubmatch(trim); m != nil {
			key, val := strings.ToLower(m[1]), strings.TrimSpace(m[2])
			switch {
			case key == "image" && cur != nil:
				cur.ImageURL = val
				lastLine = nil
				continue
			case key != "image" && cur == nil:
				if key == "title" {
					s.Title = val
				} else {
					s.Language = val
				}
				lastLine = nil
				continue
			}
		}

		if m := reChoice.FindStringSubmatch(trim); m != nil {
			target := strings.TrimSpace(m[2])
			if cur == nil {
				errs = append(errs, Error{Line: lineNo, Column: 1, Message: "choice outside a scene"})
			} else if target == "" {
				errs = append(errs, Error{Line: lineNo, Column: len(trim), Message: "choice without target scene"})
			} else {
				cur.Choices = append(cur.Choices, Choice{Label: strings.TrimSpace(m[1]), Target: target, LineNo: lineNo})
			}
			lastLine = nil
			continue
		}

		if m := reBeat.FindStringSubmatch(trim); m != nil {
			sc := scene()
			sc.Panels = append(sc.Panels, Panel{Label: strings.ToUpper(strings.Join(strings.Fields(m[1]), " ")), Text: strings.TrimSpace(m[2]), LineNo: lineNo})
			lastLine = nil
			continue
		}

		if m := reName.FindStringSubmatch(trim); m != nil {
			upper := strings.ToUpper(strings.TrimSpace(m[1]))
			text := strings.TrimSpace(m[3])
			lt := LineDialogue
			switch upper {
			case "CAPTION", "NARRATION":
				lt = LineCaption
			case "SFX":
				lt = LineSFX
			}
			p := panel()
			p.Lines = append(p.Lines, Line{Type: lt, Character: upper, Manner: strings.ToLower(m[2]), Text: text, Tags: extractTags(text), LineNo: lineNo})
			lastLine = &p.Lines[len(p.Lines)-1]
			continue
		}

		// Free text describes the current panel.
		p := panel()
		if p.Text != "" {
			p.Text += "\n"
		}
		p.Text += trim
		lastLine = nil
	}

	if err := scanner.Err(); err != nil {
		errs = append(errs, Error{Line: lineNo, Column: 1, Message: err.Error()})
	}
	return s, errs
}

func extractTags(s string) []string {
	found := reTag.FindAllStringSubmatch(s, -1)
	if len(found) == 0 {
		return nil
	}
	return mergeTags(nil, func() []string {
		out := make([]string, 0, len(found))
		for _, f := range found {
			out = append(out, strings.ToLower(f[1]))
		}
		return out
	}())
}

func mergeTags(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	m := map[string]struct{}{}
	for _, t := range append(append([]string(nil), a...), b...) {
		if t != "" {
			m[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
