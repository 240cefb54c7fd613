/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import "fmt"

// Script is a parsed story outline: scenes of panels with lettering lines,
// linked by choices.
type Script struct {
	Title    string
	Language string
	Scenes   []Scene
}

type Scene struct {
	Title    string
	ImageURL string
	Panels   []Panel
	Choices  []Choice
	Notes    []string
	LineNo   int
}

// Panel is a "Panel N" beat and the lines lettered inside it.
type Panel struct {
	Label  string
	Text   string
	Lines  []Line
	LineNo int
}

// LineType indicates the kind of a script line.
//
//	Dialogue:  NAME: text, or NAME (thought|shout|whisper): text
//	Caption:   CAPTION: text or NARRATION: text
//	SFX:       SFX: text
type LineType int

const (
	LineUnknown LineType = iota
	LineDialogue
	LineCaption
	LineSFX
)

// Line is a single lettered line, continuation lines included.
// Character holds the upper-cased speaker or label, Manner the optional
// parenthetical of a dialogue line.
type Line struct {
	Type      LineType
	Character string
	Manner    string
	Text      string
	Tags      []string
	LineNo    int
}

// Choice links a scene to another by title. An empty Label is the
// scene's unconditional continuation.
type Choice struct {
	Label  string
	Target string
	LineNo int
}

// Error represents a parse or build error with position context.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e Error) Error() string {
	if e.Line == 0 {
		return e.Message
	}
	return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Message)
}
