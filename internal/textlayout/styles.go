/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import "instory/internal/domain"

// PillRadius is the border radius forced on thought bubbles.
const PillRadius = "9999px"

// PresetFor returns the starting style of a new overlay of the given bubble
// type. Authors edit the copy freely afterwards.
func PresetFor(b domain.BubbleType) domain.TextStyle {
	st := domain.DefaultTextStyle()
	switch b {
	case domain.BubbleThought:
		st.FontStyle = "italic"
	case domain.BubbleShout:
		st.FontWeight = "bold"
		st.FontSize = 20
		st.BorderWidth = 3
	case domain.BubbleWhisper:
		st.FontStyle = "italic"
		st.FontSize = 14
		st.Color = "#555555"
		st.BorderWidth = 1
	case domain.BubbleNarration:
		st.BackgroundColor = "#fff8dc"
		st.BorderRadius = 0
		st.TextAlign = "left"
	case domain.BubbleSFX:
		st.FontFamily = "Bangers"
		st.FontSize = 32
		st.FontWeight = "bold"
		st.Color = "#e53935"
		st.BackgroundOpacity = 0
		st.BorderWidth = 0
	case domain.BubbleNone:
		st.BackgroundOpacity = 0
		st.BorderWidth = 0
	}
	return st
}

// ListBubbleTypes lists bubble types in the order the editor offers them.
func ListBubbleTypes() []domain.BubbleType {
	return []domain.BubbleType{
		domain.BubbleSpeech, domain.BubbleThought, domain.BubbleShout, domain.BubbleWhisper,
		domain.BubbleNarration, domain.BubbleSFX, domain.BubbleNone,
	}
}
