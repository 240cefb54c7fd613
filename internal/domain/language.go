/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultLanguage is used when a story has no default language row.
const DefaultLanguage = "en"

// NormalizeLanguage parses a BCP 47 tag and returns its canonical form
// ("EN-us" becomes "en-US").
func NormalizeLanguage(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", invalidf("language code is required")
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", invalidf("language code %q: %v", code, err)
	}
	return tag.String(), nil
}

// LanguageName returns the English display name of a language code for the
// reader's language menu, or the code itself when unknown.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

// DefaultLanguageOf returns the default language of a story's language list,
// the first entry when none is flagged, or DefaultLanguage for an empty list.
func DefaultLanguageOf(langs []StoryLanguage) string {
	for _, l := range langs {
		if l.IsDefault {
			return l.LanguageCode
		}
	}
	if len(langs) > 0 {
		return langs[0].LanguageCode
	}
	return DefaultLanguage
}
