/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"net/http"

	"instory/internal/domain"
	"instory/internal/editor"
	"instory/internal/textlayout"
)

func (s *Server) routeTexts(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stories/{id}/panels/{panelID}/texts", s.owned(s.handleListTexts))
	mux.HandleFunc("POST /api/stories/{id}/panels/{panelID}/texts", s.owned(s.handleCreateText))
	mux.HandleFunc("PATCH /api/stories/{id}/texts/{textID}", s.owned(s.handleUpdateText))
	mux.HandleFunc("POST /api/stories/{id}/texts/{textID}/snap", s.owned(s.handleSnapText))
	mux.HandleFunc("DELETE /api/stories/{id}/texts/{textID}", s.owned(s.handleDeleteText))
	mux.HandleFunc("PUT /api/stories/{id}/texts/{textID}/contents/{lang}", s.owned(s.handlePutContent))
	mux.HandleFunc("DELETE /api/stories/{id}/texts/{textID}/contents/{lang}", s.owned(s.handleDeleteContent))
}

type textView struct {
	domain.PanelText
	Contents []domain.PanelTextContent `json:"contents"`
	// Effective is the overlay as a reader sees it in the requested language.
	Effective *textlayout.Effective `json:"effective,omitempty"`
}

// GET .../panels/{panelID}/texts?lang=de returns the overlays of a panel
// with all translations and, with lang, the resolved overlay.
func (s *Server) handleListTexts(w http.ResponseWriter, r *http.Request, st domain.Story) {
	ctx := r.Context()
	p, _, err := s.panelIn(ctx, st, r.PathValue("panelID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	texts, err := s.repo.ListTexts(ctx, p.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	lang := r.URL.Query().Get("lang")
	fallback := ""
	if lang != "" {
		langs, err := s.repo.ListLanguages(ctx, st.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		fallback = domain.DefaultLanguageOf(langs)
	}
	out := make([]textView, 0, len(texts))
	for _, t := range texts {
		contents, err := s.repo.ListContents(ctx, t.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		v := textView{PanelText: t, Contents: contents}
		if lang != "" {
			if eff := textlayout.ResolveForLanguage([]domain.PanelText{t}, contents, lang, fallback); len(eff) == 1 {
				v.Effective = &eff[0]
			}
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

// POST .../panels/{panelID}/texts places a new overlay at a free spot of
// the panel. Body: { "panel_text": {...}, "text": "...", "language_code": "en", "anchor": {x,y} }.
func (s *Server) handleCreateText(w http.ResponseWriter, r *http.Request, st domain.Story) {
	ctx := r.Context()
	p, _, err := s.panelIn(ctx, st, r.PathValue("panelID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var pl editor.Placement
	if err := decodeJSON(r, &pl); err != nil {
		s.fail(w, r, err)
		return
	}
	pl.Text.ID = ""
	pl.Text.PanelID = p.ID
	if pl.Content != "" && pl.Language == "" {
		langs, err := s.repo.ListLanguages(ctx, st.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		pl.Language = domain.DefaultLanguageOf(langs)
	}
	t, err := s.edit.PlaceText(ctx, pl)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(ctx, st.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateText(w http.ResponseWriter, r *http.Request, st domain.Story) {
	cur, err := s.textIn(r.Context(), st, r.PathValue("textID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := decodeJSON(r, &cur); err != nil {
		s.fail(w, r, err)
		return
	}
	cur.ID = r.PathValue("textID")
	if _, _, err := s.panelIn(r.Context(), st, cur.PanelID); err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.repo.UpdateText(r.Context(), cur)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	writeJSON(w, http.StatusOK, t)
}

// POST .../texts/{textID}/snap with { "x": 3, "y": 120 } moves the overlay
// and snaps it to the panel and its siblings.
func (s *Server) handleSnapText(w http.ResponseWriter, r *http.Request, st domain.Story) {
	if _, err := s.textIn(r.Context(), st, r.PathValue("textID")); err != nil {
		s.fail(w, r, err)
		return
	}
	var in struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	t, guides, err := s.edit.SnapText(r.Context(), r.PathValue("textID"), in.X, in.Y)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	writeJSON(w, http.StatusOK, map[string]any{"panel_text": t, "guides": guides})
}

func (s *Server) handleDeleteText(w http.ResponseWriter, r *http.Request, st domain.Story) {
	if _, err := s.textIn(r.Context(), st, r.PathValue("textID")); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.repo.DeleteText(r.Context(), r.PathValue("textID")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	w.WriteHeader(http.StatusNoContent)
}

// PUT .../texts/{textID}/contents/{lang} with { "text": "...", "style_overrides": {...} }.
func (s *Server) handlePutContent(w http.ResponseWriter, r *http.Request, st domain.Story) {
	if _, err := s.textIn(r.Context(), st, r.PathValue("textID")); err != nil {
		s.fail(w, r, err)
		return
	}
	var in domain.PanelTextContent
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	in.ID = ""
	in.PanelTextID = r.PathValue("textID")
	in.LanguageCode = r.PathValue("lang")
	c, err := s.repo.PutContent(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteContent(w http.ResponseWriter, r *http.Request, st domain.Story) {
	if _, err := s.textIn(r.Context(), st, r.PathValue("textID")); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.repo.DeleteContent(r.Context(), r.PathValue("textID"), r.PathValue("lang")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	w.WriteHeader(http.StatusNoContent)
}
