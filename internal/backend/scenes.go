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

	"instory/internal/blob"
	"instory/internal/domain"
	"instory/internal/editor"
	"instory/internal/vector"
)

func (s *Server) routeScenes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stories/{id}/scenes", s.owned(s.handleListScenes))
	mux.HandleFunc("POST /api/stories/{id}/scenes", s.owned(s.handleCreateScene))
	mux.HandleFunc("PATCH /api/stories/{id}/scenes/{sceneID}", s.owned(s.handleUpdateScene))
	mux.HandleFunc("DELETE /api/stories/{id}/scenes/{sceneID}", s.owned(s.handleDeleteScene))
	mux.HandleFunc("POST /api/stories/{id}/scenes/{sceneID}/start", s.owned(s.handleStartScene))
	mux.HandleFunc("POST /api/stories/{id}/scenes/{sceneID}/image", s.owned(s.handleSceneImage))

	mux.HandleFunc("GET /api/stories/{id}/scenes/{sceneID}/panels", s.owned(s.handleListPanels))
	mux.HandleFunc("POST /api/stories/{id}/scenes/{sceneID}/panels", s.owned(s.handleCreatePanel))
	mux.HandleFunc("POST /api/stories/{id}/scenes/{sceneID}/panels/reorder", s.owned(s.handleReorder))
	mux.HandleFunc("POST /api/stories/{id}/scenes/{sceneID}/undo", s.owned(s.handleHistory(true)))
	mux.HandleFunc("POST /api/stories/{id}/scenes/{sceneID}/redo", s.owned(s.handleHistory(false)))
	mux.HandleFunc("PATCH /api/stories/{id}/panels/{panelID}", s.owned(s.handleMovePanel))
	mux.HandleFunc("DELETE /api/stories/{id}/panels/{panelID}", s.owned(s.handleDeletePanel))
}

func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request, st domain.Story) {
	list, err := s.repo.ListScenes(r.Context(), st.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateScene(w http.ResponseWriter, r *http.Request, st domain.Story) {
	var in domain.Scene
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	in.ID = ""
	in.StoryID = st.ID
	sc, err := s.repo.CreateScene(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	writeJSON(w, http.StatusCreated, sc)
}

type scenePatch struct {
	Title      *string `json:"title"`
	ImageURL   *string `json:"image_url"`
	OrderIndex *int    `json:"order_index"`
}

func (s *Server) handleUpdateScene(w http.ResponseWriter, r *http.Request, st domain.Story) {
	sc, err := s.sceneIn(r.Context(), st, r.PathValue("sceneID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var p scenePatch
	if err := decodeJSON(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	if p.Title != nil {
		sc.Title = *p.Title
	}
	if p.ImageURL != nil && *p.ImageURL != sc.ImageURL {
		// dimensions are only known for files uploaded through the scene image endpoint
		sc.ImageURL, sc.ImageWidth, sc.ImageHeight = *p.ImageURL, 0, 0
		if bucket, key, ok := s.blobURL(*p.ImageURL); ok {
			if obj, err := s.blobs.Stat(bucket, key); err == nil {
				sc.ImageWidth, sc.ImageHeight = obj.Width, obj.Height
			}
		}
	}
	if p.OrderIndex != nil {
		sc.OrderIndex = *p.OrderIndex
	}
	updated, err := s.repo.UpdateScene(r.Context(), sc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) blobURL(u string) (bucket, key string, ok bool) {
	if s.blobs == nil {
		return "", "", false
	}
	return s.blobs.ParseURL(u)
}

func (s *Server) handleDeleteScene(w http.ResponseWriter, r *http.Request, st domain.Story) {
	sc, err := s.sceneIn(r.Context(), st, r.PathValue("sceneID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.repo.DeleteScene(r.Context(), sc.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.edit.Forget(sc.ID)
	s.changed(r.Context(), st.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartScene(w http.ResponseWriter, r *http.Request, st domain.Story) {
	sc, err := s.sceneIn(r.Context(), st, r.PathValue("sceneID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.repo.SetStartScene(r.Context(), sc.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	sc.IsStartScene = true
	writeJSON(w, http.StatusOK, sc)
}

// POST .../scenes/{sceneID}/image stores the uploaded picture and records
// its URL and pixel size on the scene.
func (s *Server) handleSceneImage(w http.ResponseWriter, r *http.Request, st domain.Story) {
	sc, err := s.sceneIn(r.Context(), st, r.PathValue("sceneID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	obj, err := s.receiveFile(w, r, blob.SceneImages)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sc.ImageURL, sc.ImageWidth, sc.ImageHeight = obj.URL, obj.Width, obj.Height
	updated, err := s.repo.UpdateScene(r.Context(), sc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	writeJSON(w, http.StatusOK, map[string]any{"scene": updated, "file": obj})
}

// panelView adds the render descriptors a client needs to cut the panel
// out of the scene image.
type panelView struct {
	domain.Panel
	ClipPath         string `json:"clip_path"`
	ClipPathRelative string `json:"clip_path_relative,omitempty"`
}

func panelViews(sc domain.Scene, panels []domain.Panel) []panelView {
	out := make([]panelView, len(panels))
	for i, p := range panels {
		out[i] = panelView{
			Panel:            p,
			ClipPath:         vector.ClipPath(p),
			ClipPathRelative: vector.ClipPathRelative(p, float64(sc.ImageWidth), float64(sc.ImageHeight)),
		}
	}
	return out
}

type historyView struct {
	Panels  []panelView `json:"panels"`
	CanUndo bool        `json:"can_undo"`
	CanRedo bool        `json:"can_redo"`
}

func (s *Server) history(sc domain.Scene, panels []domain.Panel) historyView {
	u, re := s.edit.History(sc.ID)
	return historyView{Panels: panelViews(sc, panels), CanUndo: u, CanRedo: re}
}

func (s *Server) handleListPanels(w http.ResponseWriter, r *http.Request, st domain.Story) {
	sc, err := s.sceneIn(r.Context(), st, r.PathValue("sceneID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	panels, err := s.repo.ListPanels(r.Context(), sc.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.history(sc, panels))
}

// POST .../panels takes either a finished panel or a recorded gesture:
// { "panel": {...} } or { "gesture": { "tool": "polygon", "points": [...] } }.
func (s *Server) handleCreatePanel(w http.ResponseWriter, r *http.Request, st domain.Story) {
	sc, err := s.sceneIn(r.Context(), st, r.PathValue("sceneID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var in struct {
		Panel   *domain.Panel   `json:"panel"`
		Gesture *editor.Gesture `json:"gesture"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	var p domain.Panel
	switch {
	case in.Gesture != nil:
		p, err = s.edit.Draw(r.Context(), sc.ID, *in.Gesture)
	case in.Panel != nil:
		in.Panel.SceneID = sc.ID
		p, err = s.edit.InsertPanel(r.Context(), *in.Panel)
	default:
		err = badRequestf("panel or gesture is required")
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	writeJSON(w, http.StatusCreated, panelViews(sc, []domain.Panel{p})[0])
}

// POST .../panels/reorder?rtl=1 sorts panels into reading order.
func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request, st domain.Story) {
	sc, err := s.sceneIn(r.Context(), st, r.PathValue("sceneID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	panels, err := s.edit.Reorder(r.Context(), sc.ID, queryBool(r, "rtl"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	writeJSON(w, http.StatusOK, s.history(sc, panels))
}

func (s *Server) handleHistory(isUndo bool) storyHandler {
	return func(w http.ResponseWriter, r *http.Request, st domain.Story) {
		sc, err := s.sceneIn(r.Context(), st, r.PathValue("sceneID"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		step := s.edit.Redo
		if isUndo {
			step = s.edit.Undo
		}
		panels, ok, err := step(r.Context(), sc.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !ok {
			panels, err = s.repo.ListPanels(r.Context(), sc.ID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
		} else {
			s.changed(r.Context(), st.ID)
		}
		writeJSON(w, http.StatusOK, s.history(sc, panels))
	}
}

// PATCH /api/stories/{id}/panels/{panelID} with { "dx": 10, "dy": -4 }.
func (s *Server) handleMovePanel(w http.ResponseWriter, r *http.Request, st domain.Story) {
	_, sc, err := s.panelIn(r.Context(), st, r.PathValue("panelID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var in struct {
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.edit.MovePanel(r.Context(), r.PathValue("panelID"), in.DX, in.DY)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	writeJSON(w, http.StatusOK, panelViews(sc, []domain.Panel{p})[0])
}

func (s *Server) handleDeletePanel(w http.ResponseWriter, r *http.Request, st domain.Story) {
	if _, _, err := s.panelIn(r.Context(), st, r.PathValue("panelID")); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.edit.DeletePanel(r.Context(), r.PathValue("panelID")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	w.WriteHeader(http.StatusNoContent)
}
