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
	"instory/internal/flow"
)

func (s *Server) routeFlow(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stories/{id}/choices", s.owned(s.handleListChoices))
	mux.HandleFunc("POST /api/stories/{id}/choices", s.owned(s.handleConnect))
	mux.HandleFunc("PATCH /api/stories/{id}/choices/{choiceID}", s.owned(s.handleUpdateChoice))
	mux.HandleFunc("DELETE /api/stories/{id}/choices/{choiceID}", s.owned(s.handleDisconnect))
	mux.HandleFunc("PUT /api/stories/{id}/positions", s.owned(s.handleMoveNodes))
	mux.HandleFunc("GET /api/stories/{id}/graph", s.owned(s.handleGraph))
	mux.HandleFunc("POST /api/stories/{id}/layout", s.owned(s.handleLayout))
}

func (s *Server) handleListChoices(w http.ResponseWriter, r *http.Request, st domain.Story) {
	list, err := s.repo.ListChoices(r.Context(), st.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// POST /api/stories/{id}/choices with { "scene_id", "target_scene_id", "text" }.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request, st domain.Story) {
	var in domain.Choice
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	for _, id := range []string{in.SceneID, in.TargetSceneID} {
		if _, err := s.sceneIn(r.Context(), st, id); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	c, err := s.flowEditor(st.ID).Connect(r.Context(), in.SceneID, in.TargetSceneID, in.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	writeJSON(w, http.StatusCreated, c)
}

// PATCH retargets or relabels a choice.
func (s *Server) handleUpdateChoice(w http.ResponseWriter, r *http.Request, st domain.Story) {
	cur, err := s.choiceIn(r.Context(), st, r.PathValue("choiceID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var in struct {
		TargetSceneID *string `json:"target_scene_id"`
		Text          *string `json:"text"`
		OrderIndex    *int    `json:"order_index"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if in.TargetSceneID != nil {
		if _, err := s.sceneIn(r.Context(), st, *in.TargetSceneID); err != nil {
			s.fail(w, r, err)
			return
		}
		cur.TargetSceneID = *in.TargetSceneID
	}
	if in.Text != nil {
		cur.Text = *in.Text
	}
	if in.OrderIndex != nil {
		cur.OrderIndex = *in.OrderIndex
	}
	c, err := s.repo.UpdateChoice(r.Context(), cur)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.syncDecision(r, c.SceneID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	writeJSON(w, http.StatusOK, c)
}

// syncDecision sets the decision flag of a scene from its labeled choices.
func (s *Server) syncDecision(r *http.Request, sceneID string) error {
	choices, err := s.repo.ListChoicesFrom(r.Context(), sceneID)
	if err != nil {
		return err
	}
	decision := false
	for _, c := range choices {
		if !c.IsUnconditional() {
			decision = true
		}
	}
	return s.repo.SetDecisionScene(r.Context(), sceneID, decision)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request, st domain.Story) {
	if _, err := s.choiceIn(r.Context(), st, r.PathValue("choiceID")); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.flowEditor(st.ID).Disconnect(r.Context(), r.PathValue("choiceID")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/stories/{id}/positions with [{ "scene_id", "x", "y" }]. Moves are
// written after the editor's debounce interval unless ?flush=1 is given.
func (s *Server) handleMoveNodes(w http.ResponseWriter, r *http.Request, st domain.Story) {
	var moves []domain.ScenePosition
	if err := decodeJSON(r, &moves); err != nil {
		s.fail(w, r, err)
		return
	}
	scenes, err := s.repo.ListScenes(r.Context(), st.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	known := make(map[string]bool, len(scenes))
	for _, sc := range scenes {
		known[sc.ID] = true
	}
	for i := range moves {
		if !known[moves[i].SceneID] {
			s.fail(w, r, badRequestf("scene %q is not part of the story", moves[i].SceneID))
			return
		}
		moves[i].StoryID = st.ID
	}
	fe := s.flowEditor(st.ID)
	if err := fe.MoveNodes(moves...); err != nil {
		s.fail(w, r, err)
		return
	}
	if queryBool(r, "flush") {
		if err := fe.Flush(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pending": 0})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"pending": len(fe.Pending())})
}

// GET /api/stories/{id}/graph returns nodes and edges; moves not yet
// written are already applied.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request, st domain.Story) {
	scenes, choices, positions, err := s.flowRows(r, st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pending := s.flowEditor(st.ID).Pending()
	byScene := make(map[string]int, len(positions))
	for i, p := range positions {
		byScene[p.SceneID] = i
	}
	for _, p := range pending {
		if i, ok := byScene[p.SceneID]; ok {
			positions[i] = p
		} else {
			positions = append(positions, p)
		}
	}
	writeJSON(w, http.StatusOK, flow.BuildGraph(scenes, choices, positions))
}

// POST /api/stories/{id}/layout arranges scenes in columns by depth from
// the start scene and stores the positions.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request, st domain.Story) {
	scenes, choices, _, err := s.flowRows(r, st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	positions, err := s.flowEditor(st.ID).ApplyAutoLayout(r.Context(), scenes, choices)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow.BuildGraph(scenes, choices, positions))
}

func (s *Server) flowRows(r *http.Request, st domain.Story) ([]domain.Scene, []domain.Choice, []domain.ScenePosition, error) {
	scenes, err := s.repo.ListScenes(r.Context(), st.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	choices, err := s.repo.ListChoices(r.Context(), st.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	positions, err := s.repo.ListScenePositions(r.Context(), st.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return scenes, choices, positions, nil
}
