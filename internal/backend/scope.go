/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"fmt"
	"net/http"

	"instory/internal/domain"
	"instory/internal/storage"
)

// storyHandler is an authenticated handler bound to a story the caller owns.
type storyHandler func(w http.ResponseWriter, r *http.Request, st domain.Story)

// owned loads the {id} story of the request and checks that the token
// subject wrote it. Stories of other authors are reported as not found.
func (s *Server) owned(next storyHandler) http.HandlerFunc {
	return s.withAuth(func(w http.ResponseWriter, r *http.Request, sub string) {
		st, err := s.repo.GetStory(r.Context(), r.PathValue("id"))
		if err == nil && st.AuthorID != sub {
			err = fmt.Errorf("get story: %w", storage.ErrNotFound)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next(w, r, st)
	})
}

func (s *Server) sceneIn(ctx context.Context, st domain.Story, sceneID string) (domain.Scene, error) {
	sc, err := s.repo.GetScene(ctx, sceneID)
	if err != nil {
		return domain.Scene{}, err
	}
	if sc.StoryID != st.ID {
		return domain.Scene{}, fmt.Errorf("scene %s: %w", sceneID, storage.ErrNotFound)
	}
	return sc, nil
}

func (s *Server) panelIn(ctx context.Context, st domain.Story, panelID string) (domain.Panel, domain.Scene, error) {
	p, err := s.repo.GetPanel(ctx, panelID)
	if err != nil {
		return domain.Panel{}, domain.Scene{}, err
	}
	sc, err := s.sceneIn(ctx, st, p.SceneID)
	if err != nil {
		return domain.Panel{}, domain.Scene{}, err
	}
	return p, sc, nil
}

func (s *Server) textIn(ctx context.Context, st domain.Story, textID string) (domain.PanelText, error) {
	t, err := s.repo.GetText(ctx, textID)
	if err != nil {
		return domain.PanelText{}, err
	}
	if _, _, err := s.panelIn(ctx, st, t.PanelID); err != nil {
		return domain.PanelText{}, err
	}
	return t, nil
}

func (s *Server) choiceIn(ctx context.Context, st domain.Story, choiceID string) (domain.Choice, error) {
	c, err := s.repo.GetChoice(ctx, choiceID)
	if err != nil {
		return domain.Choice{}, err
	}
	if _, err := s.sceneIn(ctx, st, c.SceneID); err != nil {
		return domain.Choice{}, err
	}
	return c, nil
}

func (s *Server) audioIn(ctx context.Context, st domain.Story, audioID string) (domain.StoryAudio, error) {
	a, err := s.repo.GetAudio(ctx, audioID)
	if err != nil {
		return domain.StoryAudio{}, err
	}
	if a.StoryID != st.ID {
		return domain.StoryAudio{}, fmt.Errorf("audio %s: %w", audioID, storage.ErrNotFound)
	}
	return a, nil
}
