/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"instory/internal/domain"
)

// LoadStoryGraph reads a whole story. The tables are loaded concurrently.
func (r *Repository) LoadStoryGraph(ctx context.Context, storyID string) (*domain.StoryGraph, error) {
	story, err := r.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	g := &domain.StoryGraph{Story: story}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) { g.Languages, err = r.ListLanguages(ctx, storyID); return })
	eg.Go(func() (err error) { g.Scenes, err = r.ListScenes(ctx, storyID); return })
	eg.Go(func() (err error) {
		g.Panels, err = r.queryPanels(ctx, r.db, `SELECT `+panelCols+` FROM panels
			WHERE scene_id IN (SELECT id FROM scenes WHERE story_id = ?) ORDER BY scene_id, order_index, created_at`, storyID)
		return
	})
	eg.Go(func() (err error) { g.Choices, err = r.ListChoices(ctx, storyID); return })
	eg.Go(func() (err error) { g.Texts, err = r.ListStoryTexts(ctx, storyID); return })
	eg.Go(func() (err error) { g.Contents, err = r.ListStoryContents(ctx, storyID); return })
	eg.Go(func() (err error) { g.Audio, err = r.ListAudio(ctx, storyID); return })
	eg.Go(func() (err error) { g.Positions, err = r.ListScenePositions(ctx, storyID); return })
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("load story graph: %w", err)
	}
	return g, nil
}
