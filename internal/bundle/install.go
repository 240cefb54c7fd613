/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package bundle

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"instory/internal/domain"
	applog "instory/internal/log"
)

// Store persists the rows of an installed story. *storage.Repository
// satisfies it.
type Store interface {
	CreateStory(ctx context.Context, s domain.Story) (domain.Story, error)
	AddLanguage(ctx context.Context, l domain.StoryLanguage) (domain.StoryLanguage, error)
	CreateScene(ctx context.Context, s domain.Scene) (domain.Scene, error)
	CreatePanel(ctx context.Context, p domain.Panel) (domain.Panel, error)
	CreateChoice(ctx context.Context, c domain.Choice) (domain.Choice, error)
	CreateText(ctx context.Context, t domain.PanelText) (domain.PanelText, error)
	PutContent(ctx context.Context, c domain.PanelTextContent) (domain.PanelTextContent, error)
	CreateAudio(ctx context.Context, a domain.StoryAudio) (domain.StoryAudio, error)
	UpsertScenePositions(ctx context.Context, positions []domain.ScenePosition) error
	DeleteStory(ctx context.Context, id string) error
}

// Remap returns a copy of g where every row has a fresh id and the story id
// is storyID. References between rows follow the new ids.
func Remap(g *domain.StoryGraph, storyID string) *domain.StoryGraph {
	out := cloneGraph(g)
	ids := map[string]string{}
	fresh := func(old string) string {
		if old == "" {
			return ""
		}
		if id, ok := ids[old]; ok {
			return id
		}
		id := uuid.NewString()
		ids[old] = id
		return id
	}
	ref := func(old string) string {
		if id, ok := ids[old]; ok {
			return id
		}
		return old
	}

	out.Story.ID = storyID
	for i := range out.Languages {
		out.Languages[i].StoryID = storyID
	}
	for i := range out.Scenes {
		out.Scenes[i].ID = fresh(out.Scenes[i].ID)
		out.Scenes[i].StoryID = storyID
	}
	for i := range out.Panels {
		out.Panels[i].ID = fresh(out.Panels[i].ID)
		out.Panels[i].SceneID = ref(out.Panels[i].SceneID)
	}
	for i := range out.Choices {
		c := &out.Choices[i]
		c.ID = fresh(c.ID)
		c.SceneID, c.TargetSceneID = ref(c.SceneID), ref(c.TargetSceneID)
	}
	for i := range out.Texts {
		out.Texts[i].ID = fresh(out.Texts[i].ID)
		out.Texts[i].PanelID = ref(out.Texts[i].PanelID)
	}
	for i := range out.Contents {
		out.Contents[i].ID = fresh(out.Contents[i].ID)
		out.Contents[i].PanelTextID = ref(out.Contents[i].PanelTextID)
	}
	for i := range out.Audio {
		a := &out.Audio[i]
		a.ID = fresh(a.ID)
		a.StoryID = storyID
		if a.SceneID != nil {
			id := ref(*a.SceneID)
			a.SceneID = &id
		}
		if a.PanelID != nil {
			id := ref(*a.PanelID)
			a.PanelID = &id
		}
	}
	for i := range out.Positions {
		out.Positions[i].SceneID = ref(out.Positions[i].SceneID)
		out.Positions[i].StoryID = storyID
	}
	return out
}

// Install stores pkg as a new unpublished story owned by authorID and
// returns its graph. Media files are uploaded first. A failure part way
// removes the partially created story.
func Install(ctx context.Context, store Store, pkg *Package, authorID string, media Media) (_ *domain.StoryGraph, err error) {
	g := Remap(pkg.Graph, uuid.NewString())
	g.Story.AuthorID = authorID
	g.Story.IsPublished = false
	l := applog.WithOperation(applog.WithComponent("bundle"), "install").With(
		slog.String("story_id", g.Story.ID), slog.String("source_story_id", pkg.Manifest.StoryID))

	if err := uploadMedia(ctx, g, pkg.Files, media); err != nil {
		return nil, err
	}

	story, err := store.CreateStory(ctx, g.Story)
	if err != nil {
		return nil, fmt.Errorf("create story: %w", err)
	}
	g.Story = story
	defer func() {
		if err != nil {
			if derr := store.DeleteStory(context.WithoutCancel(ctx), story.ID); derr != nil {
				err = multierr.Append(err, fmt.Errorf("cleanup: %w", derr))
			}
			l.Warn("install rolled back", slog.Any("err", err))
		}
	}()

	// Default language last so it stays the default.
	langs := append([]domain.StoryLanguage(nil), g.Languages...)
	sort.SliceStable(langs, func(i, j int) bool { return !langs[i].IsDefault && langs[j].IsDefault })
	for i, lang := range langs {
		if langs[i], err = store.AddLanguage(ctx, lang); err != nil {
			return nil, fmt.Errorf("add language %s: %w", lang.LanguageCode, err)
		}
	}
	g.Languages = langs

	sort.SliceStable(g.Scenes, func(i, j int) bool { return g.Scenes[i].OrderIndex < g.Scenes[j].OrderIndex })
	start := ""
	for _, s := range g.Scenes {
		if s.IsStartScene {
			start = s.ID
		}
	}
	for i, s := range g.Scenes {
		s.IsStartScene = s.ID == start
		if g.Scenes[i], err = store.CreateScene(ctx, s); err != nil {
			return nil, fmt.Errorf("create scene %q: %w", s.Title, err)
		}
	}
	for i, p := range g.Panels {
		if g.Panels[i], err = store.CreatePanel(ctx, p); err != nil {
			return nil, fmt.Errorf("create panel: %w", err)
		}
	}
	for i, c := range g.Choices {
		if g.Choices[i], err = store.CreateChoice(ctx, c); err != nil {
			return nil, fmt.Errorf("create choice: %w", err)
		}
	}
	for i, t := range g.Texts {
		if g.Texts[i], err = store.CreateText(ctx, t); err != nil {
			return nil, fmt.Errorf("create text: %w", err)
		}
	}
	for i, c := range g.Contents {
		if g.Contents[i], err = store.PutContent(ctx, c); err != nil {
			return nil, fmt.Errorf("put text content: %w", err)
		}
	}
	for i, a := range g.Audio {
		if g.Audio[i], err = store.CreateAudio(ctx, a); err != nil {
			return nil, fmt.Errorf("create audio %q: %w", a.Name, err)
		}
	}
	if len(g.Positions) > 0 {
		if err = store.UpsertScenePositions(ctx, g.Positions); err != nil {
			return nil, fmt.Errorf("scene positions: %w", err)
		}
	}
	l.Info("story installed", slog.String("title", g.Story.Title), slog.Int("scenes", len(g.Scenes)))
	return g, nil
}

// uploadMedia replaces archive media paths in g with URLs of uploaded copies.
func uploadMedia(ctx context.Context, g *domain.StoryGraph, files map[string][]byte, media Media) error {
	uploaded := map[string]string{}
	put := func(u string) (string, error) {
		if !strings.HasPrefix(u, mediaDir) {
			return u, nil
		}
		p := path.Clean(u)
		if url, ok := uploaded[p]; ok {
			return url, nil
		}
		if media == nil {
			return "", fmt.Errorf("%w: %s needs a media store", ErrInvalid, p)
		}
		rest := strings.TrimPrefix(p, mediaDir)
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok {
			return "", fmt.Errorf("%w: bad media path %s", ErrInvalid, p)
		}
		obj, err := media.Put(ctx, bucket, originalName(key), bytes.NewReader(files[p]))
		if err != nil {
			return "", fmt.Errorf("upload %s: %w", p, err)
		}
		uploaded[p] = obj.URL
		return obj.URL, nil
	}
	var err error
	if g.Story.CoverURL, err = put(g.Story.CoverURL); err != nil {
		return err
	}
	for i := range g.Scenes {
		if g.Scenes[i].ImageURL, err = put(g.Scenes[i].ImageURL); err != nil {
			return err
		}
	}
	for i := range g.Audio {
		if g.Audio[i].AudioURL, err = put(g.Audio[i].AudioURL); err != nil {
			return err
		}
	}
	return nil
}

// originalName drops the uuid prefix blob keys carry.
func originalName(key string) string {
	if len(key) > 37 && key[36] == '-' {
		if _, err := uuid.Parse(key[:36]); err == nil {
			return key[37:]
		}
	}
	return key
}
