/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"instory/internal/blob"
	"instory/internal/domain"
	"instory/internal/storage"
)

func (s *Server) routeStories(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stories", s.handleListStories)
	mux.HandleFunc("POST /api/stories", s.withAuth(s.handleCreateStory))
	mux.HandleFunc("GET /api/stories/{id}", s.owned(func(w http.ResponseWriter, r *http.Request, st domain.Story) {
		writeJSON(w, http.StatusOK, st)
	}))
	mux.HandleFunc("PATCH /api/stories/{id}", s.owned(s.handleUpdateStory))
	mux.HandleFunc("DELETE /api/stories/{id}", s.owned(s.handleDeleteStory))
	mux.HandleFunc("GET /api/stories/{id}/revisions", s.owned(s.handleRevisions))
	mux.HandleFunc("GET /api/stories/{id}/search", s.owned(s.handleSearch))

	mux.HandleFunc("GET /api/stories/{id}/languages", s.owned(s.handleListLanguages))
	mux.HandleFunc("POST /api/stories/{id}/languages", s.owned(s.handleAddLanguage))
	mux.HandleFunc("DELETE /api/stories/{id}/languages/{code}", s.owned(s.handleRemoveLanguage))

	mux.HandleFunc("GET /api/stories/{id}/audio", s.owned(s.handleListAudio))
	mux.HandleFunc("POST /api/stories/{id}/audio", s.owned(s.handleCreateAudio))
	mux.HandleFunc("PATCH /api/stories/{id}/audio/{audioID}", s.owned(s.handleUpdateAudio))
	mux.HandleFunc("DELETE /api/stories/{id}/audio/{audioID}", s.owned(s.handleDeleteAudio))
}

// GET /api/stories lists published stories for everyone. With a token and
// without ?published=1 it lists the caller's own stories.
func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	f := storage.StoryFilter{PublishedOnly: true}
	if sub, ok := s.subjectOf(r); ok && !queryBool(r, "published") {
		f = storage.StoryFilter{AuthorID: sub}
	}
	list, err := s.repo.ListStories(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request, sub string) {
	var in domain.Story
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	in.ID = ""
	in.AuthorID = sub
	st, err := s.repo.CreateStory(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if st.IsPublished {
		s.publish(r, st)
	}
	writeJSON(w, http.StatusCreated, st)
}

type storyPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsPublished *bool   `json:"is_published"`
	CoverURL    *string `json:"cover_url"`
}

func (s *Server) handleUpdateStory(w http.ResponseWriter, r *http.Request, st domain.Story) {
	var p storyPatch
	if err := decodeJSON(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	wasPublished := st.IsPublished
	if p.Title != nil {
		st.Title = *p.Title
	}
	if p.Description != nil {
		st.Description = *p.Description
	}
	if p.IsPublished != nil {
		st.IsPublished = *p.IsPublished
	}
	if p.CoverURL != nil {
		st.CoverURL = *p.CoverURL
	}
	updated, err := s.repo.UpdateStory(r.Context(), st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.bundles.Delete(st.ID)
	if updated.IsPublished && (!wasPublished || p.IsPublished != nil) {
		s.publish(r, updated)
	}
	writeJSON(w, http.StatusOK, updated)
}

// publish freezes the story into a revision; readers get the newest one.
func (s *Server) publish(r *http.Request, st domain.Story) {
	ctx := r.Context()
	rev, err := s.repo.SaveRevision(ctx, st.ID)
	if err != nil {
		s.log.ErrorContext(ctx, "save revision failed", slog.String("story_id", st.ID), slog.Any("err", err))
		return
	}
	if _, err := s.repo.PruneRevisions(ctx, st.ID, s.cfg.KeepRevisions); err != nil {
		s.log.WarnContext(ctx, "prune revisions failed", slog.String("story_id", st.ID), slog.Any("err", err))
	}
	s.bundles.Delete(st.ID)
	s.log.InfoContext(ctx, "story published", slog.String("story_id", st.ID), slog.String("revision", rev.ID))
}

func (s *Server) handleDeleteStory(w http.ResponseWriter, r *http.Request, st domain.Story) {
	scenes, err := s.repo.ListScenes(r.Context(), st.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.flowMu.Lock()
	fe := s.flows[st.ID]
	delete(s.flows, st.ID)
	s.flowMu.Unlock()
	if fe != nil {
		// pending positions belong to rows that are about to go
		_ = fe.Close(r.Context())
	}
	if err := s.repo.DeleteStory(r.Context(), st.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	for _, sc := range scenes {
		s.edit.Forget(sc.ID)
	}
	s.bundles.Delete(st.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevisions(w http.ResponseWriter, r *http.Request, st domain.Story) {
	list, err := s.repo.ListRevisions(r.Context(), st.ID, queryInt(r, "limit", 20))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /api/stories/{id}/search?q=&lang=&scene=&bubble=speech,shout&limit=&offset=
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, st domain.Story) {
	q := storage.SearchQuery{
		StoryID:  st.ID,
		Text:     r.URL.Query().Get("q"),
		Language: r.URL.Query().Get("lang"),
		SceneID:  r.URL.Query().Get("scene"),
		Limit:    queryInt(r, "limit", 0),
		Offset:   queryInt(r, "offset", 0),
	}
	if strings.TrimSpace(q.Text) == "" {
		s.fail(w, r, badRequestf("q is required"))
		return
	}
	if b := r.URL.Query().Get("bubble"); b != "" {
		for _, part := range strings.Split(b, ",") {
			q.BubbleTypes = append(q.BubbleTypes, domain.BubbleType(strings.TrimSpace(part)))
		}
	}
	res, err := s.repo.SearchTexts(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type languageView struct {
	domain.StoryLanguage
	Name string `json:"name"`
}

func languageViews(langs []domain.StoryLanguage) []languageView {
	out := make([]languageView, len(langs))
	for i, l := range langs {
		out[i] = languageView{StoryLanguage: l, Name: domain.LanguageName(l.LanguageCode)}
	}
	return out
}

func (s *Server) handleListLanguages(w http.ResponseWriter, r *http.Request, st domain.Story) {
	langs, err := s.repo.ListLanguages(r.Context(), st.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, languageViews(langs))
}

func (s *Server) handleAddLanguage(w http.ResponseWriter, r *http.Request, st domain.Story) {
	var in domain.StoryLanguage
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	in.StoryID = st.ID
	l, err := s.repo.AddLanguage(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	writeJSON(w, http.StatusCreated, languageViews([]domain.StoryLanguage{l})[0])
}

func (s *Server) handleRemoveLanguage(w http.ResponseWriter, r *http.Request, st domain.Story) {
	if err := s.repo.RemoveLanguage(r.Context(), st.ID, r.PathValue("code")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAudio(w http.ResponseWriter, r *http.Request, st domain.Story) {
	list, err := s.repo.ListAudio(r.Context(), st.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// checkAudioScope makes sure a clip's scene and panel belong to the story.
func (s *Server) checkAudioScope(r *http.Request, st domain.Story, a domain.StoryAudio) error {
	if a.PanelID != nil && *a.PanelID != "" {
		p, _, err := s.panelIn(r.Context(), st, *a.PanelID)
		if err != nil {
			return err
		}
		if a.SceneID != nil && *a.SceneID != "" && *a.SceneID != p.SceneID {
			return badRequestf("panel %s is not part of scene %s", p.ID, *a.SceneID)
		}
		return nil
	}
	if a.SceneID != nil && *a.SceneID != "" {
		_, err := s.sceneIn(r.Context(), st, *a.SceneID)
		return err
	}
	return nil
}

func (s *Server) handleCreateAudio(w http.ResponseWriter, r *http.Request, st domain.Story) {
	var in domain.StoryAudio
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	in.ID = ""
	in.StoryID = st.ID
	if err := s.checkAudioScope(r, st, in); err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.repo.CreateAudio(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleUpdateAudio(w http.ResponseWriter, r *http.Request, st domain.Story) {
	cur, err := s.audioIn(r.Context(), st, r.PathValue("audioID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// the body is applied on top of the stored clip
	if err := decodeJSON(r, &cur); err != nil {
		s.fail(w, r, err)
		return
	}
	cur.ID, cur.StoryID = r.PathValue("audioID"), st.ID
	if err := s.checkAudioScope(r, st, cur); err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.repo.UpdateAudio(r.Context(), cur)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAudio(w http.ResponseWriter, r *http.Request, st domain.Story) {
	if _, err := s.audioIn(r.Context(), st, r.PathValue("audioID")); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.repo.DeleteAudio(r.Context(), r.PathValue("audioID")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), st.ID)
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/uploads/{bucket} with a multipart "file" field.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, _ string) {
	obj, err := s.receiveFile(w, r, r.PathValue("bucket"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}

func (s *Server) receiveFile(w http.ResponseWriter, r *http.Request, bucket string) (blob.Object, error) {
	if s.blobs == nil {
		return blob.Object{}, errors.New("file storage is not configured")
	}
	r.Body = http.MaxBytesReader(w, r.Body, blob.DefaultMaxBytes+1<<20)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return blob.Object{}, blob.ErrTooLarge
		}
		return blob.Object{}, badRequestf("read upload: %v", err)
	}
	defer func() { _ = f.Close() }()
	obj, err := s.blobs.Put(r.Context(), bucket, hdr.Filename, f)
	if err != nil {
		return blob.Object{}, err
	}
	s.log.InfoContext(r.Context(), "file uploaded", slog.String("bucket", bucket), slog.String("key", obj.Key), slog.Int64("size", obj.Size))
	return obj, nil
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
