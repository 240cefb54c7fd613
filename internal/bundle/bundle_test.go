/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"instory/internal/blob"
	"instory/internal/domain"
	"instory/internal/storage"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func openEnv(t *testing.T) (*storage.Repository, *blob.Store) {
	t.Helper()
	dir := t.TempDir()
	repo, err := storage.Open(context.Background(), storage.Options{Dialect: storage.SQLite, DSN: filepath.Join(dir, "b.sqlite")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	blobs, err := blob.NewStore(filepath.Join(dir, "files"), "")
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	return repo, blobs
}

// seed creates a two-scene story with an image, a labeled choice, a text in
// two languages and scene audio.
func seed(t *testing.T, repo *storage.Repository, blobs *blob.Store) string {
	t.Helper()
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	obj, err := blobs.Put(ctx, blob.SceneImages, "forest.png", bytes.NewReader(pngBytes(t)))
	must(err)
	st, err := repo.CreateStory(ctx, domain.Story{Title: "Woods", AuthorID: "alice", IsPublished: true})
	must(err)
	_, err = repo.AddLanguage(ctx, domain.StoryLanguage{StoryID: st.ID, LanguageCode: "en"})
	must(err)
	_, err = repo.AddLanguage(ctx, domain.StoryLanguage{StoryID: st.ID, LanguageCode: "de"})
	must(err)
	s1, err := repo.CreateScene(ctx, domain.Scene{StoryID: st.ID, Title: "Edge", ImageURL: obj.URL, ImageWidth: 8, ImageHeight: 4})
	must(err)
	s2, err := repo.CreateScene(ctx, domain.Scene{StoryID: st.ID, Title: "Deep"})
	must(err)
	p, err := repo.CreatePanel(ctx, domain.Panel{SceneID: s1.ID, Shape: domain.ShapeRectangle, Width: 4, Height: 4, OrderIndex: -1})
	must(err)
	_, err = repo.CreateChoice(ctx, domain.Choice{SceneID: s1.ID, TargetSceneID: s2.ID, Text: "Enter", OrderIndex: -1})
	must(err)
	txt, err := repo.CreateText(ctx, domain.PanelText{PanelID: p.ID, Width: 0.5, OrderIndex: -1})
	must(err)
	for lang, s := range map[string]string{"en": "Hi", "de": "Hallo"} {
		_, err = repo.PutContent(ctx, domain.PanelTextContent{PanelTextID: txt.ID, LanguageCode: lang, Text: s})
		must(err)
	}
	_, err = repo.CreateAudio(ctx, domain.StoryAudio{StoryID: st.ID, SceneID: &s2.ID, Name: "wind", AudioURL: "https://cdn.example/wind.mp3", Volume: 0.5, Loop: true})
	must(err)
	must(repo.UpsertScenePositions(ctx, []domain.ScenePosition{{SceneID: s1.ID, StoryID: st.ID, X: 10, Y: 20}}))
	return st.ID
}

func TestExportReadInstall(t *testing.T) {
	ctx := context.Background()
	repo, blobs := openEnv(t)
	id := seed(t, repo, blobs)

	var buf bytes.Buffer
	m, err := Export(ctx, repo, id, &buf, blobs)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if m.Format != Format || m.Version != FormatVersion || m.Title != "Woods" || len(m.Media) != 1 {
		t.Fatalf("manifest = %+v", m)
	}
	if !strings.HasPrefix(m.Media[0], "media/scene-images/") {
		t.Errorf("media path %q", m.Media[0])
	}

	pkg, err := Read(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := pkg.Graph.Scenes[0].ImageURL; got != m.Media[0] {
		t.Errorf("packed image url = %q", got)
	}
	if got := pkg.Graph.Audio[0].AudioURL; got != "https://cdn.example/wind.mp3" {
		t.Errorf("external url rewritten: %q", got)
	}

	g, err := Install(ctx, repo, pkg, "bob", blobs)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if g.Story.ID == id || g.Story.AuthorID != "bob" || g.Story.IsPublished {
		t.Fatalf("installed story = %+v", g.Story)
	}

	orig, err := repo.LoadStoryGraph(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	got, err := repo.LoadStoryGraph(ctx, g.Story.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Scenes) != 2 || len(got.Panels) != 1 || len(got.Choices) != 1 || len(got.Texts) != 1 ||
		len(got.Contents) != 2 || len(got.Audio) != 1 || len(got.Positions) != 1 {
		t.Fatalf("installed graph counts: %+v", got)
	}
	for _, s := range got.Scenes {
		for _, o := range orig.Scenes {
			if s.ID == o.ID {
				t.Errorf("scene id %s reused", s.ID)
			}
		}
	}
	start, ok := got.StartScene()
	if !ok || start.Title != "Edge" {
		t.Errorf("start scene = %+v", start)
	}
	if got.Choices[0].SceneID != start.ID || got.Panels[0].SceneID != start.ID {
		t.Errorf("references not remapped: %+v %+v", got.Choices[0], got.Panels[0])
	}
	if *got.Audio[0].SceneID != got.Choices[0].TargetSceneID {
		t.Errorf("audio scene = %s", *got.Audio[0].SceneID)
	}
	def := ""
	for _, l := range got.Languages {
		if l.IsDefault {
			def = l.LanguageCode
		}
	}
	if def != "en" {
		t.Errorf("default language = %q", def)
	}

	bucket, key, ok := blobs.ParseURL(start.ImageURL)
	if !ok || bucket != blob.SceneImages || start.ImageURL == orig.Scenes[0].ImageURL {
		t.Fatalf("image not re-uploaded: %q", start.ImageURL)
	}
	if !strings.HasSuffix(key, "-forest.png") {
		t.Errorf("uploaded key %q", key)
	}
	rc, err := blobs.Open(bucket, key)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(data, pngBytes(t)) {
		t.Errorf("uploaded image differs")
	}
}

func TestRemapKeepsStructure(t *testing.T) {
	sid := "s1"
	g := &domain.StoryGraph{
		Story:   domain.Story{ID: "old", Title: "T"},
		Scenes:  []domain.Scene{{ID: "s1", StoryID: "old"}, {ID: "s2", StoryID: "old"}},
		Panels:  []domain.Panel{{ID: "p1", SceneID: "s1"}},
		Choices: []domain.Choice{{ID: "c1", SceneID: "s1", TargetSceneID: "s2"}},
		Texts:   []domain.PanelText{{ID: "t1", PanelID: "p1"}},
		Audio:   []domain.StoryAudio{{ID: "a1", StoryID: "old", SceneID: &sid}},
	}
	out := Remap(g, "new")

	if out.Story.ID != "new" || out.Scenes[0].StoryID != "new" || out.Audio[0].StoryID != "new" {
		t.Fatalf("story id not applied")
	}
	if out.Scenes[0].ID == "s1" || out.Panels[0].SceneID != out.Scenes[0].ID {
		t.Errorf("panel scene = %s, scene = %s", out.Panels[0].SceneID, out.Scenes[0].ID)
	}
	if out.Choices[0].TargetSceneID != out.Scenes[1].ID || out.Texts[0].PanelID != out.Panels[0].ID {
		t.Errorf("references lost")
	}
	if *out.Audio[0].SceneID != out.Scenes[0].ID {
		t.Errorf("audio scene = %s", *out.Audio[0].SceneID)
	}
	if diff := cmp.Diff("s1", *g.Audio[0].SceneID); diff != "" || g.Scenes[0].ID != "s1" {
		t.Errorf("input modified (-want +got):\n%s", diff)
	}
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(w, body)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadRejects(t *testing.T) {
	const manifest = `{"format":"instory-bundle","version":1}`
	cases := map[string]map[string]string{
		"not a zip":        nil,
		"missing story":    {"manifest.json": manifest},
		"wrong format":     {"manifest.json": `{"format":"other","version":1}`, "story.json": `{}`},
		"future version":   {"manifest.json": `{"format":"instory-bundle","version":99}`, "story.json": `{}`},
		"schema violation": {"manifest.json": manifest, "story.json": `{"story":{"id":"x","title":""},"scenes":[]}`},
		"bad shape": {"manifest.json": manifest, "story.json": `{"story":{"id":"x","title":"T"},
			"scenes":[{"id":"s","story_id":"x"}],
			"panels":[{"id":"p","scene_id":"s","shape":"star"}]}`},
		"dangling choice": {"manifest.json": manifest, "story.json": `{"story":{"id":"x","title":"T"},
			"scenes":[{"id":"s","story_id":"x"}],
			"choices":[{"id":"c","scene_id":"s","target_scene_id":"gone"}]}`},
		"missing media": {"manifest.json": manifest, "story.json": `{"story":{"id":"x","title":"T"},
			"scenes":[{"id":"s","story_id":"x","image_url":"media/scene-images/a.png"}]}`},
	}
	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			data := []byte("plain text")
			if files != nil {
				data = zipOf(t, files)
			}
			_, err := Read(bytes.NewReader(data), int64(len(data)))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestReadAcceptsMinimalStory(t *testing.T) {
	data := zipOf(t, map[string]string{
		"manifest.json": `{"format":"instory-bundle","version":1}`,
		"story.json":    `{"story":{"id":"x","title":"T"},"scenes":[{"id":"s","story_id":"x"}],"panels":null}`,
	})
	pkg, err := Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(pkg.Graph.Scenes) != 1 {
		t.Errorf("scenes = %d", len(pkg.Graph.Scenes))
	}
}

type failingStore struct {
	*storage.Repository
	deleted string
}

func (f *failingStore) CreateChoice(context.Context, domain.Choice) (domain.Choice, error) {
	return domain.Choice{}, errors.New("boom")
}

func (f *failingStore) DeleteStory(ctx context.Context, id string) error {
	f.deleted = id
	return f.Repository.DeleteStory(ctx, id)
}

func TestInstallRollsBack(t *testing.T) {
	ctx := context.Background()
	repo, blobs := openEnv(t)
	id := seed(t, repo, blobs)
	var buf bytes.Buffer
	if _, err := Export(ctx, repo, id, &buf, blobs); err != nil {
		t.Fatal(err)
	}
	pkg, err := Read(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	fs := &failingStore{Repository: repo}
	if _, err := Install(ctx, fs, pkg, "bob", blobs); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v", err)
	}
	if fs.deleted == "" {
		t.Fatal("partial story not removed")
	}
	if _, err := repo.GetStory(ctx, fs.deleted); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("story still present: %v", err)
	}
}

func TestOriginalName(t *testing.T) {
	if got := originalName("0b6c7a5e-93a4-4a6b-8f43-0a4a3b1d2c3e-forest.png"); got != "forest.png" {
		t.Errorf("got %q", got)
	}
	if got := originalName("plain.png"); got != "plain.png" {
		t.Errorf("got %q", got)
	}
}
