/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package bundle packs a story into a portable zip archive and installs
// such an archive as a new story.
//
// Layout of a bundle:
//
//	manifest.json            format, version and media list
//	story.json               the story graph
//	media/<bucket>/<key>     scene images, cover and audio files
package bundle

import (
	"archive/zip"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/multierr"

	"instory/internal/blob"
	"instory/internal/domain"
	applog "instory/internal/log"
	"instory/internal/version"
)

const (
	Format        = "instory-bundle"
	FormatVersion = 1

	manifestFile = "manifest.json"
	storyFile    = "story.json"
	mediaDir     = "media/"

	maxStoryJSON = 32 << 20
)

var (
	// ErrInvalid is returned for archives that are not usable bundles.
	ErrInvalid = errors.New("invalid story bundle")
	// ErrTooLarge is returned when an archive entry exceeds its size limit.
	ErrTooLarge = errors.New("bundle entry too large")
)

//go:embed schema.json
var schemaJSON []byte

var schema = gojsonschema.NewBytesLoader(schemaJSON)

// Manifest describes a bundle.
type Manifest struct {
	Format     string    `json:"format"`
	Version    int       `json:"version"`
	AppVersion string    `json:"app_version"`
	CreatedAt  time.Time `json:"created_at"`
	StoryID    string    `json:"story_id"`
	Title      string    `json:"title"`
	Media      []string  `json:"media,omitempty"`
}

// Media reads and stores files referenced by a story. *blob.Store satisfies it.
type Media interface {
	ParseURL(u string) (bucket, key string, ok bool)
	Open(bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, filename string, r io.Reader) (blob.Object, error)
}

// Source loads story graphs.
type Source interface {
	LoadStoryGraph(ctx context.Context, storyID string) (*domain.StoryGraph, error)
}

// Package is a bundle read into memory.
type Package struct {
	Manifest Manifest
	Graph    *domain.StoryGraph
	// Files maps archive paths under media/ to their contents.
	Files map[string][]byte
}

// Export loads a story and writes it as a bundle.
func Export(ctx context.Context, src Source, storyID string, w io.Writer, media Media) (Manifest, error) {
	g, err := src.LoadStoryGraph(ctx, storyID)
	if err != nil {
		return Manifest{}, fmt.Errorf("load story: %w", err)
	}
	return Write(w, g, media)
}

// Write writes g as a bundle. Files the media store knows are copied into
// the archive and their URLs replaced by archive paths; other URLs are kept.
// A nil media store keeps every URL.
func Write(w io.Writer, g *domain.StoryGraph, media Media) (Manifest, error) {
	l := applog.WithOperation(applog.WithComponent("bundle"), "write").With(slog.String("story_id", g.Story.ID))
	out := cloneGraph(g)
	files := map[string][]byte{}
	pack := func(u string) (string, error) {
		if media == nil || u == "" {
			return u, nil
		}
		bucket, key, ok := media.ParseURL(u)
		if !ok {
			return u, nil
		}
		p := mediaDir + bucket + "/" + key
		if _, done := files[p]; done {
			return p, nil
		}
		rc, err := media.Open(bucket, key)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", u, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", u, err)
		}
		files[p] = data
		return p, nil
	}
	var err error
	if out.Story.CoverURL, err = pack(out.Story.CoverURL); err != nil {
		return Manifest{}, err
	}
	for i := range out.Scenes {
		if out.Scenes[i].ImageURL, err = pack(out.Scenes[i].ImageURL); err != nil {
			return Manifest{}, err
		}
	}
	for i := range out.Audio {
		if out.Audio[i].AudioURL, err = pack(out.Audio[i].AudioURL); err != nil {
			return Manifest{}, err
		}
	}

	m := Manifest{
		Format:     Format,
		Version:    FormatVersion,
		AppVersion: version.String(),
		CreatedAt:  time.Now().UTC(),
		StoryID:    g.Story.ID,
		Title:      g.Story.Title,
	}
	for p := range files {
		m.Media = append(m.Media, p)
	}
	sort.Strings(m.Media)

	zw := zip.NewWriter(w)
	if err := writeJSON(zw, manifestFile, m); err != nil {
		return Manifest{}, err
	}
	if err := writeJSON(zw, storyFile, out); err != nil {
		return Manifest{}, err
	}
	for _, p := range m.Media {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: p, Method: zip.Store})
		if err != nil {
			return Manifest{}, fmt.Errorf("add %s: %w", p, err)
		}
		if _, err := fw.Write(files[p]); err != nil {
			return Manifest{}, fmt.Errorf("write %s: %w", p, err)
		}
	}
	if err := zw.Close(); err != nil {
		return Manifest{}, fmt.Errorf("close zip: %w", err)
	}
	l.Info("bundle written", slog.Int("scenes", len(out.Scenes)), slog.Int("media", len(m.Media)))
	return m, nil
}

func writeJSON(zw *zip.Writer, name string, v any) error {
	fw, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	enc := json.NewEncoder(fw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return nil
}

// Read parses and validates a bundle. story.json must match the embedded
// schema and reference only ids it defines.
func Read(r io.ReaderAt, size int64) (*Package, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	pkg := &Package{Files: map[string][]byte{}}
	var manifest, story []byte
	for _, f := range zr.File {
		name := path.Clean(f.Name)
		switch {
		case name == manifestFile:
			manifest, err = readEntry(f, maxStoryJSON)
		case name == storyFile:
			story, err = readEntry(f, maxStoryJSON)
		case strings.HasPrefix(name, mediaDir) && !f.FileInfo().IsDir():
			pkg.Files[name], err = readEntry(f, blob.DefaultMaxBytes)
		}
		if err != nil {
			return nil, err
		}
	}
	if manifest == nil || story == nil {
		return nil, fmt.Errorf("%w: %s and %s are required", ErrInvalid, manifestFile, storyFile)
	}
	if err := json.Unmarshal(manifest, &pkg.Manifest); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrInvalid, err)
	}
	if pkg.Manifest.Format != Format || pkg.Manifest.Version < 1 || pkg.Manifest.Version > FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format %q version %d", ErrInvalid, pkg.Manifest.Format, pkg.Manifest.Version)
	}
	if err := validateSchema(story); err != nil {
		return nil, err
	}
	var g domain.StoryGraph
	if err := json.Unmarshal(story, &g); err != nil {
		return nil, fmt.Errorf("%w: story: %v", ErrInvalid, err)
	}
	if err := checkRefs(&g, pkg.Files); err != nil {
		return nil, err
	}
	pkg.Graph = &g
	return pkg, nil
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrInvalid, f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalid, f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, f.Name)
	}
	return data, nil
}

func validateSchema(story []byte) error {
	res, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(story))
	if err != nil {
		return fmt.Errorf("%w: story: %v", ErrInvalid, err)
	}
	if res.Valid() {
		return nil
	}
	var errs error
	for _, e := range res.Errors() {
		errs = multierr.Append(errs, errors.New(e.String()))
	}
	return fmt.Errorf("%w: %v", ErrInvalid, errs)
}

// checkRefs rejects graphs whose rows point at ids the graph lacks or at
// media files missing from the archive.
func checkRefs(g *domain.StoryGraph, files map[string][]byte) error {
	scenes := map[string]bool{}
	for _, s := range g.Scenes {
		if scenes[s.ID] {
			return fmt.Errorf("%w: duplicate scene %s", ErrInvalid, s.ID)
		}
		scenes[s.ID] = true
	}
	panels := map[string]bool{}
	for _, p := range g.Panels {
		if !scenes[p.SceneID] {
			return fmt.Errorf("%w: panel %s references unknown scene %s", ErrInvalid, p.ID, p.SceneID)
		}
		panels[p.ID] = true
	}
	for _, c := range g.Choices {
		if !scenes[c.SceneID] || !scenes[c.TargetSceneID] {
			return fmt.Errorf("%w: choice %s references unknown scene", ErrInvalid, c.ID)
		}
	}
	texts := map[string]bool{}
	for _, t := range g.Texts {
		if !panels[t.PanelID] {
			return fmt.Errorf("%w: text %s references unknown panel %s", ErrInvalid, t.ID, t.PanelID)
		}
		texts[t.ID] = true
	}
	for _, c := range g.Contents {
		if !texts[c.PanelTextID] {
			return fmt.Errorf("%w: content references unknown text %s", ErrInvalid, c.PanelTextID)
		}
	}
	for _, a := range g.Audio {
		if a.SceneID != nil && !scenes[*a.SceneID] {
			return fmt.Errorf("%w: audio %s references unknown scene", ErrInvalid, a.ID)
		}
		if a.PanelID != nil && !panels[*a.PanelID] {
			return fmt.Errorf("%w: audio %s references unknown panel", ErrInvalid, a.ID)
		}
	}
	for _, p := range g.Positions {
		if !scenes[p.SceneID] {
			return fmt.Errorf("%w: position references unknown scene %s", ErrInvalid, p.SceneID)
		}
	}
	urls := []string{g.Story.CoverURL}
	for _, s := range g.Scenes {
		urls = append(urls, s.ImageURL)
	}
	for _, a := range g.Audio {
		urls = append(urls, a.AudioURL)
	}
	for _, u := range urls {
		if strings.HasPrefix(u, mediaDir) {
			if _, ok := files[path.Clean(u)]; !ok {
				return fmt.Errorf("%w: missing media file %s", ErrInvalid, u)
			}
		}
	}
	return nil
}

func cloneGraph(g *domain.StoryGraph) *domain.StoryGraph {
	out := *g
	out.Languages = append([]domain.StoryLanguage(nil), g.Languages...)
	out.Scenes = append([]domain.Scene(nil), g.Scenes...)
	out.Panels = append([]domain.Panel(nil), g.Panels...)
	out.Choices = append([]domain.Choice(nil), g.Choices...)
	out.Texts = append([]domain.PanelText(nil), g.Texts...)
	out.Contents = append([]domain.PanelTextContent(nil), g.Contents...)
	out.Audio = append([]domain.StoryAudio(nil), g.Audio...)
	out.Positions = append([]domain.ScenePosition(nil), g.Positions...)
	return &out
}
