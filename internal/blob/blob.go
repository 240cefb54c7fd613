/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package blob stores uploaded scene images and audio clips on the local
// filesystem and serves them under /files/<bucket>/<key>.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/time/rate"

	applog "instory/internal/log"
)

// Buckets.
const (
	SceneImages = "scene-images"
	StoryAudio  = "story-audio"
)

// URLPrefix is the path under which objects are served.
const URLPrefix = "/files/"

const (
	DefaultMaxBytes   = 50 << 20
	DefaultThumbWidth = 320
	thumbDir          = "thumbs"
	sniffLen          = 261
)

var (
	ErrUnknownBucket = errors.New("unknown bucket")
	ErrWrongKind     = errors.New("file type not allowed in bucket")
	ErrTooLarge      = errors.New("file too large")
	ErrNotFound      = errors.New("object not found")
)

// Object describes a stored file.
type Object struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	ThumbURL    string `json:"thumb_url,omitempty"`
}

// Option configures a Store.
type Option func(*Store)

// WithRateLimit limits uploads to perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Store) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

func WithMaxBytes(n int64) Option { return func(s *Store) { s.maxBytes = n } }
func WithThumbWidth(w int) Option { return func(s *Store) { s.thumbWidth = w } }

// Store is a directory with one subdirectory per bucket.
type Store struct {
	root       string
	baseURL    string
	maxBytes   int64
	thumbWidth int
	limiter    *rate.Limiter
	log        *slog.Logger
}

// NewStore creates the bucket directories under root. baseURL is prefixed
// to object URLs and may be empty for host-relative URLs.
func NewStore(root, baseURL string, opts ...Option) (*Store, error) {
	s := &Store{
		root:       root,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxBytes:   DefaultMaxBytes,
		thumbWidth: DefaultThumbWidth,
		log:        applog.WithComponent("blob"),
	}
	for _, o := range opts {
		o(s)
	}
	for _, b := range []string{SceneImages, StoryAudio} {
		if err := os.MkdirAll(filepath.Join(root, b, thumbDir), 0o755); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", b, err)
		}
	}
	return s, nil
}

func validBucket(b string) bool { return b == SceneImages || b == StoryAudio }

// URL returns the public URL of an object.
func (s *Store) URL(bucket, key string) string {
	return s.baseURL + URLPrefix + bucket + "/" + key
}

// Put stores the content of r under a fresh key derived from filename.
// The content type is sniffed; images only go to SceneImages and audio
// only to StoryAudio. Image uploads report their pixel size and get a
// thumbnail.
func (s *Store) Put(ctx context.Context, bucket, filename string, r io.Reader) (Object, error) {
	if !validBucket(bucket) {
		return Object{}, fmt.Errorf("%w: %q", ErrUnknownBucket, bucket)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return Object{}, fmt.Errorf("upload rate: %w", err)
		}
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return Object{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return Object{}, ErrTooLarge
	}
	head := data[:min(len(data), sniffLen)]
	kind, _ := filetype.Match(head)
	switch {
	case kind == filetype.Unknown:
		return Object{}, fmt.Errorf("%w: unrecognized content", ErrWrongKind)
	case bucket == SceneImages && !filetype.IsImage(head):
		return Object{}, fmt.Errorf("%w: %s is not an image", ErrWrongKind, kind.MIME.Value)
	case bucket == StoryAudio && !filetype.IsAudio(head):
		return Object{}, fmt.Errorf("%w: %s is not audio", ErrWrongKind, kind.MIME.Value)
	}

	key := objectKey(filename, kind.Extension)
	obj := Object{Bucket: bucket, Key: key, URL: s.URL(bucket, key), ContentType: kind.MIME.Value, Size: int64(len(data))}
	if err := writeFileSync(filepath.Join(s.root, bucket, key), data); err != nil {
		return Object{}, fmt.Errorf("write object: %w", err)
	}
	if bucket == SceneImages {
		if err := s.describeImage(&obj, data); err != nil {
			s.log.Warn("image not decodable", slog.String("key", key), slog.Any("err", err))
		}
	}
	s.log.Info("stored object", slog.String("bucket", bucket), slog.String("key", key), slog.Int64("size", obj.Size))
	return obj, nil
}

// objectKey is <uuid>-<slug>.<ext>.
func objectKey(filename, ext string) string {
	base := strings.TrimSuffix(path.Base(filepath.ToSlash(filename)), path.Ext(filename))
	name := slug.Make(base)
	if name == "" {
		name = "file"
	}
	return uuid.NewString() + "-" + name + "." + ext
}

func (s *Store) describeImage(obj *Object, data []byte) error {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return err
	}
	b := img.Bounds()
	obj.Width, obj.Height = b.Dx(), b.Dy()
	if s.thumbWidth <= 0 {
		return nil
	}
	var thumb image.Image = img
	if obj.Width > s.thumbWidth {
		thumb = imaging.Resize(img, s.thumbWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	name := thumbName(obj.Key)
	if err := writeFileSync(filepath.Join(s.root, obj.Bucket, thumbDir, name), buf.Bytes()); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	obj.ThumbURL = s.URL(obj.Bucket, thumbDir+"/"+name)
	return nil
}

func thumbName(key string) string { return strings.TrimSuffix(key, path.Ext(key)) + ".jpg" }

// Stat describes a stored object without its thumbnail.
func (s *Store) Stat(bucket, key string) (Object, error) {
	p, err := s.path(bucket, key)
	if err != nil {
		return Object{}, err
	}
	fi, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return Object{}, ErrNotFound
	}
	if err != nil {
		return Object{}, err
	}
	return Object{Bucket: bucket, Key: key, URL: s.URL(bucket, key), Size: fi.Size()}, nil
}

// Open returns the content of an object.
func (s *Store) Open(bucket, key string) (io.ReadCloser, error) {
	p, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Delete removes an object and its thumbnail.
func (s *Store) Delete(bucket, key string) error {
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	_ = os.Remove(filepath.Join(s.root, bucket, thumbDir, thumbName(key)))
	return nil
}

// ParseURL splits an object URL produced by URL into bucket and key.
func (s *Store) ParseURL(u string) (bucket, key string, ok bool) {
	u = strings.TrimPrefix(u, s.baseURL)
	rest, found := strings.CutPrefix(u, URLPrefix)
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || !validBucket(bucket) || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func (s *Store) path(bucket, key string) (string, error) {
	if !validBucket(bucket) {
		return "", fmt.Errorf("%w: %q", ErrUnknownBucket, bucket)
	}
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != key || strings.Contains(clean, "..") {
		return "", ErrNotFound
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(clean)), nil
}

// Handler serves objects under URLPrefix. Directory listings are refused.
func (s *Store) Handler() http.Handler {
	files := http.StripPrefix(URLPrefix, http.FileServer(http.Dir(s.root)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, URLPrefix)
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || !validBucket(bucket) || key == "" || strings.HasSuffix(key, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		files.ServeHTTP(w, r)
	})
}

// writeFileSync writes data through a temporary file and renames it into
// place once flushed.
func writeFileSync(p string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}
