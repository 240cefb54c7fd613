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
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"instory/internal/domain"
)

// language=SQL
const insertRevisionSQL = `INSERT INTO story_revisions (id, story_id, created_at, graph) VALUES (?, ?, ?, ?)`

// language=SQL
const selectLatestRevisionSQL = `SELECT id, created_at, graph FROM story_revisions WHERE story_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`

// language=SQL
const listRevisionsSQL = `SELECT id, created_at FROM story_revisions WHERE story_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`

// language=SQL
const pruneRevisionsSQL = `DELETE FROM story_revisions WHERE story_id = ? AND id NOT IN (
	SELECT id FROM story_revisions WHERE story_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
)`

// Revision is a frozen copy of a story graph, taken when a story is published.
type Revision struct {
	ID        string             `json:"id"`
	StoryID   string             `json:"story_id"`
	CreatedAt time.Time          `json:"created_at"`
	Graph     *domain.StoryGraph `json:"graph,omitempty"`
}

// SaveRevision stores the current graph of a story.
func (r *Repository) SaveRevision(ctx context.Context, storyID string) (Revision, error) {
	g, err := r.LoadStoryGraph(ctx, storyID)
	if err != nil {
		return Revision{}, err
	}
	b, err := json.Marshal(g)
	if err != nil {
		return Revision{}, fmt.Errorf("encode revision: %w", err)
	}
	rev := Revision{ID: r.newID(), StoryID: storyID, CreatedAt: r.now(), Graph: g}
	if _, err := r.db.ExecContext(ctx, r.rebind(insertRevisionSQL), rev.ID, storyID, r.ts(rev.CreatedAt), string(b)); err != nil {
		return Revision{}, fmt.Errorf("insert revision: %w", err)
	}
	return rev, nil
}

// LatestRevision returns the newest revision of a story with its graph.
func (r *Repository) LatestRevision(ctx context.Context, storyID string) (Revision, error) {
	var (
		rev  = Revision{StoryID: storyID}
		blob []byte
	)
	err := r.db.QueryRowContext(ctx, r.rebind(selectLatestRevisionSQL), storyID).Scan(&rev.ID, dbTime{&rev.CreatedAt}, dbJSON{&blob})
	if err != nil {
		return Revision{}, notFound("latest revision", err)
	}
	rev.Graph = &domain.StoryGraph{}
	if err := json.Unmarshal(blob, rev.Graph); err != nil {
		return Revision{}, fmt.Errorf("decode revision: %w", err)
	}
	return rev, nil
}

// ListRevisions returns up to limit revisions, newest first, without graphs.
func (r *Repository) ListRevisions(ctx context.Context, storyID string, limit int) (_ []Revision, err error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.rebind(listRevisionsSQL), storyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()
	out := []Revision{}
	for rows.Next() {
		rev := Revision{StoryID: storyID}
		if err := rows.Scan(&rev.ID, dbTime{&rev.CreatedAt}); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

// PruneRevisions keeps the newest keepLast revisions of a story.
func (r *Repository) PruneRevisions(ctx context.Context, storyID string, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, r.rebind(pruneRevisionsSQL), storyID, storyID, keepLast)
	if err != nil {
		return 0, fmt.Errorf("prune revisions: %w", err)
	}
	return res.RowsAffected()
}
