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
	"database/sql"
	"fmt"

	"go.uber.org/multierr"

	"instory/internal/domain"
)

const audioCols = `id, story_id, scene_id, panel_id, name, audio_type, audio_url, volume, loop, autoplay, fade_in_ms, fade_out_ms, start_delay_ms, created_at`

func scanAudio(row interface{ Scan(...any) error }) (domain.StoryAudio, error) {
	var (
		a            domain.StoryAudio
		scene, panel sql.NullString
	)
	err := row.Scan(&a.ID, &a.StoryID, &scene, &panel, &a.Name, &a.Kind, &a.AudioURL, &a.Volume, &a.Loop, &a.Autoplay,
		&a.FadeInMs, &a.FadeOutMs, &a.StartDelayMs, dbTime{&a.CreatedAt})
	a.SceneID, a.PanelID = stringPtr(scene), stringPtr(panel)
	return a, err
}

func (r *Repository) CreateAudio(ctx context.Context, a domain.StoryAudio) (domain.StoryAudio, error) {
	if err := a.Validate(); err != nil {
		return domain.StoryAudio{}, err
	}
	if a.ID == "" {
		a.ID = r.newID()
	}
	a.CreatedAt = r.now()
	_, err := r.db.ExecContext(ctx, r.rebind(`INSERT INTO story_audio (`+audioCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.StoryID, nullString(a.SceneID), nullString(a.PanelID), a.Name, a.Kind, a.AudioURL, a.Volume, a.Loop, a.Autoplay,
		a.FadeInMs, a.FadeOutMs, a.StartDelayMs, r.ts(a.CreatedAt))
	if err != nil {
		return domain.StoryAudio{}, fmt.Errorf("insert audio: %w", err)
	}
	return a, nil
}

func (r *Repository) GetAudio(ctx context.Context, id string) (domain.StoryAudio, error) {
	a, err := scanAudio(r.db.QueryRowContext(ctx, r.rebind(`SELECT `+audioCols+` FROM story_audio WHERE id = ?`), id))
	if err != nil {
		return domain.StoryAudio{}, notFound("get audio", err)
	}
	return a, nil
}

// ListAudio returns every clip of a story.
func (r *Repository) ListAudio(ctx context.Context, storyID string) (_ []domain.StoryAudio, err error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT `+audioCols+` FROM story_audio WHERE story_id = ? ORDER BY created_at, id`), storyID)
	if err != nil {
		return nil, fmt.Errorf("list audio: %w", err)
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()
	out := []domain.StoryAudio{}
	for rows.Next() {
		a, err := scanAudio(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audio: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateAudio(ctx context.Context, a domain.StoryAudio) (domain.StoryAudio, error) {
	if err := a.Validate(); err != nil {
		return domain.StoryAudio{}, err
	}
	if err := r.exec(ctx, r.db, "update audio",
		`UPDATE story_audio SET scene_id = ?, panel_id = ?, name = ?, audio_type = ?, audio_url = ?, volume = ?, loop = ?, autoplay = ?,
		fade_in_ms = ?, fade_out_ms = ?, start_delay_ms = ? WHERE id = ?`,
		nullString(a.SceneID), nullString(a.PanelID), a.Name, a.Kind, a.AudioURL, a.Volume, a.Loop, a.Autoplay,
		a.FadeInMs, a.FadeOutMs, a.StartDelayMs, a.ID); err != nil {
		return domain.StoryAudio{}, err
	}
	return r.GetAudio(ctx, a.ID)
}

func (r *Repository) DeleteAudio(ctx context.Context, id string) error {
	return r.exec(ctx, r.db, "delete audio", `DELETE FROM story_audio WHERE id = ?`, id)
}
