/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package audio

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"instory/internal/domain"
	applog "instory/internal/log"
)

// DefaultFadeStep is the interval between volume steps of a fade.
const DefaultFadeStep = 50 * time.Millisecond

type phase int

const (
	phaseWaiting  phase = iota // start delay pending
	phasePlaying               // playing, possibly fading in
	phaseStopping              // fading out
	phaseFailed                // play() was rejected; kept until its scope ends
)

type track struct {
	audio  domain.StoryAudio
	player Player
	phase  phase
	level  float64 // fade position in [0,1], multiplied with the effective volume
	timer  Timer
	gen    int // bumped on every reschedule; stale callbacks compare it
}

// Manager owns the playback elements of one reader. Every element belongs
// to exactly one clip and is released when the clip's scope is left or the
// manager is closed. Safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	audios    []domain.StoryAudio
	byID      map[string]domain.StoryAudio
	newPlayer PlayerFactory
	sched     Scheduler
	fadeStep  time.Duration
	master    float64
	muted     bool
	tracks    map[string]*track
	closed    bool
	log       *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

func WithScheduler(s Scheduler) Option    { return func(m *Manager) { m.sched = s } }
func WithFadeStep(d time.Duration) Option { return func(m *Manager) { m.fadeStep = d } }
func WithLogger(l *slog.Logger) Option    { return func(m *Manager) { m.log = l } }
func WithMasterVolume(v float64) Option   { return func(m *Manager) { m.master = clamp01(v) } }

// NewManager creates a manager for the clips of one story.
func NewManager(audios []domain.StoryAudio, newPlayer PlayerFactory, opts ...Option) *Manager {
	m := &Manager{
		audios:    append([]domain.StoryAudio(nil), audios...),
		byID:      make(map[string]domain.StoryAudio, len(audios)),
		newPlayer: newPlayer,
		sched:     RealScheduler,
		fadeStep:  DefaultFadeStep,
		master:    1,
		tracks:    map[string]*track{},
	}
	for _, a := range audios {
		m.byID[a.ID] = a
	}
	for _, o := range opts {
		o(m)
	}
	if m.newPlayer == nil {
		m.newPlayer = NewStatePlayer
	}
	if m.log == nil {
		m.log = applog.WithComponent("audio")
	}
	return m
}

// Update applies the clip plan for a new reading position.
func (m *Manager) Update(sceneID, panelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	var active []string
	for id, t := range m.tracks {
		if t.phase != phaseStopping {
			active = append(active, id)
		}
	}
	sort.Strings(active)
	plan := Transition(active, Desired(m.audios, sceneID, panelID), m.audios)
	for _, id := range plan.Stop {
		m.stopLocked(id)
	}
	for _, id := range plan.Start {
		m.startLocked(id)
	}
}

// SetMaster changes the master volume of every element.
func (m *Manager) SetMaster(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.master = clamp01(v)
	m.applyAllLocked()
}

// SetMuted zeroes or restores every element's volume immediately.
func (m *Manager) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
	m.applyAllLocked()
}

// StopAll fades out every clip, including persistent ones.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.tracks {
		m.stopLocked(id)
	}
}

// Close cancels pending timers and releases every element at once.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, t := range m.tracks {
		m.cancelLocked(t)
		t.player.Pause()
		t.player.Release()
		delete(m.tracks, id)
	}
}

// TrackState is the observable state of one clip.
type TrackState struct {
	AudioID  string  `json:"audio_id"`
	URL      string  `json:"url"`
	Loop     bool    `json:"loop"`
	Playing  bool    `json:"playing"`
	Volume   float64 `json:"volume"`
	Stopping bool    `json:"stopping,omitempty"`
}

// States lists the clips that currently own an element, sorted by id.
func (m *Manager) States() []TrackState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TrackState, 0, len(m.tracks))
	for id, t := range m.tracks {
		out = append(out, TrackState{
			AudioID:  id,
			URL:      t.audio.AudioURL,
			Loop:     t.audio.Loop,
			Playing:  t.phase == phasePlaying || t.phase == phaseStopping,
			Volume:   m.volumeLocked(t),
			Stopping: t.phase == phaseStopping,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AudioID < out[j].AudioID })
	return out
}

func (m *Manager) startLocked(id string) {
	a, ok := m.byID[id]
	if !ok {
		return
	}
	t := m.tracks[id]
	if t != nil && t.phase != phaseStopping {
		return
	}
	if t == nil {
		p, err := m.newPlayer(a)
		if err != nil {
			m.log.Warn("audio element", slog.String("audio", id), slog.Any("err", err))
			return
		}
		t = &track{audio: a, player: p, phase: phaseWaiting}
		m.tracks[id] = t
	}
	m.cancelLocked(t)
	if t.phase == phaseStopping {
		// fading out: turn around from the current level
		t.phase = phasePlaying
		m.fadeLocked(t, +1)
		return
	}
	begin := func() {
		if err := t.player.Play(); err != nil {
			m.log.Warn("audio play rejected", slog.String("audio", id), slog.Any("err", err))
			t.phase = phaseFailed
			return
		}
		t.phase = phasePlaying
		if a.FadeInMs <= 0 {
			t.level = 1
			m.applyLocked(t)
			return
		}
		t.level = 0
		m.applyLocked(t)
		m.fadeLocked(t, +1)
	}
	t.player.SetVolume(0)
	if d := a.StartDelay(); d > 0 {
		m.scheduleLocked(t, d, begin)
		return
	}
	begin()
}

func (m *Manager) stopLocked(id string) {
	t := m.tracks[id]
	if t == nil {
		return
	}
	m.cancelLocked(t)
	if t.phase != phasePlaying || t.audio.FadeOutMs <= 0 || t.level <= 0 {
		m.finishLocked(id, t)
		return
	}
	t.phase = phaseStopping
	m.fadeLocked(t, -1)
}

func (m *Manager) finishLocked(id string, t *track) {
	t.player.Pause()
	t.player.Release()
	delete(m.tracks, id)
}

// fadeLocked moves level one step towards 1 (dir > 0) or 0 and schedules the
// next step until it gets there.
func (m *Manager) fadeLocked(t *track, dir int) {
	total := t.audio.FadeIn()
	if dir < 0 {
		total = t.audio.FadeOut()
	}
	if total <= 0 || m.fadeStep <= 0 {
		m.endFadeLocked(t, dir)
		return
	}
	steps := math.Ceil(float64(total) / float64(m.fadeStep))
	inc := 1 / steps
	var step func()
	step = func() {
		if dir > 0 {
			t.level = math.Min(1, t.level+inc)
		} else {
			t.level = math.Max(0, t.level-inc)
		}
		m.applyLocked(t)
		if (dir > 0 && t.level >= 1) || (dir < 0 && t.level <= 0) {
			m.endFadeLocked(t, dir)
			return
		}
		m.scheduleLocked(t, m.fadeStep, step)
	}
	m.scheduleLocked(t, m.fadeStep, step)
}

func (m *Manager) endFadeLocked(t *track, dir int) {
	if dir > 0 {
		t.level = 1
		m.applyLocked(t)
		return
	}
	t.level = 0
	m.finishLocked(t.audio.ID, t)
}

// scheduleLocked replaces the track's pending timer. The callback runs under
// the manager lock and is dropped when the track was rescheduled meanwhile.
func (m *Manager) scheduleLocked(t *track, d time.Duration, f func()) {
	m.cancelLocked(t)
	gen := t.gen
	t.timer = m.sched.AfterFunc(d, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed || t.gen != gen || m.tracks[t.audio.ID] != t {
			return
		}
		t.timer = nil
		f()
	})
}

func (m *Manager) cancelLocked(t *track) {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (m *Manager) volumeLocked(t *track) float64 {
	return t.level * EffectiveVolume(t.audio.Volume, m.master, m.muted)
}

func (m *Manager) applyLocked(t *track) {
	t.player.SetVolume(m.volumeLocked(t))
}

func (m *Manager) applyAllLocked() {
	for _, t := range m.tracks {
		if t.phase == phasePlaying || t.phase == phaseStopping {
			m.applyLocked(t)
		}
	}
}
