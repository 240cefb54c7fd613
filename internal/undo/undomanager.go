/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package undo

import (
	"sync"
	"time"
)

// Snapshot is the state of one scene's panel list before an edit. Blob is
// opaque to the manager; its size is len(Blob).
type Snapshot struct {
	SceneID string
	Blob    []byte
	TS      time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; the oldest entries across all scenes are pruned when exceeded.
	MaxBytes int
	// MaxPerScene limits the undo depth of a scene (0 means unlimited).
	MaxPerScene int
	// MinInterval coalesces edits of the same scene: a push within the
	// interval of the previous one is dropped, so one undo reverts the burst.
	MinInterval time.Duration
}

// Manager keeps undo and redo stacks per scene. It is safe for concurrent use.
type Manager struct {
	cfg Config
	mu  sync.Mutex

	undo map[string][]Snapshot
	redo map[string][]Snapshot
	// time of the last Push per scene; Undo and Redo end a burst
	last map[string]time.Time

	totalBytes int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	return &Manager{
		cfg:  cfg,
		undo: make(map[string][]Snapshot),
		redo: make(map[string][]Snapshot),
		last: make(map[string]time.Time),
	}
}

// Push records the state before an edit and clears the scene's redo stack.
// It reports whether a new entry was added; a coalesced push keeps the
// earlier state.
func (m *Manager) Push(s Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropRedoLocked(s.SceneID)
	stack := m.undo[s.SceneID]
	last, ok := m.last[s.SceneID]
	m.last[s.SceneID] = s.TS
	if ok && len(stack) > 0 && s.TS.Sub(last) < m.cfg.MinInterval {
		return false
	}
	m.undo[s.SceneID] = append(stack, s)
	m.totalBytes += len(s.Blob)
	m.enforceCapsLocked(s.SceneID)
	return true
}

// Undo pops the latest state of the scene and parks current on the redo
// stack. The caller restores the returned snapshot.
func (m *Manager) Undo(current Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := current.SceneID
	stack := m.undo[id]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	s := stack[len(stack)-1]
	m.undo[id] = stack[:len(stack)-1]
	m.totalBytes -= len(s.Blob)
	delete(m.last, id)
	m.redo[id] = append(m.redo[id], current)
	m.totalBytes += len(current.Blob)
	m.enforceCapsLocked(id)
	return s, true
}

// Redo is the inverse of Undo.
func (m *Manager) Redo(current Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := current.SceneID
	r := m.redo[id]
	if len(r) == 0 {
		return Snapshot{}, false
	}
	s := r[len(r)-1]
	m.redo[id] = r[:len(r)-1]
	m.totalBytes -= len(s.Blob)
	delete(m.last, id)
	m.undo[id] = append(m.undo[id], current)
	m.totalBytes += len(current.Blob)
	m.enforceCapsLocked(id)
	return s, true
}

// CanUndo and CanRedo drive the editor's toolbar state.
func (m *Manager) CanUndo(sceneID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[sceneID]) > 0
}

func (m *Manager) CanRedo(sceneID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[sceneID]) > 0
}

// ClearScene drops both stacks of a scene, e.g. after it was deleted.
func (m *Manager) ClearScene(sceneID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[sceneID] {
		m.totalBytes -= len(s.Blob)
	}
	m.dropRedoLocked(sceneID)
	delete(m.undo, sceneID)
	delete(m.last, sceneID)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, scenes int, totalSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scenes = len(m.undo)
	for _, v := range m.undo {
		totalSnapshots += len(v)
	}
	return m.totalBytes, scenes, totalSnapshots
}

func (m *Manager) dropRedoLocked(sceneID string) {
	for _, s := range m.redo[sceneID] {
		m.totalBytes -= len(s.Blob)
	}
	delete(m.redo, sceneID)
}

func (m *Manager) enforceCapsLocked(sceneID string) {
	if m.cfg.MaxPerScene > 0 {
		stack := m.undo[sceneID]
		if len(stack) > m.cfg.MaxPerScene {
			toDrop := len(stack) - m.cfg.MaxPerScene
			for i := 0; i < toDrop; i++ {
				m.totalBytes -= len(stack[i].Blob)
			}
			m.undo[sceneID] = append([]Snapshot{}, stack[toDrop:]...)
		}
	}
	// Global memory cap: prune the oldest undo entry across all scenes
	for m.cfg.MaxBytes > 0 && m.totalBytes > m.cfg.MaxBytes {
		oldest := ""
		found := false
		var oldestTS time.Time
		for id, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldest, oldestTS, found = id, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldest]
		m.totalBytes -= len(stack[0].Blob)
		m.undo[oldest] = stack[1:]
		if len(m.undo[oldest]) == 0 {
			delete(m.undo, oldest)
		}
	}
}
