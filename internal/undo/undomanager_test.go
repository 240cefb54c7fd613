/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"testing"
	"time"
)

func snap(scene, blob string, ts time.Time) Snapshot {
	return Snapshot{SceneID: scene, Blob: []byte(blob), TS: ts}
}

func TestUndoRedoBasic(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxPerScene: 10, MinInterval: 10 * time.Millisecond})
	t0 := time.Now()
	// states: a -> b -> c
	m.Push(snap("s1", "a", t0))
	m.Push(snap("s1", "b", t0.Add(20*time.Millisecond)))
	if _, scenes, total := m.Stats(); scenes != 1 || total != 2 {
		t.Fatalf("expected 1 scene and 2 snapshots, got scenes=%d total=%d", scenes, total)
	}
	s, ok := m.Undo(snap("s1", "c", t0.Add(time.Second)))
	if !ok || string(s.Blob) != "b" {
		t.Fatalf("undo expected 'b', got ok=%v blob=%q", ok, string(s.Blob))
	}
	if !m.CanRedo("s1") {
		t.Fatalf("expected redo to be available")
	}
	s, ok = m.Redo(snap("s1", "b", t0.Add(2*time.Second)))
	if !ok || string(s.Blob) != "c" {
		t.Fatalf("redo expected 'c', got ok=%v blob=%q", ok, string(s.Blob))
	}
	s, ok = m.Undo(snap("s1", "c", t0.Add(3*time.Second)))
	if !ok || string(s.Blob) != "b" {
		t.Fatalf("second undo expected 'b', got ok=%v blob=%q", ok, string(s.Blob))
	}
}

func TestCoalesceKeepsEarliestState(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxPerScene: 10, MinInterval: 50 * time.Millisecond})
	t0 := time.Now()
	if !m.Push(snap("s", "first", t0)) {
		t.Fatalf("first push must add an entry")
	}
	if m.Push(snap("s", "second", t0.Add(10*time.Millisecond))) {
		t.Fatalf("push inside the interval must coalesce")
	}
	if m.Push(snap("s", "third", t0.Add(40*time.Millisecond))) {
		t.Fatalf("the burst window slides with each push")
	}
	if _, _, total := m.Stats(); total != 1 {
		t.Fatalf("expected one snapshot, got %d", total)
	}
	s, ok := m.Undo(snap("s", "now", t0.Add(time.Second)))
	if !ok || string(s.Blob) != "first" {
		t.Fatalf("expected earliest state, got %q", s.Blob)
	}
}

func TestUndoEndsBurst(t *testing.T) {
	m := NewManager(Config{MinInterval: time.Hour})
	t0 := time.Now()
	m.Push(snap("s", "a", t0))
	m.Push(snap("s", "b", t0.Add(time.Second)))
	if _, ok := m.Undo(snap("s", "c", t0.Add(2*time.Second))); !ok {
		t.Fatalf("undo failed")
	}
	if !m.Push(snap("s", "a2", t0.Add(3*time.Second))) {
		t.Fatalf("an edit after undo must start a new entry")
	}
	if m.CanRedo("s") {
		t.Fatalf("a new edit must clear redo")
	}
}

func TestPerSceneDepthCap(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024, MaxPerScene: 2})
	t0 := time.Now()
	for i, b := range []string{"1", "2", "3"} {
		m.Push(snap("s", b, t0.Add(time.Duration(i)*time.Second)))
	}
	if _, _, total := m.Stats(); total != 2 {
		t.Fatalf("expected depth 2, got %d", total)
	}
	s, _ := m.Undo(snap("s", "4", t0.Add(time.Minute)))
	s, _ = m.Undo(snap("s", string(s.Blob), t0.Add(time.Minute)))
	if string(s.Blob) != "2" {
		t.Fatalf("oldest entry should have been dropped, got %q", s.Blob)
	}
	if m.CanUndo("s") {
		t.Fatalf("stack should be empty")
	}
}
