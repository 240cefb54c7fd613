/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package flow

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"instory/internal/domain"
)

func scenes(ids ...string) []domain.Scene {
	out := make([]domain.Scene, len(ids))
	for i, id := range ids {
		out[i] = domain.Scene{ID: id, StoryID: "st", Title: id, OrderIndex: i}
	}
	out[0].IsStartScene = true
	return out
}

func TestDefaultPosition_Grid(t *testing.T) {
	cases := []struct {
		i    int
		x, y float64
	}{{0, 50, 50}, {3, 890, 50}, {4, 50, 270}, {9, 330, 490}}
	for _, c := range cases {
		x, y := DefaultPosition(c.i)
		if x != c.x || y != c.y {
			t.Errorf("DefaultPosition(%d) = %v,%v want %v,%v", c.i, x, y, c.x, c.y)
		}
	}
}

func TestBuildGraph_PositionsAndEdges(t *testing.T) {
	sc := scenes("a", "b", "c")
	sc[1].IsDecisionScene = true
	// out of order input
	sc[0], sc[2] = sc[2], sc[0]
	choices := []domain.Choice{
		{ID: "e1", SceneID: "a", TargetSceneID: "b"},
		{ID: "e2", SceneID: "b", TargetSceneID: "c", Text: "Go on"},
		{ID: "e3", SceneID: "b", TargetSceneID: "a", Text: "  Back  "},
	}
	g := BuildGraph(sc, choices, []domain.ScenePosition{{SceneID: "b", X: 10, Y: 20}})

	type nodePos struct {
		ID        string
		X, Y      float64
		Persisted bool
	}
	var got []nodePos
	for _, n := range g.Nodes {
		got = append(got, nodePos{n.ID, n.X, n.Y, n.Persisted})
	}
	want := []nodePos{{"a", 50, 50, false}, {"b", 10, 20, true}, {"c", 610, 50, false}}
	if d := cmp.Diff(want, got); d != "" {
		t.Fatalf("nodes mismatch (-want +got):\n%s", d)
	}
	if g.Edges[0].Kind != EdgeFlow || g.Edges[0].Label != "" || !g.Edges[0].Style.Dashed {
		t.Fatalf("unconditional edge must be a dashed flow edge: %+v", g.Edges[0])
	}
	if g.Edges[1].Kind != EdgeDecision || g.Edges[1].Label != "Go on" || !g.Edges[1].Style.Animated {
		t.Fatalf("labeled edge must be a decision: %+v", g.Edges[1])
	}
	if len(g.Issues) != 0 {
		t.Fatalf("expected a clean graph, got %+v", g.Issues)
	}
}

func TestCheck_ReportsProblems(t *testing.T) {
	sc := scenes("a", "b", "c", "d")
	sc[0].IsDecisionScene = true
	choices := []domain.Choice{
		{ID: "1", SceneID: "a", TargetSceneID: "b"},
		{ID: "2", SceneID: "a", TargetSceneID: "b"},
		{ID: "3", SceneID: "b", TargetSceneID: "zz", Text: "lost"},
	}
	got := Check(sc, choices, "a")
	want := []Issue{
		{Kind: IssueDuplicateFlow, SceneID: "a", ChoiceID: "2"},
		{Kind: IssueDanglingChoice, SceneID: "b", ChoiceID: "3"},
		{Kind: IssueDecisionMismatch, SceneID: "a"},
		{Kind: IssueUnreachable, SceneID: "c"},
		{Kind: IssueUnreachable, SceneID: "d"},
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", d)
	}
}

func TestCheck_StartScenes(t *testing.T) {
	sc := scenes("a", "b")
	sc[0].IsStartScene = false
	if got := Check(sc, nil, ""); len(got) != 1 || got[0].Kind != IssueNoStart {
		t.Fatalf("expected missing start, got %+v", got)
	}
	sc[0].IsStartScene, sc[1].IsStartScene = true, true
	n := 0
	for _, is := range Check(sc, nil, "a") {
		if is.Kind == IssueManyStarts {
			n++
		}
	}
	if n != 2 {
		t.Fatalf("expected two start issues, got %d", n)
	}
}

func TestAutoLayout_ColumnsByDepth(t *testing.T) {
	sc := scenes("a", "b", "c", "d", "lonely")
	choices := []domain.Choice{
		{SceneID: "a", TargetSceneID: "b", Text: "x", OrderIndex: 0},
		{SceneID: "a", TargetSceneID: "c", Text: "y", OrderIndex: 1},
		{SceneID: "b", TargetSceneID: "d"},
		{SceneID: "c", TargetSceneID: "d"},
	}
	got := AutoLayout(sc, choices)
	want := []domain.ScenePosition{
		{SceneID: "a", StoryID: "st", X: 50, Y: 50},
		{SceneID: "b", StoryID: "st", X: 330, Y: 50},
		{SceneID: "c", StoryID: "st", X: 330, Y: 270},
		{SceneID: "d", StoryID: "st", X: 610, Y: 50},
		{SceneID: "lonely", StoryID: "st", X: 890, Y: 50},
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", d)
	}
}
