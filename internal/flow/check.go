/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package flow

import (
	"sort"

	"instory/internal/domain"
)

// IssueKind classifies a structural problem of a story graph.
type IssueKind string

const (
	IssueNoStart          IssueKind = "no_start_scene"
	IssueManyStarts       IssueKind = "multiple_start_scenes"
	IssueUnreachable      IssueKind = "unreachable"
	IssueDanglingChoice   IssueKind = "dangling_choice"
	IssueDuplicateFlow    IssueKind = "duplicate_flow"
	IssueDecisionMismatch IssueKind = "decision_flag_mismatch"
)

// Issue is one warning shown in the flow editor.
type Issue struct {
	Kind     IssueKind `json:"kind"`
	SceneID  string    `json:"scene_id,omitempty"`
	ChoiceID string    `json:"choice_id,omitempty"`
}

// Check reports structural problems: a missing or repeated start scene,
// scenes the reader can never reach, choices pointing at missing scenes, more
// than one unconditional choice from a scene, and decision flags that do not
// match the labeled choices. Scenes without outgoing choices are story
// endings and are not reported.
func Check(scenes []domain.Scene, choices []domain.Choice, startID string) []Issue {
	var out []Issue
	known := make(map[string]domain.Scene, len(scenes))
	starts := 0
	for _, s := range scenes {
		known[s.ID] = s
		if s.IsStartScene {
			starts++
		}
	}
	switch {
	case len(scenes) > 0 && starts == 0:
		out = append(out, Issue{Kind: IssueNoStart})
	case starts > 1:
		for _, s := range scenes {
			if s.IsStartScene {
				out = append(out, Issue{Kind: IssueManyStarts, SceneID: s.ID})
			}
		}
	}

	adj := map[string][]string{}
	flows := map[string]int{}
	labeled := map[string]int{}
	for _, c := range choices {
		if _, ok := known[c.TargetSceneID]; !ok {
			out = append(out, Issue{Kind: IssueDanglingChoice, SceneID: c.SceneID, ChoiceID: c.ID})
			continue
		}
		adj[c.SceneID] = append(adj[c.SceneID], c.TargetSceneID)
		if c.IsUnconditional() {
			flows[c.SceneID]++
			if flows[c.SceneID] == 2 {
				out = append(out, Issue{Kind: IssueDuplicateFlow, SceneID: c.SceneID, ChoiceID: c.ID})
			}
		} else {
			labeled[c.SceneID]++
		}
	}
	for _, s := range scenes {
		if s.IsDecisionScene != (labeled[s.ID] > 0) {
			out = append(out, Issue{Kind: IssueDecisionMismatch, SceneID: s.ID})
		}
	}

	if startID != "" {
		depth := Depths(startID, adj)
		var unreachable []string
		for _, s := range scenes {
			if _, ok := depth[s.ID]; !ok {
				unreachable = append(unreachable, s.ID)
			}
		}
		sort.Strings(unreachable)
		for _, id := range unreachable {
			out = append(out, Issue{Kind: IssueUnreachable, SceneID: id})
		}
	}
	return out
}

// Depths returns the breadth-first distance of every scene reachable from start.
func Depths(start string, adj map[string][]string) map[string]int {
	depth := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if _, seen := depth[next]; seen {
				continue
			}
			depth[next] = depth[cur] + 1
			queue = append(queue, next)
		}
	}
	return depth
}

// AutoLayout places scenes in columns by their distance from the start
// scene, left to right, in order index order inside a column. Unreachable
// scenes get a column after the deepest one.
func AutoLayout(scenes []domain.Scene, choices []domain.Choice) []domain.ScenePosition {
	sorted := append([]domain.Scene(nil), scenes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OrderIndex < sorted[j].OrderIndex })
	start := ""
	for _, s := range sorted {
		if s.IsStartScene {
			start = s.ID
			break
		}
	}
	if start == "" && len(sorted) > 0 {
		start = sorted[0].ID
	}
	adj := map[string][]string{}
	cs := append([]domain.Choice(nil), choices...)
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].OrderIndex < cs[j].OrderIndex })
	for _, c := range cs {
		adj[c.SceneID] = append(adj[c.SceneID], c.TargetSceneID)
	}
	depth := Depths(start, adj)
	maxDepth := 0
	for _, d := range depth {
		maxDepth = max(maxDepth, d)
	}
	rows := map[int]int{}
	out := make([]domain.ScenePosition, 0, len(sorted))
	for _, s := range sorted {
		d, ok := depth[s.ID]
		if !ok {
			d = maxDepth + 1
		}
		row := rows[d]
		rows[d]++
		out = append(out, domain.ScenePosition{
			SceneID: s.ID,
			StoryID: s.StoryID,
			X:       float64(d*GridStepX + GridOrigin),
			Y:       float64(row*GridStepY + GridOrigin),
		})
	}
	return out
}
