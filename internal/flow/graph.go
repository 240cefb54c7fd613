/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package flow adapts scenes and choices to a node graph for the flow
// editor and persists what the author changes in it.
package flow

import (
	"sort"

	"instory/internal/domain"
)

// Grid spacing of scenes without a persisted position.
const (
	GridColumns = 4
	GridStepX   = 280
	GridStepY   = 220
	GridOrigin  = 50
)

// EdgeKind separates the unconditional flow from reader decisions.
type EdgeKind string

const (
	EdgeFlow     EdgeKind = "flow"
	EdgeDecision EdgeKind = "decision"
)

// Node is a scene in the flow graph.
type Node struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	ImageURL   string  `json:"image_url,omitempty"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	IsStart    bool    `json:"is_start"`
	IsDecision bool    `json:"is_decision"`
	Persisted  bool    `json:"persisted"`
}

// EdgeStyle is how a client draws an edge.
type EdgeStyle struct {
	Stroke   string `json:"stroke"`
	Dashed   bool   `json:"dashed"`
	Animated bool   `json:"animated"`
}

// Edge is a choice in the flow graph.
type Edge struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Target string    `json:"target"`
	Label  string    `json:"label,omitempty"`
	Kind   EdgeKind  `json:"kind"`
	Style  EdgeStyle `json:"style"`
}

// Graph is the flow editor view of a story.
type Graph struct {
	Nodes  []Node  `json:"nodes"`
	Edges  []Edge  `json:"edges"`
	Issues []Issue `json:"issues,omitempty"`
}

// DefaultPosition is the grid slot of the i-th scene in order.
func DefaultPosition(i int) (x, y float64) {
	return float64((i%GridColumns)*GridStepX + GridOrigin), float64((i/GridColumns)*GridStepY + GridOrigin)
}

var (
	flowStyle     = EdgeStyle{Stroke: "#64748b", Dashed: true}
	decisionStyle = EdgeStyle{Stroke: "#8b5cf6", Animated: true}
)

// BuildGraph turns scenes and choices into nodes and edges. Scenes are taken
// in order index order; a scene without a persisted position gets the grid
// slot of its index.
func BuildGraph(scenes []domain.Scene, choices []domain.Choice, positions []domain.ScenePosition) Graph {
	sorted := append([]domain.Scene(nil), scenes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OrderIndex < sorted[j].OrderIndex })
	pos := make(map[string]domain.ScenePosition, len(positions))
	for _, p := range positions {
		pos[p.SceneID] = p
	}
	g := Graph{Nodes: make([]Node, 0, len(sorted)), Edges: make([]Edge, 0, len(choices))}
	for i, s := range sorted {
		n := Node{ID: s.ID, Title: s.Title, ImageURL: s.ImageURL, IsStart: s.IsStartScene, IsDecision: s.IsDecisionScene}
		if p, ok := pos[s.ID]; ok {
			n.X, n.Y, n.Persisted = p.X, p.Y, true
		} else {
			n.X, n.Y = DefaultPosition(i)
		}
		g.Nodes = append(g.Nodes, n)
	}
	for _, c := range choices {
		e := Edge{ID: c.ID, Source: c.SceneID, Target: c.TargetSceneID}
		if c.IsUnconditional() {
			e.Kind, e.Style = EdgeFlow, flowStyle
		} else {
			e.Kind, e.Style, e.Label = EdgeDecision, decisionStyle, c.Text
		}
		g.Edges = append(g.Edges, e)
	}
	start := ""
	for _, s := range sorted {
		if s.IsStartScene {
			start = s.ID
			break
		}
	}
	g.Issues = Check(sorted, choices, start)
	return g
}
