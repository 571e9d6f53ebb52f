// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ccg

import "github.com/yourbasic/graph"

// ccgIterator adapts the context graph to the graph library's iterator,
// with vertices numbered by node sequence and arcs along callee edges.
type ccgIterator[F, C comparable] struct {
	g *Graph[F, C]
}

func (it ccgIterator[F, C]) Order() int { return len(it.g.nodes) }

func (it ccgIterator[F, C]) Visit(v int, do func(w int, c int64) bool) bool {
	for _, e := range it.g.nodes[v].CalleeEdges {
		if do(int(e.Callee.seq), 0) {
			return true
		}
	}
	return false
}

// StronglyConnectedStackNodes returns the groups of nodes forming cycles in
// the profiled call stacks (strongly connected components of size at least
// two). Cloning never follows such cycles; the driver reports them as a
// diagnostic.
func (g *Graph[F, C]) StronglyConnectedStackNodes() [][]*ContextNode[F, C] {
	var components [][]*ContextNode[F, C]
	for _, comp := range graph.StrongComponents(ccgIterator[F, C]{g}) {
		if len(comp) < 2 {
			continue
		}
		nodes := make([]*ContextNode[F, C], 0, len(comp))
		for _, v := range comp {
			if !g.nodes[v].IsRemoved() {
				nodes = append(nodes, g.nodes[v])
			}
		}
		if len(nodes) >= 2 {
			components = append(components, nodes)
		}
	}
	return components
}
