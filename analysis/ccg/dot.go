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

import (
	"fmt"
	"os"

	gograph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/iterator"
)

// The dot export goes through gonum's encoder: dotGraph takes a snapshot of
// the live nodes and edges and exposes it as a gonum directed graph, with
// dot attributes carrying the alloc type coloring. Arrows point from caller
// to callee.

type dotNode[F, C comparable] struct {
	n *ContextNode[F, C]
}

func (d dotNode[F, C]) ID() int64 { return d.n.seq }

func (d dotNode[F, C]) DOTID() string {
	return fmt.Sprintf("N%d", d.n.seq)
}

func (d dotNode[F, C]) Attributes() []encoding.Attribute {
	n := d.n
	label := "OrigId: "
	if n.IsAllocation {
		label += "Alloc"
	}
	label += fmt.Sprintf("%d\\n", n.OrigStackOrAllocID)
	if n.HasCall() {
		label += fmt.Sprintf("%v", n.Call)
	} else if n.Recursive {
		label += "null call (recursive)"
	} else {
		label += "null call (external)"
	}
	style := "filled"
	attrs := []encoding.Attribute{
		{Key: "label", Value: label},
		{Key: "fillcolor", Value: allocTypeColor(n.AllocTypes)},
		{Key: "tooltip", Value: "ContextIds: " + n.ContextIDs.String()},
	}
	if n.CloneOf != nil {
		attrs = append(attrs, encoding.Attribute{Key: "color", Value: "blue"})
		style = "filled,bold,dashed"
	}
	return append(attrs, encoding.Attribute{Key: "style", Value: style})
}

type dotEdge[F, C comparable] struct {
	from, to dotNode[F, C]
	e        *ContextEdge[F, C]
}

func (d dotEdge[F, C]) From() gograph.Node         { return d.from }
func (d dotEdge[F, C]) To() gograph.Node           { return d.to }
func (d dotEdge[F, C]) ReversedEdge() gograph.Edge { return dotEdge[F, C]{from: d.to, to: d.from, e: d.e} }

func (d dotEdge[F, C]) Attributes() []encoding.Attribute {
	return []encoding.Attribute{
		{Key: "tooltip", Value: "ContextIds: " + d.e.ContextIDs.String()},
		{Key: "fillcolor", Value: allocTypeColor(d.e.AllocTypes)},
	}
}

func allocTypeColor(t AllocType) string {
	switch t {
	case AllocNotCold:
		// A lighter red.
		return "brown1"
	case AllocCold:
		return "cyan"
	case allocBoth:
		// A lighter purple.
		return "mediumorchid1"
	default:
		return "gray"
	}
}

type dotGraph[F, C comparable] struct {
	nodes []gograph.Node
	byID  map[int64]dotNode[F, C]
	succ  map[int64][]gograph.Node
	pred  map[int64][]gograph.Node
	edges map[[2]int64]dotEdge[F, C]
}

func (g *Graph[F, C]) dotSnapshot() *dotGraph[F, C] {
	d := &dotGraph[F, C]{
		byID:  map[int64]dotNode[F, C]{},
		succ:  map[int64][]gograph.Node{},
		pred:  map[int64][]gograph.Node{},
		edges: map[[2]int64]dotEdge[F, C]{},
	}
	for _, n := range g.nodes {
		if n.IsRemoved() {
			continue
		}
		dn := dotNode[F, C]{n}
		d.nodes = append(d.nodes, dn)
		d.byID[dn.ID()] = dn
	}
	for _, n := range g.nodes {
		if n.IsRemoved() {
			continue
		}
		for _, e := range n.CalleeEdges {
			from := dotNode[F, C]{e.Caller}
			to := dotNode[F, C]{e.Callee}
			d.succ[from.ID()] = append(d.succ[from.ID()], to)
			d.pred[to.ID()] = append(d.pred[to.ID()], from)
			d.edges[[2]int64{from.ID(), to.ID()}] = dotEdge[F, C]{from: from, to: to, e: e}
		}
	}
	return d
}

func (d *dotGraph[F, C]) Node(id int64) gograph.Node {
	if n, ok := d.byID[id]; ok {
		return n
	}
	return nil
}

func (d *dotGraph[F, C]) Nodes() gograph.Nodes {
	return iterator.NewOrderedNodes(d.nodes)
}

func (d *dotGraph[F, C]) From(id int64) gograph.Nodes {
	return iterator.NewOrderedNodes(d.succ[id])
}

func (d *dotGraph[F, C]) To(id int64) gograph.Nodes {
	return iterator.NewOrderedNodes(d.pred[id])
}

func (d *dotGraph[F, C]) HasEdgeBetween(xid, yid int64) bool {
	return d.HasEdgeFromTo(xid, yid) || d.HasEdgeFromTo(yid, xid)
}

func (d *dotGraph[F, C]) HasEdgeFromTo(uid, vid int64) bool {
	_, ok := d.edges[[2]int64{uid, vid}]
	return ok
}

func (d *dotGraph[F, C]) Edge(uid, vid int64) gograph.Edge {
	if e, ok := d.edges[[2]int64{uid, vid}]; ok {
		return e
	}
	return nil
}

// ExportDot returns the live graph in dot format.
func (g *Graph[F, C]) ExportDot(name string) ([]byte, error) {
	return dot.Marshal(g.dotSnapshot(), name, "", "  ")
}

// writeDotFile exports the graph to <prefix>ccg.<label>.dot.
func (g *Graph[F, C]) writeDotFile(label string) {
	b, err := g.ExportDot("ccg_" + label)
	if err != nil {
		g.log.Errorf("could not export graph to dot: %v", err)
		return
	}
	path := g.cfg.DotFilePathPrefix + "ccg." + label + ".dot"
	if err := os.WriteFile(path, b, 0o600); err != nil {
		g.log.Errorf("could not write dot file %s: %v", path, err)
	}
}
