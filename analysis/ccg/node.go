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

import "github.com/awslabs/memprof-go-tools/internal/setutil"

// ContextNode is a node in the callsite context graph, either an allocation
// or an interior callsite reached on the way to one. Nodes are owned by the
// graph; a node is never deleted, it is removed logically when its context
// id set drains.
type ContextNode[F, C comparable] struct {
	// IsAllocation distinguishes allocation nodes from interior callsite
	// nodes.
	IsAllocation bool

	// Recursive is set when the node's stack id repeats within a single
	// profiled context. Recursive nodes are never bound to calls or cloned.
	Recursive bool

	// Call is the allocation or interior call the node stands for. It stays
	// nil for interior nodes that no actual call was matched to.
	Call CallInfo[C]

	// OrigStackOrAllocID is a unique id minted at construction for
	// allocation nodes, and the original stack id for interior nodes built
	// from the MIB records. It indexes the matching of callsite records
	// onto stack nodes, and labels nodes when printing. Clones don't get a
	// value.
	OrigStackOrAllocID uint64

	// AllocTypes is the union of the behaviors of the contexts including
	// this node.
	AllocTypes AllocType

	// ContextIDs is the set of ids of the contexts including this node.
	ContextIDs *setutil.IDSet

	// CalleeEdges are the edges to all callees in the profiled call stacks.
	CalleeEdges []*ContextEdge[F, C]

	// CallerEdges are the edges to all callers in the profiled call stacks.
	CallerEdges []*ContextEdge[F, C]

	// Clones lists the clones of this node. Only populated on the original
	// node; a clone of a clone is recorded against the original.
	Clones []*ContextNode[F, C]

	// CloneOf points back to the original node if this node is a clone.
	CloneOf *ContextNode[F, C]

	// seq is the position of the node in the graph's node list, used as a
	// stable id for export and diagnostics.
	seq int64
}

// ContextEdge connects a callee node to one of its callers. The same edge
// value is held by both endpoints; when an edge is removed from the graph it
// is detached from both endpoint lists and its endpoint fields are cleared.
type ContextEdge[F, C comparable] struct {
	Callee *ContextNode[F, C]
	Caller *ContextNode[F, C]

	// AllocTypes is the union of the behaviors of the contexts including
	// this edge.
	AllocTypes AllocType

	// ContextIDs is the set of ids of the contexts including this edge.
	ContextIDs *setutil.IDSet
}

func (e *ContextEdge[F, C]) isRemoved() bool {
	return e.Callee == nil && e.Caller == nil
}

func (e *ContextEdge[F, C]) markRemoved() {
	e.Callee = nil
	e.Caller = nil
}

// HasCall reports whether the node is bound to an actual call.
func (n *ContextNode[F, C]) HasCall() bool { return !n.Call.IsNil() }

// SetCall binds the node to the given call.
func (n *ContextNode[F, C]) SetCall(c CallInfo[C]) { n.Call = c }

// IsRemoved reports whether the node was effectively removed from the
// graph, in which case its context id set and edge lists are all empty.
func (n *ContextNode[F, C]) IsRemoved() bool {
	return n.ContextIDs.Empty()
}

// OrigNode returns the original node this node is a clone of, or the node
// itself when it is not a clone.
func (n *ContextNode[F, C]) OrigNode() *ContextNode[F, C] {
	if n.CloneOf == nil {
		return n
	}
	return n.CloneOf
}

// AddClone records clone against the original of n.
func (n *ContextNode[F, C]) AddClone(clone *ContextNode[F, C]) {
	if n.CloneOf != nil {
		n.CloneOf.Clones = append(n.CloneOf.Clones, clone)
		clone.CloneOf = n.CloneOf
		return
	}
	n.Clones = append(n.Clones, clone)
	clone.CloneOf = n
}

// addOrUpdateCallerEdge merges (allocType, contextID) into the edge from n
// to caller, creating the edge when there is none.
func (n *ContextNode[F, C]) addOrUpdateCallerEdge(caller *ContextNode[F, C], allocType AllocType, contextID uint32) {
	for _, e := range n.CallerEdges {
		if e.Caller == caller {
			e.AllocTypes |= allocType
			e.ContextIDs.Insert(contextID)
			return
		}
	}
	edge := &ContextEdge[F, C]{
		Callee:     n,
		Caller:     caller,
		AllocTypes: allocType,
		ContextIDs: setutil.NewIDSet(contextID),
	}
	n.CallerEdges = append(n.CallerEdges, edge)
	caller.CalleeEdges = append(caller.CalleeEdges, edge)
}

// findEdgeFromCallee returns the edge from callee to n, or nil.
func (n *ContextNode[F, C]) findEdgeFromCallee(callee *ContextNode[F, C]) *ContextEdge[F, C] {
	for _, e := range n.CalleeEdges {
		if e.Callee == callee {
			return e
		}
	}
	return nil
}

// findEdgeFromCaller returns the edge from n to caller, or nil.
func (n *ContextNode[F, C]) findEdgeFromCaller(caller *ContextNode[F, C]) *ContextEdge[F, C] {
	for _, e := range n.CallerEdges {
		if e.Caller == caller {
			return e
		}
	}
	return nil
}

// eraseCalleeEdge removes edge from n's callee edge list only.
func (n *ContextNode[F, C]) eraseCalleeEdge(edge *ContextEdge[F, C]) {
	for i, e := range n.CalleeEdges {
		if e == edge {
			n.CalleeEdges = append(n.CalleeEdges[:i], n.CalleeEdges[i+1:]...)
			return
		}
	}
}

// eraseCallerEdge removes edge from n's caller edge list only.
func (n *ContextNode[F, C]) eraseCallerEdge(edge *ContextEdge[F, C]) {
	for i, e := range n.CallerEdges {
		if e == edge {
			n.CallerEdges = append(n.CallerEdges[:i], n.CallerEdges[i+1:]...)
			return
		}
	}
}
