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

	"github.com/awslabs/memprof-go-tools/internal/setutil"
	"golang.org/x/exp/slices"
)

// moveEdgeToNewCalleeClone creates a clone of edge's callee and moves edge
// onto it, with the necessary context id and alloc type updates. When
// callerEdgeIdx is non-nil it indexes edge in the old callee's caller edge
// list and is left pointing at the next entry.
func (g *Graph[F, C]) moveEdgeToNewCalleeClone(edge *ContextEdge[F, C], callerEdgeIdx *int) *ContextNode[F, C] {
	node := edge.Callee
	clone := g.newNode(node.IsAllocation, node.Call)
	node.AddClone(clone)
	g.nodeToCallingFunc[clone] = g.nodeToCallingFunc[node]
	g.moveEdgeToExistingCalleeClone(edge, clone, callerEdgeIdx, true)
	return clone
}

// moveEdgeToExistingCalleeClone changes the callee of edge to newCallee,
// moving edge's context ids off the old callee and its callee edges onto
// parallel edges from newCallee. When callerEdgeIdx is non-nil it indexes
// edge in the old callee's caller edge list and is left pointing at the
// next entry.
func (g *Graph[F, C]) moveEdgeToExistingCalleeClone(edge *ContextEdge[F, C], newCallee *ContextNode[F, C],
	callerEdgeIdx *int, newClone bool) {
	// The new callee and the edge's current callee must be clones of the
	// same original node (the current callee may be the original itself).
	if newCallee.OrigNode() != edge.Callee.OrigNode() {
		panic("ccg: moving edge between unrelated callee nodes")
	}
	oldCallee := edge.Callee
	if callerEdgeIdx != nil {
		oldCallee.CallerEdges = append(oldCallee.CallerEdges[:*callerEdgeIdx], oldCallee.CallerEdges[*callerEdgeIdx+1:]...)
	} else {
		oldCallee.eraseCallerEdge(edge)
	}
	edge.Callee = newCallee
	newCallee.CallerEdges = append(newCallee.CallerEdges, edge)
	// The edge's own context ids are unchanged, it is simply reconnected.
	oldCallee.ContextIDs.SubtractSet(edge.ContextIDs)
	newCallee.ContextIDs.InsertSet(edge.ContextIDs)
	newCallee.AllocTypes |= edge.AllocTypes
	oldCallee.AllocTypes = g.computeAllocType(oldCallee.ContextIDs)

	// Walk the old callee's callee edges and move the intersection with the
	// moved edge's context ids over to the corresponding edge of the clone.
	for _, oldCalleeEdge := range oldCallee.CalleeEdges {
		idsToMove := setutil.Intersection(oldCalleeEdge.ContextIDs, edge.ContextIDs)
		oldCalleeEdge.ContextIDs.SubtractSet(idsToMove)
		oldCalleeEdge.AllocTypes = g.computeAllocType(oldCalleeEdge.ContextIDs)
		if !newClone {
			// When reusing an existing clone the parallel edge usually
			// exists already. It may not: none type edges are removed after
			// cloning during function assignment. Fall through to creating
			// it in that case.
			if newCalleeEdge := newCallee.findEdgeFromCallee(oldCalleeEdge.Callee); newCalleeEdge != nil {
				newCalleeEdge.ContextIDs.InsertSet(idsToMove)
				newCalleeEdge.AllocTypes |= g.computeAllocType(idsToMove)
				continue
			}
		}
		newEdge := &ContextEdge[F, C]{
			Callee:     oldCalleeEdge.Callee,
			Caller:     newCallee,
			AllocTypes: g.computeAllocType(idsToMove),
			ContextIDs: idsToMove,
		}
		newCallee.CalleeEdges = append(newCallee.CalleeEdges, newEdge)
		newEdge.Callee.CallerEdges = append(newEdge.Callee.CallerEdges, newEdge)
	}
	if g.cfg.VerifyGraph {
		g.mustCheckNode(oldCallee, false)
		g.mustCheckNode(newCallee, false)
		for _, e := range oldCallee.CalleeEdges {
			g.mustCheckNode(e.Callee, false)
		}
		for _, e := range newCallee.CalleeEdges {
			g.mustCheckNode(e.Callee, false)
		}
	}
}

// allocTypeCloningPriority orders caller edges during cloning, indexed by
// AllocType. Cold edges are processed (and thus split off) first, so edges
// with the default not-cold behavior stay last on the original node; that
// way indirect calls or any other unknown call into the original function
// get the default behavior. The None slot keeps the table indexable by the
// mask value; no edge can actually carry None.
var allocTypeCloningPriority = [4]int{ /*None*/ 3, /*NotCold*/ 4, /*Cold*/ 1, /*NotColdCold*/ 2}

// IdentifyClones performs cloning on the graph so that the allocation
// behavior of each allocation is unambiguous through each of its (possibly
// cloned) contexts.
func (g *Graph[F, C]) IdentifyClones() {
	visited := map[*ContextNode[F, C]]bool{}
	g.allocCallToNode.Range(func(_ CallInfo[C], node *ContextNode[F, C]) bool {
		g.identifyClones(node, visited)
		return true
	})
}

// identifyClones recursively performs cloning on node's callers, then on
// node itself, moving caller edges with distinguishable behavior onto
// clones.
func (g *Graph[F, C]) identifyClones(node *ContextNode[F, C], visited map[*ContextNode[F, C]]bool) {
	if g.cfg.VerifyNodes {
		g.mustCheckNode(node, true)
	}
	if node.CloneOf != nil {
		panic("ccg: identifyClones called on a clone")
	}

	// A node with a nil call either was not found in the module or summary,
	// or something else blocked cloning (recursion, multiple targets).
	// Recursing to its callers would not be useful either.
	if !node.HasCall() {
		return
	}

	visited[node] = true

	// The recursive calls may remove edges from the caller edge list;
	// iterate over a snapshot and skip any removed meanwhile.
	callerEdges := slices.Clone(node.CallerEdges)
	for _, edge := range callerEdges {
		if edge.isRemoved() {
			continue
		}
		if !visited[edge.Caller] && edge.Caller.CloneOf == nil {
			g.identifyClones(edge.Caller, visited)
		}
	}

	// Stop if the behavior here is already unambiguous, or there is a
	// single caller: no clone would disambiguate anything.
	if node.AllocTypes.IsSingle() || len(node.CallerEdges) <= 1 {
		return
	}

	// Sort the caller edges so that the edges kept on the original node at
	// the end are the not-cold ones. Ties are broken by the minimum context
	// id on the edge to keep the outcome independent of edge list order.
	slices.SortStableFunc(node.CallerEdges, func(a, b *ContextEdge[F, C]) bool {
		if a.AllocTypes == b.AllocTypes {
			return a.ContextIDs.Min() < b.ContextIDs.Min()
		}
		return allocTypeCloningPriority[a.AllocTypes] < allocTypeCloningPriority[b.AllocTypes]
	})

	// Iterate until no further cloning disambiguates behavior. In most
	// cases the loop stops once the node is left with a single type.
	i := 0
	for i < len(node.CallerEdges) {
		callerEdge := node.CallerEdges[i]

		// Cloning the prior edge may have left a single type or caller.
		if node.AllocTypes.IsSingle() || len(node.CallerEdges) <= 1 {
			break
		}

		// The types each callee edge would carry for the contexts of this
		// caller edge, if they moved.
		calleeEdgeAllocTypesForCallerEdge := make([]AllocType, 0, len(node.CalleeEdges))
		for _, calleeEdge := range node.CalleeEdges {
			calleeEdgeAllocTypesForCallerEdge = append(calleeEdgeAllocTypesForCallerEdge,
				g.intersectAllocTypes(calleeEdge.ContextIDs, callerEdge.ContextIDs))
		}

		// Cloning is pointless when it would neither split the caller's
		// behavior off the node's nor split any callee edge behavior.
		if callerEdge.AllocTypes.Use() == node.AllocTypes.Use() &&
			allocTypesMatch(calleeEdgeAllocTypesForCallerEdge, node.CalleeEdges) {
			i++
			continue
		}

		// Prefer an existing clone with the same behavior shape.
		var clone *ContextNode[F, C]
		for _, curClone := range node.Clones {
			if curClone.AllocTypes.Use() != callerEdge.AllocTypes.Use() {
				continue
			}
			if !allocTypesMatch(calleeEdgeAllocTypesForCallerEdge, curClone.CalleeEdges) {
				continue
			}
			clone = curClone
			break
		}
		if clone != nil {
			g.moveEdgeToExistingCalleeClone(callerEdge, clone, &i, false)
		} else {
			clone = g.moveEdgeToNewCalleeClone(callerEdge, &i)
		}
		g.log.Tracef("cloned callsite %v for caller edge with types %v", clone.Call, callerEdge.AllocTypes)
		if clone.AllocTypes == AllocNone {
			panic(fmt.Sprintf("ccg: clone of %v has no alloc type", node.Call))
		}
	}

	// Cloning may have left callee edges carrying no contexts. Remove them
	// from the clones and the node.
	for _, clone := range node.Clones {
		g.removeNoneTypeCalleeEdges(clone)
		if g.cfg.VerifyNodes {
			g.mustCheckNode(clone, true)
		}
	}
	g.removeNoneTypeCalleeEdges(node)

	if node.AllocTypes == AllocNone {
		panic(fmt.Sprintf("ccg: node %v left with no alloc type after cloning", node.Call))
	}
	if g.cfg.VerifyNodes {
		g.mustCheckNode(node, true)
	}
}
