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
	"github.com/awslabs/memprof-go-tools/internal/funcutil"
	"github.com/awslabs/memprof-go-tools/internal/setutil"
	"golang.org/x/exp/slices"
)

// callContextInfo records one actual callsite considered during stack node
// matching: the call, the prefix of its stack ids that have context nodes
// (innermost first), its enclosing function, and the context ids eventually
// identified for any new node created for it.
type callContextInfo[F, C comparable] struct {
	call            C
	ids             []uint64
	fn              F
	savedContextIDs *setutil.IDSet
}

// UpdateStackNodes matches all callsite records to the nodes created for
// the allocation MIB stacks, synthesizing new nodes to reflect any inlining
// performed on those calls. A call whose callsite record spans several
// stack ids was inlined; it gets a node of its own carrying exactly the
// contexts that traverse the whole inlined sequence.
func (g *Graph[F, C]) UpdateStackNodes() {
	// Map from stack id to all calls with that as the last (outermost
	// caller) callsite id that has a context node. Some ids have no node
	// due to pruning performed during matching of the allocation profile
	// contexts.
	stackIDToMatchingCalls := map[uint64][]*callContextInfo[F, C]{}
	for _, fc := range g.funcCalls {
		for _, call := range fc.Calls {
			// Ignore allocations, already handled.
			if g.allocCallToNode.Has(call) {
				continue
			}
			ids := g.stackIDsWithContextNodes(call.Call)
			if len(ids) == 0 {
				continue
			}
			last := ids[len(ids)-1]
			stackIDToMatchingCalls[last] = append(stackIDToMatchingCalls[last],
				&callContextInfo[F, C]{call: call.Call, ids: ids, fn: fc.Func})
		}
	}

	// First pass: compute the context ids for each of these calls when
	// they correspond to several stack ids due to inlining, and duplicate
	// context ids when several calls collide on identical stack id
	// sequences. The ids are saved on the callContextInfo for the post
	// order pass below.
	oldToNewContextIDs := map[uint32]*setutil.IDSet{}
	for _, lastID := range funcutil.SortedKeys(stackIDToMatchingCalls) {
		calls := stackIDToMatchingCalls[lastID]
		// A single call with a single stack id needs no new node.
		if len(calls) == 1 && len(calls[0].ids) == 1 {
			continue
		}
		// For the best and maximal matching of inlined calls to context
		// node sequences, sort by descending length of the id sequences
		// and, within a length, lexicographically by sequence. The latter
		// groups calls with identical stack id sequences (due to cloning,
		// or artificially because of the MIB context pruning) so they can
		// be handled specially.
		slices.SortStableFunc(calls, func(a, b *callContextInfo[F, C]) bool {
			if len(a.ids) != len(b.ids) {
				return len(a.ids) > len(b.ids)
			}
			return slices.Compare(a.ids, b.ids) < 0
		})

		lastNode := g.stackIDToNode[lastID]
		if lastNode.Recursive {
			continue
		}
		// The pool of ids still assignable at the last node; refined below
		// by intersecting along each call's edge sequence.
		lastNodeContextIDs := lastNode.ContextIDs.Clone()

		for i, c := range calls {
			stackSequenceContextIDs := lastNodeContextIDs.Clone()

			prevNode := lastNode
			skip := false
			// Walk backwards through the ids, starting after the last one,
			// intersecting with the context ids along each edge.
			for j := len(c.ids) - 2; j >= 0; j-- {
				curNode := g.stackIDToNode[c.ids[j]]
				if curNode.Recursive {
					skip = true
					break
				}
				// No edge means these nodes belong to different MIB
				// contexts: both ids were profiled, but never in sequence
				// in a single MIB for any allocation.
				edge := curNode.findEdgeFromCaller(prevNode)
				if edge == nil {
					skip = true
					break
				}
				prevNode = curNode
				stackSequenceContextIDs.IntersectWith(edge.ContextIDs)
				if stackSequenceContextIDs.Empty() {
					skip = true
					break
				}
			}
			if skip {
				continue
			}

			// If some of this call's outer stack ids had no nodes (due to
			// pruning), don't match contexts that extend beyond the kept
			// nodes: subtract everything flowing into the last node's
			// callers. Otherwise we would be matching a prefix of
			// unrelated, longer stack contexts.
			if lastID != g.be.LastStackID(c.call) {
				for _, pe := range lastNode.CallerEdges {
					stackSequenceContextIDs.SubtractSet(pe.ContextIDs)
					if stackSequenceContextIDs.Empty() {
						break
					}
				}
				if stackSequenceContextIDs.Empty() {
					continue
				}
			}

			// Calls with identical id sequences are adjacent after the
			// sort; all but the last of a run get duplicated context ids,
			// so that each call ends up with ids of its own.
			duplicate := i+1 < len(calls) && slices.Equal(c.ids, calls[i+1].ids)
			if duplicate {
				c.savedContextIDs = g.duplicateContextIDs(stackSequenceContextIDs, oldToNewContextIDs)
			} else {
				c.savedContextIDs = stackSequenceContextIDs
				// Remove the assigned ids from the pool for the next call
				// at this stack id.
				lastNodeContextIDs.SubtractSet(stackSequenceContextIDs)
				if lastNodeContextIDs.Empty() {
					break
				}
			}
		}
	}

	g.propagateDuplicateContextIDs(oldToNewContextIDs)

	if g.cfg.VerifyGraph {
		g.mustCheck()
	}

	// Now post order traverse the graph from the allocation nodes towards
	// callers, updating it to contain new nodes for any inlining at
	// interior callsites.
	visited := map[*ContextNode[F, C]]bool{}
	g.allocCallToNode.Range(func(_ CallInfo[C], node *ContextNode[F, C]) bool {
		g.assignStackNodesPostOrder(node, visited, stackIDToMatchingCalls)
		return true
	})
}

// propagateDuplicateContextIDs adds, for every old -> new id pair produced
// by duplication, the new ids alongside the old ones on every edge and node
// reachable from the allocation nodes along caller edges.
func (g *Graph[F, C]) propagateDuplicateContextIDs(oldToNew map[uint32]*setutil.IDSet) {
	if len(oldToNew) == 0 {
		return
	}
	newIDsFor := func(ids *setutil.IDSet) *setutil.IDSet {
		newIDs := setutil.NewIDSet()
		ids.ForEach(func(id uint32) {
			if dups := oldToNew[id]; dups != nil {
				newIDs.InsertSet(dups)
			}
		})
		return newIDs
	}

	visited := map[*ContextEdge[F, C]]bool{}
	var updateCallers func(node *ContextNode[F, C])
	updateCallers = func(node *ContextNode[F, C]) {
		for _, edge := range node.CallerEdges {
			if visited[edge] {
				continue
			}
			visited[edge] = true
			// Only recurse via this edge if it contributed any new ids to
			// the caller.
			newIDs := newIDsFor(edge.ContextIDs)
			if !newIDs.Empty() {
				edge.ContextIDs.InsertSet(newIDs)
				edge.Caller.ContextIDs.InsertSet(newIDs)
				updateCallers(edge.Caller)
			}
		}
	}

	g.allocCallToNode.Range(func(_ CallInfo[C], node *ContextNode[F, C]) bool {
		// Update the allocation node itself first, which simplifies the
		// traversal logic.
		node.ContextIDs.InsertSet(newIDsFor(node.ContextIDs))
		updateCallers(node)
		return true
	})
}

// assignStackNodesPostOrder processes node after its callers, binding calls
// recorded in stackIDToMatchingCalls to existing nodes where the match is
// exact and synthesizing new nodes for inlined sequences.
func (g *Graph[F, C]) assignStackNodesPostOrder(node *ContextNode[F, C],
	visited map[*ContextNode[F, C]]bool,
	stackIDToMatchingCalls map[uint64][]*callContextInfo[F, C]) {
	if visited[node] {
		return
	}
	visited[node] = true
	// Iterate over a snapshot since the recursion may add new callers;
	// those were already processed on creation. Edges removed during the
	// recursion are skipped.
	callerEdges := slices.Clone(node.CallerEdges)
	for _, edge := range callerEdges {
		if edge.isRemoved() {
			continue
		}
		g.assignStackNodesPostOrder(edge.Caller, visited, stackIDToMatchingCalls)
	}

	if node.IsAllocation {
		return
	}
	calls, ok := stackIDToMatchingCalls[node.OrigStackOrAllocID]
	if !ok {
		return
	}

	// The simple case: a single call with a single stack id matches this
	// node exactly, no new node is needed.
	if len(calls) == 1 && len(calls[0].ids) == 1 {
		if node.Recursive {
			return
		}
		c := calls[0]
		node.SetCall(CallInfo[C]{Call: c.call})
		g.nonAllocCallToNode.Set(node.Call, node)
		g.nodeToCallingFunc[node] = c.fn
		return
	}

	lastNode := node
	for _, c := range calls {
		// Skip any call that was not assigned ids; it gets no node.
		if c.savedContextIDs == nil || c.savedContextIDs.Empty() {
			continue
		}

		firstNode := g.stackIDToNode[c.ids[0]]
		// Recompute the context ids for this sequence: saved ids may
		// overlap between different last nodes and have been moved already
		// during the post order traversal.
		saved := c.savedContextIDs
		saved.IntersectWith(firstNode.ContextIDs)
		var prevNode *ContextNode[F, C]
		for _, id := range c.ids {
			curNode := g.stackIDToNode[id]
			if prevNode == nil {
				prevNode = curNode
				continue
			}
			edge := curNode.findEdgeFromCallee(prevNode)
			if edge == nil {
				saved.Clear()
				break
			}
			prevNode = curNode
			saved.IntersectWith(edge.ContextIDs)
			if saved.Empty() {
				break
			}
		}
		if saved.Empty() {
			continue
		}

		// Synthesize the node for the inlined sequence.
		newNode := g.newNode(false, CallInfo[C]{Call: c.call})
		g.nodeToCallingFunc[newNode] = c.fn
		g.nonAllocCallToNode.Set(newNode.Call, newNode)
		newNode.ContextIDs = saved.Clone()
		newNode.AllocTypes = g.computeAllocType(newNode.ContextIDs)

		// Connect to the callees of the innermost frame and the callers of
		// the outermost frame of the inlined chain, moving the node's
		// context ids off the original edges.
		g.connectNewNode(newNode, firstNode, true)
		g.connectNewNode(newNode, lastNode, false)

		// Remove the moved context ids from the interior nodes and the
		// edges linking them.
		prevNode = nil
		for _, id := range c.ids {
			curNode := g.stackIDToNode[id]
			curNode.ContextIDs.SubtractSet(newNode.ContextIDs)
			curNode.AllocTypes = g.computeAllocType(curNode.ContextIDs)
			if prevNode != nil {
				if prevEdge := curNode.findEdgeFromCallee(prevNode); prevEdge != nil {
					prevEdge.ContextIDs.SubtractSet(newNode.ContextIDs)
					if prevEdge.ContextIDs.Empty() {
						g.removeEdge(prevEdge)
					} else {
						prevEdge.AllocTypes = g.computeAllocType(prevEdge.ContextIDs)
					}
				}
			}
			prevNode = curNode
		}
	}
}
